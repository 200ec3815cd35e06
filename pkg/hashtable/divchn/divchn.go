// Package divchn implements a hash table with byte-block keys and
// elements, hashing by the division method into a prime number of
// slots and chaining collisions on circular doubly linked rings. Due
// to chaining the number of insertable pairs is not limited by the
// table; the load factor is upper-bounded by an integer alpha
// parameter until the prime schedule is exhausted.
//
// The table is not safe for concurrent use; see the divchnmt
// subpackage sibling for the multithreaded variant.
package divchn

import (
	"errors"

	"github.com/scottcagno/containers/pkg/bits"
	"github.com/scottcagno/containers/pkg/chain"
	"github.com/scottcagno/containers/pkg/hashtable"
	"github.com/scottcagno/containers/pkg/prime"
)

// Config parameterizes a table. KeySize and EltSize are the exact
// byte sizes of every key and element block. MinNum is the number of
// keys expected to be present simultaneously; a positive value skips
// unnecessary growth steps. The load factor upper bound is
// AlphaN / 2^LogAlphaD.
type Config struct {
	KeySize   int
	EltSize   int
	MinNum    uint64
	AlphaN    uint64
	LogAlphaD uint

	// CmpKey reports zero iff two key blocks are equal; nil compares
	// byte-wise.
	CmpKey hashtable.CompareFn
	// RdcKey reduces a key block to one word before hashing; nil uses
	// hashtable.ReduceLE.
	RdcKey hashtable.ReduceFn
	// FreeElt releases resources owned by an element block; it runs on
	// value overwrite, Delete and Free, but not on Remove.
	FreeElt hashtable.FreeFn
}

var (
	ErrKeySize   = errors.New("divchn: key size must be positive")
	ErrEltSize   = errors.New("divchn: element size must be positive")
	ErrAlpha     = errors.New("divchn: alpha numerator must be positive")
	ErrAlphaDen  = errors.New("divchn: log of alpha denominator must be below 64")
	ErrAlignment = errors.New("divchn: alignment must be a positive power of two")
)

// Table is a division-method chaining hash table. Methods must be
// externally serialized.
type Table struct {
	keySize      int
	eltSize      int
	eltAlignment int
	sched        prime.Schedule
	count        uint64 // number of slots, a schedule prime
	maxNumElts   uint64 // load bound: floor(count * alphaN / 2^logAlphaD)
	numElts      uint64
	alphaN       uint64
	logAlphaD    uint
	ll           *chain.List
	slots        []*chain.Node
	cmpKey       hashtable.CompareFn
	rdcKey       hashtable.ReduceFn
	freeElt      hashtable.FreeFn
}

// New returns an initialized table. The slot count starts at the
// first schedule prime and advances until the load bound accommodates
// cfg.MinNum or the schedule is exhausted.
func New(cfg Config) (*Table, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	t := &Table{
		keySize:      cfg.KeySize,
		eltSize:      cfg.EltSize,
		eltAlignment: 1,
		sched:        prime.NewSchedule(),
		alphaN:       cfg.AlphaN,
		logAlphaD:    cfg.LogAlphaD,
		ll:           chain.New(cfg.KeySize, cfg.EltSize),
		cmpKey:       cfg.CmpKey,
		rdcKey:       cfg.RdcKey,
		freeElt:      cfg.FreeElt,
	}
	t.count = t.sched.Count()
	t.maxNumElts = bits.MulShiftSat(t.count, t.alphaN, t.logAlphaD)
	for cfg.MinNum > t.maxNumElts && t.sched.Next() {
		t.count = t.sched.Count()
		t.maxNumElts = bits.MulShiftSat(t.count, t.alphaN, t.logAlphaD)
	}
	t.slots = make([]*chain.Node, t.count)
	return t, nil
}

func validate(cfg Config) error {
	switch {
	case cfg.KeySize <= 0:
		return ErrKeySize
	case cfg.EltSize <= 0:
		return ErrEltSize
	case cfg.AlphaN == 0:
		return ErrAlpha
	case cfg.LogAlphaD >= 64:
		return ErrAlphaDen
	}
	return nil
}

// AlignElt aligns every element block created afterwards to the given
// alignment, so the block can back a type wider than a byte. Called
// once after New and before any other operation.
func (t *Table) AlignElt(alignment int) error {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return ErrAlignment
	}
	t.eltAlignment = alignment
	t.ll.AlignElt(alignment)
	return nil
}

// Insert inserts a key and an associated element, both exact-size
// blocks copied into the table. If the key is present, the element
// block is released through FreeElt and overwritten with the new
// element. A non-update insert that pushes the count past the load
// bound grows the table unless the schedule is exhausted.
func (t *Table) Insert(key, elt []byte) {
	ix := t.hash(key)
	head := &t.slots[ix]
	node := t.ll.SearchKey(head, key, t.cmpKey)
	if node == nil {
		t.ll.PrependNew(head, key, elt)
		t.numElts++
	} else {
		if t.freeElt != nil {
			t.freeElt(t.ll.Elt(node))
		}
		copy(t.ll.Elt(node), elt)
	}
	// an update leaves numElts unchanged, so only an insertion can push
	// it past the bound
	if t.numElts > t.maxNumElts && !t.sched.Exhausted() {
		t.grow()
	}
}

// Search returns the element block associated with key, or nil. The
// returned slice aliases the in-table block: it observes later value
// overwrites and stays valid across grows, until the key is removed
// or deleted or the table is freed.
func (t *Table) Search(key []byte) []byte {
	node := t.ll.SearchKey(&t.slots[t.hash(key)], key, t.cmpKey)
	if node == nil {
		return nil
	}
	return t.ll.Elt(node)
}

// Remove removes a key by copying its element block into elt, without
// invoking FreeElt; ownership of whatever the block refers to passes
// to the caller. If the key is absent, elt is left unchanged and
// Remove reports false.
func (t *Table) Remove(key, elt []byte) bool {
	head := &t.slots[t.hash(key)]
	node := t.ll.SearchKey(head, key, t.cmpKey)
	if node == nil {
		return false
	}
	copy(elt, t.ll.Elt(node))
	t.ll.Delete(head, node, nil)
	t.numElts--
	return true
}

// Delete deletes a key and releases its element block through
// FreeElt. Reports whether the key was present.
func (t *Table) Delete(key []byte) bool {
	head := &t.slots[t.hash(key)]
	node := t.ll.SearchKey(head, key, t.cmpKey)
	if node == nil {
		return false
	}
	t.ll.Delete(head, node, t.freeElt)
	t.numElts--
	return true
}

// Free releases every chain, invoking FreeElt on each element block,
// and drops the slot array. The table must not be used afterwards.
func (t *Table) Free() {
	for i := range t.slots {
		t.ll.Free(&t.slots[i], t.freeElt)
	}
	t.slots = nil
	t.numElts = 0
}

// Len returns the number of keys in the table.
func (t *Table) Len() uint64 { return t.numElts }

// Count returns the current number of slots.
func (t *Table) Count() uint64 { return t.count }

// CountIndex returns the position of the current slot count in the
// prime schedule; the first prime is at position 0.
func (t *Table) CountIndex() int { return t.sched.Index() }

// MaxLen returns the current load bound; Len exceeds it only after
// the schedule is exhausted.
func (t *Table) MaxLen() uint64 { return t.maxNumElts }

func (t *Table) stdKey(key []byte) uint64 {
	if t.rdcKey != nil {
		return t.rdcKey(key)
	}
	return hashtable.ReduceLE(key)
}

// hash maps a key to a slot index by the division method.
func (t *Table) hash(key []byte) uint64 {
	return t.stdKey(key) % t.count
}

// grow advances the slot count to the next schedule prime that
// accommodates the load bound, or as far as the schedule allows. A
// changed count allocates a fresh slot array and splices every node
// in place into its new chain; nodes are never reallocated, so
// element handles stay valid across the grow.
func (t *Table) grow() {
	prevCount := t.count
	for t.numElts > t.maxNumElts && t.sched.Next() {
		t.count = t.sched.Count()
		t.maxNumElts = bits.MulShiftSat(t.count, t.alphaN, t.logAlphaD)
	}
	if prevCount == t.count {
		return // load factor not lowered
	}
	prev := t.slots
	t.slots = make([]*chain.Node, t.count)
	for i := range prev {
		head := &prev[i]
		for *head != nil {
			node := *head
			chain.Remove(head, node)
			chain.Prepend(&t.slots[t.hash(t.ll.Key(node))], node)
		}
	}
}
