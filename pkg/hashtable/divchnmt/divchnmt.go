// Package divchnmt implements the multithreaded variant of the
// division-method chaining hash table: batched insertion from
// concurrent writers, per-slot-group locks, and online growth that
// quiesces all readers and writers for the duration of one rehash.
//
// The data model matches the divchn sibling; a batch call is the unit
// of publication. After Insert returns, every pair of the batch is
// visible to a Search from any goroutine.
package divchnmt

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/scottcagno/containers/pkg/bits"
	"github.com/scottcagno/containers/pkg/chain"
	"github.com/scottcagno/containers/pkg/hashtable"
	"github.com/scottcagno/containers/pkg/prime"
)

// Config parameterizes a table. KeySize, EltSize, MinNum, AlphaN and
// LogAlphaD are as in divchn.Config. LogNumLocks sets the number of
// slot-group locks to 2^LogNumLocks; a group covers every slot whose
// index is congruent mod the lock count.
type Config struct {
	KeySize     int
	EltSize     int
	MinNum      uint64
	LogNumLocks uint
	AlphaN      uint64
	LogAlphaD   uint

	CmpKey  hashtable.CompareFn
	RdcKey  hashtable.ReduceFn
	FreeElt hashtable.FreeFn
}

var (
	ErrKeySize   = errors.New("divchnmt: key size must be positive")
	ErrEltSize   = errors.New("divchnmt: element size must be positive")
	ErrAlpha     = errors.New("divchnmt: alpha numerator must be positive")
	ErrAlphaDen  = errors.New("divchnmt: log of alpha denominator must be below 64")
	ErrNumLocks  = errors.New("divchnmt: log of lock count must be below 64")
	ErrAlignment = errors.New("divchnmt: alignment must be a positive power of two")
)

// stripe is one slot-group lock, padded to its own cache line so
// contending writers on neighboring groups do not false-share.
type stripe struct {
	mu sync.RWMutex
	_  cpu.CacheLinePad
}

// Table is a division-method chaining hash table safe for concurrent
// use. Lock order is fixed: the rehash lock is acquired before any
// stripe lock, and at most one stripe lock is held at a time.
type Table struct {
	keySize      int
	eltSize      int
	eltAlignment int

	alphaN    uint64
	logAlphaD uint

	// sched, count, slots and maxNumElts are read under the rehash
	// lock in reader mode and mutated only in writer mode.
	sched      prime.Schedule
	count      uint64
	maxNumElts uint64
	slots      []*chain.Node

	numElts atomic.Uint64

	numLocks uint64
	locks    []stripe
	rehash   sync.RWMutex

	// grow coordination: one batch thread wins the writer role; the
	// others wait on growDone until the rehash completes.
	gate     sync.Mutex
	growDone *sync.Cond
	growing  bool

	ll      *chain.List
	cmpKey  hashtable.CompareFn
	rdcKey  hashtable.ReduceFn
	freeElt hashtable.FreeFn
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
		alphaN:       cfg.AlphaN,
		logAlphaD:    cfg.LogAlphaD,
		sched:        prime.NewSchedule(),
		numLocks:     bits.PowTwo(cfg.LogNumLocks),
		ll:           chain.New(cfg.KeySize, cfg.EltSize),
		cmpKey:       cfg.CmpKey,
		rdcKey:       cfg.RdcKey,
		freeElt:      cfg.FreeElt,
	}
	t.growDone = sync.NewCond(&t.gate)
	t.count = t.sched.Count()
	t.maxNumElts = bits.MulShiftSat(t.count, t.alphaN, t.logAlphaD)
	for cfg.MinNum > t.maxNumElts && t.sched.Next() {
		t.count = t.sched.Count()
		t.maxNumElts = bits.MulShiftSat(t.count, t.alphaN, t.logAlphaD)
	}
	t.slots = make([]*chain.Node, t.count)
	t.locks = make([]stripe, t.numLocks)
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
	case cfg.LogNumLocks >= 64:
		return ErrNumLocks
	}
	return nil
}

// AlignElt aligns every element block created afterwards to the given
// alignment. Called once after New, before the table is shared.
func (t *Table) AlignElt(alignment int) error {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return ErrAlignment
	}
	t.eltAlignment = alignment
	t.ll.AlignElt(alignment)
	return nil
}

// Insert inserts a batch of n key and element pairs stored
// contiguously in keys and elts, in input order; the last write of a
// duplicated key within the batch wins. Present keys are updated as
// in divchn. The net count change is published once per batch; a
// batch that pushes the count past the load bound triggers a rehash
// unless the schedule is exhausted.
func (t *Table) Insert(keys, elts []byte, n int) {
	t.rehash.RLock()
	var delta uint64
	for i := 0; i < n; i++ {
		key := keys[i*t.keySize : (i+1)*t.keySize]
		elt := elts[i*t.eltSize : (i+1)*t.eltSize]
		ix := t.hash(key)
		lk := &t.locks[ix%t.numLocks]
		lk.mu.Lock()
		head := &t.slots[ix]
		node := t.ll.SearchKey(head, key, t.cmpKey)
		if node == nil {
			t.ll.PrependNew(head, key, elt)
			delta++
		} else {
			if t.freeElt != nil {
				t.freeElt(t.ll.Elt(node))
			}
			copy(t.ll.Elt(node), elt)
		}
		lk.mu.Unlock()
	}
	total := t.numElts.Add(delta)
	grow := delta > 0 && total > t.maxNumElts && !t.sched.Exhausted()
	t.rehash.RUnlock()
	if grow {
		t.growCoord()
	}
}

// Search returns the element block associated with key, or nil. The
// returned slice aliases the in-table block; the table does not
// guarantee liveness of the block across a concurrent Delete of the
// same key.
func (t *Table) Search(key []byte) []byte {
	t.rehash.RLock()
	ix := t.hash(key)
	lk := &t.locks[ix%t.numLocks]
	lk.mu.RLock()
	node := t.ll.SearchKey(&t.slots[ix], key, t.cmpKey)
	var elt []byte
	if node != nil {
		elt = t.ll.Elt(node)
	}
	lk.mu.RUnlock()
	t.rehash.RUnlock()
	return elt
}

// Remove removes a batch of n keys, copying each present key's
// element block into the corresponding block of out without invoking
// FreeElt. Blocks of absent keys are left unchanged. Returns the
// number of keys removed.
func (t *Table) Remove(keys, out []byte, n int) uint64 {
	t.rehash.RLock()
	var removed uint64
	for i := 0; i < n; i++ {
		key := keys[i*t.keySize : (i+1)*t.keySize]
		ix := t.hash(key)
		lk := &t.locks[ix%t.numLocks]
		lk.mu.Lock()
		head := &t.slots[ix]
		node := t.ll.SearchKey(head, key, t.cmpKey)
		if node != nil {
			copy(out[i*t.eltSize:(i+1)*t.eltSize], t.ll.Elt(node))
			t.ll.Delete(head, node, nil)
			removed++
		}
		lk.mu.Unlock()
	}
	if removed != 0 {
		t.numElts.Add(^(removed - 1))
	}
	t.rehash.RUnlock()
	return removed
}

// Delete deletes a batch of n keys, releasing each present key's
// element block through FreeElt. Returns the number of keys deleted.
func (t *Table) Delete(keys []byte, n int) uint64 {
	t.rehash.RLock()
	var deleted uint64
	for i := 0; i < n; i++ {
		key := keys[i*t.keySize : (i+1)*t.keySize]
		ix := t.hash(key)
		lk := &t.locks[ix%t.numLocks]
		lk.mu.Lock()
		head := &t.slots[ix]
		node := t.ll.SearchKey(head, key, t.cmpKey)
		if node != nil {
			t.ll.Delete(head, node, t.freeElt)
			deleted++
		}
		lk.mu.Unlock()
	}
	if deleted != 0 {
		t.numElts.Add(^(deleted - 1))
	}
	t.rehash.RUnlock()
	return deleted
}

// Free releases every chain under exclusive table access. The table
// must not be used afterwards.
func (t *Table) Free() {
	t.rehash.Lock()
	for i := range t.slots {
		t.ll.Free(&t.slots[i], t.freeElt)
	}
	t.slots = nil
	t.numElts.Store(0)
	t.rehash.Unlock()
}

// Len returns the number of keys in the table. Concurrent batches may
// move the value between the read and any use of it.
func (t *Table) Len() uint64 { return t.numElts.Load() }

// Count returns the current number of slots.
func (t *Table) Count() uint64 {
	t.rehash.RLock()
	c := t.count
	t.rehash.RUnlock()
	return c
}

// CountIndex returns the position of the current slot count in the
// prime schedule.
func (t *Table) CountIndex() int {
	t.rehash.RLock()
	ix := t.sched.Index()
	t.rehash.RUnlock()
	return ix
}

// MaxLen returns the current load bound.
func (t *Table) MaxLen() uint64 {
	t.rehash.RLock()
	m := t.maxNumElts
	t.rehash.RUnlock()
	return m
}

func (t *Table) stdKey(key []byte) uint64 {
	if t.rdcKey != nil {
		return t.rdcKey(key)
	}
	return hashtable.ReduceLE(key)
}

// hash maps a key to a slot index by the division method. Callers
// hold the rehash lock, which pins count.
func (t *Table) hash(key []byte) uint64 {
	return t.stdKey(key) % t.count
}

// growCoord elects one batch thread as the rehash writer; the others
// wait until the winner's rehash completes, then re-check and return.
// The winner takes the rehash lock in writer mode, which drains every
// reader-mode batch and search, and grows with exclusive access.
func (t *Table) growCoord() {
	t.gate.Lock()
	for t.growing {
		t.growDone.Wait()
	}
	t.growing = true
	t.gate.Unlock()

	t.rehash.Lock()
	// the bound may have moved while this thread waited for the
	// writer role
	if t.numElts.Load() > t.maxNumElts && !t.sched.Exhausted() {
		t.grow()
	}
	t.rehash.Unlock()

	t.gate.Lock()
	t.growing = false
	t.growDone.Broadcast()
	t.gate.Unlock()
}

// grow is the rehash step of divchn under exclusive access: advance
// the schedule until the load bound accommodates the count or the
// schedule is exhausted, then splice every node in place into a fresh
// slot array. Nodes are never reallocated; element handles held by
// readers stay valid across the grow.
func (t *Table) grow() {
	prevCount := t.count
	n := t.numElts.Load()
	for n > t.maxNumElts && t.sched.Next() {
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
