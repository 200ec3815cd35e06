// Package openaddr implements a hash table with byte-block keys and
// elements, hashing by the multiplication method into a power-of-two
// number of slots and resolving collisions by open addressing with
// double hashing. Removed keys leave placeholders behind; growth
// doubles the slot count, reinserts the live entries and drops the
// placeholders.
//
// The expected number of probes in a search is bounded by
// 1/(1 - alpha) under the uniform hashing assumption. After the
// maximal count of 2^63 slots is reached the alpha parameter no
// longer bounds the load factor, which stays below 1 due to open
// addressing. The table is not safe for concurrent use.
package openaddr

import (
	"bytes"
	"errors"

	"github.com/scottcagno/containers/pkg/bits"
	"github.com/scottcagno/containers/pkg/hashtable"
)

// fprime and sprime scatter the reduced key into the first and second
// hash values; both exceed 2^63, so the multiplications use the full
// word.
const (
	fprime uint64 = 18446744073709551557 // 2^64 - 59
	sprime uint64 = 18446744073709551533 // 2^64 - 83
)

const (
	initLogCount = 10
	maxLogCount  = 63
)

// Config parameterizes a table; the fields follow divchn.Config. The
// multiplication method needs no key comparator: entries carry both
// hash values and fall back to byte-wise key comparison.
type Config struct {
	KeySize   int
	EltSize   int
	AlphaN    uint64
	LogAlphaD uint

	RdcKey  hashtable.ReduceFn
	FreeElt hashtable.FreeFn
}

var (
	ErrKeySize   = errors.New("openaddr: key size must be positive")
	ErrEltSize   = errors.New("openaddr: element size must be positive")
	ErrAlpha     = errors.New("openaddr: alpha numerator must be positive")
	ErrAlphaDen  = errors.New("openaddr: log of alpha denominator must be below 64")
	ErrAlignment = errors.New("openaddr: alignment must be a positive power of two")
)

// entry is one occupied slot: the first and second hash values of the
// key, and the key and element bytes in one contiguous block. The
// hash values make slot indices recomputable on growth without
// re-reducing keys, and filter probe comparisons before the byte-wise
// check. The table-wide placeholder entry has a nil block.
type entry struct {
	fval  uint64
	sval  uint64
	block []byte
}

// Table is a multiplication-method open-addressing hash table.
type Table struct {
	keySize      int
	eltSize      int
	eltOffset    int
	logCount     uint
	count        uint64
	maxNumProbes uint64
	maxNumElts   uint64
	numElts      uint64
	numPhs       uint64
	alphaN       uint64
	logAlphaD    uint
	ph           *entry
	slots        []*entry
	rdcKey       hashtable.ReduceFn
	freeElt      hashtable.FreeFn
}

// New returns an initialized table with 2^10 slots.
func New(cfg Config) (*Table, error) {
	switch {
	case cfg.KeySize <= 0:
		return nil, ErrKeySize
	case cfg.EltSize <= 0:
		return nil, ErrEltSize
	case cfg.AlphaN == 0:
		return nil, ErrAlpha
	case cfg.LogAlphaD >= 64:
		return nil, ErrAlphaDen
	}
	t := &Table{
		keySize:   cfg.KeySize,
		eltSize:   cfg.EltSize,
		eltOffset: cfg.KeySize,
		logCount:  initLogCount,
		count:     bits.PowTwo(initLogCount),
		ph:        &entry{},
		alphaN:    cfg.AlphaN,
		logAlphaD: cfg.LogAlphaD,
		rdcKey:    cfg.RdcKey,
		freeElt:   cfg.FreeElt,
	}
	t.maxNumElts = bits.MulShiftSat(t.count, t.alphaN, t.logAlphaD)
	t.slots = make([]*entry, t.count)
	return t, nil
}

// AlignElt aligns every element block created afterwards. Called once
// after New and before any other operation.
func (t *Table) AlignElt(alignment int) error {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return ErrAlignment
	}
	t.eltOffset = (t.keySize + (alignment - 1)) &^ (alignment - 1)
	return nil
}

func (t *Table) key(e *entry) []byte { return e.block[:t.keySize] }

func (t *Table) elt(e *entry) []byte {
	return e.block[t.eltOffset : t.eltOffset+t.eltSize]
}

func (t *Table) stdKey(key []byte) uint64 {
	if t.rdcKey != nil {
		return t.rdcKey(key)
	}
	return hashtable.ReduceLE(key)
}

// first probe index: the top logCount bits of key times fprime.
func (t *Table) probeStart(fval uint64) uint64 {
	return fval >> (64 - t.logCount)
}

// probe stride: derived from the second hash value and made odd, so
// the probe sequence cycles through all 2^logCount slots.
func (t *Table) probeStride(sval uint64) uint64 {
	return sval>>(64-t.logCount) | 1
}

// Insert inserts a key and an associated element, both copied into
// the table. A present key has its element block released through
// FreeElt and overwritten. Growth doubles the count while the live
// and placeholder entries together exceed the load bound.
func (t *Table) Insert(key, elt []byte) {
	std := t.stdKey(key)
	fval := bits.MulModPowTwo(std, fprime)
	sval := bits.MulModPowTwo(std, sprime)
	t.insertVals(key, elt, fval, sval)
	if t.numElts+t.numPhs > t.maxNumElts && t.logCount < maxLogCount {
		t.grow()
	}
}

func (t *Table) insertVals(key, elt []byte, fval, sval uint64) {
	mask := t.count - 1
	ix := t.probeStart(fval)
	d := t.probeStride(sval)
	var probes uint64
	reuse := uint64(0)
	haveReuse := false
	for {
		e := t.slots[ix]
		if e == nil {
			break
		}
		if e == t.ph {
			if !haveReuse {
				reuse = ix
				haveReuse = true
			}
		} else if e.fval == fval && e.sval == sval && bytes.Equal(t.key(e), key) {
			if t.freeElt != nil {
				t.freeElt(t.elt(e))
			}
			copy(t.elt(e), elt)
			return
		}
		probes++
		if probes > mask {
			if haveReuse {
				break // every slot probed; placeholders remain
			}
			// every slot holds a live entry; the alpha bound permits
			// full occupancy, so force one doubling and retry
			t.growForced()
			t.insertVals(key, elt, fval, sval)
			return
		}
		ix = (ix + d) & mask
	}
	if haveReuse {
		ix = reuse
		t.numPhs--
	}
	e := &entry{fval: fval, sval: sval, block: make([]byte, t.eltOffset+t.eltSize)}
	copy(e.block[:t.keySize], key)
	copy(e.block[t.eltOffset:], elt)
	t.slots[ix] = e
	t.numElts++
	if probes > t.maxNumProbes {
		t.maxNumProbes = probes
	}
}

// search returns the slot index of key, or no slot. Probing stops at
// a never-used slot or past the longest probe sequence seen.
func (t *Table) search(key []byte) (uint64, bool) {
	std := t.stdKey(key)
	fval := bits.MulModPowTwo(std, fprime)
	sval := bits.MulModPowTwo(std, sprime)
	mask := t.count - 1
	ix := t.probeStart(fval)
	d := t.probeStride(sval)
	var probes uint64
	for {
		e := t.slots[ix]
		if e == nil {
			return 0, false
		}
		if e != t.ph && e.fval == fval && e.sval == sval && bytes.Equal(t.key(e), key) {
			return ix, true
		}
		if probes >= t.maxNumProbes {
			return 0, false
		}
		probes++
		ix = (ix + d) & mask
	}
}

// Search returns the element block associated with key, or nil. The
// returned slice aliases the in-table block and stays valid until the
// key is removed or deleted or the table is freed; growth reuses the
// entry blocks.
func (t *Table) Search(key []byte) []byte {
	ix, ok := t.search(key)
	if !ok {
		return nil
	}
	return t.elt(t.slots[ix])
}

// Remove removes a key by copying its element block into elt without
// invoking FreeElt, leaving a placeholder. If the key is absent, elt
// is left unchanged and Remove reports false.
func (t *Table) Remove(key, elt []byte) bool {
	ix, ok := t.search(key)
	if !ok {
		return false
	}
	copy(elt, t.elt(t.slots[ix]))
	t.slots[ix] = t.ph
	t.numElts--
	t.numPhs++
	return true
}

// Delete deletes a key, releasing its element block through FreeElt
// and leaving a placeholder. Reports whether the key was present.
func (t *Table) Delete(key []byte) bool {
	ix, ok := t.search(key)
	if !ok {
		return false
	}
	if t.freeElt != nil {
		t.freeElt(t.elt(t.slots[ix]))
	}
	t.slots[ix] = t.ph
	t.numElts--
	t.numPhs++
	return true
}

// Free releases every live entry through FreeElt and drops the slot
// array. The table must not be used afterwards.
func (t *Table) Free() {
	for _, e := range t.slots {
		if e != nil && e != t.ph && t.freeElt != nil {
			t.freeElt(t.elt(e))
		}
	}
	t.slots = nil
	t.numElts = 0
	t.numPhs = 0
}

// Len returns the number of keys in the table.
func (t *Table) Len() uint64 { return t.numElts }

// Count returns the current number of slots.
func (t *Table) Count() uint64 { return t.count }

// growForced doubles the slot count once regardless of the load
// bound; a table of 2^63 fully occupied slots is unrecoverable.
func (t *Table) growForced() {
	if t.logCount == maxLogCount {
		panic("openaddr: table full at maximal count")
	}
	t.rebuild()
}

// grow doubles the slot count until the live and placeholder entries
// fit the load bound or the maximal count is reached.
func (t *Table) grow() {
	for t.numElts+t.numPhs > t.maxNumElts && t.logCount < maxLogCount {
		t.rebuild()
	}
}

// rebuild doubles the slot count, re-places every live entry from its
// stored hash values and drops the placeholders. Entry blocks are
// reused, so element handles stay valid across the rebuild.
func (t *Table) rebuild() {
	prev := t.slots
	t.logCount++
	t.count = bits.PowTwo(t.logCount)
	t.maxNumElts = bits.MulShiftSat(t.count, t.alphaN, t.logAlphaD)
	t.numPhs = 0
	t.maxNumProbes = 0
	t.slots = make([]*entry, t.count)
	mask := t.count - 1
	for _, e := range prev {
		if e == nil || e == t.ph {
			continue
		}
		ix := t.probeStart(e.fval)
		d := t.probeStride(e.sval)
		var probes uint64
		for t.slots[ix] != nil {
			probes++
			ix = (ix + d) & mask
		}
		t.slots[ix] = e
		if probes > t.maxNumProbes {
			t.maxNumProbes = probes
		}
	}
}
