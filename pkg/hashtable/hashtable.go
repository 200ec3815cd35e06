// Package hashtable holds the callback contracts and default key
// reductions shared by the table implementations in its
// subpackages. Keys and elements are fixed-size byte blocks; typed
// facades can wrap the byte core.
package hashtable

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// CompareFn reports zero iff the two blocks are equal. A nil CompareFn
// stands for byte-wise equality.
type CompareFn func(a, b []byte) int

// ReduceFn reduces a key block of arbitrary size to one word used for
// hashing. A nil ReduceFn stands for ReduceLE.
type ReduceFn func(key []byte) uint64

// FreeFn releases resources owned by an element block. It must leave
// an inert block of the same size behind; the table may overwrite or
// drop the block afterwards.
type FreeFn func(elt []byte)

// ReduceLE interprets the key bytes little-endian and sums them into
// one word mod 2^64, consuming whole 8-byte words after a residual
// prefix. The byte order of the host is irrelevant because the input
// bytes are consumed in a fixed order. Regular bit patterns in keys
// carry through; supply a custom ReduceFn to break such regularities.
func ReduceLE(key []byte) uint64 {
	rem := len(key) % 8
	var buf [8]byte
	copy(buf[:], key[:rem])
	sum := binary.LittleEndian.Uint64(buf[:])
	for b := key[rem:]; len(b) >= 8; b = b[8:] {
		sum += binary.LittleEndian.Uint64(b)
	}
	return sum
}

// ReduceXX reduces a key with 64-bit xxHash. Unlike ReduceLE it
// scrambles regular key patterns, at a small per-key cost.
func ReduceXX(key []byte) uint64 {
	return xxhash.Sum64(key)
}
