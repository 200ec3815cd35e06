package hashtable

import (
	"encoding/binary"
	"testing"

	"github.com/scottcagno/containers/pkg/util"
)

func TestReduceLE(t *testing.T) {
	// an 8-byte key reduces to its little-endian value
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, 0xdeadbeef)
	util.AssertExpected(t, uint64(0xdeadbeef), ReduceLE(b))

	// a residual prefix is consumed first, zero-extended
	util.AssertExpected(t, uint64(0x0607), ReduceLE([]byte{0x07, 0x06}))

	// whole words are summed mod 2^64
	b = make([]byte, 16)
	binary.LittleEndian.PutUint64(b, 3)
	binary.LittleEndian.PutUint64(b[8:], 4)
	util.AssertExpected(t, uint64(7), ReduceLE(b))

	// prefix then words
	b = make([]byte, 10)
	b[0] = 1                                  // prefix 2 bytes -> 1
	binary.LittleEndian.PutUint64(b[2:], 10)  // one word
	util.AssertExpected(t, uint64(11), ReduceLE(b))

	util.AssertExpected(t, uint64(0), ReduceLE(nil))
}

func TestReduceXX(t *testing.T) {
	a := ReduceXX([]byte("reproducibility"))
	b := ReduceXX([]byte("reproducibility"))
	c := ReduceXX([]byte("eruct"))
	util.AssertExpected(t, a, b)
	util.AssertTrue(t, a != c)
}
