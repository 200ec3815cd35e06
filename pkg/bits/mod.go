// Package bits provides overflow-safe integer and modular arithmetic
// over uint64 words. All routines are integer-only; the load-factor
// bound of the hash tables and the modular reductions of memory
// blocks go through the double-word multiply in this package rather
// than through any floating-point path.
package bits

import (
	"encoding/binary"
	stdbits "math/bits"
)

const wordBit = 64

// MulExt multiplies a and b and returns the high and low words of the
// 128-bit product.
func MulExt(a, b uint64) (hi, lo uint64) {
	return stdbits.Mul64(a, b)
}

// MulShiftSat computes floor(n * num / 2^logDen), saturating at the
// maximal uint64 value when the shifted high word of the product is
// non-zero. logDen is less than 64; a logDen of zero makes the result
// n * num with saturation.
func MulShiftSat(n, num uint64, logDen uint) uint64 {
	hi, lo := stdbits.Mul64(n, num)
	if hi>>logDen != 0 {
		return ^uint64(0) // saturate
	}
	// hi << 64 is 0, so logDen of zero needs no special case
	return lo>>logDen | hi<<(wordBit-logDen)
}

// PowTwo returns the kth power of two; k is less than 64.
func PowTwo(k uint) uint64 {
	if k >= wordBit {
		panic("bits: power of two exceeds word")
	}
	return 1 << k
}

// SumMod computes (a + b) mod n without overflow. n is non-zero.
func SumMod(a, b, n uint64) uint64 {
	a %= n
	b %= n
	if a >= n-b && b != 0 {
		return a - (n - b)
	}
	return a + b
}

// MulMod computes (a * b) mod n without overflow. n is non-zero.
func MulMod(a, b, n uint64) uint64 {
	hi, lo := stdbits.Mul64(a%n, b%n)
	// hi < n, so the 128-bit division cannot overflow
	_, rem := stdbits.Div64(hi, lo, n)
	return rem
}

// PowMod computes a^k mod n without overflow by square-and-multiply.
// n is non-zero.
func PowMod(a, k, n uint64) uint64 {
	r := uint64(1 % n)
	a %= n
	for k > 0 {
		if k&1 == 1 {
			r = MulMod(r, a, n)
		}
		a = MulMod(a, a, n)
		k >>= 1
	}
	return r
}

// MulModPowTwo computes (a * b) mod 2^64, the low word of the product.
func MulModPowTwo(a, b uint64) uint64 {
	_, lo := stdbits.Mul64(a, b)
	return lo
}

// MemMod computes the value of a memory block mod n, treating the
// bytes of the block in the little-endian order regardless of the
// host order. n is non-zero.
func MemMod(s []byte, n uint64) uint64 {
	var r uint64
	for i := len(s) - 1; i >= 0; i-- {
		r = SumMod(MulMod(r, 256, n), uint64(s[i]), n)
	}
	return r
}

// FastMemMod computes the value of a memory block mod n in word
// increments: full 8-byte words first in the little-endian order,
// with the residual trailing bytes forming the most significant part.
// The result equals MemMod on any host. n is non-zero.
func FastMemMod(s []byte, n uint64) uint64 {
	rem := len(s) % 8
	words := len(s) - rem
	wordMod := SumMod(^uint64(0)%n, 1, n) // 2^64 mod n
	var r uint64
	if rem > 0 {
		var buf [8]byte
		copy(buf[:], s[words:])
		r = binary.LittleEndian.Uint64(buf[:]) % n
	}
	for i := words - 8; i >= 0; i -= 8 {
		r = SumMod(MulMod(r, wordMod, n), binary.LittleEndian.Uint64(s[i:])%n, n)
	}
	return r
}

// RepresentUint represents a non-zero n as u * 2^k with u odd.
func RepresentUint(n uint64) (k uint, u uint64) {
	k = uint(stdbits.TrailingZeros64(n))
	return k, n >> k
}
