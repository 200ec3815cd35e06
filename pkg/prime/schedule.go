// Package prime provides the fixed schedule of slot counts used by the
// division-method hash tables. The schedule is an increasing sequence
// of primes, approximately doubling in magnitude and deliberately not
// too close to the powers of 2 and 10, to avoid hashing regularities
// due to the structure of data. Each prime is stored as 16-bit parts
// and rebuilt by OR-ing the parts at 16-bit strides, which keeps the
// table compact and the construction portable across word widths.
package prime

import "math/bits"

// parts stores the primes in the increasing order, grouped by the
// number of 16-bit parts per prime.
var parts = [6*1 + 16*(2+3+4)]uint16{
	0x0607,                         /* 1543 */
	0x0c2f,                         /* 3119 */
	0x1843,                         /* 6211 */
	0x3037,                         /* 12343 */
	0x5dad,                         /* 23981 */
	0xbe21,                         /* 48673 */
	0x5b0b, 0x0001,                 /* 88843 */
	0xd8d5, 0x0002,                 /* 186581 */
	0xc219, 0x0005,                 /* 377369 */
	0x0077, 0x000c,                 /* 786551 */
	0xa243, 0x0016,                 /* 1483331 */
	0x2029, 0x0031,                 /* 3219497 */
	0xcc21, 0x005f,                 /* 6278177 */
	0x5427, 0x00bf,                 /* 12538919 */
	0x037f, 0x0180,                 /* 25166719 */
	0x42bb, 0x030f,                 /* 51331771 */
	0x1c75, 0x06b7,                 /* 112663669 */
	0x96ad, 0x0c98,                 /* 211326637 */
	0x96b7, 0x1898,                 /* 412653239 */
	0xc10f, 0x2ecf,                 /* 785367311 */
	0x425b, 0x600f,                 /* 1611612763 */
	0x0007, 0xc000,                 /* 3221225479 */
	0x016f, 0x8000, 0x0001,         /* 6442451311 */
	0x9345, 0xffc8, 0x0002,         /* 12881269573 */
	0x5523, 0xf272, 0x0005,         /* 25542415651 */
	0x1575, 0x0a63, 0x000c,         /* 51713873269 */
	0x22fb, 0xca07, 0x001b,         /* 119353582331 */
	0xc513, 0x4d6b, 0x0031,         /* 211752305939 */
	0xa6cd, 0x50f3, 0x0061,         /* 417969972941 */
	0xa021, 0x5460, 0x00be,         /* 817459404833 */
	0xea29, 0x7882, 0x0179,         /* 1621224516137 */
	0xeaaf, 0x7c3d, 0x02f5,         /* 3253374675631 */
	0xab5f, 0x5a69, 0x05ff,         /* 6594291673951 */
	0x6b1f, 0x29ef, 0x0c24,         /* 13349461912351 */
	0xc81b, 0x35a7, 0x17fe,         /* 26380589320219 */
	0x57b7, 0xccbe, 0x2ffb,         /* 52758518323127 */
	0xc8fb, 0x1da8, 0x6bf3,         /* 118691918825723 */
	0x82c3, 0x2c9f, 0xc2cc,         /* 214182177768131 */
	0x3233, 0x1c54, 0x7d40, 0x0001, /* 419189283369523 */
	0x60ad, 0x46a1, 0xf55e, 0x0002, /* 832735214133421 */
	0x6bab, 0x40c4, 0xf12a, 0x0005, /* 1672538661088171 */
	0xb24d, 0x6765, 0x38b5, 0x000b, /* 3158576518771277 */
	0x789f, 0xfd94, 0xc6b2, 0x0017, /* 6692396525189279 */
	0x0d35, 0x5443, 0xff54, 0x0030, /* 13791536538127669 */
	0x2465, 0x74f9, 0x42d1, 0x005e, /* 26532115188884581 */
	0xd017, 0x90c7, 0x37b3, 0x00c6, /* 55793289756397591 */
	0x5055, 0x5a82, 0x64df, 0x0193, /* 113545326073368661 */
	0x6f8f, 0x423b, 0x8949, 0x0304, /* 217449629757435791 */
	0xd627, 0x08e0, 0x0b2f, 0x05fe, /* 431794910914467367 */
	0xbbc1, 0x662c, 0x4d90, 0x0bad, /* 841413987972987841 */
	0xf7d3, 0x45a1, 0x8ccb, 0x185d, /* 1755714234418853843 */
	0xc647, 0x3c91, 0x46b2, 0x2e9b, /* 3358355678469146183 */
	0x58a1, 0xbd96, 0x2836, 0x5f8c, /* 6884922145916737697 */
	0x8969, 0x4c70, 0x6dbe, 0xdad8, /* 15769474759331449193 */
}

var partsPerPrime = [4]int{1, 2, 3, 4}

var partsAccCounts = [4]int{
	6,
	6 + 16*2,
	6 + 16*(2 + 3),
	6 + 16*(2 + 3 + 4),
}

const buildShift = 16

// wordBit is the width of the word the schedule is built into.
const wordBit = 64

// Schedule walks the prime sequence. The zero value is positioned on
// the first prime, as is the schedule NewSchedule returns. A schedule
// advances monotonically; once an advance fails the schedule is
// exhausted and stays exhausted.
type Schedule struct {
	ix        int // position in parts
	groupIx   int // position in partsPerPrime and partsAccCounts
	exhausted bool
}

// NewSchedule returns a schedule positioned on the first prime.
func NewSchedule() Schedule {
	return Schedule{}
}

// Index returns the current position in the parts sequence; the first
// prime is at index 0.
func (s *Schedule) Index() int { return s.ix }

// Exhausted reports whether the schedule has run past its last
// representable prime. Once true, Count keeps returning the last
// prime that was current.
func (s *Schedule) Exhausted() bool { return s.exhausted }

// Count builds and returns the current prime by OR-ing its 16-bit
// parts at 16-bit strides.
func (s *Schedule) Count() uint64 {
	var p uint64
	for i := 0; i < partsPerPrime[s.groupIx]; i++ {
		p |= uint64(parts[s.ix+i]) << (i * buildShift)
	}
	return p
}

// Next advances to the next prime and reports whether the advance
// succeeded. A failed advance marks the schedule exhausted; the
// current prime is unchanged in that case.
func (s *Schedule) Next() bool {
	if s.exhausted {
		return false
	}
	ix := s.ix + partsPerPrime[s.groupIx]
	groupIx := s.groupIx
	if groupIx < len(partsAccCounts)-1 && ix == partsAccCounts[groupIx] {
		groupIx++
	}
	if ix == len(parts) || overflows(ix, partsPerPrime[groupIx]) {
		s.exhausted = true
		return false
	}
	s.ix = ix
	s.groupIx = groupIx
	return true
}

// overflows reports whether the prime starting at ix with count parts
// exceeds the word width; the bit length of the top part plus the
// stride of the parts below it must fit in the word.
func overflows(ix, count int) bool {
	top := parts[ix+count-1]
	return bits.Len16(top)+(count-1)*buildShift > wordBit
}
