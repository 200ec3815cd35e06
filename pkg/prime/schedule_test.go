package prime

import (
	"testing"

	"github.com/scottcagno/containers/pkg/util"
)

// spot checks across the part groups
var knownPrimes = map[int]uint64{
	0:  1543,
	5:  48673,
	6:  88843,
	36: 3221225479,
	38: 6442451311,
	86: 419189283369523,
}

func TestScheduleFirst(t *testing.T) {
	s := NewSchedule()
	util.AssertExpected(t, uint64(1543), s.Count())
	util.AssertExpected(t, 0, s.Index())
	util.AssertExpected(t, false, s.Exhausted())
}

func TestScheduleKnownPrimes(t *testing.T) {
	s := NewSchedule()
	for {
		if want, ok := knownPrimes[s.Index()]; ok {
			util.AssertExpected(t, want, s.Count())
		}
		if !s.Next() {
			break
		}
	}
}

func TestScheduleMonotoneDoubling(t *testing.T) {
	s := NewSchedule()
	prev := s.Count()
	n := 1
	for s.Next() {
		cur := s.Count()
		if cur <= prev {
			t.Fatalf("schedule not increasing at index %d: %d after %d", s.Index(), cur, prev)
		}
		if prev <= (^uint64(0))/4 && cur >= 4*prev {
			t.Fatalf("schedule gap too large at index %d: %d after %d", s.Index(), cur, prev)
		}
		prev = cur
		n++
	}
	util.AssertExpected(t, 54, n)
	util.AssertExpected(t, uint64(15769474759331449193), prev)
}

func TestScheduleExhaustion(t *testing.T) {
	s := NewSchedule()
	for s.Next() {
	}
	util.AssertExpected(t, true, s.Exhausted())
	last := s.Count()
	// exhaustion is sticky and leaves the current prime in place
	util.AssertExpected(t, false, s.Next())
	util.AssertExpected(t, last, s.Count())
	util.AssertExpected(t, uint64(15769474759331449193), last)
}
