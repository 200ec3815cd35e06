package util

import (
	"fmt"
	"math/rand"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

func Trace() string {
	pc := make([]uintptr, 10) // at least 1 entry needed
	runtime.Callers(3, pc)
	f := runtime.FuncForPC(pc[0])
	file, line := f.FileLine(pc[0])
	sfile := strings.Split(file, "/")
	sname := strings.Split(f.Name(), "/")
	return fmt.Sprintf("[%s:%d %s]", sfile[len(sfile)-1], line, sname[len(sname)-1])
}

func AssertExpected(t *testing.T, expected, got interface{}) bool {
	if !reflect.DeepEqual(expected, got) {
		t.Errorf("error, expected: %v, got: %v\n", expected, got)
		return false
	}
	return true
}

func AssertTrue(t *testing.T, got interface{}) bool {
	return AssertExpected(t, true, got)
}

func AssertNil(t *testing.T, got interface{}) bool {
	return AssertExpected(t, nil, got)
}

// Block returns the ith size-byte block of a contiguous run of blocks.
// It is the test-side view of the batched key and element buffers the
// tables consume.
func Block(b []byte, i, size int) []byte {
	return b[i*size : (i+1)*size : (i+1)*size]
}

// FillRandom fills b from r, leaving deterministic tests seedable.
func FillRandom(r *rand.Rand, b []byte) {
	for i := range b {
		b[i] = byte(r.Intn(256))
	}
}
