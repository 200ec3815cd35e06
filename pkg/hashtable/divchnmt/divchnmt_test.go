package divchnmt

import (
	"encoding/binary"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scottcagno/containers/pkg/util"
)

const batchCount = 1000

// keyBuf lays out n contiguous keySize-byte keys holding start+i in
// the first 8 bytes, mirroring the batch buffers the table consumes.
func keyBuf(keySize, n int, start uint64) []byte {
	b := make([]byte, keySize*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(util.Block(b, i, keySize)[:8], start+uint64(i))
	}
	return b
}

func eltBuf(n int, start uint64) []byte {
	b := make([]byte, 8*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(util.Block(b, i, 8), start+uint64(i))
	}
	return b
}

// insertRange feeds [start, start+count) through batched inserts.
func insertRange(t *Table, keySize int, start, count uint64) {
	for off := uint64(0); off < count; off += batchCount {
		n := uint64(batchCount)
		if count-off < n {
			n = count - off
		}
		keys := keyBuf(keySize, int(n), start+off)
		elts := eltBuf(int(n), start+off)
		t.Insert(keys, elts, int(n))
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{KeySize: 0, EltSize: 8, AlphaN: 1})
	require.ErrorIs(t, err, ErrKeySize)
	_, err = New(Config{KeySize: 8, EltSize: 8, AlphaN: 1, LogNumLocks: 64})
	require.ErrorIs(t, err, ErrNumLocks)
}

func TestSingleBatchRoundTrip(t *testing.T) {
	ht, err := New(Config{KeySize: 8, EltSize: 8, AlphaN: 1, LogNumLocks: 4})
	require.NoError(t, err)
	insertRange(ht, 8, 0, 1000)
	require.Equal(t, uint64(1000), ht.Len())
	require.Equal(t, uint64(1543), ht.Count())
	for i := uint64(0); i < 1000; i++ {
		elt := ht.Search(keyBuf(8, 1, i))
		require.NotNil(t, elt)
		require.Equal(t, i, binary.LittleEndian.Uint64(elt))
	}
	require.Nil(t, ht.Search(keyBuf(8, 1, 1000)))
	ht.Free()
}

func TestBatchUpdateLastWins(t *testing.T) {
	ht, _ := New(Config{KeySize: 8, EltSize: 8, AlphaN: 1, LogNumLocks: 2})
	// one key repeated through a batch: input order applies, the last
	// write wins, and the count publishes one insertion
	keys := make([]byte, 0, 8*10)
	elts := make([]byte, 0, 8*10)
	for i := uint64(0); i < 10; i++ {
		keys = append(keys, keyBuf(8, 1, 42)...)
		elts = append(elts, eltBuf(1, 100+i)...)
	}
	ht.Insert(keys, elts, 10)
	require.Equal(t, uint64(1), ht.Len())
	require.Equal(t, uint64(109), binary.LittleEndian.Uint64(ht.Search(keyBuf(8, 1, 42))))
	ht.Free()
}

// Four writers insert disjoint ranges in batches of 1000; the total
// count is exact and every key is found by parallel readers.
func TestParallelWritersThenReaders(t *testing.T) {
	perWriter := uint64(1 << 18)
	if testing.Short() {
		perWriter = 1 << 14
	}
	const writers = 4
	ht, err := New(Config{KeySize: 8, EltSize: 8, AlphaN: 2, LogNumLocks: 6})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			insertRange(ht, 8, uint64(w)*perWriter, perWriter)
		}(w)
	}
	wg.Wait()
	require.Equal(t, writers*perWriter, ht.Len())
	require.LessOrEqual(t, ht.Len(), ht.MaxLen())

	var missing [writers]uint64
	for r := 0; r < writers; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for i := uint64(r) * perWriter; i < uint64(r+1)*perWriter; i++ {
				elt := ht.Search(keyBuf(8, 1, i))
				if elt == nil || binary.LittleEndian.Uint64(elt) != i {
					missing[r]++
				}
			}
		}(r)
	}
	wg.Wait()
	for r := 0; r < writers; r++ {
		require.Zero(t, missing[r])
	}
	ht.Free()
}

// One writer inserts while one reader searches the same range; after
// joining, every key is present exactly once.
func TestConcurrentWriterReader(t *testing.T) {
	count := uint64(1 << 17)
	if testing.Short() {
		count = 1 << 13
	}
	ht, _ := New(Config{KeySize: 8, EltSize: 8, AlphaN: 1, LogNumLocks: 5})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		insertRange(ht, 8, 0, count)
	}()
	go func() {
		defer wg.Done()
		r := rand.New(rand.NewSource(5))
		for i := 0; i < int(count); i++ {
			k := uint64(r.Intn(int(count)))
			if elt := ht.Search(keyBuf(8, 1, k)); elt != nil {
				// a visible key always carries its final value
				if binary.LittleEndian.Uint64(elt) != k {
					t.Errorf("key %d carries value %d", k, binary.LittleEndian.Uint64(elt))
					return
				}
			}
		}
	}()
	wg.Wait()

	require.Equal(t, count, ht.Len())
	for i := uint64(0); i < count; i++ {
		elt := ht.Search(keyBuf(8, 1, i))
		require.NotNil(t, elt)
		require.Equal(t, i, binary.LittleEndian.Uint64(elt))
	}
	ht.Free()
}

// Concurrent batches that hammer one key range: updates serialize per
// stripe and the count never double-publishes an insertion.
func TestConcurrentUpdatesSameKeys(t *testing.T) {
	const keys = 512
	const writers = 4
	ht, _ := New(Config{KeySize: 8, EltSize: 8, AlphaN: 4, LogNumLocks: 3})
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for round := 0; round < 20; round++ {
				insertRange(ht, 8, 0, keys)
			}
		}(w)
	}
	wg.Wait()
	require.Equal(t, uint64(keys), ht.Len())
	ht.Free()
}

// Corner cases, per key sizes 2^0..2^8: repeated single-pair batches
// of one key leave the count on the first prime.
func TestCornerCases(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for pow := 0; pow <= 8; pow++ {
		keySize := 1 << pow
		key := make([]byte, keySize)
		util.FillRandom(r, key)
		ht, err := New(Config{
			KeySize: keySize, EltSize: 8,
			LogNumLocks: 4, AlphaN: 1, LogAlphaD: 10,
		})
		require.NoError(t, err)
		var last []byte
		for i := uint64(0); i < 100; i++ {
			last = eltBuf(1, i)
			ht.Insert(key, last, 1)
		}
		require.Equal(t, 0, ht.CountIndex())
		require.Equal(t, uint64(1543), ht.Count())
		require.Equal(t, uint64(1), ht.Len())
		require.Equal(t, last, ht.Search(key))
		require.Equal(t, uint64(1), ht.Delete(key, 1))
		require.Equal(t, uint64(1543), ht.Count())
		require.Equal(t, uint64(0), ht.Len())
		require.Nil(t, ht.Search(key))
		ht.Free()
	}
}

func TestBatchRemoveDelete(t *testing.T) {
	var freed int
	var mu sync.Mutex
	ht, _ := New(Config{
		KeySize: 8, EltSize: 8, AlphaN: 1, LogNumLocks: 4,
		FreeElt: func(elt []byte) { mu.Lock(); freed++; mu.Unlock() },
	})
	insertRange(ht, 8, 0, 2000)
	require.Equal(t, uint64(2000), ht.Len())

	// remove the first half: elements come out, FreeElt does not run
	keys := keyBuf(8, 1000, 0)
	out := make([]byte, 8*1000)
	require.Equal(t, uint64(1000), ht.Remove(keys, out, 1000))
	for i := 0; i < 1000; i++ {
		require.Equal(t, uint64(i), binary.LittleEndian.Uint64(util.Block(out, i, 8)))
	}
	require.Equal(t, uint64(1000), ht.Len())
	require.Zero(t, freed)

	// removing them again is a no-op that leaves out untouched
	copy(out, eltBuf(1000, 77777))
	require.Equal(t, uint64(0), ht.Remove(keys, out, 1000))
	require.Equal(t, uint64(77777), binary.LittleEndian.Uint64(util.Block(out, 0, 8)))

	// delete the second half through FreeElt
	require.Equal(t, uint64(1000), ht.Delete(keyBuf(8, 1000, 1000), 1000))
	require.Equal(t, uint64(0), ht.Len())
	require.Equal(t, 1000, freed)
	ht.Free()
}

// A grow triggered mid-load keeps previously returned handles aliased
// to their nodes.
func TestAddressStabilityAcrossGrow(t *testing.T) {
	ht, _ := New(Config{KeySize: 8, EltSize: 8, AlphaN: 1, LogAlphaD: 1, LogNumLocks: 4})
	ht.Insert(keyBuf(8, 1, 7), eltBuf(1, 70), 1)
	h := ht.Search(keyBuf(8, 1, 7))
	h[0] = 0xab
	insertRange(ht, 8, 100, 5000)
	require.Greater(t, ht.Count(), uint64(1543))
	got := ht.Search(keyBuf(8, 1, 7))
	require.Equal(t, byte(0xab), got[0])
	got[1] = 0xcd
	require.Equal(t, byte(0xcd), h[1])
	ht.Free()
}
