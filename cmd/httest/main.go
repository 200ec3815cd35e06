// Command httest drives timed correctness sweeps over the hash
// tables: batched multithreaded inserts and searches across key sizes
// and load factor bounds, a single-threaded comparison run, and the
// corner cases. Run parameters come from flags or a TOML file.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/scottcagno/containers/pkg/hashtable/divchn"
	"github.com/scottcagno/containers/pkg/hashtable/divchnmt"
	"github.com/scottcagno/containers/pkg/util"
)

// Run describes one sweep. Key sizes are 8 * 2^k for k in
// [KeyPowStart, KeyPowEnd]; the load factor bound is AlphaN/2^LogAlphaD.
type Run struct {
	InsPow      uint   `toml:"ins_pow"`
	KeyPowStart uint   `toml:"key_pow_start"`
	KeyPowEnd   uint   `toml:"key_pow_end"`
	AlphaN      uint64 `toml:"alpha_n"`
	LogAlphaD   uint   `toml:"log_alpha_d"`
	Threads     int    `toml:"threads"`
	Batch       int    `toml:"batch"`
	LogNumLocks uint   `toml:"log_num_locks"`
	Corner      bool   `toml:"corner"`
}

func defaultRun() Run {
	return Run{
		InsPow:      18,
		KeyPowStart: 0,
		KeyPowEnd:   2,
		AlphaN:      2,
		LogAlphaD:   0,
		Threads:     4,
		Batch:       1000,
		LogNumLocks: 6,
		Corner:      true,
	}
}

func main() {
	cfgPath := flag.String("config", "", "TOML run description; flags override")
	insPow := flag.Uint("inserts", 0, "log2 of the number of inserts")
	threads := flag.Int("threads", 0, "writer and reader goroutines")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	run := defaultRun()
	if *cfgPath != "" {
		if _, err := toml.DecodeFile(*cfgPath, &run); err != nil {
			logger.Fatal("decode config", zap.String("path", *cfgPath), zap.Error(err))
		}
	}
	if *insPow != 0 {
		run.InsPow = *insPow
	}
	if *threads != 0 {
		run.Threads = *threads
	}

	numIns := uint64(1) << run.InsPow
	for pow := run.KeyPowStart; pow <= run.KeyPowEnd; pow++ {
		keySize := 8 << pow
		sweepMT(logger, run, keySize, numIns)
		sweepST(logger, run, keySize, numIns)
	}
	if run.Corner {
		cornerCases(logger, run)
	}
	var mem runtime.MemStats
	util.PrintStatsTab(mem)
}

// buildPairs lays out numIns contiguous keys and elements; each key
// is random except for a distinct counter in its first 8 bytes.
func buildPairs(keySize int, numIns uint64) (keys, elts []byte) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	keys = make([]byte, int(numIns)*keySize)
	elts = make([]byte, int(numIns)*8)
	util.FillRandom(r, keys)
	for i := uint64(0); i < numIns; i++ {
		binary.LittleEndian.PutUint64(util.Block(keys, int(i), keySize), i)
		binary.LittleEndian.PutUint64(util.Block(elts, int(i), 8), i)
	}
	return keys, elts
}

// sweepMT inserts all pairs from run.Threads writers in batches, then
// verifies them from as many readers.
func sweepMT(logger *zap.Logger, run Run, keySize int, numIns uint64) {
	log := logger.With(
		zap.Int("key_size", keySize),
		zap.Uint64("inserts", numIns),
		zap.Int("threads", run.Threads),
	)
	ht, err := divchnmt.New(divchnmt.Config{
		KeySize:     keySize,
		EltSize:     8,
		LogNumLocks: run.LogNumLocks,
		AlphaN:      run.AlphaN,
		LogAlphaD:   run.LogAlphaD,
	})
	if err != nil {
		log.Fatal("init", zap.Error(err))
	}
	keys, elts := buildPairs(keySize, numIns)

	pool, err := ants.NewPool(run.Threads)
	if err != nil {
		log.Fatal("pool", zap.Error(err))
	}
	defer pool.Release()

	var wg sync.WaitGroup
	start := time.Now()
	per := numIns / uint64(run.Threads)
	for w := 0; w < run.Threads; w++ {
		w := w
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			lo := uint64(w) * per
			hi := lo + per
			if w == run.Threads-1 {
				hi = numIns
			}
			for off := lo; off < hi; off += uint64(run.Batch) {
				n := uint64(run.Batch)
				if hi-off < n {
					n = hi - off
				}
				ht.Insert(
					keys[off*uint64(keySize):(off+n)*uint64(keySize)],
					elts[off*8:(off+n)*8],
					int(n),
				)
			}
		}); err != nil {
			log.Fatal("submit writer", zap.Error(err))
		}
	}
	wg.Wait()
	log.Info("mt insert",
		zap.Duration("elapsed", time.Since(start)),
		zap.Uint64("num_elts", ht.Len()),
		zap.Uint64("count", ht.Count()),
	)
	if ht.Len() != numIns {
		log.Fatal("count mismatch", zap.Uint64("want", numIns))
	}

	var bad uint64
	var mu sync.Mutex
	start = time.Now()
	for w := 0; w < run.Threads; w++ {
		w := w
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			lo := uint64(w) * per
			hi := lo + per
			if w == run.Threads-1 {
				hi = numIns
			}
			var miss uint64
			for i := lo; i < hi; i++ {
				elt := ht.Search(util.Block(keys, int(i), keySize))
				if elt == nil || binary.LittleEndian.Uint64(elt) != i {
					miss++
				}
			}
			mu.Lock()
			bad += miss
			mu.Unlock()
		}); err != nil {
			log.Fatal("submit reader", zap.Error(err))
		}
	}
	wg.Wait()
	log.Info("mt search", zap.Duration("elapsed", time.Since(start)))
	if bad != 0 {
		log.Fatal("search misses", zap.Uint64("bad", bad))
	}
	ht.Free()
}

// sweepST runs the same workload through the single-threaded table
// for comparison.
func sweepST(logger *zap.Logger, run Run, keySize int, numIns uint64) {
	log := logger.With(zap.Int("key_size", keySize), zap.Uint64("inserts", numIns))
	ht, err := divchn.New(divchn.Config{
		KeySize:   keySize,
		EltSize:   8,
		AlphaN:    run.AlphaN,
		LogAlphaD: run.LogAlphaD,
	})
	if err != nil {
		log.Fatal("init", zap.Error(err))
	}
	keys, elts := buildPairs(keySize, numIns)
	start := time.Now()
	for i := uint64(0); i < numIns; i++ {
		ht.Insert(util.Block(keys, int(i), keySize), util.Block(elts, int(i), 8))
	}
	log.Info("st insert",
		zap.Duration("elapsed", time.Since(start)),
		zap.Uint64("num_elts", ht.Len()),
		zap.Uint64("count", ht.Count()),
	)
	start = time.Now()
	for i := uint64(0); i < numIns; i++ {
		if ht.Search(util.Block(keys, int(i), keySize)) == nil {
			log.Fatal("missing key", zap.Uint64("key", i))
		}
	}
	log.Info("st search", zap.Duration("elapsed", time.Since(start)))
	ht.Free()
}

// cornerCases repeats single-key batches across key sizes 2^0..2^8
// with a 1/1024 load factor bound; the count must stay on the first
// schedule prime.
func cornerCases(logger *zap.Logger, run Run) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for pow := 0; pow <= 8; pow++ {
		keySize := 1 << pow
		key := make([]byte, keySize)
		util.FillRandom(r, key)
		ht, err := divchnmt.New(divchnmt.Config{
			KeySize:     keySize,
			EltSize:     8,
			LogNumLocks: 4,
			AlphaN:      1,
			LogAlphaD:   10,
		})
		if err != nil {
			logger.Fatal("corner init", zap.Error(err))
		}
		elt := make([]byte, 8)
		for i := uint64(0); i < 1<<10; i++ {
			binary.LittleEndian.PutUint64(elt, i)
			ht.Insert(key, elt, 1)
		}
		ok := ht.CountIndex() == 0 && ht.Count() == 1543 && ht.Len() == 1
		ht.Delete(key, 1)
		ok = ok && ht.Len() == 0 && ht.Search(key) == nil
		ht.Free()
		if !ok {
			logger.Fatal("corner case failed", zap.Int("key_size", keySize))
		}
	}
	logger.Info("corner cases", zap.String("result", "success"))
}
