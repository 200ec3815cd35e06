package util

import (
	"fmt"
	"os"
	"runtime"
	"text/tabwriter"
)

func BtoKB(b uint64) uint64 {
	return b / 1024
}

func BtoMB(b uint64) uint64 {
	return b / 1024 / 1024
}

func PrintStatsTab(mem runtime.MemStats) {
	runtime.ReadMemStats(&mem)
	w := new(tabwriter.Writer)
	w.Init(os.Stdout, 5, 4, 4, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Alloc\tTotalAlloc\tHeapAlloc\tNumGC\t")
	fmt.Fprintf(w, "%v\t%v\t%v\t%v\t\n", mem.Alloc, mem.TotalAlloc, mem.HeapAlloc, mem.NumGC)
	fmt.Fprintln(w, "-----\t-----\t-----\t-----\t")
	w.Flush()
}
