package sort

import (
	"bufio"
	"fmt"
	"io"
)

// Dump writes the histogram table, the split totals, and the current keys
// and permutation to w, one entry per line. It is meant for debugging
// small sorts.
func (s *Sorter) Dump(w io.Writer) error {
	p := s.params
	histograms := make([]uint32, p.TableSize())
	globsum := make([]uint32, p.HistoSplit)
	if err := s.queue.EnqueueRead(s.histograms, 0, histograms); err != nil {
		return err
	}
	if err := s.queue.EnqueueRead(s.globsum, 0, globsum); err != nil {
		return err
	}
	r, err := s.FetchResults()
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	for d := 0; d < p.Radix(); d++ {
		for gr := 0; gr < p.Groups; gr++ {
			for it := 0; it < p.Items; it++ {
				fmt.Fprintf(bw, "radix=%v group=%v item=%v histo=%v\n", d, gr, it, histograms[p.Items*(d*p.Groups+gr)+it])
			}
		}
	}
	fmt.Fprintf(bw, "\n")
	for i, sum := range globsum {
		fmt.Fprintf(bw, "split %v sum=%v\n", i, sum)
	}
	fmt.Fprintf(bw, "\n")
	for i, key := range r.Keys {
		fmt.Fprintf(bw, "%v key=%v\n", i, key)
	}
	fmt.Fprintf(bw, "\n")
	for i, perm := range r.Permutation {
		fmt.Fprintf(bw, "%v permut=%v\n", i, perm)
	}
	return bw.Flush()
}
