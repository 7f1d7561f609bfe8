package sort

import (
	"fmt"
	"sort"

	"github.com/exascience/pradix/parallel"
)

const msortGrainSize = 0x3000

// pairs is a range of keys together with their permutation entries.
type pairs struct {
	keys, perm []uint32
}

func (p pairs) Len() int           { return len(p.keys) }
func (p pairs) Less(i, j int) bool { return p.keys[i] < p.keys[j] }

func (p pairs) Swap(i, j int) {
	p.keys[i], p.keys[j] = p.keys[j], p.keys[i]
	p.perm[i], p.perm[j] = p.perm[j], p.perm[i]
}

func (p pairs) slice(i, j int) pairs {
	return pairs{p.keys[i:j], p.perm[i:j]}
}

// assign copies n pairs from src, starting at j, to p, starting at i.
func (p pairs) assign(i int, src pairs, j, n int) {
	copy(p.keys[i:i+n], src.keys[j:j+n])
	copy(p.perm[i:i+n], src.perm[j:j+n])
}

// lowerBound returns the first index in [p, r+1) whose key is not less
// than x.
func lowerBound(keys []uint32, x uint32, p, r int) int {
	if p > r+1 {
		return p
	}
	return p + sort.Search(r+1-p, func(i int) bool { return keys[p+i] >= x })
}

// upperBound returns the first index in [p, r+1) whose key is greater
// than x.
func upperBound(keys []uint32, x uint32, p, r int) int {
	if p > r+1 {
		return p
	}
	return p + sort.Search(r+1-p, func(i int) bool { return keys[p+i] > x })
}

// sMerge merges the runs T[p1..r1] and T[p2..r2] into A starting at p3.
// Equal keys are taken from the first run first.
func sMerge(T pairs, p1, r1, p2, r2 int, A pairs, p3 int) {
	for {
		if p2 > r2 {
			A.assign(p3, T, p1, r1+1-p1)
			return
		}

		q1 := p1
		for (p1 <= r1) && T.keys[p1] <= T.keys[p2] {
			p1++
		}
		n1 := p1 - q1
		A.assign(p3, T, q1, n1)
		p3 += n1

		if p1 > r1 {
			A.assign(p3, T, p2, r2+1-p2)
			return
		}

		q2 := p2
		for (p2 <= r2) && T.keys[p2] < T.keys[p1] {
			p2++
		}
		n2 := p2 - q2
		A.assign(p3, T, q2, n2)
		p3 += n2
	}
}

func pMerge(T pairs, p1, r1, p2, r2 int, A pairs, p3 int) {
	n1 := r1 - p1 + 1
	n2 := r2 - p2 + 1
	if (n1 + n2) < msortGrainSize {
		sMerge(T, p1, r1, p2, r2, A, p3)
		return
	}
	if n1 > n2 {
		q1 := (p1 + r1) / 2
		q2 := lowerBound(T.keys, T.keys[q1], p2, r2)
		q3 := p3 + (q1 - p1) + (q2 - p2)
		A.assign(q3, T, q1, 1)
		parallel.Do(
			func() { pMerge(T, p1, q1-1, p2, q2-1, A, p3) },
			func() { pMerge(T, q1+1, r1, q2, r2, A, q3+1) },
		)
	} else {
		if n2 == 0 {
			return
		}
		q2 := (p2 + r2) / 2
		q1 := upperBound(T.keys, T.keys[q2], p1, r1)
		q3 := p3 + (q1 - p1) + (q2 - p2)
		A.assign(q3, T, q2, 1)
		parallel.Do(
			func() { pMerge(T, p1, q1-1, p2, q2-1, A, p3) },
			func() { pMerge(T, q1, r1, q2+1, r2, A, q3+1) },
		)
	}
}

/*
StableSortPairs sorts keys in ascending order with a parallel merge sort,
also known as cilksort, and applies the same reordering to perm. Equal
keys keep their relative order, so for the same input StableSortPairs and
a Sorter produce identical keys and permutations.

StableSortPairs needs a copy of both slices as temporary memory. It panics
if the slices differ in length.
*/
func StableSortPairs(keys, perm []uint32) {
	// See https://en.wikipedia.org/wiki/Introduction_to_Algorithms and
	// https://www.clear.rice.edu/comp422/lecture-notes/ for details on the algorithm.
	if len(keys) != len(perm) {
		panic(fmt.Sprintf("mismatched lengths: %v keys, %v permutation entries", len(keys), len(perm)))
	}
	T := pairs{keys, perm}
	size := len(keys)
	if size < msortGrainSize {
		sort.Stable(T)
		return
	}
	A := pairs{make([]uint32, size), make([]uint32, size)}
	var pSort func(int, int)
	pSort = func(index, size int) {
		if size < msortGrainSize {
			sort.Stable(T.slice(index, index+size))
			return
		}
		q1 := size / 4
		q2 := q1 + q1
		q3 := q2 + q1
		parallel.Do(
			func() { pSort(index, q1) },
			func() { pSort(index+q1, q1) },
			func() { pSort(index+q2, q1) },
			func() { pSort(index+q3, size-q3) },
		)
		parallel.Do(
			func() { pMerge(T, index, index+q1-1, index+q1, index+q2-1, A, index) },
			func() { pMerge(T, index+q2, index+q3-1, index+q3, index+size-1, A, index+q2) },
		)
		pMerge(A, index, index+q2-1, index+q2, index+size-1, T, index)
	}
	pSort(0, size)
}
