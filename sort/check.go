package sort

import (
	"fmt"

	"github.com/exascience/pradix/parallel"
	"github.com/exascience/pradix/speculative"
)

const checkGrainSize = 0x1000

// A VerificationError reports sorted output that violates the ascending
// order or does not match the input through the permutation.
type VerificationError struct {
	// Property is either "order" or "permutation".
	Property string

	// Index is the first position at which the property is violated.
	Index int

	// Violations is the number of positions at which the property is
	// violated.
	Violations int

	// Detail describes the first violation.
	Detail string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification of %v failed at index %v (%v violations): %v", e.Property, e.Index, e.Violations, e.Detail)
}

func batches(n int) int {
	return (n + checkGrainSize - 1) / checkGrainSize
}

/*
KeysAreSorted determines in parallel whether keys are sorted in ascending
order. It attempts to terminate early when the return value is false.
*/
func KeysAreSorted(keys []uint32) bool {
	if len(keys) < 2 {
		return true
	}
	return speculative.RangeAnd(1, len(keys), batches(len(keys)), func(low, high int) bool {
		for i := low; i < high; i++ {
			if keys[i] < keys[i-1] {
				return false
			}
		}
		return true
	})
}

/*
Verify checks that keys are in ascending order, and that perm maps them
back onto original: keys[i] == original[perm[i]] for all i, with all
entries of perm distinct. It returns a *VerificationError describing the
first violated property, or nil.
*/
func Verify(keys, perm, original []uint32) error {
	if len(perm) != len(keys) {
		return &VerificationError{
			Property:   "permutation",
			Index:      0,
			Violations: 1,
			Detail:     fmt.Sprintf("%v keys but %v permutation entries", len(keys), len(perm)),
		}
	}
	n := len(keys)
	if !KeysAreSorted(keys) {
		violations := parallel.IntRangeReduce(1, n, batches(n), func(low, high int) (count int) {
			for i := low; i < high; i++ {
				if keys[i] < keys[i-1] {
					count++
				}
			}
			return
		}, func(x, y int) int { return x + y })
		first := 1
		for keys[first] >= keys[first-1] {
			first++
		}
		return &VerificationError{
			Property:   "order",
			Index:      first,
			Violations: violations,
			Detail:     fmt.Sprintf("key %v at index %v follows key %v", keys[first], first, keys[first-1]),
		}
	}
	matches := func(i int) bool {
		p := perm[i]
		return int(p) < len(original) && keys[i] == original[p]
	}
	if n > 0 && !speculative.RangeAnd(0, n, batches(n), func(low, high int) bool {
		for i := low; i < high; i++ {
			if !matches(i) {
				return false
			}
		}
		return true
	}) {
		violations := parallel.IntRangeReduce(0, n, batches(n), func(low, high int) (count int) {
			for i := low; i < high; i++ {
				if !matches(i) {
					count++
				}
			}
			return
		}, func(x, y int) int { return x + y })
		first := 0
		for matches(first) {
			first++
		}
		detail := fmt.Sprintf("permutation entry %v is out of range", perm[first])
		if int(perm[first]) < len(original) {
			detail = fmt.Sprintf("key %v does not match original key %v at index %v", keys[first], original[perm[first]], perm[first])
		}
		return &VerificationError{Property: "permutation", Index: first, Violations: violations, Detail: detail}
	}
	seen := make([]bool, len(original))
	for i, p := range perm {
		if seen[p] {
			return &VerificationError{
				Property:   "permutation",
				Index:      i,
				Violations: 1,
				Detail:     fmt.Sprintf("original index %v occurs more than once", p),
			}
		}
		seen[p] = true
	}
	return nil
}
