/*
Package speculative provides functions for expressing parallel
algorithms, similar to the functions in package parallel, except that
the implementations here terminate early when they can.

RangeAnd terminates early if the final return value is known early,
that is as soon as any of the predicates invoked in parallel returns
false. The sort package uses it to verify sorted output, where a single
out-of-order pair decides the result.

RangeAnd does not stop the execution of predicates that may still be
running in parallel in case of early termination, and panics may not
propagate to the invoking goroutine in that case.
*/
package speculative

import (
	"fmt"
	"sync"

	"github.com/exascience/pradix"
	"github.com/exascience/pradix/internal"
)

/*
RangeAnd receives a range, a batch count, and a RangePredicate
function, divides the range into batches, and invokes the range
predicate for each of these batches in parallel.

The range is specified by a low and high integer, with low <=
high. The batches are determined by dividing up the size of the range
(high - low) by n. If n is 0, a reasonable default is used that takes
runtime.GOMAXPROCS(0) into account.

The range predicate is invoked for each batch in its own goroutine,
and RangeAnd returns true if all of them return true; or RangeAnd
returns false when at least one of them returns false, without waiting
for the other range predicates to terminate.

RangeAnd panics if high < low, or if n < 0.

If one or more range predicates panic, the corresponding goroutines
recover the panics, and RangeAnd may eventually panic with the
left-most recovered panic value. If both panics occur and false values
are returned, then the left-most of these events takes precedence.
*/
func RangeAnd(low, high, n int, f pradix.RangePredicate) bool {
	var recur func(int, int, int) bool
	recur = func(low, high, n int) bool {
		switch {
		case n == 1:
			return f(low, high)
		case n > 1:
			batchSize := ((high - low - 1) / n) + 1
			half := n / 2
			mid := low + batchSize*half
			if mid >= high {
				return f(low, high)
			}
			var b1 bool
			var p interface{}
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer func() {
					p = recover()
					wg.Done()
				}()
				b1 = recur(mid, high, n-half)
			}()
			if !recur(low, mid, half) {
				return false
			}
			wg.Wait()
			if p != nil {
				panic(p)
			}
			return b1
		default:
			panic(fmt.Sprintf("invalid number of batches: %v", n))
		}
	}
	return recur(low, high, internal.ComputeNofBatches(low, high, n))
}
