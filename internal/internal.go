package internal

import (
	"errors"
	"fmt"
	"math/bits"
	"runtime"
	"runtime/debug"
)

// ComputeNofBatches divides the size of the range (high - low) by n. If n is 0,
// a default is used that takes runtime.GOMAXPROCS(0) into account.
func ComputeNofBatches(low, high, n int) (batches int) {
	switch size := high - low; {
	case size > 0:
		switch {
		case n == 0:
			batches = 2 * runtime.GOMAXPROCS(0)
		case n > 0:
			batches = n
		default:
			panic(fmt.Sprintf("invalid number of batches: %v", n))
		}
		if batches > size {
			batches = size
		}
	case size == 0:
		batches = 1
	default:
		panic(fmt.Sprintf("invalid range: %v:%v", low, high))
	}
	return
}

type runtimeError struct{ error }

func (runtimeError) RuntimeError() {}

// WrapPanic adds stack trace information to a recovered panic.
func WrapPanic(p interface{}) interface{} {
	if p != nil {
		s := fmt.Sprintf("%v\n%s\nrethrown at", p, debug.Stack())
		if _, isError := p.(error); isError {
			r := errors.New(s)
			if _, isRuntimeError := p.(runtime.Error); isRuntimeError {
				return runtimeError{r}
			}
			return r
		}
		return s
	}
	return nil
}

// PanicError turns a recovered panic value into an error, keeping the stack
// trace that WrapPanic attaches.
func PanicError(p interface{}) error {
	switch w := WrapPanic(p).(type) {
	case nil:
		return nil
	case error:
		return w
	default:
		return fmt.Errorf("%v", w)
	}
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// LowestPowerOfTwo returns the largest power of two that divides n, capped
// at limit. Both n and limit must be positive.
func LowestPowerOfTwo(n, limit int) int {
	if n <= 0 || limit <= 0 {
		panic(fmt.Sprintf("invalid arguments: %v, %v", n, limit))
	}
	p := 1 << uint(bits.TrailingZeros(uint(n)))
	for p > limit {
		p >>= 1
	}
	return p
}

// RoundUp rounds n up to the next multiple of m.
func RoundUp(n, m int) int {
	if r := n % m; r != 0 {
		return n - r + m
	}
	return n
}
