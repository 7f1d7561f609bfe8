// Package pradix provides a radix sort for unsigned integer keys that is
// executed by many fine-grained compute lanes, in the style of a GPU kernel
// pipeline, together with a permutation array that records, for each sorted
// position, the original position of its key.
//
// The sort is organized as a number of passes, one per radix digit, least
// significant digit first. Each pass builds per-lane digit histograms,
// computes a hierarchical exclusive prefix sum over them, and scatters keys
// and permutation entries to their destinations. An optional transposition
// of the key array before and after the pass loop improves memory locality.
//
// Pradix provides the following subpackages:
//
// pradix/device provides an execution substrate that emulates a massively
// parallel device on top of goroutines: flat buffers, named kernels with
// bound arguments and group-local scratch memory, and an in-order command
// queue with per-dispatch timing.
//
// pradix/sort provides the radix sorter itself, the verification routine,
// and a parallel stable merge sort used as a host baseline.
//
// pradix/parallel, pradix/sequential, and pradix/speculative provide the
// fork-join building blocks that the device and the verification routine
// are built on.
//
// pradix/config reads sorter and device settings from TOML files, and
// cmd/pradix is a command line driver that sorts random data and reports
// timings.
//
// The algorithm follows Philippe Helluy, A portable implementation of the
// radix sort algorithm in OpenCL, HAL 2011.
package pradix
