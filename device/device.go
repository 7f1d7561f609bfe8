/*
Package device provides an execution substrate that emulates a massively
parallel compute device, in the style of an OpenCL device, on top of
goroutines.

A device executes kernels over a one- or two-dimensional index space that
is divided into work groups. Each work group consists of a number of
lanes that share group-local scratch memory. A kernel is a Go function
that is invoked once per work group and iterates over the lanes of its
group itself, which means that lanes of one group execute in lockstep
phases and never need a barrier. Work groups of the same dispatch execute
in parallel and communicate only through disjoint writes to global
buffers; the end of a dispatch is the only global barrier.

Kernels are registered by name in a Source, built into a Program, and
retrieved as Kernel values whose arguments are bound by index with
SetArg, similar to clSetKernelArg. Dispatches and buffer transfers are
enqueued on an in-order Queue, and each of them returns an Event that
records when it was queued, started, and finished.
*/
package device

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const (
	defaultLocalMemSize     = 48 * 1024
	defaultMaxWorkGroupSize = 1024
)

// Info describes the capabilities of a Device.
type Info struct {
	// Name identifies the device.
	Name string

	// ComputeUnits is the number of logical CPUs that execute work
	// groups.
	ComputeUnits int

	// LocalMemSize is the number of bytes of group-local scratch
	// memory that a single dispatch may request.
	LocalMemSize int

	// MaxWorkGroupSize is the maximum number of lanes in a work group.
	MaxWorkGroupSize int

	// Sequential is true if work groups execute one after the other.
	Sequential bool

	// Features lists the vector extensions of the host CPU.
	Features []string
}

// A Device executes kernels on goroutines. The zero Device is not valid,
// use New instead.
type Device struct {
	info    Info
	batches int
	live    int64
}

// An Option configures a Device.
type Option func(*Device)

// Sequential configures a device to execute the work groups of a dispatch
// one after the other, in increasing group order.
func Sequential() Option {
	return func(d *Device) { d.info.Sequential = true }
}

// LocalMemSize sets the amount of group-local scratch memory in bytes.
func LocalMemSize(bytes int) Option {
	return func(d *Device) { d.info.LocalMemSize = bytes }
}

// MaxWorkGroupSize sets the maximum number of lanes in a work group.
func MaxWorkGroupSize(n int) Option {
	return func(d *Device) { d.info.MaxWorkGroupSize = n }
}

// Batches sets the number of batches into which the work groups of a
// dispatch are divided. 0 selects a default that takes
// runtime.GOMAXPROCS(0) into account.
func Batches(n int) Option {
	return func(d *Device) { d.batches = n }
}

// New returns a device configured by the given options.
//
// New panics if an option sets a non-positive memory or work-group size,
// or a negative batch count.
func New(opts ...Option) *Device {
	d := &Device{info: Info{
		Name:             "goroutines/" + runtime.GOARCH,
		ComputeUnits:     runtime.NumCPU(),
		LocalMemSize:     defaultLocalMemSize,
		MaxWorkGroupSize: defaultMaxWorkGroupSize,
		Features:         features(),
	}}
	for _, opt := range opts {
		opt(d)
	}
	switch {
	case d.info.LocalMemSize <= 0:
		panic(fmt.Sprintf("invalid local memory size: %v", d.info.LocalMemSize))
	case d.info.MaxWorkGroupSize <= 0:
		panic(fmt.Sprintf("invalid maximum work-group size: %v", d.info.MaxWorkGroupSize))
	case d.batches < 0:
		panic(fmt.Sprintf("invalid number of batches: %v", d.batches))
	}
	return d
}

// Info returns a description of the device.
func (d *Device) Info() Info {
	info := d.info
	info.Features = append([]string(nil), d.info.Features...)
	return info
}

// LiveBuffers returns the number of buffers allocated on the device that
// have not been released yet.
func (d *Device) LiveBuffers() int {
	return int(atomic.LoadInt64(&d.live))
}

func features() (result []string) {
	var flags []struct {
		name string
		ok   bool
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		flags = []struct {
			name string
			ok   bool
		}{
			{"sse4.2", cpu.X86.HasSSE42},
			{"avx", cpu.X86.HasAVX},
			{"avx2", cpu.X86.HasAVX2},
			{"bmi2", cpu.X86.HasBMI2},
			{"avx512f", cpu.X86.HasAVX512F},
		}
	case "arm64":
		flags = []struct {
			name string
			ok   bool
		}{
			{"asimd", cpu.ARM64.HasASIMD},
			{"sve", cpu.ARM64.HasSVE},
		}
	}
	for _, f := range flags {
		if f.ok {
			result = append(result, f.name)
		}
	}
	return
}
