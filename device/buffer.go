package device

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrReleased is returned when a released buffer is used.
var ErrReleased = errors.New("device: buffer has been released")

// A Buffer is a flat read-write region of device memory, organized as
// 32-bit words.
type Buffer struct {
	dev      *Device
	data     []uint32
	released int32
}

// NewBuffer allocates a buffer of the given size in bytes, which must be a
// positive multiple of 4.
func (d *Device) NewBuffer(bytes int) (*Buffer, error) {
	if bytes <= 0 || bytes%4 != 0 {
		return nil, fmt.Errorf("device: invalid buffer size %v bytes", bytes)
	}
	atomic.AddInt64(&d.live, 1)
	return &Buffer{dev: d, data: make([]uint32, bytes/4)}, nil
}

// Size returns the size of the buffer in bytes.
func (b *Buffer) Size() int {
	return 4 * len(b.data)
}

// Len returns the number of words in the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Release frees the buffer. Releasing a buffer more than once has no
// effect.
func (b *Buffer) Release() {
	if atomic.CompareAndSwapInt32(&b.released, 0, 1) {
		atomic.AddInt64(&b.dev.live, -1)
	}
}

func (b *Buffer) check() error {
	if atomic.LoadInt32(&b.released) != 0 {
		return ErrReleased
	}
	return nil
}

// words translates a byte range into a word range of the buffer.
func (b *Buffer) words(offset, n int) (int, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	if offset < 0 || offset%4 != 0 {
		return 0, fmt.Errorf("device: invalid buffer offset %v", offset)
	}
	low := offset / 4
	if low+n > len(b.data) {
		return 0, fmt.Errorf("device: transfer of %v words at offset %v exceeds buffer of %v bytes", n, offset, b.Size())
	}
	return low, nil
}
