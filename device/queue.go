package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/exascience/pradix/internal"
	"github.com/exascience/pradix/parallel"
	"github.com/exascience/pradix/sequential"
)

// ErrQueueReleased is returned when a command is enqueued on a released
// queue.
var ErrQueueReleased = errors.New("device: queue has been released")

// An Event tracks the execution of one enqueued command.
type Event struct {
	name               string
	queued, start, end time.Time
	err                error
	done               chan struct{}
}

// Name returns the name of the command, which is the kernel name for
// dispatches.
func (e *Event) Name() string {
	return e.name
}

// Wait blocks until the command has completed, and returns its error.
func (e *Event) Wait() error {
	<-e.done
	return e.err
}

// Queued returns the time when the command was enqueued.
func (e *Event) Queued() time.Time {
	return e.queued
}

// Start returns the time when the command started to execute, waiting for
// it to complete if necessary.
func (e *Event) Start() time.Time {
	<-e.done
	return e.start
}

// End returns the time when the command completed, waiting for it to
// complete if necessary.
func (e *Event) End() time.Time {
	<-e.done
	return e.end
}

// Duration returns the execution time of the command, waiting for it to
// complete if necessary.
func (e *Event) Duration() time.Duration {
	<-e.done
	return e.end.Sub(e.start)
}

type command struct {
	run func()
	ev  *Event
}

// A Queue executes commands one after the other, in the order in which
// they were enqueued, on a goroutine of its own.
type Queue struct {
	dev     *Device
	cmds    chan command
	pending sync.WaitGroup

	mu     sync.Mutex
	closed bool

	errMu sync.Mutex
	err   error
}

// NewQueue creates an in-order command queue for the device.
func (d *Device) NewQueue() *Queue {
	q := &Queue{dev: d, cmds: make(chan command, 16)}
	go q.serve()
	return q
}

func (q *Queue) serve() {
	for c := range q.cmds {
		c.ev.start = time.Now()
		c.ev.err = q.exec(c.run)
		c.ev.end = time.Now()
		if c.ev.err != nil {
			q.errMu.Lock()
			if q.err == nil {
				q.err = fmt.Errorf("device: %v failed: %w", c.ev.name, c.ev.err)
			}
			q.errMu.Unlock()
		}
		close(c.ev.done)
		q.pending.Done()
	}
}

func (q *Queue) exec(run func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = internal.PanicError(p)
		}
	}()
	run()
	return nil
}

func (q *Queue) enqueue(name string, run func()) (*Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueReleased
	}
	ev := &Event{name: name, queued: time.Now(), done: make(chan struct{})}
	q.pending.Add(1)
	q.cmds <- command{run, ev}
	return ev, nil
}

// EnqueueNDRange enqueues a dispatch of kernel k over the index space
// global, divided into work groups of size local. Both must have one or
// two dimensions, and each global size must be a multiple of the
// corresponding local size.
//
// The current arguments of k are captured, so k may be rebound right
// after EnqueueNDRange returns.
func (q *Queue) EnqueueNDRange(k *Kernel, global, local []int) (*Event, error) {
	info := q.dev.info
	nd, err := newNDRange(global, local, info.MaxWorkGroupSize)
	if err != nil {
		return nil, fmt.Errorf("kernel %q: %w", k.name, err)
	}
	args, localBytes, err := k.bind()
	if err != nil {
		return nil, err
	}
	if localBytes > info.LocalMemSize {
		return nil, fmt.Errorf("device: kernel %q requests %v bytes of local memory, %v available", k.name, localBytes, info.LocalMemSize)
	}
	fn := k.fn
	run := parallel.Range
	if info.Sequential {
		run = sequential.Range
	}
	batches := q.dev.batches
	return q.enqueue(k.name, func() {
		run(0, nd.count(), batches, func(low, high int) {
			g := newGroup(nd, args)
			for i := low; i < high; i++ {
				g.enter(i)
				fn(g)
			}
		})
	})
}

// EnqueueWrite copies src into buffer b, starting at byte offset offset,
// and blocks until the copy has completed.
func (q *Queue) EnqueueWrite(b *Buffer, offset int, src []uint32) error {
	low, err := b.words(offset, len(src))
	if err != nil {
		return err
	}
	ev, err := q.enqueue("write", func() {
		copy(b.data[low:low+len(src)], src)
	})
	if err != nil {
		return err
	}
	return ev.Wait()
}

// EnqueueRead copies the contents of buffer b, starting at byte offset
// offset, into dst, and blocks until the copy has completed.
func (q *Queue) EnqueueRead(b *Buffer, offset int, dst []uint32) error {
	low, err := b.words(offset, len(dst))
	if err != nil {
		return err
	}
	ev, err := q.enqueue("read", func() {
		copy(dst, b.data[low:low+len(dst)])
	})
	if err != nil {
		return err
	}
	return ev.Wait()
}

// Finish blocks until all commands enqueued so far have completed. It
// returns the first error of a command that failed since the previous
// call to Finish.
func (q *Queue) Finish() error {
	q.pending.Wait()
	q.errMu.Lock()
	defer q.errMu.Unlock()
	err := q.err
	q.err = nil
	return err
}

// Release waits for all pending commands and shuts the queue down.
// Subsequent enqueues fail with ErrQueueReleased.
func (q *Queue) Release() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.cmds)
	q.mu.Unlock()
	q.pending.Wait()
}
