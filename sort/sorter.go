package sort

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/exascience/pradix/device"
	"github.com/exascience/pradix/internal"
)

// ErrCapacity is wrapped by errors for key counts that exceed the capacity
// of a Sorter.
var ErrCapacity = errors.New("capacity exceeded")

// Timings records the device time spent in each stage of the most recent
// sort, measured from the dispatch events.
type Timings struct {
	Histogram time.Duration
	Scan      time.Duration
	Reorder   time.Duration
	Transpose time.Duration
}

// Total returns the sum of all stage times.
func (t Timings) Total() time.Duration {
	return t.Histogram + t.Scan + t.Reorder + t.Transpose
}

// Results holds the sorted keys and, for each of them, the index of the
// key in the loaded input.
type Results struct {
	Keys        []uint32
	Permutation []uint32
}

// An Option configures a Sorter.
type Option func(*Sorter)

// WithLogger makes a Sorter report the progress of its operations to l.
func WithLogger(l *log.Logger) Option {
	return func(s *Sorter) { s.log = l }
}

/*
A Sorter sorts up to Params.Capacity keys on a device, together with a
permutation array that tracks the origin of each key.

All device buffers are allocated once by New. The keys and the
permutation each have two buffers, of which one is the input and the
other the output of the current stage; after each reorder or transpose
stage the roles are exchanged without copying any data.

A Sorter is not safe for concurrent use.
*/
type Sorter struct {
	params Params
	queue  *device.Queue
	log    *log.Logger

	histogram, scan, paste, reorder, transpose *device.Kernel

	keys, perm               [2]*device.Buffer
	in                       int
	histograms, globsum, tmp *device.Buffer

	nkeys, nkeysRounded int
	transposed          bool
	original            []uint32
	timings             Timings
}

/*
New creates a Sorter for p on dev.

New fails if p violates its invariants, if dev cannot provide the
work-group sizes or the local memory that p requires, or if building the
kernels or allocating the buffers fails. The new Sorter holds no keys;
use Load to provide them.
*/
func New(dev *device.Device, p Params, opts ...Option) (s *Sorter, err error) {
	if err = p.Validate(); err != nil {
		return nil, err
	}
	if err = checkDevice(dev.Info(), p); err != nil {
		return nil, err
	}
	s = &Sorter{params: p}
	for _, opt := range opts {
		opt(s)
	}

	prog := dev.NewProgram(newSource(p))
	if err = prog.Build(); err != nil {
		return nil, err
	}
	for _, k := range []struct {
		kernel **device.Kernel
		name   string
	}{
		{&s.histogram, histogramKernel},
		{&s.scan, scanKernel},
		{&s.paste, pasteKernel},
		{&s.reorder, reorderKernel},
		{&s.transpose, transposeKernel},
	} {
		if *k.kernel, err = prog.Kernel(k.name); err != nil {
			return nil, err
		}
	}

	s.queue = dev.NewQueue()
	defer func() {
		if err != nil {
			s.Release()
			s = nil
		}
	}()
	alloc := func(words int) (b *device.Buffer) {
		if err == nil {
			b, err = dev.NewBuffer(4 * words)
		}
		return
	}
	s.keys[0], s.keys[1] = alloc(p.Capacity), alloc(p.Capacity)
	s.perm[0], s.perm[1] = alloc(p.Capacity), alloc(p.Capacity)
	s.histograms = alloc(p.TableSize())
	s.globsum = alloc(p.HistoSplit)
	s.tmp = alloc(p.HistoSplit)
	if err != nil {
		return
	}

	localWords := p.TableSize() / p.HistoSplit
	if p.HistoSplit > localWords {
		localWords = p.HistoSplit
	}
	for _, arg := range []struct {
		kernel *device.Kernel
		index  int
		value  interface{}
	}{
		{s.histogram, histoArgHistograms, s.histograms},
		{s.histogram, histoArgLocal, device.Local(4 * p.Radix() * p.Items)},
		{s.scan, scanArgLocal, device.Local(4 * localWords)},
		{s.paste, pasteArgHistograms, s.histograms},
		{s.paste, pasteArgSums, s.globsum},
		{s.reorder, reorderArgHistograms, s.histograms},
		{s.reorder, reorderArgLocal, device.Local(4 * p.Radix() * p.Items)},
	} {
		if err = arg.kernel.SetArg(arg.index, arg.value); err != nil {
			return
		}
	}
	return s, nil
}

// checkDevice verifies that the device can run the dispatches of a sort.
func checkDevice(info device.Info, p Params) error {
	chunk := p.TableSize() / p.HistoSplit
	groupSizes := []int{p.Items, chunk / 2, p.HistoSplit / 2}
	localBytes := []int{4 * p.Radix() * p.Items, 4 * chunk, 4 * p.HistoSplit}
	if p.Transpose {
		groupSizes = append(groupSizes, p.Groups)
		localBytes = append(localBytes, 2*4*p.Groups*p.Groups)
	}
	for _, size := range groupSizes {
		if size > info.MaxWorkGroupSize {
			return fmt.Errorf("device %v: work groups of %v lanes needed, at most %v supported", info.Name, size, info.MaxWorkGroupSize)
		}
	}
	for _, bytes := range localBytes {
		if bytes > info.LocalMemSize {
			return fmt.Errorf("device %v: %v bytes of local memory needed, %v available", info.Name, bytes, info.LocalMemSize)
		}
	}
	return nil
}

// Params returns the parameters of the sorter.
func (s *Sorter) Params() Params {
	return s.params
}

// Len returns the logical number of keys.
func (s *Sorter) Len() int {
	return s.nkeys
}

// PaddedLen returns the number of keys including the sentinel padding,
// which is the smallest multiple of Params.Lanes that is >= Len.
func (s *Sorter) PaddedLen() int {
	return s.nkeysRounded
}

// Timings returns the stage times of the most recent sort.
func (s *Sorter) Timings() Timings {
	return s.timings
}

func (s *Sorter) logf(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

/*
Load keeps a host copy of keys and resizes the sorter to len(keys), which
copies them to the device and resets the permutation to the identity.

Load fails if len(keys) exceeds the capacity, or if a key is not smaller
than Params.MaxInt.
*/
func (s *Sorter) Load(keys []uint32) error {
	if len(keys) > s.params.Capacity {
		return fmt.Errorf("load of %v keys: %w (%v)", len(keys), ErrCapacity, s.params.Capacity)
	}
	maxInt := s.params.MaxInt()
	for i, key := range keys {
		if uint64(key) >= maxInt {
			return fmt.Errorf("key %v at index %v does not fit into %v bits", key, i, s.params.TotalBits)
		}
	}
	s.original = append(s.original[:0], keys...)
	return s.Resize(len(keys))
}

/*
Resize sets the logical number of keys to n. The first n loaded keys are
copied to the device in their original order, the permutation is reset to
the identity, and the keys from n up to the next multiple of Params.Lanes
are set to the sentinel value. A sort after Resize therefore sorts exactly
the first n loaded keys, also when the keys were sorted before.

Resize must not be called during a sort. It fails if n is negative or
exceeds the number of loaded keys.
*/
func (s *Sorter) Resize(n int) error {
	if n < 0 || n > len(s.original) {
		return fmt.Errorf("resize to %v keys: %w (%v keys loaded)", n, ErrCapacity, len(s.original))
	}
	s.logf("resize to %v keys", n)
	s.in, s.transposed = 0, false
	s.nkeys = n
	s.nkeysRounded = internal.RoundUp(n, s.params.Lanes())

	keys := make([]uint32, s.nkeysRounded)
	copy(keys, s.original[:n])
	sentinel := s.params.Sentinel()
	for i := n; i < len(keys); i++ {
		keys[i] = sentinel
	}
	if err := s.queue.EnqueueWrite(s.keys[s.in], 0, keys); err != nil {
		return err
	}
	identity := make([]uint32, s.nkeysRounded)
	for i := range identity {
		identity[i] = uint32(i)
	}
	return s.queue.EnqueueWrite(s.perm[s.in], 0, identity)
}

/*
Sort sorts the first Len keys in ascending order and moves the
permutation entries along with them.

Sort runs the optional transposition, one histogram, scan and reorder
stage per pass, and the reverse transposition, each as a separate
dispatch that is waited for before the next one is enqueued. Sort fails if
a dispatch fails; the contents of the sorter are undefined afterwards,
until the next Load.
*/
func (s *Sorter) Sort() error {
	s.timings = Timings{}
	if s.nkeys == 0 {
		return nil
	}
	if s.nkeysRounded%s.params.Lanes() != 0 || s.nkeysRounded > s.params.Capacity {
		panic(fmt.Sprintf("invalid padded length %v", s.nkeysRounded))
	}
	nbrow, nbcol := s.params.Lanes(), s.nkeysRounded/s.params.Lanes()
	s.logf("start sorting %v keys", s.nkeys)

	if s.params.Transpose {
		s.logf("transpose")
		if err := s.transposeStage(nbrow, nbcol); err != nil {
			return err
		}
		s.transposed = true
	}
	for pass := 0; pass < s.params.Passes(); pass++ {
		s.logf("pass %v: histograms", pass)
		if err := s.histogramStage(pass); err != nil {
			return fmt.Errorf("pass %v: %w", pass, err)
		}
		s.logf("pass %v: scan", pass)
		if err := s.scanStage(); err != nil {
			return fmt.Errorf("pass %v: %w", pass, err)
		}
		s.logf("pass %v: reorder", pass)
		if err := s.reorderStage(pass); err != nil {
			return fmt.Errorf("pass %v: %w", pass, err)
		}
	}
	if s.params.Transpose {
		s.logf("transpose back")
		if err := s.transposeStage(nbcol, nbrow); err != nil {
			return err
		}
		s.transposed = false
	}
	s.logf("end sorting: %v", s.timings.Total())
	return nil
}

// dispatch runs kernel k over the given index space, waits for its
// completion, and adds its execution time to acc.
func (s *Sorter) dispatch(k *device.Kernel, global, local []int, acc *time.Duration) error {
	ev, err := s.queue.EnqueueNDRange(k, global, local)
	if err != nil {
		return err
	}
	if err = s.queue.Finish(); err != nil {
		return err
	}
	*acc += ev.Duration()
	return nil
}

// swap exchanges the roles of the input and output buffers.
func (s *Sorter) swap() {
	s.in ^= 1
}

func setArgs(k *device.Kernel, values ...interface{}) error {
	for i, v := range values {
		if err := k.SetArg(i, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sorter) transposedFlag() uint32 {
	if s.transposed {
		return 1
	}
	return 0
}

func (s *Sorter) histogramStage(pass int) error {
	if err := setArgs(s.histogram, s.keys[s.in], pass, s.nkeysRounded, s.transposedFlag()); err != nil {
		return err
	}
	return s.dispatch(s.histogram, []int{s.params.Lanes()}, []int{s.params.Items}, &s.timings.Histogram)
}

// scanStage turns the histogram table into its exclusive prefix sum in
// three dispatches: a local scan per split that records the split totals
// in globsum, a scan of globsum, and the addition of the scanned totals to
// their splits.
func (s *Sorter) scanStage() error {
	table, split := s.params.TableSize(), s.params.HistoSplit
	if err := setArgs(s.scan, s.histograms, s.globsum); err != nil {
		return err
	}
	if err := s.dispatch(s.scan, []int{table / 2}, []int{table / 2 / split}, &s.timings.Scan); err != nil {
		return err
	}
	if err := setArgs(s.scan, s.globsum, s.tmp); err != nil {
		return err
	}
	if err := s.dispatch(s.scan, []int{split / 2}, []int{split / 2}, &s.timings.Scan); err != nil {
		return err
	}
	return s.dispatch(s.paste, []int{table / 2}, []int{table / 2 / split}, &s.timings.Scan)
}

func (s *Sorter) reorderStage(pass int) error {
	in, out := s.in, s.in^1
	if err := setArgs(s.reorder,
		s.keys[in], s.keys[out], s.perm[in], s.perm[out],
		pass, s.nkeysRounded, s.transposedFlag(),
	); err != nil {
		return err
	}
	if err := s.dispatch(s.reorder, []int{s.params.Lanes()}, []int{s.params.Items}, &s.timings.Reorder); err != nil {
		return err
	}
	s.swap()
	return nil
}

// transposeStage transposes the nbrow x nbcol matrix of keys, and the
// permutation with it. The tile edge is the largest power of two up to
// Params.Groups that divides both dimensions.
func (s *Sorter) transposeStage(nbrow, nbcol int) error {
	t := internal.LowestPowerOfTwo(nbcol, internal.LowestPowerOfTwo(nbrow, s.params.Groups))
	in, out := s.in, s.in^1
	if err := setArgs(s.transpose,
		s.keys[in], s.keys[out], s.perm[in], s.perm[out],
		nbcol, nbrow, device.Local(4*t*t), device.Local(4*t*t),
	); err != nil {
		return err
	}
	if err := s.dispatch(s.transpose, []int{nbrow / t, nbcol}, []int{1, t}, &s.timings.Transpose); err != nil {
		return err
	}
	s.swap()
	return nil
}

// FetchResults copies the first Len keys and permutation entries back from
// the device.
func (s *Sorter) FetchResults() (r Results, err error) {
	r.Keys = make([]uint32, s.nkeys)
	r.Permutation = make([]uint32, s.nkeys)
	if err = s.queue.EnqueueRead(s.keys[s.in], 0, r.Keys); err != nil {
		return Results{}, err
	}
	if err = s.queue.EnqueueRead(s.perm[s.in], 0, r.Permutation); err != nil {
		return Results{}, err
	}
	return r, nil
}

// Check fetches the results and verifies them against the first Len keys
// passed to the most recent Load; see Verify.
func (s *Sorter) Check() error {
	r, err := s.FetchResults()
	if err != nil {
		return err
	}
	return Verify(r.Keys, r.Permutation, s.original[:s.nkeys])
}

// Release shuts down the queue and frees all device buffers. The sorter
// must not be used afterwards.
func (s *Sorter) Release() {
	if s.queue != nil {
		s.queue.Release()
	}
	for _, b := range []*device.Buffer{
		s.keys[0], s.keys[1], s.perm[0], s.perm[1],
		s.histograms, s.globsum, s.tmp,
	} {
		if b != nil {
			b.Release()
		}
	}
}
