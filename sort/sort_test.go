package sort

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	stdsort "sort"
	"strings"
	"testing"

	"github.com/exascience/pradix/device"
)

func smallParams() Params {
	return Params{
		Bits:       4,
		TotalBits:  8,
		Groups:     2,
		Items:      2,
		HistoSplit: 4,
		Capacity:   4096,
	}
}

func testConfigs() map[string]Params {
	small := smallParams()
	smallT := small
	smallT.Transpose = true
	wide := Params{Bits: 8, TotalBits: 32, Groups: 4, Items: 8, HistoSplit: 64, Capacity: 1 << 14, Transpose: true}
	odd := Params{Bits: 5, TotalBits: 30, Groups: 8, Items: 4, HistoSplit: 16, Capacity: 1 << 13}
	def := DefaultParams()
	def.Capacity = 1 << 16
	return map[string]Params{
		"Small":           small,
		"SmallTransposed": smallT,
		"Wide":            wide,
		"Odd":             odd,
		"Default":         def,
	}
}

func makeRandomKeys(r *rand.Rand, size int, p Params) []uint32 {
	result := make([]uint32, size)
	for i := range result {
		result[i] = uint32(r.Uint64() % p.MaxInt())
	}
	return result
}

func reference(keys []uint32) Results {
	r := Results{
		Keys:        append([]uint32(nil), keys...),
		Permutation: make([]uint32, len(keys)),
	}
	for i := range r.Permutation {
		r.Permutation[i] = uint32(i)
	}
	StableSortPairs(r.Keys, r.Permutation)
	return r
}

func newSorter(t testing.TB, dev *device.Device, p Params) *Sorter {
	t.Helper()
	s, err := New(dev, p)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func sortKeys(t testing.TB, s *Sorter, keys []uint32) Results {
	t.Helper()
	if err := s.Load(keys); err != nil {
		t.Fatal(err)
	}
	if err := s.Sort(); err != nil {
		t.Fatal(err)
	}
	if err := s.Check(); err != nil {
		t.Fatal(err)
	}
	r, err := s.FetchResults()
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestScenario(t *testing.T) {
	for _, transpose := range []bool{false, true} {
		t.Run(fmt.Sprintf("Transpose=%v", transpose), func(t *testing.T) {
			p := smallParams()
			p.Transpose = transpose
			s := newSorter(t, device.New(), p)
			defer s.Release()
			r := sortKeys(t, s, []uint32{5, 3, 3, 1})
			if want := []uint32{1, 3, 3, 5}; !reflect.DeepEqual(r.Keys, want) {
				t.Errorf("keys %v, want %v", r.Keys, want)
			}
			if want := []uint32{3, 1, 2, 0}; !reflect.DeepEqual(r.Permutation, want) {
				t.Errorf("permutation %v, want %v", r.Permutation, want)
			}
		})
	}
}

func TestSort(t *testing.T) {
	devices := map[string]func() *device.Device{
		"Parallel":   func() *device.Device { return device.New() },
		"Sequential": func() *device.Device { return device.New(device.Sequential()) },
	}
	for dname, newDevice := range devices {
		for pname, p := range testConfigs() {
			t.Run(dname+"/"+pname, func(t *testing.T) {
				r := rand.New(rand.NewSource(42))
				s := newSorter(t, newDevice(), p)
				defer s.Release()
				for _, size := range []int{1, 3, p.Lanes(), p.Lanes() + 1, 1000, p.Capacity - 1, p.Capacity} {
					keys := makeRandomKeys(r, size, p)
					got := sortKeys(t, s, keys)
					want := reference(keys)
					if !reflect.DeepEqual(got, want) {
						t.Fatalf("size %v: radix sort differs from stable merge sort", size)
					}
				}
			})
		}
	}
}

func TestSortAllEqual(t *testing.T) {
	for pname, p := range testConfigs() {
		t.Run(pname, func(t *testing.T) {
			s := newSorter(t, device.New(), p)
			defer s.Release()
			keys := make([]uint32, 777)
			for i := range keys {
				keys[i] = 3
			}
			r := sortKeys(t, s, keys)
			if !reflect.DeepEqual(r.Keys, keys) {
				t.Errorf("keys changed")
			}
			for i, perm := range r.Permutation {
				if perm != uint32(i) {
					t.Fatalf("permutation[%v] = %v, want identity", i, perm)
				}
			}
		})
	}
}

func TestSortIdempotent(t *testing.T) {
	for pname, p := range testConfigs() {
		t.Run(pname, func(t *testing.T) {
			r := rand.New(rand.NewSource(7))
			s := newSorter(t, device.New(), p)
			defer s.Release()
			keys := makeRandomKeys(r, 1500, p)
			stdsort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

			first := sortKeys(t, s, keys)
			if !reflect.DeepEqual(first.Keys, keys) {
				t.Fatalf("sorted input was reordered")
			}
			for i, perm := range first.Permutation {
				if perm != uint32(i) {
					t.Fatalf("permutation[%v] = %v, want identity", i, perm)
				}
			}

			if err := s.Sort(); err != nil {
				t.Fatal(err)
			}
			second, err := s.FetchResults()
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(first, second) {
				t.Errorf("sorting twice changed the result")
			}
		})
	}
}

func TestSortSentinelKeys(t *testing.T) {
	for pname, p := range testConfigs() {
		t.Run(pname, func(t *testing.T) {
			r := rand.New(rand.NewSource(3))
			s := newSorter(t, device.New(), p)
			defer s.Release()
			keys := makeRandomKeys(r, p.Lanes()*3+1, p)
			for i := 0; i < len(keys); i += 4 {
				keys[i] = p.Sentinel()
			}
			got := sortKeys(t, s, keys)
			for i, perm := range got.Permutation {
				if int(perm) >= len(keys) {
					t.Fatalf("padding entry %v appears at index %v", perm, i)
				}
			}
			if want := reference(keys); !reflect.DeepEqual(got, want) {
				t.Errorf("radix sort differs from stable merge sort")
			}
		})
	}
}

func TestResize(t *testing.T) {
	for pname, p := range testConfigs() {
		t.Run(pname, func(t *testing.T) {
			r := rand.New(rand.NewSource(11))
			s := newSorter(t, device.New(), p)
			defer s.Release()
			keys := makeRandomKeys(r, 2000, p)

			t.Run("BeforeSort", func(t *testing.T) {
				if err := s.Load(keys); err != nil {
					t.Fatal(err)
				}
				if err := s.Resize(1234); err != nil {
					t.Fatal(err)
				}
				if err := s.Sort(); err != nil {
					t.Fatal(err)
				}
				got, err := s.FetchResults()
				if err != nil {
					t.Fatal(err)
				}
				if want := reference(keys[:1234]); !reflect.DeepEqual(got, want) {
					t.Errorf("sort after resize differs from stable merge sort of the prefix")
				}
			})

			t.Run("AfterSort", func(t *testing.T) {
				sortKeys(t, s, keys)
				if err := s.Resize(999); err != nil {
					t.Fatal(err)
				}
				if s.Len() != 999 || s.PaddedLen()%p.Lanes() != 0 || s.PaddedLen() < 999 {
					t.Fatalf("unexpected lengths %v, %v", s.Len(), s.PaddedLen())
				}
				if err := s.Sort(); err != nil {
					t.Fatal(err)
				}
				if err := s.Check(); err != nil {
					t.Fatal(err)
				}
				got, err := s.FetchResults()
				if err != nil {
					t.Fatal(err)
				}
				if want := reference(keys[:999]); !reflect.DeepEqual(got, want) {
					t.Errorf("sort after resize differs from stable merge sort of the first 999 keys")
				}
			})
		})
	}
}

func TestResizeBeyondLoaded(t *testing.T) {
	s := newSorter(t, device.New(), smallParams())
	defer s.Release()
	if err := s.Load([]uint32{5, 3, 3, 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Resize(10); !errors.Is(err, ErrCapacity) {
		t.Errorf("Resize beyond the loaded keys: got %v", err)
	}
	if s.Len() != 4 {
		t.Errorf("failed Resize changed the length to %v", s.Len())
	}
	r := sortKeys(t, s, []uint32{5, 3, 3, 1})
	if want := []uint32{3, 1, 2, 0}; !reflect.DeepEqual(r.Permutation, want) {
		t.Errorf("permutation %v, want %v", r.Permutation, want)
	}
	if err := s.Resize(2); err != nil {
		t.Fatal(err)
	}
	if err := s.Resize(4); err != nil {
		t.Fatal(err)
	}
	if err := s.Sort(); err != nil {
		t.Fatal(err)
	}
	if err := s.Check(); err != nil {
		t.Fatal(err)
	}
}

func TestCapacity(t *testing.T) {
	p := smallParams()
	s := newSorter(t, device.New(), p)
	defer s.Release()
	if err := s.Load(make([]uint32, p.Capacity+1)); !errors.Is(err, ErrCapacity) {
		t.Errorf("Load beyond capacity: got %v", err)
	}
	if err := s.Resize(p.Capacity + 1); !errors.Is(err, ErrCapacity) {
		t.Errorf("Resize beyond capacity: got %v", err)
	}
	if err := s.Resize(-1); !errors.Is(err, ErrCapacity) {
		t.Errorf("Resize to -1: got %v", err)
	}
	if err := s.Load([]uint32{1, 2, 256}); err == nil {
		t.Errorf("Load accepted a key wider than %v bits", p.TotalBits)
	}
}

func TestSortEmpty(t *testing.T) {
	s := newSorter(t, device.New(), smallParams())
	defer s.Release()
	r := sortKeys(t, s, nil)
	if len(r.Keys) != 0 || len(r.Permutation) != 0 {
		t.Errorf("unexpected results %v", r)
	}
}

func TestInvalidParams(t *testing.T) {
	modify := map[string]func(*Params){
		"ZeroBits":          func(p *Params) { p.Bits = 0 },
		"WideBits":          func(p *Params) { p.Bits = 17 },
		"TotalBitsNotMulti": func(p *Params) { p.TotalBits = 30 },
		"TotalBitsTooWide":  func(p *Params) { p.TotalBits = 36 },
		"GroupsNotPow2":     func(p *Params) { p.Groups = 12 },
		"ItemsNotPow2":      func(p *Params) { p.Items = 0 },
		"CapacityNotMulti":  func(p *Params) { p.Capacity = 1000 },
		"SplitNotPow2":      func(p *Params) { p.HistoSplit = 48 },
		"SplitTooLarge":     func(p *Params) { p.HistoSplit = 4096 },
		"SplitTooSmall":     func(p *Params) { p.HistoSplit = 1 },
	}
	for name, f := range modify {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams()
			f(&p)
			if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Validate: got %v", err)
			}
			if _, err := New(device.New(), p); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("New: got %v", err)
			}
		})
	}
	if err := DefaultParams().Validate(); err != nil {
		t.Errorf("default parameters: %v", err)
	}
}

func TestDeviceLimits(t *testing.T) {
	p := DefaultParams()
	if _, err := New(device.New(device.MaxWorkGroupSize(8)), p); err == nil {
		t.Errorf("New accepted a device with too small work groups")
	}
	if _, err := New(device.New(device.LocalMemSize(512)), p); err == nil {
		t.Errorf("New accepted a device with too little local memory")
	}
}

func TestRelease(t *testing.T) {
	dev := device.New()
	s := newSorter(t, dev, smallParams())
	if dev.LiveBuffers() != 7 {
		t.Errorf("%v live buffers, want 7", dev.LiveBuffers())
	}
	s.Release()
	if dev.LiveBuffers() != 0 {
		t.Errorf("%v live buffers after release", dev.LiveBuffers())
	}
}

func TestTimings(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	p := smallParams()
	s := newSorter(t, device.New(), p)
	defer s.Release()
	sortKeys(t, s, makeRandomKeys(r, 500, p))
	tm := s.Timings()
	if tm.Transpose != 0 {
		t.Errorf("transpose time %v without transposition", tm.Transpose)
	}
	if tm.Total() != tm.Histogram+tm.Scan+tm.Reorder {
		t.Errorf("inconsistent total %v", tm.Total())
	}
	if err := s.Load(nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Sort(); err != nil {
		t.Fatal(err)
	}
	if s.Timings() != (Timings{}) {
		t.Errorf("timings not reset: %v", s.Timings())
	}
}

func TestDump(t *testing.T) {
	s := newSorter(t, device.New(), smallParams())
	defer s.Release()
	sortKeys(t, s, []uint32{5, 3, 3, 1})
	var buf bytes.Buffer
	if err := s.Dump(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, line := range []string{"0 key=1\n", "3 key=5\n", "0 permut=3\n", "split 0 sum="} {
		if !strings.Contains(out, line) {
			t.Errorf("dump does not contain %q", line)
		}
	}
}

func TestVerify(t *testing.T) {
	original := []uint32{5, 3, 3, 1}
	cases := []struct {
		name     string
		keys     []uint32
		perm     []uint32
		property string
		index    int
	}{
		{"Order", []uint32{1, 3, 5, 3}, []uint32{3, 1, 0, 2}, "order", 3},
		{"Mismatch", []uint32{1, 3, 3, 5}, []uint32{3, 1, 0, 2}, "permutation", 2},
		{"OutOfRange", []uint32{1, 3, 3, 5}, []uint32{3, 1, 2, 9}, "permutation", 3},
		{"Duplicate", []uint32{1, 3, 3, 5}, []uint32{3, 1, 1, 0}, "permutation", 2},
		{"Length", []uint32{1, 3, 3, 5}, []uint32{3, 1, 2}, "permutation", 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Verify(c.keys, c.perm, original)
			var verr *VerificationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want a verification error", err)
			}
			if verr.Property != c.property || verr.Index != c.index {
				t.Errorf("got %v at %v, want %v at %v", verr.Property, verr.Index, c.property, c.index)
			}
		})
	}
	if err := Verify([]uint32{1, 3, 3, 5}, []uint32{3, 1, 2, 0}, original); err != nil {
		t.Errorf("valid result rejected: %v", err)
	}
}

func TestKeysAreSorted(t *testing.T) {
	keys := make([]uint32, 100000)
	for i := range keys {
		keys[i] = uint32(i / 3)
	}
	if !KeysAreSorted(keys) {
		t.Errorf("sorted keys reported unsorted")
	}
	keys[77777] = 0
	if KeysAreSorted(keys) {
		t.Errorf("unsorted keys reported sorted")
	}
}

func TestStableSortPairs(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, size := range []int{0, 10, msortGrainSize - 1, 10 * msortGrainSize} {
		keys := make([]uint32, size)
		for i := range keys {
			keys[i] = uint32(r.Intn(1000))
		}
		idx := make([]int, size)
		for i := range idx {
			idx[i] = i
		}
		stdsort.SliceStable(idx, func(i, j int) bool { return keys[idx[i]] < keys[idx[j]] })

		got := reference(keys)
		for i, j := range idx {
			if got.Keys[i] != keys[j] || got.Permutation[i] != uint32(j) {
				t.Fatalf("size %v: mismatch at %v", size, i)
			}
		}
	}
}

func BenchmarkSort(b *testing.B) {
	p := DefaultParams()
	r := rand.New(rand.NewSource(1))
	keys := makeRandomKeys(r, 1<<20, p)
	s := newSorter(b, device.New(), p)
	defer s.Release()

	b.Run("RadixSort", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			b.StopTimer()
			if err := s.Load(keys); err != nil {
				b.Fatal(err)
			}
			b.StartTimer()
			if err := s.Sort(); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("StableSortPairs", func(b *testing.B) {
		k := make([]uint32, len(keys))
		perm := make([]uint32, len(keys))
		for i := 0; i < b.N; i++ {
			b.StopTimer()
			copy(k, keys)
			for j := range perm {
				perm[j] = uint32(j)
			}
			b.StartTimer()
			StableSortPairs(k, perm)
		}
	})
}
