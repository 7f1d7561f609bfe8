package sort

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/exascience/pradix/device"
)

func readBuffer(t *testing.T, s *Sorter, b *device.Buffer, n int) []uint32 {
	t.Helper()
	result := make([]uint32, n)
	if err := s.queue.EnqueueRead(b, 0, result); err != nil {
		t.Fatal(err)
	}
	return result
}

func TestHistogramStage(t *testing.T) {
	p := Params{Bits: 4, TotalBits: 16, Groups: 4, Items: 2, HistoSplit: 8, Capacity: 1024, Transpose: true}
	r := rand.New(rand.NewSource(9))
	keys := makeRandomKeys(r, 1001, p)

	for _, transposed := range []bool{false, true} {
		s := newSorter(t, device.New(), p)
		if err := s.Load(keys); err != nil {
			t.Fatal(err)
		}
		padded := append(append([]uint32(nil), keys...), make([]uint32, s.PaddedLen()-len(keys))...)
		for i := len(keys); i < len(padded); i++ {
			padded[i] = p.Sentinel()
		}
		if transposed {
			if err := s.transposeStage(p.Lanes(), s.PaddedLen()/p.Lanes()); err != nil {
				t.Fatal(err)
			}
			s.transposed = true
		}
		const pass = 2
		if err := s.histogramStage(pass); err != nil {
			t.Fatal(err)
		}
		got := readBuffer(t, s, s.histograms, p.TableSize())

		want := make([]uint32, p.TableSize())
		size := s.PaddedLen() / p.Lanes()
		for lane := 0; lane < p.Lanes(); lane++ {
			group, item := lane/p.Items, lane%p.Items
			for _, key := range padded[lane*size : (lane+1)*size] {
				d := int(key>>(pass*uint(p.Bits))) & (p.Radix() - 1)
				want[p.Items*(d*p.Groups+group)+item]++
			}
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("transposed=%v: histogram table differs", transposed)
		}
		s.Release()
	}
}

func TestScanStage(t *testing.T) {
	for pname, p := range testConfigs() {
		t.Run(pname, func(t *testing.T) {
			r := rand.New(rand.NewSource(13))
			s := newSorter(t, device.New(), p)
			defer s.Release()
			counts := make([]uint32, p.TableSize())
			for i := range counts {
				counts[i] = uint32(r.Intn(50))
			}
			if err := s.queue.EnqueueWrite(s.histograms, 0, counts); err != nil {
				t.Fatal(err)
			}
			if err := s.scanStage(); err != nil {
				t.Fatal(err)
			}
			got := readBuffer(t, s, s.histograms, p.TableSize())
			var sum uint32
			for i, c := range counts {
				if got[i] != sum {
					t.Fatalf("entry %v: got %v, want %v", i, got[i], sum)
				}
				sum += c
			}
		})
	}
}

func TestTransposeRoundTrip(t *testing.T) {
	p := Params{Bits: 4, TotalBits: 32, Groups: 4, Items: 4, HistoSplit: 16, Capacity: 4096, Transpose: true}
	r := rand.New(rand.NewSource(17))
	for _, size := range []int{16, 48, 160, 4096} {
		s := newSorter(t, device.New(), p)
		keys := makeRandomKeys(r, size, p)
		if err := s.Load(keys); err != nil {
			t.Fatal(err)
		}
		nbrow, nbcol := p.Lanes(), size/p.Lanes()

		if err := s.transposeStage(nbrow, nbcol); err != nil {
			t.Fatal(err)
		}
		transposed := readBuffer(t, s, s.keys[s.in], size)
		perm := readBuffer(t, s, s.perm[s.in], size)
		for i := 0; i < nbrow; i++ {
			for j := 0; j < nbcol; j++ {
				if transposed[j*nbrow+i] != keys[i*nbcol+j] || perm[j*nbrow+i] != uint32(i*nbcol+j) {
					t.Fatalf("size %v: element (%v, %v) not transposed", size, i, j)
				}
			}
		}

		if err := s.transposeStage(nbcol, nbrow); err != nil {
			t.Fatal(err)
		}
		res, err := s.FetchResults()
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(res.Keys, keys) {
			t.Errorf("size %v: keys differ after round trip", size)
		}
		for i, v := range res.Permutation {
			if v != uint32(i) {
				t.Fatalf("size %v: permutation[%v] = %v after round trip", size, i, v)
			}
		}
		s.Release()
	}
}
