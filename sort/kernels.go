package sort

import "github.com/exascience/pradix/device"

// Kernel names.
const (
	histogramKernel = "histogram"
	scanKernel      = "scanhistograms"
	pasteKernel     = "pastehistograms"
	reorderKernel   = "reorder"
	transposeKernel = "transpose"
)

// Argument layout of the histogram kernel.
const (
	histoArgKeys = iota
	histoArgPass
	histoArgN
	histoArgTransposed
	histoArgHistograms
	histoArgLocal
)

// Argument layout of the scan kernel.
const (
	scanArgData = iota
	scanArgSums
	scanArgLocal
)

// Argument layout of the paste kernel.
const (
	pasteArgHistograms = iota
	pasteArgSums
)

// Argument layout of the reorder kernel.
const (
	reorderArgInKeys = iota
	reorderArgOutKeys
	reorderArgInPerm
	reorderArgOutPerm
	reorderArgPass
	reorderArgN
	reorderArgTransposed
	reorderArgHistograms
	reorderArgLocal
)

// Argument layout of the transpose kernel.
const (
	transposeArgIn = iota
	transposeArgOut
	transposeArgInPerm
	transposeArgOutPerm
	transposeArgNbCol
	transposeArgNbRow
	transposeArgLocalKeys
	transposeArgLocalPerm
)

// kernels holds the compile-time constants of a program.
type kernels struct {
	bits  uint32
	radix int
}

func newSource(p Params) device.Source {
	k := kernels{bits: uint32(p.Bits), radix: p.Radix()}
	return device.Source{
		histogramKernel: k.histogram,
		scanKernel:      k.scan,
		pasteKernel:     k.paste,
		reorderKernel:   k.reorder,
		transposeKernel: k.transpose,
	}
}

// The n keys are divided into one contiguous partition of size n/lanes per
// lane, in logical order. In the transposed layout, logical position
// lane*size+j is stored at physical position j*lanes+lane.

// histogram counts, for each lane of the group, the keys of its partition
// per digit value, and stores the counts at
// histograms[items*(digit*groups+group)+lane].
func (k kernels) histogram(g *device.Group) {
	keys := g.Buffer(histoArgKeys)
	shift := g.Uint(histoArgPass) * k.bits
	n := g.Int(histoArgN)
	transposed := g.Uint(histoArgTransposed) != 0
	histograms := g.Buffer(histoArgHistograms)
	loc := g.Local(histoArgLocal)

	items, groups, group := g.LocalSize(0), g.NumGroups(0), g.ID(0)
	lanes := items * groups
	size := n / lanes
	mask := uint32(k.radix - 1)

	loc = loc[:k.radix*items]
	for i := range loc {
		loc[i] = 0
	}
	for it := 0; it < items; it++ {
		ig := g.GlobalID(0, it)
		for j := 0; j < size; j++ {
			var key uint32
			if transposed {
				key = keys[j*lanes+ig]
			} else {
				key = keys[ig*size+j]
			}
			loc[int((key>>shift)&mask)*items+it]++
		}
	}
	for d := 0; d < k.radix; d++ {
		copy(histograms[items*(d*groups+group):items*(d*groups+group+1)], loc[d*items:(d+1)*items])
	}
}

// scan replaces each chunk of 2*items entries of data by its exclusive
// prefix sum, and stores the total of chunk i in sums[i]. The scan is the
// work-efficient up-sweep/down-sweep scheme, one lane per pair of entries.
func (k kernels) scan(g *device.Group) {
	data := g.Buffer(scanArgData)
	sums := g.Buffer(scanArgSums)
	tmp := g.Local(scanArgLocal)

	half := g.LocalSize(0)
	n := 2 * half
	group := g.ID(0)
	chunk := data[group*n : (group+1)*n]
	tmp = tmp[:n]
	copy(tmp, chunk)

	offset := 1
	for d := half; d > 0; d >>= 1 {
		for lane := 0; lane < d; lane++ {
			ai := offset*(2*lane+1) - 1
			bi := offset*(2*lane+2) - 1
			tmp[bi] += tmp[ai]
		}
		offset <<= 1
	}

	sums[group] = tmp[n-1]
	tmp[n-1] = 0

	for d := 1; d < n; d <<= 1 {
		offset >>= 1
		for lane := 0; lane < d; lane++ {
			ai := offset*(2*lane+1) - 1
			bi := offset*(2*lane+2) - 1
			t := tmp[ai]
			tmp[ai] = tmp[bi]
			tmp[bi] += t
		}
	}

	copy(chunk, tmp)
}

// paste adds the scanned total of each chunk to all entries of the chunk.
func (k kernels) paste(g *device.Group) {
	histograms := g.Buffer(pasteArgHistograms)
	sums := g.Buffer(pasteArgSums)

	half := g.LocalSize(0)
	group := g.ID(0)
	chunk := histograms[group*2*half : (group+1)*2*half]
	s := sums[group]
	for lane := 0; lane < half; lane++ {
		chunk[2*lane] += s
		chunk[2*lane+1] += s
	}
}

// reorder scatters the keys of each lane partition, and their permutation
// entries, to the offsets of the scanned histogram table. Keys of one
// partition that share a digit are placed at consecutive offsets in
// partition order.
func (k kernels) reorder(g *device.Group) {
	inKeys := g.Buffer(reorderArgInKeys)
	outKeys := g.Buffer(reorderArgOutKeys)
	inPerm := g.Buffer(reorderArgInPerm)
	outPerm := g.Buffer(reorderArgOutPerm)
	shift := g.Uint(reorderArgPass) * k.bits
	n := g.Int(reorderArgN)
	transposed := g.Uint(reorderArgTransposed) != 0
	histograms := g.Buffer(reorderArgHistograms)
	loc := g.Local(reorderArgLocal)

	items, groups, group := g.LocalSize(0), g.NumGroups(0), g.ID(0)
	lanes := items * groups
	size := n / lanes
	mask := uint32(k.radix - 1)

	loc = loc[:k.radix*items]
	for d := 0; d < k.radix; d++ {
		copy(loc[d*items:(d+1)*items], histograms[items*(d*groups+group):items*(d*groups+group+1)])
	}
	for it := 0; it < items; it++ {
		ig := g.GlobalID(0, it)
		for j := 0; j < size; j++ {
			var src int
			if transposed {
				src = j*lanes + ig
			} else {
				src = ig*size + j
			}
			key := inKeys[src]
			slot := int((key>>shift)&mask)*items + it
			dst := int(loc[slot])
			loc[slot]++
			if transposed {
				dst = (dst%size)*lanes + dst/size
			}
			outKeys[dst] = key
			outPerm[dst] = inPerm[src]
		}
	}
}

// transpose copies one tile of the nbrow x nbcol row-major matrix in to
// the nbcol x nbrow row-major matrix out, and permutes inPerm into outPerm
// the same way. The tile edge is the local size in dimension 1; tiles are
// staged in local memory so that both the reads and the writes proceed
// along rows.
func (k kernels) transpose(g *device.Group) {
	in := g.Buffer(transposeArgIn)
	out := g.Buffer(transposeArgOut)
	inPerm := g.Buffer(transposeArgInPerm)
	outPerm := g.Buffer(transposeArgOutPerm)
	nbcol := g.Int(transposeArgNbCol)
	nbrow := g.Int(transposeArgNbRow)

	t := g.LocalSize(1)
	tileKeys := g.Local(transposeArgLocalKeys)[:t*t]
	tilePerm := g.Local(transposeArgLocalPerm)[:t*t]
	i0, j0 := g.ID(0)*t, g.ID(1)*t

	for il := 0; il < t; il++ {
		row := (i0+il)*nbcol + j0
		copy(tileKeys[il*t:(il+1)*t], in[row:row+t])
		copy(tilePerm[il*t:(il+1)*t], inPerm[row:row+t])
	}
	for jl := 0; jl < t; jl++ {
		row := (j0+jl)*nbrow + i0
		for il := 0; il < t; il++ {
			out[row+il] = tileKeys[il*t+jl]
			outPerm[row+il] = tilePerm[il*t+jl]
		}
	}
}
