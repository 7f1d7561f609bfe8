package sort

import (
	"errors"
	"fmt"

	"github.com/exascience/pradix/internal"
)

// ErrInvalidParams is wrapped by all errors returned from Params.Validate.
var ErrInvalidParams = errors.New("invalid radix sort parameters")

// Params determines the shape of a radix sort: the digit width, the key
// width, the parallel decomposition, and the capacity of the buffers.
type Params struct {
	// Bits is the width of a radix digit. Each pass examines one digit.
	Bits int `toml:"bits"`

	// TotalBits is the number of significant bits of a key. Keys must be
	// smaller than 2^TotalBits.
	TotalBits int `toml:"totalBits"`

	// Groups is the number of work groups of the histogram and reorder
	// dispatches, and the edge of the transpose tiles.
	Groups int `toml:"groups"`

	// Items is the number of lanes per work group.
	Items int `toml:"items"`

	// HistoSplit is the number of chunks into which the histogram table
	// is divided for the hierarchical scan.
	HistoSplit int `toml:"histoSplit"`

	// Capacity is the maximum number of keys, including padding.
	Capacity int `toml:"capacity"`

	// Transpose enables the transposition of the keys before and after
	// the passes.
	Transpose bool `toml:"transpose"`
}

// DefaultParams returns 4-bit digits over 32-bit keys, 16 groups of 16
// lanes, 512 histogram splits, and room for 4Mi keys.
func DefaultParams() Params {
	return Params{
		Bits:       4,
		TotalBits:  32,
		Groups:     16,
		Items:      16,
		HistoSplit: 512,
		Capacity:   1 << 22,
		Transpose:  true,
	}
}

// Radix returns the number of distinct digit values.
func (p Params) Radix() int {
	return 1 << uint(p.Bits)
}

// Passes returns the number of passes of a sort.
func (p Params) Passes() int {
	return p.TotalBits / p.Bits
}

// Lanes returns the total number of lanes, Groups * Items.
func (p Params) Lanes() int {
	return p.Groups * p.Items
}

// TableSize returns the number of entries of the histogram table.
func (p Params) TableSize() int {
	return p.Radix() * p.Lanes()
}

// MaxInt returns 2^TotalBits, the exclusive upper bound of valid keys.
func (p Params) MaxInt() uint64 {
	return uint64(1) << uint(p.TotalBits)
}

// Sentinel returns the largest valid key, which is used to pad the key
// array up to a multiple of Lanes.
func (p Params) Sentinel() uint32 {
	return uint32(p.MaxInt() - 1)
}

// Validate checks the divisibility and power-of-two constraints between
// the parameters.
func (p Params) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
	}
	switch {
	case p.Bits < 1 || p.Bits > 16:
		return invalid("digit width %v not in [1, 16]", p.Bits)
	case p.TotalBits < p.Bits || p.TotalBits > 32:
		return invalid("key width %v not in [%v, 32]", p.TotalBits, p.Bits)
	case p.TotalBits%p.Bits != 0:
		return invalid("key width %v is not a multiple of the digit width %v", p.TotalBits, p.Bits)
	case !internal.IsPowerOfTwo(p.Groups):
		return invalid("number of groups %v is not a power of two", p.Groups)
	case !internal.IsPowerOfTwo(p.Items):
		return invalid("number of items %v is not a power of two", p.Items)
	case p.Capacity <= 0 || p.Capacity%p.Lanes() != 0:
		return invalid("capacity %v is not a positive multiple of %v lanes", p.Capacity, p.Lanes())
	case uint64(p.Capacity) > uint64(^uint32(0)):
		return invalid("capacity %v does not fit 32-bit offsets", p.Capacity)
	case !internal.IsPowerOfTwo(p.HistoSplit):
		return invalid("histogram split %v is not a power of two", p.HistoSplit)
	case p.HistoSplit < 2 || p.TableSize()%p.HistoSplit != 0 || p.TableSize()/p.HistoSplit < 2:
		return invalid("histogram split %v does not divide the table of %v entries into chunks of at least 2", p.HistoSplit, p.TableSize())
	}
	return nil
}
