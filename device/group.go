package device

import "fmt"

// ndrange is a one- or two-dimensional index space divided into work
// groups.
type ndrange struct {
	dims   int
	groups [2]int
	local  [2]int
}

func newNDRange(global, local []int, maxGroupSize int) (nd ndrange, err error) {
	if len(global) < 1 || len(global) > 2 || len(global) != len(local) {
		return nd, fmt.Errorf("device: invalid work dimensions: global %v, local %v", global, local)
	}
	nd.dims = len(global)
	nd.groups = [2]int{1, 1}
	nd.local = [2]int{1, 1}
	size := 1
	for d := range global {
		if global[d] <= 0 || local[d] <= 0 {
			return nd, fmt.Errorf("device: invalid work sizes: global %v, local %v", global, local)
		}
		if global[d]%local[d] != 0 {
			return nd, fmt.Errorf("device: global size %v is not a multiple of local size %v in dimension %v", global[d], local[d], d)
		}
		nd.groups[d] = global[d] / local[d]
		nd.local[d] = local[d]
		size *= local[d]
	}
	if size > maxGroupSize {
		return nd, fmt.Errorf("device: work-group size %v exceeds the maximum of %v", size, maxGroupSize)
	}
	return nd, nil
}

func (nd ndrange) count() int {
	return nd.groups[0] * nd.groups[1]
}

// A Group is the view of one work group onto a dispatch: its position in
// the index space, its bound arguments, and its local scratch memory.
type Group struct {
	nd      ndrange
	id      [2]int
	args    []interface{}
	scratch [][]uint32
}

func newGroup(nd ndrange, args []interface{}) *Group {
	g := &Group{nd: nd, args: args, scratch: make([][]uint32, len(args))}
	for i, arg := range args {
		if l, ok := arg.(LocalArg); ok {
			g.scratch[i] = make([]uint32, l.bytes/4)
		}
	}
	return g
}

// enter positions the group at linear group index i. Dimension 0 varies
// fastest.
func (g *Group) enter(i int) {
	g.id[0] = i % g.nd.groups[0]
	g.id[1] = i / g.nd.groups[0]
}

// Dims returns the number of dimensions of the index space.
func (g *Group) Dims() int {
	return g.nd.dims
}

// ID returns the index of the group in dimension d.
func (g *Group) ID(d int) int {
	return g.id[d]
}

// NumGroups returns the number of groups in dimension d.
func (g *Group) NumGroups(d int) int {
	return g.nd.groups[d]
}

// LocalSize returns the number of lanes of the group in dimension d.
func (g *Group) LocalSize(d int) int {
	return g.nd.local[d]
}

// GlobalSize returns the number of lanes of the whole dispatch in
// dimension d.
func (g *Group) GlobalSize(d int) int {
	return g.nd.groups[d] * g.nd.local[d]
}

// GlobalID returns the global index of the given lane of the group in
// dimension d.
func (g *Group) GlobalID(d, lane int) int {
	return g.id[d]*g.nd.local[d] + lane
}

// Buffer returns the words of the buffer bound as argument i.
func (g *Group) Buffer(i int) []uint32 {
	b, ok := g.args[i].(*Buffer)
	if !ok {
		panic(fmt.Sprintf("argument %v is not a buffer: %T", i, g.args[i]))
	}
	return b.data
}

// Uint returns the scalar bound as argument i.
func (g *Group) Uint(i int) uint32 {
	v, ok := g.args[i].(uint32)
	if !ok {
		panic(fmt.Sprintf("argument %v is not a scalar: %T", i, g.args[i]))
	}
	return v
}

// Int returns the scalar bound as argument i as an int.
func (g *Group) Int(i int) int {
	return int(g.Uint(i))
}

// Local returns the group-local scratch memory bound as argument i. Its
// contents are left over from whichever group used it before.
func (g *Group) Local(i int) []uint32 {
	s := g.scratch[i]
	if s == nil {
		panic(fmt.Sprintf("argument %v is not local memory: %T", i, g.args[i]))
	}
	return s
}
