package device

import (
	"errors"
	"fmt"
	"sort"
)

// A KernelFunc is the body of a kernel. It is invoked once per work group
// of a dispatch and iterates over the lanes of that group.
type KernelFunc func(g *Group)

// A Source maps kernel names to their bodies.
type Source map[string]KernelFunc

// A Program is a set of kernels that can be built for a device.
type Program struct {
	dev   *Device
	src   Source
	built bool
}

// NewProgram creates a program from the given source. The source is
// copied, so later changes to it do not affect the program.
func (d *Device) NewProgram(src Source) *Program {
	p := &Program{dev: d, src: make(Source, len(src))}
	for name, fn := range src {
		p.src[name] = fn
	}
	return p
}

// Build prepares all kernels of the program for execution. Build fails
// if the program is empty, or if a kernel has no name or no body.
func (p *Program) Build() error {
	if len(p.src) == 0 {
		return errors.New("device: build failed: program contains no kernels")
	}
	names := make([]string, 0, len(p.src))
	for name := range p.src {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "" {
			return errors.New("device: build failed: kernel without a name")
		}
		if p.src[name] == nil {
			return fmt.Errorf("device: build failed: kernel %q has no body", name)
		}
	}
	p.built = true
	return nil
}

// Kernel returns a new kernel object for the kernel with the given name.
// The program must have been built.
func (p *Program) Kernel(name string) (*Kernel, error) {
	if !p.built {
		return nil, fmt.Errorf("device: kernel %q requested from a program that has not been built", name)
	}
	fn, ok := p.src[name]
	if !ok {
		return nil, fmt.Errorf("device: no kernel named %q in program", name)
	}
	return &Kernel{name: name, fn: fn}, nil
}

// A LocalArg is a kernel argument that requests group-local scratch
// memory. Each work group receives its own scratch region, which is not
// initialized.
type LocalArg struct {
	bytes int
}

// Local requests bytes of group-local scratch memory as a kernel
// argument.
func Local(bytes int) LocalArg {
	return LocalArg{bytes}
}

// A Kernel is a kernel of a built program together with its bound
// arguments.
type Kernel struct {
	name string
	fn   KernelFunc
	args []interface{}
}

// Name returns the name of the kernel.
func (k *Kernel) Name() string {
	return k.name
}

// SetArg binds argument i of the kernel. Valid values are a *Buffer, a
// uint32 or int scalar, and a LocalArg. The binding stays in effect for
// all subsequent dispatches of the kernel until it is replaced.
func (k *Kernel) SetArg(i int, value interface{}) error {
	if i < 0 {
		return fmt.Errorf("device: kernel %q: invalid argument index %v", k.name, i)
	}
	switch v := value.(type) {
	case *Buffer:
		if v == nil {
			return fmt.Errorf("device: kernel %q: argument %v is a nil buffer", k.name, i)
		}
		if err := v.check(); err != nil {
			return fmt.Errorf("device: kernel %q: argument %v: %w", k.name, i, err)
		}
	case uint32:
	case int:
		if v < 0 || uint64(v) > uint64(^uint32(0)) {
			return fmt.Errorf("device: kernel %q: argument %v: scalar %v out of range", k.name, i, v)
		}
		value = uint32(v)
	case LocalArg:
		if v.bytes <= 0 || v.bytes%4 != 0 {
			return fmt.Errorf("device: kernel %q: argument %v: invalid local memory size %v", k.name, i, v.bytes)
		}
	default:
		return fmt.Errorf("device: kernel %q: argument %v has unsupported type %T", k.name, i, value)
	}
	for len(k.args) <= i {
		k.args = append(k.args, nil)
	}
	k.args[i] = value
	return nil
}

// bind returns a snapshot of the current arguments, together with the
// amount of local memory they request.
func (k *Kernel) bind() (args []interface{}, local int, err error) {
	args = make([]interface{}, len(k.args))
	for i, arg := range k.args {
		switch v := arg.(type) {
		case nil:
			return nil, 0, fmt.Errorf("device: kernel %q: argument %v is not set", k.name, i)
		case *Buffer:
			if err := v.check(); err != nil {
				return nil, 0, fmt.Errorf("device: kernel %q: argument %v: %w", k.name, i, err)
			}
		case LocalArg:
			local += v.bytes
		}
		args[i] = arg
	}
	return args, local, nil
}
