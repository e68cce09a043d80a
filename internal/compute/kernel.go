package compute

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fxnlabs/amp-core/internal/accel"
)

type opcode uint8

const (
	opInvalid opcode = iota
	opLoad
	opConst
	opCoord
	opAdd
	opSub
	opMul
	opDiv
	opNeg
	opMin
	opMax
	opSelect
	// Host-only operations.
	opHostCall
	opAlloc
)

var opNames = [...]string{
	opInvalid:  "invalid",
	opLoad:     "load",
	opConst:    "const",
	opCoord:    "coord",
	opAdd:      "add",
	opSub:      "sub",
	opMul:      "mul",
	opDiv:      "div",
	opNeg:      "neg",
	opMin:      "min",
	opMax:      "max",
	opSelect:   "select",
	opHostCall: "hostcall",
	opAlloc:    "alloc",
}

// arity is the number of operands each opcode takes.
var arity = [...]int{
	opAdd: 2, opSub: 2, opMul: 2, opDiv: 2, opMin: 2, opMax: 2,
	opNeg: 1, opHostCall: 1, opAlloc: 1,
	opSelect: 3,
}

// Expr is a node of a kernel body. Kernel bodies are built only from the
// constructors below, so everything a kernel can do is known before it runs.
type Expr[T Number] struct {
	op    opcode
	view  *View[T]
	value T
	dim   int
	n     int
	fn    func(T) T
	args  []Expr[T]
}

// Load reads v at the current work-item's index.
func Load[T Number](v *View[T]) Expr[T] {
	return Expr[T]{op: opLoad, view: v}
}

// Const is a literal value.
func Const[T Number](c T) Expr[T] {
	return Expr[T]{op: opConst, value: c}
}

// Coord is the current work-item's coordinate along dimension dim.
func Coord[T Number](dim int) Expr[T] {
	return Expr[T]{op: opCoord, dim: dim}
}

func Add[T Number](a, b Expr[T]) Expr[T] { return Expr[T]{op: opAdd, args: []Expr[T]{a, b}} }
func Sub[T Number](a, b Expr[T]) Expr[T] { return Expr[T]{op: opSub, args: []Expr[T]{a, b}} }
func Mul[T Number](a, b Expr[T]) Expr[T] { return Expr[T]{op: opMul, args: []Expr[T]{a, b}} }
func Div[T Number](a, b Expr[T]) Expr[T] { return Expr[T]{op: opDiv, args: []Expr[T]{a, b}} }
func Min[T Number](a, b Expr[T]) Expr[T] { return Expr[T]{op: opMin, args: []Expr[T]{a, b}} }
func Max[T Number](a, b Expr[T]) Expr[T] { return Expr[T]{op: opMax, args: []Expr[T]{a, b}} }
func Neg[T Number](a Expr[T]) Expr[T]    { return Expr[T]{op: opNeg, args: []Expr[T]{a}} }

// Select yields a when cond > 0 and b otherwise.
func Select[T Number](cond, a, b Expr[T]) Expr[T] {
	return Expr[T]{op: opSelect, args: []Expr[T]{cond, a, b}}
}

// HostCall applies an arbitrary Go function to a. The device must support
// accel.CapHostCallbacks.
func HostCall[T Number](fn func(T) T, a Expr[T]) Expr[T] {
	return Expr[T]{op: opHostCall, fn: fn, args: []Expr[T]{a}}
}

// Alloc allocates an n-element scratch buffer per work-item, fills it with a
// and yields its sum. The device must support accel.CapDynamicAlloc.
func Alloc[T Number](n int, a Expr[T]) Expr[T] {
	return Expr[T]{op: opAlloc, n: n, args: []Expr[T]{a}}
}

func (e Expr[T]) String() string {
	var b strings.Builder
	e.format(&b)
	return b.String()
}

func (e Expr[T]) format(b *strings.Builder) {
	switch e.op {
	case opConst:
		fmt.Fprint(b, e.value)
		return
	case opCoord:
		b.WriteString("coord(" + strconv.Itoa(e.dim) + ")")
		return
	case opLoad:
		if e.view == nil {
			b.WriteString("load(nil)")
		} else {
			b.WriteString("load(" + e.view.extent.String() + ")")
		}
		return
	}
	if int(e.op) < len(opNames) {
		b.WriteString(opNames[e.op])
	}
	b.WriteByte('(')
	if e.op == opAlloc {
		b.WriteString(strconv.Itoa(e.n) + ", ")
	}
	for i, a := range e.args {
		if i > 0 {
			b.WriteString(", ")
		}
		a.format(b)
	}
	b.WriteByte(')')
}

// Kernel is a validated kernel body together with the view it writes.
type Kernel[T Number] struct {
	out      *View[T]
	body     Expr[T]
	inputs   []*View[T]
	requires accel.Capability
	maxDim   int
}

// Compile checks body and binds it to out: for every index of a dispatch,
// out[index] = body(index). It records which views are read and which
// host-only capabilities the body needs.
func Compile[T Number](out *View[T], body Expr[T]) (*Kernel[T], error) {
	if out == nil {
		return nil, fmt.Errorf("%w: kernel has no output view", ErrInvalidOperation)
	}
	k := &Kernel[T]{out: out, body: body, maxDim: -1}
	seen := make(map[*View[T]]bool)
	if err := k.collect(body, seen); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *Kernel[T]) collect(e Expr[T], seen map[*View[T]]bool) error {
	if e.op == opInvalid || int(e.op) >= len(opNames) {
		return fmt.Errorf("%w: uninitialized expression in kernel body", ErrInvalidOperation)
	}
	if int(e.op) < len(arity) && len(e.args) != arity[e.op] {
		return fmt.Errorf("%w: %s takes %d operands, got %d", ErrInvalidOperation, opNames[e.op], arity[e.op], len(e.args))
	}
	switch e.op {
	case opLoad:
		if e.view == nil {
			return fmt.Errorf("%w: load from nil view", ErrInvalidOperation)
		}
		if !seen[e.view] {
			seen[e.view] = true
			k.inputs = append(k.inputs, e.view)
		}
	case opCoord:
		if e.dim < 0 {
			return fmt.Errorf("%w: coordinate dimension %d", ErrInvalidShape, e.dim)
		}
		k.maxDim = max(k.maxDim, e.dim)
	case opHostCall:
		if e.fn == nil {
			return fmt.Errorf("%w: host call with nil function", ErrInvalidOperation)
		}
		k.requires |= accel.CapHostCallbacks
	case opAlloc:
		if e.n <= 0 {
			return fmt.Errorf("%w: allocation of %d elements", ErrInvalidOperation, e.n)
		}
		k.requires |= accel.CapDynamicAlloc
	}
	for _, a := range e.args {
		if err := k.collect(a, seen); err != nil {
			return err
		}
	}
	return nil
}

// Output returns the view the kernel writes.
func (k *Kernel[T]) Output() *View[T] { return k.out }

// Inputs returns the views the kernel reads, in order of first appearance.
func (k *Kernel[T]) Inputs() []*View[T] { return append([]*View[T](nil), k.inputs...) }

// Requires returns the host-only capabilities the body uses.
func (k *Kernel[T]) Requires() accel.Capability { return k.requires }

func (k *Kernel[T]) String() string {
	return "out(" + k.out.extent.String() + ") = " + k.body.String()
}

// check validates the kernel against a domain and the device it will run on.
func (k *Kernel[T]) check(domain Extent, info accel.DeviceInfo) error {
	if domain.Rank() == 0 {
		return fmt.Errorf("%w: empty execution domain", ErrInvalidShape)
	}
	if !k.out.extent.Equal(domain) {
		return fmt.Errorf("%w: output view %s does not match domain %s", ErrInvalidShape, k.out.extent, domain)
	}
	for _, in := range k.inputs {
		if !in.extent.Equal(domain) {
			return fmt.Errorf("%w: input view %s does not match domain %s", ErrInvalidShape, in.extent, domain)
		}
	}
	if k.out.mode != ReadWrite {
		return fmt.Errorf("%w: output view is %s", ErrInvalidOperation, k.out.mode)
	}
	if k.maxDim >= domain.Rank() {
		return fmt.Errorf("%w: coord(%d) in a rank %d domain", ErrInvalidShape, k.maxDim, domain.Rank())
	}
	if missing := info.Capabilities.Missing(k.requires); missing != accel.CapNone {
		return fmt.Errorf("%w: %s needs %s", ErrKernelCapability, info.Path, missing)
	}
	return nil
}

// evalFunc computes one element. idx is nil unless the body uses Coord.
type evalFunc[T Number] func(i int, idx Index) T

// bind turns e into a closure reading from the device slices in data.
func bind[T Number](e Expr[T], data map[*View[T]][]T) evalFunc[T] {
	switch e.op {
	case opLoad:
		src := data[e.view]
		return func(i int, _ Index) T { return src[i] }
	case opConst:
		c := e.value
		return func(int, Index) T { return c }
	case opCoord:
		d := e.dim
		return func(_ int, idx Index) T { return T(idx[d]) }
	}

	args := make([]evalFunc[T], len(e.args))
	for i, a := range e.args {
		args[i] = bind(a, data)
	}
	switch e.op {
	case opAdd:
		a, b := args[0], args[1]
		return func(i int, idx Index) T { return a(i, idx) + b(i, idx) }
	case opSub:
		a, b := args[0], args[1]
		return func(i int, idx Index) T { return a(i, idx) - b(i, idx) }
	case opMul:
		a, b := args[0], args[1]
		return func(i int, idx Index) T { return a(i, idx) * b(i, idx) }
	case opDiv:
		a, b := args[0], args[1]
		return func(i int, idx Index) T { return a(i, idx) / b(i, idx) }
	case opMin:
		a, b := args[0], args[1]
		return func(i int, idx Index) T { return min(a(i, idx), b(i, idx)) }
	case opMax:
		a, b := args[0], args[1]
		return func(i int, idx Index) T { return max(a(i, idx), b(i, idx)) }
	case opNeg:
		a := args[0]
		return func(i int, idx Index) T { return -a(i, idx) }
	case opSelect:
		c, a, b := args[0], args[1], args[2]
		return func(i int, idx Index) T {
			if c(i, idx) > 0 {
				return a(i, idx)
			}
			return b(i, idx)
		}
	case opHostCall:
		fn, a := e.fn, args[0]
		return func(i int, idx Index) T { return fn(a(i, idx)) }
	case opAlloc:
		n, a := e.n, args[0]
		return func(i int, idx Index) T {
			scratch := make([]T, n)
			v := a(i, idx)
			var sum T
			for j := range scratch {
				scratch[j] = v
				sum += scratch[j]
			}
			return sum
		}
	}
	panic("compute: unbound opcode " + opNames[e.op])
}

// program binds the kernel to device slices for one launch over domain.
// deps are the launches still writing the kernel's inputs; they were queued
// earlier on the same device, so they have finished when the program runs.
// If any of them failed the program fails without writing.
func (k *Kernel[T]) program(domain Extent, out []T, data map[*View[T]][]T, deps []*accel.Event) accel.Program {
	eval := bind(k.body, data)
	useCoord := k.maxDim >= 0
	return accel.ProgramFunc(func(lo, hi int) error {
		for _, ev := range deps {
			if err := ev.Err(); err != nil {
				return fmt.Errorf("input written by a failed launch: %w", err)
			}
		}
		var idx Index
		if useCoord {
			idx = make(Index, domain.Rank())
			domain.unravelInto(lo, idx)
		}
		for i := lo; i < hi; i++ {
			out[i] = eval(i, idx)
			if useCoord {
				domain.advance(idx)
			}
		}
		return nil
	})
}
