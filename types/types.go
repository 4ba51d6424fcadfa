package types

import (
	"fmt"
	"strings"
)

type Kind int

const (
	UnitKind Kind = iota
	BoolKind
	IntKind
	UintKind
	FloatKind
	TupleKind
	PtrKind
	ArrayKind
	FunKind
	ActionKind
)

// Type is the interface for all types in the language.
type Type interface {
	String() string
	Kind() Kind
}

// Scalar is the subset of types that fit in a register or a tuple of
// registers. Arrays, pointers, functions and actions are not scalars,
// so tuples cannot contain them by construction.
type Scalar interface {
	Type
	scalar()
}

// Common concrete types for readability. They keep their struct types
// so literal nodes can take them directly; the scalar structs are
// comparable by value, which also makes them safe as map keys.
var (
	U   = Unit{}
	B   = Bool{}
	I8  = Int{Width: 8}
	I16 = Int{Width: 16}
	I32 = Int{Width: 32}
	I64 = Int{Width: 64}
	U8  = Uint{Width: 8}
	U16 = Uint{Width: 16}
	U32 = Uint{Width: 32}
	U64 = Uint{Width: 64}
	F32 = Float{Width: 32}
	F64 = Float{Width: 64}
)

// Unit is the empty scalar. It occupies no result slots.
type Unit struct{}

func (u Unit) Kind() Kind     { return UnitKind }
func (u Unit) String() string { return "Unit" }
func (u Unit) scalar()        {}

// Bool is the boolean scalar. Its storage is a byte; note the literal
// encoding in the emitter is inverted (true is 0).
type Bool struct{}

func (b Bool) Kind() Kind     { return BoolKind }
func (b Bool) String() string { return "Bool" }
func (b Bool) scalar()        {}

// Int represents a signed integer type with a given bit width.
type Int struct {
	Width uint32 // 8, 16, 32 or 64
}

func (i Int) String() string {
	return fmt.Sprintf("I%d", i.Width)
}

func (i Int) Kind() Kind { return IntKind }
func (i Int) scalar()    {}

// Uint represents an unsigned integer type with a given bit width.
type Uint struct {
	Width uint32 // 8, 16, 32 or 64
}

func (u Uint) String() string {
	return fmt.Sprintf("U%d", u.Width)
}

func (u Uint) Kind() Kind { return UintKind }
func (u Uint) scalar()    {}

// Float represents a floating-point type with a given bit width.
type Float struct {
	Width uint32 // 32 or 64
}

func (f Float) String() string {
	return fmt.Sprintf("F%d", f.Width)
}

func (f Float) Kind() Kind { return FloatKind }
func (f Float) scalar()    {}

// Tuple is a scalar product type. Element order is significant.
type Tuple struct {
	Elems []Scalar
}

func (t Tuple) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	for i, e := range t.Elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.String())
	}
	sb.WriteString(")")
	return sb.String()
}

func (t Tuple) Kind() Kind { return TupleKind }
func (t Tuple) scalar()    {}

// Ptr is a pointer to scalar storage. Pointers to tuples are
// represented structurally as tuples of pointers to the fields, so a
// Ptr whose Elem is a Tuple never names a single allocation.
type Ptr struct {
	Elem Scalar
}

func (p Ptr) String() string {
	return fmt.Sprintf("Ptr_%s", p.Elem.String())
}

func (p Ptr) Kind() Kind { return PtrKind }

// Array is a dense multidimensional array of scalars. Rank is the
// number of dimensions and must be at least 1; extents are values, not
// part of the type.
type Array struct {
	Rank int
	Elem Scalar
}

func (a Array) String() string {
	return fmt.Sprintf("[%d]%s", a.Rank, a.Elem.String())
}

func (a Array) Kind() Kind { return ArrayKind }

// Fun is a function type.
type Fun struct {
	Params []Type
	Ret    Type
}

func (f Fun) String() string {
	return fmt.Sprintf("(%s) -> %s", typesStr(f.Params), f.Ret.String())
}

func (f Fun) Kind() Kind { return FunKind }

// Action marks a host-sublanguage computation producing Of. It is a
// transparent wrapper with no runtime representation of its own.
type Action struct {
	Of Type
}

func (a Action) String() string {
	return fmt.Sprintf("Action(%s)", a.Of.String())
}

func (a Action) Kind() Kind { return ActionKind }

func typesStr(types []Type) string {
	if len(types) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, t := range types {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.String())
	}
	return sb.String()
}

// Fields flattens a scalar to its non-tuple leaves, left to right.
// A non-tuple scalar is its own single leaf; Unit has one leaf (itself)
// but no storage, which result marshaling accounts for separately.
func Fields(s Scalar) []Scalar {
	if t, ok := s.(Tuple); ok {
		var out []Scalar
		for _, e := range t.Elems {
			out = append(out, Fields(e)...)
		}
		return out
	}
	return []Scalar{s}
}

// NumFields is len(Fields(s)).
func NumFields(s Scalar) int {
	if t, ok := s.(Tuple); ok {
		n := 0
		for _, e := range t.Elems {
			n += NumFields(e)
		}
		return n
	}
	return 1
}

// AsScalar reports the scalar behind t, unwrapping nothing: it is the
// checked downcast call sites would otherwise repeat.
func AsScalar(t Type) (Scalar, bool) {
	s, ok := t.(Scalar)
	return s, ok
}

// Unwrap strips an Action wrapper, if present.
func Unwrap(t Type) Type {
	if a, ok := t.(Action); ok {
		return Unwrap(a.Of)
	}
	return t
}

// Checks if two type slices are equal, pairwise.
func EqualSlices(left []Type, right []Type) bool {
	if len(left) != len(right) {
		return false
	}
	for i, l := range left {
		if !Equal(l, right[i]) {
			return false
		}
	}
	return true
}

// Equal performs structural equality on types with a dispatcher by Kind.
func Equal(a, b Type) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	cmp := typeComparer(a.Kind())
	return cmp(a, b)
}

func typeComparer(k Kind) func(a, b Type) bool {
	switch k {
	case UnitKind:
		return eqAlways
	case BoolKind:
		return eqAlways
	case IntKind:
		return eqInt
	case UintKind:
		return eqUint
	case FloatKind:
		return eqFloat
	case TupleKind:
		return eqTuple
	case PtrKind:
		return eqPtr
	case ArrayKind:
		return eqArray
	case FunKind:
		return eqFun
	case ActionKind:
		return eqAction
	default:
		return func(a, b Type) bool { panic(fmt.Sprintf("Equal: unhandled kind %v", k)) }
	}
}

func eqAlways(a, b Type) bool { return true }

func eqInt(a, b Type) bool {
	ai := a.(Int)
	bi := b.(Int)
	return ai.Width == bi.Width
}

func eqUint(a, b Type) bool {
	au := a.(Uint)
	bu := b.(Uint)
	return au.Width == bu.Width
}

func eqFloat(a, b Type) bool {
	af := a.(Float)
	bf := b.(Float)
	return af.Width == bf.Width
}

func eqTuple(a, b Type) bool {
	at := a.(Tuple)
	bt := b.(Tuple)
	if len(at.Elems) != len(bt.Elems) {
		return false
	}
	for i := range at.Elems {
		if !Equal(at.Elems[i], bt.Elems[i]) {
			return false
		}
	}
	return true
}

func eqPtr(a, b Type) bool {
	ap := a.(Ptr)
	bp := b.(Ptr)
	return Equal(ap.Elem, bp.Elem)
}

func eqArray(a, b Type) bool {
	aa := a.(Array)
	ba := b.(Array)
	return aa.Rank == ba.Rank && Equal(aa.Elem, ba.Elem)
}

func eqFun(a, b Type) bool {
	af := a.(Fun)
	bf := b.(Fun)
	if !EqualSlices(af.Params, bf.Params) {
		return false
	}
	return Equal(af.Ret, bf.Ret)
}

func eqAction(a, b Type) bool {
	aa := a.(Action)
	ba := b.(Action)
	return Equal(aa.Of, ba.Of)
}
