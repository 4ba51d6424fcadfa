package compiler

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/runnerrunnerrunner/nikola/types"
)

// CVal is the compiled form of a value: C expression text arranged by
// shape. Scalars are single expressions, tuples are trees of them, and
// arrays carry one pointer expression per element leaf plus one extent
// expression per dimension. There is no single expression for a tuple
// or an array; consumers flatten.
type CVal interface {
	cval()
	String() string
}

// Void is the compiled form of Unit. It occupies no slots.
type Void struct{}

func (Void) cval()          {}
func (Void) String() string { return "void" }

// ScalarV is a single C expression of scalar type.
type ScalarV struct {
	X string
}

func (v ScalarV) cval()          {}
func (v ScalarV) String() string { return v.X }

// TupleV mirrors the tuple structure of its type.
type TupleV struct {
	Elems []CVal
}

func (v TupleV) cval() {}
func (v TupleV) String() string {
	parts := make([]string, len(v.Elems))
	for i, e := range v.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ArrayV is a compiled array: a pointer representation and the extent
// expressions. Arrays of tuples hold one buffer per field, so Ptr
// mirrors the element's tuple structure.
type ArrayV struct {
	Ptr  PtrRep
	Dims []string
}

func (v ArrayV) cval() {}
func (v ArrayV) String() string {
	return fmt.Sprintf("%s[%s]", v.Ptr, strings.Join(v.Dims, ", "))
}

// FunV names an emitted helper function.
type FunV struct {
	Name string
}

func (v FunV) cval()          {}
func (v FunV) String() string { return v.Name }

// PtrRep is the pointer representation of an array: one C pointer
// expression per element leaf, shaped like the element type.
type PtrRep interface {
	ptrRep()
	String() string
}

type OnePtr struct {
	X string
}

func (p OnePtr) ptrRep()        {}
func (p OnePtr) String() string { return p.X }

type TuplePtr struct {
	Elems []PtrRep
}

func (p TuplePtr) ptrRep() {}
func (p TuplePtr) String() string {
	parts := make([]string, len(p.Elems))
	for i, e := range p.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ctypeScalar maps a non-tuple scalar to its C type. Dimensions and
// loop indices are plain int; booleans are bytes.
func ctypeScalar(s types.Scalar) string {
	switch s := s.(type) {
	case types.Unit:
		return "void"
	case types.Bool:
		return "unsigned char"
	case types.Int:
		return fmt.Sprintf("int%d_t", s.Width)
	case types.Uint:
		return fmt.Sprintf("uint%d_t", s.Width)
	case types.Float:
		if s.Width == 32 {
			return "float"
		}
		return "double"
	default:
		panic(fmt.Sprintf("internal: no C type for scalar %s", s))
	}
}

// ctypePtr maps a pointer-to-scalar to its C type. Pointers to tuples
// have no single C form; arrays of tuples carry one pointer per leaf.
func ctypePtr(p types.Ptr) string {
	return ctypeScalar(p.Elem) + "*"
}

// conv is one row of the result convention: the C return type, the
// leading qualifiers and linkage, and for host procedures the status
// initializer.
type conv struct {
	ret  string
	qual string
	init string
}

// convention resolves dialect and calling context to the result
// convention row. Host procedures return a status code with results in
// out-parameters, kernels are void with out-parameters, and helpers
// return a single scalar leaf by value (passed as byValue) or go
// through out-parameters otherwise.
func (c *Compiler) convention(ctx callCtx, byValue types.Scalar) conv {
	cuda := c.cfg.Dialect == CUDA
	switch ctx {
	case ctxHost:
		if cuda {
			return conv{ret: "cudaError_t", init: "cudaSuccess", qual: `extern "C"`}
		}
		return conv{ret: "int", init: "0"}
	case ctxKernel:
		if cuda {
			return conv{ret: "void", qual: `extern "C" __global__`}
		}
		return conv{ret: "void", qual: "static"}
	default:
		qual := "static"
		if c.fr.device {
			qual = "__device__ static"
		}
		if byValue != nil {
			return conv{ret: ctypeScalar(byValue), qual: qual}
		}
		return conv{ret: "void", qual: qual}
	}
}

// slot is one flattened parameter or result position.
type slot struct {
	name  string
	ctype string
}

// scalarSlots lays out the leaves of a scalar under a base name.
// Single-leaf scalars keep the bare name; tuple leaves are numbered.
func scalarSlots(base string, s types.Scalar) []slot {
	leaves := types.Fields(s)
	if len(leaves) == 1 {
		if _, ok := leaves[0].(types.Unit); ok {
			return nil
		}
		return []slot{{name: base, ctype: ctypeScalar(leaves[0])}}
	}
	out := make([]slot, 0, len(leaves))
	for i, leaf := range leaves {
		if _, ok := leaf.(types.Unit); ok {
			continue
		}
		out = append(out, slot{
			name:  fmt.Sprintf("%s_%d", base, i),
			ctype: ctypeScalar(leaf),
		})
	}
	return out
}

// arraySlots lays out an array under a base name: one pointer per
// element leaf followed by one int per dimension.
func arraySlots(base string, a types.Array) []slot {
	leaves := types.Fields(a.Elem)
	out := make([]slot, 0, len(leaves)+a.Rank)
	if len(leaves) == 1 {
		out = append(out, slot{name: base, ctype: ctypePtr(types.Ptr{Elem: leaves[0]})})
	} else {
		for i, leaf := range leaves {
			out = append(out, slot{
				name:  fmt.Sprintf("%s_%d", base, i),
				ctype: ctypePtr(types.Ptr{Elem: leaf}),
			})
		}
	}
	for d := 0; d < a.Rank; d++ {
		out = append(out, slot{name: fmt.Sprintf("%s_dim%d", base, d), ctype: "int"})
	}
	return out
}

// typeSlots lays out any parameter or result type.
func typeSlots(base string, t types.Type) ([]slot, error) {
	switch t := t.(type) {
	case types.Array:
		return arraySlots(base, t), nil
	default:
		if s, ok := types.AsScalar(t); ok {
			return scalarSlots(base, s), nil
		}
		return nil, errors.Errorf("type %s cannot cross a procedure boundary", t)
	}
}

// outSlots lays out a result as out-parameters, numbered in slot
// order.
func outSlots(t types.Type) ([]slot, error) {
	slots, err := typeSlots("out", t)
	if err != nil {
		return nil, err
	}
	outs := make([]slot, len(slots))
	for i, s := range slots {
		outs[i] = slot{name: fmt.Sprintf("out%d", i), ctype: s.ctype}
	}
	return outs, nil
}

// valueOfSlots rebuilds the CVal of type t whose leaves are the given
// expressions, in slot order.
func valueOfSlots(t types.Type, exprs []string) (CVal, error) {
	switch t := t.(type) {
	case types.Array:
		leaves := types.NumFields(t.Elem)
		if len(exprs) != leaves+t.Rank {
			return nil, errors.Errorf("internal: %s wants %d slots, got %d", t, leaves+t.Rank, len(exprs))
		}
		rep, rest := buildPtrRep(t.Elem, exprs)
		return ArrayV{Ptr: rep, Dims: rest}, nil
	default:
		s, ok := types.AsScalar(t)
		if !ok {
			return nil, errors.Errorf("type %s cannot cross a procedure boundary", t)
		}
		v, rest := buildScalarV(s, exprs)
		if len(rest) != 0 {
			return nil, errors.Errorf("internal: %s left %d slots over", t, len(rest))
		}
		return v, nil
	}
}

func buildScalarV(s types.Scalar, exprs []string) (CVal, []string) {
	switch s := s.(type) {
	case types.Unit:
		return Void{}, exprs
	case types.Tuple:
		elems := make([]CVal, len(s.Elems))
		for i, e := range s.Elems {
			elems[i], exprs = buildScalarV(e, exprs)
		}
		return TupleV{Elems: elems}, exprs
	default:
		return ScalarV{X: exprs[0]}, exprs[1:]
	}
}

func buildPtrRep(s types.Scalar, exprs []string) (PtrRep, []string) {
	if t, ok := s.(types.Tuple); ok {
		elems := make([]PtrRep, len(t.Elems))
		for i, e := range t.Elems {
			elems[i], exprs = buildPtrRep(e, exprs)
		}
		return TuplePtr{Elems: elems}, exprs
	}
	return OnePtr{X: exprs[0]}, exprs[1:]
}

// flattenCVal lists the slot expressions of a data value: scalar
// leaves, or array pointer leaves followed by extents. Unit
// contributes nothing.
func flattenCVal(v CVal) ([]string, error) {
	switch v := v.(type) {
	case Void:
		return nil, nil
	case ScalarV:
		return []string{v.X}, nil
	case TupleV:
		var out []string
		for _, e := range v.Elems {
			leaves, err := flattenCVal(e)
			if err != nil {
				return nil, err
			}
			out = append(out, leaves...)
		}
		return out, nil
	case ArrayV:
		out := flattenPtrRep(v.Ptr)
		out = append(out, v.Dims...)
		return out, nil
	default:
		return nil, errors.Errorf("internal: value %s has no slot form", v)
	}
}

func flattenPtrRep(p PtrRep) []string {
	switch p := p.(type) {
	case OnePtr:
		return []string{p.X}
	case TuplePtr:
		var out []string
		for _, e := range p.Elems {
			out = append(out, flattenPtrRep(e)...)
		}
		return out
	default:
		return nil
	}
}
