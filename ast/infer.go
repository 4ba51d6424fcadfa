package ast

import (
	"github.com/pkg/errors"

	"github.com/runnerrunnerrunner/nikola/types"
)

// Env maps in-scope variable names to their types. Extension copies,
// so an Env handed to a recursive call is never mutated under the
// caller.
type Env map[string]types.Type

func (e Env) extend(name string, t types.Type) Env {
	out := make(Env, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	out[name] = t
	return out
}

// EnvOf builds an Env from formal parameters.
func EnvOf(fields []Field) Env {
	e := make(Env, len(fields))
	for _, f := range fields {
		e[f.Name] = f.T
	}
	return e
}

// ProcType reports the function type of a host procedure: its formal
// parameter types and the (action-unwrapped) type of its body.
func ProcType(p *HostProc) (types.Fun, error) {
	ret, err := InferHost(EnvOf(p.Params), p.Body)
	if err != nil {
		return types.Fun{}, err
	}
	params := make([]types.Type, len(p.Params))
	for i, f := range p.Params {
		params[i] = f.T
	}
	return types.Fun{Params: params, Ret: types.Unwrap(ret)}, nil
}

// KernelRetType reports the (action-unwrapped) result type of a kernel
// procedure.
func KernelRetType(p *KernelProc) (types.Type, error) {
	ret, err := InferKern(EnvOf(p.Params), p.Body)
	if err != nil {
		return nil, err
	}
	return types.Unwrap(ret), nil
}

// InferExp computes the type of a scalar expression. On well-formed
// input it is total; failures indicate an ill-formed AST and carry the
// offending node.
func InferExp(env Env, e Exp) (types.Type, error) {
	switch e := e.(type) {
	case *Var:
		t, ok := env[e.Name]
		if !ok {
			return nil, errors.Errorf("unbound variable %q", e.Name)
		}
		return t, nil
	case *IntLit:
		return e.S, nil
	case *UintLit:
		return e.S, nil
	case *FloatLit:
		return e.S, nil
	case *BoolLit:
		return types.B, nil
	case *UnitLit:
		return types.U, nil
	case *TupleExp:
		elems := make([]types.Scalar, len(e.Elems))
		for i, x := range e.Elems {
			t, err := InferExp(env, x)
			if err != nil {
				return nil, err
			}
			s, ok := types.AsScalar(t)
			if !ok {
				return nil, errors.Errorf("tuple element %d of %s has non-scalar type %s", i, e, t)
			}
			elems[i] = s
		}
		return types.Tuple{Elems: elems}, nil
	case *Proj:
		t, err := InferExp(env, e.X)
		if err != nil {
			return nil, err
		}
		tup, ok := t.(types.Tuple)
		if !ok {
			return nil, errors.Errorf("projection %s from non-tuple type %s", e, t)
		}
		if e.Index < 0 || e.Index >= len(tup.Elems) {
			return nil, errors.Errorf("projection index %d out of range for %s", e.Index, tup)
		}
		return tup.Elems[e.Index], nil
	case *ProjArr:
		t, err := InferExp(env, e.X)
		if err != nil {
			return nil, err
		}
		arr, ok := t.(types.Array)
		if !ok {
			return nil, errors.Errorf("field array projection %s from non-array type %s", e, t)
		}
		tup, ok := arr.Elem.(types.Tuple)
		if !ok {
			return nil, errors.Errorf("field array projection %s from array of non-tuple %s", e, arr)
		}
		if e.Index < 0 || e.Index >= len(tup.Elems) {
			return nil, errors.Errorf("field array index %d out of range for %s", e.Index, arr)
		}
		return types.Array{Rank: arr.Rank, Elem: tup.Elems[e.Index]}, nil
	case *DimOf:
		t, err := InferExp(env, e.X)
		if err != nil {
			return nil, err
		}
		arr, ok := t.(types.Array)
		if !ok {
			return nil, errors.Errorf("dimension query %s on non-array type %s", e, t)
		}
		if e.Index < 0 || e.Index >= arr.Rank {
			return nil, errors.Errorf("dimension index %d out of range for rank %d array", e.Index, arr.Rank)
		}
		return types.I32, nil
	case *LetExp:
		tx, err := InferExp(env, e.X)
		if err != nil {
			return nil, err
		}
		if e.T != nil && !types.Equal(tx, e.T) {
			return nil, errors.Errorf("let %s declares %s but binds %s", e.Name, e.T, tx)
		}
		return InferExp(env.extend(e.Name, tx), e.Body)
	case *Lam:
		benv := env
		params := make([]types.Type, len(e.Params))
		for i, f := range e.Params {
			params[i] = f.T
			benv = benv.extend(f.Name, f.T)
		}
		ret, err := InferExp(benv, e.Body)
		if err != nil {
			return nil, err
		}
		return types.Fun{Params: params, Ret: ret}, nil
	case *App:
		tf, err := InferExp(env, e.F)
		if err != nil {
			return nil, err
		}
		fn, ok := tf.(types.Fun)
		if !ok {
			return nil, errors.Errorf("application of non-function %s of type %s", e.F, tf)
		}
		if len(e.Args) != len(fn.Params) {
			return nil, errors.Errorf("%s expects %d arguments, got %d", e.F, len(fn.Params), len(e.Args))
		}
		for i, a := range e.Args {
			ta, err := InferExp(env, a)
			if err != nil {
				return nil, err
			}
			if !types.Equal(ta, fn.Params[i]) {
				return nil, errors.Errorf("argument %d of %s has type %s, want %s", i, e, ta, fn.Params[i])
			}
		}
		return fn.Ret, nil
	case *Unary:
		return inferUnary(env, e)
	case *Binary:
		return inferBinary(env, e)
	case *CondExp:
		tc, err := InferExp(env, e.Cond)
		if err != nil {
			return nil, err
		}
		if tc.Kind() != types.BoolKind {
			return nil, errors.Errorf("condition of %s has type %s, want Bool", e, tc)
		}
		tt, err := InferExp(env, e.Then)
		if err != nil {
			return nil, err
		}
		te, err := InferExp(env, e.Else)
		if err != nil {
			return nil, err
		}
		if !types.Equal(tt, te) {
			return nil, errors.Errorf("conditional branches of %s disagree: %s vs %s", e, tt, te)
		}
		return tt, nil
	case *SwitchExp:
		tt, err := InferExp(env, e.Tag)
		if err != nil {
			return nil, err
		}
		if !isIntegral(tt) {
			return nil, errors.Errorf("switch tag of %s has type %s, want an integer", e, tt)
		}
		var armT types.Type
		for _, c := range e.Cases {
			t, err := InferExp(env, c.Body)
			if err != nil {
				return nil, err
			}
			if armT == nil {
				armT = t
			} else if !types.Equal(armT, t) {
				return nil, errors.Errorf("switch arms of %s disagree: %s vs %s", e, armT, t)
			}
		}
		if e.Default != nil {
			t, err := InferExp(env, e.Default)
			if err != nil {
				return nil, err
			}
			if armT == nil {
				armT = t
			} else if !types.Equal(armT, t) {
				return nil, errors.Errorf("switch default of %s disagrees: %s vs %s", e, armT, t)
			}
		}
		if armT == nil {
			return nil, errors.Errorf("switch %s has no arms", e)
		}
		return armT, nil
	case *Idx:
		ta, err := InferExp(env, e.Arr)
		if err != nil {
			return nil, err
		}
		arr, ok := ta.(types.Array)
		if !ok {
			return nil, errors.Errorf("indexing %s into non-array type %s", e, ta)
		}
		ti, err := InferExp(env, e.I)
		if err != nil {
			return nil, err
		}
		if !isIntegral(ti) {
			return nil, errors.Errorf("index of %s has type %s, want an integer", e, ti)
		}
		return arr.Elem, nil
	case *DeferredExp:
		forced, err := e.Force()
		if err != nil {
			return nil, err
		}
		return InferExp(env, forced)
	default:
		return nil, errors.Errorf("internal: unknown expression node %T", e)
	}
}

func isIntegral(t types.Type) bool {
	return t.Kind() == types.IntKind || t.Kind() == types.UintKind
}

func isNumeric(t types.Type) bool {
	return isIntegral(t) || t.Kind() == types.FloatKind
}

func inferUnary(env Env, e *Unary) (types.Type, error) {
	tx, err := InferExp(env, e.X)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case OpNot:
		if tx.Kind() != types.BoolKind {
			return nil, errors.Errorf("operand of %s has type %s, want Bool", e, tx)
		}
		return tx, nil
	case OpNeg, OpAbs, OpSignum:
		if tx.Kind() != types.IntKind && tx.Kind() != types.FloatKind {
			return nil, errors.Errorf("operand of %s has type %s, want a signed numeric", e, tx)
		}
		return tx, nil
	default:
		// Transcendentals.
		if tx.Kind() != types.FloatKind {
			return nil, errors.Errorf("operand of %s has type %s, want a float", e, tx)
		}
		return tx, nil
	}
}

func inferBinary(env Env, e *Binary) (types.Type, error) {
	tx, err := InferExp(env, e.X)
	if err != nil {
		return nil, err
	}
	ty, err := InferExp(env, e.Y)
	if err != nil {
		return nil, err
	}
	if !types.Equal(tx, ty) {
		return nil, errors.Errorf("operands of %s have different types: %s vs %s", e, tx, ty)
	}
	switch e.Op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMin, OpMax:
		if !isNumeric(tx) {
			return nil, errors.Errorf("operands of %s have type %s, want a numeric", e, tx)
		}
		return tx, nil
	case OpMod, OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr:
		if !isIntegral(tx) {
			return nil, errors.Errorf("operands of %s have type %s, want an integer", e, tx)
		}
		return tx, nil
	case OpPow:
		if tx.Kind() != types.FloatKind {
			return nil, errors.Errorf("operands of %s have type %s, want a float", e, tx)
		}
		return tx, nil
	case OpEq, OpNe:
		if tx.Kind() == types.TupleKind {
			return nil, errors.Errorf("equality %s on tuple type %s", e, tx)
		}
		return types.B, nil
	case OpLt, OpLe, OpGt, OpGe:
		if !isNumeric(tx) {
			return nil, errors.Errorf("operands of %s have type %s, want a numeric", e, tx)
		}
		return types.B, nil
	case OpAnd, OpOr:
		if tx.Kind() != types.BoolKind {
			return nil, errors.Errorf("operands of %s have type %s, want Bool", e, tx)
		}
		return types.B, nil
	default:
		return nil, errors.Errorf("internal: unknown binary operator %v", e.Op)
	}
}

// InferValue computes the type of a value.
func InferValue(env Env, v Value) (types.Type, error) {
	switch v := v.(type) {
	case *ScalarVal:
		return InferExp(env, v.X)
	case *UnitVal:
		return types.U, nil
	case *ArrayVal:
		if len(v.Dims) == 0 {
			return nil, errors.Errorf("array value %s has rank 0", v)
		}
		return types.Array{Rank: len(v.Dims), Elem: v.Elem}, nil
	case *ProgVal:
		t, err := InferHost(env, v.P)
		if err != nil {
			return nil, err
		}
		return types.Action{Of: t}, nil
	default:
		return nil, errors.Errorf("internal: unknown value node %T", v)
	}
}

// InferHost computes the type of the value a host program produces.
func InferHost(env Env, p HostProg) (types.Type, error) {
	switch p := p.(type) {
	case *HostRet:
		return InferValue(env, p.V)
	case *HostSeq:
		if _, err := InferHost(env, p.First); err != nil {
			return nil, err
		}
		return InferHost(env, p.Then)
	case *HostLet:
		tx, err := InferExp(env, p.X)
		if err != nil {
			return nil, err
		}
		if p.T != nil && !types.Equal(tx, p.T) {
			return nil, errors.Errorf("let %s declares %s but binds %s", p.Name, p.T, tx)
		}
		return InferHost(env.extend(p.Name, tx), p.Body)
	case *HostBind:
		tp, err := InferHost(env, p.P)
		if err != nil {
			return nil, err
		}
		bound := types.Unwrap(tp)
		if p.T != nil && !types.Equal(bound, p.T) {
			return nil, errors.Errorf("bind %s declares %s but receives %s", p.Name, p.T, bound)
		}
		return InferHost(env.extend(p.Name, bound), p.Body)
	case *HostCall:
		return inferCall(env, p.Proc, p.Args)
	case *HostIf:
		tc, err := InferExp(env, p.Cond)
		if err != nil {
			return nil, err
		}
		if tc.Kind() != types.BoolKind {
			return nil, errors.Errorf("condition of host if has type %s, want Bool", tc)
		}
		tt, err := InferHost(env, p.Then)
		if err != nil {
			return nil, err
		}
		te, err := InferHost(env, p.Else)
		if err != nil {
			return nil, err
		}
		if !types.Equal(tt, te) {
			return nil, errors.Errorf("host if branches disagree: %s vs %s", tt, te)
		}
		return tt, nil
	case *HostAlloc:
		if len(p.Dims) == 0 {
			return nil, errors.Errorf("allocation %s has rank 0", p)
		}
		for i, d := range p.Dims {
			td, err := InferExp(env, d)
			if err != nil {
				return nil, err
			}
			if !isIntegral(td) {
				return nil, errors.Errorf("extent %d of %s has type %s, want an integer", i, p, td)
			}
		}
		return types.Array{Rank: len(p.Dims), Elem: p.Elem}, nil
	case *HostDeferred:
		forced, err := p.Force()
		if err != nil {
			return nil, err
		}
		return InferHost(env, forced)
	default:
		return nil, errors.Errorf("internal: unknown host program node %T", p)
	}
}

func inferCall(env Env, proc *KernelProc, args []Value) (types.Type, error) {
	if len(args) != len(proc.Params) {
		return nil, errors.Errorf("kernel call expects %d arguments, got %d", len(proc.Params), len(args))
	}
	for i, a := range args {
		ta, err := InferValue(env, a)
		if err != nil {
			return nil, err
		}
		if !types.Equal(ta, proc.Params[i].T) {
			return nil, errors.Errorf("kernel argument %d has type %s, want %s", i, ta, proc.Params[i].T)
		}
	}
	return KernelRetType(proc)
}

// InferKern computes the type of the value a kernel program produces.
// Loops, writes and barriers produce Unit.
func InferKern(env Env, p KernProg) (types.Type, error) {
	switch p := p.(type) {
	case *KernRet:
		return InferValue(env, p.V)
	case *KernSeq:
		if _, err := InferKern(env, p.First); err != nil {
			return nil, err
		}
		return InferKern(env, p.Then)
	case *KernPar:
		if _, err := InferKern(env, p.First); err != nil {
			return nil, err
		}
		if _, err := InferKern(env, p.Second); err != nil {
			return nil, err
		}
		return types.U, nil
	case *KernLet:
		tx, err := InferExp(env, p.X)
		if err != nil {
			return nil, err
		}
		if p.T != nil && !types.Equal(tx, p.T) {
			return nil, errors.Errorf("let %s declares %s but binds %s", p.Name, p.T, tx)
		}
		return InferKern(env.extend(p.Name, tx), p.Body)
	case *KernBind:
		tp, err := InferKern(env, p.P)
		if err != nil {
			return nil, err
		}
		bound := types.Unwrap(tp)
		if p.T != nil && !types.Equal(bound, p.T) {
			return nil, errors.Errorf("bind %s declares %s but receives %s", p.Name, p.T, bound)
		}
		return InferKern(env.extend(p.Name, bound), p.Body)
	case *KernFor:
		return inferLoop(env, p.Vars, p.Bounds, p.Body)
	case *KernParFor:
		return inferLoop(env, p.Vars, p.Bounds, p.Body)
	case *KernIf:
		tc, err := InferExp(env, p.Cond)
		if err != nil {
			return nil, err
		}
		if tc.Kind() != types.BoolKind {
			return nil, errors.Errorf("condition of kernel if has type %s, want Bool", tc)
		}
		tt, err := InferKern(env, p.Then)
		if err != nil {
			return nil, err
		}
		te, err := InferKern(env, p.Else)
		if err != nil {
			return nil, err
		}
		if !types.Equal(tt, te) {
			return nil, errors.Errorf("kernel if branches disagree: %s vs %s", tt, te)
		}
		return tt, nil
	case *KernWrite:
		ta, err := InferExp(env, p.Arr)
		if err != nil {
			return nil, err
		}
		arr, ok := ta.(types.Array)
		if !ok {
			return nil, errors.Errorf("write %s into non-array type %s", p, ta)
		}
		ti, err := InferExp(env, p.Ix)
		if err != nil {
			return nil, err
		}
		if !isIntegral(ti) {
			return nil, errors.Errorf("write index of %s has type %s, want an integer", p, ti)
		}
		tv, err := InferExp(env, p.Val)
		if err != nil {
			return nil, err
		}
		if !types.Equal(tv, arr.Elem) {
			return nil, errors.Errorf("write %s stores %s into array of %s", p, tv, arr.Elem)
		}
		return types.U, nil
	case *KernSync:
		return types.U, nil
	default:
		return nil, errors.Errorf("internal: unknown kernel program node %T", p)
	}
}

func inferLoop(env Env, vars []string, bounds []Exp, body KernProg) (types.Type, error) {
	if len(vars) != len(bounds) {
		return nil, errors.Errorf("loop has %d variables but %d bounds", len(vars), len(bounds))
	}
	benv := env
	for i, b := range bounds {
		tb, err := InferExp(env, b)
		if err != nil {
			return nil, err
		}
		if !isIntegral(tb) {
			return nil, errors.Errorf("loop bound %d has type %s, want an integer", i, tb)
		}
		benv = benv.extend(vars[i], types.I32)
	}
	if _, err := InferKern(benv, body); err != nil {
		return nil, err
	}
	return types.U, nil
}
