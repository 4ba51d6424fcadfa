package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/types"
)

func litInt(s types.Int, v int64) string {
	switch s.Width {
	case 64:
		return fmt.Sprintf("%dLL", v)
	case 32:
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("(int%d_t)%d", s.Width, v)
	}
}

func litUint(s types.Uint, v uint64) string {
	switch s.Width {
	case 64:
		return fmt.Sprintf("%dULL", v)
	case 32:
		return fmt.Sprintf("%dU", v)
	default:
		return fmt.Sprintf("(uint%d_t)%dU", s.Width, v)
	}
}

// litBool uses the inverted encoding: true emits 0 and false emits 1.
// Comparisons and branches elsewhere use conventional C truth values;
// the inversion applies to literals only.
func litBool(v bool) string {
	if v {
		return "0"
	}
	return "1"
}

func litFloat(s types.Float, v float64) string {
	if s.Width == 32 {
		str := strconv.FormatFloat(v, 'g', -1, 32)
		if !strings.ContainsAny(str, ".eE") {
			str += ".0"
		}
		return str + "f"
	}
	str := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(str, ".eE") {
		str += ".0"
	}
	return str
}

// isAtomicExp reports expressions whose compiled form is free to
// duplicate: variables and literals.
func isAtomicExp(e ast.Exp) bool {
	switch e.(type) {
	case *ast.Var, *ast.IntLit, *ast.UintLit, *ast.FloatLit, *ast.BoolLit, *ast.UnitLit:
		return true
	}
	return false
}

// compileExp lowers a scalar expression to its compiled value, pushing
// any statements it needs onto the current block.
func (c *Compiler) compileExp(e ast.Exp) (CVal, error) {
	switch e := e.(type) {
	case *ast.Var:
		v, ok := Get(c.vals, e.Name)
		if !ok {
			return nil, errors.Errorf("internal: variable %q has no compiled value", e.Name)
		}
		return v, nil
	case *ast.IntLit:
		return ScalarV{X: litInt(e.S, e.Val)}, nil
	case *ast.UintLit:
		return ScalarV{X: litUint(e.S, e.Val)}, nil
	case *ast.FloatLit:
		return ScalarV{X: litFloat(e.S, e.Val)}, nil
	case *ast.BoolLit:
		return ScalarV{X: litBool(e.Val)}, nil
	case *ast.UnitLit:
		return Void{}, nil
	case *ast.TupleExp:
		elems := make([]CVal, len(e.Elems))
		for i, x := range e.Elems {
			v, err := c.compileExp(x)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return TupleV{Elems: elems}, nil
	case *ast.Proj:
		v, err := c.compileExp(e.X)
		if err != nil {
			return nil, err
		}
		tup, ok := v.(TupleV)
		if !ok {
			return nil, errors.Errorf("internal: projection %s from non-tuple value %s", e, v)
		}
		if e.Index < 0 || e.Index >= len(tup.Elems) {
			return nil, errors.Errorf("internal: projection index %d out of range in %s", e.Index, e)
		}
		return tup.Elems[e.Index], nil
	case *ast.ProjArr:
		v, err := c.compileExp(e.X)
		if err != nil {
			return nil, err
		}
		arr, ok := v.(ArrayV)
		if !ok {
			return nil, errors.Errorf("internal: field array projection %s from %s", e, v)
		}
		rep, ok := arr.Ptr.(TuplePtr)
		if !ok {
			return nil, errors.Errorf("internal: field array projection %s from single-buffer array", e)
		}
		if e.Index < 0 || e.Index >= len(rep.Elems) {
			return nil, errors.Errorf("internal: field array index %d out of range in %s", e.Index, e)
		}
		return ArrayV{Ptr: rep.Elems[e.Index], Dims: arr.Dims}, nil
	case *ast.DimOf:
		v, err := c.compileExp(e.X)
		if err != nil {
			return nil, err
		}
		arr, ok := v.(ArrayV)
		if !ok {
			return nil, errors.Errorf("internal: dimension query %s on %s", e, v)
		}
		if e.Index < 0 || e.Index >= len(arr.Dims) {
			return nil, errors.Errorf("internal: dimension index %d out of range in %s", e.Index, e)
		}
		return ScalarV{X: arr.Dims[e.Index]}, nil
	case *ast.LetExp:
		return c.compileLet(e)
	case *ast.Lam:
		return c.compileLam(e)
	case *ast.App:
		return c.compileApp(e)
	case *ast.Unary:
		t, err := c.inferExp(e.X)
		if err != nil {
			return nil, err
		}
		s, ok := types.AsScalar(t)
		if !ok {
			return nil, errors.Errorf("operand of %s has non-scalar type %s", e, t)
		}
		x, err := c.scalarExp(e.X)
		if err != nil {
			return nil, err
		}
		out, err := c.unOp(e.Op, s, x)
		if err != nil {
			return nil, err
		}
		return ScalarV{X: out}, nil
	case *ast.Binary:
		t, err := c.inferExp(e.X)
		if err != nil {
			return nil, err
		}
		s, ok := types.AsScalar(t)
		if !ok {
			return nil, errors.Errorf("operand of %s has non-scalar type %s", e, t)
		}
		x, err := c.scalarExp(e.X)
		if err != nil {
			return nil, err
		}
		y, err := c.scalarExp(e.Y)
		if err != nil {
			return nil, err
		}
		out, err := c.binOp(e.Op, s, x, y)
		if err != nil {
			return nil, err
		}
		return ScalarV{X: out}, nil
	case *ast.CondExp:
		return c.compileCond(e)
	case *ast.SwitchExp:
		return c.compileSwitch(e)
	case *ast.Idx:
		return c.compileIdx(e)
	case *ast.DeferredExp:
		forced, err := e.Force()
		if err != nil {
			return nil, err
		}
		return c.compileExp(forced)
	default:
		return nil, errors.Errorf("internal: unknown expression node %T", e)
	}
}

// scalarExp compiles an expression that must land in a single C
// expression.
func (c *Compiler) scalarExp(e ast.Exp) (string, error) {
	v, err := c.compileExp(e)
	if err != nil {
		return "", err
	}
	sv, ok := v.(ScalarV)
	if !ok {
		return "", errors.Errorf("internal: expression %s has no single compiled form", e)
	}
	return sv.X, nil
}

func (c *Compiler) compileLet(e *ast.LetExp) (CVal, error) {
	t, err := c.inferExp(e.X)
	if err != nil {
		return nil, err
	}
	v, err := c.compileExp(e.X)
	if err != nil {
		return nil, err
	}
	if !isAtomicExp(e.X) {
		v, err = c.atomize(v, t)
		if err != nil {
			return nil, err
		}
	}
	c.pushScopes(BlockScope)
	c.bind(e.Name, v, t)
	res, err := c.compileExp(e.Body)
	c.popScopes()
	return res, err
}

// atomize binds the scalar leaves of a value to fresh temporaries so
// later uses cannot recompute them. Pointer and extent expressions are
// names already.
func (c *Compiler) atomize(v CVal, t types.Type) (CVal, error) {
	switch v := v.(type) {
	case ScalarV:
		s, ok := types.AsScalar(t)
		if !ok {
			return nil, errors.Errorf("internal: scalar value of non-scalar type %s", t)
		}
		name := c.fresh()
		c.declare(ctypeScalar(s), name, v.X)
		return ScalarV{X: name}, nil
	case TupleV:
		tup, ok := t.(types.Tuple)
		if !ok || len(tup.Elems) != len(v.Elems) {
			return nil, errors.Errorf("internal: tuple value does not match type %s", t)
		}
		elems := make([]CVal, len(v.Elems))
		for i, el := range v.Elems {
			a, err := c.atomize(el, tup.Elems[i])
			if err != nil {
				return nil, err
			}
			elems[i] = a
		}
		return TupleV{Elems: elems}, nil
	default:
		return v, nil
	}
}

// compileLam emits a helper function and yields its name. Helpers
// compile in a fresh frame and scope, so bodies stay closed over their
// parameters. A single scalar leaf returns by value; anything else
// returns through out-parameters.
func (c *Compiler) compileLam(e *ast.Lam) (CVal, error) {
	ret, err := ast.InferExp(ast.EnvOf(e.Params), e.Body)
	if err != nil {
		return nil, err
	}

	name := c.freshFun()
	prev := c.fr
	c.fr = &frame{ctx: ctxFun, device: prev != nil && prev.device, ret: ret}
	c.pushScopes(FuncScope)
	defer func() {
		c.popScopes()
		c.fr = prev
	}()

	var params []slot
	for _, f := range e.Params {
		ps, err := typeSlots(cname(f.Name), f.T)
		if err != nil {
			return nil, err
		}
		params = append(params, ps...)
		exprs := make([]string, len(ps))
		for i, p := range ps {
			exprs[i] = p.name
		}
		v, err := valueOfSlots(f.T, exprs)
		if err != nil {
			return nil, err
		}
		c.bind(f.Name, v, f.T)
	}

	body := &cblock{}
	c.pushBlock(body)
	res, err := c.compileExp(e.Body)
	c.popBlock()
	if err != nil {
		return nil, err
	}

	if sv, ok := res.(ScalarV); ok {
		s, ok := types.AsScalar(ret)
		if !ok {
			return nil, errors.Errorf("internal: helper %s returns %s but compiled to a scalar", name, ret)
		}
		cv := c.convention(ctxFun, s)
		body.add(retStmt{x: sv.X})
		c.defs = append(c.defs, &cdef{
			qual:   cv.qual,
			ret:    cv.ret,
			name:   name,
			params: params,
			body:   body,
		})
		return FunV{Name: name}, nil
	}
	cv := c.convention(ctxFun, nil)

	outs, err := outSlots(ret)
	if err != nil {
		return nil, err
	}
	leaves, err := flattenCVal(res)
	if err != nil {
		return nil, err
	}
	if len(leaves) != len(outs) {
		return nil, errors.Errorf("internal: helper %s result has %d leaves for %d slots", name, len(leaves), len(outs))
	}
	for i, o := range outs {
		body.add(assignStmt{lhs: "*" + o.name, rhs: leaves[i]})
	}
	for i := range outs {
		outs[i].ctype += "*"
	}
	c.defs = append(c.defs, &cdef{
		qual:   cv.qual,
		ret:    cv.ret,
		name:   name,
		params: append(params, outs...),
		body:   body,
	})
	return FunV{Name: name}, nil
}

func (c *Compiler) compileApp(e *ast.App) (CVal, error) {
	fv, err := c.compileExp(e.F)
	if err != nil {
		return nil, err
	}
	fn, ok := fv.(FunV)
	if !ok {
		return nil, errors.Errorf("internal: application %s of non-function value %s", e, fv)
	}

	var args []string
	for _, a := range e.Args {
		av, err := c.compileExp(a)
		if err != nil {
			return nil, err
		}
		leaves, err := flattenCVal(av)
		if err != nil {
			return nil, err
		}
		args = append(args, leaves...)
	}

	rt, err := c.inferExp(e)
	if err != nil {
		return nil, err
	}
	if rt.Kind() == types.UnitKind {
		c.emit(exprStmt{x: fmt.Sprintf("%s(%s)", fn.Name, strings.Join(args, ", "))})
		return Void{}, nil
	}
	if s, ok := types.AsScalar(rt); ok && types.NumFields(s) == 1 {
		return ScalarV{X: fmt.Sprintf("%s(%s)", fn.Name, strings.Join(args, ", "))}, nil
	}

	outs, err := typeSlots("r", rt)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, o := range outs {
		name := c.fresh()
		names[i] = name
		c.emit(declStmt{ctype: o.ctype, name: name})
		args = append(args, "&"+name)
	}
	c.emit(exprStmt{x: fmt.Sprintf("%s(%s)", fn.Name, strings.Join(args, ", "))})
	return valueOfSlots(rt, names)
}

// compileCond lowers a conditional to one temporary per result slot,
// assigned in each branch.
func (c *Compiler) compileCond(e *ast.CondExp) (CVal, error) {
	cond, err := c.scalarExp(e.Cond)
	if err != nil {
		return nil, err
	}
	rt, err := c.inferExp(e)
	if err != nil {
		return nil, err
	}
	names, err := c.declSlots(rt)
	if err != nil {
		return nil, err
	}

	then, err := c.branchAssigns(e.Then, names)
	if err != nil {
		return nil, err
	}
	els, err := c.branchAssigns(e.Else, names)
	if err != nil {
		return nil, err
	}
	c.emit(ifStmt{cond: cond, then: then, els: els})
	return valueOfSlots(rt, names)
}

// compileSwitch lowers a switch expression the same way as a
// conditional. Without a default arm an unmatched tag leaves the slots
// unassigned.
func (c *Compiler) compileSwitch(e *ast.SwitchExp) (CVal, error) {
	tag, err := c.scalarExp(e.Tag)
	if err != nil {
		return nil, err
	}
	rt, err := c.inferExp(e)
	if err != nil {
		return nil, err
	}
	names, err := c.declSlots(rt)
	if err != nil {
		return nil, err
	}

	arms := make([]caseArm, len(e.Cases))
	for i, alt := range e.Cases {
		body, err := c.branchAssigns(alt.Body, names)
		if err != nil {
			return nil, err
		}
		arms[i] = caseArm{lit: strconv.FormatInt(alt.Lit, 10), body: body}
	}
	var def *cblock
	if e.Default != nil {
		def, err = c.branchAssigns(e.Default, names)
		if err != nil {
			return nil, err
		}
	}
	c.emit(switchStmt{tag: tag, cases: arms, def: def})
	return valueOfSlots(rt, names)
}

// declSlots declares one fresh uninitialized temporary per slot of t
// and returns their names.
func (c *Compiler) declSlots(t types.Type) ([]string, error) {
	slots, err := typeSlots("", t)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(slots))
	for i, s := range slots {
		name := c.fresh()
		names[i] = name
		c.emit(declStmt{ctype: s.ctype, name: name})
	}
	return names, nil
}

// branchAssigns compiles a branch expression into a block that assigns
// its leaves to the slot temporaries.
func (c *Compiler) branchAssigns(e ast.Exp, names []string) (*cblock, error) {
	b := &cblock{}
	c.pushBlock(b)
	defer c.popBlock()
	v, err := c.compileExp(e)
	if err != nil {
		return nil, err
	}
	leaves, err := flattenCVal(v)
	if err != nil {
		return nil, err
	}
	if len(leaves) != len(names) {
		return nil, errors.Errorf("internal: branch %s has %d leaves for %d slots", e, len(leaves), len(names))
	}
	for i, name := range names {
		b.add(assignStmt{lhs: name, rhs: leaves[i]})
	}
	return b, nil
}

func (c *Compiler) compileIdx(e *ast.Idx) (CVal, error) {
	ta, err := c.inferExp(e.Arr)
	if err != nil {
		return nil, err
	}
	arrT, ok := ta.(types.Array)
	if !ok {
		return nil, errors.Errorf("indexing %s into non-array type %s", e, ta)
	}
	av, err := c.compileExp(e.Arr)
	if err != nil {
		return nil, err
	}
	arr, ok := av.(ArrayV)
	if !ok {
		return nil, errors.Errorf("internal: array expression %s compiled to %s", e.Arr, av)
	}
	ix, err := c.scalarExp(e.I)
	if err != nil {
		return nil, err
	}
	return idxVal(arr.Ptr, arrT.Elem, ix)
}

// idxVal reads one element through a pointer representation, one load
// per leaf buffer.
func idxVal(rep PtrRep, elem types.Scalar, ix string) (CVal, error) {
	switch rep := rep.(type) {
	case OnePtr:
		return ScalarV{X: fmt.Sprintf("%s[%s]", rep.X, ix)}, nil
	case TuplePtr:
		tup, ok := elem.(types.Tuple)
		if !ok || len(tup.Elems) != len(rep.Elems) {
			return nil, errors.Errorf("internal: pointer representation does not match element type %s", elem)
		}
		elems := make([]CVal, len(rep.Elems))
		for i, p := range rep.Elems {
			v, err := idxVal(p, tup.Elems[i], ix)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return TupleV{Elems: elems}, nil
	default:
		return nil, errors.Errorf("internal: unknown pointer representation %T", rep)
	}
}
