package compiler

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/types"
)

// compileValue lowers a data value. Program values never reach the
// compiler; the reifier unwraps them at the boundary.
func (c *Compiler) compileValue(v ast.Value) (CVal, error) {
	switch v := v.(type) {
	case *ast.ScalarVal:
		return c.compileExp(v.X)
	case *ast.UnitVal:
		return Void{}, nil
	case *ast.ArrayVal:
		pv, err := c.compileExp(v.Ptr)
		if err != nil {
			return nil, err
		}
		av, ok := pv.(ArrayV)
		if !ok {
			return nil, errors.Errorf("array value %s does not name an array", v)
		}
		dims := make([]string, len(v.Dims))
		for i, d := range v.Dims {
			dims[i], err = c.scalarExp(d)
			if err != nil {
				return nil, err
			}
		}
		return ArrayV{Ptr: av.Ptr, Dims: dims}, nil
	case *ast.ProgVal:
		return nil, errors.Errorf("cannot compile a program as a value")
	default:
		return nil, errors.Errorf("internal: unknown value node %T", v)
	}
}

// hostSink says where the value a host program produces lands. The top
// sink writes the out-parameters and jumps to the epilogue, a named
// sink fills bind temporaries, and the drop sink discards.
type hostSink struct {
	top   bool
	drop  bool
	names []string
}

func (c *Compiler) sinkValue(v CVal, sink hostSink) error {
	if sink.drop {
		return nil
	}
	leaves, err := flattenCVal(v)
	if err != nil {
		return err
	}
	if !sink.top {
		if len(leaves) != len(sink.names) {
			return errors.Errorf("internal: sink wants %d slots, value carries %d", len(sink.names), len(leaves))
		}
		for i, name := range sink.names {
			c.emit(assignStmt{lhs: name, rhs: leaves[i]})
		}
		return nil
	}
	if len(leaves) != len(c.fr.outs) {
		return errors.Errorf("internal: procedure returns %d slots, value carries %d", len(c.fr.outs), len(leaves))
	}
	for i, o := range c.fr.outs {
		c.emit(assignStmt{lhs: "*" + o.name, rhs: leaves[i]})
	}
	// Buffers escaping through the results survive collection.
	if c.fr.wantGC {
		if arr, ok := c.fr.ret.(types.Array); ok {
			for _, ptr := range leaves[:types.NumFields(arr.Elem)] {
				c.emit(exprStmt{x: fmt.Sprintf("mark(allocs, marks, nallocs, (void*)%s)", ptr)})
			}
		}
	}
	c.emit(gotoStmt{label: "done"})
	return nil
}

// compileHost lowers a host program, delivering its value to sink.
// Every program form produces a value, so each control path sinks
// exactly once.
func (c *Compiler) compileHost(p ast.HostProg, sink hostSink) error {
	switch p := p.(type) {
	case *ast.HostRet:
		v, err := c.compileValue(p.V)
		if err != nil {
			return err
		}
		return c.sinkValue(v, sink)
	case *ast.HostSeq:
		if err := c.compileHost(p.First, hostSink{drop: true}); err != nil {
			return err
		}
		return c.compileHost(p.Then, sink)
	case *ast.HostLet:
		t, err := c.inferExp(p.X)
		if err != nil {
			return err
		}
		v, err := c.compileExp(p.X)
		if err != nil {
			return err
		}
		if !isAtomicExp(p.X) {
			if v, err = c.atomize(v, t); err != nil {
				return err
			}
		}
		c.pushScopes(BlockScope)
		defer c.popScopes()
		c.bind(p.Name, v, t)
		return c.compileHost(p.Body, sink)
	case *ast.HostBind:
		v, t, err := c.compileHostValue(p.P)
		if err != nil {
			return err
		}
		c.pushScopes(BlockScope)
		defer c.popScopes()
		c.bind(p.Name, v, t)
		return c.compileHost(p.Body, sink)
	case *ast.HostCall:
		v, err := c.compileCall(p)
		if err != nil {
			return err
		}
		return c.sinkValue(v, sink)
	case *ast.HostIf:
		return c.compileHostIf(p, sink)
	case *ast.HostAlloc:
		v, err := c.compileAlloc(p)
		if err != nil {
			return err
		}
		return c.sinkValue(v, sink)
	case *ast.HostDeferred:
		forced, err := p.Force()
		if err != nil {
			return err
		}
		return c.compileHost(forced, sink)
	default:
		return errors.Errorf("internal: unknown host program node %T", p)
	}
}

func (c *Compiler) compileHostIf(p *ast.HostIf, sink hostSink) error {
	cond, err := c.scalarExp(p.Cond)
	if err != nil {
		return err
	}
	then := &cblock{}
	c.pushBlock(then)
	errThen := c.compileHost(p.Then, sink)
	c.popBlock()
	if errThen != nil {
		return errThen
	}
	els := &cblock{}
	c.pushBlock(els)
	errEls := c.compileHost(p.Else, sink)
	c.popBlock()
	if errEls != nil {
		return errEls
	}
	c.emit(ifStmt{cond: cond, then: then, els: els})
	return nil
}

// compileHostValue runs a host program for the value a bind receives.
// Allocations and kernel calls place their results directly; anything
// else lands in fresh slot temporaries.
func (c *Compiler) compileHostValue(p ast.HostProg) (CVal, types.Type, error) {
	t, err := ast.InferHost(c.typeEnv(), p)
	if err != nil {
		return nil, nil, err
	}
	t = types.Unwrap(t)
	switch p := p.(type) {
	case *ast.HostAlloc:
		v, err := c.compileAlloc(p)
		return v, t, err
	case *ast.HostCall:
		v, err := c.compileCall(p)
		return v, t, err
	case *ast.HostRet:
		v, err := c.compileValue(p.V)
		if err != nil {
			return nil, nil, err
		}
		if sv, ok := p.V.(*ast.ScalarVal); !ok || !isAtomicExp(sv.X) {
			v, err = c.atomize(v, t)
		}
		return v, t, err
	case *ast.HostDeferred:
		forced, err := p.Force()
		if err != nil {
			return nil, nil, err
		}
		return c.compileHostValue(forced)
	default:
		names, err := c.declSlots(t)
		if err != nil {
			return nil, nil, err
		}
		if err := c.compileHost(p, hostSink{names: names}); err != nil {
			return nil, nil, err
		}
		v, err := valueOfSlots(t, names)
		return v, t, err
	}
}

// hostProcDef compiles the top host procedure: parameters in slot
// form, results through out-parameters, a status code return, and the
// collection epilogue every exit path jumps to.
func (c *Compiler) hostProcDef(name string, p *ast.HostProc) (*cdef, error) {
	ft, err := ast.ProcType(p)
	if err != nil {
		return nil, err
	}
	nslots, err := countAllocs(p.Body)
	if err != nil {
		return nil, err
	}

	outs, err := outSlots(ft.Ret)
	if err != nil {
		return nil, errors.Wrapf(err, "procedure %s result", name)
	}

	prev := c.fr
	c.fr = &frame{
		ctx:    ctxHost,
		ret:    ft.Ret,
		outs:   outs,
		slots:  nslots,
		wantGC: nslots > 0,
	}
	c.pushScopes(FuncScope)
	defer func() {
		c.popScopes()
		c.fr = prev
	}()

	params := make([]slot, 0, len(p.Params)+len(outs))
	for _, f := range p.Params {
		ps, err := typeSlots(cname(f.Name), f.T)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %s", f.Name)
		}
		exprs := make([]string, len(ps))
		for i, s := range ps {
			exprs[i] = s.name
		}
		v, err := valueOfSlots(f.T, exprs)
		if err != nil {
			return nil, err
		}
		c.bind(f.Name, v, f.T)
		params = append(params, ps...)
	}
	for _, o := range outs {
		params = append(params, slot{name: o.name, ctype: o.ctype + "*"})
	}

	body := &cblock{}
	c.fr.blocks = []*cblock{body}

	cv := c.convention(ctxHost, nil)
	c.emit(declStmt{ctype: cv.ret, name: "status", init: cv.init})
	if nslots > 0 {
		c.ensureGC()
		c.emit(rawStmt{text: fmt.Sprintf("void* allocs[%d];", nslots)})
		c.emit(rawStmt{text: fmt.Sprintf("int marks[%d];", nslots)})
		c.emit(declStmt{ctype: "int", name: "nallocs", init: "0"})
	}

	if err := c.compileHost(p.Body, hostSink{top: true}); err != nil {
		return nil, err
	}

	c.emit(labelStmt{name: "done"})
	if nslots > 0 {
		c.emit(exprStmt{x: "gc(allocs, marks, nallocs)"})
	}
	c.emit(retStmt{x: "status"})

	return &cdef{qual: cv.qual, ret: cv.ret, name: name, params: params, body: body}, nil
}
