package compiler

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/types"
)

// hwAxes are the hardware loop axes in consumption order. Each
// parallel loop variable takes the next free one; variables past the
// third run as counted loops.
var hwAxes = [...]string{"x", "y", "z"}

// compileKernel emits a kernel definition the first time a procedure
// is launched and memoizes it, so repeated launches share one
// definition.
func (c *Compiler) compileKernel(p *ast.KernelProc) (*kernInfo, error) {
	if info, ok := c.kerns[p]; ok {
		return info, nil
	}

	ret, err := ast.KernelRetType(p)
	if err != nil {
		return nil, err
	}
	name := c.freshKern()

	outs, err := outSlots(ret)
	if err != nil {
		return nil, errors.Wrapf(err, "kernel %s result", name)
	}

	prev := c.fr
	c.fr = &frame{
		ctx:    ctxKernel,
		device: c.cfg.Dialect == CUDA,
		ret:    ret,
		outs:   outs,
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
			return nil, errors.Wrapf(err, "kernel parameter %s", f.Name)
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
	args := params
	for _, o := range outs {
		params = append(params, slot{name: o.name, ctype: o.ctype + "*"})
	}

	body := &cblock{}
	c.fr.blocks = []*cblock{body}
	if err := c.compileKern(p.Body, kernSink{top: true}); err != nil {
		return nil, err
	}

	cv := c.convention(ctxKernel, nil)
	c.defs = append(c.defs, &cdef{qual: cv.qual, ret: cv.ret, name: name, params: params, body: body})

	info := &kernInfo{name: name, params: args, outs: outs, ret: ret, hw: c.fr.hw}
	c.kerns[p] = info
	return info, nil
}

// kernSink says where the value a kernel program produces lands. The
// top sink writes the out-parameters and returns, a named sink fills
// bind temporaries, and the drop sink discards.
type kernSink struct {
	top   bool
	drop  bool
	names []string
}

func (c *Compiler) kernSinkValue(v CVal, sink kernSink) error {
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
		return errors.Errorf("internal: kernel returns %d slots, value carries %d", len(c.fr.outs), len(leaves))
	}
	for i, o := range c.fr.outs {
		c.emit(assignStmt{lhs: "*" + o.name, rhs: leaves[i]})
	}
	c.emit(retStmt{})
	return nil
}

// compileKern lowers a kernel program, delivering its value to sink.
func (c *Compiler) compileKern(p ast.KernProg, sink kernSink) error {
	switch p := p.(type) {
	case *ast.KernRet:
		v, err := c.compileValue(p.V)
		if err != nil {
			return err
		}
		return c.kernSinkValue(v, sink)
	case *ast.KernSeq:
		if err := c.compileKern(p.First, kernSink{drop: true}); err != nil {
			return err
		}
		return c.compileKern(p.Then, sink)
	case *ast.KernPar:
		// Sequencing is a legal schedule for independent programs.
		if err := c.compileKern(p.First, kernSink{drop: true}); err != nil {
			return err
		}
		if err := c.compileKern(p.Second, kernSink{drop: true}); err != nil {
			return err
		}
		return c.kernSinkValue(Void{}, sink)
	case *ast.KernLet:
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
		return c.compileKern(p.Body, sink)
	case *ast.KernBind:
		v, t, err := c.compileKernValue(p.P)
		if err != nil {
			return err
		}
		c.pushScopes(BlockScope)
		defer c.popScopes()
		c.bind(p.Name, v, t)
		return c.compileKern(p.Body, sink)
	case *ast.KernFor:
		if err := c.compileKernLoop(p.Vars, p.Bounds, p.Body, false); err != nil {
			return err
		}
		return c.kernSinkValue(Void{}, sink)
	case *ast.KernParFor:
		if err := c.compileKernLoop(p.Vars, p.Bounds, p.Body, true); err != nil {
			return err
		}
		return c.kernSinkValue(Void{}, sink)
	case *ast.KernIf:
		cond, err := c.scalarExp(p.Cond)
		if err != nil {
			return err
		}
		then := &cblock{}
		c.pushBlock(then)
		errThen := c.compileKern(p.Then, sink)
		c.popBlock()
		if errThen != nil {
			return errThen
		}
		els := &cblock{}
		c.pushBlock(els)
		errEls := c.compileKern(p.Else, sink)
		c.popBlock()
		if errEls != nil {
			return errEls
		}
		c.emit(ifStmt{cond: cond, then: then, els: els})
		return nil
	case *ast.KernWrite:
		if err := c.compileWrite(p); err != nil {
			return err
		}
		return c.kernSinkValue(Void{}, sink)
	case *ast.KernSync:
		if c.cfg.Dialect == CUDA {
			c.emit(exprStmt{x: "__syncthreads()"})
		}
		// Sequential iterations need no barrier.
		return c.kernSinkValue(Void{}, sink)
	default:
		return errors.Errorf("internal: unknown kernel program node %T", p)
	}
}

// compileKernValue runs a kernel program for the value a bind
// receives.
func (c *Compiler) compileKernValue(p ast.KernProg) (CVal, types.Type, error) {
	t, err := ast.InferKern(c.typeEnv(), p)
	if err != nil {
		return nil, nil, err
	}
	t = types.Unwrap(t)
	if r, ok := p.(*ast.KernRet); ok {
		v, err := c.compileValue(r.V)
		if err != nil {
			return nil, nil, err
		}
		if sv, ok := r.V.(*ast.ScalarVal); !ok || !isAtomicExp(sv.X) {
			v, err = c.atomize(v, t)
		}
		return v, t, err
	}
	names, err := c.declSlots(t)
	if err != nil {
		return nil, nil, err
	}
	if err := c.compileKern(p, kernSink{names: names}); err != nil {
		return nil, nil, err
	}
	v, err := valueOfSlots(t, names)
	return v, t, err
}

// compileKernLoop emits a loop nest, one loop per variable, outermost
// first. Parallel nests map to the target: CUDA grid-strided loops
// over the hardware axes, an omp pragma on the outermost CPU loop, or
// plain counted loops.
func (c *Compiler) compileKernLoop(vars []string, bounds []ast.Exp, body ast.KernProg, parallel bool) error {
	if len(vars) != len(bounds) {
		return errors.Errorf("internal: loop nest has %d variables but %d bounds", len(vars), len(bounds))
	}
	if len(vars) == 0 {
		return errors.Errorf("loop nest has no variables")
	}
	c.pushScopes(BlockScope)
	defer c.popScopes()

	omp := parallel && c.cfg.Dialect == OpenMP
	if omp {
		c.fr.ompDepth++
		defer func() { c.fr.ompDepth-- }()
	}

	depth := 0
	for i, name := range vars {
		bound, err := c.scalarExp(bounds[i])
		if err != nil {
			return err
		}
		v := cname(name)
		c.bind(name, ScalarV{X: v}, types.I32)

		ax, strided := "", false
		if parallel && c.cfg.Dialect == CUDA {
			ax, strided = c.takeAxis(bound)
		}
		var loop forStmt
		if strided {
			loop = forStmt{
				init: fmt.Sprintf("int %s = blockIdx.%s * blockDim.%s + threadIdx.%s", v, ax, ax, ax),
				cond: fmt.Sprintf("%s < %s", v, bound),
				post: fmt.Sprintf("%s += blockDim.%s * gridDim.%s", v, ax, ax),
			}
		} else {
			loop = forStmt{
				init: fmt.Sprintf("int %s = 0", v),
				cond: fmt.Sprintf("%s < %s", v, bound),
				post: "++" + v,
			}
		}
		if omp && i == 0 && c.fr.ompDepth == 1 {
			loop.pragma = "#pragma omp parallel for"
		}

		b := &cblock{}
		loop.body = b
		c.emit(loop)
		c.pushBlock(b)
		depth++
	}
	err := c.compileKern(body, kernSink{drop: true})
	for ; depth > 0; depth-- {
		c.popBlock()
	}
	return err
}

// takeAxis consumes the next hardware axis for a parallel loop
// variable. Once x, y and z are all taken it reports false and the
// variable falls back to a counted loop.
func (c *Compiler) takeAxis(bound string) (string, bool) {
	if len(c.fr.hw) >= len(hwAxes) {
		return "", false
	}
	ax := hwAxes[len(c.fr.hw)]
	c.fr.hw = append(c.fr.hw, hwAxis{axis: ax, bound: bound})
	return ax, true
}

// compileWrite stores one element: a buffer store per field leaf.
func (c *Compiler) compileWrite(p *ast.KernWrite) error {
	av, err := c.compileExp(p.Arr)
	if err != nil {
		return err
	}
	arr, ok := av.(ArrayV)
	if !ok {
		return errors.Errorf("write target %s is not an array", p.Arr)
	}
	ix, err := c.scalarExp(p.Ix)
	if err != nil {
		return err
	}
	v, err := c.compileExp(p.Val)
	if err != nil {
		return err
	}
	ptrs := flattenPtrRep(arr.Ptr)
	leaves, err := flattenCVal(v)
	if err != nil {
		return err
	}
	if len(ptrs) != len(leaves) {
		return errors.Errorf("write %s: %d buffers but %d fields", p, len(ptrs), len(leaves))
	}
	for i, ptr := range ptrs {
		c.emit(assignStmt{lhs: fmt.Sprintf("%s[%s]", ptr, ix), rhs: leaves[i]})
	}
	return nil
}
