package compiler

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/types"
)

// countAllocs reports the heap slot capacity a host program needs: one
// slot per element leaf of every allocation it mentions. Conditional
// branches both count, so the table size is a capacity and nallocs the
// live watermark.
func countAllocs(p ast.HostProg) (int, error) {
	switch p := p.(type) {
	case *ast.HostRet:
		return 0, nil
	case *ast.HostSeq:
		a, err := countAllocs(p.First)
		if err != nil {
			return 0, err
		}
		b, err := countAllocs(p.Then)
		if err != nil {
			return 0, err
		}
		return a + b, nil
	case *ast.HostLet:
		return countAllocs(p.Body)
	case *ast.HostBind:
		a, err := countAllocs(p.P)
		if err != nil {
			return 0, err
		}
		b, err := countAllocs(p.Body)
		if err != nil {
			return 0, err
		}
		return a + b, nil
	case *ast.HostCall:
		return 0, nil
	case *ast.HostIf:
		a, err := countAllocs(p.Then)
		if err != nil {
			return 0, err
		}
		b, err := countAllocs(p.Else)
		if err != nil {
			return 0, err
		}
		return a + b, nil
	case *ast.HostAlloc:
		return types.NumFields(p.Elem), nil
	case *ast.HostDeferred:
		forced, err := p.Force()
		if err != nil {
			return 0, err
		}
		return countAllocs(forced)
	default:
		return 0, errors.Errorf("internal: unknown host program node %T", p)
	}
}

// ensureGC appends the mark and gc definitions on first use. They are
// emitted once per unit, ahead of every procedure that calls them.
func (c *Compiler) ensureGC() {
	if c.gcEmitted {
		return
	}
	c.gcEmitted = true

	free := "free"
	if c.cfg.Dialect == CUDA {
		free = "cudaFree"
	}

	markLoop := &cblock{}
	markLoop.add(ifStmt{
		cond: "allocs[i] == ptr",
		then: &cblock{stmts: []cstmt{assignStmt{lhs: "marks[i]", rhs: "1"}}},
	})
	markBody := &cblock{}
	markBody.add(forStmt{init: "int i = 0", cond: "i < nallocs", post: "++i", body: markLoop})
	c.defs = append(c.defs, &cdef{
		qual: "static",
		ret:  "void",
		name: "mark",
		params: []slot{
			{name: "allocs", ctype: "void**"},
			{name: "marks", ctype: "int*"},
			{name: "nallocs", ctype: "int"},
			{name: "ptr", ctype: "void*"},
		},
		body: markBody,
	})

	gcLoop := &cblock{}
	gcLoop.add(ifStmt{
		cond: "!marks[i]",
		then: &cblock{stmts: []cstmt{exprStmt{x: free + "(allocs[i])"}}},
	})
	gcBody := &cblock{}
	gcBody.add(forStmt{init: "int i = 0", cond: "i < nallocs", post: "++i", body: gcLoop})
	c.defs = append(c.defs, &cdef{
		qual: "static",
		ret:  "void",
		name: "gc",
		params: []slot{
			{name: "allocs", ctype: "void**"},
			{name: "marks", ctype: "int*"},
			{name: "nallocs", ctype: "int"},
		},
		body: gcBody,
	})
}

// compileAlloc emits one allocation: a buffer per element leaf, each
// entered into the heap slot table, with failures jumping to done.
func (c *Compiler) compileAlloc(a *ast.HostAlloc) (CVal, error) {
	if c.fr.ctx != ctxHost {
		return nil, errors.Errorf("allocation outside a host procedure")
	}

	dims := make([]string, len(a.Dims))
	for i, d := range a.Dims {
		s, err := c.scalarExp(d)
		if err != nil {
			return nil, err
		}
		if !isAtomicExp(d) {
			name := c.fresh()
			c.declare("int", name, s)
			s = name
		}
		dims[i] = s
	}
	count := strings.Join(dims, " * ")

	leaves := types.Fields(a.Elem)
	names := make([]string, len(leaves))
	for i, leaf := range leaves {
		if leaf.Kind() == types.UnitKind {
			return nil, errors.Errorf("cannot allocate an array with Unit fields")
		}
		elem := ctypeScalar(leaf)
		ptr := ctypePtr(types.Ptr{Elem: leaf})
		name := c.fresh()
		names[i] = name
		size := fmt.Sprintf("%s * sizeof(%s)", count, elem)

		if c.cfg.Dialect == CUDA {
			c.emit(declStmt{ctype: ptr, name: name})
			c.emit(assignStmt{lhs: "status", rhs: fmt.Sprintf("cudaMalloc((void**)&%s, %s)", name, size)})
			fail := &cblock{}
			fail.add(gotoStmt{label: "done"})
			c.emit(ifStmt{cond: "status != cudaSuccess", then: fail})
		} else {
			c.emit(declStmt{
				ctype: ptr,
				name:  name,
				init:  fmt.Sprintf("(%s)malloc(%s)", ptr, size),
			})
			fail := &cblock{}
			fail.add(assignStmt{lhs: "status", rhs: "1"})
			fail.add(gotoStmt{label: "done"})
			c.emit(ifStmt{cond: name + " == NULL", then: fail})
		}

		c.emit(assignStmt{lhs: "allocs[nallocs]", rhs: "(void*)" + name})
		c.emit(assignStmt{lhs: "marks[nallocs]", rhs: "0"})
		c.emit(exprStmt{x: "++nallocs"})
	}

	rep, rest := buildPtrRep(a.Elem, names)
	if len(rest) != 0 {
		return nil, errors.Errorf("internal: allocation of %s left %d buffers unplaced", a.Elem, len(rest))
	}
	return ArrayV{Ptr: rep, Dims: dims}, nil
}
