// Package compiler lowers closed host procedures to C translation
// units. One dialect is fixed per compilation: CUDA emits kernels and
// the host code that launches them, OpenMP emits loop-parallel CPU
// code, and Plain emits sequential C.
package compiler

import (
	"fmt"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/types"
)

type Dialect int

const (
	Plain Dialect = iota
	CUDA
	OpenMP
)

func (d Dialect) String() string {
	switch d {
	case CUDA:
		return "cuda"
	case OpenMP:
		return "openmp"
	default:
		return "c"
	}
}

// FileExt is the conventional source extension for the dialect.
func (d Dialect) FileExt() string {
	if d == CUDA {
		return ".cu"
	}
	return ".c"
}

type Config struct {
	Dialect Dialect
	// Name of the emitted entry function. Defaults to "host".
	Name string
	// Includes are appended to the dialect's default include set.
	Includes []string
}

func DefaultIncludes(d Dialect) []string {
	switch d {
	case CUDA:
		return []string{"stdint.h", "stdlib.h", "math.h", "cuda_runtime.h"}
	case OpenMP:
		return []string{"stdint.h", "stdlib.h", "math.h", "omp.h"}
	default:
		return []string{"stdint.h", "stdlib.h", "math.h"}
	}
}

type callCtx int

const (
	// ctxHost is the top host procedure: out-params plus a status
	// return, a heap slot table when it allocates, and a done label.
	ctxHost callCtx = iota
	// ctxKernel is a kernel procedure: out-params plus void.
	ctxKernel
	// ctxFun is a scalar helper function: by-value result when it is a
	// single leaf, out-params otherwise.
	ctxFun
)

// hwAxis records one hardware index dimension a kernel consumed, in
// consumption order.
type hwAxis struct {
	axis  string
	bound string
}

// frame is the per-function compilation state. Blocks form a stack;
// statements append to the innermost open block.
type frame struct {
	ctx    callCtx
	device bool // emitting device-side code (CUDA kernels and their helpers)
	blocks []*cblock

	outs []slot     // result out-parameters, in slot order
	ret  types.Type // result type

	// Host procedure only.
	slots  int  // heap slot table capacity (static allocation count)
	wantGC bool // epilogue runs gc over the table

	// Kernel procedure only.
	hw       []hwAxis // hardware axes consumed by parallel loops
	ompDepth int      // parallel loop nesting, for outermost-only pragmas
}

// kernInfo is the compiled form of a kernel procedure, memoized so a
// kernel invoked from several sites is emitted once.
type kernInfo struct {
	name   string
	params []slot
	outs   []slot
	ret    types.Type
	hw     []hwAxis
}

// Compiler lowers one host procedure. It is single-use; Compile builds
// a fresh one per procedure.
type Compiler struct {
	cfg Config

	// defs accumulate children first: helper functions, kernels and
	// the mark/gc pair are appended before the definition that uses
	// them, so the unit needs no prototypes.
	defs []*cdef

	vals []Scope[CVal]       // variable -> compiled value
	typs []Scope[types.Type] // variable -> type, for inference queries

	tmpCounter  int // temporary variable names counter
	kernCounter int // kernel names counter
	funCounter  int // helper function names counter

	kerns     map[*ast.KernelProc]*kernInfo
	gcEmitted bool // mark/gc pair already in defs

	fr *frame // current function frame
}

// Compile lowers a closed host procedure to a translation unit for the
// configured dialect.
func Compile(p *ast.HostProc, cfg Config) (*Unit, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = "host"
	}
	c := &Compiler{
		cfg:   cfg,
		kerns: make(map[*ast.KernelProc]*kernInfo),
	}
	def, err := c.hostProcDef(name, p)
	if err != nil {
		return nil, err
	}
	c.defs = append(c.defs, def)

	includes := append(DefaultIncludes(cfg.Dialect), cfg.Includes...)
	return &Unit{Includes: includes, Defs: c.defs}, nil
}

func (c *Compiler) fresh() string {
	n := fmt.Sprintf("t%d", c.tmpCounter)
	c.tmpCounter++
	return n
}

func (c *Compiler) freshKern() string {
	n := fmt.Sprintf("kern%d", c.kernCounter)
	c.kernCounter++
	return n
}

func (c *Compiler) freshFun() string {
	n := fmt.Sprintf("fun%d", c.funCounter)
	c.funCounter++
	return n
}

// block is the innermost open statement block.
func (c *Compiler) block() *cblock {
	return c.fr.blocks[len(c.fr.blocks)-1]
}

func (c *Compiler) pushBlock(b *cblock) {
	c.fr.blocks = append(c.fr.blocks, b)
}

func (c *Compiler) popBlock() {
	c.fr.blocks = c.fr.blocks[:len(c.fr.blocks)-1]
}

// declare emits a local declaration. CUDA host bodies split the
// initializer into an assignment: their failure paths jump to done,
// and C++ rejects a jump that bypasses an initialization. The CPU
// dialects are C, where such jumps are legal.
func (c *Compiler) declare(ctype, name, init string) {
	if init != "" && c.cfg.Dialect == CUDA && c.fr.ctx == ctxHost {
		c.emit(declStmt{ctype: ctype, name: name})
		c.emit(assignStmt{lhs: name, rhs: init})
		return
	}
	c.emit(declStmt{ctype: ctype, name: name, init: init})
}

func (c *Compiler) emit(s cstmt) {
	c.block().add(s)
}

func (c *Compiler) pushScopes(k ScopeKind) {
	PushScope(&c.vals, k)
	PushScope(&c.typs, k)
}

func (c *Compiler) popScopes() {
	PopScope(&c.vals)
	PopScope(&c.typs)
}

func (c *Compiler) bind(name string, v CVal, t types.Type) {
	Put(c.vals, name, v)
	Put(c.typs, name, t)
}

// typeEnv collapses the scopes visible from the current function into
// an inference environment, innermost bindings winning.
func (c *Compiler) typeEnv() ast.Env {
	lo := 0
	for i := len(c.typs) - 1; i >= 0; i-- {
		if c.typs[i].Kind == FuncScope {
			lo = i
			break
		}
	}
	env := make(ast.Env)
	for i := lo; i < len(c.typs); i++ {
		for k, v := range c.typs[i].Elems {
			env[k] = v
		}
	}
	return env
}

func (c *Compiler) inferExp(e ast.Exp) (types.Type, error) {
	return ast.InferExp(c.typeEnv(), e)
}
