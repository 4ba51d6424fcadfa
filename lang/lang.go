// Package lang offers thin builders over the expression and program
// nodes: typed literals, operator combinators, the canonical one- and
// two-array functions, and memoized deferred nodes. Demos and tests
// use it to assemble realistic programs without spelling out every
// node.
package lang

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/reify"
	"github.com/runnerrunnerrunner/nikola/types"
)

// Literals

func I32(v int32) ast.Exp   { return &ast.IntLit{S: types.I32, Val: int64(v)} }
func I64(v int64) ast.Exp   { return &ast.IntLit{S: types.I64, Val: v} }
func U32(v uint32) ast.Exp  { return &ast.UintLit{S: types.U32, Val: uint64(v)} }
func U64(v uint64) ast.Exp  { return &ast.UintLit{S: types.U64, Val: v} }
func F32(v float32) ast.Exp { return &ast.FloatLit{S: types.F32, Val: float64(v)} }
func F64(v float64) ast.Exp { return &ast.FloatLit{S: types.F64, Val: v} }
func Bool(v bool) ast.Exp   { return &ast.BoolLit{Val: v} }

// Structure

func Var(name string) ast.Exp        { return &ast.Var{Name: name} }
func Tuple(elems ...ast.Exp) ast.Exp { return &ast.TupleExp{Elems: elems} }
func Proj(x ast.Exp, i int) ast.Exp  { return &ast.Proj{X: x, Index: i} }
func Idx(arr, i ast.Exp) ast.Exp     { return &ast.Idx{Arr: arr, I: i} }
func Dim(arr ast.Exp, i int) ast.Exp { return &ast.DimOf{X: arr, Index: i} }

func Let(name string, x, body ast.Exp) ast.Exp {
	return &ast.LetExp{Name: name, X: x, Body: body}
}

func Cond(c, then, els ast.Exp) ast.Exp {
	return &ast.CondExp{Cond: c, Then: then, Else: els}
}

// Operators

func binary(op ast.BinaryOp) func(x, y ast.Exp) ast.Exp {
	return func(x, y ast.Exp) ast.Exp { return &ast.Binary{Op: op, X: x, Y: y} }
}

func unary(op ast.UnaryOp) func(x ast.Exp) ast.Exp {
	return func(x ast.Exp) ast.Exp { return &ast.Unary{Op: op, X: x} }
}

var (
	Add = binary(ast.OpAdd)
	Sub = binary(ast.OpSub)
	Mul = binary(ast.OpMul)
	Div = binary(ast.OpDiv)
	Mod = binary(ast.OpMod)
	Pow = binary(ast.OpPow)
	Min = binary(ast.OpMin)
	Max = binary(ast.OpMax)
	Eq  = binary(ast.OpEq)
	Ne  = binary(ast.OpNe)
	Lt  = binary(ast.OpLt)
	Le  = binary(ast.OpLe)
	Gt  = binary(ast.OpGt)
	Ge  = binary(ast.OpGe)
	And = binary(ast.OpAnd)
	Or  = binary(ast.OpOr)

	Neg    = unary(ast.OpNeg)
	Not    = unary(ast.OpNot)
	Abs    = unary(ast.OpAbs)
	Signum = unary(ast.OpSignum)
	Sqrt   = unary(ast.OpSqrt)
	Exp    = unary(ast.OpExp)
	Log    = unary(ast.OpLog)
	Sin    = unary(ast.OpSin)
	Cos    = unary(ast.OpCos)
	Atan   = unary(ast.OpAtan)
)

// elemType infers the scalar type an element function produces.
func elemType(env ast.Env, e ast.Exp) (types.Scalar, error) {
	t, err := ast.InferExp(env, e)
	if err != nil {
		return nil, err
	}
	s, ok := types.AsScalar(t)
	if !ok {
		return nil, errors.Errorf("element function produces %s, want a scalar", t)
	}
	return s, nil
}

// arrayOf is the array value naming a one-dimensional bound array.
func arrayOf(elem types.Scalar, name string) *ast.ArrayVal {
	return &ast.ArrayVal{Elem: elem, Ptr: Var(name), Dims: []ast.Exp{Dim(Var(name), 0)}}
}

// launchInto allocates the output array, launches the kernel over the
// inputs plus the fresh buffer, and returns the kernel's result.
func launchInto(kern *ast.KernelProc, out types.Scalar, args []ast.Value, dims []ast.Exp) ast.HostProg {
	callArgs := make([]ast.Value, 0, len(args)+1)
	callArgs = append(callArgs, args...)
	callArgs = append(callArgs, arrayOf(out, "t"))
	return &ast.HostBind{
		Name: "t",
		P:    &ast.HostAlloc{Elem: out, Dims: dims},
		Body: &ast.HostBind{
			Name: "r",
			P:    &ast.HostCall{Proc: kern, Args: callArgs},
			Body: &ast.HostRet{V: arrayOf(out, "r")},
		},
	}
}

// Map builds the function applying f to every element of a
// one-dimensional array of elem. Each parallel iteration applies the
// outlined element function; the kernel returns its output array.
func Map(name string, elem types.Scalar, f func(e ast.Exp) ast.Exp) *reify.Fun {
	in := types.Array{Rank: 1, Elem: elem}
	return reify.New(name, []types.Type{in}, func(args []ast.Value) (ast.Value, error) {
		xs, ok := args[0].(*ast.ArrayVal)
		if !ok {
			return nil, errors.Errorf("map %s: argument is not an array value", name)
		}
		body := f(Var("e"))
		out, err := elemType(ast.Env{"e": elem}, body)
		if err != nil {
			return nil, errors.Wrapf(err, "map %s", name)
		}

		kern := &ast.KernelProc{
			Params: []ast.Field{
				{Name: "xs", T: in},
				{Name: "ys", T: types.Array{Rank: 1, Elem: out}},
			},
			Body: &ast.KernSeq{
				First: &ast.KernParFor{
					Vars:   []string{"i"},
					Bounds: []ast.Exp{Dim(Var("xs"), 0)},
					Body: &ast.KernWrite{
						Arr: Var("ys"),
						Ix:  Var("i"),
						Val: &ast.App{
							F:    &ast.Lam{Params: []ast.Field{{Name: "e", T: elem}}, Body: body},
							Args: []ast.Exp{Idx(Var("xs"), Var("i"))},
						},
					},
				},
				Then: &ast.KernRet{V: arrayOf(out, "ys")},
			},
		}
		return &ast.ProgVal{P: launchInto(kern, out, []ast.Value{xs}, xs.Dims)}, nil
	})
}

// ZipWith builds the function combining two equal-length
// one-dimensional arrays of elem pointwise. The combination is
// substituted inline into the kernel body rather than outlined.
func ZipWith(name string, elem types.Scalar, f func(x, y ast.Exp) ast.Exp) *reify.Fun {
	in := types.Array{Rank: 1, Elem: elem}
	return reify.New(name, []types.Type{in, in}, func(args []ast.Value) (ast.Value, error) {
		xs, ok := args[0].(*ast.ArrayVal)
		if !ok {
			return nil, errors.Errorf("zipWith %s: first argument is not an array value", name)
		}
		ys, ok := args[1].(*ast.ArrayVal)
		if !ok {
			return nil, errors.Errorf("zipWith %s: second argument is not an array value", name)
		}
		body := f(Var("zx"), Var("zy"))
		out, err := elemType(ast.Env{"zx": elem, "zy": elem}, body)
		if err != nil {
			return nil, errors.Wrapf(err, "zipWith %s", name)
		}
		val := ast.SubstExp(body, map[string]ast.Exp{
			"zx": Idx(Var("xs"), Var("i")),
			"zy": Idx(Var("ys"), Var("i")),
		})

		kern := &ast.KernelProc{
			Params: []ast.Field{
				{Name: "xs", T: in},
				{Name: "ys", T: in},
				{Name: "zs", T: types.Array{Rank: 1, Elem: out}},
			},
			Body: &ast.KernSeq{
				First: &ast.KernParFor{
					Vars:   []string{"i"},
					Bounds: []ast.Exp{Dim(Var("xs"), 0)},
					Body:   &ast.KernWrite{Arr: Var("zs"), Ix: Var("i"), Val: val},
				},
				Then: &ast.KernRet{V: arrayOf(out, "zs")},
			},
		}
		return &ast.ProgVal{P: launchInto(kern, out, []ast.Value{xs, ys}, xs.Dims)}, nil
	})
}

// Defer wraps a thunk as an expression node. The thunk runs at most
// once no matter how many traversals force the node.
func Defer(f func() (ast.Exp, error)) ast.Exp {
	var once sync.Once
	var e ast.Exp
	var err error
	return &ast.DeferredExp{Force: func() (ast.Exp, error) {
		once.Do(func() { e, err = f() })
		return e, err
	}}
}

// DeferHost is Defer for host programs.
func DeferHost(f func() (ast.HostProg, error)) ast.HostProg {
	var once sync.Once
	var p ast.HostProg
	var err error
	return &ast.HostDeferred{Force: func() (ast.HostProg, error) {
		once.Do(func() { p, err = f() })
		return p, err
	}}
}
