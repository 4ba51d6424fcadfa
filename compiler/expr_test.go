package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/types"
)

// compileRet compiles a host procedure that returns the expression and
// yields the unit text.
func compileRet(t *testing.T, d Dialect, params []ast.Field, e ast.Exp) string {
	t.Helper()
	proc := &ast.HostProc{Params: params, Body: &ast.HostRet{V: &ast.ScalarVal{X: e}}}
	unit, err := Compile(proc, Config{Dialect: d, Name: "f"})
	require.NoError(t, err)
	return unit.String()
}

func TestLiterals(t *testing.T) {
	tests := []struct {
		name string
		e    ast.Exp
		want string
	}{
		{"i64", &ast.IntLit{S: types.I64, Val: 7}, "7LL"},
		{"i32", &ast.IntLit{S: types.I32, Val: 7}, "7"},
		{"i8", &ast.IntLit{S: types.I8, Val: 7}, "(int8_t)7"},
		{"u64", &ast.UintLit{S: types.U64, Val: 7}, "7ULL"},
		{"u32", &ast.UintLit{S: types.U32, Val: 7}, "7U"},
		{"u16", &ast.UintLit{S: types.U16, Val: 7}, "(uint16_t)7U"},
		{"f32", &ast.FloatLit{S: types.F32, Val: 1.5}, "1.5f"},
		{"f64", &ast.FloatLit{S: types.F64, Val: 1.5}, "1.5"},
		{"f32 whole", &ast.FloatLit{S: types.F32, Val: 2}, "2.0f"},
		{"f64 whole", &ast.FloatLit{S: types.F64, Val: 2}, "2.0"},
		{"f64 exponent", &ast.FloatLit{S: types.F64, Val: 1e10}, "1e+10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := compileRet(t, Plain, nil, tt.e)
			require.Contains(t, out, "*out0 = "+tt.want+";")
		})
	}
}

// Boolean literals use the inverted encoding; comparisons and negation
// stay conventional.
func TestBooleanEncoding(t *testing.T) {
	out := compileRet(t, Plain, nil, &ast.BoolLit{Val: true})
	require.Contains(t, out, "*out0 = 0;")
	out = compileRet(t, Plain, nil, &ast.BoolLit{Val: false})
	require.Contains(t, out, "*out0 = 1;")

	params := []ast.Field{{Name: "x", T: types.F32}, {Name: "y", T: types.F32}}
	out = compileRet(t, Plain, params, &ast.Binary{Op: ast.OpLt, X: evar("x"), Y: evar("y")})
	require.Contains(t, out, "*out0 = (x < y);")

	bparam := []ast.Field{{Name: "b", T: types.B}}
	out = compileRet(t, Plain, bparam, &ast.Unary{Op: ast.OpNot, X: evar("b")})
	require.Contains(t, out, "*out0 = (!b);")
}

func TestBinaryOperators(t *testing.T) {
	tests := []struct {
		name string
		pt   types.Scalar
		op   ast.BinaryOp
		want string
	}{
		{"add f32", types.F32, ast.OpAdd, "(x + y)"},
		{"sub i32", types.I32, ast.OpSub, "(x - y)"},
		{"mul f64", types.F64, ast.OpMul, "(x * y)"},
		{"div u32", types.U32, ast.OpDiv, "(x / y)"},
		{"mod i64", types.I64, ast.OpMod, "(x % y)"},
		{"pow f32", types.F32, ast.OpPow, "powf(x, y)"},
		{"pow f64", types.F64, ast.OpPow, "pow(x, y)"},
		{"eq bool", types.B, ast.OpEq, "(x == y)"},
		{"ne f32", types.F32, ast.OpNe, "(x != y)"},
		{"ge u16", types.U16, ast.OpGe, "(x >= y)"},
		{"and", types.B, ast.OpAnd, "(x && y)"},
		{"or", types.B, ast.OpOr, "(x || y)"},
		{"bitand u32", types.U32, ast.OpBitAnd, "(x & y)"},
		{"xor i32", types.I32, ast.OpBitXor, "(x ^ y)"},
		{"shl u64", types.U64, ast.OpShl, "(x << y)"},
		{"shr i32", types.I32, ast.OpShr, "(x >> y)"},
		{"min i32", types.I32, ast.OpMin, "((x) < (y) ? (x) : (y))"},
		{"max u8", types.U8, ast.OpMax, "((x) > (y) ? (x) : (y))"},
		{"min f32", types.F32, ast.OpMin, "fminf(x, y)"},
		{"max f64", types.F64, ast.OpMax, "fmax(x, y)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := []ast.Field{{Name: "x", T: tt.pt}, {Name: "y", T: tt.pt}}
			out := compileRet(t, Plain, params, &ast.Binary{Op: tt.op, X: evar("x"), Y: evar("y")})
			require.Contains(t, out, "*out0 = "+tt.want+";")
		})
	}
}

func TestUnaryOperators(t *testing.T) {
	tests := []struct {
		name string
		pt   types.Scalar
		op   ast.UnaryOp
		want string
	}{
		{"neg i32", types.I32, ast.OpNeg, "(-x)"},
		{"neg f64", types.F64, ast.OpNeg, "(-x)"},
		{"abs i32", types.I32, ast.OpAbs, "abs(x)"},
		{"abs i64", types.I64, ast.OpAbs, "llabs(x)"},
		{"abs f32", types.F32, ast.OpAbs, "fabsf(x)"},
		{"abs f64", types.F64, ast.OpAbs, "fabs(x)"},
		{"signum i32", types.I32, ast.OpSignum, "((x > 0) - (x < 0))"},
		{"signum f32", types.F32, ast.OpSignum, "(float)((x > 0) - (x < 0))"},
		{"sqrt f64", types.F64, ast.OpSqrt, "sqrt(x)"},
		{"sin f32", types.F32, ast.OpSin, "sinf(x)"},
		{"tanh f64", types.F64, ast.OpTanh, "tanh(x)"},
		{"log f32", types.F32, ast.OpLog, "logf(x)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := []ast.Field{{Name: "x", T: tt.pt}}
			out := compileRet(t, Plain, params, &ast.Unary{Op: tt.op, X: evar("x")})
			require.Contains(t, out, "*out0 = "+tt.want+";")
		})
	}
}

// The operator tables are keyed by kind; a miss is a compile error
// listing the kinds the operator does support, sorted.
func TestOperatorNoRule(t *testing.T) {
	c := &Compiler{}
	_, err := c.binOp(ast.OpPow, types.I32, "x", "y")
	require.Error(t, err)
	require.Equal(t, "no rule for operator ** at type I32; have: F*", err.Error())

	_, err = c.binOp(ast.OpAdd, types.B, "x", "y")
	require.Error(t, err)
	require.Equal(t, "no rule for operator + at type Bool; have: F*, I*, U*", err.Error())

	_, err = c.unOp(ast.OpSqrt, types.I64, "x")
	require.Error(t, err)
	require.Equal(t, "no rule for operator sqrt at type I64; have: F*", err.Error())
}

func TestLetBindsCompoundOnce(t *testing.T) {
	params := []ast.Field{{Name: "x", T: types.F32}}
	e := &ast.LetExp{
		Name: "n",
		X:    &ast.Binary{Op: ast.OpAdd, X: evar("x"), Y: &ast.FloatLit{S: types.F32, Val: 1}},
		Body: &ast.Binary{Op: ast.OpMul, X: evar("n"), Y: evar("n")},
	}
	out := compileRet(t, Plain, params, e)
	require.Contains(t, out, "float t0 = (x + 1.0f);")
	require.Contains(t, out, "*out0 = (t0 * t0);")
	require.Equal(t, 1, strings.Count(out, "(x + 1.0f)"))
}

func TestLetAtomicNeedsNoTemp(t *testing.T) {
	params := []ast.Field{{Name: "x", T: types.F32}}
	e := &ast.LetExp{
		Name: "n",
		X:    evar("x"),
		Body: &ast.Binary{Op: ast.OpMul, X: evar("n"), Y: evar("n")},
	}
	out := compileRet(t, Plain, params, e)
	require.Contains(t, out, "*out0 = (x * x);")
	require.NotContains(t, out, "float t0")
}

func TestCondAssignsTempPerBranch(t *testing.T) {
	params := []ast.Field{
		{Name: "b", T: types.B},
		{Name: "x", T: types.F32},
		{Name: "y", T: types.F32},
	}
	e := &ast.CondExp{Cond: evar("b"), Then: evar("x"), Else: evar("y")}
	out := compileRet(t, Plain, params, e)
	require.Contains(t, out, `    float t0;
    if (b) {
        t0 = x;
    } else {
        t0 = y;
    }
    *out0 = t0;`)
}

func TestCondTupleResult(t *testing.T) {
	pair := types.Tuple{Elems: []types.Scalar{types.I32, types.I32}}
	params := []ast.Field{
		{Name: "b", T: types.B},
		{Name: "p", T: pair},
		{Name: "q", T: pair},
	}
	e := &ast.CondExp{Cond: evar("b"), Then: evar("p"), Else: evar("q")}
	out := compileRet(t, Plain, params, e)
	require.Contains(t, out, "int32_t t0;")
	require.Contains(t, out, "int32_t t1;")
	require.Contains(t, out, "t0 = p_0;")
	require.Contains(t, out, "t1 = p_1;")
	require.Contains(t, out, "t0 = q_0;")
	require.Contains(t, out, "t1 = q_1;")
}

func TestSwitchWithoutDefaultArm(t *testing.T) {
	params := []ast.Field{{Name: "x", T: types.I32}}
	one := &ast.IntLit{S: types.I32, Val: 1}
	e := &ast.SwitchExp{
		Tag: evar("x"),
		Cases: []ast.CaseAlt{
			{Lit: 0, Body: &ast.Binary{Op: ast.OpAdd, X: evar("x"), Y: one}},
			{Lit: 2, Body: &ast.Binary{Op: ast.OpSub, X: evar("x"), Y: one}},
		},
	}
	out := compileRet(t, Plain, params, e)
	require.Contains(t, out, `    switch (x) {
    case 0:
        t0 = (x + 1);
        break;
    case 2:
        t0 = (x - 1);
        break;
    }`)
	require.NotContains(t, out, "default:")
}

func TestSwitchDefaultArm(t *testing.T) {
	params := []ast.Field{{Name: "x", T: types.I32}}
	e := &ast.SwitchExp{
		Tag:     evar("x"),
		Cases:   []ast.CaseAlt{{Lit: 0, Body: evar("x")}},
		Default: &ast.IntLit{S: types.I32, Val: 9},
	}
	out := compileRet(t, Plain, params, e)
	require.Contains(t, out, `    default:
        t0 = 9;
        break;`)
}

func TestProjectionEmitsNoCode(t *testing.T) {
	pair := types.Tuple{Elems: []types.Scalar{types.I32, types.F64}}
	params := []ast.Field{{Name: "p", T: pair}}
	out := compileRet(t, Plain, params, &ast.Proj{X: evar("p"), Index: 1})
	require.Contains(t, out, "int f(int32_t p_0, double p_1, double* out0)")
	require.Contains(t, out, "*out0 = p_1;")
	require.NotContains(t, out, "double t0")
}

func TestFieldArrayProjection(t *testing.T) {
	pair := types.Tuple{Elems: []types.Scalar{types.F32, types.F32}}
	params := []ast.Field{{Name: "a", T: types.Array{Rank: 1, Elem: pair}}}
	out := compileRet(t, Plain, params, &ast.ProjArr{X: evar("a"), Index: 0})
	require.Contains(t, out, "int f(float* a_0, float* a_1, int a_dim0, float** out0, int* out1)")
	require.Contains(t, out, "*out0 = a_0;")
	require.Contains(t, out, "*out1 = a_dim0;")
}

func TestDimOfReadsSlot(t *testing.T) {
	params := []ast.Field{{Name: "a", T: vec(2)}}
	out := compileRet(t, Plain, params, &ast.DimOf{X: evar("a"), Index: 1})
	require.Contains(t, out, "*out0 = a_dim1;")
}

func TestIndexTupleArrayLoadsEveryBuffer(t *testing.T) {
	pair := types.Tuple{Elems: []types.Scalar{types.F32, types.F32}}
	params := []ast.Field{{Name: "a", T: types.Array{Rank: 1, Elem: pair}}}
	e := &ast.Idx{Arr: evar("a"), I: &ast.IntLit{S: types.I32, Val: 3}}
	out := compileRet(t, Plain, params, e)
	require.Contains(t, out, "*out0 = a_0[3];")
	require.Contains(t, out, "*out1 = a_1[3];")
}

func TestHelperScalarReturnsByValue(t *testing.T) {
	params := []ast.Field{{Name: "y", T: types.F32}}
	e := &ast.App{
		F: &ast.Lam{
			Params: []ast.Field{{Name: "x", T: types.F32}},
			Body:   &ast.Binary{Op: ast.OpAdd, X: evar("x"), Y: &ast.FloatLit{S: types.F32, Val: 1}},
		},
		Args: []ast.Exp{evar("y")},
	}
	out := compileRet(t, Plain, params, e)
	require.Contains(t, out, `static float fun0(float x) {
    return (x + 1.0f);
}`)
	require.Contains(t, out, "*out0 = fun0(y);")
}

func TestHelperTupleReturnsThroughOutParams(t *testing.T) {
	params := []ast.Field{{Name: "y", T: types.F32}}
	e := &ast.App{
		F: &ast.Lam{
			Params: []ast.Field{{Name: "x", T: types.F32}},
			Body: &ast.TupleExp{Elems: []ast.Exp{
				evar("x"),
				&ast.Binary{Op: ast.OpMul, X: evar("x"), Y: &ast.FloatLit{S: types.F32, Val: 2}},
			}},
		},
		Args: []ast.Exp{evar("y")},
	}
	out := compileRet(t, Plain, params, e)
	require.Contains(t, out, `static void fun0(float x, float* out0, float* out1) {
    *out0 = x;
    *out1 = (x * 2.0f);
}`)
	require.Contains(t, out, "fun0(y, &t0, &t1);")
	require.Contains(t, out, "*out0 = t0;")
	require.Contains(t, out, "*out1 = t1;")
}

func TestHelperDeviceQualifierInsideKernel(t *testing.T) {
	inc := &ast.App{
		F: &ast.Lam{
			Params: []ast.Field{{Name: "x", T: types.F32}},
			Body:   &ast.Binary{Op: ast.OpAdd, X: evar("x"), Y: &ast.FloatLit{S: types.F32, Val: 1}},
		},
		Args: []ast.Exp{&ast.Idx{Arr: evar("xs"), I: evar("i")}},
	}
	proc := launchOnly(&ast.KernParFor{
		Vars:   []string{"i"},
		Bounds: []ast.Exp{dimOf("xs", 0)},
		Body:   &ast.KernWrite{Arr: evar("ys"), Ix: evar("i"), Val: inc},
	})

	unit, err := Compile(proc, Config{Dialect: CUDA, Name: "inc"})
	require.NoError(t, err)
	out := unit.String()
	require.Contains(t, out, "__device__ static float fun0(float x)")
	require.Less(t, strings.Index(out, "fun0(float x)"), strings.Index(out, "void kern0("))

	unit, err = Compile(proc, Config{Dialect: Plain, Name: "inc"})
	require.NoError(t, err)
	require.Contains(t, unit.String(), "static float fun0(float x)")
	require.NotContains(t, unit.String(), "__device__")
}

func TestDeferredExpressionForced(t *testing.T) {
	forced := 0
	params := []ast.Field{{Name: "x", T: types.I32}}
	e := &ast.DeferredExp{Force: func() (ast.Exp, error) {
		forced++
		return &ast.Binary{Op: ast.OpAdd, X: evar("x"), Y: &ast.IntLit{S: types.I32, Val: 1}}, nil
	}}
	out := compileRet(t, Plain, params, e)
	require.Contains(t, out, "*out0 = (x + 1);")
	require.Greater(t, forced, 0)
}
