package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/types"
)

// opKey selects a binary operator rule by operator and operand kind.
// C arithmetic is uniform across integer widths, so integer rules key
// on the kind alone; float rules consult the width for the math
// library suffix.
type opKey struct {
	Op   ast.BinaryOp
	Kind types.Kind
}

// opFunc emits the C expression for one operator application. Operand
// expressions are pure, so a rule may repeat them.
type opFunc func(s types.Scalar, x, y string) string

func infix(op string) opFunc {
	return func(s types.Scalar, x, y string) string {
		return fmt.Sprintf("(%s %s %s)", x, op, y)
	}
}

// ternary is the C min/max idiom for integer operands.
func ternary(cmp string) opFunc {
	return func(s types.Scalar, x, y string) string {
		return fmt.Sprintf("((%s) %s (%s) ? (%s) : (%s))", x, cmp, y, x, y)
	}
}

// floatFn picks the math library entry point for the operand width.
func floatFn(name string, s types.Scalar) string {
	if f, ok := s.(types.Float); ok && f.Width == 32 {
		return name + "f"
	}
	return name
}

func floatCall2(name string) opFunc {
	return func(s types.Scalar, x, y string) string {
		return fmt.Sprintf("%s(%s, %s)", floatFn(name, s), x, y)
	}
}

var binaryOps = map[opKey]opFunc{
	// Arithmetic
	{Op: ast.OpAdd, Kind: types.IntKind}:   infix("+"),
	{Op: ast.OpAdd, Kind: types.UintKind}:  infix("+"),
	{Op: ast.OpAdd, Kind: types.FloatKind}: infix("+"),
	{Op: ast.OpSub, Kind: types.IntKind}:   infix("-"),
	{Op: ast.OpSub, Kind: types.UintKind}:  infix("-"),
	{Op: ast.OpSub, Kind: types.FloatKind}: infix("-"),
	{Op: ast.OpMul, Kind: types.IntKind}:   infix("*"),
	{Op: ast.OpMul, Kind: types.UintKind}:  infix("*"),
	{Op: ast.OpMul, Kind: types.FloatKind}: infix("*"),
	{Op: ast.OpDiv, Kind: types.IntKind}:   infix("/"),
	{Op: ast.OpDiv, Kind: types.UintKind}:  infix("/"),
	{Op: ast.OpDiv, Kind: types.FloatKind}: infix("/"),
	{Op: ast.OpMod, Kind: types.IntKind}:   infix("%"),
	{Op: ast.OpMod, Kind: types.UintKind}:  infix("%"),
	{Op: ast.OpPow, Kind: types.FloatKind}: floatCall2("pow"),

	// Comparisons. Results are conventional C truth values; only
	// boolean literals use the inverted encoding.
	{Op: ast.OpEq, Kind: types.IntKind}:    infix("=="),
	{Op: ast.OpEq, Kind: types.UintKind}:   infix("=="),
	{Op: ast.OpEq, Kind: types.FloatKind}:  infix("=="),
	{Op: ast.OpEq, Kind: types.BoolKind}:   infix("=="),
	{Op: ast.OpNe, Kind: types.IntKind}:    infix("!="),
	{Op: ast.OpNe, Kind: types.UintKind}:   infix("!="),
	{Op: ast.OpNe, Kind: types.FloatKind}:  infix("!="),
	{Op: ast.OpNe, Kind: types.BoolKind}:   infix("!="),
	{Op: ast.OpLt, Kind: types.IntKind}:    infix("<"),
	{Op: ast.OpLt, Kind: types.UintKind}:   infix("<"),
	{Op: ast.OpLt, Kind: types.FloatKind}:  infix("<"),
	{Op: ast.OpLe, Kind: types.IntKind}:    infix("<="),
	{Op: ast.OpLe, Kind: types.UintKind}:   infix("<="),
	{Op: ast.OpLe, Kind: types.FloatKind}:  infix("<="),
	{Op: ast.OpGt, Kind: types.IntKind}:    infix(">"),
	{Op: ast.OpGt, Kind: types.UintKind}:   infix(">"),
	{Op: ast.OpGt, Kind: types.FloatKind}:  infix(">"),
	{Op: ast.OpGe, Kind: types.IntKind}:    infix(">="),
	{Op: ast.OpGe, Kind: types.UintKind}:   infix(">="),
	{Op: ast.OpGe, Kind: types.FloatKind}:  infix(">="),

	// Logic
	{Op: ast.OpAnd, Kind: types.BoolKind}: infix("&&"),
	{Op: ast.OpOr, Kind: types.BoolKind}:  infix("||"),

	// Bits
	{Op: ast.OpBitAnd, Kind: types.IntKind}:  infix("&"),
	{Op: ast.OpBitAnd, Kind: types.UintKind}: infix("&"),
	{Op: ast.OpBitOr, Kind: types.IntKind}:   infix("|"),
	{Op: ast.OpBitOr, Kind: types.UintKind}:  infix("|"),
	{Op: ast.OpBitXor, Kind: types.IntKind}:  infix("^"),
	{Op: ast.OpBitXor, Kind: types.UintKind}: infix("^"),
	{Op: ast.OpShl, Kind: types.IntKind}:     infix("<<"),
	{Op: ast.OpShl, Kind: types.UintKind}:    infix("<<"),
	{Op: ast.OpShr, Kind: types.IntKind}:     infix(">>"),
	{Op: ast.OpShr, Kind: types.UintKind}:    infix(">>"),

	// Min/max
	{Op: ast.OpMin, Kind: types.IntKind}:    ternary("<"),
	{Op: ast.OpMin, Kind: types.UintKind}:   ternary("<"),
	{Op: ast.OpMin, Kind: types.FloatKind}:  floatCall2("fmin"),
	{Op: ast.OpMax, Kind: types.IntKind}:    ternary(">"),
	{Op: ast.OpMax, Kind: types.UintKind}:   ternary(">"),
	{Op: ast.OpMax, Kind: types.FloatKind}:  floatCall2("fmax"),
}

type unKey struct {
	Op   ast.UnaryOp
	Kind types.Kind
}

type unFunc func(s types.Scalar, x string) string

func prefix(op string) unFunc {
	return func(s types.Scalar, x string) string {
		return fmt.Sprintf("(%s%s)", op, x)
	}
}

func floatCall1(name string) unFunc {
	return func(s types.Scalar, x string) string {
		return fmt.Sprintf("%s(%s)", floatFn(name, s), x)
	}
}

func intAbs(s types.Scalar, x string) string {
	if s.(types.Int).Width == 64 {
		return fmt.Sprintf("llabs(%s)", x)
	}
	return fmt.Sprintf("abs(%s)", x)
}

func intSignum(s types.Scalar, x string) string {
	return fmt.Sprintf("((%s > 0) - (%s < 0))", x, x)
}

func floatSignum(s types.Scalar, x string) string {
	return fmt.Sprintf("(%s)((%s > 0) - (%s < 0))", ctypeScalar(s), x, x)
}

var unaryOps = map[unKey]unFunc{
	{Op: ast.OpNeg, Kind: types.IntKind}:      prefix("-"),
	{Op: ast.OpNeg, Kind: types.FloatKind}:    prefix("-"),
	{Op: ast.OpNot, Kind: types.BoolKind}:     prefix("!"),
	{Op: ast.OpAbs, Kind: types.IntKind}:      intAbs,
	{Op: ast.OpAbs, Kind: types.FloatKind}:    floatCall1("fabs"),
	{Op: ast.OpSignum, Kind: types.IntKind}:   intSignum,
	{Op: ast.OpSignum, Kind: types.FloatKind}: floatSignum,
	{Op: ast.OpExp, Kind: types.FloatKind}:    floatCall1("exp"),
	{Op: ast.OpLog, Kind: types.FloatKind}:    floatCall1("log"),
	{Op: ast.OpSqrt, Kind: types.FloatKind}:   floatCall1("sqrt"),
	{Op: ast.OpSin, Kind: types.FloatKind}:    floatCall1("sin"),
	{Op: ast.OpCos, Kind: types.FloatKind}:    floatCall1("cos"),
	{Op: ast.OpTan, Kind: types.FloatKind}:    floatCall1("tan"),
	{Op: ast.OpAsin, Kind: types.FloatKind}:   floatCall1("asin"),
	{Op: ast.OpAcos, Kind: types.FloatKind}:   floatCall1("acos"),
	{Op: ast.OpAtan, Kind: types.FloatKind}:   floatCall1("atan"),
	{Op: ast.OpSinh, Kind: types.FloatKind}:   floatCall1("sinh"),
	{Op: ast.OpCosh, Kind: types.FloatKind}:   floatCall1("cosh"),
	{Op: ast.OpTanh, Kind: types.FloatKind}:   floatCall1("tanh"),
}

var kindNames = map[types.Kind]string{
	types.UnitKind:  "Unit",
	types.BoolKind:  "Bool",
	types.IntKind:   "I*",
	types.UintKind:  "U*",
	types.FloatKind: "F*",
}

// binOp emits one binary operator application. A missing table entry
// is a fatal compile error naming the operand kinds the operator does
// support.
func (c *Compiler) binOp(op ast.BinaryOp, s types.Scalar, x, y string) (string, error) {
	f, ok := binaryOps[opKey{Op: op, Kind: s.Kind()}]
	if !ok {
		return "", errors.Errorf("no rule for operator %s at type %s; have: %s",
			op, s, binOpCandidates(op))
	}
	return f(s, x, y), nil
}

func (c *Compiler) unOp(op ast.UnaryOp, s types.Scalar, x string) (string, error) {
	f, ok := unaryOps[unKey{Op: op, Kind: s.Kind()}]
	if !ok {
		return "", errors.Errorf("no rule for operator %s at type %s; have: %s",
			op, s, unOpCandidates(op))
	}
	return f(s, x), nil
}

func binOpCandidates(op ast.BinaryOp) string {
	var kinds []string
	for _, k := range maps.Keys(binaryOps) {
		if k.Op == op {
			kinds = append(kinds, kindNames[k.Kind])
		}
	}
	sort.Strings(kinds)
	if len(kinds) == 0 {
		return "nothing"
	}
	return strings.Join(kinds, ", ")
}

func unOpCandidates(op ast.UnaryOp) string {
	var kinds []string
	for _, k := range maps.Keys(unaryOps) {
		if k.Op == op {
			kinds = append(kinds, kindNames[k.Kind])
		}
	}
	sort.Strings(kinds)
	if len(kinds) == 0 {
		return "nothing"
	}
	return strings.Join(kinds, ", ")
}
