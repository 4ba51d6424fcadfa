package ast

import (
	"strings"

	"github.com/runnerrunnerrunner/nikola/types"
)

// The printable base every node family shares
type Node interface {
	String() string
}

// All scalar expression nodes implement this
type Exp interface {
	Node
	expNode()
}

// All value nodes implement this. A value is what a program returns or
// a procedure receives: a scalar expression, unit, a manifest array, or
// a nested host program.
type Value interface {
	Node
	valueNode()
}

// All host program nodes implement this
type HostProg interface {
	Node
	hostNode()
}

// All kernel program nodes implement this
type KernProg interface {
	Node
	kernNode()
}

// Field is a named, typed formal parameter.
type Field struct {
	Name string
	T    types.Type
}

func (f Field) String() string {
	return f.Name + " " + f.T.String()
}

// HostProc is a closed host procedure: the unit of compilation.
type HostProc struct {
	Params []Field
	Body   HostProg
}

func (p *HostProc) String() string {
	var out strings.Builder
	out.WriteString("proc(")
	out.WriteString(printFields(p.Params))
	out.WriteString(") {")
	out.WriteString(p.Body.String())
	out.WriteString("}")
	return out.String()
}

// KernelProc is a closed kernel procedure, called from host programs.
// Names are assigned at code generation time.
type KernelProc struct {
	Params []Field
	Body   KernProg
}

func (p *KernelProc) String() string {
	var out strings.Builder
	out.WriteString("kernel(")
	out.WriteString(printFields(p.Params))
	out.WriteString(") {")
	out.WriteString(p.Body.String())
	out.WriteString("}")
	return out.String()
}

func printFields(fs []Field) string {
	var out strings.Builder
	for i, f := range fs {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(f.String())
	}
	return out.String()
}

func printExps(a []Exp) string {
	if len(a) == 0 {
		return ""
	}
	var out strings.Builder
	for i, e := range a {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(e.String())
	}
	return out.String()
}

func printValues(a []Value) string {
	if len(a) == 0 {
		return ""
	}
	var out strings.Builder
	for i, v := range a {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(v.String())
	}
	return out.String()
}

// Operators

type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
	OpAbs
	OpSignum
	OpExp
	OpLog
	OpSqrt
	OpSin
	OpCos
	OpTan
	OpAsin
	OpAcos
	OpAtan
	OpSinh
	OpCosh
	OpTanh
)

var unaryNames = map[UnaryOp]string{
	OpNeg:    "-",
	OpNot:    "!",
	OpAbs:    "abs",
	OpSignum: "signum",
	OpExp:    "exp",
	OpLog:    "log",
	OpSqrt:   "sqrt",
	OpSin:    "sin",
	OpCos:    "cos",
	OpTan:    "tan",
	OpAsin:   "asin",
	OpAcos:   "acos",
	OpAtan:   "atan",
	OpSinh:   "sinh",
	OpCosh:   "cosh",
	OpTanh:   "tanh",
}

func (op UnaryOp) String() string {
	if s, ok := unaryNames[op]; ok {
		return s
	}
	return "unary?"
}

// Prefix reports whether the operator prints as a prefix symbol rather
// than in call form.
func (op UnaryOp) Prefix() bool {
	return op == OpNeg || op == OpNot
}

type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpMin
	OpMax
)

var binaryNames = map[BinaryOp]string{
	OpAdd:    "+",
	OpSub:    "-",
	OpMul:    "*",
	OpDiv:    "/",
	OpMod:    "%",
	OpPow:    "**",
	OpEq:     "==",
	OpNe:     "!=",
	OpLt:     "<",
	OpLe:     "<=",
	OpGt:     ">",
	OpGe:     ">=",
	OpAnd:    "&&",
	OpOr:     "||",
	OpBitAnd: "&",
	OpBitOr:  "|",
	OpBitXor: "^",
	OpShl:    "<<",
	OpShr:    ">>",
	OpMin:    "min",
	OpMax:    "max",
}

func (op BinaryOp) String() string {
	if s, ok := binaryNames[op]; ok {
		return s
	}
	return "binary?"
}

// Infix reports whether the operator prints between its operands.
// Min and Max print in call form.
func (op BinaryOp) Infix() bool {
	return op != OpMin && op != OpMax
}
