package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/runnerrunnerrunner/nikola/types"
)

// Expressions

type Var struct {
	Name string
}

func (v *Var) expNode()       {}
func (v *Var) String() string { return v.Name }

type IntLit struct {
	S   types.Int
	Val int64
}

func (l *IntLit) expNode()       {}
func (l *IntLit) String() string { return strconv.FormatInt(l.Val, 10) }

type UintLit struct {
	S   types.Uint
	Val uint64
}

func (l *UintLit) expNode()       {}
func (l *UintLit) String() string { return strconv.FormatUint(l.Val, 10) }

type FloatLit struct {
	S   types.Float
	Val float64
}

func (l *FloatLit) expNode() {}
func (l *FloatLit) String() string {
	return strconv.FormatFloat(l.Val, 'g', -1, int(l.S.Width))
}

type BoolLit struct {
	Val bool
}

func (l *BoolLit) expNode() {}
func (l *BoolLit) String() string {
	if l.Val {
		return "true"
	}
	return "false"
}

type UnitLit struct{}

func (l *UnitLit) expNode()       {}
func (l *UnitLit) String() string { return "()" }

type TupleExp struct {
	Elems []Exp
}

func (t *TupleExp) expNode() {}
func (t *TupleExp) String() string {
	return "(" + printExps(t.Elems) + ")"
}

// Proj selects field Index of a tuple expression.
type Proj struct {
	X     Exp
	Index int
}

func (p *Proj) expNode() {}
func (p *Proj) String() string {
	return fmt.Sprintf("%s.%d", p.X.String(), p.Index)
}

// ProjArr selects the Index-th field array of an array of tuples.
// Arrays of tuples are laid out as one array per field, so this is a
// projection on the pointer representation, not an element read.
type ProjArr struct {
	X     Exp
	Index int
}

func (p *ProjArr) expNode() {}
func (p *ProjArr) String() string {
	return fmt.Sprintf("%s@%d", p.X.String(), p.Index)
}

// DimOf reads the Index-th extent of an array expression.
type DimOf struct {
	X     Exp
	Index int
}

func (d *DimOf) expNode() {}
func (d *DimOf) String() string {
	return fmt.Sprintf("dim(%s, %d)", d.X.String(), d.Index)
}

type LetExp struct {
	Name string
	T    types.Type
	X    Exp
	Body Exp
}

func (l *LetExp) expNode() {}
func (l *LetExp) String() string {
	var out strings.Builder
	out.WriteString("(let ")
	out.WriteString(l.Name)
	out.WriteString(" = ")
	out.WriteString(l.X.String())
	out.WriteString(" in ")
	out.WriteString(l.Body.String())
	out.WriteString(")")
	return out.String()
}

// Lam is a lambda. Bodies must be closed over Params: free variables
// other than the parameters are a well-formedness fault.
type Lam struct {
	Params []Field
	Body   Exp
}

func (l *Lam) expNode() {}
func (l *Lam) String() string {
	var out strings.Builder
	out.WriteString("(\\")
	out.WriteString(printFields(l.Params))
	out.WriteString(" -> ")
	out.WriteString(l.Body.String())
	out.WriteString(")")
	return out.String()
}

type App struct {
	F    Exp
	Args []Exp
}

func (a *App) expNode() {}
func (a *App) String() string {
	return a.F.String() + "(" + printExps(a.Args) + ")"
}

type Unary struct {
	Op UnaryOp
	X  Exp
}

func (u *Unary) expNode() {}
func (u *Unary) String() string {
	if u.Op.Prefix() {
		return "(" + u.Op.String() + u.X.String() + ")"
	}
	return u.Op.String() + "(" + u.X.String() + ")"
}

type Binary struct {
	Op BinaryOp
	X  Exp
	Y  Exp
}

func (b *Binary) expNode() {}
func (b *Binary) String() string {
	if b.Op.Infix() {
		return "(" + b.X.String() + " " + b.Op.String() + " " + b.Y.String() + ")"
	}
	return b.Op.String() + "(" + b.X.String() + ", " + b.Y.String() + ")"
}

type CondExp struct {
	Cond Exp
	Then Exp
	Else Exp
}

func (c *CondExp) expNode() {}
func (c *CondExp) String() string {
	return "(" + c.Cond.String() + " ? " + c.Then.String() + " : " + c.Else.String() + ")"
}

// CaseAlt is one arm of a switch expression, selected when the tag
// equals Lit.
type CaseAlt struct {
	Lit  int64
	Body Exp
}

// SwitchExp dispatches on an integer tag. Default may be nil, in which
// case a tag matching no arm leaves the result slots unassigned.
type SwitchExp struct {
	Tag     Exp
	Cases   []CaseAlt
	Default Exp
}

func (s *SwitchExp) expNode() {}
func (s *SwitchExp) String() string {
	var out strings.Builder
	out.WriteString("switch(")
	out.WriteString(s.Tag.String())
	out.WriteString("){")
	for i, c := range s.Cases {
		if i > 0 {
			out.WriteString(", ")
		}
		fmt.Fprintf(&out, "%d: %s", c.Lit, c.Body.String())
	}
	if s.Default != nil {
		out.WriteString(", _: ")
		out.WriteString(s.Default.String())
	}
	out.WriteString("}")
	return out.String()
}

// Idx reads the element of Arr at linear index I.
type Idx struct {
	Arr Exp
	I   Exp
}

func (x *Idx) expNode() {}
func (x *Idx) String() string {
	return x.Arr.String() + "[" + x.I.String() + "]"
}

// DeferredExp produces its expression on demand. Force must be
// memoized by the producer; consumers force at most once per traversal.
type DeferredExp struct {
	Force func() (Exp, error)
}

func (d *DeferredExp) expNode()       {}
func (d *DeferredExp) String() string { return "<deferred>" }
