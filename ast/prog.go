package ast

import (
	"strings"

	"github.com/runnerrunnerrunner/nikola/types"
)

// Host programs

type HostRet struct {
	V Value
}

func (p *HostRet) hostNode()      {}
func (p *HostRet) String() string { return "return " + p.V.String() }

type HostSeq struct {
	First HostProg
	Then  HostProg
}

func (p *HostSeq) hostNode() {}
func (p *HostSeq) String() string {
	return p.First.String() + "; " + p.Then.String()
}

type HostLet struct {
	Name string
	T    types.Type
	X    Exp
	Body HostProg
}

func (p *HostLet) hostNode() {}
func (p *HostLet) String() string {
	return "let " + p.Name + " = " + p.X.String() + "; " + p.Body.String()
}

// HostBind runs P and binds its result value to Name in Body.
type HostBind struct {
	Name string
	T    types.Type
	P    HostProg
	Body HostProg
}

func (p *HostBind) hostNode() {}
func (p *HostBind) String() string {
	return p.Name + " <- {" + p.P.String() + "}; " + p.Body.String()
}

// HostCall invokes a kernel procedure with value arguments. The
// program's value is the kernel's result.
type HostCall struct {
	Proc *KernelProc
	Args []Value
}

func (p *HostCall) hostNode() {}
func (p *HostCall) String() string {
	return "launch(" + printValues(p.Args) + ")"
}

type HostIf struct {
	Cond Exp
	Then HostProg
	Else HostProg
}

func (p *HostIf) hostNode() {}
func (p *HostIf) String() string {
	var out strings.Builder
	out.WriteString("if ")
	out.WriteString(p.Cond.String())
	out.WriteString(" {")
	out.WriteString(p.Then.String())
	out.WriteString("} else {")
	out.WriteString(p.Else.String())
	out.WriteString("}")
	return out.String()
}

// HostAlloc allocates an array with the given element type and extents.
// The program's value is the fresh array.
type HostAlloc struct {
	Elem types.Scalar
	Dims []Exp
}

func (p *HostAlloc) hostNode() {}
func (p *HostAlloc) String() string {
	return "alloc " + p.Elem.String() + "[" + printExps(p.Dims) + "]"
}

// HostDeferred produces its program on demand. Force must be memoized
// by the producer.
type HostDeferred struct {
	Force func() (HostProg, error)
}

func (p *HostDeferred) hostNode()      {}
func (p *HostDeferred) String() string { return "<deferred>" }

// Kernel programs

type KernRet struct {
	V Value
}

func (p *KernRet) kernNode()      {}
func (p *KernRet) String() string { return "return " + p.V.String() }

type KernSeq struct {
	First KernProg
	Then  KernProg
}

func (p *KernSeq) kernNode() {}
func (p *KernSeq) String() string {
	return p.First.String() + "; " + p.Then.String()
}

// KernPar composes two programs that may run in either order or
// interleaved. Lowering is free to sequence them.
type KernPar struct {
	First  KernProg
	Second KernProg
}

func (p *KernPar) kernNode() {}
func (p *KernPar) String() string {
	return p.First.String() + " || " + p.Second.String()
}

type KernLet struct {
	Name string
	T    types.Type
	X    Exp
	Body KernProg
}

func (p *KernLet) kernNode() {}
func (p *KernLet) String() string {
	return "let " + p.Name + " = " + p.X.String() + "; " + p.Body.String()
}

type KernBind struct {
	Name string
	T    types.Type
	P    KernProg
	Body KernProg
}

func (p *KernBind) kernNode() {}
func (p *KernBind) String() string {
	return p.Name + " <- {" + p.P.String() + "}; " + p.Body.String()
}

// KernFor is a sequential loop nest: Vars[k] ranges over
// [0, Bounds[k]). Vars and Bounds have equal length.
type KernFor struct {
	Vars   []string
	Bounds []Exp
	Body   KernProg
}

func (p *KernFor) kernNode() {}
func (p *KernFor) String() string {
	return "for " + loopHead(p.Vars, p.Bounds) + " {" + p.Body.String() + "}"
}

// KernParFor is a loop nest whose iterations are independent and may
// run in parallel.
type KernParFor struct {
	Vars   []string
	Bounds []Exp
	Body   KernProg
}

func (p *KernParFor) kernNode() {}
func (p *KernParFor) String() string {
	return "parfor " + loopHead(p.Vars, p.Bounds) + " {" + p.Body.String() + "}"
}

func loopHead(vars []string, bounds []Exp) string {
	var out strings.Builder
	for i, v := range vars {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(v)
		out.WriteString(" < ")
		out.WriteString(bounds[i].String())
	}
	return out.String()
}

type KernIf struct {
	Cond Exp
	Then KernProg
	Else KernProg
}

func (p *KernIf) kernNode() {}
func (p *KernIf) String() string {
	var out strings.Builder
	out.WriteString("if ")
	out.WriteString(p.Cond.String())
	out.WriteString(" {")
	out.WriteString(p.Then.String())
	out.WriteString("} else {")
	out.WriteString(p.Else.String())
	out.WriteString("}")
	return out.String()
}

// KernWrite stores Val at linear index Ix of array Arr.
type KernWrite struct {
	Arr Exp
	Ix  Exp
	Val Exp
}

func (p *KernWrite) kernNode() {}
func (p *KernWrite) String() string {
	return p.Arr.String() + "[" + p.Ix.String() + "] := " + p.Val.String()
}

// KernSync is a barrier across the parallel iterations of the
// enclosing parallel loop.
type KernSync struct{}

func (p *KernSync) kernNode()      {}
func (p *KernSync) String() string { return "sync" }
