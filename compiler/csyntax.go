package compiler

import (
	"fmt"
	"strings"
)

// Unit is an ordered C translation unit. Definitions appear in
// dependency order, so the emitted text needs no forward declarations.
type Unit struct {
	Includes []string
	Defs     []*cdef
}

func (u *Unit) String() string {
	var w cwriter
	for _, inc := range u.Includes {
		w.linef("#include <%s>", inc)
	}
	for _, d := range u.Defs {
		w.blank()
		d.emit(&w)
	}
	return w.String()
}

// cdef is one top-level function definition. qual carries linkage and
// target qualifiers ("static", "extern \"C\" __global__", ...).
type cdef struct {
	qual   string
	ret    string
	name   string
	params []slot
	body   *cblock
}

func (d *cdef) emit(w *cwriter) {
	var head strings.Builder
	if d.qual != "" {
		head.WriteString(d.qual)
		head.WriteString(" ")
	}
	head.WriteString(d.ret)
	head.WriteString(" ")
	head.WriteString(d.name)
	head.WriteString("(")
	if len(d.params) == 0 {
		head.WriteString("void")
	}
	for i, p := range d.params {
		if i > 0 {
			head.WriteString(", ")
		}
		head.WriteString(p.ctype)
		head.WriteString(" ")
		head.WriteString(p.name)
	}
	head.WriteString(")")
	w.linef("%s {", head.String())
	d.body.emitInto(w)
	w.line("}")
}

type cstmt interface {
	emit(w *cwriter)
}

type cblock struct {
	stmts []cstmt
}

func (b *cblock) add(s cstmt) {
	b.stmts = append(b.stmts, s)
}

func (b *cblock) emitInto(w *cwriter) {
	w.indent++
	for _, s := range b.stmts {
		s.emit(w)
	}
	w.indent--
}

type declStmt struct {
	ctype string
	name  string
	init  string
}

func (s declStmt) emit(w *cwriter) {
	if s.init == "" {
		w.linef("%s %s;", s.ctype, s.name)
		return
	}
	w.linef("%s %s = %s;", s.ctype, s.name, s.init)
}

type assignStmt struct {
	lhs string
	rhs string
}

func (s assignStmt) emit(w *cwriter) {
	w.linef("%s = %s;", s.lhs, s.rhs)
}

type exprStmt struct {
	x string
}

func (s exprStmt) emit(w *cwriter) {
	w.linef("%s;", s.x)
}

type ifStmt struct {
	cond string
	then *cblock
	els  *cblock
}

func (s ifStmt) emit(w *cwriter) {
	w.linef("if (%s) {", s.cond)
	s.then.emitInto(w)
	if s.els != nil {
		w.line("} else {")
		s.els.emitInto(w)
	}
	w.line("}")
}

type caseArm struct {
	lit  string
	body *cblock
}

// switchStmt emits a C switch. Every arm ends in break; a missing def
// emits no default label at all, so an unmatched tag falls through
// with the result slots untouched.
type switchStmt struct {
	tag   string
	cases []caseArm
	def   *cblock
}

func (s switchStmt) emit(w *cwriter) {
	w.linef("switch (%s) {", s.tag)
	for _, c := range s.cases {
		w.linef("case %s:", c.lit)
		c.body.emitInto(w)
		w.indent++
		w.line("break;")
		w.indent--
	}
	if s.def != nil {
		w.line("default:")
		s.def.emitInto(w)
		w.indent++
		w.line("break;")
		w.indent--
	}
	w.line("}")
}

// forStmt emits a counted or strided loop; pragma, when set, goes on
// the line before the loop head.
type forStmt struct {
	pragma string
	init   string
	cond   string
	post   string
	body   *cblock
}

func (s forStmt) emit(w *cwriter) {
	if s.pragma != "" {
		w.line(s.pragma)
	}
	w.linef("for (%s; %s; %s) {", s.init, s.cond, s.post)
	s.body.emitInto(w)
	w.line("}")
}

// blockStmt opens a plain scope, so fixed-name locals can recur.
type blockStmt struct {
	body *cblock
}

func (s blockStmt) emit(w *cwriter) {
	w.line("{")
	s.body.emitInto(w)
	w.line("}")
}

// labelStmt emits flush left.
type labelStmt struct {
	name string
}

func (s labelStmt) emit(w *cwriter) {
	w.flushLeft(s.name + ":")
}

type gotoStmt struct {
	label string
}

func (s gotoStmt) emit(w *cwriter) {
	w.linef("goto %s;", s.label)
}

type retStmt struct {
	x string
}

func (s retStmt) emit(w *cwriter) {
	if s.x == "" {
		w.line("return;")
		return
	}
	w.linef("return %s;", s.x)
}

type rawStmt struct {
	text string
}

func (s rawStmt) emit(w *cwriter) {
	w.line(s.text)
}

type cwriter struct {
	sb     strings.Builder
	indent int
}

func (w *cwriter) line(s string) {
	for i := 0; i < w.indent; i++ {
		w.sb.WriteString("    ")
	}
	w.sb.WriteString(s)
	w.sb.WriteString("\n")
}

func (w *cwriter) linef(format string, args ...any) {
	w.line(fmt.Sprintf(format, args...))
}

func (w *cwriter) flushLeft(s string) {
	w.sb.WriteString(s)
	w.sb.WriteString("\n")
}

func (w *cwriter) blank() {
	w.sb.WriteString("\n")
}

func (w *cwriter) String() string {
	return w.sb.String()
}
