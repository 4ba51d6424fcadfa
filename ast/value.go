package ast

import (
	"strings"

	"github.com/runnerrunnerrunner/nikola/types"
)

// Values

type ScalarVal struct {
	X Exp
}

func (v *ScalarVal) valueNode()     {}
func (v *ScalarVal) String() string { return v.X.String() }

type UnitVal struct{}

func (v *UnitVal) valueNode()     {}
func (v *UnitVal) String() string { return "()" }

// ArrayVal is a manifest array: an element type, a pointer expression
// (a variable or a tuple of pointers for tuple elements) and one extent
// expression per dimension. len(Dims) is the rank and is at least 1.
type ArrayVal struct {
	Elem types.Scalar
	Ptr  Exp
	Dims []Exp
}

func (v *ArrayVal) valueNode() {}
func (v *ArrayVal) String() string {
	var out strings.Builder
	out.WriteString(v.Elem.String())
	out.WriteString("@")
	out.WriteString(v.Ptr.String())
	out.WriteString("[")
	out.WriteString(printExps(v.Dims))
	out.WriteString("]")
	return out.String()
}

// ProgVal wraps a host program as a value. It only appears at the
// reifier boundary, where a host function body evaluates to an action.
type ProgVal struct {
	P HostProg
}

func (v *ProgVal) valueNode()     {}
func (v *ProgVal) String() string { return "{" + v.P.String() + "}" }
