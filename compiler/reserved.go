package compiler

import "strings"

// Identifiers the emitter must never use for program variables: C
// keywords, the names our prologue and epilogue claim, and the CUDA
// builtins visible inside kernels.
var reservedCNames = []string{
	"auto", "break", "case", "char", "const", "continue", "default",
	"do", "double", "else", "enum", "extern", "float", "for", "goto",
	"if", "inline", "int", "long", "register", "restrict", "return",
	"short", "signed", "sizeof", "static", "struct", "switch",
	"typedef", "union", "unsigned", "void", "volatile", "while",
	"allocs", "marks", "nallocs", "status", "done", "mark", "gc",
	"threadIdx", "blockIdx", "blockDim", "gridDim", "gridDims", "blockDims",
	"abs", "labs", "llabs", "malloc", "free", "NULL",
}

var reservedCSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(reservedCNames))
	for _, n := range reservedCNames {
		m[n] = struct{}{}
	}
	return m
}()

// IsReservedCName reports whether name may not appear as an emitted
// variable or parameter.
func IsReservedCName(name string) bool {
	_, ok := reservedCSet[name]
	return ok
}

// cname maps a program variable name to a valid, unreserved C
// identifier. The mapping is pure, so every occurrence of a variable
// mangles the same way.
func cname(name string) string {
	var sb strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	if out == "" {
		out = "_"
	}
	if IsReservedCName(out) {
		out += "_"
	}
	return out
}
