package compiler

type ScopeKind int

const (
	FuncScope ScopeKind = iota
	BlockScope
)

// Scope is one level of a lexical scope stack. Compiled procedures,
// kernels and helper functions are closed, so name lookup never
// crosses a FuncScope boundary.
type Scope[T any] struct {
	Elems map[string]T
	Kind  ScopeKind
}

func NewScope[T any](k ScopeKind) Scope[T] {
	return Scope[T]{
		Elems: make(map[string]T),
		Kind:  k,
	}
}

func PushScope[T any](scopes *[]Scope[T], k ScopeKind) {
	*scopes = append(*scopes, NewScope[T](k))
}

func PopScope[T any](scopes *[]Scope[T]) {
	if len(*scopes) == 0 {
		panic("cannot pop empty scope stack")
	}
	*scopes = (*scopes)[:len(*scopes)-1]
}

// Put does not need a pointer, as it modifies the map within a scope,
// not the slice itself.
func Put[T any](scopes []Scope[T], name string, elem T) {
	scopes[len(scopes)-1].Elems[name] = elem
}

// Get searches from the innermost scope outward, stopping after the
// nearest enclosing function scope.
func Get[T any](scopes []Scope[T], name string) (T, bool) {
	for i := len(scopes) - 1; i >= 0; i-- {
		if e, ok := scopes[i].Elems[name]; ok {
			return e, true
		}
		if scopes[i].Kind == FuncScope {
			break
		}
	}

	var zero T
	return zero, false
}
