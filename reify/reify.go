// Package reify turns host function values into closed procedure ASTs
// by symbolic execution: the function is called once with symbolic
// arguments standing for its formals, and the value it computes is the
// procedure body.
package reify

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/types"
)

// Token identifies a Fun for the lifetime of the process. Tokens are
// never reused, so a cache keyed by Token is keyed by function
// identity.
type Token uint64

var tokens atomic.Uint64

// Fun is a host function value: an argument type list and a body that
// computes the result from symbolic argument values. The body runs at
// most once per reification and must be deterministic.
type Fun struct {
	name string
	args []types.Type
	call func([]ast.Value) (ast.Value, error)
	tok  Token
}

// New wraps a host function for reification. Argument types must be
// scalars or arrays.
func New(name string, args []types.Type, call func([]ast.Value) (ast.Value, error)) *Fun {
	return &Fun{
		name: name,
		args: args,
		call: call,
		tok:  Token(tokens.Add(1)),
	}
}

func (f *Fun) Name() string       { return f.name }
func (f *Fun) Token() Token       { return f.tok }
func (f *Fun) Args() []types.Type { return f.args }

// Reify executes f symbolically and returns the closed host procedure
// it denotes. Each formal becomes a fresh parameter; array formals
// additionally synthesize one extent expression per dimension, read
// off the parameter itself.
func Reify(f *Fun) (*ast.HostProc, error) {
	params := make([]ast.Field, 0, len(f.args))
	args := make([]ast.Value, 0, len(f.args))
	for i, t := range f.args {
		name := fmt.Sprintf("v%d", i)
		switch t := t.(type) {
		case types.Scalar:
			params = append(params, ast.Field{Name: name, T: t})
			args = append(args, &ast.ScalarVal{X: &ast.Var{Name: name}})
		case types.Array:
			if t.Rank < 1 {
				return nil, errors.Errorf("reify %s: array argument %d has rank %d", f.name, i, t.Rank)
			}
			params = append(params, ast.Field{Name: name, T: t})
			dims := make([]ast.Exp, t.Rank)
			for d := 0; d < t.Rank; d++ {
				dims[d] = &ast.DimOf{X: &ast.Var{Name: name}, Index: d}
			}
			args = append(args, &ast.ArrayVal{Elem: t.Elem, Ptr: &ast.Var{Name: name}, Dims: dims})
		default:
			return nil, errors.Errorf("reify %s: argument %d has type %s, want a scalar or array", f.name, i, t)
		}
	}

	res, err := f.call(args)
	if err != nil {
		return nil, errors.Wrapf(err, "reify %s", f.name)
	}
	body, err := bodyOf(res)
	if err != nil {
		return nil, errors.Wrapf(err, "reify %s", f.name)
	}

	proc := &ast.HostProc{Params: params, Body: body}
	if err := checkClosed(proc); err != nil {
		return nil, errors.Wrapf(err, "reify %s", f.name)
	}
	return proc, nil
}

// bodyOf maps the computed result value to a procedure body. A host
// action is the body itself; pure scalars, unit and manifest arrays
// return directly.
func bodyOf(res ast.Value) (ast.HostProg, error) {
	switch res := res.(type) {
	case *ast.ProgVal:
		return res.P, nil
	case *ast.ScalarVal:
		return &ast.HostRet{V: res}, nil
	case *ast.UnitVal:
		return &ast.HostRet{V: res}, nil
	case *ast.ArrayVal:
		if err := manifest(res); err != nil {
			return nil, err
		}
		return &ast.HostRet{V: res}, nil
	case nil:
		return nil, errors.New("function returned no value")
	default:
		return nil, errors.Errorf("cannot reify a result of shape %T", res)
	}
}

// manifest checks that an array value names concrete backing storage:
// an element type, a pointer expression and at least one extent.
func manifest(v *ast.ArrayVal) error {
	if v.Elem == nil {
		return errors.Errorf("array value %s has no element type", v)
	}
	if v.Ptr == nil {
		return errors.Errorf("array value %s has no backing pointer", v)
	}
	if len(v.Dims) < 1 {
		return errors.Errorf("array value %s has rank 0", v)
	}
	return nil
}

// checkClosed verifies that the body references nothing but the
// formals. Reified procedures must be closed because they compile in
// an empty environment.
func checkClosed(p *ast.HostProc) error {
	fv, err := ast.FreeVarsHost(p.Body)
	if err != nil {
		return err
	}
	for _, f := range p.Params {
		delete(fv, f.Name)
	}
	if len(fv) == 0 {
		return nil
	}
	names := maps.Keys(fv)
	sort.Strings(names)
	return errors.Errorf("procedure is not closed, free variables: %v", names)
}
