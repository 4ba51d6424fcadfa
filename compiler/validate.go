package compiler

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/exp/maps"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/types"
)

// Validate checks a host procedure before lowering: parameter names
// are distinct, parameter and result types can cross the procedure
// boundary, the body is closed over the parameters, and it infers a
// type. All problems are reported together.
func Validate(p *ast.HostProc) error {
	var errs error
	seen := make(map[string]bool, len(p.Params))
	for i, f := range p.Params {
		if f.Name == "" {
			errs = multierr.Append(errs, errors.Errorf("parameter %d has no name", i))
			continue
		}
		if seen[f.Name] {
			errs = multierr.Append(errs, errors.Errorf("duplicate parameter %s", f.Name))
		}
		seen[f.Name] = true
		errs = multierr.Append(errs, checkParamType(f))
	}

	fv, err := ast.FreeVarsHost(p.Body)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else {
		for _, f := range p.Params {
			delete(fv, f.Name)
		}
		if len(fv) > 0 {
			names := maps.Keys(fv)
			sort.Strings(names)
			errs = multierr.Append(errs, errors.Errorf("procedure is not closed, free variables: %v", names))
		}
	}

	ft, err := ast.ProcType(p)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if _, err := typeSlots("out", ft.Ret); err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "result"))
	}
	return errs
}

func checkParamType(f ast.Field) error {
	switch t := f.T.(type) {
	case nil:
		return errors.Errorf("parameter %s has no type", f.Name)
	case types.Array:
		if t.Rank < 1 {
			return errors.Errorf("array parameter %s has rank %d", f.Name, t.Rank)
		}
		for _, leaf := range types.Fields(t.Elem) {
			if leaf.Kind() == types.UnitKind {
				return errors.Errorf("array parameter %s has Unit fields", f.Name)
			}
		}
		return nil
	default:
		if _, ok := types.AsScalar(f.T); !ok {
			return errors.Errorf("parameter %s has type %s, want a scalar or array", f.Name, f.T)
		}
		return nil
	}
}
