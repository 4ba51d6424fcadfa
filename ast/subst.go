package ast

// SubstExp replaces free occurrences of the mapped variables in e.
// Binders shadow: a let or lambda that rebinds a mapped name stops the
// substitution in its body. The input is never mutated.
func SubstExp(e Exp, sub map[string]Exp) Exp {
	if len(sub) == 0 {
		return e
	}
	switch e := e.(type) {
	case *Var:
		if r, ok := sub[e.Name]; ok {
			return r
		}
		return e
	case *IntLit, *UintLit, *FloatLit, *BoolLit, *UnitLit:
		return e
	case *TupleExp:
		elems := make([]Exp, len(e.Elems))
		for i, x := range e.Elems {
			elems[i] = SubstExp(x, sub)
		}
		return &TupleExp{Elems: elems}
	case *Proj:
		return &Proj{X: SubstExp(e.X, sub), Index: e.Index}
	case *ProjArr:
		return &ProjArr{X: SubstExp(e.X, sub), Index: e.Index}
	case *DimOf:
		return &DimOf{X: SubstExp(e.X, sub), Index: e.Index}
	case *LetExp:
		return &LetExp{
			Name: e.Name,
			T:    e.T,
			X:    SubstExp(e.X, sub),
			Body: SubstExp(e.Body, without(sub, e.Name)),
		}
	case *Lam:
		inner := sub
		for _, f := range e.Params {
			inner = without(inner, f.Name)
		}
		return &Lam{Params: e.Params, Body: SubstExp(e.Body, inner)}
	case *App:
		args := make([]Exp, len(e.Args))
		for i, a := range e.Args {
			args[i] = SubstExp(a, sub)
		}
		return &App{F: SubstExp(e.F, sub), Args: args}
	case *Unary:
		return &Unary{Op: e.Op, X: SubstExp(e.X, sub)}
	case *Binary:
		return &Binary{Op: e.Op, X: SubstExp(e.X, sub), Y: SubstExp(e.Y, sub)}
	case *CondExp:
		return &CondExp{
			Cond: SubstExp(e.Cond, sub),
			Then: SubstExp(e.Then, sub),
			Else: SubstExp(e.Else, sub),
		}
	case *SwitchExp:
		cases := make([]CaseAlt, len(e.Cases))
		for i, c := range e.Cases {
			cases[i] = CaseAlt{Lit: c.Lit, Body: SubstExp(c.Body, sub)}
		}
		var def Exp
		if e.Default != nil {
			def = SubstExp(e.Default, sub)
		}
		return &SwitchExp{Tag: SubstExp(e.Tag, sub), Cases: cases, Default: def}
	case *Idx:
		return &Idx{Arr: SubstExp(e.Arr, sub), I: SubstExp(e.I, sub)}
	case *DeferredExp:
		force := e.Force
		return &DeferredExp{Force: func() (Exp, error) {
			x, err := force()
			if err != nil {
				return nil, err
			}
			return SubstExp(x, sub), nil
		}}
	default:
		return e
	}
}

func without(sub map[string]Exp, name string) map[string]Exp {
	if _, ok := sub[name]; !ok {
		return sub
	}
	out := make(map[string]Exp, len(sub))
	for k, v := range sub {
		if k != name {
			out[k] = v
		}
	}
	return out
}

// VarSet is the free-variable accumulator.
type VarSet map[string]struct{}

func (s VarSet) add(name string) { s[name] = struct{}{} }

func (s VarSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

type bound map[string]struct{}

func (b bound) with(names ...string) bound {
	out := make(bound, len(b)+len(names))
	for k := range b {
		out[k] = struct{}{}
	}
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// FreeVarsExp reports the variables occurring free in e. Deferred
// nodes are forced; a failing thunk propagates its error.
func FreeVarsExp(e Exp) (VarSet, error) {
	out := make(VarSet)
	if err := freeExp(e, make(bound), out); err != nil {
		return nil, err
	}
	return out, nil
}

// FreeVarsHost reports the variables occurring free in p.
func FreeVarsHost(p HostProg) (VarSet, error) {
	out := make(VarSet)
	if err := freeHost(p, make(bound), out); err != nil {
		return nil, err
	}
	return out, nil
}

// FreeVarsKern reports the variables occurring free in p.
func FreeVarsKern(p KernProg) (VarSet, error) {
	out := make(VarSet)
	if err := freeKern(p, make(bound), out); err != nil {
		return nil, err
	}
	return out, nil
}

func freeExp(e Exp, b bound, out VarSet) error {
	switch e := e.(type) {
	case *Var:
		if _, ok := b[e.Name]; !ok {
			out.add(e.Name)
		}
	case *IntLit, *UintLit, *FloatLit, *BoolLit, *UnitLit:
	case *TupleExp:
		for _, x := range e.Elems {
			if err := freeExp(x, b, out); err != nil {
				return err
			}
		}
	case *Proj:
		return freeExp(e.X, b, out)
	case *ProjArr:
		return freeExp(e.X, b, out)
	case *DimOf:
		return freeExp(e.X, b, out)
	case *LetExp:
		if err := freeExp(e.X, b, out); err != nil {
			return err
		}
		return freeExp(e.Body, b.with(e.Name), out)
	case *Lam:
		names := make([]string, len(e.Params))
		for i, f := range e.Params {
			names[i] = f.Name
		}
		return freeExp(e.Body, b.with(names...), out)
	case *App:
		if err := freeExp(e.F, b, out); err != nil {
			return err
		}
		for _, a := range e.Args {
			if err := freeExp(a, b, out); err != nil {
				return err
			}
		}
	case *Unary:
		return freeExp(e.X, b, out)
	case *Binary:
		if err := freeExp(e.X, b, out); err != nil {
			return err
		}
		return freeExp(e.Y, b, out)
	case *CondExp:
		if err := freeExp(e.Cond, b, out); err != nil {
			return err
		}
		if err := freeExp(e.Then, b, out); err != nil {
			return err
		}
		return freeExp(e.Else, b, out)
	case *SwitchExp:
		if err := freeExp(e.Tag, b, out); err != nil {
			return err
		}
		for _, c := range e.Cases {
			if err := freeExp(c.Body, b, out); err != nil {
				return err
			}
		}
		if e.Default != nil {
			return freeExp(e.Default, b, out)
		}
	case *Idx:
		if err := freeExp(e.Arr, b, out); err != nil {
			return err
		}
		return freeExp(e.I, b, out)
	case *DeferredExp:
		x, err := e.Force()
		if err != nil {
			return err
		}
		return freeExp(x, b, out)
	}
	return nil
}

func freeValue(v Value, b bound, out VarSet) error {
	switch v := v.(type) {
	case *ScalarVal:
		return freeExp(v.X, b, out)
	case *UnitVal:
	case *ArrayVal:
		if err := freeExp(v.Ptr, b, out); err != nil {
			return err
		}
		for _, d := range v.Dims {
			if err := freeExp(d, b, out); err != nil {
				return err
			}
		}
	case *ProgVal:
		return freeHost(v.P, b, out)
	}
	return nil
}

func freeHost(p HostProg, b bound, out VarSet) error {
	switch p := p.(type) {
	case *HostRet:
		return freeValue(p.V, b, out)
	case *HostSeq:
		if err := freeHost(p.First, b, out); err != nil {
			return err
		}
		return freeHost(p.Then, b, out)
	case *HostLet:
		if err := freeExp(p.X, b, out); err != nil {
			return err
		}
		return freeHost(p.Body, b.with(p.Name), out)
	case *HostBind:
		if err := freeHost(p.P, b, out); err != nil {
			return err
		}
		return freeHost(p.Body, b.with(p.Name), out)
	case *HostCall:
		for _, a := range p.Args {
			if err := freeValue(a, b, out); err != nil {
				return err
			}
		}
	case *HostIf:
		if err := freeExp(p.Cond, b, out); err != nil {
			return err
		}
		if err := freeHost(p.Then, b, out); err != nil {
			return err
		}
		return freeHost(p.Else, b, out)
	case *HostAlloc:
		for _, d := range p.Dims {
			if err := freeExp(d, b, out); err != nil {
				return err
			}
		}
	case *HostDeferred:
		forced, err := p.Force()
		if err != nil {
			return err
		}
		return freeHost(forced, b, out)
	}
	return nil
}

func freeKern(p KernProg, b bound, out VarSet) error {
	switch p := p.(type) {
	case *KernRet:
		return freeValue(p.V, b, out)
	case *KernSeq:
		if err := freeKern(p.First, b, out); err != nil {
			return err
		}
		return freeKern(p.Then, b, out)
	case *KernPar:
		if err := freeKern(p.First, b, out); err != nil {
			return err
		}
		return freeKern(p.Second, b, out)
	case *KernLet:
		if err := freeExp(p.X, b, out); err != nil {
			return err
		}
		return freeKern(p.Body, b.with(p.Name), out)
	case *KernBind:
		if err := freeKern(p.P, b, out); err != nil {
			return err
		}
		return freeKern(p.Body, b.with(p.Name), out)
	case *KernFor:
		return freeLoop(p.Vars, p.Bounds, p.Body, b, out)
	case *KernParFor:
		return freeLoop(p.Vars, p.Bounds, p.Body, b, out)
	case *KernIf:
		if err := freeExp(p.Cond, b, out); err != nil {
			return err
		}
		if err := freeKern(p.Then, b, out); err != nil {
			return err
		}
		return freeKern(p.Else, b, out)
	case *KernWrite:
		if err := freeExp(p.Arr, b, out); err != nil {
			return err
		}
		if err := freeExp(p.Ix, b, out); err != nil {
			return err
		}
		return freeExp(p.Val, b, out)
	case *KernSync:
	}
	return nil
}

func freeLoop(vars []string, bounds []Exp, body KernProg, b bound, out VarSet) error {
	for _, bd := range bounds {
		if err := freeExp(bd, b, out); err != nil {
			return err
		}
	}
	return freeKern(body, b.with(vars...), out)
}
