package main

import (
	"fmt"
	"os"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/compiler"
	"github.com/runnerrunnerrunner/nikola/lang"
	"github.com/runnerrunnerrunner/nikola/reify"
	"github.com/runnerrunnerrunner/nikola/types"
)

// saxpy computes a*x + y over two vectors with a scalar coefficient.
// Unlike the lang-built demos it is spelled with raw nodes, covering
// the direct route into the reifier.
func saxpy() *reify.Fun {
	vec := types.Array{Rank: 1, Elem: types.F32}
	return reify.New("saxpy", []types.Type{types.F32, vec, vec}, func(args []ast.Value) (ast.Value, error) {
		a, ok := args[0].(*ast.ScalarVal)
		if !ok {
			return nil, fmt.Errorf("saxpy: coefficient is not a scalar value")
		}
		xs, ok := args[1].(*ast.ArrayVal)
		if !ok {
			return nil, fmt.Errorf("saxpy: first vector is not an array value")
		}
		ys, ok := args[2].(*ast.ArrayVal)
		if !ok {
			return nil, fmt.Errorf("saxpy: second vector is not an array value")
		}

		kern := &ast.KernelProc{
			Params: []ast.Field{
				{Name: "a", T: types.F32},
				{Name: "xs", T: vec},
				{Name: "ys", T: vec},
				{Name: "zs", T: vec},
			},
			Body: &ast.KernSeq{
				First: &ast.KernParFor{
					Vars:   []string{"i"},
					Bounds: []ast.Exp{lang.Dim(lang.Var("xs"), 0)},
					Body: &ast.KernWrite{
						Arr: lang.Var("zs"),
						Ix:  lang.Var("i"),
						Val: lang.Add(
							lang.Mul(lang.Var("a"), lang.Idx(lang.Var("xs"), lang.Var("i"))),
							lang.Idx(lang.Var("ys"), lang.Var("i"))),
					},
				},
				Then: &ast.KernRet{V: &ast.ArrayVal{
					Elem: types.F32,
					Ptr:  lang.Var("zs"),
					Dims: []ast.Exp{lang.Dim(lang.Var("zs"), 0)},
				}},
			},
		}

		return &ast.ProgVal{P: &ast.HostBind{
			Name: "t",
			P:    &ast.HostAlloc{Elem: types.F32, Dims: xs.Dims},
			Body: &ast.HostBind{
				Name: "r",
				P: &ast.HostCall{Proc: kern, Args: []ast.Value{
					a, xs, ys,
					&ast.ArrayVal{Elem: types.F32, Ptr: lang.Var("t"), Dims: []ast.Exp{lang.Dim(lang.Var("t"), 0)}},
				}},
				Body: &ast.HostRet{V: &ast.ArrayVal{
					Elem: types.F32,
					Ptr:  lang.Var("r"),
					Dims: []ast.Exp{lang.Dim(lang.Var("r"), 0)},
				}},
			},
		}}, nil
	})
}

// demos builds the built-in function set: a map, a raw kernel and a
// tuple-producing zip.
func demos() []*reify.Fun {
	inc := lang.Map("inc", types.F32, func(e ast.Exp) ast.Exp {
		return lang.Add(e, lang.F32(1))
	})
	polar := lang.ZipWith("polar", types.F32, func(x, y ast.Exp) ast.Exp {
		return lang.Tuple(
			lang.Sqrt(lang.Add(lang.Mul(x, x), lang.Mul(y, y))),
			lang.Atan(lang.Div(y, x)),
		)
	})
	return []*reify.Fun{inc, saxpy(), polar}
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		printVersion()
		return
	}

	cacheDir := defaultCache()
	fmt.Printf("Using NIKOLACACHE: %s\n", cacheDir)
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fmt.Printf("Error creating NIKOLACACHE directory: %v\n", err)
		os.Exit(1)
	}

	shared := reify.NewCache()
	title := cases.Title(language.English)
	dialects := []compiler.Dialect{compiler.Plain, compiler.OpenMP, compiler.CUDA}

	failed := false
	for _, f := range demos() {
		proc, err := shared.Reify(f)
		if err != nil {
			fmt.Printf("⚠️ Error reifying %s: %v\n", f.Name(), err)
			failed = true
			continue
		}
		for _, d := range dialects {
			cfg := compiler.Config{Dialect: d, Name: title.String(f.Name())}
			unit, err := compiler.Compile(proc, cfg)
			if err != nil {
				fmt.Printf("⚠️ Error compiling %s for %s: %v\n", f.Name(), d, err)
				failed = true
				continue
			}
			path, err := writeUnit(cacheDir, d, f.Name(), unit.String())
			if err != nil {
				fmt.Printf("⚠️ Error writing %s for %s: %v\n", f.Name(), d, err)
				failed = true
				continue
			}
			fmt.Printf("✅ Successfully compiled %s [%s]: %s\n", f.Name(), d, path)
		}
	}
	if failed {
		os.Exit(1)
	}
}
