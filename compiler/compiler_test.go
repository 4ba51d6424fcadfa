package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runnerrunnerrunner/nikola/ast"
	"github.com/runnerrunnerrunner/nikola/types"
)

func vec(rank int) types.Array { return types.Array{Rank: rank, Elem: types.F32} }

func evar(name string) *ast.Var { return &ast.Var{Name: name} }

func dimOf(name string, i int) *ast.DimOf { return &ast.DimOf{X: evar(name), Index: i} }

func arrVal(name string, rank int) *ast.ArrayVal {
	dims := make([]ast.Exp, rank)
	for i := range dims {
		dims[i] = dimOf(name, i)
	}
	return &ast.ArrayVal{Elem: types.F32, Ptr: evar(name), Dims: dims}
}

// incProc builds the canonical vector increment: allocate a buffer the
// size of the input, have a kernel fill it, return it.
func incProc() *ast.HostProc {
	kern := &ast.KernelProc{
		Params: []ast.Field{
			{Name: "xs", T: vec(1)},
			{Name: "ys", T: vec(1)},
		},
		Body: &ast.KernParFor{
			Vars:   []string{"i"},
			Bounds: []ast.Exp{dimOf("xs", 0)},
			Body: &ast.KernWrite{
				Arr: evar("ys"),
				Ix:  evar("i"),
				Val: &ast.Binary{
					Op: ast.OpAdd,
					X:  &ast.Idx{Arr: evar("xs"), I: evar("i")},
					Y:  &ast.FloatLit{S: types.F32, Val: 1},
				},
			},
		},
	}
	return &ast.HostProc{
		Params: []ast.Field{{Name: "v0", T: vec(1)}},
		Body: &ast.HostBind{
			Name: "t",
			P:    &ast.HostAlloc{Elem: types.F32, Dims: []ast.Exp{dimOf("v0", 0)}},
			Body: &ast.HostSeq{
				First: &ast.HostCall{Proc: kern, Args: []ast.Value{arrVal("v0", 1), arrVal("t", 1)}},
				Then:  &ast.HostRet{V: arrVal("t", 1)},
			},
		},
	}
}

func TestCompilePlainInc(t *testing.T) {
	unit, err := Compile(incProc(), Config{Dialect: Plain, Name: "inc"})
	require.NoError(t, err)

	want := `#include <stdint.h>
#include <stdlib.h>
#include <math.h>

static void mark(void** allocs, int* marks, int nallocs, void* ptr) {
    for (int i = 0; i < nallocs; ++i) {
        if (allocs[i] == ptr) {
            marks[i] = 1;
        }
    }
}

static void gc(void** allocs, int* marks, int nallocs) {
    for (int i = 0; i < nallocs; ++i) {
        if (!marks[i]) {
            free(allocs[i]);
        }
    }
}

static void kern0(float* xs, int xs_dim0, float* ys, int ys_dim0) {
    for (int i = 0; i < xs_dim0; ++i) {
        ys[i] = (xs[i] + 1.0f);
    }
    return;
}

int inc(float* v0, int v0_dim0, float** out0, int* out1) {
    int status = 0;
    void* allocs[1];
    int marks[1];
    int nallocs = 0;
    int t0 = v0_dim0;
    float* t1 = (float*)malloc(t0 * sizeof(float));
    if (t1 == NULL) {
        status = 1;
        goto done;
    }
    allocs[nallocs] = (void*)t1;
    marks[nallocs] = 0;
    ++nallocs;
    kern0(v0, v0_dim0, t1, t0);
    *out0 = t1;
    *out1 = t0;
    mark(allocs, marks, nallocs, (void*)t1);
    goto done;
done:
    gc(allocs, marks, nallocs);
    return status;
}
`
	require.Equal(t, want, unit.String())
}

func TestCompileCUDAInc(t *testing.T) {
	unit, err := Compile(incProc(), Config{Dialect: CUDA, Name: "inc"})
	require.NoError(t, err)

	want := `#include <stdint.h>
#include <stdlib.h>
#include <math.h>
#include <cuda_runtime.h>

static void mark(void** allocs, int* marks, int nallocs, void* ptr) {
    for (int i = 0; i < nallocs; ++i) {
        if (allocs[i] == ptr) {
            marks[i] = 1;
        }
    }
}

static void gc(void** allocs, int* marks, int nallocs) {
    for (int i = 0; i < nallocs; ++i) {
        if (!marks[i]) {
            cudaFree(allocs[i]);
        }
    }
}

extern "C" __global__ void kern0(float* xs, int xs_dim0, float* ys, int ys_dim0) {
    for (int i = blockIdx.x * blockDim.x + threadIdx.x; i < xs_dim0; i += blockDim.x * gridDim.x) {
        ys[i] = (xs[i] + 1.0f);
    }
    return;
}

extern "C" cudaError_t inc(float* v0, int v0_dim0, float** out0, int* out1) {
    cudaError_t status = cudaSuccess;
    void* allocs[1];
    int marks[1];
    int nallocs = 0;
    int t0;
    t0 = v0_dim0;
    float* t1;
    status = cudaMalloc((void**)&t1, t0 * sizeof(float));
    if (status != cudaSuccess) {
        goto done;
    }
    allocs[nallocs] = (void*)t1;
    marks[nallocs] = 0;
    ++nallocs;
    {
        dim3 gridDims(480);
        dim3 blockDims(128);
        kern0<<<gridDims, blockDims>>>(v0, v0_dim0, t1, t0);
    }
    status = cudaGetLastError();
    if (status != cudaSuccess) {
        goto done;
    }
    *out0 = t1;
    *out1 = t0;
    mark(allocs, marks, nallocs, (void*)t1);
    goto done;
done:
    gc(allocs, marks, nallocs);
    return status;
}
`
	require.Equal(t, want, unit.String())
}

func TestCompileScalarProc(t *testing.T) {
	proc := &ast.HostProc{
		Params: []ast.Field{{Name: "x", T: types.F32}},
		Body: &ast.HostRet{V: &ast.ScalarVal{
			X: &ast.Binary{Op: ast.OpMul, X: evar("x"), Y: evar("x")},
		}},
	}
	unit, err := Compile(proc, Config{Dialect: Plain, Name: "square"})
	require.NoError(t, err)

	want := `#include <stdint.h>
#include <stdlib.h>
#include <math.h>

int square(float x, float* out0) {
    int status = 0;
    *out0 = (x * x);
    goto done;
done:
    return status;
}
`
	require.Equal(t, want, unit.String())
}

func TestCompileDeterministic(t *testing.T) {
	a, err := Compile(incProc(), Config{Dialect: CUDA, Name: "inc"})
	require.NoError(t, err)
	b, err := Compile(incProc(), Config{Dialect: CUDA, Name: "inc"})
	require.NoError(t, err)
	require.Equal(t, a.String(), b.String())
}

func TestCompileDefaultName(t *testing.T) {
	proc := &ast.HostProc{
		Params: []ast.Field{{Name: "x", T: types.I32}},
		Body:   &ast.HostRet{V: &ast.ScalarVal{X: evar("x")}},
	}
	unit, err := Compile(proc, Config{Dialect: Plain})
	require.NoError(t, err)
	require.Contains(t, unit.String(), "int host(int32_t x, int32_t* out0)")
}

func TestCompileExtraIncludes(t *testing.T) {
	proc := &ast.HostProc{
		Params: []ast.Field{{Name: "x", T: types.I32}},
		Body:   &ast.HostRet{V: &ast.ScalarVal{X: evar("x")}},
	}
	unit, err := Compile(proc, Config{Dialect: Plain, Includes: []string{"string.h"}})
	require.NoError(t, err)
	out := unit.String()
	require.Contains(t, out, "#include <math.h>\n#include <string.h>")
}

func TestCompileCUDAScalarResult(t *testing.T) {
	kern := &ast.KernelProc{
		Params: []ast.Field{{Name: "xs", T: vec(1)}},
		Body: &ast.KernRet{V: &ast.ScalarVal{
			X: &ast.Idx{Arr: evar("xs"), I: &ast.IntLit{S: types.I32, Val: 0}},
		}},
	}
	proc := &ast.HostProc{
		Params: []ast.Field{{Name: "v0", T: vec(1)}},
		Body: &ast.HostBind{
			Name: "x",
			P:    &ast.HostCall{Proc: kern, Args: []ast.Value{arrVal("v0", 1)}},
			Body: &ast.HostRet{V: &ast.ScalarVal{X: evar("x")}},
		},
	}
	unit, err := Compile(proc, Config{Dialect: CUDA, Name: "head"})
	require.NoError(t, err)
	out := unit.String()

	// No parallel loop: serial launch with a device cell for the result.
	require.Contains(t, out, "extern \"C\" __global__ void kern0(float* xs, int xs_dim0, float* out0)")
	require.Contains(t, out, "*out0 = xs[0];")
	require.Contains(t, out, "status = cudaMalloc((void**)&t0, sizeof(float));")
	require.Contains(t, out, "kern0<<<1, 1>>>(v0, v0_dim0, t0);")
	require.Contains(t, out, "status = cudaMemcpy(&t1, t0, sizeof(float), cudaMemcpyDeviceToHost);")
	require.Contains(t, out, "cudaFree(t0);")
	require.NotContains(t, out, "gridDims")
}

func TestCompileCPUScalarResult(t *testing.T) {
	kern := &ast.KernelProc{
		Params: []ast.Field{{Name: "xs", T: vec(1)}},
		Body: &ast.KernRet{V: &ast.ScalarVal{
			X: &ast.Idx{Arr: evar("xs"), I: &ast.IntLit{S: types.I32, Val: 0}},
		}},
	}
	proc := &ast.HostProc{
		Params: []ast.Field{{Name: "v0", T: vec(1)}},
		Body: &ast.HostBind{
			Name: "x",
			P:    &ast.HostCall{Proc: kern, Args: []ast.Value{arrVal("v0", 1)}},
			Body: &ast.HostRet{V: &ast.ScalarVal{X: evar("x")}},
		},
	}
	unit, err := Compile(proc, Config{Dialect: Plain, Name: "head"})
	require.NoError(t, err)
	out := unit.String()
	require.Contains(t, out, "float t0;")
	require.Contains(t, out, "kern0(v0, v0_dim0, &t0);")
	require.Contains(t, out, "*out0 = t0;")
}

func TestCompileKernelMemoized(t *testing.T) {
	kern := &ast.KernelProc{
		Params: []ast.Field{
			{Name: "xs", T: vec(1)},
			{Name: "ys", T: vec(1)},
		},
		Body: &ast.KernParFor{
			Vars:   []string{"i"},
			Bounds: []ast.Exp{dimOf("xs", 0)},
			Body: &ast.KernWrite{
				Arr: evar("ys"),
				Ix:  evar("i"),
				Val: &ast.Idx{Arr: evar("xs"), I: evar("i")},
			},
		},
	}
	call := func() *ast.HostCall {
		return &ast.HostCall{Proc: kern, Args: []ast.Value{arrVal("v0", 1), arrVal("v1", 1)}}
	}
	proc := &ast.HostProc{
		Params: []ast.Field{
			{Name: "v0", T: vec(1)},
			{Name: "v1", T: vec(1)},
		},
		Body: &ast.HostSeq{
			First: call(),
			Then:  &ast.HostSeq{First: call(), Then: &ast.HostRet{V: &ast.UnitVal{}}},
		},
	}
	unit, err := Compile(proc, Config{Dialect: Plain, Name: "copytwice"})
	require.NoError(t, err)
	out := unit.String()
	require.Equal(t, 1, strings.Count(out, "static void kern0"))
	require.NotContains(t, out, "kern1")
	require.Equal(t, 2, strings.Count(out, "kern0(v0, v0_dim0, v1, v1_dim0);"))
}

func TestCompileUnitResultProc(t *testing.T) {
	proc := &ast.HostProc{
		Params: []ast.Field{{Name: "x", T: types.F32}},
		Body:   &ast.HostRet{V: &ast.UnitVal{}},
	}
	unit, err := Compile(proc, Config{Dialect: Plain, Name: "noop"})
	require.NoError(t, err)

	want := `#include <stdint.h>
#include <stdlib.h>
#include <math.h>

int noop(float x) {
    int status = 0;
    goto done;
done:
    return status;
}
`
	require.Equal(t, want, unit.String())
}

func TestDialectNames(t *testing.T) {
	require.Equal(t, "c", Plain.String())
	require.Equal(t, "cuda", CUDA.String())
	require.Equal(t, "openmp", OpenMP.String())
	require.Equal(t, ".c", Plain.FileExt())
	require.Equal(t, ".cu", CUDA.FileExt())
	require.Equal(t, ".c", OpenMP.FileExt())
}
