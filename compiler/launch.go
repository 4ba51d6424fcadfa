package compiler

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/runnerrunnerrunner/nikola/ast"
)

// launchGeometry fixes the grid for the number of consumed hardware
// axes. One axis favors occupancy on long vectors; two split rows and
// columns.
func launchGeometry(hw []hwAxis) (grid, block string, err error) {
	switch len(hw) {
	case 0:
		return "", "", nil
	case 1:
		return "480", "128", nil
	case 2:
		return "16, 16", "128, 8", nil
	default:
		exts := make([]string, len(hw))
		for i, ax := range hw {
			exts[i] = ax.bound
		}
		return "", "", errors.Errorf("kernel consumed %d hardware axes over extents %s; at most 2 have a launch geometry",
			len(hw), strings.Join(exts, ", "))
	}
}

// compileCall launches a kernel. CUDA marshals results through device
// cells; the CPU dialects call the definition with local result cells.
func (c *Compiler) compileCall(p *ast.HostCall) (CVal, error) {
	if c.fr.ctx != ctxHost {
		return nil, errors.Errorf("kernel launch outside a host procedure")
	}
	info, err := c.compileKernel(p.Proc)
	if err != nil {
		return nil, err
	}

	var args []string
	for _, a := range p.Args {
		v, err := c.compileValue(a)
		if err != nil {
			return nil, err
		}
		leaves, err := flattenCVal(v)
		if err != nil {
			return nil, err
		}
		args = append(args, leaves...)
	}
	if len(args) != len(info.params) {
		return nil, errors.Errorf("kernel %s takes %d slots, call passes %d", info.name, len(info.params), len(args))
	}

	if c.cfg.Dialect == CUDA {
		return c.cudaLaunch(info, args)
	}
	return c.cpuCall(info, args)
}

func (c *Compiler) cudaLaunch(info *kernInfo, args []string) (CVal, error) {
	grid, block, err := launchGeometry(info.hw)
	if err != nil {
		return nil, errors.Wrapf(err, "launch %s", info.name)
	}

	fail := func() *cblock {
		b := &cblock{}
		b.add(gotoStmt{label: "done"})
		return b
	}

	// Result cells live on the device for the kernel to fill.
	cells := make([]string, len(info.outs))
	for i, o := range info.outs {
		cell := c.fresh()
		cells[i] = cell
		c.emit(declStmt{ctype: o.ctype + "*", name: cell})
		c.emit(assignStmt{
			lhs: "status",
			rhs: fmt.Sprintf("cudaMalloc((void**)&%s, sizeof(%s))", cell, o.ctype),
		})
		c.emit(ifStmt{cond: "status != cudaSuccess", then: fail()})
	}

	callArgs := strings.Join(append(args, cells...), ", ")
	if len(info.hw) == 0 {
		c.emit(exprStmt{x: fmt.Sprintf("%s<<<1, 1>>>(%s)", info.name, callArgs)})
	} else {
		launch := &cblock{}
		launch.add(rawStmt{text: fmt.Sprintf("dim3 gridDims(%s);", grid)})
		launch.add(rawStmt{text: fmt.Sprintf("dim3 blockDims(%s);", block)})
		launch.add(exprStmt{x: fmt.Sprintf("%s<<<gridDims, blockDims>>>(%s)", info.name, callArgs)})
		c.emit(blockStmt{body: launch})
	}
	// Launch failures surface through the error state, not a result.
	c.emit(assignStmt{lhs: "status", rhs: "cudaGetLastError()"})
	c.emit(ifStmt{cond: "status != cudaSuccess", then: fail()})

	names := make([]string, len(info.outs))
	for i, o := range info.outs {
		name := c.fresh()
		names[i] = name
		c.emit(declStmt{ctype: o.ctype, name: name})
		c.emit(assignStmt{
			lhs: "status",
			rhs: fmt.Sprintf("cudaMemcpy(&%s, %s, sizeof(%s), cudaMemcpyDeviceToHost)", name, cells[i], o.ctype),
		})
		c.emit(ifStmt{cond: "status != cudaSuccess", then: fail()})
		c.emit(exprStmt{x: fmt.Sprintf("cudaFree(%s)", cells[i])})
	}
	return valueOfSlots(info.ret, names)
}

func (c *Compiler) cpuCall(info *kernInfo, args []string) (CVal, error) {
	names := make([]string, len(info.outs))
	callArgs := args
	for i, o := range info.outs {
		name := c.fresh()
		names[i] = name
		c.emit(declStmt{ctype: o.ctype, name: name})
		callArgs = append(callArgs, "&"+name)
	}
	c.emit(exprStmt{x: fmt.Sprintf("%s(%s)", info.name, strings.Join(callArgs, ", "))})
	return valueOfSlots(info.ret, names)
}
