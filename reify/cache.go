package reify

import (
	"sync"

	"github.com/runnerrunnerrunner/nikola/ast"
)

// Cache memoizes reification by function token. The first reification
// of a token wins; later calls observe the same procedure pointer, so
// sharing between programs that mention the same function is explicit
// in the AST.
//
// The lock is held across the user function's body. That serializes
// reification, which keeps the at-most-once guarantee trivial; bodies
// are expected to be fast AST builders.
type Cache struct {
	mu    sync.Mutex
	procs map[Token]*ast.HostProc
}

func NewCache() *Cache {
	return &Cache{procs: make(map[Token]*ast.HostProc)}
}

// Reify returns the memoized procedure for f, reifying on first use.
// A failed reification is not recorded, so a later call retries.
func (c *Cache) Reify(f *Fun) (*ast.HostProc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.procs[f.Token()]; ok {
		return p, nil
	}
	p, err := Reify(f)
	if err != nil {
		return nil, err
	}
	c.procs[f.Token()] = p
	return p, nil
}

// Len reports how many procedures the cache holds.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.procs)
}
