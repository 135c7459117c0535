package rotation

import (
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// BuildFunc produces the rotation for one global node
type BuildFunc func(node int) (*mat.Dense, error)

// Cache memoizes node rotations for one assembly pass. A node is built at most
// once until Invalidate is called, however many elements share it.
type Cache struct {
	mu     sync.RWMutex
	build  BuildFunc
	frames map[int]*mat.Dense
	builds int
}

func NewCache(build BuildFunc) *Cache {
	return &Cache{
		build:  build,
		frames: make(map[int]*mat.Dense),
	}
}

// GetOrBuild returns the cached rotation for node, building it on first use.
// Failed builds are not cached.
func (c *Cache) GetOrBuild(node int) (*mat.Dense, error) {
	if R, ok := c.Lookup(node); ok {
		return R, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another writer may have built it between the read and write lock
	if R, ok := c.frames[node]; ok {
		return R, nil
	}
	R, err := c.build(node)
	if err != nil {
		return nil, err
	}
	c.builds++
	c.frames[node] = R
	return R, nil
}

// Lookup returns a cached rotation without building
func (c *Cache) Lookup(node int) (*mat.Dense, bool) {
	c.mu.RLock()
	R, ok := c.frames[node]
	c.mu.RUnlock()
	return R, ok
}

// Precompute builds the rotations of all given nodes in a single writer pass.
// After it returns successfully the cache is only ever read by GetOrBuild.
func (c *Cache) Precompute(nodes []int) error {
	for _, node := range nodes {
		if _, err := c.GetOrBuild(node); err != nil {
			return fmt.Errorf("precomputing rotation of node %d: %w", node, err)
		}
	}
	return nil
}

// Invalidate drops every cached rotation, to be called whenever the fields or
// node geometry change between passes
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.frames = make(map[int]*mat.Dense)
	c.builds = 0
	c.mu.Unlock()
}

// SetBuild replaces the build function and invalidates the cache
func (c *Cache) SetBuild(build BuildFunc) {
	c.mu.Lock()
	c.build = build
	c.frames = make(map[int]*mat.Dense)
	c.builds = 0
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// Builds counts the frames built since the last invalidation
func (c *Cache) Builds() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.builds
}

// Nodes returns the cached node indices in ascending order
func (c *Cache) Nodes() []int {
	c.mu.RLock()
	nodes := make([]int, 0, len(c.frames))
	for n := range c.frames {
		nodes = append(nodes, n)
	}
	c.mu.RUnlock()
	sort.Ints(nodes)
	return nodes
}

// Operator snapshots the cached rotations into a block diagonal operator
func (c *Cache) Operator(dim int) *Operator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op := NewOperator(dim)
	for n, R := range c.frames {
		op.frames[n] = R
	}
	return op
}
