package classify

import (
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// GraphReader is the read-only view of the relationship graph used during classification
type GraphReader interface {
	Neighbors(addr string) []string
}

// Graph is the in-run address relationship graph. It is bounded: least
// recently touched addresses are evicted, and each address keeps at most
// maxNeighbors counterparties.
type Graph struct {
	mu           sync.Mutex
	adj          *lru.Cache[string, map[string]struct{}]
	maxNeighbors int
}

var _ GraphReader = (*Graph)(nil)

// NewGraph creates a graph holding up to size addresses
func NewGraph(size, maxNeighbors int) (*Graph, error) {
	if size <= 0 {
		return nil, fmt.Errorf("graph size must be positive")
	}
	if maxNeighbors <= 0 {
		return nil, fmt.Errorf("max neighbors must be positive")
	}

	cache, err := lru.New[string, map[string]struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph cache: %w", err)
	}
	return &Graph{adj: cache, maxNeighbors: maxNeighbors}, nil
}

// AddEdge records that a and b transacted with each other
func (g *Graph) AddEdge(a, b string) {
	if a == "" || b == "" || a == b {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.link(a, b)
	g.link(b, a)
}

func (g *Graph) link(from, to string) {
	set, ok := g.adj.Get(from)
	if !ok {
		set = make(map[string]struct{})
		g.adj.Add(from, set)
	}
	if _, exists := set[to]; exists || len(set) >= g.maxNeighbors {
		return
	}
	set[to] = struct{}{}
}

// Neighbors returns the known counterparties of addr in sorted order
func (g *Graph) Neighbors(addr string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.adj.Peek(addr)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of tracked addresses
func (g *Graph) Len() int {
	return g.adj.Len()
}
