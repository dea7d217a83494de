package dag

import (
	"fmt"
	"sort"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		ids: make(map[string]int),
	}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.ids[id]; ok {
		return
	}
	g.ids[id] = len(g.nodes)
	g.nodes = append(g.nodes, node{id: id})
}

// Has reports whether the node exists.
func (g *Graph) Has(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.ids[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. A self edge is
// accepted and reported as a cycle of length one by DetectCycles. Adding an
// existing edge again does nothing.
func (g *Graph) AddEdge(fromID, toID string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	from, ok := g.ids[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	to, ok := g.ids[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	for _, d := range g.nodes[to].deps {
		if d == from {
			return nil
		}
	}
	g.nodes[to].deps = append(g.nodes[to].deps, from)
	g.nodes[from].dependents = append(g.nodes[from].dependents, to)
	return nil
}

// Dependencies returns the IDs the given node depends on, in edge insertion
// order.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	i, ok := g.ids[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return g.names(g.nodes[i].deps), nil
}

// Dependents returns the IDs depending on the given node, in edge insertion
// order.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	i, ok := g.ids[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return g.names(g.nodes[i].dependents), nil
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = g.nodes[n].id
	}
	return out
}

// Depths returns the ordering depth of every node: 0 for nodes without
// dependencies, otherwise one more than the deepest dependency. It fails
// with the cycle error of DetectCycles when the graph is not acyclic.
func (g *Graph) Depths() (map[string]int, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	t := g.tarjan()
	if chain := t.cycle(); chain != nil {
		return nil, cycleError(chain)
	}

	// Components complete dependencies first, so every dependency depth is
	// known when its dependent is reached.
	depth := make([]int, len(g.nodes))
	for _, comp := range t.components {
		n := comp[0]
		d := 0
		for _, dep := range g.nodes[n].deps {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[n] = d
	}

	out := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		out[n.id] = depth[i]
	}
	return out, nil
}

// Order returns every node sorted by ascending depth, then by ID. Each node
// comes after all of its transitive dependencies.
func (g *Graph) Order() ([]string, map[string]int, error) {
	depths, err := g.Depths()
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, 0, len(depths))
	for id := range depths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if depths[ids[i]] != depths[ids[j]] {
			return depths[ids[i]] < depths[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids, depths, nil
}
