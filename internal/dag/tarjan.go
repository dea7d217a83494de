package dag

import (
	"slices"

	"github.com/vk/hookwire/internal/fault"
)

// DetectCycles checks the graph for any cycles. It returns a cycle error whose
// chain lists the nodes of the first cycle found, in dependency order.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if chain := g.tarjan().cycle(); chain != nil {
		return cycleError(chain)
	}
	return nil
}

// Components returns the strongly connected components, dependencies first.
func (g *Graph) Components() [][]string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	t := g.tarjan()
	out := make([][]string, len(t.components))
	for i, c := range t.components {
		out[i] = g.names(c)
	}
	return out
}

func cycleError(chain []string) error {
	return fault.Cycle("dag.DetectCycles", chain)
}

// tarjanState holds the traversal state of one pass in slices parallel to
// the node arena. Edges followed are dependency edges.
type tarjanState struct {
	g       *Graph
	next    int
	index   []int // 0 means unvisited, otherwise visit number + 1
	lowlink []int
	onStack []bool
	stack   []int

	components [][]int
}

// tarjan runs the strongly connected components pass. Callers hold the read
// lock.
func (g *Graph) tarjan() *tarjanState {
	n := len(g.nodes)
	t := &tarjanState{
		g:       g,
		index:   make([]int, n),
		lowlink: make([]int, n),
		onStack: make([]bool, n),
	}
	for v := 0; v < n; v++ {
		if t.index[v] == 0 {
			t.strongConnect(v)
		}
	}
	return t
}

func (t *tarjanState) strongConnect(v int) {
	t.next++
	t.index[v] = t.next
	t.lowlink[v] = t.next
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.g.nodes[v].deps {
		switch {
		case t.index[w] == 0:
			t.strongConnect(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		case t.onStack[w]:
			t.lowlink[v] = min(t.lowlink[v], t.index[w])
		}
	}

	if t.lowlink[v] != t.index[v] {
		return
	}
	var comp []int
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		comp = append(comp, w)
		if w == v {
			break
		}
	}
	// Keep components in arena order so reports are stable.
	slices.Sort(comp)
	t.components = append(t.components, comp)
}

// cycle returns the chain of the first cyclic component, or nil.
func (t *tarjanState) cycle() []string {
	for _, comp := range t.components {
		if len(comp) == 1 && !t.selfEdge(comp[0]) {
			continue
		}
		return t.g.names(t.chain(comp))
	}
	return nil
}

func (t *tarjanState) selfEdge(v int) bool {
	for _, d := range t.g.nodes[v].deps {
		if d == v {
			return true
		}
	}
	return false
}

// chain finds the shortest path from the first node of comp back to itself
// along dependency edges inside comp.
func (t *tarjanState) chain(comp []int) []int {
	start := comp[0]
	in := make(map[int]bool, len(comp))
	for _, v := range comp {
		in[v] = true
	}

	prev := map[int]int{}
	queue := []int{start}
	visited := map[int]bool{}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range t.g.nodes[v].deps {
			if !in[w] {
				continue
			}
			if w == start {
				var path []int
				for u := v; u != start; u = prev[u] {
					path = append(path, u)
				}
				path = append(path, start)
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			if !visited[w] {
				visited[w] = true
				prev[w] = v
				queue = append(queue, w)
			}
		}
	}
	return comp
}
