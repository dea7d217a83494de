package dag

import "sync"

// Graph is a collection of nodes and their dependencies.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects ids and nodes.
	mutex sync.RWMutex
	// ids maps a node ID to its arena index.
	ids map[string]int
	// nodes is the arena, in insertion order.
	nodes []node
}

// node is one vertex. Edges are arena indexes in insertion order.
type node struct {
	id string
	// deps are the nodes this node depends on.
	deps []int
	// dependents are the nodes depending on this node.
	dependents []int
}
