// Package dag is a small dependency graph used to validate and order
// extension modules.
//
// Nodes are stored in an arena and addressed by integer index. Cycle
// detection is a Tarjan strongly-connected-components pass whose traversal
// state (index, low-link, on-stack) lives in slices local to the pass, so a
// Graph can be inspected by several readers at once.
package dag
