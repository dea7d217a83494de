// Package registry provides the central "glue" for the extension system.
//
// The Registry stores one Definition per extension type: how to construct
// it, which extensions it requires, which optional extensions it uses when
// they are registered, the marker names that activate it and the companion
// node it exposes to other scopes.
//
// Resolve validates the dependency chain of an extension, detects cycles and
// computes the ordering depth of every extension involved. Results and
// failures are cached per extension type.
package registry
