package config

import (
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified representation of an assembly.
type Model struct {
	Scopes []*Scope
}

// Scope is one configuration scope and its nested scopes.
type Scope struct {
	Name string
	// Use lists extension names, canonical or alias, to make live.
	Use      []string
	Wirelets []*Wirelet
	Children []*Scope
	// Source is the file the scope was declared in.
	Source string
}

// Wirelet is the set of options addressed to one extension.
type Wirelet struct {
	Extension string
	Options   map[string]cty.Value
}

// Walk calls fn for every scope of m, parents before children. path is the
// slash-separated scope path.
func (m *Model) Walk(fn func(path string, s *Scope) error) error {
	for _, s := range m.Scopes {
		if err := walk(s.Name, s, fn); err != nil {
			return err
		}
	}
	return nil
}

func walk(path string, s *Scope, fn func(string, *Scope) error) error {
	if err := fn(path, s); err != nil {
		return err
	}
	for _, c := range s.Children {
		if err := walk(path+"/"+c.Name, c, fn); err != nil {
			return err
		}
	}
	return nil
}
