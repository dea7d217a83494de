// Package schema holds the HCL block schema of assembly files.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// Wirelet represents a `wirelet "extension" { key = value }` block. Every
// attribute of the body is one option.
type Wirelet struct {
	Extension string   `hcl:"extension,label"`
	Body      hcl.Body `hcl:",remain"`
}

// Scope represents a `scope "name" { ... }` block. Scopes nest.
type Scope struct {
	Name     string     `hcl:"name,label"`
	Use      []string   `hcl:"use,optional"`
	Wirelets []*Wirelet `hcl:"wirelet,block"`
	Scopes   []*Scope   `hcl:"scope,block"`
}

// File represents the top-level structure of an assembly file.
type File struct {
	Scopes []*Scope `hcl:"scope,block"`
}
