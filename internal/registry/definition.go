package registry

import (
	"fmt"
	"reflect"

	"github.com/Masterminds/semver/v3"
	"github.com/vk/hookwire/internal/introspect"
)

// Requirement is a required dependency, optionally bounded by a version
// constraint.
type Requirement struct {
	Type       reflect.Type
	Constraint *semver.Constraints
	constraint string
}

// String describes the requirement, e.g. "logging.Extension >=1.0".
func (r Requirement) String() string {
	if r.constraint == "" {
		return introspect.ShortName(r.Type)
	}
	return introspect.ShortName(r.Type) + " " + r.constraint
}

// Definition describes one extension type.
type Definition struct {
	// Type is the extension pointer type, e.g. *logging.Extension.
	Type reflect.Type
	// Name is the canonical name of the extension, used as ordering tie-break.
	Name        string
	Version     *semver.Version
	Description string
	Aliases     []string

	// New returns a fresh extension instance of Type.
	New func() any

	Requires []Requirement
	// Optional lists names of extensions used when registered.
	Optional []string
	// Activators lists the marker names that activate the extension.
	Activators []string

	// NodeType is the exact type of the companion node, nil when none.
	NodeType reflect.Type
	// NewNode builds the node from an extension instance.
	NewNode func(ext any) any

	problems []string
}

// ShortName returns the package-qualified type name, e.g. "logging.Extension".
func (d *Definition) ShortName() string {
	return introspect.ShortName(d.Type)
}

// String implements fmt.Stringer.
func (d *Definition) String() string {
	if d.Version != nil {
		return d.Name + "@" + d.Version.String()
	}
	return d.Name
}

// DefineOption configures a Definition.
type DefineOption func(*Definition)

// Define describes extension E constructed by newFn.
func Define[E any](newFn func() *E, opts ...DefineOption) *Definition {
	t := reflect.TypeFor[*E]()
	d := &Definition{
		Type: t,
		Name: introspect.CanonicalName(t),
		New:  func() any { return newFn() },
	}
	if newFn == nil {
		d.New = nil
		d.problems = append(d.problems, "no constructor")
	}
	if t.Elem().Kind() != reflect.Struct {
		d.problems = append(d.problems, fmt.Sprintf("extension type %v is not a struct", t.Elem()))
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Requires declares a required dependency on extension D.
func Requires[D any]() DefineOption {
	return func(d *Definition) {
		d.Requires = append(d.Requires, Requirement{Type: reflect.TypeFor[*D]()})
	}
}

// RequiresVersion declares a required dependency on extension D whose
// version must satisfy constraint, e.g. ">=1.2, <2".
func RequiresVersion[D any](constraint string) DefineOption {
	return func(d *Definition) {
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			d.problems = append(d.problems, fmt.Sprintf("invalid version constraint %q: %v", constraint, err))
			return
		}
		d.Requires = append(d.Requires, Requirement{Type: reflect.TypeFor[*D](), Constraint: c, constraint: constraint})
	}
}

// OptionalNamed declares dependencies resolved by name when registered.
// Names that are not registered are ignored.
func OptionalNamed(names ...string) DefineOption {
	return func(d *Definition) {
		d.Optional = append(d.Optional, names...)
	}
}

// Version sets the extension version.
func Version(v string) DefineOption {
	return func(d *Definition) {
		sv, err := semver.NewVersion(v)
		if err != nil {
			d.problems = append(d.problems, fmt.Sprintf("invalid version %q: %v", v, err))
			return
		}
		d.Version = sv
	}
}

// Alias registers additional lookup names.
func Alias(names ...string) DefineOption {
	return func(d *Definition) {
		d.Aliases = append(d.Aliases, names...)
	}
}

// ActivatedBy maps marker names to the extension.
func ActivatedBy(markers ...string) DefineOption {
	return func(d *Definition) {
		d.Activators = append(d.Activators, markers...)
	}
}

// Description sets a human readable description.
func Description(s string) DefineOption {
	return func(d *Definition) {
		d.Description = s
	}
}

// WithNode declares the companion node of extension E. The node is built
// once per extension instance and must have exactly type N.
func WithNode[E, N any](newNode func(*E) N) DefineOption {
	return func(d *Definition) {
		nt := reflect.TypeFor[N]()
		if d.Type != reflect.TypeFor[*E]() {
			d.problems = append(d.problems, fmt.Sprintf("node constructor is for %v", reflect.TypeFor[*E]()))
			return
		}
		d.NodeType = nt
		d.NewNode = func(ext any) any {
			e, _ := ext.(*E)
			return newNode(e)
		}
	}
}
