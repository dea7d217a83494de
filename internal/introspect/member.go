package introspect

import (
	"reflect"
)

// MemberKind is the kind of a class member.
type MemberKind uint8

const (
	// TypeKind is the class itself, used for type-level markers.
	TypeKind MemberKind = iota + 1
	// FieldKind is a struct field or a static variable.
	FieldKind
	// MethodKind is a method or a static function.
	MethodKind
)

// String returns the lowercase name of the kind.
func (k MemberKind) String() string {
	switch k {
	case TypeKind:
		return "type"
	case FieldKind:
		return "field"
	case MethodKind:
		return "method"
	default:
		return "unknown"
	}
}

// Member describes one member of a class.
type Member struct {
	Kind MemberKind
	// Owner is the struct type declaring the member.
	Owner reflect.Type
	Name  string
	// Type is the field type, or the method signature without the receiver.
	// It is nil for methods that are not exported.
	Type reflect.Type
	// Index is the field index path for instance fields.
	Index []int
	// Position is the declaration order within the class.
	Position int
	// Static members are not bound to an instance of Owner.
	Static bool
	// Final members cannot be assigned.
	Final    bool
	Exported bool

	static reflect.Value
}

// StaticValue returns the bound value of a static member: the addressable
// variable for static fields, the function for static methods.
func (m *Member) StaticValue() (reflect.Value, bool) {
	if !m.Static || !m.static.IsValid() {
		return reflect.Value{}, false
	}
	return m.static, true
}

// String describes the member for diagnostics, e.g. "settings.Server.Port".
func (m *Member) String() string {
	if m == nil {
		return "<nil member>"
	}
	owner := ShortName(m.Owner)
	if m.Kind == TypeKind {
		return owner
	}
	if m.Kind == MethodKind && !m.Static {
		return owner + "." + m.Name + "()"
	}
	return owner + "." + m.Name
}

// Annotation pairs a member with the markers found on it.
type Annotation struct {
	Member  *Member
	Markers []Marker
}

// Class is the descriptor of one introspected type.
type Class struct {
	Type        reflect.Type
	Annotations []Annotation
}

// Name returns the canonical name of the class.
func (c *Class) Name() string {
	return CanonicalName(c.Type)
}

// Members returns the annotated members of the given kind in declaration order.
func (c *Class) Members(kind MemberKind) []Annotation {
	var out []Annotation
	for _, a := range c.Annotations {
		if a.Member.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// Introspector produces class descriptors.
type Introspector interface {
	Introspect(t reflect.Type) (*Class, error)
}

// MethodHook declares markers on a method. Markers uses tag syntax.
type MethodHook struct {
	Method  string
	Markers string
}

// StaticHook declares markers on a package-level variable or function.
// Target must be a non-nil pointer to the variable, or a non-nil function.
type StaticHook struct {
	Name    string
	Target  any
	Markers string
	Final   bool
}

// MethodHooker is implemented by classes that mark methods.
type MethodHooker interface {
	HookMethods() []MethodHook
}

// TypeHooker is implemented by classes that carry type-level markers.
type TypeHooker interface {
	HookTypes() []string
}

// StaticHooker is implemented by classes that mark static members.
type StaticHooker interface {
	HookStatics() []StaticHook
}
