// Package operator turns member captures into values and accessors.
//
// An Operator describes what to do with a captured member: read it once
// (Get), produce a Supplier reading it on demand (Supply), produce a Setter
// (Set) or produce an Invoker (Invoke). ApplyStatic applies an operator right
// away to a static member. Applicator defers the binding until a concrete
// instance of the owning class exists.
package operator

import (
	"reflect"

	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
)

// Kind is the kind of accessor an operator produces.
type Kind uint8

const (
	// KindGet reads the member once.
	KindGet Kind = iota + 1
	// KindSupply produces a Supplier.
	KindSupply
	// KindSet produces a Setter.
	KindSet
	// KindInvoke produces an Invoker.
	KindInvoke
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindGet:
		return "get"
	case KindSupply:
		return "supply"
	case KindSet:
		return "set"
	case KindInvoke:
		return "invoke"
	default:
		return "unknown"
	}
}

// Supplier reads a field, or calls a method without arguments, each time it
// is called.
type Supplier func() (any, error)

// Setter stores v in a field. A nil v stores the zero value.
type Setter func(v any) error

// Invoker calls a method. The trailing error result of the method, if any, is
// returned as the error and also kept in the result slice.
type Invoker func(args ...any) ([]any, error)

// Operator is an immutable value describing how to turn a capture into an
// accessor.
type Operator struct {
	kind Kind
}

// Get returns the read-once operator.
func Get() Operator { return Operator{kind: KindGet} }

// Supply returns the supplier operator.
func Supply() Operator { return Operator{kind: KindSupply} }

// Set returns the setter operator.
func Set() Operator { return Operator{kind: KindSet} }

// Invoke returns the invoker operator.
func Invoke() Operator { return Operator{kind: KindInvoke} }

// Kind returns the operator kind.
func (o Operator) Kind() Kind { return o.kind }

// String returns the operator name.
func (o Operator) String() string { return o.kind.String() }

// ApplyStatic applies o to a static member and returns the value (Get), or a
// Supplier, Setter or Invoker. Instance members always fail with an
// unsupported-operation error, whatever the operator.
func (o Operator) ApplyStatic(c capture.MemberCapture) (any, error) {
	const op = "operator.ApplyStatic"
	m := c.Member()
	if !m.Static {
		return nil, fault.Unsupported(op, m.String(), "%s cannot be applied statically to an instance %s", o, m.Kind)
	}
	if err := c.Session().CheckUsable(op); err != nil {
		return nil, err
	}
	b, err := o.bind(op, m)
	if err != nil {
		return nil, err
	}
	return b(reflect.Value{})
}

// binder produces the operator result for one receiver. The receiver is the
// invalid Value for static members.
type binder func(recv reflect.Value) (any, error)

// bind checks the structural prerequisites of o on m and returns the binder.
func (o Operator) bind(op string, m *introspect.Member) (binder, error) {
	if !m.Exported {
		return nil, fault.AccessDenied(op, m.String(), "%s is not exported", m.Kind)
	}
	switch o.kind {
	case KindGet:
		read, err := reader(op, m)
		if err != nil {
			return nil, err
		}
		return func(recv reflect.Value) (any, error) { return read(recv) }, nil

	case KindSupply:
		read, err := reader(op, m)
		if err != nil {
			return nil, err
		}
		return func(recv reflect.Value) (any, error) {
			return Supplier(func() (any, error) { return read(recv) }), nil
		}, nil

	case KindSet:
		if m.Kind != introspect.FieldKind {
			return nil, fault.Structural(op, m.String(), "set requires a field, got %s", m.Kind)
		}
		if m.Final {
			return nil, fault.Structural(op, m.String(), "set requires a non-final field")
		}
		return func(recv reflect.Value) (any, error) {
			return Setter(func(v any) error { return store(op, m, recv, v) }), nil
		}, nil

	case KindInvoke:
		if m.Kind != introspect.MethodKind {
			return nil, fault.Structural(op, m.String(), "invoke requires a method, got %s", m.Kind)
		}
		return func(recv reflect.Value) (any, error) {
			return Invoker(func(args ...any) ([]any, error) { return call(op, m, recv, args) }), nil
		}, nil

	default:
		return nil, fault.Declaration(op, "operator of kind %d is not defined", o.kind)
	}
}
