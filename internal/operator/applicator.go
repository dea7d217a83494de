package operator

import (
	"reflect"

	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
)

// Handle applies a compiled applicator to an instance.
type Handle func(instance any) (any, error)

// Applicator is a deferred binding of one operator to one captured member.
//
// It keeps only immutable descriptors and no reference to the scan session,
// so it stays valid after the session is sealed and may be applied from any
// goroutine.
type Applicator struct {
	member *introspect.Member
	marker introspect.Marker
	owner  reflect.Type
	op     Operator

	bind binder
	err  error
}

// Applicator returns a deferred binding of o to c. It never fails: a member
// that does not satisfy the operator is reported when the applicator is
// applied.
func (o Operator) Applicator(c capture.MemberCapture) *Applicator {
	m := c.Member()
	a := &Applicator{member: m, marker: c.Marker(), owner: m.Owner, op: o}
	a.bind, a.err = o.bind("operator.Apply", m)
	return a
}

// Member returns the captured member.
func (a *Applicator) Member() *introspect.Member { return a.member }

// Marker returns the marker matched on the member.
func (a *Applicator) Marker() introspect.Marker { return a.marker }

// Operator returns the wrapped operator.
func (a *Applicator) Operator() Operator { return a.op }

// IsStatic reports whether Apply ignores its instance.
func (a *Applicator) IsStatic() bool { return a.member.Static }

// String describes the applicator, e.g. "get settings.Server.Port".
func (a *Applicator) String() string {
	return a.op.String() + " " + a.member.String()
}

// Apply resolves the applicator. instance must be a pointer to the owning
// class for instance members, and is ignored for static members.
func (a *Applicator) Apply(instance any) (any, error) {
	const op = "operator.Apply"
	if a.err != nil {
		return nil, a.err
	}
	if a.member.Static {
		return a.bind(reflect.Value{})
	}
	if instance == nil {
		return nil, fault.IllegalState(op, "%s needs an instance of %s", a, introspect.ShortName(a.owner))
	}
	recv := reflect.ValueOf(instance)
	if recv.Kind() != reflect.Pointer || recv.Type().Elem() != a.owner || recv.IsNil() {
		return nil, fault.Structural(op, a.member.String(), "instance must be a non-nil *%s, got %T", introspect.ShortName(a.owner), instance)
	}
	return a.bind(recv)
}

// Compile returns a handle equivalent to Apply.
func (a *Applicator) Compile() Handle {
	return a.Apply
}

// WhenReady applies the applicator once slot is filled and passes the result
// to fn. If the slot is already filled fn runs before WhenReady returns.
func (a *Applicator) WhenReady(slot *Slot, fn func(v any, err error)) {
	slot.OnFill(func(instance any) {
		fn(a.Apply(instance))
	})
}

// Fused is a single handle running several applicators in order.
type Fused func(instance any) ([]any, error)

// Fuse compiles apps into one handle. All applicators must share the owning
// class unless they are static.
func Fuse(apps ...*Applicator) (Fused, error) {
	var owner reflect.Type
	handles := make([]Handle, len(apps))
	for i, a := range apps {
		if a.err != nil {
			return nil, a.err
		}
		if !a.member.Static {
			if owner != nil && owner != a.owner {
				return nil, fault.Declaration("operator.Fuse", "cannot fuse applicators of %s and %s",
					introspect.ShortName(owner), introspect.ShortName(a.owner))
			}
			owner = a.owner
		}
		handles[i] = a.Compile()
	}
	return func(instance any) ([]any, error) {
		out := make([]any, len(handles))
		for i, h := range handles {
			v, err := h(instance)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}, nil
}
