package capture

import (
	"reflect"

	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
)

// Capture is one discovered target plus the marker matched on it.
type Capture interface {
	Session() *Session
	Marker() introspect.Marker
	// Owner is the scanned class.
	Owner() reflect.Type
	String() string

	isCapture()
}

// MemberCapture is a capture of a field or method.
type MemberCapture interface {
	Capture
	Member() *introspect.Member
	IsStatic() bool
	IsFinal() bool

	RequireStatic() error
	RequireInstance() error
	RequireFinal() error
	RequireNotFinal() error
	RequireExported() error
	RequireAssignableTo(t reflect.Type) error
	RequireAssignableFrom(t reflect.Type) error
}

type base struct {
	session *Session
	marker  introspect.Marker
	owner   reflect.Type
}

func (b *base) Session() *Session { return b.session }
func (b *base) Marker() introspect.Marker { return b.marker }
func (b *base) Owner() reflect.Type { return b.owner }
func (*base) isCapture() {}

type memberCapture struct {
	base
	member *introspect.Member
}

func (c *memberCapture) Member() *introspect.Member { return c.member }
func (c *memberCapture) IsStatic() bool { return c.member.Static }
func (c *memberCapture) IsFinal() bool { return c.member.Final }

func (c *memberCapture) String() string {
	return c.member.Kind.String() + " " + c.member.String() + " @" + c.marker.Name
}

func (c *memberCapture) check(op string) error {
	return c.session.CheckUsable(op)
}

// RequireStatic fails unless the member is static.
func (c *memberCapture) RequireStatic() error {
	const op = "capture.RequireStatic"
	if err := c.check(op); err != nil {
		return err
	}
	if !c.member.Static {
		return fault.Structural(op, c.member.String(), "%s must be static", c.member.Kind)
	}
	return nil
}

// RequireInstance fails unless the member is bound to an instance.
func (c *memberCapture) RequireInstance() error {
	const op = "capture.RequireInstance"
	if err := c.check(op); err != nil {
		return err
	}
	if c.member.Static {
		return fault.Structural(op, c.member.String(), "%s must not be static", c.member.Kind)
	}
	return nil
}

// RequireFinal fails unless the member cannot be assigned.
func (c *memberCapture) RequireFinal() error {
	const op = "capture.RequireFinal"
	if err := c.check(op); err != nil {
		return err
	}
	if !c.member.Final {
		return fault.Structural(op, c.member.String(), "%s must be final", c.member.Kind)
	}
	return nil
}

// RequireNotFinal fails if the member cannot be assigned.
func (c *memberCapture) RequireNotFinal() error {
	const op = "capture.RequireNotFinal"
	if err := c.check(op); err != nil {
		return err
	}
	if c.member.Final {
		return fault.Structural(op, c.member.String(), "%s must not be final", c.member.Kind)
	}
	return nil
}

// RequireExported fails for members reflection cannot reach.
func (c *memberCapture) RequireExported() error {
	const op = "capture.RequireExported"
	if err := c.check(op); err != nil {
		return err
	}
	if !c.member.Exported {
		return fault.AccessDenied(op, c.member.String(), "%s is not exported", c.member.Kind)
	}
	return nil
}

// valueType is the type a read of the member yields: the field type, or the
// first result of a method.
func (c *memberCapture) valueType() reflect.Type {
	t := c.member.Type
	if c.member.Kind == introspect.MethodKind {
		if t == nil || t.NumOut() == 0 {
			return nil
		}
		return t.Out(0)
	}
	return t
}

// RequireAssignableTo fails unless the member's value can be assigned to a
// variable of type t.
func (c *memberCapture) RequireAssignableTo(t reflect.Type) error {
	const op = "capture.RequireAssignableTo"
	if err := c.check(op); err != nil {
		return err
	}
	vt := c.valueType()
	if vt == nil || !vt.AssignableTo(t) {
		return fault.Structural(op, c.member.String(), "%v is not assignable to %v", vt, t)
	}
	return nil
}

// RequireAssignableFrom fails unless a value of type t can be stored in the
// member.
func (c *memberCapture) RequireAssignableFrom(t reflect.Type) error {
	const op = "capture.RequireAssignableFrom"
	if err := c.check(op); err != nil {
		return err
	}
	if c.member.Kind != introspect.FieldKind {
		return fault.Structural(op, c.member.String(), "only fields can be assigned")
	}
	if !t.AssignableTo(c.member.Type) {
		return fault.Structural(op, c.member.String(), "%v cannot be stored in %v", t, c.member.Type)
	}
	return nil
}

// FieldCapture captures a struct field or static variable.
type FieldCapture struct {
	memberCapture
}

// MethodCapture captures a method or static function.
type MethodCapture struct {
	memberCapture
}

// RequireNumIn fails unless the method takes exactly n arguments.
func (c *MethodCapture) RequireNumIn(n int) error {
	const op = "capture.RequireNumIn"
	if err := c.check(op); err != nil {
		return err
	}
	if c.member.Type == nil || c.member.Type.NumIn() != n {
		return fault.Structural(op, c.member.String(), "method must take %d arguments", n)
	}
	return nil
}

// TypeCapture captures a type-level marker.
type TypeCapture struct {
	base
	class *introspect.Class
}

// Class returns the descriptor of the captured class.
func (c *TypeCapture) Class() *introspect.Class { return c.class }

// String describes the capture.
func (c *TypeCapture) String() string {
	return "type " + introspect.ShortName(c.owner) + " @" + c.marker.Name
}

// RequireImplements fails unless a pointer to the class implements iface.
func (c *TypeCapture) RequireImplements(iface reflect.Type) error {
	const op = "capture.RequireImplements"
	if err := c.session.CheckUsable(op); err != nil {
		return err
	}
	if iface.Kind() != reflect.Interface {
		return fault.Declaration(op, "%v is not an interface", iface)
	}
	if !reflect.PointerTo(c.owner).Implements(iface) {
		return fault.Structural(op, introspect.ShortName(c.owner), "type does not implement %v", iface)
	}
	return nil
}

// InstanceCapture captures a type-level marker found while scanning a live
// instance. It carries the instance itself.
type InstanceCapture struct {
	base
	value reflect.Value
}

// String describes the capture.
func (c *InstanceCapture) String() string {
	return "instance " + introspect.ShortName(c.owner) + " @" + c.marker.Name
}

// Value returns the captured instance.
func (c *InstanceCapture) Value() (any, error) {
	if err := c.session.CheckUsable("capture.Value"); err != nil {
		return nil, err
	}
	return c.value.Interface(), nil
}

// NewField creates a field capture bound to sess.
func NewField(sess *Session, m *introspect.Member, marker introspect.Marker) *FieldCapture {
	return &FieldCapture{memberCapture{base: base{session: sess, marker: marker, owner: m.Owner}, member: m}}
}

// NewMethod creates a method capture bound to sess.
func NewMethod(sess *Session, m *introspect.Member, marker introspect.Marker) *MethodCapture {
	return &MethodCapture{memberCapture{base: base{session: sess, marker: marker, owner: m.Owner}, member: m}}
}

// NewType creates a type capture bound to sess.
func NewType(sess *Session, class *introspect.Class, marker introspect.Marker) *TypeCapture {
	return &TypeCapture{base: base{session: sess, marker: marker, owner: class.Type}, class: class}
}

// NewInstance creates an instance capture bound to sess. v must be a pointer
// to the class.
func NewInstance(sess *Session, v reflect.Value, marker introspect.Marker) *InstanceCapture {
	owner := v.Type()
	for owner.Kind() == reflect.Pointer {
		owner = owner.Elem()
	}
	return &InstanceCapture{base: base{session: sess, marker: marker, owner: owner}, value: v}
}

var (
	_ MemberCapture = (*FieldCapture)(nil)
	_ MemberCapture = (*MethodCapture)(nil)
	_ Capture       = (*TypeCapture)(nil)
	_ Capture       = (*InstanceCapture)(nil)
)
