package operator

import (
	"reflect"

	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
)

var errorType = reflect.TypeFor[error]()

// reader returns a function producing the member's value: the field value, or
// the first result of a method taking no arguments.
func reader(op string, m *introspect.Member) (func(recv reflect.Value) (any, error), error) {
	switch m.Kind {
	case introspect.FieldKind:
		return func(recv reflect.Value) (any, error) {
			return field(m, recv).Interface(), nil
		}, nil
	case introspect.MethodKind:
		if m.Type.NumIn() != 0 || m.Type.NumOut() == 0 {
			return nil, fault.Structural(op, m.String(), "reading a method requires no arguments and at least one result, got %v", m.Type)
		}
		return func(recv reflect.Value) (any, error) {
			out, err := call(op, m, recv, nil)
			if len(out) == 0 {
				return nil, err
			}
			return out[0], err
		}, nil
	default:
		return nil, fault.Structural(op, m.String(), "cannot read a %s", m.Kind)
	}
}

// field returns the addressable field value of m.
func field(m *introspect.Member, recv reflect.Value) reflect.Value {
	if m.Static {
		v, _ := m.StaticValue()
		return v
	}
	return recv.Elem().FieldByIndex(m.Index)
}

// function returns the callable of m.
func function(m *introspect.Member, recv reflect.Value) reflect.Value {
	if m.Static {
		v, _ := m.StaticValue()
		return v
	}
	return recv.MethodByName(m.Name)
}

func store(op string, m *introspect.Member, recv reflect.Value, v any) error {
	dst := field(m, recv)
	if v == nil {
		dst.Set(reflect.Zero(m.Type))
		return nil
	}
	src := reflect.ValueOf(v)
	if !src.Type().AssignableTo(m.Type) {
		return fault.Structural(op, m.String(), "%T cannot be stored in %v", v, m.Type)
	}
	dst.Set(src)
	return nil
}

func call(op string, m *introspect.Member, recv reflect.Value, args []any) ([]any, error) {
	fn := function(m, recv)
	in, err := arguments(op, m, fn.Type(), args)
	if err != nil {
		return nil, err
	}
	out := fn.Call(in)

	res := make([]any, len(out))
	for i, v := range out {
		res[i] = v.Interface()
	}
	if n := len(out); n > 0 && fn.Type().Out(n-1) == errorType && !out[n-1].IsNil() {
		return res, out[n-1].Interface().(error)
	}
	return res, nil
}

func arguments(op string, m *introspect.Member, ft reflect.Type, args []any) ([]reflect.Value, error) {
	fixed := ft.NumIn()
	if ft.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fault.Structural(op, m.String(), "expected at least %d arguments, got %d", fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, fault.Structural(op, m.String(), "expected %d arguments, got %d", fixed, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if i < fixed {
			pt = ft.In(i)
		} else {
			pt = ft.In(fixed).Elem()
		}
		if a == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		v := reflect.ValueOf(a)
		if !v.Type().AssignableTo(pt) {
			return nil, fault.Structural(op, m.String(), "argument %d: %T is not assignable to %v", i, a, pt)
		}
		in[i] = v
	}
	return in, nil
}
