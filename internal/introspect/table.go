package introspect

import (
	"errors"
	"reflect"
	"sync"

	"github.com/vk/hookwire/internal/fault"
)

// Table serves class descriptors registered ahead of time. It is the
// introspector for code that generates its metadata instead of relying on
// runtime reflection over tags.
type Table struct {
	mu      sync.RWMutex
	classes map[reflect.Type]*Class
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{classes: make(map[reflect.Type]*Class)}
}

// Add registers c, replacing any previous descriptor for the same type.
func (t *Table) Add(c *Class) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.classes[c.Type] = c
}

// Introspect implements Introspector.
func (t *Table) Introspect(rt reflect.Type) (*Class, error) {
	rt = structType(rt)
	t.mu.RLock()
	c, ok := t.classes[rt]
	t.mu.RUnlock()
	if !ok {
		return nil, &fault.Error{
			Kind: fault.KindDeclaration,
			Op:   "introspect.Table",
			Msg:  "no descriptor registered for " + CanonicalName(rt),
			Err:  ErrUndescribed,
		}
	}
	return c, nil
}

// ClassBuilder assembles a descriptor for a Table.
//
//	c, err := introspect.NewClass(reflect.TypeFor[Server]()).
//	    Field("Port", "setting,key=port").
//	    Method("Start", "startup").
//	    Build()
type ClassBuilder struct {
	b classBuilder
}

// NewClass starts a descriptor for t.
func NewClass(t reflect.Type) *ClassBuilder {
	t = structType(t)
	cb := &ClassBuilder{b: classBuilder{class: &Class{Type: t}}}
	if t == nil || t.Kind() != reflect.Struct {
		cb.b.fail(fault.Declaration("introspect.NewClass", "class %v is not a struct type", t))
	}
	return cb
}

// Type adds type-level markers.
func (cb *ClassBuilder) Type(markers string) *ClassBuilder {
	cb.b.addType(markers)
	return cb
}

// Field adds markers on the named field. The `member` tag of the field is
// honoured for flags.
func (cb *ClassBuilder) Field(name, markers string) *ClassBuilder {
	if cb.b.err != nil {
		return cb
	}
	sf, ok := cb.b.class.Type.FieldByName(name)
	if !ok {
		cb.b.fail(fault.Declaration("introspect.NewClass", "%s has no field %s", ShortName(cb.b.class.Type), name))
		return cb
	}
	cb.b.addField(sf, markers)
	return cb
}

// Method adds markers on the named method.
func (cb *ClassBuilder) Method(name, markers string) *ClassBuilder {
	if cb.b.err != nil {
		return cb
	}
	cb.b.addMethod(name, markers)
	return cb
}

// Static adds markers on a package-level variable or function.
func (cb *ClassBuilder) Static(h StaticHook) *ClassBuilder {
	if cb.b.err != nil {
		return cb
	}
	cb.b.addStatic(h)
	return cb
}

// Build returns the descriptor or the first error met while building it.
func (cb *ClassBuilder) Build() (*Class, error) {
	if cb.b.err != nil {
		return nil, cb.b.err
	}
	return cb.b.class, nil
}

// Chain tries each introspector in turn and returns the first descriptor.
// Introspectors reporting ErrUndescribed are skipped; any other failure stops
// the chain.
func Chain(list ...Introspector) Introspector {
	return chain(list)
}

type chain []Introspector

func (c chain) Introspect(t reflect.Type) (*Class, error) {
	var last error
	for _, in := range c {
		class, err := in.Introspect(t)
		if err == nil {
			return class, nil
		}
		if !errors.Is(err, ErrUndescribed) {
			return nil, err
		}
		last = err
	}
	if last == nil {
		last = &fault.Error{Kind: fault.KindDeclaration, Op: "introspect.Chain", Msg: "no introspector configured", Err: ErrUndescribed}
	}
	return nil, last
}
