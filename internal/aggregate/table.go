// Package aggregate routes the captures of one scan session to the handler
// methods of a group builder and produces the builder's result.
//
// A group builder is a pointer to a struct with:
//
//   - handler methods, exported and named Hook*, taking exactly one capture
//     parameter (*capture.FieldCapture, *capture.MethodCapture,
//     *capture.TypeCapture, *capture.InstanceCapture, capture.MemberCapture or
//     capture.Capture) and returning nothing or an error;
//   - a method Build() (G, error) called once after the last capture.
//
// The dispatch table of a builder type is computed once and cached,
// failures included.
package aggregate

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
	"golang.org/x/sync/singleflight"
)

// HandlerPrefix is the name prefix of handler methods.
const HandlerPrefix = "Hook"

var (
	errorType = reflect.TypeFor[error]()

	// captureTypes are the parameter types a handler may declare.
	captureTypes = map[reflect.Type]bool{
		reflect.TypeFor[*capture.FieldCapture]():    true,
		reflect.TypeFor[*capture.MethodCapture]():   true,
		reflect.TypeFor[*capture.TypeCapture]():     true,
		reflect.TypeFor[*capture.InstanceCapture](): true,
		reflect.TypeFor[capture.MemberCapture]():    true,
		reflect.TypeFor[capture.Capture]():          true,
	}
)

type handler struct {
	name       string
	fn         int
	param      reflect.Type
	returnsErr bool
}

// Table is the dispatch table of one builder type.
type Table struct {
	builder reflect.Type
	result  reflect.Type
	build   int

	exact  map[reflect.Type]handler
	ifaces []handler // sorted by decreasing method count
}

// Builder returns the builder pointer type.
func (t *Table) Builder() reflect.Type { return t.builder }

// Result returns the type G produced by Build.
func (t *Table) Result() reflect.Type { return t.result }

// Handlers returns the handler method names in method order.
func (t *Table) Handlers() []string {
	var hs []handler
	for _, h := range t.exact {
		hs = append(hs, h)
	}
	hs = append(hs, t.ifaces...)
	sort.Slice(hs, func(i, j int) bool { return hs[i].fn < hs[j].fn })
	names := make([]string, len(hs))
	for i, h := range hs {
		names[i] = h.name
	}
	return names
}

// lookup returns the handler whose parameter is exactly ct, or else the most
// specific interface ct implements.
func (t *Table) lookup(ct reflect.Type) (handler, bool) {
	if h, ok := t.exact[ct]; ok {
		return h, true
	}
	for _, h := range t.ifaces {
		if ct.Implements(h.param) {
			return h, true
		}
	}
	return handler{}, false
}

// Tables is the registry of dispatch tables, keyed by builder type.
type Tables struct {
	cache sync.Map // key: reflect.Type, val: *tableEntry
	group singleflight.Group
}

type tableEntry struct {
	table *Table
	err   error
}

// NewTables returns an empty registry.
func NewTables() *Tables {
	return &Tables{}
}

// Register computes the table of builder's type ahead of use.
func (ts *Tables) Register(builder any) error {
	_, err := ts.For(reflect.TypeOf(builder))
	return err
}

// For returns the table of builder type t, computing it once.
func (ts *Tables) For(t reflect.Type) (*Table, error) {
	if v, ok := ts.cache.Load(t); ok {
		e := v.(*tableEntry)
		return e.table, e.err
	}
	v, _, _ := ts.group.Do(introspect.TypeKey(t), func() (any, error) {
		if v, ok := ts.cache.Load(t); ok {
			return v, nil
		}
		tbl, err := newTable(t)
		e := &tableEntry{table: tbl, err: err}
		ts.cache.Store(t, e)
		return e, nil
	})
	e := v.(*tableEntry)
	return e.table, e.err
}

func newTable(t reflect.Type) (*Table, error) {
	const op = "aggregate.Table"
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fault.Declaration(op, "group builder must be a pointer to a struct, got %v", t)
	}
	name := introspect.ShortName(t)

	tbl := &Table{builder: t, exact: make(map[reflect.Type]handler)}
	build, ok := t.MethodByName("Build")
	if !ok {
		return nil, fault.Declaration(op, "group builder %s has no Build method", name)
	}
	bt := build.Type
	if bt.NumIn() != 1 || bt.NumOut() != 2 || bt.Out(1) != errorType {
		return nil, fault.Declaration(op, "%s.Build must have signature func() (G, error), got %v", name, bt)
	}
	tbl.build = build.Index
	tbl.result = bt.Out(0)

	var problems []string
	seen := make(map[reflect.Type]string)
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !strings.HasPrefix(m.Name, HandlerPrefix) {
			continue
		}
		h, err := newHandler(m)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s.%s: %v", name, m.Name, err))
			continue
		}
		if prev, dup := seen[h.param]; dup {
			problems = append(problems, fmt.Sprintf("%s.%s and %s.%s both handle %v", name, prev, name, m.Name, h.param))
			continue
		}
		seen[h.param] = m.Name
		if h.param.Kind() == reflect.Interface {
			tbl.ifaces = append(tbl.ifaces, h)
		} else {
			tbl.exact[h.param] = h
		}
	}
	if err := fault.Join(op, "invalid hook handlers on "+name, problems); err != nil {
		return nil, err
	}
	sort.SliceStable(tbl.ifaces, func(i, j int) bool {
		return tbl.ifaces[i].param.NumMethod() > tbl.ifaces[j].param.NumMethod()
	})
	return tbl, nil
}

func newHandler(m reflect.Method) (handler, error) {
	mt := m.Type
	if mt.NumIn() != 2 {
		return handler{}, fmt.Errorf("handler must take exactly one capture parameter")
	}
	p := mt.In(1)
	if !captureTypes[p] {
		return handler{}, fmt.Errorf("parameter type %v is not a capture type", p)
	}
	switch {
	case mt.NumOut() == 0:
		return handler{name: m.Name, fn: m.Index, param: p}, nil
	case mt.NumOut() == 1 && mt.Out(0) == errorType:
		return handler{name: m.Name, fn: m.Index, param: p, returnsErr: true}, nil
	default:
		return handler{}, fmt.Errorf("handler must return nothing or error")
	}
}
