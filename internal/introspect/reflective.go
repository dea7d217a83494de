package introspect

import (
	"errors"
	"go/token"
	"reflect"
	"strings"
	"sync"

	"github.com/vk/hookwire/internal/fault"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTagKey is the struct tag holding field markers.
	DefaultTagKey = "hook"
	// MemberTagKey is the struct tag holding member flags such as "final".
	MemberTagKey = "member"
)

// ErrUndescribed is wrapped by introspectors that have no descriptor for a
// type, so that Chain can move on to the next one.
var ErrUndescribed = errors.New("type is not described")

// Reflective derives class descriptors with package reflect. Results,
// failures included, are computed once per type.
type Reflective struct {
	tagKey string
	cache  sync.Map // key: reflect.Type, val: *reflectiveEntry
	group  singleflight.Group
}

type reflectiveEntry struct {
	class *Class
	err   error
}

// NewReflective returns a reflective introspector reading field markers from
// tagKey, or DefaultTagKey when empty.
func NewReflective(tagKey string) *Reflective {
	if tagKey == "" {
		tagKey = DefaultTagKey
	}
	return &Reflective{tagKey: tagKey}
}

// Introspect implements Introspector.
func (r *Reflective) Introspect(t reflect.Type) (*Class, error) {
	t = structType(t)
	if v, ok := r.cache.Load(t); ok {
		e := v.(*reflectiveEntry)
		return e.class, e.err
	}
	v, _, _ := r.group.Do(TypeKey(t), func() (any, error) {
		if v, ok := r.cache.Load(t); ok {
			return v, nil
		}
		c, err := r.build(t)
		e := &reflectiveEntry{class: c, err: err}
		r.cache.Store(t, e)
		return e, nil
	})
	e := v.(*reflectiveEntry)
	return e.class, e.err
}

func (r *Reflective) build(t reflect.Type) (*Class, error) {
	const op = "introspect.Reflective"
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fault.Declaration(op, "class %v is not a struct type", t)
	}

	b := &classBuilder{class: &Class{Type: t}}
	zero := reflect.New(t).Interface()

	if th, ok := zero.(TypeHooker); ok {
		for _, tag := range th.HookTypes() {
			b.addType(tag)
		}
	}

	r.walkFields(b, t, nil)

	if mh, ok := zero.(MethodHooker); ok {
		for _, h := range mh.HookMethods() {
			b.addMethod(h.Method, h.Markers)
		}
	}
	if sh, ok := zero.(StaticHooker); ok {
		for _, h := range sh.HookStatics() {
			b.addStatic(h)
		}
	}

	if b.err != nil {
		return nil, b.err
	}
	return b.class, nil
}

func (r *Reflective) walkFields(b *classBuilder, t reflect.Type, prefix []int) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		tag, tagged := sf.Tag.Lookup(r.tagKey)
		if sf.Anonymous && !tagged && sf.Type.Kind() == reflect.Struct {
			r.walkFields(b, sf.Type, index)
			continue
		}
		if !tagged {
			continue
		}
		sf.Index = index
		b.addField(sf, tag)
	}
}

// structType unwraps pointers.
func structType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// classBuilder accumulates annotations and the first error.
type classBuilder struct {
	class *Class
	err   error
}

func (b *classBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *classBuilder) add(m *Member, tag string) {
	if b.err != nil {
		return
	}
	markers, err := ParseMarkers(tag)
	if err != nil {
		b.fail(fault.Declaration("introspect", "%s: %v", m, err))
		return
	}
	if len(markers) == 0 {
		return
	}
	m.Position = len(b.class.Annotations)
	b.class.Annotations = append(b.class.Annotations, Annotation{Member: m, Markers: markers})
}

func (b *classBuilder) addType(tag string) {
	t := b.class.Type
	b.add(&Member{Kind: TypeKind, Owner: t, Name: ShortName(t), Type: t, Exported: true}, tag)
}

func (b *classBuilder) addField(sf reflect.StructField, tag string) {
	final := false
	for _, flag := range strings.Split(sf.Tag.Get(MemberTagKey), ",") {
		if strings.TrimSpace(flag) == "final" {
			final = true
		}
	}
	b.add(&Member{
		Kind:     FieldKind,
		Owner:    b.class.Type,
		Name:     sf.Name,
		Type:     sf.Type,
		Index:    sf.Index,
		Final:    final,
		Exported: sf.IsExported(),
	}, tag)
}

func (b *classBuilder) addMethod(name, tag string) {
	t := b.class.Type
	m := &Member{Kind: MethodKind, Owner: t, Name: name, Final: true}
	if !token.IsExported(name) {
		// Unexported methods are invisible to reflect. The member is kept so
		// that a scan matching it reports access denied instead of skipping it.
		b.add(m, tag)
		return
	}
	bound := reflect.New(t).MethodByName(name)
	if !bound.IsValid() {
		b.fail(fault.Declaration("introspect", "%s has no method %s", ShortName(t), name))
		return
	}
	m.Type = bound.Type()
	m.Exported = true
	b.add(m, tag)
}

func (b *classBuilder) addStatic(h StaticHook) {
	t := b.class.Type
	if h.Name == "" {
		b.fail(fault.Declaration("introspect", "%s declares a static hook without a name", ShortName(t)))
		return
	}
	v := reflect.ValueOf(h.Target)
	m := &Member{Owner: t, Name: h.Name, Static: true, Exported: true}
	switch {
	case v.Kind() == reflect.Pointer && !v.IsNil():
		m.Kind = FieldKind
		m.Type = v.Elem().Type()
		m.Final = h.Final
		m.static = v.Elem()
	case v.Kind() == reflect.Func && !v.IsNil():
		m.Kind = MethodKind
		m.Type = v.Type()
		m.Final = true
		m.static = v
	default:
		b.fail(fault.Declaration("introspect", "static hook %s.%s must target a non-nil pointer or function, got %T", ShortName(t), h.Name, h.Target))
		return
	}
	b.add(m, h.Markers)
}
