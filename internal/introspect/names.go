package introspect

import (
	"fmt"
	"path"
	"reflect"
	"sync"
)

// names caches canonical and short names by type.
var names sync.Map // key: reflect.Type, val: typeNames

type typeNames struct {
	full  string
	short string
}

// CanonicalName returns the full, stable name of t: the import path of its
// package followed by the type name, e.g. "github.com/acme/ext/logging.Extension".
// Pointers are unwrapped. Generic instantiations keep their type arguments,
// e.g. "github.com/acme/ext/cache.Extension[string]", so that each
// instantiation names a distinct extension.
func CanonicalName(t reflect.Type) string {
	return namesOf(t).full
}

// ShortName returns the last package path element followed by the type name,
// e.g. "logging.Extension".
func ShortName(t reflect.Type) string {
	return namesOf(t).short
}

// TypeKey returns a string that is unique per reflect.Type for the lifetime of
// the process. It is used as a singleflight key.
func TypeKey(t reflect.Type) string {
	return fmt.Sprintf("%p", t)
}

func namesOf(t reflect.Type) typeNames {
	if t == nil {
		return typeNames{full: "<nil>", short: "<nil>"}
	}
	if v, ok := names.Load(t); ok {
		return v.(typeNames)
	}

	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}

	name := base.Name()
	if name == "" {
		name = base.String()
	}
	n := typeNames{full: name, short: name}
	if p := base.PkgPath(); p != "" {
		n.full = p + "." + name
		n.short = path.Base(p) + "." + name
	}

	names.Store(t, n)
	return n
}
