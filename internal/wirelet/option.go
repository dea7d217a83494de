package wirelet

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/hookwire/internal/fault"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Option is a keyed value for an extension, typically read from an assembly
// file.
type Option struct {
	Extension string
	Key       string
	Value     cty.Value
}

// Target implements Wirelet.
func (o Option) Target() string { return o.Extension }

// String renders the option as "extension.key".
func (o Option) String() string { return o.Extension + "." + o.Key }

// Options returns the options of p by key. When a key repeats the last one
// wins.
func Options(p *Pipeline) map[string]cty.Value {
	out := make(map[string]cty.Value)
	for _, o := range Select[Option](p) {
		out[o.Key] = o.Value
	}
	return out
}

// Decode stores the options of p in the fields of target, a pointer to a
// struct whose fields carry `cty:"key"` tags. Fields without an option keep
// their value. An option with no matching field is a declaration error.
func Decode(p *Pipeline, target any) error {
	const op = "wirelet.Decode"
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fault.Declaration(op, "decode target must be a non-nil pointer to a struct, got %T", target)
	}
	rv = rv.Elem()

	fields := make(map[string]int)
	for i := 0; i < rv.NumField(); i++ {
		sf := rv.Type().Field(i)
		tag := strings.Split(sf.Tag.Get("cty"), ",")[0]
		if tag != "" && tag != "-" && sf.IsExported() {
			fields[tag] = i
		}
	}

	opts := Options(p)
	keys := make([]string, 0, len(opts))
	for key := range opts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var problems []string
	for _, key := range keys {
		val := opts[key]
		i, ok := fields[key]
		if !ok {
			problems = append(problems, fmt.Sprintf("unsupported option %q for %s", key, p.Target()))
			continue
		}
		if err := decodeField(val, rv.Field(i)); err != nil {
			problems = append(problems, fmt.Sprintf("option %q for %s: %v", key, p.Target(), err))
		}
	}
	return fault.Join(op, "cannot decode wirelets", problems)
}

func decodeField(val cty.Value, field reflect.Value) error {
	want, err := gocty.ImpliedType(field.Addr().Interface())
	if err != nil {
		return err
	}
	conv, err := convert.Convert(val, want)
	if err != nil {
		return err
	}
	return gocty.FromCtyValue(conv, field.Addr().Interface())
}
