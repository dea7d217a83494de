package introspect

import (
	"fmt"
	"sort"
	"strings"
)

// Marker is one hook marker found on a member: a name plus options.
//
// The tag syntax is `name,key=value,flag`; several markers on the same member
// are separated by ';'.
type Marker struct {
	Name string
	Args map[string]string
}

// Arg returns the value of option key.
func (m Marker) Arg(key string) (string, bool) {
	v, ok := m.Args[key]
	return v, ok
}

// Flag reports whether the option key is present, with or without a value.
func (m Marker) Flag(key string) bool {
	_, ok := m.Args[key]
	return ok
}

// String renders the marker back into tag syntax with sorted options.
func (m Marker) String() string {
	if len(m.Args) == 0 {
		return m.Name
	}
	keys := make([]string, 0, len(m.Args))
	for k := range m.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(m.Name)
	for _, k := range keys {
		b.WriteByte(',')
		b.WriteString(k)
		if v := m.Args[k]; v != "" {
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// ParseMarkers parses tag syntax into markers. An empty string yields no markers.
func ParseMarkers(tag string) ([]Marker, error) {
	var out []Marker
	for _, raw := range strings.Split(tag, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ",")
		name := strings.TrimSpace(parts[0])
		if !validMarkerName(name) {
			return nil, fmt.Errorf("invalid marker name %q in %q", name, tag)
		}
		m := Marker{Name: name}
		for _, opt := range parts[1:] {
			opt = strings.TrimSpace(opt)
			if opt == "" {
				continue
			}
			if m.Args == nil {
				m.Args = make(map[string]string)
			}
			k, v, _ := strings.Cut(opt, "=")
			k = strings.TrimSpace(k)
			if k == "" {
				return nil, fmt.Errorf("empty option key in marker %q", raw)
			}
			if _, dup := m.Args[k]; dup {
				return nil, fmt.Errorf("duplicate option %q in marker %q", k, raw)
			}
			m.Args[k] = strings.TrimSpace(v)
		}
		out = append(out, m)
	}
	return out, nil
}

func validMarkerName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '.' || r == '-':
		default:
			return false
		}
	}
	return true
}
