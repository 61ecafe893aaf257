package resolver

import (
	"encoding/json"
	"time"

	"github.com/meenmo/fxstruct/schema"
)

// CanonicalArgs is the resolved, read-only view of one input batch.
// Keys are lower-cased; declared display names are kept for messages.
type CanonicalArgs struct {
	keys    []string
	values  []any
	byKey   map[string]any
	raw     map[string]any
	rawKeys []string
	display map[string]string
}

func newCanonical(p *pairs) CanonicalArgs {
	a := CanonicalArgs{
		byKey:   make(map[string]any),
		raw:     make(map[string]any, len(p.list)),
		rawKeys: make([]string, 0, len(p.list)),
		display: make(map[string]string, len(p.list)),
	}
	for _, kv := range p.list {
		a.raw[kv.key] = kv.raw
		a.rawKeys = append(a.rawKeys, kv.key)
		a.display[kv.key] = kv.display
	}
	return a
}

func (a *CanonicalArgs) put(f schema.FieldSpec, v any) {
	k := f.Key()
	a.keys = append(a.keys, k)
	a.values = append(a.values, v)
	a.byKey[k] = v
	if _, ok := a.display[k]; !ok {
		a.display[k] = f.Name
	}
}

// Keys returns the resolved field keys in layout order.
func (a CanonicalArgs) Keys() []string { return append([]string(nil), a.keys...) }

// Values returns the resolved values in layout order.
func (a CanonicalArgs) Values() []any { return append([]any(nil), a.values...) }

// Len is the number of resolved fields.
func (a CanonicalArgs) Len() int { return len(a.keys) }

// Get returns a resolved value.
func (a CanonicalArgs) Get(name string) (any, bool) {
	v, ok := a.byKey[schema.NormalizeKey(name)]
	return v, ok && v != nil
}

// Raw returns an input value whether or not a layout declared it.
func (a CanonicalArgs) Raw(name string) (any, bool) {
	v, ok := a.raw[schema.NormalizeKey(name)]
	return v, ok
}

// RawKeys lists every input key in first-seen order.
func (a CanonicalArgs) RawKeys() []string { return append([]string(nil), a.rawKeys...) }

// RawMap copies the raw input map.
func (a CanonicalArgs) RawMap() map[string]any {
	out := make(map[string]any, len(a.raw))
	for k, v := range a.raw {
		out[k] = v
	}
	return out
}

// Display returns the name as the user (or the layout) spelled it.
func (a CanonicalArgs) Display(name string) string {
	if d, ok := a.display[schema.NormalizeKey(name)]; ok {
		return d
	}
	return name
}

func (a CanonicalArgs) Float(name string) (float64, bool) {
	v, ok := a.Get(name)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func (a CanonicalArgs) Int(name string) (int, bool) {
	v, ok := a.Get(name)
	if !ok {
		return 0, false
	}
	i, ok := v.(int)
	return i, ok
}

func (a CanonicalArgs) Text(name string) (string, bool) {
	v, ok := a.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (a CanonicalArgs) Bool(name string) (bool, bool) {
	v, ok := a.Get(name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (a CanonicalArgs) Date(name string) (time.Time, bool) {
	v, ok := a.Get(name)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// RawFloat reads an undeclared input as a number. Strings are parsed.
func (a CanonicalArgs) RawFloat(name string) (float64, bool) {
	v, ok := a.Raw(name)
	if !ok {
		return 0, false
	}
	f, err := toFloat(unwrapSingle(v))
	return f, err == nil
}

// MarshalJSON renders the resolved fields keyed by display name.
func (a CanonicalArgs) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.keys))
	for i, k := range a.keys {
		v := a.values[i]
		if t, ok := v.(time.Time); ok {
			v = t.Format("2006-01-02")
		}
		out[a.Display(k)] = v
	}
	return json.Marshal(out)
}
