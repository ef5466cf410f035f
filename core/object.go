package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Object exposes a row or mapping as named attributes. Nested mappings
// become nested Objects, and mappings inside slices are converted too.
type Object struct {
	names  []string
	values map[string]any
}

// NewObject converts m. Attributes are ordered by name.
func NewObject(m map[string]any) *Object {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	o := &Object{names: names, values: make(map[string]any, len(m))}
	for _, k := range names {
		o.values[k] = convertValue(m[k])
	}
	return o
}

// RowObject converts r. Attributes keep column order; with duplicate
// column names the first one wins.
func RowObject(r *Row) *Object {
	o := &Object{values: make(map[string]any, r.Len())}
	for i, col := range r.columns {
		if _, dup := o.values[col]; dup {
			continue
		}
		o.names = append(o.names, col)
		o.values[col] = convertValue(r.values[i])
	}
	return o
}

func convertValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return NewObject(x)
	case *Row:
		return RowObject(x)
	case []map[string]any:
		out := make([]*Object, len(x))
		for i, m := range x {
			out[i] = NewObject(m)
		}
		return out
	case []*Row:
		out := make([]*Object, len(x))
		for i, r := range x {
			out[i] = RowObject(r)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			switch e.(type) {
			case map[string]any, *Row:
				out[i] = convertValue(e)
			default:
				out[i] = e
			}
		}
		return out
	}
	return v
}

// Attr returns the named attribute, or nil.
func (o *Object) Attr(name string) any {
	return o.values[name]
}

// Get returns the named attribute and whether it exists.
func (o *Object) Get(name string) (any, bool) {
	v, ok := o.values[name]
	return v, ok
}

// Has reports whether the attribute exists.
func (o *Object) Has(name string) bool {
	_, ok := o.values[name]
	return ok
}

// Names returns the attribute names in order.
func (o *Object) Names() []string {
	return o.names
}

// Len returns the number of attributes.
func (o *Object) Len() int {
	return len(o.names)
}

// Lookup follows a dotted path through nested objects, e.g. "owner.name".
func (o *Object) Lookup(path string) (any, bool) {
	cur := o
	parts := strings.Split(path, ".")
	for i, p := range parts {
		v, ok := cur.values[p]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if cur, ok = v.(*Object); !ok {
			return nil, false
		}
	}
	return nil, false
}

// Map converts the object back into plain maps and slices.
func (o *Object) Map() map[string]any {
	m := make(map[string]any, len(o.names))
	for _, k := range o.names {
		m[k] = plain(o.values[k])
	}
	return m
}

func plain(v any) any {
	switch x := v.(type) {
	case *Object:
		return x.Map()
	case []*Object:
		out := make([]map[string]any, len(x))
		for i, o := range x {
			out[i] = o.Map()
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	}
	return v
}

// MarshalJSON renders the attributes in order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Object) String() string {
	var sb strings.Builder
	sb.WriteString("Object{")
	for i, k := range o.names {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", k, o.values[k])
	}
	sb.WriteByte('}')
	return sb.String()
}
