package metadata

import (
	"reflect"
	"sort"
	"strings"
)

// Schema is the set of metadata keys a caller may filter on. Keys outside
// the schema are dropped before a filter reaches the index.
type Schema map[string]struct{}

// NewSchema builds a schema from a list of keys.
func NewSchema(keys ...string) Schema {
	s := make(Schema, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		s[k] = struct{}{}
	}
	return s
}

// Allows reports whether key is part of the schema.
func (s Schema) Allows(key string) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the schema keys in sorted order.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a new schema containing the keys of both operands.
func (s Schema) Merge(other Schema) Schema {
	out := make(Schema, len(s)+len(other))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// SchemaFromStruct derives a schema from the `meta` tags of a struct
// type. Fields without a tag, or tagged "-", do not contribute. Embedded
// structs are flattened.
//
//	type Record struct {
//	    UserID   string `meta:"user_id"`
//	    Internal string `meta:"-"`
//	}
func SchemaFromStruct(v any) Schema {
	s := Schema{}
	t := reflect.TypeOf(v)
	if t == nil {
		return s
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return s
	}
	collectSchema(t, s)
	return s
}

func collectSchema(t reflect.Type, s Schema) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collectSchema(ft, s)
			}
			continue
		}
		if f.PkgPath != "" {
			continue
		}
		tag := f.Tag.Get("meta")
		if tag == "" || tag == "-" {
			continue
		}
		if idx := strings.IndexByte(tag, ','); idx >= 0 {
			tag = tag[:idx]
		}
		if tag != "" {
			s[tag] = struct{}{}
		}
	}
}
