package metadata

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/vantageinsurance/knowbase/codec"
)

// Filter is a predicate over chunk metadata. The three implementations,
// Equals, And and Or, form the whole language: equality on the canonical
// text form of a value, combined with conjunction and disjunction.
//
// The wire form follows the common query-document convention:
//
//	{"source": "handbook.pdf"}
//	{"$and": [{"source": "handbook.pdf"}, {"section_type": "faq"}]}
//	{"$or": [{"category": "billing"}, {"category": "claims"}]}
type Filter interface {
	// Matches reports whether the document satisfies the predicate.
	Matches(d Document) bool

	isFilter()
}

// Equals matches documents whose value under Key renders to Value in
// canonical text form. An empty Value matches explicit nulls, empty
// strings and absent keys alike.
type Equals struct {
	Key   string
	Value string
}

// And matches documents satisfying every child filter. An empty And
// matches everything.
type And struct {
	Filters []Filter
}

// Or matches documents satisfying at least one child filter. An empty Or
// matches nothing.
type Or struct {
	Filters []Filter
}

func (Equals) isFilter() {}
func (And) isFilter()    {}
func (Or) isFilter()     {}

func (f Equals) Matches(d Document) bool {
	return d.Text(f.Key) == f.Value
}

func (f And) Matches(d Document) bool {
	for _, c := range f.Filters {
		if !c.Matches(d) {
			return false
		}
	}
	return true
}

func (f Or) Matches(d Document) bool {
	for _, c := range f.Filters {
		if c.Matches(d) {
			return true
		}
	}
	return false
}

// Eq builds an equality filter.
func Eq(key, value string) Equals {
	return Equals{Key: key, Value: value}
}

// AndOf combines filters into a conjunction. Zero filters yield nil and a
// single filter is returned unwrapped.
func AndOf(filters ...Filter) Filter {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	default:
		return And{Filters: filters}
	}
}

// OrOf combines filters into a disjunction, unwrapping the trivial cases
// like AndOf.
func OrOf(filters ...Filter) Filter {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	default:
		return Or{Filters: filters}
	}
}

func (f Equals) MarshalJSON() ([]byte, error) {
	return codec.Default.Marshal(map[string]string{f.Key: f.Value})
}

func (f And) MarshalJSON() ([]byte, error) {
	return codec.Default.Marshal(map[string][]Filter{"$and": f.Filters})
}

func (f Or) MarshalJSON() ([]byte, error) {
	return codec.Default.Marshal(map[string][]Filter{"$or": f.Filters})
}

// ParseFilter decodes the wire form of a filter. Multiple pairs in one
// object are combined as a conjunction in key order, so the result is
// deterministic regardless of map iteration.
func ParseFilter(data []byte) (Filter, error) {
	t := bytes.TrimSpace(data)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return nil, nil
	}
	var obj map[string]rawMessage
	if err := codec.Default.Unmarshal(t, &obj); err != nil {
		return nil, fmt.Errorf("metadata: malformed filter: %w", err)
	}
	return filterFromRaw(obj)
}

// FilterFromMap builds a filter from a decoded JSON object, such as the
// filters field of a retrieval request.
func FilterFromMap(m map[string]any) (Filter, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := codec.Default.Marshal(m)
	if err != nil {
		return nil, err
	}
	return ParseFilter(data)
}

type rawMessage []byte

func (r *rawMessage) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

func (r rawMessage) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func filterFromRaw(obj map[string]rawMessage) (Filter, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]Filter, 0, len(keys))
	for _, k := range keys {
		raw := obj[k]
		switch k {
		case "$and", "$or":
			var children []rawMessage
			if err := codec.Default.Unmarshal(raw, &children); err != nil {
				return nil, fmt.Errorf("metadata: %s expects an array: %w", k, err)
			}
			sub := make([]Filter, 0, len(children))
			for _, c := range children {
				var childObj map[string]rawMessage
				if err := codec.Default.Unmarshal(c, &childObj); err != nil {
					return nil, fmt.Errorf("metadata: %s element must be an object: %w", k, err)
				}
				cf, err := filterFromRaw(childObj)
				if err != nil {
					return nil, err
				}
				if cf != nil {
					sub = append(sub, cf)
				}
			}
			if k == "$and" {
				parts = append(parts, And{Filters: sub})
			} else {
				parts = append(parts, Or{Filters: sub})
			}
		default:
			var v Value
			if err := codec.Default.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("metadata: key %q: %w", k, err)
			}
			parts = append(parts, Eq(k, v.Text()))
		}
	}
	return AndOf(parts...), nil
}
