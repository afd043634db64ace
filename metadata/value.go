package metadata

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unique"

	"github.com/vantageinsurance/knowbase/codec"
)

// Kind discriminates the dynamic type stored in a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNull
	KindInt
	KindFloat
	KindString
	KindBool
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Value is a compact tagged union for chunk metadata. Strings are interned
// so that repeated values (source names, section types) share storage
// across large collections.
//
// Values marshal to their natural JSON form: Int(3) is `3`, String("a")
// is `"a"`. Nested objects are not representable.
type Value struct {
	kind Kind
	i64  int64
	f64  float64
	s    unique.Handle[string]
	b    bool
	a    []Value
}

// Null returns the JSON null value.
func Null() Value { return Value{kind: KindNull} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i64: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f64: f} }

// String returns an interned string value.
func String(s string) Value { return Value{kind: KindString, s: unique.Make(s)} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Array returns an array value. The slice is retained, not copied.
func Array(vals []Value) Value { return Value{kind: KindArray, a: vals} }

// FromAny converts a dynamically typed value, such as one decoded from a
// JSON request body, into a Value. Maps are rejected.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float32:
		return fromFloat(float64(t)), nil
	case float64:
		return fromFloat(t), nil
	case []any:
		arr := make([]Value, 0, len(t))
		for _, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			arr = append(arr, ev)
		}
		return Array(arr), nil
	case []string:
		arr := make([]Value, 0, len(t))
		for _, e := range t {
			arr = append(arr, String(e))
		}
		return Array(arr), nil
	default:
		return Value{}, fmt.Errorf("metadata: unsupported value type %T", v)
	}
}

// fromFloat collapses integral floats back to KindInt so that JSON
// round-trips keep 3 as an int rather than 3.0.
func fromFloat(f float64) Value {
	if f == float64(int64(f)) {
		return Int(int64(f))
	}
	return Float(f)
}

// Kind reports the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IntValue returns the integer payload. Valid only for KindInt.
func (v Value) IntValue() int64 { return v.i64 }

// FloatValue returns the float payload. Valid only for KindFloat.
func (v Value) FloatValue() float64 { return v.f64 }

// StringValue returns the string payload. Valid only for KindString.
func (v Value) StringValue() string { return v.s.Value() }

// BoolValue returns the boolean payload. Valid only for KindBool.
func (v Value) BoolValue() bool { return v.b }

// ArrayValue returns the array payload. Valid only for KindArray.
func (v Value) ArrayValue() []Value { return v.a }

// Text renders v in its canonical comparison form. Filters compare
// against this form, so Int(3), Float(3) and String("3") all match the
// literal "3". Null renders as the empty string, which makes a filter on
// the empty string match both explicit nulls and absent keys.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindInt:
		return strconv.FormatInt(v.i64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case KindString:
		return v.s.Value()
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindArray:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.a {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(e.Text())
		}
		sb.WriteByte(']')
		return sb.String()
	default:
		return ""
	}
}

// Equal reports whether two values are equal under canonical comparison.
func (v Value) Equal(other Value) bool {
	return v.Text() == other.Text()
}

// MarshalJSON renders the natural JSON form of the payload.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInt:
		return strconv.AppendInt(nil, v.i64, 10), nil
	case KindFloat:
		return codec.Default.Marshal(v.f64)
	case KindString:
		return codec.Default.Marshal(v.s.Value())
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindArray:
		return codec.Default.Marshal(v.a)
	default:
		return nil, fmt.Errorf("metadata: cannot marshal invalid value")
	}
}

// UnmarshalJSON sniffs the payload type from the document text.
func (v *Value) UnmarshalJSON(data []byte) error {
	t := bytes.TrimSpace(data)
	if len(t) == 0 {
		return fmt.Errorf("metadata: empty value")
	}
	switch t[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := codec.Default.Unmarshal(t, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := codec.Default.Unmarshal(t, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '[':
		var a []Value
		if err := codec.Default.Unmarshal(t, &a); err != nil {
			return err
		}
		*v = Array(a)
		return nil
	case '{':
		return fmt.Errorf("metadata: nested objects are not supported")
	default:
		if i, err := strconv.ParseInt(string(t), 10, 64); err == nil {
			*v = Int(i)
			return nil
		}
		var f float64
		if err := codec.Default.Unmarshal(t, &f); err != nil {
			return err
		}
		*v = Float(f)
		return nil
	}
}

// Document is the metadata attached to a single chunk.
type Document map[string]Value

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Text returns the canonical form of the value stored under key, or the
// empty string when the key is absent.
func (d Document) Text(key string) string {
	v, ok := d[key]
	if !ok {
		return ""
	}
	return v.Text()
}

// Has reports whether key is present in the document.
func (d Document) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// FromStringMap builds a Document of string values.
func FromStringMap(m map[string]string) Document {
	if m == nil {
		return nil
	}
	out := make(Document, len(m))
	for k, v := range m {
		out[k] = String(v)
	}
	return out
}

// FromAnyMap converts a decoded JSON object into a Document.
func FromAnyMap(m map[string]any) (Document, error) {
	if m == nil {
		return nil, nil
	}
	out := make(Document, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("metadata: key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
