package page

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Kind names the storage kind of an attribute value.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
	KindRef    Kind = "ref"
	KindList   Kind = "list"
	KindBlob   Kind = "blob"
)

// Kinds lists every attribute kind in declaration order.
var Kinds = []Kind{KindString, KindInt, KindBool, KindTime, KindRef, KindList, KindBlob}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if slices.Contains(Kinds, k) {
		return k, nil
	}
	return "", fmt.Errorf("unknown attribute kind %q", s)
}

// Value is a sealed interface over the attribute value types.
// There is no float kind; numeric attributes are int64.
type Value interface {
	Kind() Kind
	pageValue()
}

// String is a text attribute.
type String string

// Int is an integer attribute.
type Int int64

// Bool is a boolean attribute.
type Bool bool

// Time is an instant. It is stored with nanosecond precision in UTC.
type Time struct{ time.Time }

// Ref is an attribute that references another page.
type Ref URI

// List is an ordered list of values. Elements may mix kinds.
type List []Value

// Blob is opaque binary content.
type Blob []byte

func (String) pageValue() {}
func (Int) pageValue()    {}
func (Bool) pageValue()   {}
func (Time) pageValue()   {}
func (Ref) pageValue()    {}
func (List) pageValue()   {}
func (Blob) pageValue()   {}

func (String) Kind() Kind { return KindString }
func (Int) Kind() Kind    { return KindInt }
func (Bool) Kind() Kind   { return KindBool }
func (Time) Kind() Kind   { return KindTime }
func (Ref) Kind() Kind    { return KindRef }
func (List) Kind() Kind   { return KindList }
func (Blob) Kind() Kind   { return KindBlob }

// NewTime normalizes t to UTC.
func NewTime(t time.Time) Time {
	return Time{t.UTC()}
}

// URI returns the referenced page URI.
func (r Ref) URI() URI {
	return URI(r)
}

// Equal reports whether two values have the same kind and content.
// Times compare as instants.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case String:
		return av == b.(String)
	case Int:
		return av == b.(Int)
	case Bool:
		return av == b.(Bool)
	case Time:
		return av.Equal(b.(Time).Time)
	case Ref:
		return av == b.(Ref)
	case Blob:
		return bytes.Equal(av, b.(Blob))
	case List:
		bv := b.(List)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Attributes maps field names to values.
type Attributes map[string]Value

// SortedKeys returns attribute names in canonical order.
func (a Attributes) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// MarshalJSON renders attributes as a plain JSON object for display.
// Times use RFC 3339, refs their URI text and blobs base64.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := MarshalPlain(a[k])
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalPlain renders a single value as untagged JSON.
func MarshalPlain(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Time:
		return json.Marshal(val.UTC().Format(time.RFC3339Nano))
	case Ref:
		return json.Marshal(URI(val).String())
	case Blob:
		return json.Marshal(base64.StdEncoding.EncodeToString(val))
	case List:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalPlain(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}
