package page

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf16"
	"unicode/utf8"
)

// MarshalCanonical encodes a value as tagged canonical JSON.
//
// Every value becomes a single-key object whose key is its kind, for example
// {"int":5} or {"list":[{"string":"a"}]}. The encoding is deterministic: no
// insignificant whitespace, no HTML escaping, UTC times. It is the form used
// for list columns and row checksums, and decodes back to the same kinds.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalCanonicalAttributes encodes attributes as a canonical object with
// keys in UTF-16 code unit order.
func MarshalCanonicalAttributes(attrs Attributes) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonicalAttributes(&buf, attrs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonicalAttributes(buf *bytes.Buffer, attrs Attributes) error {
	buf.WriteByte('{')
	for i, k := range attrs.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeCanonicalString(buf, k)
		buf.WriteByte(':')
		if err := writeCanonical(buf, attrs[k]); err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	if v == nil {
		return fmt.Errorf("nil value is not encodable")
	}
	buf.WriteString(`{"`)
	buf.WriteString(string(v.Kind()))
	buf.WriteString(`":`)
	switch val := v.(type) {
	case String:
		writeCanonicalString(buf, string(val))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case Time:
		writeCanonicalString(buf, val.UTC().Format(time.RFC3339Nano))
	case Ref:
		writeCanonicalString(buf, URI(val).String())
	case Blob:
		writeCanonicalString(buf, base64.StdEncoding.EncodeToString(val))
	case List:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("unknown value type: %T", v)
	}
	buf.WriteByte('}')
	return nil
}

// writeCanonicalString escapes only quote, backslash and control characters.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	const hex = "0123456789abcdef"
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hex[r>>4])
			buf.WriteByte(hex[r&0xF])
		case r == utf8.RuneError && size == 1:
			buf.WriteString("\ufffd")
		default:
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}

// UnmarshalCanonical decodes a value produced by MarshalCanonical.
func UnmarshalCanonical(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode canonical value: %w", err)
	}
	return decodeTagged(raw)
}

// UnmarshalCanonicalAttributes decodes an object produced by
// MarshalCanonicalAttributes.
func UnmarshalCanonicalAttributes(data []byte) (Attributes, error) {
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode canonical attributes: %w", err)
	}
	attrs := make(Attributes, len(raw))
	for k, tagged := range raw {
		v, err := decodeTagged(tagged)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		attrs[k] = v
	}
	return attrs, nil
}

func decodeTagged(raw map[string]json.RawMessage) (Value, error) {
	if len(raw) != 1 {
		return nil, fmt.Errorf("tagged value must have exactly one key, got %d", len(raw))
	}
	for tag, body := range raw {
		return decodeKind(Kind(tag), body)
	}
	return nil, nil
}

func decodeKind(kind Kind, body json.RawMessage) (Value, error) {
	switch kind {
	case KindString:
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case KindInt:
		n, err := strconv.ParseInt(string(body), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int: %w", err)
		}
		return Int(n), nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case KindTime:
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("time: %w", err)
		}
		return NewTime(t), nil
	case KindRef:
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, err
		}
		u, err := Parse(s)
		if err != nil {
			return nil, err
		}
		return Ref(u), nil
	case KindBlob:
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("blob: %w", err)
		}
		return Blob(b), nil
	case KindList:
		var elems []map[string]json.RawMessage
		if err := json.Unmarshal(body, &elems); err != nil {
			return nil, err
		}
		list := make(List, len(elems))
		for i, e := range elems {
			v, err := decodeTagged(e)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = v
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unknown value tag %q", kind)
	}
}

// compareKeys orders strings by UTF-16 code units, matching RFC 8785.
// Byte-wise UTF-8 order differs for characters outside the BMP.
func compareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
