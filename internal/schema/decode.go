package schema

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/pagecache/internal/page"
)

// DecodeAttributes converts a plain JSON object into typed attributes using
// the schema's field kinds. Times are RFC 3339 strings, refs are URI strings
// and blobs are base64. Floats and nulls are rejected.
func DecodeAttributes(s Schema, data []byte) (page.Attributes, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, page.WrapError(page.ErrCodeFormat, "", "decode attributes", err)
	}
	return ConvertAttributes(s, raw)
}

// ConvertAttributes converts generically decoded values (JSON with UseNumber,
// or YAML) into typed attributes.
func ConvertAttributes(s Schema, raw map[string]any) (page.Attributes, error) {
	attrs := make(page.Attributes, len(raw))
	for name, v := range raw {
		f, ok := s.Field(name)
		if !ok {
			return nil, page.NewError(page.ErrCodeInvalidAttributes, "", "type %s has no field %q", s.Type, name)
		}
		val, err := ConvertValue(f.Kind, v)
		if err != nil {
			return nil, page.WrapError(page.ErrCodeInvalidAttributes, "", fmt.Sprintf("field %q", name), err)
		}
		attrs[name] = val
	}
	return attrs, nil
}

// ConvertValue converts one generic value into an attribute of kind.
func ConvertValue(kind page.Kind, v any) (page.Value, error) {
	if v == nil {
		return nil, fmt.Errorf("null is not a valid %s", kind)
	}
	switch kind {
	case page.KindList:
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", v)
		}
		return convertList(items)
	case page.KindInt:
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		return page.Int(n), nil
	case page.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return page.Bool(b), nil
	}

	if t, ok := v.(time.Time); ok && kind == page.KindTime {
		return page.NewTime(t), nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected %s as string, got %T", kind, v)
	}
	return ParseLiteral(kind, s)
}

// ParseLiteral parses the text form of a value of kind. It is the form used
// by command-line predicates: ints in decimal, bools as true/false, times as
// RFC 3339, refs as URIs and blobs as base64.
func ParseLiteral(kind page.Kind, s string) (page.Value, error) {
	switch kind {
	case page.KindString:
		return page.String(s), nil
	case page.KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q", s)
		}
		return page.Int(n), nil
	case page.KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", s)
		}
		return page.Bool(b), nil
	case page.KindTime:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid time %q: %w", s, err)
		}
		return page.NewTime(t), nil
	case page.KindRef:
		u, err := page.Parse(s)
		if err != nil {
			return nil, err
		}
		return page.Ref(u), nil
	case page.KindBlob:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 blob: %w", err)
		}
		return page.Blob(b), nil
	case page.KindList:
		var items []any
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("invalid list %q: %w", s, err)
		}
		return convertList(items)
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

// convertList infers element kinds: strings, ints, bools and nested lists.
func convertList(items []any) (page.List, error) {
	list := make(page.List, len(items))
	for i, item := range items {
		var (
			v   page.Value
			err error
		)
		switch x := item.(type) {
		case string:
			v = page.String(x)
		case bool:
			v = page.Bool(x)
		case []any:
			v, err = convertList(x)
		default:
			var n int64
			n, err = toInt(item)
			v = page.Int(n)
		}
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		list[i] = v
	}
	return list, nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("floats are forbidden: %s", n)
		}
		return i, nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		if n > 1<<63-1 {
			return 0, fmt.Errorf("int out of range: %d", n)
		}
		return int64(n), nil
	case float64:
		return 0, fmt.Errorf("floats are forbidden: %v", n)
	default:
		return 0, fmt.Errorf("expected int, got %T", v)
	}
}
