package schema

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/pagecache/internal/page"
)

// fieldNamePattern restricts field names to identifiers so each maps to a
// fixed column name.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedFields name the key fields every page has.
var reservedFields = []string{"root", "id", "version", "parent"}

// Field declares one attribute of a page type.
type Field struct {
	Name     string    `json:"name" yaml:"name"`
	Kind     page.Kind `json:"kind" yaml:"kind"`
	Optional bool      `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Column returns the storage column for the field.
func (f Field) Column() string {
	return "f_" + f.Name
}

// Schema is the registered attribute layout of one page type.
//
// Fields fix the storage layout. InvalidWhen is a declarative invalidation
// rule: a page is invalid when every listed attribute equals the given value.
type Schema struct {
	Type        string          `json:"type"`
	Fields      []Field         `json:"fields"`
	InvalidWhen page.Attributes `json:"invalid_when,omitempty"`
}

// Field returns the named field.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// SortedFields returns fields ordered by name.
func (s Schema) SortedFields() []Field {
	fields := slices.Clone(s.Fields)
	slices.SortFunc(fields, func(a, b Field) int { return strings.Compare(a.Name, b.Name) })
	return fields
}

// Signature is the canonical description of the storage layout. Two schemas
// are compatible exactly when their signatures match; field order and
// InvalidWhen do not participate.
func (s Schema) Signature() string {
	var b strings.Builder
	b.WriteString(s.Type)
	b.WriteByte('{')
	for i, f := range s.SortedFields() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name)
		if f.Optional {
			b.WriteByte('?')
		}
		b.WriteByte(':')
		b.WriteString(string(f.Kind))
	}
	b.WriteByte('}')
	return b.String()
}

// Check validates the schema declaration itself.
func (s Schema) Check() error {
	probe := page.URI{Type: s.Type, ID: "x"}
	if err := probe.Validate(); err != nil {
		return page.NewError(page.ErrCodeFormat, "", "invalid type name %q", s.Type)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if !fieldNamePattern.MatchString(f.Name) {
			return page.NewError(page.ErrCodeFormat, "", "type %s: invalid field name %q", s.Type, f.Name)
		}
		if slices.Contains(reservedFields, f.Name) {
			return page.NewError(page.ErrCodeFormat, "", "type %s: field name %q is reserved", s.Type, f.Name)
		}
		if seen[f.Name] {
			return page.NewError(page.ErrCodeFormat, "", "type %s: duplicate field %q", s.Type, f.Name)
		}
		seen[f.Name] = true
		if _, err := page.ParseKind(string(f.Kind)); err != nil {
			return page.NewError(page.ErrCodeFormat, "", "type %s: field %s: %v", s.Type, f.Name, err)
		}
	}
	for name, v := range s.InvalidWhen {
		f, ok := s.Field(name)
		if !ok {
			return page.NewError(page.ErrCodeFormat, "", "type %s: invalid_when names unknown field %q", s.Type, name)
		}
		if v == nil || v.Kind() != f.Kind {
			return page.NewError(page.ErrCodeFormat, "", "type %s: invalid_when.%s must be %s", s.Type, name, f.Kind)
		}
	}
	return nil
}

// Validate checks a page's attributes against the schema. It reports
// ErrCodeInvalidAttributes for unknown fields, kind mismatches and missing
// required fields.
func (s Schema) Validate(p page.Page) error {
	uri := p.URI.String()
	if p.URI.Type != s.Type {
		return page.NewError(page.ErrCodeInvalidAttributes, uri, "page type %s does not match schema %s", p.URI.Type, s.Type)
	}
	for _, name := range p.Attributes.SortedKeys() {
		v := p.Attributes[name]
		f, ok := s.Field(name)
		if !ok {
			return page.NewError(page.ErrCodeInvalidAttributes, uri, "unknown attribute %q", name)
		}
		if v == nil {
			return page.NewError(page.ErrCodeInvalidAttributes, uri, "attribute %q is nil", name)
		}
		if v.Kind() != f.Kind {
			return page.NewError(page.ErrCodeInvalidAttributes, uri, "attribute %q: got %s, want %s", name, v.Kind(), f.Kind)
		}
		if ref, ok := v.(page.Ref); ok {
			if err := ref.URI().Validate(); err != nil {
				return page.WrapError(page.ErrCodeInvalidAttributes, uri, fmt.Sprintf("attribute %q", name), err)
			}
		}
	}
	for _, f := range s.Fields {
		if f.Optional {
			continue
		}
		if _, ok := p.Attributes[f.Name]; !ok {
			return page.NewError(page.ErrCodeInvalidAttributes, uri, "missing required attribute %q", f.Name)
		}
	}
	return nil
}

// Invalidates reports whether p satisfies the InvalidWhen rule. A schema
// without a rule never invalidates.
func (s Schema) Invalidates(p page.Page) bool {
	if len(s.InvalidWhen) == 0 {
		return false
	}
	for name, want := range s.InvalidWhen {
		got, ok := p.Attributes[name]
		if !ok || !page.Equal(got, want) {
			return false
		}
	}
	return true
}
