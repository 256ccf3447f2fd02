package query

import (
	"slices"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/schema"
)

// FieldKind returns the kind of a predicate field over pages of s: one of
// s's attributes or a key field.
func FieldKind(s schema.Schema, name string) (page.Kind, error) {
	if f, ok := keyFields[name]; ok {
		return f.Kind, nil
	}
	f, ok := s.Field(name)
	if !ok {
		return "", invalid("type %s has no field %q", s.Type, name)
	}
	return f.Kind, nil
}

// Filter returns the conjunction of equality comparisons and glob matches,
// each ordered by field name. It returns nil when both are empty.
func Filter(eq map[string]page.Value, globs map[string]string) Predicate {
	if len(eq) == 0 && len(globs) == 0 {
		return nil
	}
	preds := make([]Predicate, 0, len(eq)+len(globs))
	for _, name := range sortedKeys(eq) {
		preds = append(preds, Eq(name, eq[name]))
	}
	for _, name := range sortedKeys(globs) {
		preds = append(preds, Match{Field: name, Pattern: globs[name]})
	}
	return AllOf(preds...)
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
