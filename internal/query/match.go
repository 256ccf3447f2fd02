package query

import (
	"github.com/gobwas/glob"

	"github.com/roach88/pagecache/internal/page"
)

// Matcher is a compiled glob post-filter.
type Matcher struct {
	field string
	key   bool
	glob  glob.Glob
}

// Matches reports whether p's field text matches the glob. Absent fields
// never match.
func (m Matcher) Matches(p page.Page) bool {
	text, ok := m.text(p)
	return ok && m.glob.Match(text)
}

func (m Matcher) text(p page.Page) (string, bool) {
	if m.key {
		switch m.field {
		case "root":
			return p.URI.Root, true
		case "id":
			return p.URI.ID, true
		case "parent":
			if p.Parent == nil {
				return "", false
			}
			return p.Parent.String(), true
		}
		return "", false
	}
	switch v := p.Attributes[m.field].(type) {
	case page.String:
		return string(v), true
	case page.Ref:
		return v.URI().String(), true
	}
	return "", false
}

func (c *SQLCompiler) compileMatch(m Match) (Matcher, error) {
	if _, err := c.textField(m.Field); err != nil {
		return Matcher{}, err
	}
	// In URI-shaped text '*' does not cross '/'.
	var separators []rune
	if m.Field == "parent" || m.Field == "id" {
		separators = []rune{'/'}
	}
	if f, ok := c.schema.Field(m.Field); ok && f.Kind == page.KindRef {
		separators = []rune{'/'}
	}
	g, err := glob.Compile(m.Pattern, separators...)
	if err != nil {
		return Matcher{}, invalid("glob %q: %v", m.Pattern, err)
	}
	_, key := keyFields[m.Field]
	return Matcher{field: m.Field, key: key, glob: g}, nil
}
