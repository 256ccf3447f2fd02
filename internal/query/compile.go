package query

import (
	"fmt"
	"strings"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/schema"
)

// Key columns present in every page table.
const (
	ColRoot     = "root"
	ColID       = "id"
	ColVersion  = "version"
	ColParent   = "parent_uri"
	ColValid    = "valid"
	ColChecksum = "checksum"
)

// keyFields maps the predicate names of key fields to their columns.
var keyFields = map[string]schema.Field{
	"root":    {Name: ColRoot, Kind: page.KindString},
	"id":      {Name: ColID, Kind: page.KindString},
	"version": {Name: ColVersion, Kind: page.KindInt},
	"parent":  {Name: ColParent, Kind: page.KindRef, Optional: true},
}

// OrderBy is the deterministic row order used by every page query.
const OrderBy = "root COLLATE BINARY ASC, id COLLATE BINARY ASC, version ASC"

// Select describes a query over one page table.
type Select struct {
	Table     string   // unquoted table name
	Columns   []string // unquoted column names
	Filter    Predicate
	ValidOnly bool
}

// Statement is a compiled query.
//
// SQL is fully parameterized. Post holds glob matchers that must also accept
// a decoded page for it to be part of the result.
type Statement struct {
	SQL  string
	Args []any
	Post []Matcher
}

// Accepts reports whether p passes every post-filter.
func (s *Statement) Accepts(p page.Page) bool {
	for _, m := range s.Post {
		if !m.Matches(p) {
			return false
		}
	}
	return true
}

// SQLCompiler compiles predicates over one schema to SQLite SQL.
//
// Every statement carries ORDER BY with a binary collation so results are
// deterministic. Values are always bound as parameters, never interpolated.
type SQLCompiler struct {
	schema schema.Schema
}

// NewSQLCompiler creates a compiler for pages of schema s.
func NewSQLCompiler(s schema.Schema) *SQLCompiler {
	return &SQLCompiler{schema: s}
}

// Compile converts a Select into a statement.
func (c *SQLCompiler) Compile(sel Select) (*Statement, error) {
	if sel.Table == "" {
		return nil, fmt.Errorf("compile: empty table name")
	}
	cols := make([]string, len(sel.Columns))
	for i, col := range sel.Columns {
		cols[i] = QuoteIdent(col)
	}
	selectClause := "*"
	if len(cols) > 0 {
		selectClause = strings.Join(cols, ", ")
	}

	sqlFilter, post, err := splitPost(sel.Filter)
	if err != nil {
		return nil, err
	}

	var conds []string
	var args []any
	if sel.ValidOnly {
		conds = append(conds, ColValid+" = 1")
	}
	if sqlFilter != nil {
		where, whereArgs, err := c.compilePredicate(sqlFilter)
		if err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
		conds = append(conds, where)
		args = whereArgs
	}

	matchers := make([]Matcher, 0, len(post))
	for _, m := range post {
		matcher, err := c.compileMatch(m)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, matcher)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", selectClause, QuoteIdent(sel.Table))
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(OrderBy)

	if args == nil {
		args = []any{}
	}
	return &Statement{SQL: b.String(), Args: args, Post: matchers}, nil
}

// splitPost separates glob matches from the SQL-compilable part of p.
func splitPost(p Predicate) (Predicate, []Match, error) {
	switch pred := p.(type) {
	case nil:
		return nil, nil, nil
	case Match:
		return nil, []Match{pred}, nil
	case And:
		var rest []Predicate
		var post []Match
		for _, child := range pred.Predicates {
			if m, ok := child.(Match); ok {
				post = append(post, m)
				continue
			}
			if err := rejectNestedMatch(child); err != nil {
				return nil, nil, err
			}
			rest = append(rest, child)
		}
		if len(rest) == 0 {
			return nil, post, nil
		}
		return And{Predicates: rest}, post, nil
	default:
		if err := rejectNestedMatch(p); err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	}
}

func rejectNestedMatch(p Predicate) error {
	switch pred := p.(type) {
	case Match:
		return invalid("glob match on %q must be a top-level conjunct", pred.Field)
	case And:
		for _, child := range pred.Predicates {
			if err := rejectNestedMatch(child); err != nil {
				return err
			}
		}
	case Or:
		for _, child := range pred.Predicates {
			if err := rejectNestedMatch(child); err != nil {
				return err
			}
		}
	case Not:
		return rejectNestedMatch(pred.Predicate)
	}
	return nil
}

// compilePredicate returns an SQL boolean expression and its parameters.
func (c *SQLCompiler) compilePredicate(p Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case Compare:
		return c.compileCompare(pred)
	case Like:
		f, err := c.textField(pred.Field)
		if err != nil {
			return "", nil, err
		}
		return QuoteIdent(f.Name) + " LIKE ?", []any{pred.Pattern}, nil
	case IsNull:
		f, err := c.field(pred.Field)
		if err != nil {
			return "", nil, err
		}
		if !f.Optional {
			return "", nil, invalid("field %q is required and never null", pred.Field)
		}
		return QuoteIdent(f.Name) + " IS NULL", []any{}, nil
	case And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1")
	case Or:
		return c.compileJunction(pred.Predicates, " OR ", "1 = 0")
	case Not:
		if pred.Predicate == nil {
			return "", nil, invalid("Not requires a predicate")
		}
		inner, args, err := c.compilePredicate(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		// Absent optional fields compare as NULL; treat that as false
		// before negating.
		return "NOT COALESCE((" + inner + "), 0)", args, nil
	case Match:
		return "", nil, invalid("glob match on %q must be a top-level conjunct", pred.Field)
	case nil:
		return "1 = 1", []any{}, nil
	default:
		return "", nil, invalid("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileJunction(preds []Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, []any{}, nil
	}
	parts := make([]string, 0, len(preds))
	args := []any{}
	for _, p := range preds {
		sql, pargs, err := c.compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		args = append(args, pargs...)
	}
	return strings.Join(parts, sep), args, nil
}

func (c *SQLCompiler) compileCompare(cmp Compare) (string, []any, error) {
	f, err := c.field(cmp.Field)
	if err != nil {
		return "", nil, err
	}
	switch cmp.Op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
	default:
		return "", nil, invalid("unknown operator %q", cmp.Op)
	}
	if cmp.Value == nil {
		return "", nil, invalid("comparison on %q needs a value; use IsNull", cmp.Field)
	}
	if cmp.Value.Kind() != f.Kind {
		return "", nil, invalid("field %q is %s, got %s value", cmp.Field, f.Kind, cmp.Value.Kind())
	}
	if f.Kind == page.KindList && cmp.Op != OpEq && cmp.Op != OpNe {
		return "", nil, invalid("list field %q supports only = and <>", cmp.Field)
	}
	param, err := Param(cmp.Value)
	if err != nil {
		return "", nil, invalid("field %q: %v", cmp.Field, err)
	}
	return fmt.Sprintf("%s %s ?", QuoteIdent(f.Name), cmp.Op), []any{param}, nil
}

// field resolves a predicate field name to its column and kind.
func (c *SQLCompiler) field(name string) (schema.Field, error) {
	if f, ok := keyFields[name]; ok {
		return f, nil
	}
	f, ok := c.schema.Field(name)
	if !ok {
		return schema.Field{}, invalid("type %s has no field %q", c.schema.Type, name)
	}
	return schema.Field{Name: f.Column(), Kind: f.Kind, Optional: f.Optional}, nil
}

func (c *SQLCompiler) textField(name string) (schema.Field, error) {
	f, err := c.field(name)
	if err != nil {
		return f, err
	}
	if f.Kind != page.KindString && f.Kind != page.KindRef {
		return f, invalid("field %q is %s, pattern matching needs text", name, f.Kind)
	}
	return f, nil
}

// Param converts a scalar value to the SQLite representation used in page
// tables: bools as 0/1, times as Unix nanoseconds, refs as canonical URI
// text and lists as canonical JSON. Blobs are not comparable.
func Param(v page.Value) (any, error) {
	switch val := v.(type) {
	case page.String:
		return string(val), nil
	case page.Int:
		return int64(val), nil
	case page.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case page.Time:
		return val.UnixNano(), nil
	case page.Ref:
		return val.URI().String(), nil
	case page.List:
		b, err := page.MarshalCanonical(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case page.Blob:
		return nil, fmt.Errorf("blob values cannot be compared")
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}

// QuoteIdent quotes an SQLite identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func invalid(format string, args ...any) error {
	return page.NewError(page.ErrCodeFormat, "", "invalid predicate: "+format, args...)
}
