package query

import "github.com/roach88/pagecache/internal/page"

// Predicate is a filter over the pages of one type.
//
// This is a sealed interface: only types in this package implement it, so
// compilers can switch over every case. A nil Predicate matches every page.
type Predicate interface {
	predicateNode()
}

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "<>"
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Compare compares a field with a literal value.
//
// Field is an attribute name or one of the key fields root, id, version and
// parent. Value must have the field's kind.
type Compare struct {
	Field string
	Op    Op
	Value page.Value
}

// Like matches a text field against an SQL LIKE pattern.
type Like struct {
	Field   string
	Pattern string
}

// IsNull matches pages where an optional field is absent.
type IsNull struct {
	Field string
}

// Match matches a text field against a shell glob (gobwas/glob syntax).
// It is evaluated on decoded pages after the SQL filter, so it may only
// appear at the top level or directly inside a top-level And.
type Match struct {
	Field   string
	Pattern string
}

// And is true when every predicate is true. An empty And is true.
type And struct {
	Predicates []Predicate
}

// Or is true when any predicate is true. An empty Or is false.
type Or struct {
	Predicates []Predicate
}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Compare) predicateNode() {}
func (Like) predicateNode()    {}
func (IsNull) predicateNode()  {}
func (Match) predicateNode()   {}
func (And) predicateNode()     {}
func (Or) predicateNode()      {}
func (Not) predicateNode()     {}

// Eq returns field = v.
func Eq(field string, v page.Value) Compare { return Compare{Field: field, Op: OpEq, Value: v} }

// Ne returns field <> v.
func Ne(field string, v page.Value) Compare { return Compare{Field: field, Op: OpNe, Value: v} }

// Lt returns field < v.
func Lt(field string, v page.Value) Compare { return Compare{Field: field, Op: OpLt, Value: v} }

// Le returns field <= v.
func Le(field string, v page.Value) Compare { return Compare{Field: field, Op: OpLe, Value: v} }

// Gt returns field > v.
func Gt(field string, v page.Value) Compare { return Compare{Field: field, Op: OpGt, Value: v} }

// Ge returns field >= v.
func Ge(field string, v page.Value) Compare { return Compare{Field: field, Op: OpGe, Value: v} }

// AllOf returns the conjunction of ps.
func AllOf(ps ...Predicate) And { return And{Predicates: ps} }

// AnyOf returns the disjunction of ps.
func AnyOf(ps ...Predicate) Or { return Or{Predicates: ps} }
