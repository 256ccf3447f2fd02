// Package query provides the predicate language for finding pages of one
// type, and its compilation to SQLite.
//
// Predicate is a sealed interface: Compare, Like, IsNull, Match, And, Or and
// Not. Everything except Match compiles to a parameterized WHERE clause;
// Match is a glob evaluated against decoded pages and is therefore limited
// to top-level conjuncts.
//
//	query.AllOf(
//		query.Eq("deleted", page.Bool(false)),
//		query.Match{Field: "subject", Pattern: "re: *"},
//	)
package query
