// Package schema registers page types and their attribute layouts.
//
// A Schema fixes, once per type, the mapping from attribute name to storage
// kind and column. Types are declared in Go or compiled from CUE files (see
// LoadDir) and registered through a Registry, which asks its Backend to
// create storage the first time a type is seen.
package schema
