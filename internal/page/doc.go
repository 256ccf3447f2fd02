// Package page defines page identity, attribute values and the error taxonomy
// shared by every other package.
//
// This package imports nothing internal. URIs are immutable values with the
// canonical text form root/type:id@version, where the omitted version means
// "latest".
//
// Key constraints:
//   - NO float attribute kind; numbers are int64
//   - Parent links are always pinned to a concrete version
//   - All errors surfaced to callers are *Error with a stable Code
package page
