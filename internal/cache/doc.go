// Package cache is the caller-facing page cache.
//
// A Cache ties together the type registry, the SQLite store, provenance
// checks and validity tracking:
//
//	st, _ := store.Open(path, store.Options{})
//	reg := schema.NewRegistry(st)
//	_ = reg.Load(ctx)
//	c := cache.New(st, reg, cache.WithLogger(logger))
//
// Store path: registry lookup, attribute validation, provenance checks when
// a parent is present, then one store transaction writing the row and the
// latest-version index.
//
// Read path: latest resolution (if the URI has no version), row fetch, then
// validation of the page and every ancestor. Pages that are missing,
// invalidated or have an invalid ancestor are all reported with the same
// ErrCodeNotFound error.
//
// Nothing is retried automatically. A DUPLICATE_CHILD error that also
// matches page.IsConflict means another writer created the same child
// concurrently; retry policy belongs to the caller.
package cache
