package schema

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/pagecache/internal/page"
)

// Backend creates and remembers per-type storage.
//
// EnsureType is idempotent for an identical signature and must return an
// ErrCodeSchemaConflict error when the type already exists with a different
// one. LoadTypes returns every type previously ensured.
type Backend interface {
	EnsureType(ctx context.Context, s Schema) error
	LoadTypes(ctx context.Context) ([]Schema, error)
}

// Registry holds the schemas known to this process.
// It is safe for concurrent use.
type Registry struct {
	backend Backend

	mu    sync.RWMutex
	types map[string]Schema
}

// NewRegistry creates a registry. A nil backend keeps schemas in memory only.
func NewRegistry(backend Backend) *Registry {
	return &Registry{
		backend: backend,
		types:   make(map[string]Schema),
	}
}

// Register declares a page type. The first call creates backing storage.
// Registering the same layout again is a no-op apart from replacing the
// InvalidWhen rule; a different layout fails with ErrCodeSchemaConflict.
func (r *Registry) Register(ctx context.Context, s Schema) error {
	if err := s.Check(); err != nil {
		return err
	}
	s.Fields = slices.Clone(s.Fields)
	s.InvalidWhen = s.InvalidWhen.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[s.Type]; ok {
		if existing.Signature() != s.Signature() {
			return conflictError(existing, s)
		}
		if r.backend != nil && !sameRule(existing.InvalidWhen, s.InvalidWhen) {
			if err := r.backend.EnsureType(ctx, s); err != nil {
				return fmt.Errorf("register %s: %w", s.Type, err)
			}
		}
		existing.InvalidWhen = s.InvalidWhen
		r.types[s.Type] = existing
		return nil
	}

	if r.backend != nil {
		if err := r.backend.EnsureType(ctx, s); err != nil {
			return fmt.Errorf("register %s: %w", s.Type, err)
		}
	}
	r.types[s.Type] = s
	return nil
}

// Lookup returns the schema for typeName or an ErrCodeNotFound error.
func (r *Registry) Lookup(typeName string) (Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.types[typeName]
	if !ok {
		return Schema{}, page.NewError(page.ErrCodeNotFound, "", "page type %q is not registered", typeName)
	}
	return s, nil
}

// Types returns every registered schema ordered by type name.
func (r *Registry) Types() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Schema, 0, len(r.types))
	for _, s := range r.types {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Schema) int { return strings.Compare(a.Type, b.Type) })
	return out
}

// Load hydrates the registry from schemas persisted by the backend.
// Types already registered in memory are kept.
func (r *Registry) Load(ctx context.Context) error {
	if r.backend == nil {
		return nil
	}
	stored, err := r.backend.LoadTypes(ctx)
	if err != nil {
		return fmt.Errorf("load types: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range stored {
		if existing, ok := r.types[s.Type]; ok && existing.Signature() != s.Signature() {
			return conflictError(s, existing)
		}
		if _, ok := r.types[s.Type]; !ok {
			r.types[s.Type] = s
		}
	}
	return nil
}

func sameRule(a, b page.Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for name, v := range a {
		w, ok := b[name]
		if !ok || !page.Equal(v, w) {
			return false
		}
	}
	return true
}

func conflictError(existing, proposed Schema) error {
	return page.NewError(page.ErrCodeSchemaConflict, "",
		"type %s already registered as %s, got %s", proposed.Type, existing.Signature(), proposed.Signature())
}
