package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/query"
	"github.com/roach88/pagecache/internal/schema"
)

// Storage is the backing store the cache runs on. *store.Store implements
// it.
type Storage interface {
	InsertPage(ctx context.Context, sc schema.Schema, p page.Page) (bool, error)
	ReadPage(ctx context.Context, sc schema.Schema, uri page.URI) (page.Page, error)
	HasPage(ctx context.Context, sc schema.Schema, uri page.URI) (bool, error)
	DeletePage(ctx context.Context, sc schema.Schema, uri page.URI) (bool, error)
	SetValid(ctx context.Context, sc schema.Schema, uri page.URI, valid bool) (bool, error)
	InvalidatePrefix(ctx context.Context, sc schema.Schema, root, id string) (int, error)
	FindPages(ctx context.Context, sc schema.Schema, pred query.Predicate) ([]page.Page, error)
	ReadChildren(ctx context.Context, schemas []schema.Schema, parent page.URI) ([]page.Page, error)
	ResolveLatest(ctx context.Context, root, typeName, id string) (int64, error)
	Close() error
}

// Defaults for Cache options.
const (
	DefaultOpTimeout       = 30 * time.Second
	DefaultBulkWorkers     = 8
	DefaultMaxLineageDepth = 64
)

// Option configures a Cache.
type Option func(*Cache)

// WithOpTimeout bounds every cache operation. Zero or negative disables the
// bound; the backing store's busy timeout still applies.
func WithOpTimeout(d time.Duration) Option {
	return func(c *Cache) {
		c.opTimeout = d
	}
}

// WithBulkWorkers sets how many lookups GetMany runs at once.
func WithBulkWorkers(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.bulkWorkers = n
		}
	}
}

// WithMaxLineageDepth bounds parent-chain walks.
func WithMaxLineageDepth(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxLineageDepth = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBatchIDs sets the generator used to label GetMany batches.
func WithBatchIDs(g BatchIDGenerator) Option {
	return func(c *Cache) {
		if g != nil {
			c.batchIDs = g
		}
	}
}

// Cache is the caller-facing page cache.
//
// It combines the type registry, the backing store, provenance checks and
// validity tracking. Safe for concurrent use; all shared state lives in the
// store or behind mutexes.
type Cache struct {
	store    Storage
	registry *schema.Registry
	logger   *slog.Logger
	batchIDs BatchIDGenerator

	opTimeout       time.Duration
	bulkWorkers     int
	maxLineageDepth int

	mu           sync.RWMutex
	invalidators map[string]Invalidator
}

// New creates a cache over st. Schemas are registered through reg, which
// should use st as its backend.
func New(st Storage, reg *schema.Registry, opts ...Option) *Cache {
	c := &Cache{
		store:           st,
		registry:        reg,
		logger:          slog.Default(),
		batchIDs:        UUIDv7Generator{},
		opTimeout:       DefaultOpTimeout,
		bulkWorkers:     DefaultBulkWorkers,
		maxLineageDepth: DefaultMaxLineageDepth,
		invalidators:    make(map[string]Invalidator),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the backing store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Registry returns the type registry.
func (c *Cache) Registry() *schema.Registry {
	return c.registry
}

// Register declares a page type. See schema.Registry.Register.
func (c *Cache) Register(ctx context.Context, sc schema.Schema) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.registry.Register(ctx, sc); err != nil {
		return err
	}
	c.logger.Debug("page type registered", "type", sc.Type, "signature", sc.Signature())
	return nil
}

// Store persists p and returns true if a new row was created.
//
// The effective parent is parent when non-nil, otherwise p.Parent. An
// explicit parent that disagrees with p.Parent replaces it. With a parent,
// the provenance checks run first and any failure leaves the store
// untouched.
func (c *Cache) Store(ctx context.Context, p page.Page, parent *page.URI) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if parent != nil {
		if p.Parent != nil && *p.Parent != *parent {
			c.logger.Debug("explicit parent overrides page parent",
				"uri", p.URI.String(), "declared", p.Parent.String(), "explicit", parent.String())
		}
		p = p.WithParent(*parent)
	}
	if p.URI.IsLatest() {
		return false, page.NewError(page.ErrCodeFormat, p.URI.String(), "cannot store a page under a latest URI")
	}
	sc, err := c.registry.Lookup(p.URI.Type)
	if err != nil {
		return false, fmt.Errorf("store: %w", err)
	}
	if err := sc.Validate(p); err != nil {
		return false, err
	}
	if p.Parent != nil {
		if err := c.checkProvenance(ctx, p); err != nil {
			return false, err
		}
	}

	created, err := c.store.InsertPage(ctx, sc, p)
	if err != nil {
		return false, err
	}
	c.logger.Debug("page stored", "uri", p.URI.String(), "parent", p.ParentString(), "created", created)
	return created, nil
}

// Get returns the page at uri. A latest URI is resolved to the highest
// stored version at call time.
//
// Missing, invalidated and ancestor-invalidated pages all yield the same
// ErrCodeNotFound error.
func (c *Cache) Get(ctx context.Context, uri page.URI) (page.Page, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	lineage, err := c.resolve(ctx, uri)
	if err != nil {
		return page.Page{}, err
	}
	return lineage[0], nil
}

// Find returns the valid pages of typeName matching pred, ordered by root,
// id and version. Pages whose ancestors fail validation are excluded.
func (c *Cache) Find(ctx context.Context, typeName string, pred query.Predicate) ([]page.Page, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	sc, err := c.registry.Lookup(typeName)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	candidates, err := c.store.FindPages(ctx, sc, pred)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", typeName, err)
	}
	return c.filterValid(ctx, candidates)
}

// Delete removes the row stored under a concrete URI. Children are not
// touched; their parent links dangle. Returns false if nothing was deleted.
func (c *Cache) Delete(ctx context.Context, uri page.URI) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if uri.IsLatest() {
		return false, page.NewError(page.ErrCodeFormat, uri.String(), "delete needs a concrete version")
	}
	sc, err := c.registry.Lookup(uri.Type)
	if page.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	deleted, err := c.store.DeletePage(ctx, sc, uri)
	if err != nil {
		return false, err
	}
	c.logger.Debug("page deleted", "uri", uri.String(), "deleted", deleted)
	return deleted, nil
}

// ResolveLatest returns the highest stored version of root/typeName:id.
func (c *Cache) ResolveLatest(ctx context.Context, root, typeName, id string) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.store.ResolveLatest(ctx, root, typeName, id)
}

// resolve fetches uri and its ancestors and validates them. The returned
// lineage starts with the page itself.
func (c *Cache) resolve(ctx context.Context, uri page.URI) ([]page.Page, error) {
	if err := uri.Validate(); err != nil {
		return nil, err
	}
	requested := uri
	sc, err := c.registry.Lookup(uri.Type)
	if page.IsNotFound(err) {
		return nil, notFound(requested)
	}
	if err != nil {
		return nil, err
	}

	if uri.IsLatest() {
		version, err := c.store.ResolveLatest(ctx, uri.Root, uri.Type, uri.ID)
		if page.IsNotFound(err) {
			return nil, notFound(requested)
		}
		if err != nil {
			return nil, err
		}
		uri = uri.WithVersion(version)
	}

	p, err := c.store.ReadPage(ctx, sc, uri)
	if page.IsNotFound(err) {
		return nil, notFound(requested)
	}
	if err != nil {
		return nil, err
	}
	if !p.Valid {
		return nil, notFound(requested)
	}

	lineage, err := c.lineage(ctx, p)
	if err != nil {
		return nil, err
	}
	valid, err := c.validateWithAncestors(ctx, lineage)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, notFound(requested)
	}
	return lineage, nil
}

// filterValid keeps the pages whose lineage validates.
func (c *Cache) filterValid(ctx context.Context, pages []page.Page) ([]page.Page, error) {
	out := make([]page.Page, 0, len(pages))
	for _, p := range pages {
		lineage, err := c.lineage(ctx, p)
		if err != nil {
			return nil, err
		}
		valid, err := c.validateWithAncestors(ctx, lineage)
		if err != nil {
			return nil, err
		}
		if valid {
			out = append(out, p)
		}
	}
	return out, nil
}

// readAny reads the row stored under a concrete URI of any registered type,
// regardless of validity.
func (c *Cache) readAny(ctx context.Context, uri page.URI) (page.Page, error) {
	if uri.IsLatest() {
		return page.Page{}, notFound(uri)
	}
	sc, err := c.registry.Lookup(uri.Type)
	if err != nil {
		return page.Page{}, notFound(uri)
	}
	return c.store.ReadPage(ctx, sc, uri)
}

func (c *Cache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

func notFound(uri page.URI) error {
	return page.NewError(page.ErrCodeNotFound, uri.String(), "page not found")
}

// contextError reports an ended context as ErrCodeTimeout.
func contextError(uri page.URI, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return page.WrapError(page.ErrCodeTimeout, uri.String(), "operation deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return page.WrapError(page.ErrCodeTimeout, uri.String(), "operation cancelled", err)
	}
	return err
}
