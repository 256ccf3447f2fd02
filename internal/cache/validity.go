package cache

import (
	"context"
	"fmt"

	"github.com/roach88/pagecache/internal/page"
)

// Invalidator decides whether a stored page is still authoritative. It
// returns false when the page should no longer be served. An error counts
// as false.
type Invalidator func(ctx context.Context, p page.Page) (bool, error)

// RegisterInvalidator sets the invalidator for typeName, replacing any
// previous one.
func (c *Cache) RegisterInvalidator(typeName string, fn Invalidator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fn == nil {
		delete(c.invalidators, typeName)
		return
	}
	c.invalidators[typeName] = fn
}

func (c *Cache) invalidator(typeName string) Invalidator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.invalidators[typeName]
}

// IsValid reports whether p may be served. A stored invalid flag, the
// type's InvalidWhen rule, a false invalidator result, an invalidator error
// and an invalidator panic all make p invalid. A page judged invalid here is
// marked invalid in the store. If ctx ends while the invalidator runs,
// IsValid reports false and leaves the stored flag alone.
func (c *Cache) IsValid(ctx context.Context, p page.Page) bool {
	valid, _ := c.checkValid(ctx, p)
	return valid
}

// checkValid is IsValid with an ended ctx surfaced as an ErrCodeTimeout
// error instead of being counted against the page.
func (c *Cache) checkValid(ctx context.Context, p page.Page) (bool, error) {
	if !p.Valid {
		return false, nil
	}
	if sc, err := c.registry.Lookup(p.URI.Type); err == nil && sc.Invalidates(p) {
		c.logger.Debug("page matches invalid_when rule", "uri", p.URI.String())
		c.markInvalid(ctx, p.URI)
		return false, nil
	}
	fn := c.invalidator(p.URI.Type)
	if fn == nil {
		return true, nil
	}
	valid, err := runInvalidator(ctx, fn, p)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, contextError(p.URI, ctxErr)
		}
		c.logger.Warn("invalidator failed", "uri", p.URI.String(), "error", err)
		c.markInvalid(ctx, p.URI)
		return false, nil
	}
	if !valid {
		c.logger.Debug("page failed validation", "uri", p.URI.String())
		c.markInvalid(ctx, p.URI)
		return false, nil
	}
	return true, nil
}

func runInvalidator(ctx context.Context, fn Invalidator, p page.Page) (valid bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			valid, err = false, fmt.Errorf("invalidator panic: %v", r)
		}
	}()
	return fn(ctx, p)
}

// validateWithAncestors checks a lineage (page first, then ancestors
// nearest first). The first invalid ancestor is marked invalid along with
// every page checked below it. An error means validity could not be
// decided and nothing further was marked.
func (c *Cache) validateWithAncestors(ctx context.Context, lineage []page.Page) (bool, error) {
	for i, p := range lineage {
		valid, err := c.checkValid(ctx, p)
		if err != nil {
			return false, err
		}
		if valid {
			continue
		}
		for _, descendant := range lineage[:i] {
			c.markInvalid(ctx, descendant.URI)
		}
		if i > 0 {
			c.logger.Debug("ancestor invalid", "uri", lineage[0].URI.String(), "ancestor", p.URI.String())
		}
		return false, nil
	}
	return true, nil
}

// markInvalid clears the stored validity flag. Failures are logged; the
// page is already being treated as invalid.
func (c *Cache) markInvalid(ctx context.Context, uri page.URI) {
	sc, err := c.registry.Lookup(uri.Type)
	if err != nil {
		return
	}
	if _, err := c.store.SetValid(ctx, sc, uri, false); err != nil {
		c.logger.Warn("mark invalid failed", "uri", uri.String(), "error", err)
	}
}

// Invalidate marks one page invalid. A latest URI invalidates the version it
// currently resolves to. Returns false if no such page is stored.
func (c *Cache) Invalidate(ctx context.Context, uri page.URI) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := uri.Validate(); err != nil {
		return false, err
	}
	sc, err := c.registry.Lookup(uri.Type)
	if page.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if uri.IsLatest() {
		version, err := c.store.ResolveLatest(ctx, uri.Root, uri.Type, uri.ID)
		if page.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		uri = uri.WithVersion(version)
	}
	ok, err := c.store.SetValid(ctx, sc, uri, false)
	if err != nil {
		return false, err
	}
	c.logger.Debug("page invalidated", "uri", uri.String(), "found", ok)
	return ok, nil
}

// InvalidatePrefix marks every stored version of root/typeName:id invalid
// and returns how many rows were affected.
func (c *Cache) InvalidatePrefix(ctx context.Context, root, typeName, id string) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	key, err := page.NewURI(root, typeName, id, page.Latest)
	if err != nil {
		return 0, err
	}
	sc, err := c.registry.Lookup(typeName)
	if page.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := c.store.InvalidatePrefix(ctx, sc, root, id)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("document invalidated", "key", key.String(), "count", n)
	return n, nil
}
