package cache

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/pagecache/internal/page"
)

// Result is the outcome of one lookup in GetMany.
type Result struct {
	URI  page.URI
	Page page.Page
	Err  error // nil or an ErrCodeNotFound error
}

// Found reports whether the lookup produced a page.
func (r Result) Found() bool {
	return r.Err == nil
}

// GetMany looks up uris concurrently and returns one Result per input, in
// input order regardless of completion order. A page that is not found is
// reported in its Result. Any other failure cancels the lookups still in
// flight and is returned as the error.
func (c *Cache) GetMany(ctx context.Context, uris []page.URI) ([]Result, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	batch := c.batchIDs.Generate()
	c.logger.Debug("bulk get started", "batch", batch, "count", len(uris), "workers", c.bulkWorkers)

	results := make([]Result, len(uris))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.bulkWorkers)
	for i, uri := range uris {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return contextError(uri, err)
			}
			lineage, err := c.resolve(gctx, uri)
			switch {
			case err == nil:
				results[i] = Result{URI: uri, Page: lineage[0]}
			case page.IsNotFound(err):
				results[i] = Result{URI: uri, Err: err}
			default:
				return fmt.Errorf("get %s: %w", uri, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Debug("bulk get failed", "batch", batch, "error", err)
		return nil, err
	}
	c.logger.Debug("bulk get finished", "batch", batch)
	return results, nil
}
