package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/pagecache/internal/page"
)

// ErrLineageTooDeep marks a CYCLE error raised because the parent's
// ancestry exceeds the lineage depth bound rather than because a loop was
// found. Match it with errors.Is.
var ErrLineageTooDeep = errors.New("lineage depth bound exceeded")

// checkProvenance runs the ordered provenance checks for storing child
// under child.Parent. The first failing check determines the error.
//
//  1. the parent is a concrete version (UNPINNED_PARENT)
//  2. the parent resolves to a valid page: its stored flag, its
//     invalidator and its ancestors all pass (PARENT_NOT_FOUND)
//  3. the child is not stored yet (DUPLICATE_CHILD)
//  4. parent and child types differ (SAME_TYPE)
//  5. the parent's ancestry does not reach the child (CYCLE)
//
// The checks run without a lock. Two writers racing on the same child may
// both pass check 3; the store's primary key then rejects the loser.
func (c *Cache) checkProvenance(ctx context.Context, child page.Page) error {
	parentURI := *child.Parent
	key := child.URI.String()

	if parentURI.IsLatest() {
		return page.NewError(page.ErrCodeUnpinnedParent, key,
			"parent %s must name a concrete version", parentURI)
	}

	parent, err := c.readAny(ctx, parentURI)
	if page.IsNotFound(err) {
		return page.NewError(page.ErrCodeParentNotFound, key, "parent %s is not stored", parentURI)
	}
	if err != nil {
		return fmt.Errorf("provenance: read parent: %w", err)
	}
	if !parent.Valid {
		return page.NewError(page.ErrCodeParentNotFound, key, "parent %s is invalid", parentURI)
	}
	lineage, err := c.lineage(ctx, parent)
	if err != nil {
		return fmt.Errorf("provenance: %w", err)
	}
	valid, err := c.validateWithAncestors(ctx, lineage)
	if err != nil {
		return fmt.Errorf("provenance: validate parent: %w", err)
	}
	if !valid {
		return page.NewError(page.ErrCodeParentNotFound, key, "parent %s failed validation", parentURI)
	}

	sc, err := c.registry.Lookup(child.URI.Type)
	if err != nil {
		return fmt.Errorf("provenance: %w", err)
	}
	exists, err := c.store.HasPage(ctx, sc, child.URI)
	if err != nil {
		return fmt.Errorf("provenance: read child: %w", err)
	}
	if exists {
		// A link that would also close a loop reports the loop.
		if err := c.checkCycle(ctx, child.URI, parent); err != nil {
			return err
		}
		return page.NewError(page.ErrCodeDuplicateChild, key, "page is already stored")
	}

	if parentURI.Type == child.URI.Type {
		return page.NewError(page.ErrCodeSameType, key,
			"parent %s has the same type %s", parentURI, child.URI.Type)
	}

	return c.checkCycle(ctx, child.URI, parent)
}

// checkCycle walks upward from parent. Reaching child itself, or revisiting
// a page, is a cycle. Other versions of child's document are distinct
// pages. A page without a parent or a
// dangling reference ends the walk.
func (c *Cache) checkCycle(ctx context.Context, child page.URI, parent page.Page) error {
	key := child.String()
	visited := make(map[page.URI]bool)
	current := parent
	for depth := 0; ; depth++ {
		uri := current.URI
		if uri == child {
			return page.NewError(page.ErrCodeCycle, key, "ancestor %s is the child itself", uri)
		}
		if visited[uri] {
			return page.NewError(page.ErrCodeCycle, key, "ancestry revisits %s", uri)
		}
		visited[uri] = true
		if depth >= c.maxLineageDepth {
			return page.WrapError(page.ErrCodeCycle, key,
				fmt.Sprintf("ancestry deeper than %d pages", c.maxLineageDepth), ErrLineageTooDeep)
		}
		if current.Parent == nil {
			return nil
		}
		next, err := c.readAny(ctx, *current.Parent)
		if page.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("provenance: walk: %w", err)
		}
		current = next
	}
}

// lineage returns p followed by its stored ancestors, nearest first,
// regardless of their validity. A dangling reference ends the lineage.
func (c *Cache) lineage(ctx context.Context, p page.Page) ([]page.Page, error) {
	lineage := []page.Page{p}
	visited := map[page.URI]bool{p.URI: true}
	current := p
	for current.Parent != nil {
		next := *current.Parent
		if visited[next] || len(lineage) > c.maxLineageDepth {
			c.logger.Warn("lineage walk stopped", "uri", p.URI.String(), "at", next.String())
			break
		}
		visited[next] = true
		ancestor, err := c.readAny(ctx, next)
		if page.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("lineage of %s: %w", p.URI, err)
		}
		lineage = append(lineage, ancestor)
		current = ancestor
	}
	return lineage, nil
}

// Children returns the visible pages whose parent is exactly parent,
// ordered by type, root, id and version.
func (c *Cache) Children(ctx context.Context, parent page.URI) ([]page.Page, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := parent.Validate(); err != nil {
		return nil, err
	}
	children, err := c.store.ReadChildren(ctx, c.registry.Types(), parent)
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", parent, err)
	}
	return c.filterValid(ctx, children)
}

// ProvenanceChain returns the ancestors of uri followed by the page itself,
// root first. The page must be visible to Get; a dangling ancestor
// reference truncates the chain.
func (c *Cache) ProvenanceChain(ctx context.Context, uri page.URI) ([]page.Page, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	lineage, err := c.resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	slices.Reverse(lineage)
	return lineage, nil
}
