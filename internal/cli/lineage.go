package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pagecache/internal/cache"
	"github.com/roach88/pagecache/internal/page"
)

// NewChildrenCommand creates the children command.
func NewChildrenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "children <parent-uri>",
		Short: "List the visible children of a page",
		Long: `List the valid pages stored with exactly this parent URI, ordered by
type, root, id and version.

Example:
  pagecache children docs/Header:d@1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithCache(rootOpts, cmd, func(ctx context.Context, c *cache.Cache, f *OutputFormatter) error {
				parent, err := page.Parse(args[0])
				if err != nil {
					return f.Fail("invalid uri", err)
				}
				children, err := c.Children(ctx, parent)
				if err != nil {
					return f.Fail("children failed", err)
				}
				if f.Format == "json" {
					return f.Success(children)
				}
				return f.Success(formatURIs(children))
			})
		},
	}
}

// NewChainCommand creates the chain command.
func NewChainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chain <uri>",
		Short: "Show the provenance chain of a page",
		Long: `Show the ancestors of a page followed by the page itself, oldest
ancestor first. The page must be visible to get.

Example:
  pagecache chain docs/Chunk:c@1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithCache(rootOpts, cmd, func(ctx context.Context, c *cache.Cache, f *OutputFormatter) error {
				uri, err := page.Parse(args[0])
				if err != nil {
					return f.Fail("invalid uri", err)
				}
				chain, err := c.ProvenanceChain(ctx, uri)
				if err != nil {
					return f.Fail("chain failed", err)
				}
				if f.Format == "json" {
					return f.Success(chain)
				}
				lines := make([]string, len(chain))
				for i, p := range chain {
					lines[i] = strings.Repeat("  ", i) + p.URI.String()
				}
				return f.Success(strings.Join(lines, "\n"))
			})
		},
	}
}
