package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pagecache/internal/cache"
	"github.com/roach88/pagecache/internal/page"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <uri>...",
		Short: "Fetch pages by URI",
		Long: `Fetch one or more pages. A URI ending in @latest resolves to the
highest stored version.

With a single URI a missing or invalidated page fails with NOT_FOUND.
With several URIs the lookups run concurrently and missing pages are
reported in place.

Example:
  pagecache get mail/Email:e@1
  pagecache get --format json mail/Email:e@latest mail/Thread:t@1`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithCache(rootOpts, cmd, func(ctx context.Context, c *cache.Cache, f *OutputFormatter) error {
				uris, err := parseURIs(args)
				if err != nil {
					return f.Fail("invalid uri", err)
				}
				if len(uris) == 1 {
					p, err := c.Get(ctx, uris[0])
					if err != nil {
						return f.Fail("get failed", err)
					}
					if f.Format == "json" {
						return f.Success(p)
					}
					return f.Success(formatPage(p))
				}
				return getMany(ctx, c, f, uris)
			})
		},
	}
}

type bulkEntry struct {
	URI   string     `json:"uri"`
	Found bool       `json:"found"`
	Page  *page.Page `json:"page,omitempty"`
}

func getMany(ctx context.Context, c *cache.Cache, f *OutputFormatter, uris []page.URI) error {
	results, err := c.GetMany(ctx, uris)
	if err != nil {
		return f.Fail("get failed", err)
	}
	if f.Format == "json" {
		entries := make([]bulkEntry, len(results))
		for i, r := range results {
			entries[i] = bulkEntry{URI: r.URI.String(), Found: r.Found()}
			if r.Found() {
				entries[i].Page = &r.Page
			}
		}
		return f.Success(entries)
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		if r.Found() {
			blocks[i] = formatPage(r.Page)
		} else {
			blocks[i] = r.URI.String() + "\n  (not found)"
		}
	}
	return f.Success(strings.Join(blocks, "\n"))
}
