package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pagecache/internal/cache"
	"github.com/roach88/pagecache/internal/page"
)

// InvalidateOptions holds flags for the invalidate command.
type InvalidateOptions struct {
	*RootOptions
	Prefix bool
}

// NewInvalidateCommand creates the invalidate command.
func NewInvalidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvalidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invalidate <uri>",
		Short: "Mark pages invalid",
		Long: `Mark a page invalid so it is no longer served. Descendants become
invisible as well. A URI ending in @latest invalidates the version it
currently resolves to.

With --prefix every stored version of the URI's document is invalidated;
the version in the URI is ignored.

Example:
  pagecache invalidate mail/Email:e@2
  pagecache invalidate --prefix mail/Email:e@latest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithCache(rootOpts, cmd, func(ctx context.Context, c *cache.Cache, f *OutputFormatter) error {
				uri, err := page.Parse(args[0])
				if err != nil {
					return f.Fail("invalid uri", err)
				}
				if opts.Prefix {
					n, err := c.InvalidatePrefix(ctx, uri.Root, uri.Type, uri.ID)
					if err != nil {
						return f.Fail("invalidate failed", err)
					}
					if f.Format == "json" {
						return f.Success(map[string]any{"uri": uri.AsLatest().String(), "count": n})
					}
					return f.Success(fmt.Sprintf("invalidated %d version(s) of %s", n, uri.AsLatest()))
				}

				ok, err := c.Invalidate(ctx, uri)
				if err != nil {
					return f.Fail("invalidate failed", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]any{"uri": uri.String(), "invalidated": ok})
				}
				if !ok {
					return f.Success("nothing stored at " + uri.String())
				}
				return f.Success("invalidated " + uri.String())
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Prefix, "prefix", false, "invalidate every version of the document")

	return cmd
}
