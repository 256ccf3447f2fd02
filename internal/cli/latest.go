package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/pagecache/internal/cache"
	"github.com/roach88/pagecache/internal/page"
)

// NewLatestCommand creates the latest command.
func NewLatestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "latest <uri>",
		Short: "Resolve the highest stored version of a document",
		Long: `Print the highest version ever stored for the URI's document. The
version in the URI is ignored. Deleting or invalidating pages does not
lower the result.

Example:
  pagecache latest mail/Email:e@latest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithCache(rootOpts, cmd, func(ctx context.Context, c *cache.Cache, f *OutputFormatter) error {
				uri, err := page.Parse(args[0])
				if err != nil {
					return f.Fail("invalid uri", err)
				}
				version, err := c.ResolveLatest(ctx, uri.Root, uri.Type, uri.ID)
				if err != nil {
					return f.Fail("latest failed", err)
				}
				resolved := uri.WithVersion(version)
				if f.Format == "json" {
					return f.Success(map[string]any{"uri": resolved.String(), "version": version})
				}
				return f.Success(resolved.String())
			})
		},
	}
}
