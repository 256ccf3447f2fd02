package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/pagecache/internal/cache"
	"github.com/roach88/pagecache/internal/page"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uri>",
		Short: "Delete a stored page",
		Long: `Delete the page stored under a concrete URI. Children are left in
place; their parent link dangles.

Example:
  pagecache delete mail/Email:e@1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithCache(rootOpts, cmd, func(ctx context.Context, c *cache.Cache, f *OutputFormatter) error {
				uri, err := page.Parse(args[0])
				if err != nil {
					return f.Fail("invalid uri", err)
				}
				deleted, err := c.Delete(ctx, uri)
				if err != nil {
					return f.Fail("delete failed", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]any{"uri": uri.String(), "deleted": deleted})
				}
				if !deleted {
					return f.Success("nothing stored at " + uri.String())
				}
				return f.Success("deleted " + uri.String())
			})
		},
	}
}
