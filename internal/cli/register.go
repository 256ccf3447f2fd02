package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pagecache/internal/cache"
)

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register <schemas-dir>",
		Short: "Register page types declared in CUE",
		Long: `Register the page types declared in the CUE package in a directory.

Each type is declared under the top-level "page" struct:

  page: Email: {
    fields: {
      subject: string
      deleted: bool
      thread?: "ref"
    }
    invalid_when: deleted: true
  }

Registering a type again with the same fields is a no-op apart from
replacing its invalid_when rule. Changing the fields of a registered type
fails with SCHEMA_CONFLICT.

Example:
  pagecache register --db ./pages.db ./schemas`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithCache(rootOpts, cmd, func(ctx context.Context, c *cache.Cache, f *OutputFormatter) error {
				schemas, err := registerDir(ctx, c, args[0])
				if err != nil {
					return f.Fail("register failed", err)
				}

				type registered struct {
					Type      string `json:"type"`
					Signature string `json:"signature"`
				}
				out := make([]registered, 0, len(schemas))
				for _, sc := range schemas {
					f.VerboseLog("registered %s", sc.Type)
					out = append(out, registered{Type: sc.Type, Signature: sc.Signature()})
				}
				if f.Format == "json" {
					return f.Success(out)
				}
				var b strings.Builder
				fmt.Fprintf(&b, "Registered %d type(s)", len(out))
				for _, r := range out {
					fmt.Fprintf(&b, "\n  %s %s", r.Type, r.Signature)
				}
				return f.Success(b.String())
			})
		},
	}
}
