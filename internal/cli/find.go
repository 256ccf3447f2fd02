package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pagecache/internal/cache"
	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/query"
	"github.com/roach88/pagecache/internal/schema"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	*RootOptions
	Where []string
	Match []string
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "find <type>",
		Short: "List valid pages of a type",
		Long: `List the valid pages of a type, ordered by root, id and version.

--where field=value keeps pages whose field equals value. Values are
parsed according to the field's kind. --match field=pattern keeps pages
whose text field matches a glob pattern. root, id and version may be used
as fields.

Example:
  pagecache find Email --where deleted=false
  pagecache find Chunk --match text='*lunch*' --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithCache(rootOpts, cmd, func(ctx context.Context, c *cache.Cache, f *OutputFormatter) error {
				sc, err := c.Registry().Lookup(args[0])
				if err != nil {
					return f.Fail("find failed", err)
				}
				pred, err := buildFilter(sc, opts.Where, opts.Match)
				if err != nil {
					return f.Fail("invalid filter", err)
				}
				pages, err := c.Find(ctx, sc.Type, pred)
				if err != nil {
					return f.Fail("find failed", err)
				}
				f.VerboseLog("found %d page(s)", len(pages))
				if f.Format == "json" {
					return f.Success(pages)
				}
				return f.Success(formatURIs(pages))
			})
		},
	}

	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "equality filter field=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Match, "match", nil, "glob filter field=pattern (repeatable)")

	return cmd
}

func buildFilter(sc schema.Schema, where, match []string) (query.Predicate, error) {
	eq := make(map[string]page.Value, len(where))
	for _, w := range where {
		name, literal, err := splitAssignment("--where", w)
		if err != nil {
			return nil, err
		}
		kind, err := query.FieldKind(sc, name)
		if err != nil {
			return nil, err
		}
		v, err := schema.ParseLiteral(kind, literal)
		if err != nil {
			return nil, page.WrapError(page.ErrCodeFormat, "", "--where "+name, err)
		}
		eq[name] = v
	}
	globs := make(map[string]string, len(match))
	for _, m := range match {
		name, pattern, err := splitAssignment("--match", m)
		if err != nil {
			return nil, err
		}
		globs[name] = pattern
	}
	return query.Filter(eq, globs), nil
}

func splitAssignment(flag, s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", page.NewError(page.ErrCodeFormat, "", "%s %q: expected field=value", flag, s)
	}
	return name, value, nil
}
