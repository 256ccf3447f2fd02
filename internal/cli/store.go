package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pagecache/internal/cache"
	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/schema"
)

// StoreOptions holds flags for the store command.
type StoreOptions struct {
	*RootOptions
	Parent string
}

// pageDocument is the JSON input form of a page.
type pageDocument struct {
	URI        string          `json:"uri"`
	Parent     string          `json:"parent,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// NewStoreCommand creates the store command.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store <file|->",
		Short: "Store pages read from a JSON file or stdin",
		Long: `Store one or more pages. The input is a sequence of JSON documents:

  {"uri": "mail/Email:e@1", "parent": "mail/Thread:t@1",
   "attributes": {"subject": "Lunch", "deleted": false}}

Times are RFC 3339 strings, refs are URI strings and blobs are base64.
Pages are stored in input order; the first failure stops the command.

Example:
  pagecache store --db ./pages.db email.json
  echo '{"uri":"docs/Header:d@1","attributes":{"title":"Doc"}}' | pagecache store -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithCache(rootOpts, cmd, func(ctx context.Context, c *cache.Cache, f *OutputFormatter) error {
				return storePages(ctx, c, f, opts, args[0], cmd.InOrStdin())
			})
		},
	}

	cmd.Flags().StringVar(&opts.Parent, "parent", "", "explicit parent URI for every stored page")

	return cmd
}

type storedPage struct {
	URI     string `json:"uri"`
	Created bool   `json:"created"`
}

func storePages(ctx context.Context, c *cache.Cache, f *OutputFormatter, opts *StoreOptions, source string, stdin io.Reader) error {
	in := stdin
	if source != "-" {
		file, err := os.Open(source)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open input", err)
		}
		defer file.Close()
		in = file
	}

	var parent *page.URI
	if opts.Parent != "" {
		p, err := page.Parse(opts.Parent)
		if err != nil {
			return f.Fail("invalid --parent", err)
		}
		parent = &p
	}

	stored := []storedPage{}
	dec := json.NewDecoder(in)
	for {
		var doc pageDocument
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return f.Fail("invalid input", page.WrapError(page.ErrCodeFormat, "", "decode page document", err))
		}
		p, err := decodePage(c, doc)
		if err != nil {
			return f.Fail("invalid page", err)
		}
		created, err := c.Store(ctx, p, parent)
		if err != nil {
			return f.Fail("store failed", err)
		}
		f.VerboseLog("stored %s created=%v", p.URI, created)
		stored = append(stored, storedPage{URI: p.URI.String(), Created: created})
	}

	if f.Format == "json" {
		return f.Success(stored)
	}
	lines := make([]string, 0, len(stored))
	for _, s := range stored {
		verb := "replaced"
		if s.Created {
			verb = "created"
		}
		lines = append(lines, fmt.Sprintf("%s %s", verb, s.URI))
	}
	if len(lines) == 0 {
		return f.Success("no pages in input")
	}
	return f.Success(strings.Join(lines, "\n"))
}

// decodePage converts a document into a page using the registered schema of
// its type.
func decodePage(c *cache.Cache, doc pageDocument) (page.Page, error) {
	uri, err := page.Parse(doc.URI)
	if err != nil {
		return page.Page{}, err
	}
	sc, err := c.Registry().Lookup(uri.Type)
	if err != nil {
		return page.Page{}, err
	}
	attrs := page.Attributes{}
	if len(doc.Attributes) > 0 {
		attrs, err = schema.DecodeAttributes(sc, doc.Attributes)
		if err != nil {
			return page.Page{}, err
		}
	}
	p := page.New(uri, attrs)
	if doc.Parent != "" {
		parent, err := page.Parse(doc.Parent)
		if err != nil {
			return page.Page{}, err
		}
		p = p.WithParent(parent)
	}
	return p, nil
}
