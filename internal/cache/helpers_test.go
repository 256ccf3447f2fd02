package cache

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/schema"
	"github.com/roach88/pagecache/internal/store"
)

// newTestCache opens a file-backed cache with the Header, Chunk, Email and
// Thread types registered.
func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.Options{})
	require.NoError(t, err)

	reg := schema.NewRegistry(st)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	c := New(st, reg, opts...)
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	for _, sc := range []schema.Schema{
		{Type: "Header", Fields: []schema.Field{{Name: "title", Kind: page.KindString}}},
		{Type: "Chunk", Fields: []schema.Field{{Name: "text", Kind: page.KindString, Optional: true}}},
		{Type: "Thread", Fields: []schema.Field{{Name: "title", Kind: page.KindString, Optional: true}}},
		{Type: "Email", Fields: []schema.Field{
			{Name: "subject", Kind: page.KindString},
			{Name: "deleted", Kind: page.KindBool},
		}},
	} {
		require.NoError(t, c.Register(ctx, sc))
	}
	return c
}

func header(uri string) page.Page {
	return page.New(page.MustParse(uri), page.Attributes{"title": page.String("h")})
}

func chunk(uri string) page.Page {
	return page.New(page.MustParse(uri), nil)
}

func thread(uri string) page.Page {
	return page.New(page.MustParse(uri), nil)
}

func email(uri string, deleted bool) page.Page {
	return page.New(page.MustParse(uri), page.Attributes{
		"subject": page.String("s"),
		"deleted": page.Bool(deleted),
	})
}

func ref(s string) *page.URI {
	u := page.MustParse(s)
	return &u
}

func mustStore(t *testing.T, c *Cache, p page.Page, parent *page.URI) {
	t.Helper()
	_, err := c.Store(context.Background(), p, parent)
	require.NoError(t, err)
}

func uriStrings(pages []page.Page) []string {
	out := []string{}
	for _, p := range pages {
		out = append(out, p.URI.String())
	}
	return out
}
