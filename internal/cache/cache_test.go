package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/query"
	"github.com/roach88/pagecache/internal/schema"
)

func TestStoreThenGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	created, err := c.Store(ctx, header("docs/Header:d@1"), nil)
	require.NoError(t, err)
	assert.True(t, created)

	got, err := c.Get(ctx, page.MustParse("docs/Header:d@1"))
	require.NoError(t, err)
	assert.Equal(t, page.String("h"), got.Attributes["title"])
	assert.True(t, got.Valid)
}

func TestGet_LatestResolvesAtCallTime(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	latest := page.MustParse("docs/Header:d")

	mustStore(t, c, header("docs/Header:d@1"), nil)
	got, err := c.Get(ctx, latest)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.URI.Version)

	mustStore(t, c, header("docs/Header:d@2"), nil)
	got, err = c.Get(ctx, latest)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.URI.Version)

	_, err = c.Delete(ctx, page.MustParse("docs/Header:d@2"))
	require.NoError(t, err)
	_, err = c.Get(ctx, latest)
	assert.True(t, page.IsNotFound(err), "latest points at a deleted version")

	v, err := c.ResolveLatest(ctx, "docs", "Header", "d")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestResolveLatest_NeverRegresses(t *testing.T) {
	for _, versions := range [][]int64{{2, 5}, {5, 2}} {
		c := newTestCache(t)
		ctx := context.Background()
		for _, v := range versions {
			p := header("docs/Header:d@1")
			p.URI = p.URI.WithVersion(v)
			mustStore(t, c, p, nil)
		}
		got, err := c.ResolveLatest(ctx, "docs", "Header", "d")
		require.NoError(t, err)
		assert.Equal(t, int64(5), got, "versions %v", versions)
	}
}

func TestGet_NotFoundIsUniform(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	mustStore(t, c, header("docs/Header:gone@1"), nil)
	_, err := c.Invalidate(ctx, page.MustParse("docs/Header:gone@1"))
	require.NoError(t, err)

	for _, uri := range []string{
		"docs/Header:missing@1",
		"docs/Header:missing",
		"docs/Header:gone@1",
		"docs/Unregistered:x@1",
	} {
		_, err := c.Get(ctx, page.MustParse(uri))
		require.Error(t, err, uri)
		var pe *page.Error
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, page.ErrCodeNotFound, pe.Code, uri)
		assert.Equal(t, "page not found", pe.Message, uri)
		assert.Equal(t, uri, pe.URI)
	}
}

func TestStore_Rejects(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	tests := []struct {
		name string
		page page.Page
		code page.ErrorCode
	}{
		{"latest uri", header("docs/Header:d"), page.ErrCodeFormat},
		{"unregistered type", page.New(page.MustParse("docs/Nope:d@1"), nil), page.ErrCodeNotFound},
		{"missing attribute", page.New(page.MustParse("docs/Header:d@1"), nil), page.ErrCodeInvalidAttributes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Store(ctx, tt.page, nil)
			require.Error(t, err)
			assert.True(t, page.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestStore_ParentlessRestoreIsLastWriteWins(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	mustStore(t, c, header("docs/Header:d@1"), nil)
	p := header("docs/Header:d@1")
	p.Attributes["title"] = page.String("second")

	created, err := c.Store(ctx, p, nil)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := c.Get(ctx, p.URI)
	require.NoError(t, err)
	assert.Equal(t, page.String("second"), got.Attributes["title"])
}

func TestStore_ExplicitParentOverridesDeclared(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	mustStore(t, c, header("docs/Header:a@1"), nil)
	mustStore(t, c, header("docs/Header:b@1"), nil)

	child := chunk("docs/Chunk:c@1").WithParent(page.MustParse("docs/Header:a@1"))
	_, err := c.Store(ctx, child, ref("docs/Header:b@1"))
	require.NoError(t, err)

	got, err := c.Get(ctx, child.URI)
	require.NoError(t, err)
	assert.Equal(t, "docs/Header:b@1", got.ParentString())
}

func TestStore_ReadYourWrites(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for i := int64(1); i <= 20; i++ {
		p := header("docs/Header:d@1")
		p.URI = p.URI.WithVersion(i)
		mustStore(t, c, p, nil)

		got, err := c.Get(ctx, p.URI.AsLatest())
		require.NoError(t, err)
		assert.Equal(t, i, got.URI.Version)
	}
}

func TestFind(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	mustStore(t, c, email("mail/Email:a@1", false), nil)
	mustStore(t, c, email("mail/Email:b@1", true), nil)
	mustStore(t, c, email("mail/Email:c@1", false), nil)
	_, err := c.Invalidate(ctx, page.MustParse("mail/Email:c@1"))
	require.NoError(t, err)

	got, err := c.Find(ctx, "Email", query.Eq("deleted", page.Bool(false)))
	require.NoError(t, err)
	assert.Equal(t, []string{"mail/Email:a@1"}, uriStrings(got))

	_, err = c.Find(ctx, "Nope", nil)
	assert.True(t, page.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	mustStore(t, c, header("docs/Header:d@1"), nil)

	deleted, err := c.Delete(ctx, page.MustParse("docs/Header:d@1"))
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = c.Delete(ctx, page.MustParse("docs/Header:d@1"))
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = c.Delete(ctx, page.MustParse("docs/Nope:d@1"))
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = c.Delete(ctx, page.MustParse("docs/Header:d"))
	assert.Equal(t, page.ErrCodeFormat, page.CodeOf(err))
}

func TestExpiredDeadlineIsTimeout(t *testing.T) {
	c := newTestCache(t)
	mustStore(t, c, header("docs/Header:d@1"), nil)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := c.Get(ctx, page.MustParse("docs/Header:d@1"))
	require.Error(t, err)
	assert.True(t, page.IsTimeout(err), "got %v", err)

	_, err = c.Store(ctx, header("docs/Header:e@1"), nil)
	assert.True(t, page.IsTimeout(err), "got %v", err)
}

func TestRegister_Conflict(t *testing.T) {
	c := newTestCache(t)

	err := c.Register(context.Background(), schema.Schema{
		Type:   "Header",
		Fields: []schema.Field{{Name: "title", Kind: page.KindInt}},
	})
	assert.Equal(t, page.ErrCodeSchemaConflict, page.CodeOf(err))
}
