package store

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/query"
	"github.com/roach88/pagecache/internal/schema"
)

func TestReadPage_RoundTripsEveryKind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	sent := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)
	big := bytes.Repeat([]byte("compressible "), 1000)
	p := page.New(page.MustParse("gmail/Email:a@1"), page.Attributes{
		"subject": page.String("héllo"),
		"deleted": page.Bool(true),
		"sent":    page.NewTime(sent),
		"thread":  page.Ref(page.MustParse("gmail/Thread:t@4")),
		"labels":  page.List{page.String("inbox"), page.Int(7), page.List{page.Bool(false)}},
		"raw":     page.Blob(big),
	})

	_, err := s.InsertPage(ctx, emailSchema(), p)
	require.NoError(t, err)

	got, err := s.ReadPage(ctx, emailSchema(), p.URI)
	require.NoError(t, err)
	assert.Equal(t, p.URI, got.URI)
	for name, want := range p.Attributes {
		assert.True(t, page.Equal(want, got.Attributes[name]), "attribute %s", name)
	}

	var stored []byte
	require.NoError(t, s.db.QueryRow(`SELECT f_raw FROM "pages_Email"`).Scan(&stored))
	assert.Equal(t, byte(blobZstd), stored[0])
	assert.Less(t, len(stored), len(big))
}

func TestReadPage_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadPage(context.Background(), emailSchema(), page.MustParse("gmail/Email:nope@1"))
	require.Error(t, err)
	assert.True(t, page.IsNotFound(err))
}

func TestReadPage_DetectsCorruption(t *testing.T) {
	tests := []struct {
		name   string
		tamper string
	}{
		{"attribute changed", `UPDATE "pages_Email" SET f_subject = 'tampered'`},
		{"checksum changed", `UPDATE "pages_Email" SET checksum = x'00'`},
		{"undecodable ref", `UPDATE "pages_Email" SET f_thread = 'not a uri'`},
		{"wrong storage class", `UPDATE "pages_Email" SET f_deleted = 'yes'`},
		{"unknown blob tag", `UPDATE "pages_Email" SET f_raw = x'09'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t)
			ctx := context.Background()

			p := testEmail("gmail/Email:a@1", "x")
			p.Attributes["raw"] = page.Blob("small")
			_, err := s.InsertPage(ctx, emailSchema(), p)
			require.NoError(t, err)

			_, err = s.db.Exec(tt.tamper)
			require.NoError(t, err)

			_, err = s.ReadPage(ctx, emailSchema(), p.URI)
			require.Error(t, err)
			assert.True(t, page.IsCorruption(err), "got %v", err)
		})
	}
}

func TestHasPage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	uri := page.MustParse("gmail/Email:a@1")

	has, err := s.HasPage(ctx, emailSchema(), uri)
	require.NoError(t, err)
	assert.False(t, has)

	_, err = s.InsertPage(ctx, emailSchema(), testEmail(uri.String(), "x"))
	require.NoError(t, err)
	_, err = s.SetValid(ctx, emailSchema(), uri, false)
	require.NoError(t, err)

	has, err = s.HasPage(ctx, emailSchema(), uri)
	require.NoError(t, err)
	assert.True(t, has, "invalid rows still exist")
}

func TestFindPages(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, p := range []page.Page{
		testEmail("gmail/Email:b@1", "re: lunch"),
		testEmail("gmail/Email:a@1", "re: budget"),
		testEmail("gmail/Email:c@1", "fwd: budget"),
		testEmail("gmail/Email:d@1", "re: hidden"),
	} {
		_, err := s.InsertPage(ctx, emailSchema(), p)
		require.NoError(t, err)
	}
	_, err := s.SetValid(ctx, emailSchema(), page.MustParse("gmail/Email:d@1"), false)
	require.NoError(t, err)

	ids := func(pages []page.Page) []string {
		out := []string{}
		for _, p := range pages {
			out = append(out, p.URI.ID)
		}
		return out
	}

	all, err := s.FindPages(ctx, emailSchema(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))

	liked, err := s.FindPages(ctx, emailSchema(), query.Like{Field: "subject", Pattern: "re:%"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(liked))

	globbed, err := s.FindPages(ctx, emailSchema(), query.AllOf(
		query.Eq("deleted", page.Bool(false)),
		query.Match{Field: "subject", Pattern: "*budget"},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(globbed))

	none, err := s.FindPages(ctx, emailSchema(), query.Eq("subject", page.String("nothing")))
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = s.FindPages(ctx, emailSchema(), query.Eq("missing", page.String("x")))
	assert.Equal(t, page.ErrCodeFormat, page.CodeOf(err))
}

func TestReadChildren(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	parent := page.MustParse("gmail/Thread:t@1")
	other := page.MustParse("gmail/Thread:t@2")

	for _, th := range []page.URI{parent, other} {
		_, err := s.InsertPage(ctx, threadSchema(), testThread(th.String(), "t"))
		require.NoError(t, err)
	}
	for _, p := range []page.Page{
		testEmail("gmail/Email:b@1", "x").WithParent(parent),
		testEmail("gmail/Email:a@1", "x").WithParent(parent),
		testEmail("gmail/Email:gone@1", "x").WithParent(parent),
		testEmail("gmail/Email:c@1", "x").WithParent(other),
		testEmail("gmail/Email:orphan@1", "x"),
	} {
		_, err := s.InsertPage(ctx, emailSchema(), p)
		require.NoError(t, err)
	}
	_, err := s.SetValid(ctx, emailSchema(), page.MustParse("gmail/Email:gone@1"), false)
	require.NoError(t, err)

	children, err := s.ReadChildren(ctx, []schema.Schema{emailSchema(), threadSchema()}, parent)
	require.NoError(t, err)
	var got []string
	for _, c := range children {
		got = append(got, c.URI.String())
	}
	assert.Equal(t, []string{"gmail/Email:a@1", "gmail/Email:b@1"}, got)

	none, err := s.ReadChildren(ctx, nil, parent)
	require.NoError(t, err)
	assert.Empty(t, none)
}
