package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/schema"
)

// createTestStore creates a new file-backed store with the test types
// registered.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, sc := range []schema.Schema{emailSchema(), threadSchema()} {
		if err := s.EnsureType(context.Background(), sc); err != nil {
			t.Fatalf("EnsureType(%s) failed: %v", sc.Type, err)
		}
	}
	return s
}

func emailSchema() schema.Schema {
	return schema.Schema{
		Type: "Email",
		Fields: []schema.Field{
			{Name: "subject", Kind: page.KindString},
			{Name: "deleted", Kind: page.KindBool},
			{Name: "sent", Kind: page.KindTime, Optional: true},
			{Name: "thread", Kind: page.KindRef, Optional: true},
			{Name: "labels", Kind: page.KindList, Optional: true},
			{Name: "raw", Kind: page.KindBlob, Optional: true},
		},
		InvalidWhen: page.Attributes{"deleted": page.Bool(true)},
	}
}

func threadSchema() schema.Schema {
	return schema.Schema{
		Type:   "Thread",
		Fields: []schema.Field{{Name: "title", Kind: page.KindString}},
	}
}

// testEmail creates an Email page with the required attributes.
func testEmail(uri, subject string) page.Page {
	return page.New(page.MustParse(uri), page.Attributes{
		"subject": page.String(subject),
		"deleted": page.Bool(false),
	})
}

func testThread(uri, title string) page.Page {
	return page.New(page.MustParse(uri), page.Attributes{"title": page.String(title)})
}
