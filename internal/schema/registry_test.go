package schema

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pagecache/internal/page"
)

type memBackend struct {
	mu      sync.Mutex
	ensured map[string]Schema
	calls   int
}

func newMemBackend() *memBackend {
	return &memBackend{ensured: make(map[string]Schema)}
}

func (b *memBackend) EnsureType(_ context.Context, s Schema) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if existing, ok := b.ensured[s.Type]; ok && existing.Signature() != s.Signature() {
		return page.NewError(page.ErrCodeSchemaConflict, "", "conflict")
	}
	b.ensured[s.Type] = s
	return nil
}

func (b *memBackend) LoadTypes(context.Context) ([]Schema, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Schema, 0, len(b.ensured))
	for _, s := range b.ensured {
		out = append(out, s)
	}
	return out, nil
}

func TestRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	r := NewRegistry(backend)

	require.NoError(t, r.Register(ctx, emailSchema()))
	require.NoError(t, r.Register(ctx, emailSchema()))
	assert.Equal(t, 1, backend.calls, "backing storage is created once")

	got, err := r.Lookup("Email")
	require.NoError(t, err)
	assert.Equal(t, emailSchema().Signature(), got.Signature())
}

func TestRegisterConflict(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemBackend())
	require.NoError(t, r.Register(ctx, emailSchema()))

	changed := emailSchema()
	changed.Fields[0].Kind = page.KindInt
	err := r.Register(ctx, changed)
	require.Error(t, err)
	assert.Equal(t, page.ErrCodeSchemaConflict, page.CodeOf(err))

	// The original layout is still registered.
	got, err := r.Lookup("Email")
	require.NoError(t, err)
	assert.Equal(t, page.KindString, got.Fields[0].Kind)
}

func TestRegisterReplacesInvalidWhen(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil)
	require.NoError(t, r.Register(ctx, emailSchema()))

	relaxed := emailSchema()
	relaxed.InvalidWhen = nil
	require.NoError(t, r.Register(ctx, relaxed))

	got, err := r.Lookup("Email")
	require.NoError(t, err)
	assert.Empty(t, got.InvalidWhen)
}

func TestLookupUnregistered(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Lookup("Nope")
	require.Error(t, err)
	assert.True(t, page.IsNotFound(err))
}

func TestLoadHydratesFromBackend(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	require.NoError(t, NewRegistry(backend).Register(ctx, emailSchema()))

	fresh := NewRegistry(backend)
	_, err := fresh.Lookup("Email")
	require.Error(t, err)

	require.NoError(t, fresh.Load(ctx))
	_, err = fresh.Lookup("Email")
	require.NoError(t, err)
	assert.Len(t, fresh.Types(), 1)
}

func TestRegisterRejectsBadSchema(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Register(context.Background(), Schema{Type: "a/b"})
	require.Error(t, err)
	assert.Equal(t, page.ErrCodeFormat, page.CodeOf(err))
}

func TestRegisterConcurrent(t *testing.T) {
	ctx := context.Background()
	backend := newMemBackend()
	r := NewRegistry(backend)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Register(ctx, emailSchema()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, backend.calls)
}
