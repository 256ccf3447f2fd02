package schema

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pagecache/internal/page"
)

const emailCUE = `
page: Email: {
	fields: {
		subject:  string
		size:     int
		deleted:  bool
		sent:     "time"
		thread?:  "ref"
		labels?:  [...string]
		raw?:     bytes
	}
	invalid_when: deleted: true
}

page: Chunk: {
	fields: {
		text: string
	}
}
`

func TestCompileTypeBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(emailCUE)
	require.NoError(t, v.Err())

	s, err := CompileType(v.LookupPath(cue.ParsePath("page.Email")))
	require.NoError(t, err)

	assert.Equal(t, "Email", s.Type)
	kinds := map[string]page.Kind{}
	optional := map[string]bool{}
	for _, f := range s.Fields {
		kinds[f.Name] = f.Kind
		optional[f.Name] = f.Optional
	}
	assert.Equal(t, map[string]page.Kind{
		"subject": page.KindString,
		"size":    page.KindInt,
		"deleted": page.KindBool,
		"sent":    page.KindTime,
		"thread":  page.KindRef,
		"labels":  page.KindList,
		"raw":     page.KindBlob,
	}, kinds)
	assert.True(t, optional["thread"])
	assert.False(t, optional["subject"])
	assert.Equal(t, page.Attributes{"deleted": page.Bool(true)}, s.InvalidWhen)
}

func TestCompileSourceAllTypes(t *testing.T) {
	schemas, err := CompileSource(emailCUE)
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	assert.Equal(t, "Email", schemas[0].Type)
	assert.Equal(t, "Chunk", schemas[1].Type)
}

func TestCompileTypeRejectsFloats(t *testing.T) {
	_, err := CompileSource(`page: Bad: fields: score: float`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float")
}

func TestCompileTypeMissingFields(t *testing.T) {
	_, err := CompileSource(`page: Bad: { invalid_when: {} }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fields are required")
}

func TestCompileTypeUnknownInvalidWhenField(t *testing.T) {
	_, err := CompileSource(`page: Bad: { fields: a: int, invalid_when: b: 1 }`)
	require.Error(t, err)
	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "invalid_when.b", compileErr.Field)
}

func TestCompileSourceSyntaxError(t *testing.T) {
	_, err := CompileSource(`page: {`)
	require.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	src := "package pages\n" + emailCUE
	require.NoError(t, os.WriteFile(filepath.Join(dir, "types.cue"), []byte(src), 0o644))

	schemas, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, schemas, 2)
}

func TestLoadDirEmpty(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files")

	_, err = LoadDir(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
