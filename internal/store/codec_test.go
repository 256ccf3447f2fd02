package store

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pagecache/internal/page"
)

func TestBlobCodec(t *testing.T) {
	s := &Store{compressThreshold: 16}

	small := []byte("tiny")
	enc := s.encodeBlob(small)
	assert.Equal(t, byte(blobRaw), enc[0])
	dec, err := decodeBlob(enc)
	require.NoError(t, err)
	assert.Equal(t, small, dec)

	big := bytes.Repeat([]byte("a"), 1024)
	enc = s.encodeBlob(big)
	assert.Equal(t, byte(blobZstd), enc[0])
	dec, err = decodeBlob(enc)
	require.NoError(t, err)
	assert.Equal(t, big, dec)

	disabled := &Store{compressThreshold: -1}
	assert.Equal(t, byte(blobRaw), disabled.encodeBlob(big)[0])
}

func TestBlobCodec_IncompressibleStaysRaw(t *testing.T) {
	s := &Store{compressThreshold: 1}
	// Too short for zstd framing to pay off.
	enc := s.encodeBlob([]byte{0x01, 0x02, 0x03})
	assert.Equal(t, byte(blobRaw), enc[0])
}

func TestDecodeBlob_Errors(t *testing.T) {
	_, err := decodeBlob(nil)
	assert.Error(t, err)

	_, err = decodeBlob([]byte{byte(blobZstd), 0xff, 0xff})
	assert.Error(t, err)
}

func TestEncodeValue_TimeRange(t *testing.T) {
	s := &Store{}
	_, err := s.encodeValue(page.NewTime(time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Error(t, err)

	v, err := s.encodeValue(page.NewTime(time.Unix(0, 42)))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestDecodeValue_Kinds(t *testing.T) {
	tests := []struct {
		kind page.Kind
		raw  any
		want page.Value
	}{
		{page.KindString, "x", page.String("x")},
		{page.KindString, []byte("y"), page.String("y")},
		{page.KindInt, int64(9), page.Int(9)},
		{page.KindBool, int64(1), page.Bool(true)},
		{page.KindTime, int64(0), page.NewTime(time.Unix(0, 0))},
		{page.KindRef, "g/T:x@1", page.Ref(page.MustParse("g/T:x@1"))},
		{page.KindList, `{"list":[{"int":1}]}`, page.List{page.Int(1)}},
		{page.KindBlob, []byte{0, 'z'}, page.Blob("z")},
	}
	for _, tt := range tests {
		got, err := decodeValue(tt.kind, tt.raw)
		require.NoError(t, err, tt.kind)
		assert.True(t, page.Equal(tt.want, got), tt.kind)
	}

	for _, bad := range []struct {
		kind page.Kind
		raw  any
	}{
		{page.KindInt, "1"},
		{page.KindBool, int64(2)},
		{page.KindList, `{"int":1}`},
		{page.KindBlob, "text"},
		{"float", int64(1)},
	} {
		_, err := decodeValue(bad.kind, bad.raw)
		assert.Error(t, err, bad.kind)
	}
}

func TestRowColumns(t *testing.T) {
	cols := rowColumns(threadSchema())
	assert.Equal(t, []string{"root", "id", "version", "parent_uri", "valid", "checksum", "f_title"}, cols)
}
