package store

import (
	"bytes"
	"database/sql"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/query"
	"github.com/roach88/pagecache/internal/schema"
)

// blobTag is the one-byte codec prefix of every stored blob attribute.
// These values are part of the on-disk format.
type blobTag uint8

const (
	blobRaw  blobTag = 0
	blobZstd blobTag = 1
)

// zstdEncoder and zstdDecoder are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

// Bounds of time.Time.UnixNano.
var (
	minStorableTime = time.Unix(0, -1<<63)
	maxStorableTime = time.Unix(0, 1<<63-1)
)

// keyColumns precede the attribute columns in every row.
var keyColumns = []string{
	query.ColRoot, query.ColID, query.ColVersion, query.ColParent, query.ColValid, query.ColChecksum,
}

// rowColumns lists every column of sc's table in scan order.
func rowColumns(sc schema.Schema) []string {
	fields := sc.SortedFields()
	cols := make([]string, 0, len(keyColumns)+len(fields))
	cols = append(cols, keyColumns...)
	for _, f := range fields {
		cols = append(cols, f.Column())
	}
	return cols
}

// encodeRow returns the column values of p in rowColumns order.
func (s *Store) encodeRow(sc schema.Schema, p page.Page) ([]any, error) {
	sum, err := page.ComputeChecksum(p)
	if err != nil {
		return nil, page.WrapError(page.ErrCodeInvalidAttributes, p.URI.String(), "checksum", err)
	}
	var parent any
	if p.Parent != nil {
		parent = p.Parent.String()
	}

	fields := sc.SortedFields()
	vals := make([]any, 0, len(keyColumns)+len(fields))
	vals = append(vals, p.URI.Root, p.URI.ID, p.URI.Version, parent, int64(1), sum[:])
	for _, f := range fields {
		v, ok := p.Attributes[f.Name]
		if !ok {
			vals = append(vals, nil)
			continue
		}
		col, err := s.encodeValue(v)
		if err != nil {
			return nil, page.WrapError(page.ErrCodeInvalidAttributes, p.URI.String(),
				fmt.Sprintf("attribute %q", f.Name), err)
		}
		vals = append(vals, col)
	}
	return vals, nil
}

func (s *Store) encodeValue(v page.Value) (any, error) {
	switch val := v.(type) {
	case page.Blob:
		return s.encodeBlob(val), nil
	case page.Time:
		if val.Before(minStorableTime) || val.After(maxStorableTime) {
			return nil, fmt.Errorf("time %s out of storable range", val.Format(time.RFC3339))
		}
	}
	return query.Param(v)
}

func (s *Store) encodeBlob(data []byte) []byte {
	if s.compressThreshold > 0 && len(data) > s.compressThreshold {
		compressed := zstdEncoder.EncodeAll(data, []byte{byte(blobZstd)})
		if len(compressed) < len(data)+1 {
			return compressed
		}
	}
	out := make([]byte, 0, len(data)+1)
	out = append(out, byte(blobRaw))
	return append(out, data...)
}

func decodeBlob(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("blob: missing codec tag")
	}
	switch blobTag(stored[0]) {
	case blobRaw:
		return bytes.Clone(stored[1:]), nil
	case blobZstd:
		data, err := zstdDecoder.DecodeAll(stored[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("blob: zstd: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("blob: unknown codec tag %d", stored[0])
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPage reads one row in rowColumns order, decodes it and verifies the
// stored checksum. Undecodable columns and checksum mismatches fail with
// ErrCodeDataCorruption.
func scanPage(r rowScanner, sc schema.Schema) (page.Page, error) {
	fields := sc.SortedFields()

	var (
		root, id string
		version  int64
		parent   sql.NullString
		valid    bool
		checksum []byte
	)
	raw := make([]any, len(fields))
	dest := make([]any, 0, len(keyColumns)+len(fields))
	dest = append(dest, &root, &id, &version, &parent, &valid, &checksum)
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	if err := r.Scan(dest...); err != nil {
		return page.Page{}, err
	}

	uri, err := page.NewURI(root, sc.Type, id, version)
	if err != nil || uri.IsLatest() {
		return page.Page{}, corruption("", "%s row key (%q, %q, %d) is not a concrete URI", sc.Type, root, id, version)
	}
	key := uri.String()

	p := page.New(uri, make(page.Attributes, len(fields)))
	p.Valid = valid
	if parent.Valid {
		pu, err := page.Parse(parent.String)
		if err != nil {
			return page.Page{}, corruption(key, "parent_uri: %v", err)
		}
		p.Parent = &pu
	}
	for i, f := range fields {
		if raw[i] == nil {
			if !f.Optional {
				return page.Page{}, corruption(key, "required attribute %q is null", f.Name)
			}
			continue
		}
		v, err := decodeValue(f.Kind, raw[i])
		if err != nil {
			return page.Page{}, corruption(key, "attribute %q: %v", f.Name, err)
		}
		p.Attributes[f.Name] = v
	}

	sum, err := page.ComputeChecksum(p)
	if err != nil {
		return page.Page{}, corruption(key, "checksum: %v", err)
	}
	if !bytes.Equal(sum[:], checksum) {
		return page.Page{}, corruption(key, "checksum mismatch")
	}
	return p, nil
}

// decodeValue converts a column value back into a page value of kind.
func decodeValue(kind page.Kind, raw any) (page.Value, error) {
	switch kind {
	case page.KindString:
		s, err := asText(raw)
		return page.String(s), err
	case page.KindInt:
		n, err := asInt(raw)
		return page.Int(n), err
	case page.KindBool:
		n, err := asInt(raw)
		if err != nil {
			return nil, err
		}
		if n != 0 && n != 1 {
			return nil, fmt.Errorf("bool column holds %d", n)
		}
		return page.Bool(n == 1), nil
	case page.KindTime:
		n, err := asInt(raw)
		if err != nil {
			return nil, err
		}
		return page.NewTime(time.Unix(0, n)), nil
	case page.KindRef:
		s, err := asText(raw)
		if err != nil {
			return nil, err
		}
		u, err := page.Parse(s)
		if err != nil {
			return nil, err
		}
		return page.Ref(u), nil
	case page.KindList:
		s, err := asText(raw)
		if err != nil {
			return nil, err
		}
		v, err := page.UnmarshalCanonical([]byte(s))
		if err != nil {
			return nil, err
		}
		list, ok := v.(page.List)
		if !ok {
			return nil, fmt.Errorf("list column holds %s", v.Kind())
		}
		return list, nil
	case page.KindBlob:
		b, ok := raw.([]byte)
		if !ok {
			return nil, fmt.Errorf("blob column holds %T", raw)
		}
		data, err := decodeBlob(b)
		if err != nil {
			return nil, err
		}
		return page.Blob(data), nil
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func asText(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("text column holds %T", raw)
	}
}

func asInt(raw any) (int64, error) {
	n, ok := raw.(int64)
	if !ok {
		return 0, fmt.Errorf("integer column holds %T", raw)
	}
	return n, nil
}
