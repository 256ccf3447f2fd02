package page

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Checksum is a 32-byte BLAKE3 digest over a page's canonical encoding.
type Checksum [32]byte

// rowDomainKey is the BLAKE3 key for row checksums: the ASCII domain name
// zero-padded to 32 bytes. Changing it invalidates every stored checksum.
var rowDomainKey = [32]byte{
	'p', 'a', 'g', 'e', 'c', 'a', 'c', 'h', 'e', '/', 'r', 'o', 'w', '/', 'v', '1',
}

// String returns the hex form.
func (c Checksum) String() string {
	return hex.EncodeToString(c[:])
}

// CanonicalBytes returns the deterministic encoding of a page's identity,
// parent link and attributes. The validity flag is excluded; it is mutable
// state, not content.
func CanonicalBytes(p Page) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"attributes":`)
	if err := writeCanonicalAttributes(&buf, p.Attributes); err != nil {
		return nil, fmt.Errorf("canonical page %s: %w", p.URI, err)
	}
	buf.WriteString(`,"parent":`)
	writeCanonicalString(&buf, p.ParentString())
	buf.WriteString(`,"uri":`)
	writeCanonicalString(&buf, p.URI.String())
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ComputeChecksum hashes the canonical encoding of p.
func ComputeChecksum(p Page) (Checksum, error) {
	data, err := CanonicalBytes(p)
	if err != nil {
		return Checksum{}, err
	}
	hasher, err := blake3.NewKeyed(rowDomainKey[:])
	if err != nil {
		panic("page: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var sum Checksum
	copy(sum[:], hasher.Sum(nil))
	return sum, nil
}
