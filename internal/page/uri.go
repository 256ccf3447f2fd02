package page

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Latest is the reserved version sentinel meaning "the highest stored version".
// Concrete versions start at 1.
const Latest int64 = 0

// URI identifies a page: root/type:id@version.
//
// The zero Version is the Latest sentinel. URIs are plain values; equality is
// exact on all four fields, so a latest URI and any concrete URI of the same
// document are different identities.
type URI struct {
	Root    string
	Type    string
	ID      string
	Version int64
}

// NewURI builds a URI and validates its components.
func NewURI(root, typeName, id string, version int64) (URI, error) {
	u := URI{Root: root, Type: typeName, ID: id, Version: version}
	if err := u.Validate(); err != nil {
		return URI{}, err
	}
	return u, nil
}

// Parse parses the canonical text form root/type:id[@version].
//
// The version suffix is optional; when absent the URI refers to the latest
// version. Parse only accepts canonical input (NFC components, no leading
// zeros in the version), so Parse(s).String() == s for every accepted s.
func Parse(s string) (URI, error) {
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return URI{}, formatErr(s, "missing '/' between root and type")
	}
	root, rest := s[:slash], s[slash+1:]

	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return URI{}, formatErr(s, "missing ':' between type and id")
	}
	typeName, rest := rest[:colon], rest[colon+1:]

	id := rest
	version := Latest
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		id = rest[:at]
		v, err := parseVersion(rest[at+1:])
		if err != nil {
			return URI{}, formatErr(s, err.Error())
		}
		version = v
	}

	u := URI{Root: root, Type: typeName, ID: id, Version: version}
	if err := u.Validate(); err != nil {
		return URI{}, err
	}
	return u, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParse(s string) URI {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func parseVersion(s string) (int64, error) {
	if s == "" {
		return 0, errString("empty version")
	}
	if s[0] == '0' {
		return 0, errString("version must be a positive integer without leading zeros")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errString("version must be decimal digits")
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errString("version out of range")
	}
	return v, nil
}

// Validate checks component syntax. It returns a FORMAT error on failure.
func (u URI) Validate() error {
	raw := u.String()
	switch {
	case strings.ContainsRune(u.Root, '/'):
		return formatErr(raw, "root cannot contain '/'")
	case u.Type == "":
		return formatErr(raw, "type is empty")
	case strings.ContainsAny(u.Type, "/:@"):
		return formatErr(raw, "type cannot contain '/', ':' or '@'")
	case u.ID == "":
		return formatErr(raw, "id is empty")
	case strings.ContainsAny(u.ID, ":@"):
		return formatErr(raw, "id cannot contain ':' or '@'")
	case u.Version < 0:
		return formatErr(raw, "version must be positive or latest")
	}
	for _, part := range []string{u.Root, u.Type, u.ID} {
		if !norm.NFC.IsNormalString(part) {
			return formatErr(raw, "components must be NFC normalized")
		}
	}
	return nil
}

// String returns the canonical text form. The version suffix is omitted for
// latest URIs.
func (u URI) String() string {
	var b strings.Builder
	b.Grow(len(u.Root) + len(u.Type) + len(u.ID) + 24)
	b.WriteString(u.Root)
	b.WriteByte('/')
	b.WriteString(u.Type)
	b.WriteByte(':')
	b.WriteString(u.ID)
	if u.Version != Latest {
		b.WriteByte('@')
		b.WriteString(strconv.FormatInt(u.Version, 10))
	}
	return b.String()
}

// Key returns the version-less logical document key (root/type:id).
func (u URI) Key() string {
	return u.AsLatest().String()
}

// IsLatest reports whether the URI carries the latest sentinel.
func (u URI) IsLatest() bool {
	return u.Version == Latest
}

// WithVersion returns a copy pinned to version n.
func (u URI) WithVersion(n int64) URI {
	u.Version = n
	return u
}

// AsLatest returns a copy carrying the latest sentinel.
func (u URI) AsLatest() URI {
	u.Version = Latest
	return u
}

// SameDocument reports whether both URIs name the same logical document,
// ignoring versions.
func (u URI) SameDocument(other URI) bool {
	return u.Root == other.Root && u.Type == other.Type && u.ID == other.ID
}

// MarshalText implements encoding.TextMarshaler.
func (u URI) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *URI) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func formatErr(raw, msg string) *Error {
	return &Error{Code: ErrCodeFormat, Message: "invalid page URI: " + msg, URI: raw}
}

type errString string

func (e errString) Error() string { return string(e) }
