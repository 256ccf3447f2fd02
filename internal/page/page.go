package page

// Page is a single cached record.
//
// Parent is the provenance link to the page this one was derived from. When
// present it is always a concrete version. Valid reports the stored validity
// flag; Get and Find only ever return pages that are valid.
type Page struct {
	URI        URI        `json:"uri"`
	Parent     *URI       `json:"parent,omitempty"`
	Attributes Attributes `json:"attributes"`
	Valid      bool       `json:"valid"`
}

// New builds a valid page without a parent.
func New(uri URI, attrs Attributes) Page {
	if attrs == nil {
		attrs = Attributes{}
	}
	return Page{URI: uri, Attributes: attrs, Valid: true}
}

// WithParent returns a copy of p linked to parent.
func (p Page) WithParent(parent URI) Page {
	p.Parent = &parent
	return p
}

// HasParent reports whether p carries a provenance link.
func (p Page) HasParent() bool {
	return p.Parent != nil
}

// ParentString returns the canonical parent URI text, or "" when p has no
// parent.
func (p Page) ParentString() string {
	if p.Parent == nil {
		return ""
	}
	return p.Parent.String()
}

// Attr returns the named attribute and whether it is present.
func (p Page) Attr(name string) (Value, bool) {
	v, ok := p.Attributes[name]
	return v, ok
}
