package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/pagecache/internal/page"
)

// formatPage renders a page as its URI followed by indented parent and
// attribute lines.
func formatPage(p page.Page) string {
	var b strings.Builder
	b.WriteString(p.URI.String())
	if p.Parent != nil {
		fmt.Fprintf(&b, "\n  parent: %s", p.Parent)
	}
	for _, name := range p.Attributes.SortedKeys() {
		text, err := page.MarshalPlain(p.Attributes[name])
		if err != nil {
			text = []byte("<" + err.Error() + ">")
		}
		fmt.Fprintf(&b, "\n  %s: %s", name, text)
	}
	return b.String()
}

// formatURIs renders one URI per line, or "(none)".
func formatURIs(pages []page.Page) string {
	if len(pages) == 0 {
		return "(none)"
	}
	lines := make([]string, len(pages))
	for i, p := range pages {
		lines[i] = p.URI.String()
	}
	return strings.Join(lines, "\n")
}

// parseURIs parses every argument as a page URI.
func parseURIs(args []string) ([]page.URI, error) {
	uris := make([]page.URI, len(args))
	for i, arg := range args {
		u, err := page.Parse(arg)
		if err != nil {
			return nil, err
		}
		uris[i] = u
	}
	return uris, nil
}
