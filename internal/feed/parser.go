// Package feed fetches RSS documents and tokenizes them into the plain
// upper-cased strings the rain display consumes.
package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// The parts of an RSS item that become display tokens.
type item struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
}

// Parse extracts display tokens from a feed document. Every <item> element,
// at any depth in the tree, contributes its title then its description in
// document order, each stripped of markup and upper-cased. Absent or empty
// values contribute nothing.
//
// A malformed document returns an error and no tokens; callers are expected
// to log and move on rather than abort their cycle.
func Parse(doc []byte) ([]string, error) {
	d := xml.NewDecoder(bytes.NewReader(doc))

	var tokens []string
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing feed document: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "item" {
			continue
		}

		var it item
		if err := d.DecodeElement(&it, &start); err != nil {
			return nil, fmt.Errorf("error decoding feed item: %w", err)
		}

		if title := sanitize(it.Title); title != "" {
			tokens = append(tokens, strings.ToUpper(title))
		}
		if desc := sanitize(it.Description); desc != "" {
			tokens = append(tokens, strings.ToUpper(desc))
		}
	}

	return tokens, nil
}

var stripPolicy = bluemonday.StrictPolicy()

// Removes all html tags from the string, usually a description.
//
// Also limits the length of the string so there's not a massive chunk of text being output.
func sanitize(s string) string {
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	s = strings.TrimSpace(s)
	if len(s) > 2048 {
		s = s[:2048]
	}

	return s
}
