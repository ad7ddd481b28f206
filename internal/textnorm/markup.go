package textnorm

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripMarkup reduces rich-text post bodies (HTML from the feed editor) to their
// visible text. Block elements are separated by spaces so words do not fuse.
// Text without a '<' is returned unchanged, and unparsable input is returned as is.
func StripMarkup(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}

	doc.Find("script, style, noscript").Remove()

	var parts []string
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		collectText(s, &parts)
	})
	return strings.Join(parts, " ")
}

// collectText walks s depth-first and appends every non-empty text node.
func collectText(s *goquery.Selection, parts *[]string) {
	if goquery.NodeName(s) == "#text" {
		if t := strings.TrimSpace(s.Text()); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		collectText(child, parts)
	})
}
