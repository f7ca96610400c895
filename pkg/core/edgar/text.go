package edgar

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// skippedElements never contribute visible text.
var skippedElements = map[string]bool{
	"head":      true,
	"script":    true,
	"style":     true,
	"noscript":  true,
	"template":  true,
	"ix:header": true, // inline XBRL hidden facts and contexts
}

// PlainText returns the visible text of an HTML document: text nodes outside
// skipped and hidden elements, joined by single spaces with runs of
// whitespace collapsed.
func PlainText(body []byte) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(body), "")
	if err != nil {
		return "", fmt.Errorf("detect charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var words []string
	for _, n := range doc.Nodes {
		collectText(n, &words)
	}
	return strings.Join(words, " "), nil
}

func collectText(n *html.Node, words *[]string) {
	switch n.Type {
	case html.TextNode:
		*words = append(*words, strings.Fields(n.Data)...)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if skippedElements[strings.ToLower(n.Data)] || isHidden(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, words)
	}
}

func isHidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") {
				return true
			}
		}
	}
	return false
}
