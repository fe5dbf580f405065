package webhook

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

const (
	maxExcerptWords = 40
	maxExcerptRunes = 240
)

// bodyExcerpt renders a short plain-text view of a reply body for error
// messages. HTML pages are reduced to their visible text.
func bodyExcerpt(body []byte, contentType string) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}

	text := string(body)
	if looksLikeHTML(body, contentType) {
		if doc, err := html.Parse(bytes.NewReader(body)); err == nil {
			text = extractVisibleText(doc)
		}
	}

	return truncateRunes(truncateWords(cleanText(text), maxExcerptWords), maxExcerptRunes)
}

func looksLikeHTML(body []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<!doctype html")) ||
		bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<html"))
}

// extractVisibleText collects text nodes, skipping non-visible elements
func extractVisibleText(n *html.Node) string {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "head", "noscript":
			return ""
		}
	}

	var text strings.Builder
	if n.Type == html.TextNode {
		text.WriteString(n.Data)
		text.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text.WriteString(extractVisibleText(c))
	}
	return text.String()
}

// cleanText collapses runs of whitespace
func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

func truncateRunes(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes-3]) + "..."
}
