package processing

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var urlRegex = regexp.MustCompile(`https?://[^\s<>"]+`)

// RemoveURLs replaces every HTTP(S) URL in the input with a space.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// ContentText decodes an RSS description or body into plain text: markup is
// dropped, entities are unescaped and URLs removed. Punctuation is left alone;
// that is the normalizer's job.
func ContentText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	text := raw
	if looksLikeHTML(raw) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			doc.Find("script, style").Remove()
			text = doc.Text()
		}
	} else {
		text = html.UnescapeString(raw)
	}

	text = RemoveURLs(text)
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Truncate returns at most max runes of s.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

func looksLikeHTML(s string) bool {
	open := strings.IndexByte(s, '<')
	return open >= 0 && strings.IndexByte(s[open:], '>') > 0
}
