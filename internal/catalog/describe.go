package catalog

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const describeLimit = 300

// Describe renders a response body for diagnostics. HTML pages (error pages, bot challenges)
// are reduced to their title, everything else is truncated.
func Describe(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "<empty body>"
	}

	if looksLikeHtml(trimmed) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(trimmed))
		if err == nil {
			title := strings.TrimSpace(doc.Find("title").First().Text())
			if title != "" {
				return "html page: " + title
			}
		}
	}

	return truncate(string(trimmed), describeLimit)
}

func looksLikeHtml(body []byte) bool {
	prefix := strings.ToLower(string(body[:min(len(body), 64)]))
	return strings.HasPrefix(prefix, "<!doctype html") || strings.HasPrefix(prefix, "<html")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
