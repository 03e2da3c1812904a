package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText pulls visible text out of rendered HTML. When hint is a CSS
// selector that matches a non-empty element, only that element's text is
// returned; otherwise the whole document body is used, truncated to maxLen.
func ExtractText(html, hint string, maxLen int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	if hint != "" {
		if text := selectorText(doc, hint); text != "" {
			return Truncate(text, maxLen)
		}
	}

	body := doc.Find("body")
	body.Find("script, style, noscript").Remove()

	return Truncate(normalizeWhitespace(body.Text()), maxLen)
}

// selectorText returns the normalized text of the first element matching the
// selector. Invalid selectors and empty matches both yield "" so the caller
// falls back to the full document.
func selectorText(doc *goquery.Document, selector string) (text string) {
	defer func() {
		// cascadia panics on some malformed selectors; a bad admin-supplied
		// hint must not kill the scrape.
		if r := recover(); r != nil {
			text = ""
		}
	}()

	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	return normalizeWhitespace(sel.Text())
}

// Truncate bounds s to maxLen bytes. A non-positive maxLen means no bound.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
