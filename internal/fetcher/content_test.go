package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const productHTML = `
<html>
<head>
	<title>Magnesium Glycinate</title>
	<style>.price { color: red; }</style>
	<script>console.log("tracking");</script>
</head>
<body>
	<nav>Home / Supplements / Magnesium</nav>
	<div class="product">
		<h1>Magnesium Glycinate</h1>
		<span class="price-box">$45.99 for 120 capsules</span>
	</div>
	<script>dataLayer.push({});</script>
	<noscript>Please enable JavaScript</noscript>
	<footer>Copyright 2026</footer>
</body>
</html>`

func TestExtractText(t *testing.T) {
	tests := []struct {
		name        string
		hint        string
		want        string
		wantMissing []string
	}{
		{
			name:        "hint scopes to matching element",
			hint:        ".price-box",
			want:        "$45.99 for 120 capsules",
			wantMissing: []string{"Copyright", "Home /"},
		},
		{
			name: "no hint returns full body text",
			hint: "",
			want: "$45.99 for 120 capsules",
		},
		{
			name: "non-matching hint falls back to body",
			hint: "#does-not-exist",
			want: "Magnesium Glycinate",
		},
		{
			name: "malformed hint falls back to body",
			hint: ":::not a selector:::",
			want: "$45.99 for 120 capsules",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := ExtractText(productHTML, tt.hint, 5000)
			assert.Contains(t, text, tt.want)
			for _, missing := range tt.wantMissing {
				assert.NotContains(t, text, missing)
			}
		})
	}
}

func TestExtractTextStripsScriptsAndStyles(t *testing.T) {
	text := ExtractText(productHTML, "", 5000)

	assert.NotContains(t, text, "console.log")
	assert.NotContains(t, text, "dataLayer")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Please enable JavaScript")
}

func TestExtractTextNormalizesWhitespace(t *testing.T) {
	html := "<body><p>  multiple \n\n spaces \t here  </p></body>"
	assert.Equal(t, "multiple spaces here", ExtractText(html, "", 5000))
}

func TestExtractTextTruncates(t *testing.T) {
	html := "<body>" + strings.Repeat("word ", 2000) + "</body>"
	text := ExtractText(html, "", 100)
	assert.Len(t, text, 100)
}

func TestExtractTextEmptyDocument(t *testing.T) {
	assert.Equal(t, "", ExtractText("", "", 5000))
	assert.Equal(t, "", ExtractText("<body></body>", "", 5000))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 0), "non-positive bound means unbounded")
	assert.Equal(t, "abc", Truncate("abc", -1))
}
