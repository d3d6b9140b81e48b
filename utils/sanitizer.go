package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	// StrictPolicy removes all markup
	StrictPolicy *bluemonday.Policy
	// UGCPolicy keeps the markup mail bodies commonly use
	UGCPolicy *bluemonday.Policy
)

func init() {
	StrictPolicy = bluemonday.StrictPolicy()

	UGCPolicy = bluemonday.UGCPolicy()

	// Allow additional safe elements for email content
	UGCPolicy.AllowElements("p", "br", "div", "span", "h1", "h2", "h3", "h4", "h5", "h6")
	UGCPolicy.AllowElements("strong", "em", "u", "s", "code", "pre")
	UGCPolicy.AllowElements("ul", "ol", "li")
	UGCPolicy.AllowElements("blockquote")
	UGCPolicy.AllowElements("a", "img")
	UGCPolicy.AllowElements("table", "thead", "tbody", "tr", "th", "td")

	// Allow safe attributes
	UGCPolicy.AllowAttrs("href").OnElements("a")
	UGCPolicy.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
	UGCPolicy.AllowAttrs("class", "id").Globally()
	UGCPolicy.AllowAttrs("style").OnElements("span", "div", "p")

	// Require URLs to be safe
	UGCPolicy.RequireParseableURLs(true)
	UGCPolicy.AllowURLSchemes("http", "https", "mailto", "cid")
}

// SanitizeHTML sanitizes HTML content using the UGC policy
func SanitizeHTML(content string) string {
	return UGCPolicy.Sanitize(content)
}

// StripHTML returns the text of content with every tag removed. Block
// breaks become newlines first so paragraphs survive.
func StripHTML(content string) string {
	r := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "</p>\n", "</div>", "</div>\n")
	text := StrictPolicy.Sanitize(r.Replace(content))
	return strings.TrimSpace(html.UnescapeString(text))
}

// TextToHTML renders plain text as escaped HTML with line breaks kept.
func TextToHTML(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := strings.Split(strings.TrimRight(text, "\n"), "\n\n")

	var b strings.Builder
	for _, p := range paragraphs {
		b.WriteString("<p>")
		lines := strings.Split(p, "\n")
		for i, line := range lines {
			if i > 0 {
				b.WriteString("<br/>")
			}
			b.WriteString(html.EscapeString(line))
		}
		b.WriteString("</p>")
	}
	return b.String()
}
