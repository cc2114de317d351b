// Package capture processes raw page HTML shipped over the bridge: readable
// text extraction, link harvesting and image harvesting. The extension sends
// the serialized DOM; everything DOM-shaped happens here on the Go side.
package capture

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// skipPrefixes are URL schemes that never produce a capturable page and are
// dropped from harvested links.
var skipPrefixes = []string{
	"about:", "moz-extension:", "chrome-extension:", "file:", "chrome:",
	"resource:", "data:", "javascript:", "mailto:", "tel:",
}

var (
	hrefPattern = regexp.MustCompile(`(?i)<a\s[^>]*?href\s*=\s*["']([^"']+)["']`)
	srcPattern  = regexp.MustCompile(`(?i)<img\s[^>]*?src\s*=\s*["']([^"']+)["']`)
)

// Extracted is the processed form of one captured page.
type Extracted struct {
	Title  string
	Text   string
	Links  []string
	Images []string
}

// Extract parses the captured HTML. Title and text come from the
// readability pass; links and images come from a plain attribute scan so
// they survive pages where readability strips the interesting markup.
// Relative URLs resolve against pageURL.
func Extract(html, pageURL string) (*Extracted, error) {
	if Skippable(pageURL) {
		return nil, fmt.Errorf("skipping non-HTTP URL: %s", pageURL)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL %s: %w", pageURL, err)
	}

	out := &Extracted{
		Links:  harvest(html, hrefPattern, base),
		Images: harvest(html, srcPattern, base),
	}

	article, err := readability.FromReader(strings.NewReader(html), base)
	if err != nil {
		// Keep the harvested URLs even when readability gives up.
		return out, nil
	}
	out.Title = strings.TrimSpace(article.Title)
	out.Text = strings.TrimSpace(article.TextContent)
	return out, nil
}

// Skippable reports whether the URL uses a scheme that is never captured.
func Skippable(pageURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(pageURL))
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// harvest pulls attribute values matching pattern, resolves them against
// base and deduplicates while preserving first-seen order.
func harvest(html string, pattern *regexp.Regexp, base *url.URL) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range pattern.FindAllStringSubmatch(html, -1) {
		raw := strings.TrimSpace(m[1])
		if raw == "" || strings.HasPrefix(raw, "#") || Skippable(raw) {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		resolved.Fragment = ""
		abs := resolved.String()
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out
}
