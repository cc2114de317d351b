package summarize

import (
	"fmt"
	"net/http"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/witheez/eventatlas-capture-sub000/internal/capture"
)

// FetchReadable fetches a URL and extracts readable text content. Used for
// captures that were saved without their page text.
// Returns an error for non-HTTP URLs or if extraction fails.
func FetchReadable(url string) (title, text string, err error) {
	if capture.Skippable(url) {
		return "", "", fmt.Errorf("skipping non-HTTP URL: %s", url)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, nil)
	if err != nil {
		return "", "", fmt.Errorf("extract readable content from %s: %w", url, err)
	}

	return article.Title, article.TextContent, nil
}
