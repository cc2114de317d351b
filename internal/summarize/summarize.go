package summarize

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/witheez/eventatlas-capture-sub000/internal/applog"
	"github.com/witheez/eventatlas-capture-sub000/internal/types"
)

// Config holds configuration for the summarize command.
type Config struct {
	OutDir     string
	Model      string
	OllamaHost string
	BundleName string
	Bundles    []*types.Bundle
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// sanitizeFilename converts a page title into a safe filename (without extension).
func sanitizeFilename(title string) string {
	s := strings.TrimSpace(strings.ToLower(title))
	if s == "" {
		return "untitled"
	}
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 100 {
		s = s[:100]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

// SummaryPath returns the file path for a page summary, organized by domain subfolder.
func SummaryPath(outDir, rawURL, title string) string {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
		host = nonAlphanumeric.ReplaceAllString(host, "-")
		host = strings.Trim(host, "-")
		if host == "" {
			host = "unknown"
		}
	}
	return filepath.Join(outDir, host, sanitizeFilename(title)+".md")
}

// ReadSummary reads a summary markdown file and returns the summary text
// (everything after the "## Summary\n\n" marker). If the marker is not found,
// the full content is returned. Returns an error if the file cannot be read.
func ReadSummary(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(data)
	const marker = "## Summary\n\n"
	if idx := strings.Index(content, marker); idx >= 0 {
		return content[idx+len(marker):], nil
	}
	return content, nil
}

// findBundle returns the first bundle matching the given name, or nil.
func findBundle(bundles []*types.Bundle, name string) *types.Bundle {
	for _, b := range bundles {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// pageText returns the text to summarize for a capture: the stored page
// text when it is substantial, a live fetch otherwise. The returned title
// may improve on the capture's.
func pageText(c *types.Capture) (title, text string, err error) {
	if t := strings.TrimSpace(c.Text); len(t) >= 50 {
		return c.EffectiveTitle(), t, nil
	}
	title, text, err = FetchReadable(c.EffectiveURL())
	if err != nil {
		return "", "", err
	}
	if title == "" {
		title = c.EffectiveTitle()
	}
	return title, text, nil
}

// Run executes the summarize workflow over one bundle.
func Run(cfg Config) error {
	bundle := findBundle(cfg.Bundles, cfg.BundleName)
	if bundle == nil {
		return fmt.Errorf("bundle %q not found", cfg.BundleName)
	}

	if len(bundle.Pages) == 0 {
		fmt.Fprintf(os.Stderr, "Bundle %q has no pages.\n", cfg.BundleName)
		return nil
	}

	applog.Info("summarize.start", "count", len(bundle.Pages), "bundle", cfg.BundleName)
	fmt.Fprintf(os.Stderr, "Summarizing %d pages from %q:\n", len(bundle.Pages), cfg.BundleName)
	for i, page := range bundle.Pages {
		fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, page.EffectiveTitle())
	}
	fmt.Fprintln(os.Stderr)

	var newCount, skipCount, errCount int
	ctx := context.Background()

	for i, page := range bundle.Pages {
		fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", i+1, len(bundle.Pages), page.EffectiveTitle())

		outPath := SummaryPath(cfg.OutDir, page.EffectiveURL(), page.EffectiveTitle())

		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "        ✗ mkdir: %v\n", err)
			errCount++
			continue
		}

		// Dedup: skip if file already exists.
		if _, err := os.Stat(outPath); err == nil {
			fmt.Fprintf(os.Stderr, "        – skipped (exists)\n")
			skipCount++
			continue
		}

		title, text, err := pageText(page)
		if err != nil {
			fmt.Fprintf(os.Stderr, "        ✗ %v\n", err)
			errCount++
			continue
		}
		if len(strings.TrimSpace(text)) < 50 {
			fmt.Fprintf(os.Stderr, "        ✗ not enough readable content\n")
			errCount++
			continue
		}

		fmt.Fprintf(os.Stderr, "        summarizing...")
		summary, err := OllamaSummarize(ctx, cfg.Model, cfg.OllamaHost, text)
		if err != nil {
			fmt.Fprintf(os.Stderr, " ✗ ollama: %v\n", err)
			errCount++
			continue
		}
		fmt.Fprintf(os.Stderr, " ok\n")

		content := fmt.Sprintf("# %s\n\n**Source:** %s\n**Summarized:** %s\n\n## Summary\n\n%s\n",
			title, page.EffectiveURL(), time.Now().Format("2006-01-02"), summary)

		if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "        ✗ write: %v\n", err)
			errCount++
			continue
		}

		fmt.Fprintf(os.Stderr, "        ✓ saved %s\n", outPath)
		applog.Info("summarize.page", "url", page.EffectiveURL())
		newCount++
	}

	applog.Info("summarize.done", "new", newCount, "skipped", skipCount, "errors", errCount)
	fmt.Fprintf(os.Stderr, "\nDone: %d new, %d skipped, %d errors\n", newCount, skipCount, errCount)
	return nil
}
