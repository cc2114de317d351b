package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/witheez/eventatlas-capture-sub000/internal/types"
)

// Markdown formats bundles as a markdown document, one section per bundle.
func Markdown(bundles []*types.Bundle) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Captured Pages\n")
	fmt.Fprintf(&b, "> Exported %s\n", time.Now().Format("2006-01-02 15:04"))

	for _, bundle := range bundles {
		n := len(bundle.Pages)
		noun := "pages"
		if n == 1 {
			noun = "page"
		}
		fmt.Fprintf(&b, "\n## %s (%d %s)\n\n", bundle.Name, n, noun)

		for _, page := range bundle.Pages {
			title := page.EffectiveTitle()
			if title == "" {
				title = page.EffectiveURL()
			}
			fmt.Fprintf(&b, "- [%s](%s) — %s\n", title, page.EffectiveURL(), relativeTime(page.CapturedAt))
		}
	}

	return b.String()
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
