package export

import (
	"encoding/json"
	"time"

	"github.com/witheez/eventatlas-capture-sub000/internal/types"
	"github.com/witheez/eventatlas-capture-sub000/internal/urlutil"
)

type jsonExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Bundles    []jsonBundle `json:"bundles"`
}

type jsonBundle struct {
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	Pages     []jsonPage `json:"pages"`
}

type jsonPage struct {
	Title             string    `json:"title"`
	URL               string    `json:"url"`
	NormalizedURL     string    `json:"normalized_url"`
	Domain            string    `json:"domain"`
	Bundle            string    `json:"bundle"`
	CapturedAt        time.Time `json:"captured_at"`
	CapturedPretty    string    `json:"captured_pretty"`
	HasScreenshot     bool      `json:"has_screenshot,omitempty"`
	Edited            bool      `json:"edited,omitempty"`
	ImageCount        int       `json:"image_count,omitempty"`
	IncludeHTML       bool      `json:"include_html,omitempty"`
	IncludeText       bool      `json:"include_text,omitempty"`
	IncludeImages     bool      `json:"include_images,omitempty"`
	IncludeScreenshot bool      `json:"include_screenshot,omitempty"`
}

// JSON formats bundles as an indented JSON document.
func JSON(bundles []*types.Bundle) (string, error) {
	out := jsonExport{
		ExportedAt: time.Now(),
		Bundles:    make([]jsonBundle, 0, len(bundles)),
	}

	for _, bundle := range bundles {
		jb := jsonBundle{
			Name:      bundle.Name,
			CreatedAt: bundle.CreatedAt,
			Pages:     make([]jsonPage, 0, len(bundle.Pages)),
		}
		for _, page := range bundle.Pages {
			url := page.EffectiveURL()
			jb.Pages = append(jb.Pages, jsonPage{
				Title:             page.EffectiveTitle(),
				URL:               url,
				NormalizedURL:     urlutil.Normalize(url),
				Domain:            urlutil.Domain(url),
				Bundle:            bundle.Name,
				CapturedAt:        page.CapturedAt,
				CapturedPretty:    relativeTime(page.CapturedAt),
				HasScreenshot:     page.Screenshot != "",
				Edited:            page.EditedURL != "" || page.EditedTitle != "",
				ImageCount:        len(page.Images),
				IncludeHTML:       page.IncludeHTML,
				IncludeText:       page.IncludeText,
				IncludeImages:     page.IncludeImages,
				IncludeScreenshot: page.IncludeScreenshot,
			})
		}
		out.Bundles = append(out.Bundles, jb)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
