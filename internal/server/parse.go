package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/witheez/eventatlas-capture-sub000/internal/types"
)

type wirePage struct {
	URL        string            `json:"url"`
	Title      string            `json:"title"`
	HTML       string            `json:"html"`
	Text       string            `json:"text"`
	Images     []string          `json:"images"`
	Screenshot string            `json:"screenshot"`
	Metadata   map[string]string `json:"metadata"`
	CapturedAt int64             `json:"capturedAt"` // unix millis, 0 = now
}

// ParseCapture converts a "capture" message into a Capture. The id and
// bundle placement are assigned later by the bundle layer.
func ParseCapture(msg IncomingMsg) (*types.Capture, error) {
	if len(msg.Page) == 0 {
		return nil, errors.New("capture message without page payload")
	}
	var wp wirePage
	if err := json.Unmarshal(msg.Page, &wp); err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	if wp.URL == "" {
		return nil, errors.New("capture page without url")
	}

	capturedAt := time.Now()
	if wp.CapturedAt > 0 {
		capturedAt = time.UnixMilli(wp.CapturedAt)
	}

	return &types.Capture{
		URL:        wp.URL,
		Title:      wp.Title,
		HTML:       wp.HTML,
		Text:       wp.Text,
		Images:     wp.Images,
		Screenshot: wp.Screenshot,
		Metadata:   wp.Metadata,
		CapturedAt: capturedAt,
	}, nil
}

// ParseScreenshot decodes a "screenshot" message's image payload. The
// extension sends either bare base64 or a data URL.
func ParseScreenshot(msg IncomingMsg) ([]byte, error) {
	raw := msg.Data
	if raw == "" {
		return nil, errors.New("screenshot message without data")
	}
	if i := strings.Index(raw, ";base64,"); i >= 0 {
		raw = raw[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("screenshot message with empty image")
	}
	return data, nil
}

// ParseSettings converts a "settings" message into Settings.
func ParseSettings(msg IncomingMsg) (*types.Settings, error) {
	if len(msg.Settings) == 0 {
		return nil, errors.New("settings message without payload")
	}
	var s types.Settings
	if err := json.Unmarshal(msg.Settings, &s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if s.DistancePresets.Defaults == nil {
		s.DistancePresets = types.NewDistancePresets()
	}
	return &s, nil
}
