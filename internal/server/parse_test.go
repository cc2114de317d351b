package server

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func TestParseCapture(t *testing.T) {
	raw := `{
		"type": "capture",
		"id": "req-7",
		"bundleId": "b1",
		"page": {
			"url": "https://runfest.org/events/spring-half",
			"title": "Spring Half",
			"html": "<html><body>x</body></html>",
			"text": "x",
			"images": ["https://runfest.org/img/course.jpg"],
			"metadata": {"description": "half marathon"},
			"capturedAt": 1700000000000
		}
	}`

	var msg IncomingMsg
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatal(err)
	}

	c, err := ParseCapture(msg)
	if err != nil {
		t.Fatal(err)
	}
	if c.URL != "https://runfest.org/events/spring-half" {
		t.Errorf("URL = %q", c.URL)
	}
	if c.Title != "Spring Half" {
		t.Errorf("Title = %q", c.Title)
	}
	if len(c.Images) != 1 {
		t.Errorf("got %d images, want 1", len(c.Images))
	}
	if c.Metadata["description"] != "half marathon" {
		t.Errorf("metadata = %v", c.Metadata)
	}
	want := time.UnixMilli(1700000000000)
	if !c.CapturedAt.Equal(want) {
		t.Errorf("CapturedAt = %v, want %v", c.CapturedAt, want)
	}
}

func TestParseCaptureDefaultsCapturedAt(t *testing.T) {
	var msg IncomingMsg
	json.Unmarshal([]byte(`{"type":"capture","page":{"url":"https://x.example"}}`), &msg)
	c, err := ParseCapture(msg)
	if err != nil {
		t.Fatal(err)
	}
	if c.CapturedAt.IsZero() {
		t.Error("CapturedAt not defaulted")
	}
}

func TestParseCaptureRejectsBadPayloads(t *testing.T) {
	cases := []string{
		`{"type":"capture"}`,
		`{"type":"capture","page":{"title":"no url"}}`,
		`{"type":"capture","page":"not an object"}`,
	}
	for _, raw := range cases {
		var msg IncomingMsg
		json.Unmarshal([]byte(raw), &msg)
		if _, err := ParseCapture(msg); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

func TestParseScreenshotBareBase64(t *testing.T) {
	img := []byte{0x89, 'P', 'N', 'G'}
	msg := IncomingMsg{Type: "screenshot", Data: base64.StdEncoding.EncodeToString(img)}
	got, err := ParseScreenshot(msg)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(img) {
		t.Errorf("got %v, want %v", got, img)
	}
}

func TestParseScreenshotDataURL(t *testing.T) {
	img := []byte("fake-png-bytes")
	msg := IncomingMsg{
		Type: "screenshot",
		Data: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
	}
	got, err := ParseScreenshot(msg)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(img) {
		t.Errorf("got %q, want %q", got, img)
	}
}

func TestParseScreenshotRejectsBadData(t *testing.T) {
	for _, data := range []string{"", "not-base64!!!", base64.StdEncoding.EncodeToString(nil)} {
		if _, err := ParseScreenshot(IncomingMsg{Data: data}); err == nil {
			t.Errorf("expected error for %q", data)
		}
	}
}

func TestParseSettings(t *testing.T) {
	raw := `{"type":"settings","settings":{"syncMode":"save-on-exit","autoGroup":false,"screenshotDelayMs":900}}`
	var msg IncomingMsg
	json.Unmarshal([]byte(raw), &msg)
	s, err := ParseSettings(msg)
	if err != nil {
		t.Fatal(err)
	}
	if s.SyncMode != "save-on-exit" || s.AutoGroup || s.ScreenshotDelayMs != 900 {
		t.Errorf("settings = %+v", s)
	}
	// Missing presets come back initialized.
	if s.DistancePresets.Defaults == nil {
		t.Error("DistancePresets not defaulted")
	}
}

func TestParseSettingsRejectsEmpty(t *testing.T) {
	if _, err := ParseSettings(IncomingMsg{Type: "settings"}); err == nil {
		t.Error("expected error for missing payload")
	}
}
