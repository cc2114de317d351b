package urlutil

import "testing"

func TestDomain(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://www.example.com/races/5k", "example.com"},
		{"https://Example.COM", "example.com"},
		{"http://sub.organizer.org/page", "sub.organizer.org"},
		{"not a url", ""},
		{"/relative/path", ""},
	}
	for _, tt := range tests {
		if got := Domain(tt.raw); got != tt.want {
			t.Errorf("Domain(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://example.com/a#section", "https://example.com/a"},
		{"https://example.com/a/", "https://example.com/a"},
		{"https://example.com/", "https://example.com/"},
		{"https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeEquatesDuplicates(t *testing.T) {
	a := Normalize("https://example.com/race?d=5&c=1#top")
	b := Normalize("https://example.com/race/?c=1&d=5")
	if a != b {
		t.Errorf("expected %q == %q", a, b)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 << 20, "5.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestTruncateMiddle(t *testing.T) {
	if got := TruncateMiddle("short", 10); got != "short" {
		t.Errorf("unchanged string: got %q", got)
	}
	got := TruncateMiddle("abcdefghijklmnop", 9)
	if len([]rune(got)) != 9 {
		t.Errorf("length = %d, want 9 (%q)", len([]rune(got)), got)
	}
	if got != "abcd…mnop" {
		t.Errorf("got %q", got)
	}
}
