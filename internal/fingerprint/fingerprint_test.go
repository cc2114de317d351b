package fingerprint

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectWordPressFromHTML(t *testing.T) {
	html := `<link rel="stylesheet" href="https://runfest.org/wp-content/themes/x/style.css">`
	r := Detect(html, nil)
	assert.Equal(t, []string{"WordPress"}, r.CMS)
	assert.Empty(t, r.AntiBot)
}

func TestDetectDrupalFromHeader(t *testing.T) {
	h := http.Header{}
	h.Set("X-Generator", "Drupal 10 (https://www.drupal.org)")
	r := Detect("<html></html>", h)
	assert.Equal(t, []string{"Drupal"}, r.CMS)
}

func TestDetectCaseInsensitiveHTML(t *testing.T) {
	r := Detect(`<div class="G-RECAPTCHA"></div>`, nil)
	assert.Equal(t, []string{"reCAPTCHA"}, r.AntiBot)
}

func TestDetectCloudflareFromHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Cf-Ray", "8c61f1ab2d9e0000-FRA")
	h.Set("Server", "cloudflare")
	r := Detect("<html></html>", h)
	assert.Equal(t, []string{"Cloudflare"}, r.AntiBot)
}

func TestDetectMultiple(t *testing.T) {
	html := `<script src="https://static1.squarespace.com/x.js"></script>
<script src="https://www.google.com/recaptcha/api.js"></script>`
	r := Detect(html, nil)
	assert.Equal(t, []string{"Squarespace"}, r.CMS)
	assert.Equal(t, []string{"reCAPTCHA"}, r.AntiBot)
}

func TestDetectNothing(t *testing.T) {
	r := Detect("<html><body>plain page</body></html>", http.Header{})
	assert.Empty(t, r.CMS)
	assert.Empty(t, r.AntiBot)
}
