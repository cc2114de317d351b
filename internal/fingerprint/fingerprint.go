// Package fingerprint detects the CMS and anti-bot technology of a captured
// page from fixed signature lists. Detection is plain substring matching on
// the HTML and response headers; no scoring, no network probes.
package fingerprint

import (
	"net/http"
	"strings"
)

type signature struct {
	name    string
	html    []string // lowercase substrings matched against the page HTML
	headers map[string]string // header name -> lowercase value substring ("" = presence)
}

var cmsSignatures = []signature{
	{name: "WordPress", html: []string{"/wp-content/", "/wp-includes/", "wp-json"}},
	{name: "Drupal", html: []string{"drupal-settings-json", "/sites/default/files/"}, headers: map[string]string{"X-Generator": "drupal"}},
	{name: "Joomla", html: []string{"/media/jui/", "content=\"joomla"}},
	{name: "TYPO3", html: []string{"typo3conf", "typo3temp"}},
	{name: "Squarespace", html: []string{"static1.squarespace.com"}, headers: map[string]string{"X-Servedby": "squarespace"}},
	{name: "Wix", html: []string{"wix.com/website", "static.wixstatic.com"}, headers: map[string]string{"X-Wix-Request-Id": ""}},
	{name: "Webflow", html: []string{"assets.website-files.com", "data-wf-site"}},
	{name: "Shopify", html: []string{"cdn.shopify.com"}, headers: map[string]string{"X-Shopid": ""}},
	{name: "Ghost", html: []string{"content=\"ghost"}, headers: map[string]string{"X-Ghost-Cache-Status": ""}},
	{name: "Jimdo", html: []string{"assets.jimstatic.com"}},
}

var antiBotSignatures = []signature{
	{name: "Cloudflare", html: []string{"cf-browser-verification", "challenges.cloudflare.com", "cf_chl_opt"}, headers: map[string]string{"Cf-Ray": "", "Server": "cloudflare"}},
	{name: "Akamai", html: []string{"akam/13", "_abck"}, headers: map[string]string{"X-Akamai-Transformed": ""}},
	{name: "PerimeterX", html: []string{"px-captcha", "window._pxappid"}},
	{name: "DataDome", html: []string{"captcha-delivery.com", "datadome"}, headers: map[string]string{"X-Datadome": ""}},
	{name: "Imperva", html: []string{"/_incapsula_resource"}, headers: map[string]string{"X-Iinfo": ""}},
	{name: "reCAPTCHA", html: []string{"www.google.com/recaptcha", "g-recaptcha"}},
	{name: "hCaptcha", html: []string{"hcaptcha.com/1/api.js", "h-captcha"}},
	{name: "Friendly Captcha", html: []string{"frc-captcha"}},
}

// Result lists the technologies detected on a page.
type Result struct {
	CMS     []string `json:"cms,omitempty"`
	AntiBot []string `json:"antiBot,omitempty"`
}

// Detect fingerprints a page. Headers may be nil when the extension could
// not observe the response.
func Detect(html string, headers http.Header) Result {
	lower := strings.ToLower(html)
	return Result{
		CMS:     scan(cmsSignatures, lower, headers),
		AntiBot: scan(antiBotSignatures, lower, headers),
	}
}

func scan(sigs []signature, lowerHTML string, headers http.Header) []string {
	var out []string
	for _, sig := range sigs {
		if sig.matches(lowerHTML, headers) {
			out = append(out, sig.name)
		}
	}
	return out
}

func (s signature) matches(lowerHTML string, headers http.Header) bool {
	for _, needle := range s.html {
		if strings.Contains(lowerHTML, needle) {
			return true
		}
	}
	if headers == nil {
		return false
	}
	for name, want := range s.headers {
		got := headers.Get(name)
		if got == "" {
			continue
		}
		if want == "" || strings.Contains(strings.ToLower(got), want) {
			return true
		}
	}
	return false
}
