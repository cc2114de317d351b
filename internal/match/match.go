// Package match classifies URLs against the locally cached sync data. It is
// the offline counterpart of the remote lookup endpoint: the bridge consults
// it first so known tabs resolve without a network round trip, and it is the
// only classifier available in local-only mode.
package match

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/witheez/eventatlas-capture-sub000/internal/types"
	"github.com/witheez/eventatlas-capture-sub000/internal/urlutil"
)

// Result is one classification outcome. Event is set for MatchEvent,
// Organizer for MatchLinkDiscovery and MatchContentItem.
type Result struct {
	Kind      types.MatchKind
	Event     *types.SyncEvent
	Organizer *types.OrganizerLink
}

// contentPathPattern recognizes paths that point at a single item on an
// organizer site rather than the site itself: event/race/result pages and
// year-dated pages.
var contentPathPattern = regexp.MustCompile(`(?i)/(event|events|race|races|result|results|lauf|laeufe|wettkampf|termine?)(/|$)|/20\d\d(/|$)`)

// Classify resolves a URL against the cached events and organizer links.
// An exact normalized event URL wins over everything; otherwise a URL under
// a known organizer domain is a content item when its path names a specific
// page, a link-discovery hit when it does not. Unknown URLs and an empty
// cache classify as no match.
func Classify(rawURL string, data *types.SyncData) Result {
	none := Result{Kind: types.MatchNone}
	if rawURL == "" || data == nil {
		return none
	}

	normalized := urlutil.Normalize(rawURL)
	for i := range data.Events {
		if urlutil.Normalize(data.Events[i].URL) == normalized {
			return Result{Kind: types.MatchEvent, Event: &data.Events[i]}
		}
	}

	domain := urlutil.Domain(rawURL)
	if domain == "" {
		return none
	}
	for i := range data.Links {
		link := &data.Links[i]
		if !domainMatches(domain, link.Domain) {
			continue
		}
		if isContentPath(rawURL) {
			return Result{Kind: types.MatchContentItem, Organizer: link}
		}
		return Result{Kind: types.MatchLinkDiscovery, Organizer: link}
	}
	return none
}

// domainMatches reports whether host is the organizer domain or a
// subdomain of it. Both sides are compared without a www prefix.
func domainMatches(host, organizer string) bool {
	organizer = strings.TrimPrefix(strings.ToLower(organizer), "www.")
	if organizer == "" {
		return false
	}
	return host == organizer || strings.HasSuffix(host, "."+organizer)
}

func isContentPath(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return contentPathPattern.MatchString(u.Path)
}
