// Package api wraps the remote events service. Every call degrades to a
// local-only sentinel (nil or empty) when credentials are missing, and
// per-call failures are logged rather than propagated, so callers can always
// fall back to offline behavior.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/witheez/eventatlas-capture-sub000/internal/applog"
	"github.com/witheez/eventatlas-capture-sub000/internal/types"
)

// Client talks to the events service extension API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	// UploadClient carries no client-level timeout; screenshot uploads are
	// bounded by the caller's context deadline, which may exceed the 30s
	// ceiling used for the small JSON calls.
	UploadClient *http.Client
}

// New creates a client. An empty baseURL or token puts the client in
// local-only mode where every call returns its empty sentinel.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Token:        token,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		UploadClient: &http.Client{},
	}
}

// LocalOnly reports whether the client has no usable credentials.
func (c *Client) LocalOnly() bool {
	return c.BaseURL == "" || c.Token == ""
}

// LookupResult classifies a single URL against the remote catalog.
type LookupResult struct {
	Kind  types.MatchKind     `json:"kind"`
	Event *types.MatchedEvent `json:"event,omitempty"`
}

// Tag is a catalog tag.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EventType is a catalog event type.
type EventType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EventListItem is one row of the remote event worklist.
type EventListItem struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Visited bool   `json:"visited"`
}

// DiscoveredLink is an organizer link reported back to the service.
type DiscoveredLink struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

// EventPatch holds the mutable event fields for UpdateEvent. Nil fields are
// omitted from the PATCH body.
type EventPatch struct {
	Tags      *[]string `json:"tags,omitempty"`
	Distances *[]int    `json:"distances,omitempty"`
	Notes     *string   `json:"notes,omitempty"`
	EventType *string   `json:"eventType,omitempty"`
}

// TestConnection verifies credentials against the sync endpoint. Unlike the
// other calls it returns the error so settings UIs can show it.
func (c *Client) TestConnection(ctx context.Context) error {
	if c.LocalOnly() {
		return fmt.Errorf("no API endpoint or token configured")
	}
	var out struct{}
	return c.getJSON(ctx, "/api/extension/sync", nil, &out)
}

// Sync bulk-pulls the known events and organizer links. Returns nil in
// local-only mode or on any failure.
func (c *Client) Sync(ctx context.Context) *types.SyncData {
	if c.LocalOnly() {
		return nil
	}
	var sd types.SyncData
	if err := c.getJSON(ctx, "/api/extension/sync", nil, &sd); err != nil {
		applog.Error("api.sync", err)
		return nil
	}
	sd.FetchedAt = time.Now()
	return &sd
}

// Lookup classifies a single URL. Returns nil in local-only mode or on any
// failure; callers fall back to offline matching.
func (c *Client) Lookup(ctx context.Context, pageURL string) *LookupResult {
	if c.LocalOnly() {
		return nil
	}
	q := url.Values{"url": {pageURL}}
	var res LookupResult
	if err := c.getJSON(ctx, "/api/extension/lookup", q, &res); err != nil {
		applog.Error("api.lookup", err, "url", pageURL)
		return nil
	}
	if res.Kind == "" {
		res.Kind = types.MatchNone
	}
	return &res
}

// EventList fetches the remote event worklist. Empty in local-only mode.
func (c *Client) EventList(ctx context.Context) []EventListItem {
	if c.LocalOnly() {
		return nil
	}
	var items []EventListItem
	if err := c.getJSON(ctx, "/api/extension/event-list", nil, &items); err != nil {
		applog.Error("api.event_list", err)
		return nil
	}
	return items
}

// MarkVisited flags worklist events as visited.
func (c *Client) MarkVisited(ctx context.Context, ids []string) error {
	if c.LocalOnly() {
		return nil
	}
	body := map[string][]string{"eventIds": ids}
	return c.sendJSON(ctx, http.MethodPost, "/api/extension/event-list/mark-visited", body, nil)
}

// Tags fetches the tag catalog. Empty in local-only mode.
func (c *Client) Tags(ctx context.Context) []Tag {
	if c.LocalOnly() {
		return nil
	}
	var tags []Tag
	if err := c.getJSON(ctx, "/api/extension/tags", nil, &tags); err != nil {
		applog.Error("api.tags", err)
		return nil
	}
	return tags
}

// EventTypes fetches the event-type catalog. Empty in local-only mode.
func (c *Client) EventTypes(ctx context.Context) []EventType {
	if c.LocalOnly() {
		return nil
	}
	var ets []EventType
	if err := c.getJSON(ctx, "/api/extension/event-types", nil, &ets); err != nil {
		applog.Error("api.event_types", err)
		return nil
	}
	return ets
}

// Distances fetches the distance catalog (kilometers). Empty in local-only
// mode.
func (c *Client) Distances(ctx context.Context) []int {
	if c.LocalOnly() {
		return nil
	}
	var km []int
	if err := c.getJSON(ctx, "/api/extension/distances", nil, &km); err != nil {
		applog.Error("api.distances", err)
		return nil
	}
	return km
}

// CreateTag adds a tag to the catalog and returns it, or nil on failure.
func (c *Client) CreateTag(ctx context.Context, name string) *Tag {
	if c.LocalOnly() {
		return nil
	}
	var tag Tag
	if err := c.sendJSON(ctx, http.MethodPost, "/api/extension/tags", map[string]string{"name": name}, &tag); err != nil {
		applog.Error("api.create_tag", err, "name", name)
		return nil
	}
	return &tag
}

// UpdateEvent applies pending edits to a remote event.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) error {
	if c.LocalOnly() {
		return fmt.Errorf("no API endpoint or token configured")
	}
	return c.sendJSON(ctx, http.MethodPatch, "/api/extension/events/"+url.PathEscape(eventID), patch, nil)
}

// UploadScreenshot posts screenshot bytes as multipart form data. The body
// streams through a pipe so `data` is read as bytes go over the wire, which
// is what drives upload progress. A 2xx response with an unparseable body is
// tolerated and reported as a nil asset.
func (c *Client) UploadScreenshot(ctx context.Context, eventID, filename string, data io.Reader) (*types.MediaAsset, error) {
	if c.LocalOnly() {
		return nil, fmt.Errorf("no API endpoint or token configured")
	}

	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	go func() {
		part, err := w.CreateFormFile("screenshot", filename)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("create form file: %w", err))
			return
		}
		if _, err := io.Copy(part, data); err != nil {
			pw.CloseWithError(fmt.Errorf("write form file: %w", err))
			return
		}
		pw.CloseWithError(w.Close())
	}()

	endpoint := fmt.Sprintf("%s/api/extension/events/%s/screenshot", c.BaseURL, url.PathEscape(eventID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.UploadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload screenshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload screenshot: HTTP %d", resp.StatusCode)
	}

	var asset types.MediaAsset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		// Malformed success body: treat as complete with no asset.
		applog.Error("api.upload_decode", err, "event", eventID)
		return nil, nil
	}
	return &asset, nil
}

// DeleteScreenshot removes an uploaded media asset from an event.
func (c *Client) DeleteScreenshot(ctx context.Context, eventID, mediaID string) error {
	if c.LocalOnly() {
		return fmt.Errorf("no API endpoint or token configured")
	}
	endpoint := fmt.Sprintf("/api/extension/events/%s/screenshot/%s",
		url.PathEscape(eventID), url.PathEscape(mediaID))
	return c.sendJSON(ctx, http.MethodDelete, endpoint, nil, nil)
}

// AddDiscoveredLinks reports organizer links found on a captured page.
func (c *Client) AddDiscoveredLinks(ctx context.Context, links []DiscoveredLink) error {
	if c.LocalOnly() {
		return nil
	}
	body := map[string][]DiscoveredLink{"links": links}
	return c.sendJSON(ctx, http.MethodPost, "/api/extension/add-discovered-links", body, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := c.BaseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}
