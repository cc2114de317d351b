package types

import "time"

// Capture is one captured page snapshot. A capture is owned by exactly one
// bundle and is mutated in place by the detail editor.
type Capture struct {
	ID             string            `json:"id"`
	URL            string            `json:"url"`
	EditedURL      string            `json:"editedUrl,omitempty"`
	Title          string            `json:"title"`
	EditedTitle    string            `json:"editedTitle,omitempty"`
	HTML           string            `json:"html,omitempty"`
	Text           string            `json:"text,omitempty"`
	Images         []string          `json:"images,omitempty"`
	SelectedImages []string          `json:"selectedImages,omitempty"`
	Screenshot     string            `json:"screenshot,omitempty"` // base64 data URL
	Metadata       map[string]string `json:"metadata,omitempty"`
	CapturedAt     time.Time         `json:"capturedAt"`

	// Per-field include flags for sync payloads.
	IncludeHTML       bool `json:"includeHtml"`
	IncludeText       bool `json:"includeText"`
	IncludeImages     bool `json:"includeImages"`
	IncludeScreenshot bool `json:"includeScreenshot"`
}

// EffectiveURL returns the user-edited URL if set, the captured URL otherwise.
func (c *Capture) EffectiveURL() string {
	if c.EditedURL != "" {
		return c.EditedURL
	}
	return c.URL
}

// EffectiveTitle returns the user-edited title if set, the captured one otherwise.
func (c *Capture) EffectiveTitle() string {
	if c.EditedTitle != "" {
		return c.EditedTitle
	}
	return c.Title
}

// Bundle is a named, ordered collection of captured pages.
type Bundle struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Pages     []*Capture `json:"pages"`
	CreatedAt time.Time  `json:"createdAt"`
	Expanded  bool       `json:"expanded"`
}

// DistancePresets holds race-distance preferences: a toggle per default
// distance (keyed by kilometers) plus user-added custom distances.
type DistancePresets struct {
	Defaults map[int]bool `json:"defaults"`
	Custom   []int        `json:"custom"`
}

// DefaultDistances are the built-in race distances in kilometers.
var DefaultDistances = []int{5, 10, 21, 42}

// NewDistancePresets returns presets with every default distance enabled.
func NewDistancePresets() DistancePresets {
	d := DistancePresets{Defaults: make(map[int]bool, len(DefaultDistances))}
	for _, km := range DefaultDistances {
		d.Defaults[km] = true
	}
	return d
}

// Settings is the flat record of user preferences, loaded once at startup
// and persisted on every change.
type Settings struct {
	APIURL            string          `json:"apiUrl"`
	APIToken          string          `json:"apiToken"`
	SyncMode          string          `json:"syncMode"` // "manual" or "save-on-exit"
	AutoGroup         bool            `json:"autoGroup"`
	ScreenshotDelayMs int             `json:"screenshotDelayMs"`
	DistancePresets   DistancePresets `json:"distancePresets"`
}

// DefaultSettings returns the settings used when nothing is persisted yet.
func DefaultSettings() Settings {
	return Settings{
		SyncMode:          "manual",
		AutoGroup:         true,
		ScreenshotDelayMs: 500,
		DistancePresets:   NewDistancePresets(),
	}
}

// QueueStatus is the lifecycle state of an upload queue item.
type QueueStatus string

const (
	StatusUploading QueueStatus = "uploading"
	StatusComplete  QueueStatus = "complete"
	StatusFailed    QueueStatus = "failed"
)

// MediaAsset is the server's record of an uploaded screenshot.
type MediaAsset struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// QueueItem is one in-flight or terminal screenshot upload.
type QueueItem struct {
	ID          string      `json:"id"`
	EventID     string      `json:"eventId"`
	EventName   string      `json:"eventName"`
	ImageData   []byte      `json:"-"`
	Thumbnail   []byte      `json:"-"`
	Filename    string      `json:"filename"`
	Status      QueueStatus `json:"status"`
	Progress    int         `json:"progress"` // 0–100
	Error       string      `json:"error,omitempty"`
	MediaAsset  *MediaAsset `json:"mediaAsset,omitempty"`
	CompletedAt time.Time   `json:"completedAt,omitempty"`
}

// MatchedEvent is a remote catalog event correlated with the current tab,
// merged with locally pending edits while the editor is open. Pending edits
// are discarded on navigation unless explicitly saved.
type MatchedEvent struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	URL       string       `json:"url"`
	EventType string       `json:"eventType,omitempty"`
	Date      string       `json:"date,omitempty"`
	Tags      []string     `json:"tags,omitempty"`
	Distances []int        `json:"distances,omitempty"`
	Notes     string       `json:"notes,omitempty"`
	Media     []MediaAsset `json:"media,omitempty"`
	Visited   bool         `json:"visited,omitempty"`
	Dirty     bool         `json:"-"` // unsaved local edits
}

// SyncEvent is one event record in the bulk-pulled sync cache.
type SyncEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Date string `json:"date,omitempty"`
}

// OrganizerLink is a known organizer site used for offline link discovery.
type OrganizerLink struct {
	Domain string `json:"domain"`
	Name   string `json:"name,omitempty"`
}

// SyncData is the local cache of remote events and organizer links used for
// offline URL matching.
type SyncData struct {
	Events    []SyncEvent     `json:"events"`
	Links     []OrganizerLink `json:"links"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// MatchKind classifies a URL lookup result.
type MatchKind string

const (
	MatchEvent         MatchKind = "event"
	MatchLinkDiscovery MatchKind = "link_discovery"
	MatchContentItem   MatchKind = "content_item"
	MatchNone          MatchKind = "no_match"
)

// ViewMode selects the active main pane.
type ViewMode int

const (
	ViewModeBundles ViewMode = iota
	ViewModeQueue
)

// FilterMode controls which captures are shown.
type FilterMode int

const (
	FilterAll FilterMode = iota
	FilterWithScreenshot
	FilterWithoutScreenshot
	FilterEdited
	FilterMatched
)

// SortMode controls bundle ordering.
type SortMode int

const (
	SortByCreated SortMode = iota
	SortByName
	SortByPageCount
)

// FilterState is the persisted view filter, stored separately from bundles.
type FilterState struct {
	Filter FilterMode `json:"filter"`
	Sort   SortMode   `json:"sort"`
	Query  string     `json:"query,omitempty"`
}

// Stats holds aggregate statistics for the status bar.
type Stats struct {
	TotalBundles   int
	TotalPages     int
	WithScreenshot int
	PendingUploads int
	FailedUploads  int
	MatchedEvents  int
}
