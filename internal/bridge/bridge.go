// Package bridge dispatches extension messages to the domain layers: it
// owns the upload queue, applies captures to the bundle state, answers
// lookups and pushes queue and badge updates back over the WebSocket. The
// TUI and the headless serve command both run the same dispatcher.
package bridge

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/witheez/eventatlas-capture-sub000/internal/api"
	"github.com/witheez/eventatlas-capture-sub000/internal/applog"
	"github.com/witheez/eventatlas-capture-sub000/internal/bundles"
	"github.com/witheez/eventatlas-capture-sub000/internal/capture"
	"github.com/witheez/eventatlas-capture-sub000/internal/fingerprint"
	"github.com/witheez/eventatlas-capture-sub000/internal/match"
	"github.com/witheez/eventatlas-capture-sub000/internal/server"
	"github.com/witheez/eventatlas-capture-sub000/internal/state"
	"github.com/witheez/eventatlas-capture-sub000/internal/storage"
	"github.com/witheez/eventatlas-capture-sub000/internal/types"
	"github.com/witheez/eventatlas-capture-sub000/internal/uploader"
)

// Config configures a Bridge. Server, Store, DB and Client are required.
type Config struct {
	Server *server.Server
	Store  *state.Store
	DB     *sql.DB
	Client *api.Client

	// StaleSync is the sync cache age after which Run refreshes it.
	// Zero means 24 hours.
	StaleSync time.Duration

	// Queue overrides the uploader config; Upload, OnChange and OnComplete
	// are always set by the bridge. Tests shorten the delays here.
	Queue uploader.Config
}

// Bridge routes extension messages between the server and the domain state.
//
// The state store is unlocked, so all store access goes through one owner
// goroutine: either Run (headless) or the bubbletea Update loop, which calls
// Handle, ApplyCompletion and ApplySync directly. Upload goroutines never
// touch the store; finished uploads are delivered on Completions instead.
type Bridge struct {
	cfg   Config
	queue *uploader.Queue

	// completions carries finished uploads to the owner goroutine.
	completions chan types.QueueItem

	// changed coalesces state-change notifications for the TUI.
	changed chan struct{}
}

// New creates a Bridge and its upload queue.
func New(cfg Config) (*Bridge, error) {
	if cfg.Server == nil || cfg.Store == nil || cfg.DB == nil || cfg.Client == nil {
		return nil, errors.New("bridge: Server, Store, DB and Client are required")
	}
	if cfg.StaleSync == 0 {
		cfg.StaleSync = 24 * time.Hour
	}

	b := &Bridge{
		cfg:         cfg,
		completions: make(chan types.QueueItem, 64),
		changed:     make(chan struct{}, 1),
	}

	qcfg := cfg.Queue
	qcfg.Upload = cfg.Client.UploadScreenshot
	qcfg.OnChange = func(types.QueueItem) {
		b.pushQueue()
		b.markChanged()
	}
	qcfg.OnComplete = func(item types.QueueItem) {
		select {
		case b.completions <- item:
		default:
			applog.Info("bridge.completions_full", "id", item.ID)
		}
	}
	queue, err := uploader.New(qcfg)
	if err != nil {
		return nil, err
	}
	b.queue = queue
	return b, nil
}

// Queue returns the upload queue.
func (b *Bridge) Queue() *uploader.Queue {
	return b.queue
}

// Changed signals after any state mutation. Signals coalesce; consumers
// re-read the store rather than counting them.
func (b *Bridge) Changed() <-chan struct{} {
	return b.changed
}

// Completions returns finished uploads awaiting ApplyCompletion on the
// owner goroutine.
func (b *Bridge) Completions() <-chan types.QueueItem {
	return b.completions
}

// Run consumes extension messages and upload completions until the context
// is cancelled, making the calling goroutine the store's single writer. The
// sync cache is refreshed up front when it is missing or stale.
func (b *Bridge) Run(ctx context.Context) error {
	b.RefreshSync(ctx, false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.cfg.Server.Messages():
			b.Handle(ctx, msg)
		case item := <-b.completions:
			b.ApplyCompletion(item)
		}
	}
}

// SyncStale reports whether the sync cache is missing or past the staleness
// window. Owner goroutine only.
func (b *Bridge) SyncStale() bool {
	sd := b.cfg.Store.SyncData()
	return sd == nil || time.Since(sd.FetchedAt) >= b.cfg.StaleSync
}

// FetchSync pulls the remote sync data without touching the store, so it
// may run off the owner goroutine. Nil in local-only mode or on failure.
func (b *Bridge) FetchSync(ctx context.Context) *types.SyncData {
	if b.cfg.Client.LocalOnly() {
		return nil
	}
	return b.cfg.Client.Sync(ctx)
}

// ApplySync stores and persists freshly fetched sync data. Owner goroutine
// only.
func (b *Bridge) ApplySync(sd *types.SyncData) {
	if sd == nil {
		return
	}
	b.cfg.Store.SetSyncData(sd)
	b.cfg.Store.PersistSync(b.cfg.DB)
	applog.Info("bridge.sync", "events", len(sd.Events), "links", len(sd.Links))
	b.markChanged()
}

// RefreshSync fetches and applies sync data when forced or stale. Owner
// goroutine only.
func (b *Bridge) RefreshSync(ctx context.Context, force bool) {
	if !force && !b.SyncStale() {
		return
	}
	b.ApplySync(b.FetchSync(ctx))
}

// Handle dispatches one extension message. Owner goroutine only.
func (b *Bridge) Handle(ctx context.Context, msg server.IncomingMsg) {
	switch msg.Type {
	case "capture":
		b.handleCapture(ctx, msg)
	case "lookup":
		b.handleLookup(ctx, msg)
	case "screenshot":
		b.handleScreenshot(msg)
	case "retry_upload":
		b.handleRetry(msg)
	case "settings":
		b.handleSettings(msg)
	case "sync":
		b.RefreshSync(ctx, true)
	case "queue":
		b.pushQueue()
	default:
		applog.Info("bridge.unknown", "type", msg.Type)
	}
}

func (b *Bridge) handleCapture(ctx context.Context, msg server.IncomingMsg) {
	c, err := server.ParseCapture(msg)
	if err != nil {
		b.sendError(msg.ID, err)
		return
	}
	enrich(c)

	res, err := bundles.AddCapture(b.cfg.Store, c, bundles.AddOptions{
		BundleID: msg.BundleID,
		Replace:  msg.Replace,
	})
	if err != nil {
		b.sendError(msg.ID, err)
		return
	}
	b.cfg.Store.Persist(b.cfg.DB)

	b.cfg.Server.Send(server.OutgoingMsg{
		Type: "capture_ack",
		ID:   msg.ID,
		Capture: &server.CaptureAck{
			BundleID:       res.Bundle.ID,
			BundleName:     res.Bundle.Name,
			PageCount:      len(res.Bundle.Pages),
			DuplicateIndex: res.DuplicateIndex,
		},
	})
	b.reportLinks(ctx, c)
	b.markChanged()
}

// enrich fills in what the extension did not extract itself: readable text,
// harvested images and a technology fingerprint.
func enrich(c *types.Capture) {
	if c.HTML == "" {
		return
	}
	if ex, err := capture.Extract(c.HTML, c.URL); err == nil {
		if c.Text == "" {
			c.Text = ex.Text
		}
		if c.Title == "" {
			c.Title = ex.Title
		}
		if len(c.Images) == 0 {
			c.Images = ex.Images
		}
	}

	fp := fingerprint.Detect(c.HTML, nil)
	if len(fp.CMS) > 0 || len(fp.AntiBot) > 0 {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string)
		}
		if len(fp.CMS) > 0 {
			c.Metadata["cms"] = strings.Join(fp.CMS, ", ")
		}
		if len(fp.AntiBot) > 0 {
			c.Metadata["antiBot"] = strings.Join(fp.AntiBot, ", ")
		}
	}
}

// reportLinks feeds links harvested from an organizer page back to the
// catalog for discovery.
func (b *Bridge) reportLinks(ctx context.Context, c *types.Capture) {
	if b.cfg.Client.LocalOnly() || c.HTML == "" {
		return
	}
	if match.Classify(c.URL, b.cfg.Store.SyncData()).Kind != types.MatchLinkDiscovery {
		return
	}
	ex, err := capture.Extract(c.HTML, c.URL)
	if err != nil || len(ex.Links) == 0 {
		return
	}
	links := make([]api.DiscoveredLink, 0, len(ex.Links))
	for _, l := range ex.Links {
		links = append(links, api.DiscoveredLink{URL: l, SourceURL: c.URL})
	}
	if err := b.cfg.Client.AddDiscoveredLinks(ctx, links); err != nil {
		applog.Error("bridge.links", err, "url", c.URL)
	}
}

func (b *Bridge) handleLookup(ctx context.Context, msg server.IncomingMsg) {
	if msg.URL == "" {
		b.sendError(msg.ID, errors.New("lookup message without url"))
		return
	}

	payload := &server.LookupPayload{Kind: string(types.MatchNone)}
	offline := match.Classify(msg.URL, b.cfg.Store.SyncData())
	switch offline.Kind {
	case types.MatchEvent:
		payload.Kind = string(offline.Kind)
		payload.Event = &types.MatchedEvent{
			ID:   offline.Event.ID,
			Name: offline.Event.Name,
			URL:  offline.Event.URL,
			Date: offline.Event.Date,
		}
	case types.MatchNone:
		// Only unknown URLs are worth a remote round trip.
		if res := b.cfg.Client.Lookup(ctx, msg.URL); res != nil {
			payload.Kind = string(res.Kind)
			payload.Event = res.Event
		}
	default:
		payload.Kind = string(offline.Kind)
	}

	if payload.Kind == string(types.MatchEvent) && payload.Event != nil {
		b.cfg.Store.SetMatched(payload.Event)
	} else {
		b.cfg.Store.SetMatched(nil)
	}

	b.cfg.Server.Send(server.OutgoingMsg{Type: "lookup_result", ID: msg.ID, Lookup: payload})
	b.cfg.Server.Send(server.OutgoingMsg{
		Type:  "badge",
		Badge: &server.BadgePayload{Kind: payload.Kind},
	})
	b.markChanged()
}

func (b *Bridge) handleScreenshot(msg server.IncomingMsg) {
	data, err := server.ParseScreenshot(msg)
	if err != nil {
		b.sendError(msg.ID, err)
		return
	}
	if msg.EventID == "" {
		b.sendError(msg.ID, errors.New("screenshot message without eventId"))
		return
	}
	filename := msg.Filename
	if filename == "" {
		filename = "screenshot.png"
	}
	if _, err := b.queue.Enqueue(msg.EventID, msg.EventName, filename, data); err != nil {
		b.sendError(msg.ID, err)
	}
}

func (b *Bridge) handleRetry(msg server.IncomingMsg) {
	if err := b.queue.Retry(msg.ID); err != nil {
		b.sendError(msg.ID, err)
	}
}

func (b *Bridge) handleSettings(msg server.IncomingMsg) {
	s, err := server.ParseSettings(msg)
	if err != nil {
		b.sendError(msg.ID, err)
		return
	}
	b.cfg.Store.SetSettings(*s)
	b.cfg.Store.Persist(b.cfg.DB)
	b.markChanged()
}

// pushQueue sends the current queue snapshot to the extension popup.
func (b *Bridge) pushQueue() {
	items := b.queue.Items()
	payload := make([]server.QueuePayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, server.QueuePayload{
			ID:        item.ID,
			EventID:   item.EventID,
			EventName: item.EventName,
			Filename:  item.Filename,
			Status:    string(item.Status),
			Progress:  item.Progress,
			Error:     item.Error,
		})
	}
	b.cfg.Server.Send(server.OutgoingMsg{Type: "queue", Queue: payload})
}

// ApplyCompletion records a finished upload: the asset is appended to the
// matched event's media list when that event is still the one on screen,
// and the outcome is written to the audit log. Owner goroutine only.
func (b *Bridge) ApplyCompletion(item types.QueueItem) {
	if item.MediaAsset != nil {
		if ev := b.cfg.Store.Matched(); ev != nil && ev.ID == item.EventID {
			ev.Media = append(ev.Media, *item.MediaAsset)
		}
	}
	b.logUpload(item)
	b.markChanged()
}

func (b *Bridge) logUpload(item types.QueueItem) {
	mediaID := ""
	if item.MediaAsset != nil {
		mediaID = item.MediaAsset.ID
	}
	if err := storage.LogUpload(b.cfg.DB, item.EventID, item.Filename, string(item.Status), item.Error, mediaID); err != nil {
		applog.Error("bridge.uploadlog", err, "id", item.ID)
	}
}

func (b *Bridge) sendError(id string, err error) {
	applog.Error("bridge.request", err, "id", id)
	b.cfg.Server.Send(server.OutgoingMsg{Type: "error", ID: id, Error: err.Error()})
}

func (b *Bridge) markChanged() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}
