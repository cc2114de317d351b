// Package uploader manages concurrent screenshot uploads with progress
// tracking and manual retry. Despite the name there is no ordering or
// throttling: items are an unbounded concurrent set and race freely; the
// only guarantees are per-item status transitions
// (uploading→{complete,failed}, failed→uploading on retry) and monotone
// progress while uploading.
package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/witheez/eventatlas-capture-sub000/internal/applog"
	"github.com/witheez/eventatlas-capture-sub000/internal/types"
)

// Defaults for the queue timings. The removal delay leaves time for the
// completion animation in the extension UI.
const (
	DefaultRemoveDelay   = 1500 * time.Millisecond
	DefaultUploadTimeout = 60 * time.Second
)

// UploadFunc performs the actual screenshot upload. api.Client's
// UploadScreenshot satisfies it; tests substitute their own.
type UploadFunc func(ctx context.Context, eventID, filename string, data io.Reader) (*types.MediaAsset, error)

// Config configures a Queue. Upload is required; zero durations fall back
// to the defaults.
type Config struct {
	Upload        UploadFunc
	RemoveDelay   time.Duration
	UploadTimeout time.Duration

	// OnChange is invoked with an item snapshot after every progress or
	// status change. Called from upload goroutines; implementations must be
	// safe for concurrent use and must not call back into the Queue.
	OnChange func(item types.QueueItem)

	// OnComplete is invoked once per successful upload, after the media
	// asset is attached and before removal is scheduled.
	OnComplete func(item types.QueueItem)
}

// Queue is the in-memory set of in-flight and terminal uploads.
type Queue struct {
	cfg Config

	mu     sync.Mutex
	items  []*types.QueueItem
	timers map[string]*time.Timer
}

// New creates a Queue.
func New(cfg Config) (*Queue, error) {
	if cfg.Upload == nil {
		return nil, errors.New("uploader: Upload func is required")
	}
	if cfg.RemoveDelay == 0 {
		cfg.RemoveDelay = DefaultRemoveDelay
	}
	if cfg.UploadTimeout == 0 {
		cfg.UploadTimeout = DefaultUploadTimeout
	}
	return &Queue{
		cfg:    cfg,
		timers: make(map[string]*time.Timer),
	}, nil
}

// Enqueue creates a queue item for the given screenshot and fires its
// upload. It returns once the item is enqueued and the thumbnail is
// generated, not once the upload finishes.
func (q *Queue) Enqueue(eventID, eventName, filename string, imageData []byte) (string, error) {
	if len(imageData) == 0 {
		return "", errors.New("uploader: empty image data")
	}

	item := &types.QueueItem{
		ID:        ulid.Make().String(),
		EventID:   eventID,
		EventName: eventName,
		ImageData: imageData,
		Thumbnail: Thumbnail(imageData, ThumbnailMaxDim),
		Filename:  filename,
		Status:    types.StatusUploading,
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	applog.Info("upload.enqueued", "id", item.ID, "event", eventID, "bytes", len(imageData))
	q.notify(*item)
	go q.run(item.ID)
	return item.ID, nil
}

// Retry re-issues a failed upload with the same image payload. Only
// failed items are retryable.
func (q *Queue) Retry(id string) error {
	q.mu.Lock()
	item := q.find(id)
	if item == nil {
		q.mu.Unlock()
		return fmt.Errorf("uploader: item %q not found", id)
	}
	if item.Status != types.StatusFailed {
		status := item.Status
		q.mu.Unlock()
		return fmt.Errorf("uploader: item %q is %s, only failed items can be retried", id, status)
	}
	item.Status = types.StatusUploading
	item.Progress = 0
	item.Error = ""
	snapshot := *item
	q.mu.Unlock()

	applog.Info("upload.retry", "id", id)
	q.notify(snapshot)
	go q.run(id)
	return nil
}

// Remove deletes an item outright, in any status. No tombstone is kept; an
// in-flight request for a removed item finishes into the void.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return
		}
	}
}

// Items returns a snapshot of the queue in insertion order. Image payloads
// are omitted from the copies; thumbnails are included.
func (q *Queue) Items() []types.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]types.QueueItem, 0, len(q.items))
	for _, item := range q.items {
		snapshot := *item
		snapshot.ImageData = nil
		out = append(out, snapshot)
	}
	return out
}

// Pending reports how many items are still uploading.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if item.Status == types.StatusUploading {
			n++
		}
	}
	return n
}

// run performs one upload attempt for the item. The item may have been
// removed by the time any step completes; every mutation re-checks.
func (q *Queue) run(id string) {
	q.mu.Lock()
	item := q.find(id)
	if item == nil || item.Status != types.StatusUploading {
		q.mu.Unlock()
		return
	}
	eventID, filename := item.EventID, item.Filename
	payload := item.ImageData
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.UploadTimeout)
	defer cancel()

	reader := &progressReader{
		r:     bytes.NewReader(payload),
		total: len(payload),
		report: func(pct int) {
			q.setProgress(id, pct)
		},
	}

	asset, err := q.cfg.Upload(ctx, eventID, filename, reader)
	if err != nil {
		q.fail(id, err)
		return
	}
	q.complete(id, asset)
}

func (q *Queue) setProgress(id string, pct int) {
	q.mu.Lock()
	item := q.find(id)
	// Progress only moves forward, and only while uploading.
	if item == nil || item.Status != types.StatusUploading || pct <= item.Progress {
		q.mu.Unlock()
		return
	}
	if pct > 100 {
		pct = 100
	}
	item.Progress = pct
	snapshot := *item
	q.mu.Unlock()
	q.notify(snapshot)
}

func (q *Queue) complete(id string, asset *types.MediaAsset) {
	q.mu.Lock()
	item := q.find(id)
	if item == nil || item.Status != types.StatusUploading {
		q.mu.Unlock()
		return
	}
	item.Status = types.StatusComplete
	item.Progress = 100
	item.MediaAsset = asset
	item.CompletedAt = time.Now()
	snapshot := *item

	// Schedule removal after the completion animation.
	q.timers[id] = time.AfterFunc(q.cfg.RemoveDelay, func() {
		q.Remove(id)
	})
	q.mu.Unlock()

	applog.Info("upload.complete", "id", id, "event", snapshot.EventID)
	q.notify(snapshot)
	if q.cfg.OnComplete != nil {
		q.cfg.OnComplete(snapshot)
	}
}

func (q *Queue) fail(id string, err error) {
	q.mu.Lock()
	item := q.find(id)
	if item == nil || item.Status != types.StatusUploading {
		q.mu.Unlock()
		return
	}
	item.Status = types.StatusFailed
	item.Error = humanizeError(err, q.cfg.UploadTimeout)
	snapshot := *item
	q.mu.Unlock()

	applog.Error("upload.failed", err, "id", id, "event", snapshot.EventID)
	q.notify(snapshot)
}

func (q *Queue) notify(item types.QueueItem) {
	if q.cfg.OnChange != nil {
		item.ImageData = nil
		q.cfg.OnChange(item)
	}
}

// find returns the live item for id. Caller must hold q.mu.
func (q *Queue) find(id string) *types.QueueItem {
	for _, item := range q.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func humanizeError(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Upload timed out after %s", timeout)
	}
	return "Upload failed: " + err.Error()
}

// progressReader reports cumulative read percentage as the HTTP client
// consumes the request body.
type progressReader struct {
	r      io.Reader
	total  int
	read   int
	report func(pct int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.read += n
		pct := p.read * 100 / p.total
		if pct > 99 {
			// 100 is reserved for the server acknowledging the upload.
			pct = 99
		}
		p.report(pct)
	}
	return n, err
}
