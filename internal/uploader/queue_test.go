package uploader

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witheez/eventatlas-capture-sub000/internal/types"
)

// recorder collects OnChange snapshots for assertions.
type recorder struct {
	mu        sync.Mutex
	snapshots []types.QueueItem
	completed []types.QueueItem
}

func (r *recorder) onChange(item types.QueueItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, item)
}

func (r *recorder) onComplete(item types.QueueItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, item)
}

func (r *recorder) all() []types.QueueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.QueueItem(nil), r.snapshots...)
}

func (r *recorder) completions() []types.QueueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.QueueItem(nil), r.completed...)
}

// waitFor polls until cond is true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func okUpload(asset *types.MediaAsset) UploadFunc {
	return func(ctx context.Context, eventID, filename string, data io.Reader) (*types.MediaAsset, error) {
		if _, err := io.Copy(io.Discard, data); err != nil {
			return nil, err
		}
		return asset, nil
	}
}

func TestEnqueueUploadsAndCompletes(t *testing.T) {
	rec := &recorder{}
	asset := &types.MediaAsset{ID: "m1", URL: "https://cdn.example.com/m1.png"}
	q, err := New(Config{
		Upload:      okUpload(asset),
		RemoveDelay: 20 * time.Millisecond,
		OnChange:    rec.onChange,
		OnComplete:  rec.onComplete,
	})
	require.NoError(t, err)

	id, err := q.Enqueue("e1", "City Marathon", "shot.png", []byte("image-bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	waitFor(t, time.Second, func() bool { return len(rec.completions()) == 1 })
	done := rec.completions()[0]
	assert.Equal(t, types.StatusComplete, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, asset, done.MediaAsset)
	assert.False(t, done.CompletedAt.IsZero())

	// Auto-removal after the configured delay.
	waitFor(t, time.Second, func() bool { return len(q.Items()) == 0 })
}

func TestProgressIsMonotoneWhileUploading(t *testing.T) {
	rec := &recorder{}
	q, err := New(Config{
		Upload:      okUpload(nil),
		RemoveDelay: 10 * time.Millisecond,
		OnChange:    rec.onChange,
		OnComplete:  rec.onComplete,
	})
	require.NoError(t, err)

	payload := make([]byte, 1<<20)
	_, err = q.Enqueue("e1", "", "big.png", payload)
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool { return len(rec.completions()) == 1 })

	last := -1
	for _, s := range rec.all() {
		if s.Status != types.StatusUploading {
			continue
		}
		if s.Progress < last {
			t.Fatalf("progress went backwards: %d after %d", s.Progress, last)
		}
		last = s.Progress
	}
}

func TestStatusTransitionsOnlyForward(t *testing.T) {
	rec := &recorder{}
	q, err := New(Config{
		Upload:      okUpload(nil),
		RemoveDelay: time.Hour, // keep the completed item around
		OnChange:    rec.onChange,
		OnComplete:  rec.onComplete,
	})
	require.NoError(t, err)

	id, _ := q.Enqueue("e1", "", "shot.png", []byte("x"))
	waitFor(t, time.Second, func() bool { return len(rec.completions()) == 1 })

	// A completed item cannot be retried.
	assert.Error(t, q.Retry(id))

	seen := make(map[types.QueueStatus]bool)
	for _, s := range rec.all() {
		seen[s.Status] = true
	}
	assert.True(t, seen[types.StatusUploading])
	assert.True(t, seen[types.StatusComplete])
	assert.False(t, seen[types.StatusFailed])
}

func TestUploadFailureAndRetry(t *testing.T) {
	rec := &recorder{}
	var mu sync.Mutex
	attempts := 0
	upload := func(ctx context.Context, eventID, filename string, data io.Reader) (*types.MediaAsset, error) {
		io.Copy(io.Discard, data)
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return nil, errors.New("connection refused")
		}
		return &types.MediaAsset{ID: "m1"}, nil
	}

	q, err := New(Config{
		Upload:      upload,
		RemoveDelay: 10 * time.Millisecond,
		OnChange:    rec.onChange,
		OnComplete:  rec.onComplete,
	})
	require.NoError(t, err)

	id, _ := q.Enqueue("e1", "", "shot.png", []byte("x"))

	waitFor(t, time.Second, func() bool {
		items := q.Items()
		return len(items) == 1 && items[0].Status == types.StatusFailed
	})
	failed := q.Items()[0]
	assert.Contains(t, failed.Error, "connection refused")

	// Failed items stay put indefinitely.
	time.Sleep(30 * time.Millisecond)
	require.Len(t, q.Items(), 1)

	require.NoError(t, q.Retry(id))
	waitFor(t, time.Second, func() bool { return len(rec.completions()) == 1 })
	assert.Equal(t, "m1", rec.completions()[0].MediaAsset.ID)
}

func TestRetryOnlyWhenFailed(t *testing.T) {
	block := make(chan struct{})
	q, err := New(Config{
		Upload: func(ctx context.Context, eventID, filename string, data io.Reader) (*types.MediaAsset, error) {
			<-block
			return nil, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { close(block) })

	id, _ := q.Enqueue("e1", "", "shot.png", []byte("x"))
	err = q.Retry(id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uploading")

	assert.Error(t, q.Retry("missing"))
}

func TestUploadTimeout(t *testing.T) {
	q, err := New(Config{
		Upload: func(ctx context.Context, eventID, filename string, data io.Reader) (*types.MediaAsset, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		UploadTimeout: 15 * time.Millisecond,
	})
	require.NoError(t, err)

	q.Enqueue("e1", "", "shot.png", []byte("x"))
	waitFor(t, time.Second, func() bool {
		items := q.Items()
		return len(items) == 1 && items[0].Status == types.StatusFailed
	})
	assert.Contains(t, q.Items()[0].Error, "timed out")
}

func TestNilAssetTolerated(t *testing.T) {
	rec := &recorder{}
	q, err := New(Config{
		Upload:      okUpload(nil), // 2xx with unparseable body
		RemoveDelay: time.Hour,
		OnComplete:  rec.onComplete,
	})
	require.NoError(t, err)

	q.Enqueue("e1", "", "shot.png", []byte("x"))
	waitFor(t, time.Second, func() bool { return len(rec.completions()) == 1 })
	done := rec.completions()[0]
	assert.Equal(t, types.StatusComplete, done.Status)
	assert.Nil(t, done.MediaAsset)
}

func TestRemoveInAnyStatus(t *testing.T) {
	block := make(chan struct{})
	q, err := New(Config{
		Upload: func(ctx context.Context, eventID, filename string, data io.Reader) (*types.MediaAsset, error) {
			<-block
			return nil, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { close(block) })

	id, _ := q.Enqueue("e1", "", "shot.png", []byte("x"))
	require.Len(t, q.Items(), 1)
	q.Remove(id)
	assert.Empty(t, q.Items())

	// Removing again is a no-op.
	q.Remove(id)
}

func TestConcurrentUploadsRaceFreely(t *testing.T) {
	rec := &recorder{}
	started := make(chan string, 8)
	release := make(chan struct{})
	q, err := New(Config{
		Upload: func(ctx context.Context, eventID, filename string, data io.Reader) (*types.MediaAsset, error) {
			started <- eventID
			<-release
			return nil, nil
		},
		RemoveDelay: time.Hour,
		OnComplete:  rec.onComplete,
	})
	require.NoError(t, err)

	q.Enqueue("e1", "", "a.png", []byte("x"))
	q.Enqueue("e2", "", "b.png", []byte("x"))
	q.Enqueue("e3", "", "c.png", []byte("x"))

	// All three run at once: no queueing, no throttling.
	waitFor(t, time.Second, func() bool { return len(started) == 3 })
	assert.Equal(t, 3, q.Pending())

	close(release)
	waitFor(t, time.Second, func() bool { return len(rec.completions()) == 3 })
	assert.Equal(t, 0, q.Pending())
}

func TestEnqueueRejectsEmptyPayload(t *testing.T) {
	q, err := New(Config{Upload: okUpload(nil)})
	require.NoError(t, err)
	_, err = q.Enqueue("e1", "", "shot.png", nil)
	assert.Error(t, err)
}

func TestNewRequiresUploadFunc(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
