package bundles

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witheez/eventatlas-capture-sub000/internal/state"
	"github.com/witheez/eventatlas-capture-sub000/internal/types"
)

func TestAddCaptureAutoGroupsByDomain(t *testing.T) {
	st := state.New()

	res, err := AddCapture(st, &types.Capture{URL: "https://example.com/a", Title: "A"}, AddOptions{})
	require.NoError(t, err)
	assert.True(t, res.CreatedBundle)
	assert.Equal(t, "example.com", res.Bundle.Name)
	assert.Len(t, res.Bundle.Pages, 1)

	// Same domain lands in the same bundle, www is ignored.
	res2, err := AddCapture(st, &types.Capture{URL: "https://www.example.com/b"}, AddOptions{})
	require.NoError(t, err)
	assert.False(t, res2.CreatedBundle)
	assert.Equal(t, res.Bundle.ID, res2.Bundle.ID)
	assert.Len(t, st.Bundles(), 1)
	assert.Len(t, res2.Bundle.Pages, 2)
}

func TestAddCaptureDuplicateDetection(t *testing.T) {
	st := state.New()

	b, err := NewBundle(st, "example.com")
	require.NoError(t, err)
	assert.Empty(t, b.Pages)

	res, err := AddCapture(st, &types.Capture{URL: "https://example.com/a"}, AddOptions{BundleID: b.ID})
	require.NoError(t, err)
	require.Nil(t, res.DuplicateIndex)
	assert.Len(t, b.Pages, 1)

	// Same URL again: duplicate index 0 returned, no auto-append.
	res, err = AddCapture(st, &types.Capture{URL: "https://example.com/a"}, AddOptions{BundleID: b.ID})
	require.NoError(t, err)
	require.NotNil(t, res.DuplicateIndex)
	assert.Equal(t, 0, *res.DuplicateIndex)
	assert.Len(t, b.Pages, 1)
}

func TestAddCaptureDuplicateOnEffectiveURL(t *testing.T) {
	st := state.New()
	b, _ := NewBundle(st, "example.com")

	_, err := AddCapture(st, &types.Capture{
		URL:       "https://tracker.example.net/r?id=9",
		EditedURL: "https://example.com/race",
	}, AddOptions{BundleID: b.ID})
	require.NoError(t, err)

	// A capture whose plain URL matches the first one's edited URL is a dup.
	res, err := AddCapture(st, &types.Capture{URL: "https://example.com/race/"}, AddOptions{BundleID: b.ID})
	require.NoError(t, err)
	require.NotNil(t, res.DuplicateIndex)
	assert.Equal(t, 0, *res.DuplicateIndex)
}

func TestAddCaptureReplace(t *testing.T) {
	st := state.New()
	b, _ := NewBundle(st, "example.com")

	first := &types.Capture{URL: "https://example.com/a", Title: "old"}
	_, err := AddCapture(st, first, AddOptions{BundleID: b.ID})
	require.NoError(t, err)

	second := &types.Capture{URL: "https://example.com/a", Title: "new"}
	res, err := AddCapture(st, second, AddOptions{BundleID: b.ID})
	require.NoError(t, err)
	require.NotNil(t, res.DuplicateIndex)

	res, err = AddCapture(st, second, AddOptions{BundleID: b.ID, Replace: true})
	require.NoError(t, err)
	assert.Nil(t, res.DuplicateIndex)
	require.Len(t, b.Pages, 1)
	assert.Equal(t, "new", b.Pages[0].Title)
}

func TestAddCapturePageCap(t *testing.T) {
	st := state.New()
	b, _ := NewBundle(st, "example.com")

	for i := 0; i < MaxPagesPerBundle; i++ {
		_, err := AddCapture(st, &types.Capture{
			URL: fmt.Sprintf("https://example.com/p%d", i),
		}, AddOptions{BundleID: b.ID})
		require.NoError(t, err)
	}

	_, err := AddCapture(st, &types.Capture{URL: "https://example.com/one-more"}, AddOptions{BundleID: b.ID})
	assert.Error(t, err)
	assert.Len(t, b.Pages, MaxPagesPerBundle)
}

func TestBundleCap(t *testing.T) {
	st := state.New()
	for i := 0; i < MaxBundles; i++ {
		_, err := NewBundle(st, fmt.Sprintf("bundle-%d", i))
		require.NoError(t, err)
	}
	_, err := NewBundle(st, "overflow")
	assert.Error(t, err)
	assert.Len(t, st.Bundles(), MaxBundles)
}

func TestAddCaptureUnknownBundle(t *testing.T) {
	st := state.New()
	_, err := AddCapture(st, &types.Capture{URL: "https://example.com/a"}, AddOptions{BundleID: "missing"})
	assert.Error(t, err)
}

func TestAddCaptureAssignsIDAndTimestamp(t *testing.T) {
	st := state.New()
	c := &types.Capture{URL: "https://example.com/a"}
	_, err := AddCapture(st, c, AddOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.CapturedAt.IsZero())
}

func TestDeleteBundleClearsSelection(t *testing.T) {
	st := state.New()
	b, _ := NewBundle(st, "example.com")
	st.SetSelectedBundleID(b.ID)

	require.NoError(t, DeleteBundle(st, b.ID))
	assert.Empty(t, st.Bundles())
	assert.Empty(t, st.SelectedBundleID())

	assert.Error(t, DeleteBundle(st, b.ID))
}

func TestRemoveCapture(t *testing.T) {
	st := state.New()
	b, _ := NewBundle(st, "example.com")
	res, _ := AddCapture(st, &types.Capture{URL: "https://example.com/a"}, AddOptions{BundleID: b.ID})
	id := res.Bundle.Pages[0].ID

	require.NoError(t, RemoveCapture(st, b.ID, id))
	assert.Empty(t, b.Pages)
	assert.Error(t, RemoveCapture(st, b.ID, id))
}

func TestMoveCapture(t *testing.T) {
	st := state.New()
	from, _ := NewBundle(st, "example.com")
	to, _ := NewBundle(st, "keepers")
	res, _ := AddCapture(st, &types.Capture{URL: "https://example.com/a"}, AddOptions{BundleID: from.ID})
	id := res.Bundle.Pages[0].ID

	require.NoError(t, MoveCapture(st, id, from.ID, to.ID))
	assert.Empty(t, from.Pages)
	require.Len(t, to.Pages, 1)
	assert.Equal(t, id, to.Pages[0].ID)
}

func TestMoveCaptureDuplicateInDestination(t *testing.T) {
	st := state.New()
	from, _ := NewBundle(st, "a")
	to, _ := NewBundle(st, "b")
	res, _ := AddCapture(st, &types.Capture{URL: "https://example.com/x"}, AddOptions{BundleID: from.ID})
	_, err := AddCapture(st, &types.Capture{URL: "https://example.com/x"}, AddOptions{BundleID: to.ID})
	require.NoError(t, err)

	err = MoveCapture(st, res.Bundle.Pages[0].ID, from.ID, to.ID)
	assert.Error(t, err)
	assert.Len(t, from.Pages, 1, "source must keep the page on failure")
}

func TestClearAll(t *testing.T) {
	st := state.New()
	NewBundle(st, "a")
	NewBundle(st, "b")
	ClearAll(st)
	assert.Empty(t, st.Bundles())
}
