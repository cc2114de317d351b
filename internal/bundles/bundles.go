// Package bundles implements the mutations on the bundle collection.
// The state store holds the data; the functions here enforce the invariants
// (page and bundle caps, duplicate detection) before touching it.
package bundles

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/witheez/eventatlas-capture-sub000/internal/state"
	"github.com/witheez/eventatlas-capture-sub000/internal/types"
	"github.com/witheez/eventatlas-capture-sub000/internal/urlutil"
)

// Soft caps enforced at mutation time.
const (
	MaxPagesPerBundle = 20
	MaxBundles        = 50
)

// AddOptions controls AddCapture behavior.
type AddOptions struct {
	// BundleID targets an explicit bundle. Empty means group by the
	// capture's domain (creating the bundle if needed).
	BundleID string
	// Replace overwrites an existing page with the same effective URL
	// instead of reporting it as a duplicate.
	Replace bool
}

// AddResult reports what AddCapture did.
type AddResult struct {
	Bundle *types.Bundle
	// DuplicateIndex is set when a page with the same effective URL already
	// existed in the target bundle and Replace was not requested; the
	// capture was not appended.
	DuplicateIndex *int
	// CreatedBundle is true when a new bundle was created for the capture.
	CreatedBundle bool
}

// AddCapture adds a capture to its target bundle. Duplicate detection is
// keyed on the normalized effective URL within the target bundle only.
func AddCapture(st *state.Store, c *types.Capture, opts AddOptions) (*AddResult, error) {
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	if c.CapturedAt.IsZero() {
		c.CapturedAt = time.Now()
	}

	target, created, err := resolveBundle(st, c, opts)
	if err != nil {
		return nil, err
	}

	key := urlutil.Normalize(c.EffectiveURL())
	for i, p := range target.Pages {
		if urlutil.Normalize(p.EffectiveURL()) != key {
			continue
		}
		if opts.Replace {
			target.Pages[i] = c
			return &AddResult{Bundle: target, CreatedBundle: created}, nil
		}
		idx := i
		return &AddResult{Bundle: target, DuplicateIndex: &idx, CreatedBundle: created}, nil
	}

	if len(target.Pages) >= MaxPagesPerBundle {
		return nil, fmt.Errorf("bundle %q is full (%d pages)", target.Name, MaxPagesPerBundle)
	}

	target.Pages = append(target.Pages, c)
	return &AddResult{Bundle: target, CreatedBundle: created}, nil
}

// resolveBundle finds the target bundle for a capture, creating one when
// auto-grouping by domain.
func resolveBundle(st *state.Store, c *types.Capture, opts AddOptions) (*types.Bundle, bool, error) {
	if opts.BundleID != "" {
		b := st.BundleByID(opts.BundleID)
		if b == nil {
			return nil, false, fmt.Errorf("bundle %q not found", opts.BundleID)
		}
		return b, false, nil
	}

	name := urlutil.Domain(c.EffectiveURL())
	if name == "" {
		name = "unsorted"
	}
	if b := st.BundleByName(name); b != nil {
		return b, false, nil
	}

	b, err := NewBundle(st, name)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// NewBundle creates an empty bundle, enforcing the bundle cap.
func NewBundle(st *state.Store, name string) (*types.Bundle, error) {
	if len(st.Bundles()) >= MaxBundles {
		return nil, fmt.Errorf("bundle limit reached (%d)", MaxBundles)
	}
	b := &types.Bundle{
		ID:        ulid.Make().String(),
		Name:      name,
		CreatedAt: time.Now(),
		Expanded:  true,
	}
	st.SetBundles(append(st.Bundles(), b))
	return b, nil
}

// RenameBundle changes a bundle's name.
func RenameBundle(st *state.Store, id, name string) error {
	b := st.BundleByID(id)
	if b == nil {
		return fmt.Errorf("bundle %q not found", id)
	}
	b.Name = name
	return nil
}

// DeleteBundle removes a bundle and all its pages.
func DeleteBundle(st *state.Store, id string) error {
	all := st.Bundles()
	for i, b := range all {
		if b.ID == id {
			st.SetBundles(append(all[:i:i], all[i+1:]...))
			if st.SelectedBundleID() == id {
				st.SetSelectedBundleID("")
				st.SetSelectedPageID("")
			}
			return nil
		}
	}
	return fmt.Errorf("bundle %q not found", id)
}

// ClearAll destroys every bundle.
func ClearAll(st *state.Store) {
	st.SetBundles(nil)
	st.SetSelectedBundleID("")
	st.SetSelectedPageID("")
}

// RemoveCapture deletes a page from a bundle.
func RemoveCapture(st *state.Store, bundleID, captureID string) error {
	b := st.BundleByID(bundleID)
	if b == nil {
		return fmt.Errorf("bundle %q not found", bundleID)
	}
	for i, p := range b.Pages {
		if p.ID == captureID {
			b.Pages = append(b.Pages[:i:i], b.Pages[i+1:]...)
			if st.SelectedPageID() == captureID {
				st.SetSelectedPageID("")
			}
			return nil
		}
	}
	return fmt.Errorf("capture %q not found in bundle %q", captureID, b.Name)
}

// MoveCapture moves a page between bundles, subject to the destination's
// page cap and duplicate check.
func MoveCapture(st *state.Store, captureID, fromID, toID string) error {
	from := st.BundleByID(fromID)
	if from == nil {
		return fmt.Errorf("bundle %q not found", fromID)
	}
	var c *types.Capture
	for _, p := range from.Pages {
		if p.ID == captureID {
			c = p
			break
		}
	}
	if c == nil {
		return fmt.Errorf("capture %q not found in bundle %q", captureID, from.Name)
	}

	res, err := AddCapture(st, c, AddOptions{BundleID: toID})
	if err != nil {
		return err
	}
	if res.DuplicateIndex != nil {
		return fmt.Errorf("bundle %q already has this page", res.Bundle.Name)
	}
	return RemoveCapture(st, fromID, captureID)
}
