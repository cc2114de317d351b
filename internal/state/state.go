// Package state holds the single source of truth for mutable UI state.
// The Store is an explicit struct owned by the controller and passed by
// reference; handlers run to completion on the event loop, so the store
// performs no locking and no change notification — callers re-render after
// mutating.
package state

import (
	"database/sql"

	"github.com/witheez/eventatlas-capture-sub000/internal/applog"
	"github.com/witheez/eventatlas-capture-sub000/internal/storage"
	"github.com/witheez/eventatlas-capture-sub000/internal/types"
)

// Store is the application state. The store itself performs no validation;
// invariants (bundle caps, duplicate checks) are enforced by the mutation
// functions in the bundles package.
type Store struct {
	bundles          []*types.Bundle
	settings         types.Settings
	filter           types.FilterState
	syncData         *types.SyncData
	matched          *types.MatchedEvent
	selectedBundleID string
	selectedPageID   string
	view             types.ViewMode
}

// New returns a store with default settings and no bundles.
func New() *Store {
	return &Store{settings: types.DefaultSettings()}
}

func (s *Store) Bundles() []*types.Bundle          { return s.bundles }
func (s *Store) SetBundles(b []*types.Bundle)      { s.bundles = b }
func (s *Store) Settings() types.Settings          { return s.settings }
func (s *Store) SetSettings(v types.Settings)      { s.settings = v }
func (s *Store) Filter() types.FilterState         { return s.filter }
func (s *Store) SetFilter(v types.FilterState)     { s.filter = v }
func (s *Store) SyncData() *types.SyncData         { return s.syncData }
func (s *Store) SetSyncData(v *types.SyncData)     { s.syncData = v }
func (s *Store) Matched() *types.MatchedEvent      { return s.matched }
func (s *Store) SetMatched(v *types.MatchedEvent)  { s.matched = v }
func (s *Store) SelectedBundleID() string          { return s.selectedBundleID }
func (s *Store) SetSelectedBundleID(id string)     { s.selectedBundleID = id }
func (s *Store) SelectedPageID() string            { return s.selectedPageID }
func (s *Store) SetSelectedPageID(id string)       { s.selectedPageID = id }
func (s *Store) View() types.ViewMode              { return s.view }
func (s *Store) SetView(v types.ViewMode)          { s.view = v }

// Reset clears all fields back to defaults. Used for test isolation and
// "clear all data".
func (s *Store) Reset() {
	*s = Store{settings: types.DefaultSettings()}
}

// BundleByID returns the bundle with the given id, or nil.
func (s *Store) BundleByID(id string) *types.Bundle {
	for _, b := range s.bundles {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// BundleByName returns the bundle with the given name, or nil.
func (s *Store) BundleByName(name string) *types.Bundle {
	for _, b := range s.bundles {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Stats computes aggregate counts for the status bar.
func (s *Store) Stats() types.Stats {
	st := types.Stats{TotalBundles: len(s.bundles)}
	for _, b := range s.bundles {
		st.TotalPages += len(b.Pages)
		for _, p := range b.Pages {
			if p.Screenshot != "" {
				st.WithScreenshot++
			}
		}
	}
	if s.matched != nil {
		st.MatchedEvents = 1
	}
	return st
}

// Load populates the store from persistent storage. Any load failure is
// logged and the affected fields keep their defaults — persistence errors
// are never fatal.
func (s *Store) Load(db *sql.DB) (migrated bool) {
	cs, migrated, err := storage.LoadCaptureState(db)
	if err != nil {
		applog.Error("state.load", err)
		cs = storage.DefaultCaptureState()
	}
	s.bundles = cs.Bundles
	s.settings = cs.Settings
	s.filter = storage.LoadFilterState(db)
	s.syncData = storage.LoadSyncCache(db)
	if migrated {
		applog.Info("state.migrated", "bundles", len(s.bundles))
	}
	return migrated
}

// Persist writes bundles and settings back to storage. Errors are logged
// and swallowed per the storage failure policy.
func (s *Store) Persist(db *sql.DB) {
	cs := &storage.CaptureState{Bundles: s.bundles, Settings: s.settings}
	if err := storage.SaveDocument(db, storage.KeyCaptureState, cs); err != nil {
		applog.Error("state.persist", err)
	}
}

// PersistFilter writes the view filter document.
func (s *Store) PersistFilter(db *sql.DB) {
	if err := storage.SaveFilterState(db, s.filter); err != nil {
		applog.Error("state.persist_filter", err)
	}
}

// PersistSync writes the sync cache document. A nil cache is skipped.
func (s *Store) PersistSync(db *sql.DB) {
	if s.syncData == nil {
		return
	}
	if err := storage.SaveSyncCache(db, s.syncData); err != nil {
		applog.Error("state.persist_sync", err)
	}
}
