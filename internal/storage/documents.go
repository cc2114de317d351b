package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/witheez/eventatlas-capture-sub000/internal/types"
	"github.com/witheez/eventatlas-capture-sub000/internal/urlutil"
)

// CaptureState is the bundles+settings document persisted under
// KeyCaptureState.
type CaptureState struct {
	Bundles  []*types.Bundle `json:"bundles"`
	Settings types.Settings  `json:"settings"`
}

// DefaultCaptureState returns the state used when nothing is persisted.
func DefaultCaptureState() *CaptureState {
	return &CaptureState{Settings: types.DefaultSettings()}
}

// SaveDocument serializes v and upserts it under key, lz4-framed.
func SaveDocument(db *sql.DB, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal document %q: %w", key, err)
	}
	blob, err := CompressBlob(data)
	if err != nil {
		return fmt.Errorf("compress document %q: %w", key, err)
	}
	_, err = db.Exec(
		`INSERT INTO documents (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, blob,
	)
	if err != nil {
		return fmt.Errorf("write document %q: %w", key, err)
	}
	return nil
}

// LoadRawDocument reads and decompresses the document stored under key.
// The second return is false when the key does not exist.
func LoadRawDocument(db *sql.DB, key string) ([]byte, bool, error) {
	var blob []byte
	err := db.QueryRow("SELECT value FROM documents WHERE key = ?", key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read document %q: %w", key, err)
	}
	data, err := DecompressBlob(blob)
	if err != nil {
		return nil, false, fmt.Errorf("decode document %q: %w", key, err)
	}
	return data, true, nil
}

// DeleteDocument removes a document. Deleting a missing key is not an error.
func DeleteDocument(db *sql.DB, key string) error {
	if _, err := db.Exec("DELETE FROM documents WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete document %q: %w", key, err)
	}
	return nil
}

// LoadCaptureState loads the bundles+settings document. If the current key
// is absent but the legacy flat-capture array exists, the legacy data is
// grouped by domain into bundles, written under the current key, and the
// legacy key is deleted (migrated=true). Legacy string-encoded distance
// presets are converted inline.
func LoadCaptureState(db *sql.DB) (state *CaptureState, migrated bool, err error) {
	data, found, err := LoadRawDocument(db, KeyCaptureState)
	if err != nil {
		return nil, false, err
	}
	if found {
		st, err := decodeCaptureState(data)
		if err != nil {
			return nil, false, err
		}
		return st, false, nil
	}

	// Current key absent — check for the legacy shape.
	legacy, found, err := LoadRawDocument(db, KeyLegacyCaptures)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return DefaultCaptureState(), false, nil
	}

	var captures []*types.Capture
	if err := json.Unmarshal(legacy, &captures); err != nil {
		return nil, false, fmt.Errorf("parse legacy captures: %w", err)
	}

	st := DefaultCaptureState()
	st.Bundles = groupByDomain(captures)

	if err := SaveDocument(db, KeyCaptureState, st); err != nil {
		return nil, false, err
	}
	if err := DeleteDocument(db, KeyLegacyCaptures); err != nil {
		return nil, false, err
	}
	return st, true, nil
}

// LoadFilterState loads the persisted view filter, returning the zero value
// when absent or unreadable.
func LoadFilterState(db *sql.DB) types.FilterState {
	var fs types.FilterState
	data, found, err := LoadRawDocument(db, KeyFilterState)
	if err != nil || !found {
		return fs
	}
	if err := json.Unmarshal(data, &fs); err != nil {
		return types.FilterState{}
	}
	return fs
}

// SaveFilterState persists the view filter.
func SaveFilterState(db *sql.DB, fs types.FilterState) error {
	return SaveDocument(db, KeyFilterState, fs)
}

// LoadSyncCache returns the cached sync data, or nil when absent.
func LoadSyncCache(db *sql.DB) *types.SyncData {
	data, found, err := LoadRawDocument(db, KeySyncCache)
	if err != nil || !found {
		return nil
	}
	var sd types.SyncData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil
	}
	return &sd
}

// SaveSyncCache persists the sync data cache.
func SaveSyncCache(db *sql.DB, sd *types.SyncData) error {
	return SaveDocument(db, KeySyncCache, sd)
}

// rawCaptureState defers settings decoding so the legacy string-encoded
// distance presets can be converted.
type rawCaptureState struct {
	Bundles  []*types.Bundle `json:"bundles"`
	Settings rawSettings     `json:"settings"`
}

type rawSettings struct {
	APIURL            string          `json:"apiUrl"`
	APIToken          string          `json:"apiToken"`
	SyncMode          string          `json:"syncMode"`
	AutoGroup         bool            `json:"autoGroup"`
	ScreenshotDelayMs int             `json:"screenshotDelayMs"`
	DistancePresets   json.RawMessage `json:"distancePresets"`
}

func decodeCaptureState(data []byte) (*CaptureState, error) {
	var raw rawCaptureState
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse capture state: %w", err)
	}

	st := &CaptureState{
		Bundles: raw.Bundles,
		Settings: types.Settings{
			APIURL:            raw.Settings.APIURL,
			APIToken:          raw.Settings.APIToken,
			SyncMode:          raw.Settings.SyncMode,
			AutoGroup:         raw.Settings.AutoGroup,
			ScreenshotDelayMs: raw.Settings.ScreenshotDelayMs,
			DistancePresets:   types.NewDistancePresets(),
		},
	}
	if st.Settings.SyncMode == "" {
		st.Settings.SyncMode = "manual"
	}

	dp := raw.Settings.DistancePresets
	if len(dp) == 0 {
		return st, nil
	}

	// Old installs stored presets as a comma-separated string.
	var legacy string
	if err := json.Unmarshal(dp, &legacy); err == nil {
		st.Settings.DistancePresets = MigrateDistanceString(legacy)
		return st, nil
	}

	var presets types.DistancePresets
	if err := json.Unmarshal(dp, &presets); err != nil {
		return nil, fmt.Errorf("parse distance presets: %w", err)
	}
	if presets.Defaults == nil {
		presets.Defaults = types.NewDistancePresets().Defaults
	}
	st.Settings.DistancePresets = presets
	return st, nil
}

// MigrateDistanceString converts the legacy comma-separated preset string
// into the structured toggle map. A negative number disables that default
// distance; a positive number outside the default set becomes a custom
// distance. Example: "25, -21, 35" → defaults {21:false, rest true},
// custom [25, 35].
func MigrateDistanceString(s string) types.DistancePresets {
	presets := types.NewDistancePresets()
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		km, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		switch {
		case km < 0:
			if _, ok := presets.Defaults[-km]; ok {
				presets.Defaults[-km] = false
			}
		default:
			if _, ok := presets.Defaults[km]; !ok {
				presets.Custom = append(presets.Custom, km)
			} else {
				presets.Defaults[km] = true
			}
		}
	}
	sort.Ints(presets.Custom)
	return presets
}

// groupByDomain builds one bundle per distinct capture domain, in order of
// first appearance, each named for its domain.
func groupByDomain(captures []*types.Capture) []*types.Bundle {
	byDomain := make(map[string]*types.Bundle)
	var bundles []*types.Bundle
	for _, c := range captures {
		domain := urlutil.Domain(c.EffectiveURL())
		if domain == "" {
			domain = "unsorted"
		}
		b, ok := byDomain[domain]
		if !ok {
			b = &types.Bundle{
				ID:        ulid.Make().String(),
				Name:      domain,
				CreatedAt: time.Now(),
				Expanded:  true,
			}
			byDomain[domain] = b
			bundles = append(bundles, b)
		}
		b.Pages = append(b.Pages, c)
	}
	return bundles
}
