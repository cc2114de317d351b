package storage

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/witheez/eventatlas-capture-sub000/internal/types"
)

// testDB creates a temporary database for testing.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenDBCreatesSchema(t *testing.T) {
	db := testDB(t)

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if count != len(migrations) {
		t.Errorf("applied migrations = %d, want %d", count, len(migrations))
	}

	if _, err := db.Exec("INSERT INTO documents (key, value) VALUES ('k', x'00')"); err != nil {
		t.Fatalf("insert into documents: %v", err)
	}
	if err := LogUpload(db, "evt-1", "shot.jpg", "complete", "", "media-1"); err != nil {
		t.Fatalf("LogUpload: %v", err)
	}
}

func TestOpenDBIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	db.Close()

	db2, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db2.Close()

	var count int
	db2.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	if count != len(migrations) {
		t.Errorf("migrations recorded twice: %d", count)
	}
}

func TestBlobRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{"bundles":[]}`),
		bytes.Repeat([]byte("capture html capture html "), 1000),
		{}, // empty
	}
	for _, p := range payloads {
		blob, err := CompressBlob(p)
		if err != nil {
			t.Fatalf("CompressBlob(%d bytes): %v", len(p), err)
		}
		got, err := DecompressBlob(blob)
		if err != nil {
			t.Fatalf("DecompressBlob(%d bytes): %v", len(p), err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("round trip mismatch for %d-byte payload", len(p))
		}
	}
}

func TestDecompressBlobRejectsGarbage(t *testing.T) {
	if _, err := DecompressBlob([]byte("short")); err == nil {
		t.Error("expected error for truncated blob")
	}
	if _, err := DecompressBlob(bytes.Repeat([]byte{0xAB}, 64)); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	db := testDB(t)

	want := &CaptureState{
		Bundles: []*types.Bundle{
			{
				ID:        "01BUNDLE",
				Name:      "example.com",
				CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
				Expanded:  true,
				Pages: []*types.Capture{
					{
						ID:          "01CAP",
						URL:         "https://example.com/a",
						Title:       "A Race",
						Text:        "details",
						CapturedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
						IncludeText: true,
					},
				},
			},
		},
		Settings: types.DefaultSettings(),
	}

	if err := SaveDocument(db, KeyCaptureState, want); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	got, migrated, err := LoadCaptureState(db)
	if err != nil {
		t.Fatalf("LoadCaptureState: %v", err)
	}
	if migrated {
		t.Error("migrated=true without a legacy key")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestLoadCaptureStateDefaults(t *testing.T) {
	db := testDB(t)

	got, migrated, err := LoadCaptureState(db)
	if err != nil {
		t.Fatalf("LoadCaptureState: %v", err)
	}
	if migrated {
		t.Error("migrated=true on empty store")
	}
	if len(got.Bundles) != 0 {
		t.Errorf("expected no bundles, got %d", len(got.Bundles))
	}
	if got.Settings.SyncMode != "manual" {
		t.Errorf("SyncMode = %q, want manual", got.Settings.SyncMode)
	}
}

func TestLegacyMigrationGroupsByDomain(t *testing.T) {
	db := testDB(t)

	legacy := []*types.Capture{
		{ID: "c1", URL: "https://example.com/a", Title: "A"},
		{ID: "c2", URL: "https://runfest.org/races", Title: "Races"},
		{ID: "c3", URL: "https://www.example.com/b", Title: "B"},
	}
	if err := SaveDocument(db, KeyLegacyCaptures, legacy); err != nil {
		t.Fatalf("seed legacy document: %v", err)
	}

	st, migrated, err := LoadCaptureState(db)
	if err != nil {
		t.Fatalf("LoadCaptureState: %v", err)
	}
	if !migrated {
		t.Fatal("expected migrated=true")
	}
	if len(st.Bundles) != 2 {
		t.Fatalf("bundles = %d, want 2", len(st.Bundles))
	}
	if st.Bundles[0].Name != "example.com" || st.Bundles[1].Name != "runfest.org" {
		t.Errorf("bundle names = %q, %q", st.Bundles[0].Name, st.Bundles[1].Name)
	}
	if len(st.Bundles[0].Pages) != 2 {
		t.Errorf("example.com pages = %d, want 2", len(st.Bundles[0].Pages))
	}

	// Legacy key must be gone.
	if _, found, _ := LoadRawDocument(db, KeyLegacyCaptures); found {
		t.Error("legacy key still present after migration")
	}

	// A second load must read the migrated document, not re-migrate.
	st2, migrated2, err := LoadCaptureState(db)
	if err != nil {
		t.Fatalf("second LoadCaptureState: %v", err)
	}
	if migrated2 {
		t.Error("second load reported migrated=true")
	}
	if len(st2.Bundles) != 2 {
		t.Errorf("second load bundles = %d, want 2", len(st2.Bundles))
	}
}

func TestMigrateDistanceString(t *testing.T) {
	got := MigrateDistanceString("25, -21, 35")

	wantDefaults := map[int]bool{5: true, 10: true, 21: false, 42: true}
	if !reflect.DeepEqual(got.Defaults, wantDefaults) {
		t.Errorf("Defaults = %v, want %v", got.Defaults, wantDefaults)
	}
	if !reflect.DeepEqual(got.Custom, []int{25, 35}) {
		t.Errorf("Custom = %v, want [25 35]", got.Custom)
	}
}

func TestMigrateDistanceStringIgnoresJunk(t *testing.T) {
	got := MigrateDistanceString("abc, , 10, -999")
	if !got.Defaults[10] {
		t.Error("10 should stay enabled")
	}
	if len(got.Custom) != 0 {
		t.Errorf("Custom = %v, want empty", got.Custom)
	}
}

func TestLegacyDistanceStringInSettings(t *testing.T) {
	db := testDB(t)

	// Settings persisted by an old install: presets as a string.
	doc := map[string]any{
		"bundles": []any{},
		"settings": map[string]any{
			"syncMode":        "manual",
			"autoGroup":       true,
			"distancePresets": "25, -21, 35",
		},
	}
	if err := SaveDocument(db, KeyCaptureState, doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	st, _, err := LoadCaptureState(db)
	if err != nil {
		t.Fatalf("LoadCaptureState: %v", err)
	}
	dp := st.Settings.DistancePresets
	if dp.Defaults[21] {
		t.Error("21 should be disabled")
	}
	if !reflect.DeepEqual(dp.Custom, []int{25, 35}) {
		t.Errorf("Custom = %v, want [25 35]", dp.Custom)
	}
}

func TestFilterStateRoundTrip(t *testing.T) {
	db := testDB(t)

	want := types.FilterState{Filter: types.FilterEdited, Sort: types.SortByName, Query: "5k"}
	if err := SaveFilterState(db, want); err != nil {
		t.Fatalf("SaveFilterState: %v", err)
	}
	if got := LoadFilterState(db); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLoadFilterStateMissing(t *testing.T) {
	db := testDB(t)
	if got := LoadFilterState(db); got != (types.FilterState{}) {
		t.Errorf("expected zero filter state, got %+v", got)
	}
}

func TestSyncCacheRoundTrip(t *testing.T) {
	db := testDB(t)

	if got := LoadSyncCache(db); got != nil {
		t.Errorf("expected nil cache, got %+v", got)
	}

	want := &types.SyncData{
		Events:    []types.SyncEvent{{ID: "e1", Name: "City Marathon", URL: "https://example.com/marathon"}},
		Links:     []types.OrganizerLink{{Domain: "runfest.org", Name: "RunFest"}},
		FetchedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	if err := SaveSyncCache(db, want); err != nil {
		t.Fatalf("SaveSyncCache: %v", err)
	}
	got := LoadSyncCache(db)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
