package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// setupTestDB creates a temporary checkpoint database.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "checkpoints.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLastSyncRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Never-synced source reports the zero time.
	ts, err := db.LastSync(ctx, "gh")
	if err != nil {
		t.Fatalf("LastSync failed: %v", err)
	}
	if !ts.IsZero() {
		t.Errorf("expected zero time for fresh source, got %v", ts)
	}

	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	if err := db.SetLastSync(ctx, "gh", want); err != nil {
		t.Fatalf("SetLastSync failed: %v", err)
	}

	got, err := db.LastSync(ctx, "gh")
	if err != nil {
		t.Fatalf("LastSync failed: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// Overwrite advances the checkpoint.
	later := want.Add(time.Hour)
	if err := db.SetLastSync(ctx, "gh", later); err != nil {
		t.Fatalf("SetLastSync overwrite failed: %v", err)
	}
	got, _ = db.LastSync(ctx, "gh")
	if !got.Equal(later) {
		t.Errorf("expected %v after overwrite, got %v", later, got)
	}
}

func TestItemStates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	states := []ItemState{
		{ProviderID: "gh", ItemID: "42", BookmarkID: "bm-1", CreatedAt: now, LastModified: now},
		{ProviderID: "gh", ItemID: "43", BookmarkID: "bm-2", CreatedAt: now},
		{ProviderID: "gl", ItemID: "42", BookmarkID: "bm-9", CreatedAt: now},
	}
	if err := db.PutItemStates(ctx, states); err != nil {
		t.Fatalf("PutItemStates failed: %v", err)
	}

	gh, err := db.ProviderItemStates(ctx, "gh")
	if err != nil {
		t.Fatalf("ProviderItemStates failed: %v", err)
	}
	if len(gh) != 2 {
		t.Fatalf("expected 2 gh states, got %d", len(gh))
	}
	if gh["42"].BookmarkID != "bm-1" {
		t.Errorf("unexpected linkage: %+v", gh["42"])
	}
	if !gh["42"].LastModified.Equal(now) {
		t.Errorf("lastModified lost: %+v", gh["42"])
	}
	if !gh["43"].LastModified.IsZero() {
		t.Errorf("zero time should round-trip as zero: %+v", gh["43"])
	}

	st, ok, err := db.ItemState(ctx, "gh", "42")
	if err != nil {
		t.Fatalf("ItemState failed: %v", err)
	}
	if !ok || st.BookmarkID != "bm-1" {
		t.Errorf("single lookup mismatch: ok=%v state=%+v", ok, st)
	}
	if _, ok, _ := db.ItemState(ctx, "gh", "999"); ok {
		t.Error("untracked item reported as tracked")
	}

	// Upsert replaces the bookmark linkage.
	if err := db.PutItemStates(ctx, []ItemState{
		{ProviderID: "gh", ItemID: "42", BookmarkID: "bm-7", UpdatedAt: now.Add(time.Hour)},
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	gh, _ = db.ProviderItemStates(ctx, "gh")
	if gh["42"].BookmarkID != "bm-7" {
		t.Errorf("upsert did not replace linkage: %+v", gh["42"])
	}

	if err := db.DeleteItemStates(ctx, "gh", []string{"42"}); err != nil {
		t.Fatalf("DeleteItemStates failed: %v", err)
	}
	gh, _ = db.ProviderItemStates(ctx, "gh")
	if len(gh) != 1 {
		t.Errorf("expected 1 state after delete, got %d", len(gh))
	}

	// Other sources are untouched.
	gl, _ := db.ProviderItemStates(ctx, "gl")
	if len(gl) != 1 {
		t.Errorf("expected gl untouched, got %d states", len(gl))
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	if err := m.SetLastSync(ctx, "gh", now); err != nil {
		t.Fatalf("SetLastSync failed: %v", err)
	}
	ts, _ := m.LastSync(ctx, "gh")
	if !ts.Equal(now) {
		t.Errorf("expected %v, got %v", now, ts)
	}

	_ = m.PutItemStates(ctx, []ItemState{{ProviderID: "gh", ItemID: "1", BookmarkID: "bm-1"}})
	states, _ := m.ProviderItemStates(ctx, "gh")
	if len(states) != 1 {
		t.Fatalf("expected 1 state, got %d", len(states))
	}
	if st, ok, _ := m.ItemState(ctx, "gh", "1"); !ok || st.BookmarkID != "bm-1" {
		t.Errorf("single lookup mismatch: ok=%v state=%+v", ok, st)
	}
	_ = m.DeleteItemStates(ctx, "gh", []string{"1"})
	states, _ = m.ProviderItemStates(ctx, "gh")
	if len(states) != 0 {
		t.Errorf("expected empty after delete, got %d", len(states))
	}
}
