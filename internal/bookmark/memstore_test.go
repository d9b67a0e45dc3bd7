package bookmark

import (
	"context"
	"testing"
	"time"

	"github.com/marklab/marksync/internal/remote"
)

func setupFolder(t *testing.T) (*MemStore, context.Context) {
	t.Helper()
	s := NewMemStore()
	s.CreateFolder("f1", "Pull Requests")
	return s, context.Background()
}

func TestBatchCreateAndContents(t *testing.T) {
	s, ctx := setupFolder(t)

	ids, err := s.BatchCreate(ctx, "f1", []remote.Item{
		{ID: "1", Title: "b item", URL: "https://x/1"},
		{ID: "2", Title: "a item", URL: "https://x/2"},
	}, SortAlphabetical)
	if err != nil {
		t.Fatalf("BatchCreate failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}

	records, err := s.GetFolderContents(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFolderContents failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Alphabetical sort applies on create.
	if records[0].Title != "a item" || records[1].Title != "b item" {
		t.Errorf("unexpected order: %q, %q", records[0].Title, records[1].Title)
	}

	if _, err := s.BatchCreate(ctx, "missing", nil, SortAlphabetical); err == nil {
		t.Error("expected error for unknown folder")
	}
}

func TestBatchUpdateAndDelete(t *testing.T) {
	s, ctx := setupFolder(t)
	ids, _ := s.BatchCreate(ctx, "f1", []remote.Item{
		{ID: "1", Title: "one", URL: "https://x/1"},
		{ID: "2", Title: "two", URL: "https://x/2"},
	}, SortAlphabetical)

	if err := s.BatchUpdate(ctx, []Update{{BookmarkID: ids[0], Title: "one (merged)"}}); err != nil {
		t.Fatalf("BatchUpdate failed: %v", err)
	}
	records, _ := s.GetFolderContents(ctx, "f1")
	found := false
	for _, r := range records {
		if r.BookmarkID == ids[0] && r.Title == "one (merged)" {
			found = true
		}
	}
	if !found {
		t.Errorf("updated title not found in %v", records)
	}

	if err := s.BatchUpdate(ctx, []Update{{BookmarkID: "ghost", Title: "x"}}); err == nil {
		t.Error("expected error for unknown bookmark")
	}

	if err := s.BatchDelete(ctx, []string{ids[1], "ghost"}); err != nil {
		t.Fatalf("BatchDelete failed: %v", err)
	}
	records, _ = s.GetFolderContents(ctx, "f1")
	if len(records) != 1 {
		t.Errorf("expected 1 record after delete, got %d", len(records))
	}
}

func TestReorderFolder(t *testing.T) {
	s, ctx := setupFolder(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	items := []remote.Item{
		{ID: "1", Title: "older", URL: "https://x/1", CreatedAt: base},
		{ID: "2", Title: "newer", URL: "https://x/2", CreatedAt: base.Add(time.Hour)},
	}
	if _, err := s.BatchCreate(ctx, "f1", items, SortAlphabetical); err != nil {
		t.Fatalf("BatchCreate failed: %v", err)
	}

	if err := s.ReorderFolder(ctx, "f1", items, SortCreated); err != nil {
		t.Fatalf("ReorderFolder failed: %v", err)
	}
	records, _ := s.GetFolderContents(ctx, "f1")
	if records[0].Title != "older" || records[1].Title != "newer" {
		t.Errorf("expected creation order, got %q, %q", records[0].Title, records[1].Title)
	}
}

func TestUpdateFolderTitle(t *testing.T) {
	s, ctx := setupFolder(t)

	if err := s.UpdateFolderTitle(ctx, "f1", "Pull Requests (3)"); err != nil {
		t.Fatalf("UpdateFolderTitle failed: %v", err)
	}
	f, _ := s.GetFolder(ctx, "f1")
	if f.Title != "Pull Requests (3)" {
		t.Errorf("expected dynamic title, got %q", f.Title)
	}

	if err := s.UpdateFolderTitle(ctx, "missing", "x"); err == nil {
		t.Error("expected error for unknown folder")
	}
}

func TestDryRunSwallowsMutations(t *testing.T) {
	s, ctx := setupFolder(t)
	dry := NewDryRun(s)

	ids, err := dry.BatchCreate(ctx, "f1", []remote.Item{{ID: "1", Title: "t", URL: "https://x/1"}}, SortAlphabetical)
	if err != nil {
		t.Fatalf("BatchCreate failed: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 fabricated id, got %v", ids)
	}
	if err := dry.BatchDelete(ctx, []string{"bm-1"}); err != nil {
		t.Fatalf("BatchDelete failed: %v", err)
	}
	if err := dry.UpdateFolderTitle(ctx, "f1", "nope"); err != nil {
		t.Fatalf("UpdateFolderTitle failed: %v", err)
	}

	// Reads pass through; nothing was actually written.
	if got := s.MutationCount(); got != 0 {
		t.Errorf("expected 0 mutations on backing store, got %d", got)
	}
	records, err := dry.GetFolderContents(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFolderContents failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty folder, got %d records", len(records))
	}
}
