package bookmark

import (
	"context"

	"github.com/marklab/marksync/internal/remote"
)

// DryRun wraps a Store so reads pass through and mutations are
// swallowed. The engine still computes and reports its counts, but the
// underlying collection is never touched.
type DryRun struct {
	store Store
}

// NewDryRun wraps a store in a read-only shim.
func NewDryRun(store Store) *DryRun {
	return &DryRun{store: store}
}

func (d *DryRun) GetFolder(ctx context.Context, folderID string) (*Folder, error) {
	return d.store.GetFolder(ctx, folderID)
}

func (d *DryRun) GetFolderContents(ctx context.Context, folderID string) ([]Record, error) {
	return d.store.GetFolderContents(ctx, folderID)
}

// BatchCreate fabricates bookmark ids so downstream bookkeeping stays
// consistent within the dry run.
func (d *DryRun) BatchCreate(ctx context.Context, folderID string, items []remote.Item, sortOrder SortOrder) ([]string, error) {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = "dry-run"
	}
	return ids, nil
}

func (d *DryRun) BatchUpdate(ctx context.Context, updates []Update) error { return nil }

func (d *DryRun) BatchDelete(ctx context.Context, ids []string) error { return nil }

func (d *DryRun) ReorderFolder(ctx context.Context, folderID string, items []remote.Item, sortOrder SortOrder) error {
	return nil
}

func (d *DryRun) UpdateBookmark(ctx context.Context, bookmarkID string, title string) error {
	return nil
}

func (d *DryRun) UpdateFolderTitle(ctx context.Context, folderID string, title string) error {
	return nil
}
