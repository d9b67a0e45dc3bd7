// Package bookmark defines the contract between the sync engine and the
// locally-held bookmark collection.
//
// The engine treats the store as an external collaborator: it reads a
// folder's current contents at the start of every cycle and applies
// batch mutations computed by the diff. During an apply the store is
// treated as exclusively owned by the engine; concurrent manual edits
// are not detected and may be overwritten on the next cycle.
package bookmark

import (
	"context"

	"github.com/marklab/marksync/internal/remote"
)

// Record is the engine's view of a stored bookmark. Records are
// ephemeral: re-read every cycle, never cached across cycles.
type Record struct {
	BookmarkID string `json:"bookmark_id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
}

// Folder is a bookmark container a source syncs into.
type Folder struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SortOrder controls how a folder's bookmarks are arranged after apply.
type SortOrder string

const (
	// SortAlphabetical orders bookmarks by title.
	SortAlphabetical SortOrder = "alphabetical"

	// SortCreated orders bookmarks by upstream creation time.
	SortCreated SortOrder = "created"

	// SortUpdated orders bookmarks by upstream last-update time.
	SortUpdated SortOrder = "updated"
)

// Update pairs a bookmark id with its replacement title.
type Update struct {
	BookmarkID string
	Title      string
}

// Store is the bookmark collection contract consumed by the engine.
//
// Batch operations are all-or-nothing from the engine's perspective: an
// error means the batch must be retried or the cycle failed, never that
// an unknown subset was applied.
type Store interface {
	// GetFolder returns the folder or an error if it does not exist.
	GetFolder(ctx context.Context, folderID string) (*Folder, error)

	// GetFolderContents lists the folder's bookmarks.
	GetFolderContents(ctx context.Context, folderID string) ([]Record, error)

	// BatchCreate adds bookmarks for the given items at positions
	// consistent with sortOrder, returning the new bookmark ids in
	// item order.
	BatchCreate(ctx context.Context, folderID string, items []remote.Item, sortOrder SortOrder) ([]string, error)

	// BatchUpdate applies title updates.
	BatchUpdate(ctx context.Context, updates []Update) error

	// BatchDelete removes bookmarks by id.
	BatchDelete(ctx context.Context, ids []string) error

	// ReorderFolder rearranges the folder to match sortOrder, using
	// the items' upstream timestamps where the order needs them.
	ReorderFolder(ctx context.Context, folderID string, items []remote.Item, sortOrder SortOrder) error

	// UpdateBookmark changes a single bookmark's title.
	UpdateBookmark(ctx context.Context, bookmarkID string, title string) error

	// UpdateFolderTitle renames a folder.
	UpdateFolderTitle(ctx context.Context, folderID string, title string) error
}
