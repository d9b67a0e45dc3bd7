// Package diff computes the minimal set of create/update/delete
// operations needed to converge a bookmark folder with a freshly
// fetched remote item set.
//
// The calculator is a pure function over its inputs: no network, no
// storage, no clock. Identity is the URL on both sides; bookmarks
// carry no custom id field, so a remote item whose URL changes while
// its logical id stays the same is indistinguishable from one delete
// plus one add.
package diff

import (
	"github.com/marklab/marksync/internal/bookmark"
	"github.com/marklab/marksync/internal/remote"
)

// Update pairs an existing bookmark with the remote item that should
// replace its title.
type Update struct {
	BookmarkID string
	OldTitle   string
	NewItem    remote.Item
}

// Diff is the structured result of reconciliation. Every URL appears in
// at most one of the three lists.
type Diff struct {
	ToAdd    []remote.Item
	ToUpdate []Update
	ToDelete []string // bookmark ids
}

// Empty reports whether applying the diff would be a no-op.
func (d *Diff) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToUpdate) == 0 && len(d.ToDelete) == 0
}

// Total returns the number of operations the diff carries.
func (d *Diff) Total() int {
	return len(d.ToAdd) + len(d.ToUpdate) + len(d.ToDelete)
}

// Compute builds the diff between a folder's current bookmarks and the
// remote item set.
//
//   - ToAdd: remote items whose URL is absent locally
//   - ToDelete: bookmark ids whose URL is absent remotely
//   - ToUpdate: URL present on both sides with a differing title
//
// Order is input order: adds follow the remote slice, deletes and
// updates follow the local slice, so identical inputs always produce
// structurally identical diffs.
func Compute(local []bookmark.Record, remoteItems []remote.Item) *Diff {
	localByURL := make(map[string]bookmark.Record, len(local))
	for _, rec := range local {
		localByURL[rec.URL] = rec
	}
	remoteByURL := make(map[string]remote.Item, len(remoteItems))
	for _, it := range remoteItems {
		remoteByURL[it.URL] = it
	}

	d := &Diff{}

	for _, it := range remoteItems {
		if _, exists := localByURL[it.URL]; !exists {
			d.ToAdd = append(d.ToAdd, it)
		}
	}

	for _, rec := range local {
		it, exists := remoteByURL[rec.URL]
		if !exists {
			d.ToDelete = append(d.ToDelete, rec.BookmarkID)
			continue
		}
		if it.Title != rec.Title {
			d.ToUpdate = append(d.ToUpdate, Update{
				BookmarkID: rec.BookmarkID,
				OldTitle:   rec.Title,
				NewItem:    it,
			})
		}
	}

	return d
}
