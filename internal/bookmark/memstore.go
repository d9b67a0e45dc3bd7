package bookmark

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marklab/marksync/internal/remote"
)

// MemStore is an in-memory Store implementation.
//
// It backs the daemon's default wiring when no real bookmark backend is
// configured, and serves as the engine's test double. All state is
// guarded by a single mutex; the engine applies batches sequentially so
// finer locking buys nothing.
type MemStore struct {
	mu        sync.Mutex
	folders   map[string]*Folder
	contents  map[string][]*entry // folderID -> ordered entries
	byID      map[string]*entry
	nextID    int
	mutations int
}

type entry struct {
	id        string
	folderID  string
	url       string
	title     string
	createdAt time.Time
	updatedAt time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		folders:  make(map[string]*Folder),
		contents: make(map[string][]*entry),
		byID:     make(map[string]*entry),
	}
}

// CreateFolder adds a folder and returns it. Test and bootstrap helper.
func (s *MemStore) CreateFolder(id, title string) *Folder {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := &Folder{ID: id, Title: title}
	s.folders[id] = f
	return f
}

// EnsureFolder creates a folder if it does not exist. An existing
// folder is left alone, dynamic title included.
func (s *MemStore) EnsureFolder(id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.folders[id]; !ok {
		s.folders[id] = &Folder{ID: id, Title: title}
	}
}

// DeleteFolder removes a folder and its contents.
func (s *MemStore) DeleteFolder(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.contents[id] {
		delete(s.byID, e.id)
	}
	delete(s.contents, id)
	delete(s.folders, id)
}

// MutationCount returns how many mutating store calls have been made.
// Used by tests asserting that an empty diff touches nothing.
func (s *MemStore) MutationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// GetFolder implements Store.
func (s *MemStore) GetFolder(ctx context.Context, folderID string) (*Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.folders[folderID]
	if !ok {
		return nil, fmt.Errorf("folder not found: %s", folderID)
	}
	cp := *f
	return &cp, nil
}

// GetFolderContents implements Store.
func (s *MemStore) GetFolderContents(ctx context.Context, folderID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.folders[folderID]; !ok {
		return nil, fmt.Errorf("folder not found: %s", folderID)
	}

	entries := s.contents[folderID]
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, Record{BookmarkID: e.id, URL: e.url, Title: e.title})
	}
	return records, nil
}

// BatchCreate implements Store.
func (s *MemStore) BatchCreate(ctx context.Context, folderID string, items []remote.Item, sortOrder SortOrder) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.folders[folderID]; !ok {
		return nil, fmt.Errorf("folder not found: %s", folderID)
	}

	s.mutations++
	ids := make([]string, 0, len(items))
	for _, it := range items {
		s.nextID++
		e := &entry{
			id:        fmt.Sprintf("bm-%d", s.nextID),
			folderID:  folderID,
			url:       it.URL,
			title:     it.Title,
			createdAt: it.CreatedAt,
			updatedAt: it.UpdatedAt,
		}
		s.contents[folderID] = append(s.contents[folderID], e)
		s.byID[e.id] = e
		ids = append(ids, e.id)
	}
	s.sortFolderLocked(folderID, sortOrder)
	return ids, nil
}

// BatchUpdate implements Store.
func (s *MemStore) BatchUpdate(ctx context.Context, updates []Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutations++
	for _, u := range updates {
		e, ok := s.byID[u.BookmarkID]
		if !ok {
			return fmt.Errorf("bookmark not found: %s", u.BookmarkID)
		}
		e.title = u.Title
		e.updatedAt = time.Now()
	}
	return nil
}

// BatchDelete implements Store.
func (s *MemStore) BatchDelete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutations++
	for _, id := range ids {
		e, ok := s.byID[id]
		if !ok {
			continue // idempotent
		}
		entries := s.contents[e.folderID]
		for i, cand := range entries {
			if cand.id == id {
				s.contents[e.folderID] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
		delete(s.byID, id)
	}
	return nil
}

// ReorderFolder implements Store. Upstream timestamps are taken from
// the supplied items, matched by URL.
func (s *MemStore) ReorderFolder(ctx context.Context, folderID string, items []remote.Item, sortOrder SortOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.folders[folderID]; !ok {
		return fmt.Errorf("folder not found: %s", folderID)
	}

	s.mutations++
	byURL := make(map[string]*remote.Item, len(items))
	for i := range items {
		byURL[items[i].URL] = &items[i]
	}
	for _, e := range s.contents[folderID] {
		if it, ok := byURL[e.url]; ok {
			e.createdAt = it.CreatedAt
			e.updatedAt = it.UpdatedAt
		}
	}
	s.sortFolderLocked(folderID, sortOrder)
	return nil
}

// UpdateBookmark implements Store.
func (s *MemStore) UpdateBookmark(ctx context.Context, bookmarkID string, title string) error {
	return s.BatchUpdate(ctx, []Update{{BookmarkID: bookmarkID, Title: title}})
}

// UpdateFolderTitle implements Store.
func (s *MemStore) UpdateFolderTitle(ctx context.Context, folderID string, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.folders[folderID]
	if !ok {
		return fmt.Errorf("folder not found: %s", folderID)
	}
	s.mutations++
	f.Title = title
	return nil
}

func (s *MemStore) sortFolderLocked(folderID string, sortOrder SortOrder) {
	entries := s.contents[folderID]
	switch sortOrder {
	case SortCreated:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].createdAt.Before(entries[j].createdAt)
		})
	case SortUpdated:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].updatedAt.After(entries[j].updatedAt)
		})
	default: // alphabetical
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].title < entries[j].title
		})
	}
}
