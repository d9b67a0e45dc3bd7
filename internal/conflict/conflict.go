// Package conflict classifies disagreements between the local and
// remote representation of the same logical item and applies a
// configurable resolution strategy.
//
// Detected conflicts live in an in-memory registry keyed by
// "{providerID}-{itemID}" until resolved or cleared; they are the only
// state in the reconciliation core with cross-cycle lifetime.
package conflict

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marklab/marksync/internal/remote"
)

// Type classifies a detected conflict.
type Type string

const (
	// TypeMetadata indicates differing titles, or other metadata
	// differences while URLs match.
	TypeMetadata Type = "METADATA_CONFLICT"

	// TypeURLMismatch indicates matching titles but differing URLs.
	TypeURLMismatch Type = "URL_MISMATCH"
)

// Conflict records a disagreement between two representations of the
// same logical item. Identity is stable per (providerID, itemID), so
// repeated detection on the same pair overwrites rather than
// duplicates.
type Conflict struct {
	ID         string       `json:"id"` // "{providerID}-{itemID}"
	Type       Type         `json:"type"`
	Local      *remote.Item `json:"local"`
	Remote     *remote.Item `json:"remote"`
	ProviderID string       `json:"provider_id"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Stats summarizes detection counters.
type Stats struct {
	Total      int            `json:"total"`
	ByProvider map[string]int `json:"by_provider"`
	ByType     map[Type]int   `json:"by_type"`
}

// Detector detects conflicts and keeps the unresolved registry.
// Safe for concurrent use.
type Detector struct {
	mu         sync.Mutex
	conflicts  map[string]*Conflict
	byProvider map[string]int
	byType     map[Type]int
	total      int
	now        func() time.Time
}

// NewDetector creates an empty detector.
func NewDetector() *Detector {
	return &Detector{
		conflicts:  make(map[string]*Conflict),
		byProvider: make(map[string]int),
		byType:     make(map[Type]int),
		now:        time.Now,
	}
}

// Detect classifies the disagreement between a local and remote item.
//
// Returns nil when either side is nil, or when the two sides agree on
// title and URL; timestamp drift alone is not a conflict. Otherwise
// the conflict is recorded in the registry (overwriting any previous
// conflict for the same pair) and returned.
func (d *Detector) Detect(local, remoteItem *remote.Item, providerID string) *Conflict {
	if local == nil || remoteItem == nil {
		return nil
	}
	if remote.FieldEqual(local, remoteItem) {
		return nil
	}

	var typ Type
	switch {
	case local.Title == remoteItem.Title && local.URL != remoteItem.URL:
		typ = TypeURLMismatch
	default:
		// Titles differ, or other metadata differs while URLs match.
		typ = TypeMetadata
	}

	itemID := remoteItem.ID
	if itemID == "" {
		itemID = local.ID
	}

	c := &Conflict{
		ID:         fmt.Sprintf("%s-%s", providerID, itemID),
		Type:       typ,
		Local:      local.Clone(),
		Remote:     remoteItem.Clone(),
		ProviderID: providerID,
		CreatedAt:  d.now(),
	}

	d.mu.Lock()
	d.conflicts[c.ID] = c
	d.byProvider[providerID]++
	d.byType[typ]++
	d.total++
	d.mu.Unlock()

	return c
}

// Get returns the registered conflict with the given id, or nil.
func (d *Detector) Get(id string) *Conflict {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conflicts[id]
}

// Unresolved returns all conflicts still awaiting resolution, sorted by
// id for deterministic output.
func (d *Detector) Unresolved() []*Conflict {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*Conflict, 0, len(d.conflicts))
	for _, c := range d.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ProviderConflicts returns the unresolved conflicts for one source.
func (d *Detector) ProviderConflicts(providerID string) []*Conflict {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*Conflict
	for _, c := range d.conflicts {
		if c.ProviderID == providerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetStats returns detection counters accumulated since the last Clear.
func (d *Detector) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{
		Total:      d.total,
		ByProvider: make(map[string]int, len(d.byProvider)),
		ByType:     make(map[Type]int, len(d.byType)),
	}
	for k, v := range d.byProvider {
		s.ByProvider[k] = v
	}
	for k, v := range d.byType {
		s.ByType[k] = v
	}
	return s
}

// remove drops a conflict from the unresolved set. Called by the
// resolver once a resolution is produced.
func (d *Detector) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conflicts, id)
}

// Clear empties the registry and resets counters. Used at session
// boundaries.
func (d *Detector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.conflicts = make(map[string]*Conflict)
	d.byProvider = make(map[string]int)
	d.byType = make(map[Type]int)
	d.total = 0
}
