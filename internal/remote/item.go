// Package remote defines the normalized work-item model produced by
// external sources (pull requests, issues) and the Provider contract
// through which the sync engine fetches them.
//
// Providers translate raw API responses into Items; the reconciliation
// core never sees provider-specific payloads. Item identity for diffing
// purposes is the URL: local bookmarks carry no custom id field, so the
// URL is the only key both sides share.
package remote

import (
	"time"
)

// Item is a normalized work item fetched from an external source.
//
// Items are produced fresh on every fetch and are immutable once
// returned by a provider. Code that needs to derive a modified variant
// (e.g. conflict merge) must work on a Clone.
type Item struct {
	// ID is the provider-scoped identifier (issue number, PR node id).
	ID string `json:"id"`

	// ProviderID names the source this item came from.
	ProviderID string `json:"provider_id"`

	// Title is the display title, typically including state ("#42 open").
	Title string `json:"title"`

	// URL is the canonical web URL. This is the diff identity key.
	URL string `json:"url"`

	// CreatedAt and UpdatedAt are upstream timestamps, zero when the
	// provider does not report them.
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`

	// LastModified is the upstream modification timestamp used by
	// timestamp-based conflict strategies. Zero when unknown.
	LastModified time.Time `json:"last_modified,omitempty"`

	// Metadata holds provider-specific extras (description, labels,
	// state) that conflict merging preserves field-by-field.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the item, including its metadata map.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	cp := *it
	if it.Metadata != nil {
		cp.Metadata = make(map[string]any, len(it.Metadata))
		for k, v := range it.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// FieldEqual reports whether two items agree on the fields the sync
// engine compares: title and URL. Timestamp drift alone does not make
// two items unequal.
func FieldEqual(a, b *Item) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Title == b.Title && a.URL == b.URL
}
