package checkpoint

import (
	"context"
	"time"
)

// ReadOnly wraps a Store so reads pass through and writes are
// swallowed. Dry-run syncs use it so a preview never moves the
// checkpoint forward.
type ReadOnly struct {
	store Store
}

// NewReadOnly wraps a store in a write-discarding shim.
func NewReadOnly(store Store) *ReadOnly {
	return &ReadOnly{store: store}
}

func (r *ReadOnly) LastSync(ctx context.Context, providerID string) (time.Time, error) {
	return r.store.LastSync(ctx, providerID)
}

func (r *ReadOnly) SetLastSync(ctx context.Context, providerID string, ts time.Time) error {
	return nil
}

func (r *ReadOnly) PutItemStates(ctx context.Context, states []ItemState) error { return nil }

func (r *ReadOnly) DeleteItemStates(ctx context.Context, providerID string, itemIDs []string) error {
	return nil
}

func (r *ReadOnly) ItemState(ctx context.Context, providerID, itemID string) (ItemState, bool, error) {
	return r.store.ItemState(ctx, providerID, itemID)
}

func (r *ReadOnly) ProviderItemStates(ctx context.Context, providerID string) (map[string]ItemState, error) {
	return r.store.ProviderItemStates(ctx, providerID)
}
