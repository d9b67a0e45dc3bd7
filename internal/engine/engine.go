// Package engine provides the sync orchestrator: the control loop that
// converges each source's remote item feed with its bookmark folder.
//
// Per source, each cycle walks Idle → Fetching → Diffing → Applying →
// Persisting → Idle. Sources sync sequentially: there is no parallel
// fan-out, which keeps the bookmark surface free of concurrent mutation
// and the per-source rate accounting simple. A failure inside one
// source's cycle is caught at the SyncProvider boundary and never
// aborts the remaining sources.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/marklab/marksync/internal/bookmark"
	"github.com/marklab/marksync/internal/checkpoint"
	"github.com/marklab/marksync/internal/clock"
	"github.com/marklab/marksync/internal/conflict"
	"github.com/marklab/marksync/internal/diff"
	"github.com/marklab/marksync/internal/notify"
	"github.com/marklab/marksync/internal/ratelimit"
	"github.com/marklab/marksync/internal/remote"
	"github.com/marklab/marksync/internal/retry"
)

// Phase is a source's position in its sync cycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseFetching   Phase = "fetching"
	PhaseDiffing    Phase = "diffing"
	PhaseApplying   Phase = "applying"
	PhasePersisting Phase = "persisting"
)

// Settings is the configuration surface the engine consults. The
// config package satisfies it.
type Settings interface {
	NotificationsEnabled() bool
	NotifyOnSuccess() bool
	NotifyOnError() bool

	// FolderID returns the bookmark folder a source syncs into, empty
	// if none is configured.
	FolderID(providerID string) string

	// FolderTitle returns the base for the dynamic folder title,
	// empty to leave the folder title alone.
	FolderTitle(providerID string) string

	SortOrder(providerID string) bookmark.SortOrder

	// Filter reports whether an item title should be mirrored.
	Filter(providerID string, title string) bool
}

// Result reports one source's sync cycle.
type Result struct {
	RunID         string        `json:"run_id"`
	ProviderID    string        `json:"provider_id"`
	Success       bool          `json:"success"`
	ItemsAdded    int           `json:"items_added"`
	ItemsUpdated  int           `json:"items_updated"`
	ItemsDeleted  int           `json:"items_deleted"`
	ConflictsHeld int           `json:"conflicts_held"`
	Duration      time.Duration `json:"duration"`
	Err           error         `json:"-"`
	Error         string        `json:"error,omitempty"`
}

// RunSummary aggregates one SyncAll pass.
type RunSummary struct {
	RunID     string   `json:"run_id"`
	Results   []Result `json:"results"`
	Succeeded int      `json:"succeeded"`
}

// Deps are the engine's collaborators. Registry, Store, Settings and
// Checkpoints are required; the rest default.
type Deps struct {
	Registry    *remote.Registry
	Store       bookmark.Store
	Settings    Settings
	Checkpoints checkpoint.Store

	Limiter  *ratelimit.Limiter
	Detector *conflict.Detector
	Resolver *conflict.Resolver
	Notifier notify.Notifier
	Logger   *log.Logger
	Clock    clock.Clock

	// RetryPolicyFor supplies the per-source retry policy. Nil uses
	// the package default for every source.
	RetryPolicyFor func(providerID string) *retry.Policy

	// OnPhaseChange, when set, observes cycle phase transitions.
	OnPhaseChange func(providerID string, phase Phase)
}

// Engine is the sync orchestrator. Construct with New; the zero value
// is not usable.
type Engine struct {
	deps Deps
}

// New creates an engine, validating required collaborators and filling
// in defaults for optional ones.
func New(deps Deps) (*Engine, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("engine: registry is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("engine: bookmark store is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("engine: settings are required")
	}
	if deps.Checkpoints == nil {
		return nil, fmt.Errorf("engine: checkpoint store is required")
	}

	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New()
	}
	if deps.Detector == nil {
		deps.Detector = conflict.NewDetector()
	}
	if deps.Resolver == nil {
		deps.Resolver = conflict.NewResolver(deps.Detector)
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	return &Engine{deps: deps}, nil
}

// Detector exposes the conflict registry for CLI and dashboard views.
func (e *Engine) Detector() *conflict.Detector { return e.deps.Detector }

// Resolver exposes conflict resolution for CLI commands.
func (e *Engine) Resolver() *conflict.Resolver { return e.deps.Resolver }

// Limiter exposes rate limit status for CLI views.
func (e *Engine) Limiter() *ratelimit.Limiter { return e.deps.Limiter }

func (e *Engine) setPhase(providerID string, phase Phase) {
	if e.deps.OnPhaseChange != nil {
		e.deps.OnPhaseChange(providerID, phase)
	}
}

// SyncAll syncs every registered source sequentially. Sources that are
// disabled or unauthenticated are skipped. One source's failure never
// stops the iteration.
func (e *Engine) SyncAll(ctx context.Context) RunSummary {
	runID := uuid.NewString()
	summary := RunSummary{RunID: runID}

	for _, id := range e.deps.Registry.IDs() {
		provider, err := e.deps.Registry.Get(id)
		if err != nil {
			continue
		}
		if !provider.IsEnabled() {
			e.deps.Logger.Printf("Skipping %s: disabled", id)
			continue
		}
		if !provider.IsAuthenticated() {
			e.deps.Logger.Printf("Skipping %s: not authenticated", id)
			continue
		}

		result := e.syncProvider(ctx, runID, id, provider)
		if result.Success {
			summary.Succeeded++
		}
		summary.Results = append(summary.Results, result)
	}

	e.deps.Logger.Printf("Run %s complete: %d/%d sources succeeded",
		runID, summary.Succeeded, len(summary.Results))
	return summary
}

// SyncProvider syncs a single source by id.
func (e *Engine) SyncProvider(ctx context.Context, providerID string) Result {
	provider, err := e.deps.Registry.Get(providerID)
	if err != nil {
		return Result{
			ProviderID: providerID,
			Err:        err,
			Error:      err.Error(),
		}
	}
	return e.syncProvider(ctx, uuid.NewString(), providerID, provider)
}

// syncProvider runs one source's full cycle. Any error is caught here,
// recorded on the Result, and reported through the notifier; it never
// propagates to the caller.
func (e *Engine) syncProvider(ctx context.Context, runID, providerID string, provider remote.Provider) Result {
	start := e.deps.Clock.Now()
	result := Result{RunID: runID, ProviderID: providerID}

	defer e.setPhase(providerID, PhaseIdle)

	err := e.runCycle(ctx, providerID, provider, &result)
	result.Duration = e.deps.Clock.Now().Sub(start)

	if err != nil {
		result.Err = err
		result.Error = err.Error()
		e.deps.Logger.Printf("Sync failed for %s: %v", providerID, err)
		e.notifyFailure(ctx, providerID, err)
		return result
	}

	result.Success = true
	e.deps.Logger.Printf("Synced %s: +%d ~%d -%d (%d conflicts held) in %v",
		providerID, result.ItemsAdded, result.ItemsUpdated, result.ItemsDeleted,
		result.ConflictsHeld, result.Duration)
	e.notifySuccess(ctx, providerID, &result)
	return result
}

func (e *Engine) runCycle(ctx context.Context, providerID string, provider remote.Provider, result *Result) error {
	// Fail fast on configuration problems before touching the network.
	folderID := e.deps.Settings.FolderID(providerID)
	if folderID == "" {
		return &remote.ValidationError{Reason: fmt.Sprintf("no folder configured for %s", providerID)}
	}
	folder, err := e.deps.Store.GetFolder(ctx, folderID)
	if err != nil {
		return &remote.ValidationError{Reason: fmt.Sprintf("folder %s missing: %v", folderID, err)}
	}

	policy := e.retryPolicy(providerID)

	e.setPhase(providerID, PhaseFetching)
	items, err := e.fetch(ctx, providerID, provider, policy)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	items = e.filterItems(providerID, items)

	e.setPhase(providerID, PhaseDiffing)
	local, err := e.deps.Store.GetFolderContents(ctx, folderID)
	if err != nil {
		return fmt.Errorf("failed to read folder contents: %w", err)
	}
	d := diff.Compute(local, items)

	prevStates, err := e.deps.Checkpoints.ProviderItemStates(ctx, providerID)
	if err != nil {
		return fmt.Errorf("failed to read item states: %w", err)
	}

	// Conflict check on update pairs. A manual-strategy conflict
	// withholds only that item; everything else proceeds.
	updates, withheld := e.resolveUpdates(providerID, local, prevStates, d.ToUpdate)
	result.ConflictsHeld = len(withheld)

	e.setPhase(providerID, PhaseApplying)
	addedIDs, err := e.applyChanges(ctx, providerID, folderID, d, updates, policy)
	if err != nil {
		return err
	}
	result.ItemsAdded = len(d.ToAdd)
	result.ItemsUpdated = len(updates)
	result.ItemsDeleted = len(d.ToDelete)

	if !d.Empty() {
		if err := e.deps.Store.ReorderFolder(ctx, folderID, items, e.deps.Settings.SortOrder(providerID)); err != nil {
			return fmt.Errorf("failed to reorder folder: %w", err)
		}
	}

	if err := e.updateFolderTitle(ctx, providerID, folder, len(items)); err != nil {
		return err
	}

	e.setPhase(providerID, PhasePersisting)
	if err := e.persistCheckpoint(ctx, providerID, local, prevStates, d, items, addedIDs, withheld); err != nil {
		return err
	}
	return nil
}

// fetch retrieves the remote item set through the rate limiter and
// retry executor, keyed by the source id.
func (e *Engine) fetch(ctx context.Context, providerID string, provider remote.Provider, policy *retry.Policy) ([]remote.Item, error) {
	op := func(ctx context.Context) ([]remote.Item, error) {
		var items []remote.Item
		err := e.deps.Limiter.Execute(ctx, providerID, func(ctx context.Context) error {
			var fetchErr error
			items, fetchErr = provider.FetchItems(ctx)
			return fetchErr
		})
		return items, err
	}

	res := retry.Execute(ctx, op, policy)
	if !res.Success {
		return nil, res.Err
	}
	return res.Value, nil
}

func (e *Engine) filterItems(providerID string, items []remote.Item) []remote.Item {
	filtered := items[:0]
	for _, it := range items {
		if e.deps.Settings.Filter(providerID, it.Title) {
			filtered = append(filtered, it)
		}
	}
	return filtered
}

// resolveUpdates runs the conflict pass over the diff's update pairs.
// Updates whose resolution needs user confirmation are withheld; the
// rest carry the resolved title. The returned set holds the withheld
// item ids so the checkpoint pass can leave their linkage untouched.
func (e *Engine) resolveUpdates(providerID string, local []bookmark.Record, prevStates map[string]checkpoint.ItemState, updates []diff.Update) ([]diff.Update, map[string]bool) {
	withheld := make(map[string]bool)
	resolved := make([]diff.Update, 0, len(updates))

	for _, u := range updates {
		newItem := u.NewItem

		localItem := &remote.Item{
			ID:         newItem.ID,
			ProviderID: providerID,
			Title:      u.OldTitle,
			URL:        newItem.URL,
		}
		if st, ok := prevStates[newItem.ID]; ok {
			localItem.LastModified = st.LastModified
		}

		c := e.deps.Detector.Detect(localItem, &newItem, providerID)
		if c == nil {
			resolved = append(resolved, u)
			continue
		}

		resolution := e.deps.Resolver.Resolve(c)
		if resolution.RequiresUserConfirmation {
			withheld[newItem.ID] = true
			e.deps.Logger.Printf("Conflict %s held for manual resolution", c.ID)
			continue
		}
		if resolution.Resolved == nil || resolution.Resolved.Title == u.OldTitle {
			// Resolution kept the local side: nothing to write.
			continue
		}
		u.NewItem = *resolution.Resolved
		resolved = append(resolved, u)
	}
	return resolved, withheld
}

// applyChanges applies the diff in delete → update → add order: frees
// space before inserting and avoids transient duplicate-looking states.
// Each batch goes through the rate limiter and retry executor.
func (e *Engine) applyChanges(ctx context.Context, providerID, folderID string, d *diff.Diff, updates []diff.Update, policy *retry.Policy) ([]string, error) {
	if len(d.ToDelete) > 0 {
		err := e.mutate(ctx, providerID, policy, func(ctx context.Context) error {
			return e.deps.Store.BatchDelete(ctx, d.ToDelete)
		})
		if err != nil {
			return nil, fmt.Errorf("delete batch failed: %w", err)
		}
	}

	if len(updates) > 0 {
		batch := make([]bookmark.Update, 0, len(updates))
		for _, u := range updates {
			batch = append(batch, bookmark.Update{BookmarkID: u.BookmarkID, Title: u.NewItem.Title})
		}
		err := e.mutate(ctx, providerID, policy, func(ctx context.Context) error {
			return e.deps.Store.BatchUpdate(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("update batch failed: %w", err)
		}
	}

	var addedIDs []string
	if len(d.ToAdd) > 0 {
		err := e.mutate(ctx, providerID, policy, func(ctx context.Context) error {
			ids, createErr := e.deps.Store.BatchCreate(ctx, folderID, d.ToAdd, e.deps.Settings.SortOrder(providerID))
			if createErr != nil {
				return createErr
			}
			addedIDs = ids
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("create batch failed: %w", err)
		}
	}
	return addedIDs, nil
}

// mutate routes one store mutation through the limiter and retry pair.
func (e *Engine) mutate(ctx context.Context, providerID string, policy *retry.Policy, op func(context.Context) error) error {
	wrapped := func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.deps.Limiter.Execute(ctx, providerID, op)
	}
	res := retry.Execute(ctx, wrapped, policy)
	if !res.Success {
		return res.Err
	}
	return nil
}

// updateFolderTitle recomputes the dynamic folder title and writes it
// only when it changed.
func (e *Engine) updateFolderTitle(ctx context.Context, providerID string, folder *bookmark.Folder, itemCount int) error {
	base := e.deps.Settings.FolderTitle(providerID)
	if base == "" {
		return nil
	}
	title := fmt.Sprintf("%s (%d)", base, itemCount)
	if folder.Title == title {
		return nil
	}
	if err := e.deps.Store.UpdateFolderTitle(ctx, folder.ID, title); err != nil {
		return fmt.Errorf("failed to update folder title: %w", err)
	}
	return nil
}

// persistCheckpoint writes the cycle's timestamp and reconciles the
// per-item linkage map: upserts for everything still mirrored, deletes
// for items that left the remote set.
func (e *Engine) persistCheckpoint(ctx context.Context, providerID string, local []bookmark.Record, prevStates map[string]checkpoint.ItemState, d *diff.Diff, items []remote.Item, addedIDs []string, withheld map[string]bool) error {
	now := e.deps.Clock.Now()

	bookmarkByURL := make(map[string]string, len(local))
	for _, rec := range local {
		bookmarkByURL[rec.URL] = rec.BookmarkID
	}
	for i, it := range d.ToAdd {
		if i < len(addedIDs) {
			bookmarkByURL[it.URL] = addedIDs[i]
		}
	}

	states := make([]checkpoint.ItemState, 0, len(items))
	for _, it := range items {
		if withheld[it.ID] {
			// The bookmark still shows the old title; keep the old
			// linkage so a later timestamp comparison sees what the
			// bookmark actually mirrors.
			continue
		}
		bmID, ok := bookmarkByURL[it.URL]
		if !ok {
			continue
		}
		states = append(states, checkpoint.ItemState{
			ProviderID:   providerID,
			ItemID:       it.ID,
			BookmarkID:   bmID,
			CreatedAt:    it.CreatedAt,
			UpdatedAt:    now,
			LastModified: it.LastModified,
		})
	}
	if err := e.deps.Checkpoints.PutItemStates(ctx, states); err != nil {
		return fmt.Errorf("failed to persist item states: %w", err)
	}

	// Drop linkage for items whose bookmark was deleted this cycle.
	deleted := make(map[string]bool, len(d.ToDelete))
	for _, id := range d.ToDelete {
		deleted[id] = true
	}
	var removedItemIDs []string
	for itemID, st := range prevStates {
		if deleted[st.BookmarkID] {
			removedItemIDs = append(removedItemIDs, itemID)
		}
	}
	if err := e.deps.Checkpoints.DeleteItemStates(ctx, providerID, removedItemIDs); err != nil {
		return fmt.Errorf("failed to prune item states: %w", err)
	}

	if err := e.deps.Checkpoints.SetLastSync(ctx, providerID, now); err != nil {
		return fmt.Errorf("failed to persist sync checkpoint: %w", err)
	}
	return nil
}

func (e *Engine) retryPolicy(providerID string) *retry.Policy {
	if e.deps.RetryPolicyFor != nil {
		if p := e.deps.RetryPolicyFor(providerID); p != nil {
			return p
		}
	}
	return retry.DefaultPolicy()
}

func (e *Engine) notifySuccess(ctx context.Context, providerID string, result *Result) {
	if !e.deps.Settings.NotificationsEnabled() || !e.deps.Settings.NotifyOnSuccess() {
		return
	}
	n := notify.Notification{
		Type:       notify.TypeSuccess,
		Title:      fmt.Sprintf("Synced %s", providerID),
		Message:    fmt.Sprintf("%d added, %d updated, %d removed", result.ItemsAdded, result.ItemsUpdated, result.ItemsDeleted),
		ProviderID: providerID,
	}
	if err := e.deps.Notifier.Notify(ctx, n); err != nil {
		e.deps.Logger.Printf("Notification failed: %v", err)
	}
}

func (e *Engine) notifyFailure(ctx context.Context, providerID string, syncErr error) {
	if !e.deps.Settings.NotificationsEnabled() || !e.deps.Settings.NotifyOnError() {
		return
	}
	n := notify.Notification{
		Type:       notify.TypeError,
		Title:      fmt.Sprintf("Sync failed for %s", providerID),
		Message:    syncErr.Error(),
		ProviderID: providerID,
	}
	if err := e.deps.Notifier.Notify(ctx, n); err != nil {
		e.deps.Logger.Printf("Notification failed: %v", err)
	}
}
