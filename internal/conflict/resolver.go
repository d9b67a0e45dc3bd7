package conflict

import (
	"fmt"
	"sync"

	"github.com/marklab/marksync/internal/remote"
)

// Strategy names a conflict resolution policy.
type Strategy string

const (
	// StrategyRemoteWins takes the remote item unconditionally.
	StrategyRemoteWins Strategy = "remote_wins"

	// StrategyLocalWins takes the local item unconditionally.
	StrategyLocalWins Strategy = "local_wins"

	// StrategyNewestWins takes whichever side has the larger
	// LastModified timestamp. Ties go to remote.
	StrategyNewestWins Strategy = "newest_wins"

	// StrategyMerge starts from the newer side for scalar fields and
	// fills any field absent on the winner from the loser.
	StrategyMerge Strategy = "merge"

	// StrategyManual defers to the user: the conflict stays in the
	// unresolved registry until ResolveManually is called.
	StrategyManual Strategy = "manual"
)

// Resolution is the outcome of resolving one conflict.
type Resolution struct {
	Strategy                 Strategy     `json:"strategy"`
	Resolved                 *remote.Item `json:"resolved"`
	RequiresUserConfirmation bool         `json:"requires_user_confirmation"`
}

// ManualAction selects the outcome of a manual resolution.
type ManualAction string

const (
	// ActionKeepLocal resolves to the local item.
	ActionKeepLocal ManualAction = "keep_local"

	// ActionKeepRemote resolves to the remote item.
	ActionKeepRemote ManualAction = "keep_remote"

	// ActionCustom resolves to a caller-supplied item.
	ActionCustom ManualAction = "custom"
)

// Resolver applies resolution strategies to detected conflicts.
//
// Strategy selection is: per-provider override if set, else the global
// default (initially remote_wins). Safe for concurrent use.
type Resolver struct {
	detector *Detector

	mu              sync.Mutex
	defaultStrategy Strategy
	perProvider     map[string]Strategy
}

// NewResolver creates a resolver over the given detector's registry.
func NewResolver(detector *Detector) *Resolver {
	return &Resolver{
		detector:        detector,
		defaultStrategy: StrategyRemoteWins,
		perProvider:     make(map[string]Strategy),
	}
}

// SetDefaultStrategy changes the global default strategy.
func (r *Resolver) SetDefaultStrategy(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultStrategy = s
}

// SetProviderStrategy overrides the strategy for one source.
func (r *Resolver) SetProviderStrategy(providerID string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.perProvider[providerID] = s
}

// StrategyFor returns the strategy that would apply to a conflict from
// the given source.
func (r *Resolver) StrategyFor(providerID string) Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.perProvider[providerID]; ok {
		return s
	}
	return r.defaultStrategy
}

// Resolve applies the selected strategy to a conflict.
//
// Automatic strategies remove the conflict from the unresolved
// registry. The manual strategy returns a nil resolved item with
// RequiresUserConfirmation set, and the conflict stays registered until
// ResolveManually is called.
func (r *Resolver) Resolve(c *Conflict) Resolution {
	strategy := r.StrategyFor(c.ProviderID)

	switch strategy {
	case StrategyLocalWins:
		r.detector.remove(c.ID)
		return Resolution{Strategy: strategy, Resolved: c.Local.Clone()}

	case StrategyNewestWins:
		winner := c.Remote
		if c.Local.LastModified.After(c.Remote.LastModified) {
			winner = c.Local
		}
		r.detector.remove(c.ID)
		return Resolution{Strategy: strategy, Resolved: winner.Clone()}

	case StrategyMerge:
		r.detector.remove(c.ID)
		return Resolution{Strategy: strategy, Resolved: merge(c)}

	case StrategyManual:
		return Resolution{Strategy: strategy, RequiresUserConfirmation: true}

	default: // remote_wins
		r.detector.remove(c.ID)
		return Resolution{Strategy: StrategyRemoteWins, Resolved: c.Remote.Clone()}
	}
}

// ResolveManually resolves a manual-strategy conflict with the user's
// decision and removes it from the unresolved registry.
//
// For ActionCustom the caller supplies the resolved item; for the other
// actions custom is ignored and may be nil.
func (r *Resolver) ResolveManually(conflictID string, action ManualAction, custom *remote.Item) (Resolution, error) {
	c := r.detector.Get(conflictID)
	if c == nil {
		return Resolution{}, fmt.Errorf("conflict not found: %s", conflictID)
	}

	var resolved *remote.Item
	switch action {
	case ActionKeepLocal:
		resolved = c.Local.Clone()
	case ActionKeepRemote:
		resolved = c.Remote.Clone()
	case ActionCustom:
		if custom == nil {
			return Resolution{}, fmt.Errorf("custom resolution requires an item")
		}
		resolved = custom.Clone()
	default:
		return Resolution{}, fmt.Errorf("unknown manual action: %s", action)
	}

	r.detector.remove(conflictID)
	return Resolution{Strategy: StrategyManual, Resolved: resolved}, nil
}

// merge combines the two sides of a conflict: the side with the larger
// LastModified wins scalar fields, then any metadata key absent on
// the winner is filled from the loser. Ties go to remote.
func merge(c *Conflict) *remote.Item {
	winner, loser := c.Remote, c.Local
	if c.Local.LastModified.After(c.Remote.LastModified) {
		winner, loser = c.Local, c.Remote
	}

	merged := winner.Clone()
	if loser.Metadata != nil {
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]any, len(loser.Metadata))
		}
		for k, v := range loser.Metadata {
			if _, present := merged.Metadata[k]; !present {
				merged.Metadata[k] = v
			}
		}
	}
	if merged.Title == "" {
		merged.Title = loser.Title
	}
	if merged.URL == "" {
		merged.URL = loser.URL
	}
	return merged
}
