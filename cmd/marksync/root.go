package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/marklab/marksync/internal/bookmark"
	"github.com/marklab/marksync/internal/checkpoint"
	"github.com/marklab/marksync/internal/config"
	"github.com/marklab/marksync/internal/conflict"
	"github.com/marklab/marksync/internal/engine"
	"github.com/marklab/marksync/internal/notify"
	"github.com/marklab/marksync/internal/ratelimit"
	"github.com/marklab/marksync/internal/remote"
	"github.com/marklab/marksync/internal/retry"

	// Provider implementations register themselves.
	_ "github.com/marklab/marksync/internal/remote/static"
)

var configPath string

// version is stamped at build time via -ldflags.
var version = "0.1.0-dev"

var rootCmd = &cobra.Command{
	Use:   "marksync",
	Short: "Mirror remote work items into bookmark folders",
	Long: `marksync keeps bookmark folders in step with remote item feeds.

Each configured source (GitHub PRs, issue trackers, any provider) is
fetched, diffed against its bookmark folder, and reconciled: new items
become bookmarks, retitled items are updated, vanished items are
removed. Conflicts, retries, and rate limits are handled per source.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to the config file (default: search . and ~/.config/marksync)")
}

// app bundles the wired collaborators for one CLI invocation.
type app struct {
	cfg      *config.Config
	settings *config.Live
	engine   *engine.Engine
	registry *remote.Registry
	limiter  *ratelimit.Limiter
	checkpts checkpoint.Store
	store    bookmark.Store

	closers []func() error
}

type appOptions struct {
	// dryRun swallows all bookmark and checkpoint writes.
	dryRun bool

	// notifier, when set, joins the log notifier on the fan-out.
	notifier notify.Notifier

	// onPhaseChange observes engine phase transitions.
	onPhaseChange func(providerID string, phase engine.Phase)
}

// buildApp loads the config and wires the engine and its
// collaborators.
func buildApp(opts appOptions) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{cfg: cfg, settings: config.NewLive(cfg)}

	db, err := checkpoint.Open(cfg.CheckpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	a.checkpts = db
	if opts.dryRun {
		a.checkpts = checkpoint.NewReadOnly(db)
	}

	a.store = newBookmarkStore(cfg)
	if opts.dryRun {
		a.store = bookmark.NewDryRun(a.store)
	}

	a.registry = remote.NewRegistry()
	a.limiter = ratelimit.New(ratelimit.WithLogger(componentLogger("ratelimit")))

	detector := conflict.NewDetector()
	resolver := conflict.NewResolver(detector)

	if err := registerSources(cfg, a.registry, a.limiter, resolver); err != nil {
		return nil, err
	}

	var notifier notify.Notifier = notify.Discard{}
	if cfg.NotificationsEnabled() {
		notifier = notify.NewLogNotifier(componentLogger("notify"))
	}
	if opts.notifier != nil {
		notifier = notify.Multi{notifier, opts.notifier}
	}

	eng, err := engine.New(engine.Deps{
		Registry:       a.registry,
		Store:          a.store,
		Settings:       a.settings,
		Checkpoints:    a.checkpts,
		Limiter:        a.limiter,
		Detector:       detector,
		Resolver:       resolver,
		Notifier:       notifier,
		Logger:         componentLogger("engine"),
		RetryPolicyFor: retryPolicies(a.settings),
		OnPhaseChange:  opts.onPhaseChange,
	})
	if err != nil {
		return nil, err
	}
	a.engine = eng
	return a, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: close error: %v\n", err)
		}
	}
}

// registerSources instantiates and configures a provider per enabled
// source, and wires its rate limit and conflict strategy. It is also
// the daemon's reload path: existing sources are replaced in place and
// removed sources are dropped.
func registerSources(cfg *config.Config, registry *remote.Registry, limiter *ratelimit.Limiter, resolver *conflict.Resolver) error {
	keep := make(map[string]bool, len(cfg.Sources))

	for _, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}

		provider, err := remote.NewProvider(src.Type)
		if err != nil {
			return fmt.Errorf("source %s: %w", src.Name, err)
		}

		settings := make(map[string]any, len(src.Settings)+1)
		for k, v := range src.Settings {
			settings[k] = v
		}
		settings["name"] = src.Name

		if err := provider.Configure(settings); err != nil {
			return fmt.Errorf("source %s: %w", src.Name, err)
		}

		registry.Add(provider)
		limiter.Register(src.Name, src.RateLimitFor())
		if src.ConflictStrategy != "" {
			resolver.SetProviderStrategy(src.Name, conflict.Strategy(src.ConflictStrategy))
		}
		keep[src.Name] = true
	}

	for _, id := range registry.IDs() {
		if !keep[id] {
			registry.Remove(id)
		}
	}
	return nil
}

// newBookmarkStore returns the bookmark backend. Only the in-memory
// store ships today; a browser-backed store plugs in here.
func newBookmarkStore(cfg *config.Config) bookmark.Store {
	store := bookmark.NewMemStore()
	ensureFolders(cfg, store)
	return store
}

// ensureFolders bootstraps the in-memory store's folders for each
// configured source. A browser-backed store already has its folders, so
// other Store implementations are left alone.
func ensureFolders(cfg *config.Config, store bookmark.Store) {
	ms, ok := store.(*bookmark.MemStore)
	if !ok {
		return
	}
	for _, src := range cfg.Sources {
		if id := cfg.FolderID(src.Name); id != "" {
			ms.EnsureFolder(id, src.Name)
		}
	}
}

// retryPolicies maps source ids to their configured retry policies,
// reading through the live handle so reloads take effect.
func retryPolicies(settings *config.Live) func(string) *retry.Policy {
	return func(providerID string) *retry.Policy {
		if src, ok := settings.Current().Source(providerID); ok {
			return src.RetryPolicy()
		}
		return nil
	}
}

func componentLogger(name string) *log.Logger {
	return log.New(os.Stderr, "["+name+"] ", log.LstdFlags)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
