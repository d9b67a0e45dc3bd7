// Package daemon provides the long-running sync process.
//
// The daemon:
// 1. Runs an immediate sync pass on startup
// 2. Re-syncs all sources on a fixed interval
// 3. Watches the config file and reloads sources on change
// 4. Periodically sweeps idle rate limiter state
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marklab/marksync/internal/engine"
	"github.com/marklab/marksync/internal/ratelimit"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run a full sync pass
	SyncInterval time.Duration

	// SweepInterval is how often to sweep idle rate limiter state
	SweepInterval time.Duration

	// SweepIdleFor is how long a source must be idle before its
	// window state is purged
	SweepIdleFor time.Duration

	// DebounceInterval is how long to wait before reloading after a
	// config file change. This batches rapid editor writes together
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		SweepInterval:    time.Minute,
		SweepIdleFor:     10 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// ReloadFunc re-reads the config file and re-registers sources. It is
// supplied by the caller so the daemon stays ignorant of config
// parsing and provider construction.
type ReloadFunc func(path string) error

// Daemon orchestrates periodic syncing and config reloads.
type Daemon struct {
	engine     *engine.Engine
	limiter    *ratelimit.Limiter
	configPath string
	reload     ReloadFunc
	config     *Config

	watcher       *fsnotify.Watcher
	pendingReload time.Time
	pendingMu     sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Daemon instance.
//
// The daemon requires:
//   - eng: the sync engine to drive
//   - configPath: the config file to watch for changes (may be empty
//     to disable watching)
//   - reload: callback invoked after the config file changes
//
// Use Start() to begin syncing.
func New(eng *engine.Engine, configPath string, reload ReloadFunc) (*Daemon, error) {
	return NewWithConfig(eng, configPath, reload, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(eng *engine.Engine, configPath string, reload ReloadFunc, config *Config) (*Daemon, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	var watcher *fsnotify.Watcher
	if configPath != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine:     eng,
		limiter:    eng.Limiter(),
		configPath: configPath,
		reload:     reload,
		config:     config,
		watcher:    watcher,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Run an immediate sync pass
// 2. Re-sync on every SyncInterval tick
// 3. Reload sources when the config file changes
// 4. Sweep idle rate limiter state
//
// This blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// Immediate pass so a fresh daemon converges without waiting a
	// full interval.
	d.runSync()

	if d.watcher != nil {
		// Watch the directory, not the file: editors replace files on
		// save and the watch would die with the old inode.
		dir := filepath.Dir(d.configPath)
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch config directory: %w", err)
		}
		d.config.Logger.Printf("Watching config: %s", d.configPath)

		d.wg.Add(2)
		go d.watchConfigEvents()
		go d.processPendingReload()
	}

	d.limiter.StartSweep(d.ctx, d.config.SweepInterval, d.config.SweepIdleFor)

	d.wg.Add(1)
	go d.syncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// runSync runs one full sync pass.
func (d *Daemon) runSync() {
	summary := d.engine.SyncAll(d.ctx)
	if len(summary.Results) == 0 {
		d.config.Logger.Println("No syncable sources")
	}
}

// syncLoop re-syncs all sources on a fixed interval.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.runSync()
		}
	}
}

// watchConfigEvents monitors filesystem events on the config file and
// queues a reload.
func (d *Daemon) watchConfigEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// Only care about Create, Write, Rename
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			// Only the config file itself, not siblings.
			if filepath.Clean(event.Name) != filepath.Clean(d.configPath) {
				continue
			}

			d.config.Logger.Printf("Config event: %s %s", event.Op, event.Name)
			d.queueReload()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueReload marks the config as dirty with debouncing.
func (d *Daemon) queueReload() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	d.pendingReload = time.Now()
}

// processPendingReload reloads the config once changes settle.
func (d *Daemon) processPendingReload() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.maybeReload()
		}
	}
}

// maybeReload runs the reload callback if a change has settled past
// the debounce interval.
func (d *Daemon) maybeReload() {
	d.pendingMu.Lock()
	queuedAt := d.pendingReload
	if queuedAt.IsZero() || time.Since(queuedAt) < d.config.DebounceInterval {
		d.pendingMu.Unlock()
		return
	}
	d.pendingReload = time.Time{}
	d.pendingMu.Unlock()

	d.config.Logger.Println("Reloading config")
	if err := d.reload(d.configPath); err != nil {
		d.config.Logger.Printf("Config reload failed, keeping previous sources: %v", err)
		return
	}

	// Converge with the new source set right away.
	d.runSync()
}
