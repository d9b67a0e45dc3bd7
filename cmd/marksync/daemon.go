package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/marklab/marksync/internal/config"
	"github.com/marklab/marksync/internal/daemon"
	"github.com/marklab/marksync/internal/dashboard"
	"github.com/marklab/marksync/internal/engine"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon (foreground)",
	Long: `Run marksync as a long-lived process.

The daemon:
  1. Syncs all sources immediately on startup
  2. Re-syncs on the configured interval (daemon.sync_interval)
  3. Reloads sources when the config file changes
  4. Serves the WebSocket dashboard when dashboard_port is set

Logs go to stderr, or to a rotating file when daemon.log_file is set.

Example usage:
  marksync daemon
  marksync daemon --config /etc/marksync/config.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		// Peek at the config for the dashboard port before wiring the
		// engine, so the dashboard handler can hook into it.
		cfg, err := config.Load(configPath)
		if err != nil {
			fatalf("failed to load config: %v", err)
		}

		opts := appOptions{}
		if cfg.DashboardPort > 0 {
			dashServer := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.DashboardPort,
				Logger: componentLogger("dashboard"),
			})
			if err := dashServer.Start(); err != nil {
				fatalf("failed to start dashboard: %v", err)
			}
			defer func() { _ = dashServer.Stop() }()

			dashHandler := dashboard.NewHandler(dashServer, componentLogger("dashboard"))
			opts.notifier = dashHandler
			opts.onPhaseChange = func(id string, phase engine.Phase) {
				dashHandler.OnPhaseChange(id, phase)
			}

			fmt.Printf("Dashboard: http://localhost:%d (ws://localhost:%d/ws)\n",
				cfg.DashboardPort, cfg.DashboardPort)
		}

		a, err := buildApp(opts)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		logger := daemonLogger(a.cfg)

		reload := func(path string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := registerSources(cfg, a.registry, a.limiter, a.engine.Resolver()); err != nil {
				return err
			}
			ensureFolders(cfg, a.store)
			// Swap last so the engine never sees the new settings with
			// the old source set.
			a.settings.Swap(cfg)
			return nil
		}

		dcfg := daemon.DefaultConfig()
		dcfg.Logger = logger
		if a.cfg.Daemon.SyncInterval > 0 {
			dcfg.SyncInterval = a.cfg.Daemon.SyncInterval
		}
		if a.cfg.Daemon.SweepInterval > 0 {
			dcfg.SweepInterval = a.cfg.Daemon.SweepInterval
		}

		d, err := daemon.NewWithConfig(a.engine, configPath, reload, dcfg)
		if err != nil {
			fatalf("failed to create daemon: %v", err)
		}

		fmt.Printf("Starting marksync daemon (sync every %v)\n", dcfg.SyncInterval)
		fmt.Println("Press Ctrl+C to stop")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(ctx); err != nil {
			fatalf("daemon stopped with error: %v", err)
		}
	},
}

// daemonLogger routes daemon logs to a rotating file when configured,
// stderr otherwise.
func daemonLogger(cfg *config.Config) *log.Logger {
	if cfg.Daemon.LogFile == "" {
		return componentLogger("daemon")
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.Daemon.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}, "[daemon] ", log.LstdFlags)
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
