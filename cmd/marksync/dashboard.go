package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marklab/marksync/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start the real-time WebSocket dashboard",
	Long: `Start a WebSocket dashboard server for monitoring sync activity.

The server broadcasts sync events to connected clients:
- sync_started: A source began a sync cycle
- sync_result: A source finished a cycle, with its counts
- phase_change: A source moved between cycle phases
- conflict: A conflict was detected or resolved
- notification: An engine notification (success, error, conflict)
- stats: Aggregate sync statistics

Example usage:
  marksync dashboard                   # Start on default port 8080
  marksync dashboard --port 9000       # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws

Run alongside 'marksync daemon' with dashboard_port set in the config
to see live sync activity.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")

		config := &dashboard.Config{
			Port:   port,
			Logger: componentLogger("dashboard"),
		}

		server := dashboard.NewServer(config)

		if err := server.Start(); err != nil {
			fatalf("failed to start dashboard: %v", err)
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Health check: http://localhost:%d/health\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fatalf("error during shutdown: %v", err)
		}

		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on")

	rootCmd.AddCommand(dashboardCmd)
}
