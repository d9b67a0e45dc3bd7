package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marklab/marksync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-source sync status",
	Long: `Display the current state of every configured source.

Shows:
  - Whether the source is enabled and authenticated
  - Last successful sync time from the checkpoint database
  - Rate limit budget remaining
  - Conflict resolution strategy`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp(appOptions{dryRun: true})
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		ctx := cmd.Context()

		if len(a.cfg.Sources) == 0 {
			fmt.Printf("%s No sources configured\n", ui.RenderWarn("⚠"))
			fmt.Println("   Add sources to the config file and re-run")
			return
		}

		rows := make([][]string, 0, len(a.cfg.Sources))
		for _, src := range a.cfg.Sources {
			state := ui.RenderDim("disabled")
			if src.Enabled {
				state = ui.RenderPass("enabled")
				if p, err := a.registry.Get(src.Name); err == nil && !p.IsAuthenticated() {
					state = ui.RenderWarn("needs auth")
				}
			}

			lastSync := "never"
			if last, err := a.checkpts.LastSync(ctx, src.Name); err == nil && !last.IsZero() {
				lastSync = fmt.Sprintf("%v ago", time.Since(last).Round(time.Second))
			}

			rl := a.limiter.Status(src.Name)
			budget := fmt.Sprintf("%d/%d", rl.Remaining, rl.Limit)
			if rl.IsLimited {
				budget = ui.RenderWarn(budget + " (limited)")
			}

			strategy := string(a.engine.Resolver().StrategyFor(src.Name))

			rows = append(rows, []string{src.Name, src.Type, state, lastSync, budget, strategy})
		}

		fmt.Printf("\n%s Source Status\n\n", ui.RenderAccent("📊"))
		fmt.Print(ui.Table(
			[]string{"SOURCE", "TYPE", "STATE", "LAST SYNC", "RATE BUDGET", "CONFLICTS"},
			rows,
		))
		fmt.Printf("\nCheckpoints: %s\n", a.cfg.CheckpointPath)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
