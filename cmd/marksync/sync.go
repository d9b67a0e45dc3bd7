package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/marklab/marksync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync [source...]",
	Short: "Sync sources with their bookmark folders",
	Long: `Run one sync pass: fetch each source's items, diff them against the
bookmark folder, and apply the changes.

With no arguments every enabled source syncs. Name sources to sync a
subset.

Examples:
  marksync sync                        # Sync all sources
  marksync sync github-prs             # Sync one source
  marksync sync --dry-run              # Show what would change
  marksync sync --stale-since "1 hour ago"   # Skip recently synced sources`,
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		staleSince, _ := cmd.Flags().GetString("stale-since")

		a, err := buildApp(appOptions{dryRun: dryRun})
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		ctx := cmd.Context()

		targets := args
		if len(targets) == 0 {
			targets = a.registry.IDs()
		}
		if staleSince != "" {
			targets, err = filterStale(ctx, a, targets, staleSince)
			if err != nil {
				fatalf("%v", err)
			}
		}

		if len(targets) == 0 {
			fmt.Println("Nothing to sync")
			return
		}

		if dryRun {
			fmt.Printf("%s Dry run: no bookmarks will be modified\n", ui.RenderWarn("⚠"))
		}

		start := time.Now()
		failed := 0
		for _, id := range targets {
			result := a.engine.SyncProvider(ctx, id)
			if !result.Success {
				failed++
				fmt.Printf("%s %s: %v\n", ui.RenderErr("✗"), id, result.Err)
				continue
			}
			line := fmt.Sprintf("%s: +%d ~%d -%d in %v",
				id, result.ItemsAdded, result.ItemsUpdated, result.ItemsDeleted,
				result.Duration.Round(time.Millisecond))
			if result.ConflictsHeld > 0 {
				line += fmt.Sprintf(" (%s)", ui.RenderWarn(fmt.Sprintf("%d conflicts held", result.ConflictsHeld)))
			}
			fmt.Printf("%s %s\n", ui.RenderPass("✓"), line)
		}

		if held := a.engine.Detector().Unresolved(); len(held) > 0 {
			fmt.Printf("\n%s %d conflicts need manual resolution; run 'marksync conflicts'\n",
				ui.RenderWarn("⚠"), len(held))
		}

		fmt.Printf("\nSynced %d/%d sources in %v\n",
			len(targets)-failed, len(targets), time.Since(start).Round(time.Millisecond))
		if failed > 0 {
			os.Exit(1)
		}
	},
}

// filterStale keeps only sources whose last successful sync is older
// than the cutoff. The cutoff accepts natural language ("1 hour ago",
// "yesterday") as well as RFC 3339 timestamps.
func filterStale(ctx context.Context, a *app, targets []string, expr string) ([]string, error) {
	cutoff, err := parseTimeExpr(expr)
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, id := range targets {
		last, err := a.checkpts.LastSync(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint for %s: %w", id, err)
		}
		if last.IsZero() || last.Before(cutoff) {
			stale = append(stale, id)
		} else {
			fmt.Printf("%s %s: synced %v ago, skipping\n",
				ui.RenderDim("·"), id, time.Since(last).Round(time.Second))
		}
	}
	return stale, nil
}

func parseTimeExpr(expr string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, expr); err == nil {
		return ts, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(expr, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", expr, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("unrecognized time expression %q", expr)
	}
	return result.Time, nil
}

func init() {
	syncCmd.Flags().Bool("dry-run", false, "Compute and report changes without applying them")
	syncCmd.Flags().String("stale-since", "", "Only sync sources not synced since this time (natural language ok)")

	rootCmd.AddCommand(syncCmd)
}
