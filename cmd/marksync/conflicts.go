package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marklab/marksync/internal/conflict"
	"github.com/marklab/marksync/internal/remote"
	"github.com/marklab/marksync/internal/ui"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List unresolved sync conflicts",
	Long: `Run a detection pass over all sources and list conflicts awaiting
manual resolution.

The pass is a dry run: bookmarks and checkpoints are not modified.
Only sources using the 'manual' conflict strategy accumulate
unresolved conflicts; other strategies resolve automatically during
sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp(appOptions{dryRun: true})
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		a.engine.SyncAll(cmd.Context())

		unresolved := a.engine.Detector().Unresolved()
		if len(unresolved) == 0 {
			fmt.Printf("%s No unresolved conflicts\n", ui.RenderPass("✓"))
			return
		}

		rows := make([][]string, 0, len(unresolved))
		for _, c := range unresolved {
			rows = append(rows, []string{
				c.ID,
				c.ProviderID,
				string(c.Type),
				c.Local.Title,
				c.Remote.Title,
			})
		}

		fmt.Printf("\n%s %d unresolved conflicts\n\n", ui.RenderWarn("⚠"), len(unresolved))
		fmt.Print(ui.Table(
			[]string{"ID", "SOURCE", "TYPE", "LOCAL TITLE", "REMOTE TITLE"},
			rows,
		))
		fmt.Printf("\nResolve with: marksync conflicts resolve <id> --action keep_local|keep_remote\n")
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Manually resolve a conflict",
	Long: `Resolve a conflict by id, applying the chosen side to the bookmark.

Actions:
  keep_local    Keep the bookmark's current title
  keep_remote   Take the remote item's title
  custom        Use the title given with --title

Example usage:
  marksync conflicts resolve github-prs-42 --action keep_remote
  marksync conflicts resolve github-prs-42 --action custom --title "My title"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conflictID := args[0]
		action, _ := cmd.Flags().GetString("action")
		title, _ := cmd.Flags().GetString("title")

		a, err := buildApp(appOptions{})
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		ctx := cmd.Context()

		// Re-run the sync so the conflict is registered; manual
		// conflicts withhold their update and stay pending.
		a.engine.SyncAll(ctx)

		c := a.engine.Detector().Get(conflictID)
		if c == nil {
			fatalf("conflict not found: %s (run 'marksync conflicts' to list)", conflictID)
		}

		var custom *remote.Item
		if conflict.ManualAction(action) == conflict.ActionCustom {
			if title == "" {
				fatalf("--title is required with --action custom")
			}
			item := c.Remote.Clone()
			item.Title = title
			custom = item
		}

		resolution, err := a.engine.Resolver().ResolveManually(conflictID, conflict.ManualAction(action), custom)
		if err != nil {
			fatalf("%v", err)
		}

		// Apply the winner to the bookmark through the checkpoint's
		// item linkage.
		resolved := resolution.Resolved
		st, ok, err := a.checkpts.ItemState(ctx, c.ProviderID, resolved.ID)
		if err != nil {
			fatalf("failed to read checkpoint: %v", err)
		}
		if !ok {
			fatalf("no bookmark linked to item %s; run 'marksync sync' first", resolved.ID)
		}
		if err := a.store.UpdateBookmark(ctx, st.BookmarkID, resolved.Title); err != nil {
			fatalf("failed to update bookmark: %v", err)
		}

		fmt.Printf("%s Resolved %s: %q\n", ui.RenderPass("✓"), conflictID, resolved.Title)
	},
}

var conflictsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard all pending conflicts",
	Long: `Drop every unresolved conflict without applying either side.

The withheld updates are picked up again on the next sync, where they
will re-conflict unless the titles have converged in the meantime.`,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp(appOptions{dryRun: true})
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		a.engine.SyncAll(cmd.Context())

		n := len(a.engine.Detector().Unresolved())
		a.engine.Detector().Clear()
		fmt.Printf("%s Cleared %d pending conflicts\n", ui.RenderPass("✓"), n)
	},
}

func init() {
	conflictsResolveCmd.Flags().String("action", "keep_remote", "Resolution action: keep_local, keep_remote, or custom")
	conflictsResolveCmd.Flags().String("title", "", "Replacement title for --action custom")

	conflictsCmd.AddCommand(conflictsResolveCmd)
	conflictsCmd.AddCommand(conflictsClearCmd)
	rootCmd.AddCommand(conflictsCmd)
}
