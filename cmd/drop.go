package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-match-sync/internal/storage"
)

var dropForce bool

// dropCmd deletes one player's store.
var dropCmd = &cobra.Command{
	Use:   "drop <player-id>",
	Short: "Delete a player's store",
	Long:  "Permanently delete a player's SQLite store. All synced and backfilled data for that player is lost. Run sync and backfill afterwards to rebuild.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDrop,
}

func init() {
	dropCmd.Flags().BoolVarP(&dropForce, "force", "f", false, "skip confirmation prompt")
}

func runDrop(cmd *cobra.Command, args []string) error {
	path := storage.PlayerPath(cfg.DataDir, args[0])
	if !dropForce {
		fmt.Fprintf(os.Stderr, "This will permanently delete: %s\n", path)
		fmt.Fprintf(os.Stderr, "Re-run with --force to confirm.\n")
		return nil
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(os.Stdout, "Store does not exist, nothing to drop.")
			return nil
		}
		return fmt.Errorf("remove store: %w", err)
	}
	// WAL side files.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	fmt.Fprintf(os.Stdout, "Deleted: %s\n", path)
	return nil
}
