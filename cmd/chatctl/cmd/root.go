// Package cmd implements chatctl, an offline inspector for a chat pebble
// directory. The server must be stopped; pebble locks the directory.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/karthiknish/aroosi-sub016/pkg/state"
	"github.com/karthiknish/aroosi-sub016/pkg/store/pebblestore"
)

var (
	version = "dev"
	commit  = "unknown"
)

type options struct {
	db   string
	json bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Inspect an aroosi-chat database offline",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&opts.db, "db", "./.chatdb", "database directory (as passed to the server's --db)")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print records as JSON")

	root.AddCommand(newInspectCmd(opts), newConversationCmd(opts), newReplayCmd(opts))
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the store under the server's layout read-only.
func openStore(opts *options) (*pebblestore.Store, error) {
	path := state.StorePath(opts.db)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no store at %s: %w", path, err)
	}
	return pebblestore.Open(path, pebblestore.Options{ReadOnly: true})
}
