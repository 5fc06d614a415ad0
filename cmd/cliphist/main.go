// cliphist: clipboard history daemon and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cliphist",
		Short: "Clipboard history",
		Long: `cliphist records everything copied to the system clipboard and lets you
paste any earlier entry back into the focused application.

Run "cliphist daemon" once per login session. The other sub-commands talk to
the daemon over a local socket.

Config file search order (first found wins):
  /etc/cliphist/cliphist.toml
  $HOME/.config/cliphist/cliphist.toml
  path supplied via --config

All daemon flags can be set via CLIPHIST_<FLAG> env vars or config-file keys.
Edits to the config file are applied to a running daemon.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newDaemonCmd(),
		newListCmd(),
		newPasteCmd(),
		newFavoriteCmd(),
		newDeleteCmd(),
		newRenameCmd(),
		newEditCmd(),
		newClearCmd(),
		newMonitoringCmd("pause", false),
		newMonitoringCmd("resume", true),
		newStatusCmd(),
		newPermissionCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cliphist %s\n", Version)
		},
	}
}
