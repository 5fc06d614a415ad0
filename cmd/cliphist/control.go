package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/cliphist/internal/ipc"
	"go.klb.dev/cliphist/internal/rpc"
)

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry, favorites included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *rpc.Client) error {
				n, err := c.Clear(ctx)
				if err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
				return nil
			})
		},
	}
}

// newMonitoringCmd builds "pause" and "resume".
func newMonitoringCmd(name string, enabled bool) *cobra.Command {
	short := "Stop recording clipboard changes"
	if enabled {
		short = "Start recording clipboard changes again"
	}
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *rpc.Client) error {
				if err := c.SetMonitoring(ctx, enabled); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show daemon state",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *rpc.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				if v.GetBool("json") {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}
				printStatus(cmd.OutOrStdout(), st, ipc.SocketPath())
				return nil
			})
		},
	}

	cmd.Flags().Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)
	return cmd
}

func printStatus(w io.Writer, st *rpc.StatusResponse, socket string) {
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Socket:\t%s\n", socket)
	fmt.Fprintf(tw, "Backend:\t%s\n", st.Backend)
	fmt.Fprintf(tw, "Monitoring:\t%s\n", onOff(st.Monitoring))
	fmt.Fprintf(tw, "Input permission:\t%s\n", grantedOr(st.Trusted))
	fmt.Fprintf(tw, "Entries:\t%d / %d\n", st.Entries, st.Limit)
	fmt.Fprintf(tw, "Interval:\t%s\n", st.Interval)
	if len(st.Excluded) > 0 {
		fmt.Fprintf(tw, "Excluded:\t%s\n", strings.Join(st.Excluded, ", "))
	}
	fmt.Fprintf(tw, "Watchers:\t%d\n", st.Watchers)
	if st.PasteActive {
		fmt.Fprintf(tw, "Pasted:\t%s\n", shortID(st.PastedID))
	}
	_ = tw.Flush()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "paused"
}

func grantedOr(b bool) string {
	if b {
		return "granted"
	}
	return "missing (run \"cliphist permission --prompt\")"
}

func newPermissionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Show or request the OS permission needed to post the paste keystroke",
		Long: `Reports whether the daemon may synthesize keyboard input. On macOS this is
the Accessibility permission; --prompt opens the system dialog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prompt, _ := cmd.Flags().GetBool("prompt")
			return withClient(cmd.Context(), func(ctx context.Context, c *rpc.Client) error {
				ok, err := c.Permission(ctx, prompt)
				if err != nil {
					return fmt.Errorf("permission: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), grantedOr(ok))
				return nil
			})
		},
	}
	cmd.Flags().Bool("prompt", false, "ask the OS to show its permission dialog")
	return cmd
}
