package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print daemon notifications as they happen",
		Long: `Streams notifications from the daemon until interrupted:

  history        an entry was added, changed, or removed
  paste          an entry was pasted (cleared again shortly after)
  paste-cleared  the paste indicator self-cleared
  permission     the input permission was granted or revoked
  monitoring     recording was paused or resumed`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runWatch(cmd, v) },
	}

	cmd.Flags().StringSlice("type", nil, "only these event types")
	cmd.Flags().Bool("json", false, "one JSON object per line")
	addConfigFlag(cmd)
	return cmd
}

func runWatch(cmd *cobra.Command, v *viper.Viper) error {
	conn, c, err := dialDaemon()
	if err != nil {
		return err
	}
	defer conn.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := c.Watch(ctx, v.GetStringSlice("type")...)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for {
		ev, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		if v.GetBool("json") {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		line := fmt.Sprintf("%s  %-13s", ev.At.Local().Format(time.TimeOnly), ev.Type)
		switch {
		case ev.Op != "":
			line += " " + ev.Op
		case ev.Type == "permission" || ev.Type == "monitoring":
			line += fmt.Sprintf(" %t", ev.Value)
		}
		if ev.ID != "" {
			line += " " + shortID(ev.ID)
		}
		fmt.Fprintln(out, line)
	}
}
