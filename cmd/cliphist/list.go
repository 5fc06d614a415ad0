package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/cliphist/internal/rpc"
)

func newListCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show history entries, newest first (favorites on top)",
		Long: `Lists the clipboard history in display order. The first column is the
position accepted by paste, favorite, delete, rename, and edit in place of
an entry id.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := &rpc.ListRequest{
				Kind:      v.GetString("kind"),
				Favorites: v.GetBool("favorites"),
				Limit:     v.GetInt("limit"),
				Payload:   v.GetBool("json"),
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *rpc.Client) error {
				resp, err := c.List(ctx, req)
				if err != nil {
					return fmt.Errorf("list: %w", err)
				}
				if v.GetBool("json") {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(resp.Entries)
				}
				printEntries(cmd.OutOrStdout(), resp.Entries, time.Now())
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.String("kind", "", "only entries of this kind: text|image|file|url|color")
	f.Bool("favorites", false, "only favorites")
	f.IntP("limit", "n", 0, "show at most this many entries (0 = all)")
	f.Bool("json", false, "output JSON including payloads")
	addConfigFlag(cmd)

	return cmd
}

func printEntries(w io.Writer, entries []rpc.Entry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "History is empty.")
		return
	}
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "#\tID\tKIND\t\tCOPIED\tAPP\tLABEL\n")
	for i, e := range entries {
		star := ""
		if e.Favorite {
			star = "★"
		}
		app := e.SourceApp
		if app == "" {
			app = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, shortID(e.ID), e.Kind, star, fmtAge(now, e.CapturedAt), app, oneLine(e.Label),
		)
	}
	_ = tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func fmtAge(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := now.Sub(t).Round(time.Second)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
	return t.Local().Format("Jan 2 15:04")
}
