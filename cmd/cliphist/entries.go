package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/cliphist/internal/rpc"
)

func newPasteCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "paste <id|#>",
		Short: "Put an entry back on the clipboard and paste it",
		Long: `Writes the entry to the system clipboard and posts the paste shortcut
to the focused application. Without the OS input permission the entry is only
placed on the clipboard; see "cliphist permission".

With --print the entry's payload is written to stdout instead and the
clipboard is left alone:

  cliphist paste 3 --print > snippet.txt`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *rpc.Client) error {
				id, err := resolveID(ctx, c, args[0])
				if err != nil {
					return err
				}
				if v.GetBool("print") {
					e, err := c.Get(ctx, id)
					if err != nil {
						return fmt.Errorf("get: %w", err)
					}
					return writePayload(cmd.OutOrStdout(), e)
				}
				resp, err := c.Paste(ctx, id, v.GetInt("pid"))
				if err != nil {
					return fmt.Errorf("paste: %w", err)
				}
				if !resp.Keystroke {
					fmt.Fprintf(cmd.ErrOrStderr(), "copied to clipboard; paste keystroke skipped: %s\n", resp.Skipped)
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.Int("pid", 0, "post the keystroke to this process (default: focused application)")
	f.Bool("print", false, "write the payload to stdout instead of pasting")
	addConfigFlag(cmd)

	return cmd
}

func writePayload(w io.Writer, e *rpc.Entry) error {
	if len(e.Data) > 0 {
		_, err := w.Write(e.Data)
		return err
	}
	_, err := io.WriteString(w, e.Text)
	return err
}

func newFavoriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorite <id|#>",
		Short: "Toggle an entry's favorite flag",
		Long: `Favorites stay at the top of the history and are evicted last.
Use --on or --off to set the flag instead of toggling it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, _ := cmd.Flags().GetBool("on")
			off, _ := cmd.Flags().GetBool("off")
			var want *bool
			switch {
			case on && off:
				return fmt.Errorf("--on and --off are mutually exclusive")
			case on, off:
				want = &on
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *rpc.Client) error {
				id, err := resolveID(ctx, c, args[0])
				if err != nil {
					return err
				}
				fav, err := c.Favorite(ctx, id, want)
				if err != nil {
					return fmt.Errorf("favorite: %w", err)
				}
				state := "unmarked"
				if fav {
					state = "marked"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s as favorite\n", state, shortID(id))
				return nil
			})
		},
	}
	cmd.Flags().Bool("on", false, "mark as favorite")
	cmd.Flags().Bool("off", false, "unmark as favorite")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id|#>...",
		Aliases: []string{"rm"},
		Short:   "Remove entries from history",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *rpc.Client) error {
				// Resolve every position before deleting anything; each
				// delete shifts the positions after it.
				ids := make([]string, 0, len(args))
				for _, ref := range args {
					id, err := resolveID(ctx, c, ref)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}
				for _, id := range ids {
					if err := c.Delete(ctx, id); err != nil {
						return fmt.Errorf("delete %s: %w", shortID(id), err)
					}
				}
				return nil
			})
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id|#> [title]",
		Short: "Set the title shown for an entry (omit title to reset)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := ""
			if len(args) == 2 {
				title = args[1]
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *rpc.Client) error {
				id, err := resolveID(ctx, c, args[0])
				if err != nil {
					return err
				}
				if err := c.Rename(ctx, id, title); err != nil {
					return fmt.Errorf("rename: %w", err)
				}
				return nil
			})
		},
	}
}

func newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id|#> [text]",
		Short: "Replace the text of an entry (reads stdin when text is omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 2 {
				text = args[1]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = strings.TrimSuffix(string(data), "\n")
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *rpc.Client) error {
				id, err := resolveID(ctx, c, args[0])
				if err != nil {
					return err
				}
				if err := c.Edit(ctx, id, text); err != nil {
					return fmt.Errorf("edit: %w", err)
				}
				return nil
			})
		},
	}
}
