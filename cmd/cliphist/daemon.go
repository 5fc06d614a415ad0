package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"go.klb.dev/cliphist/internal/clip"
	"go.klb.dev/cliphist/internal/crypto"
	"go.klb.dev/cliphist/internal/engine"
	"go.klb.dev/cliphist/internal/history"
	"go.klb.dev/cliphist/internal/ipc"
	"go.klb.dev/cliphist/internal/metrics"
	"go.klb.dev/cliphist/internal/monitor"
	"go.klb.dev/cliphist/internal/persist"
	"go.klb.dev/cliphist/internal/playback"
	"go.klb.dev/cliphist/internal/rpc"
)

const shutdownTimeout = 5 * time.Second

func newDaemonCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Record clipboard history and serve it to the other sub-commands",
		Long: `Starts the clipboard history daemon. It polls the system clipboard,
records each new copy, saves the history under --data-dir, and listens on a
local socket ($CLIPHIST_SOCKET, $XDG_RUNTIME_DIR/cliphist.sock, or a per-user
file in $TMPDIR).

Content marked as concealed or transient by password managers is skipped
unless --skip-sensitive=false. Copies made while an application listed in
--exclude has focus are ignored.

Config file search order:
  /etc/cliphist/cliphist.toml
  $HOME/.config/cliphist/cliphist.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPHIST_* env vars → flags

limit, interval, exclude, skip-sensitive, and flash are re-applied when the
config file changes.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runDaemon(cmd.Context(), v) },
	}

	f := cmd.Flags()
	f.Int("limit", history.DefaultLimit, "maximum number of history entries")
	f.Duration("interval", monitor.DefaultInterval, "clipboard polling interval")
	f.StringSlice("exclude", nil, "application identifiers whose copies are ignored")
	f.Bool("skip-sensitive", true, "skip content marked concealed or transient")
	f.Bool("monitor", true, "start with monitoring enabled")
	f.String("data-dir", defaultDataDir(), "directory holding the history document")
	f.String("history-key", "", "passphrase encrypting the history document (empty = plain JSON)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address (empty = disabled)")
	f.Duration("flash", playback.DefaultFlash, "how long the paste indicator stays raised")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runDaemon(parent context.Context, v *viper.Viper) error {
	setupLogging(v)

	settings, err := settingsFrom(v)
	if err != nil {
		return err
	}

	var box *crypto.Box
	if key := v.GetString("history-key"); key != "" {
		if box, err = crypto.NewBox(key); err != nil {
			return fmt.Errorf("history key: %w", err)
		}
	}

	ln, err := ipc.Listen()
	if err != nil {
		return err
	}

	sys := clip.New()
	defer sys.Close()

	saver := persist.New(v.GetString("data-dir"), box)
	m := metrics.New()
	eng, err := engine.New(engine.Options{
		System:     sys,
		Saver:      saver,
		Settings:   settings,
		Monitoring: v.GetBool("monitor"),
		Metrics:    m,
	})
	if err != nil {
		_ = ln.Close()
		return err
	}

	slog.Info("cliphist daemon starting",
		"version", Version,
		"backend", sys.Name(),
		"history", saver.Path(),
		"encrypted", box != nil,
		"socket", ln.Addr().String(),
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// The saver outlives the engine so the last mutation is flushed.
	saveCtx, stopSaver := context.WithCancel(context.Background())
	g.Go(func() error {
		defer stopSaver()
		return eng.Run(ctx)
	})
	g.Go(func() error {
		saver.Run(saveCtx)
		return nil
	})

	gs := grpc.NewServer()
	rpc.NewServer(eng).Register(gs)
	g.Go(func() error { return serveIPC(ctx, gs, ln) })

	if addr := v.GetString("metrics-addr"); addr != "" {
		g.Go(func() error { return serveMetrics(ctx, addr, m) })
	}

	watchConfig(ctx, v, eng)

	err = g.Wait()
	slog.Info("cliphist daemon stopped")
	return err
}

// serveIPC serves gs on ln until ctx is done. Watch streams never finish on
// their own, so the server is stopped rather than drained.
func serveIPC(ctx context.Context, gs *grpc.Server, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		gs.Stop()
	}()
	if err := gs.Serve(ln); err != nil {
		return fmt.Errorf("ipc serve: %w", err)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	slog.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

// watchConfig re-applies the runtime settings whenever the config file is
// written. Values given as flags keep precedence over the file.
func watchConfig(ctx context.Context, v *viper.Viper, eng *engine.Engine) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		s, err := settingsFrom(v)
		if err != nil {
			slog.Warn("config change ignored", "file", ev.Name, "err", err)
			return
		}
		if err := eng.ApplySettings(ctx, s); err != nil {
			slog.Warn("config change not applied", "file", ev.Name, "err", err)
			return
		}
		slog.Info("config reloaded", "file", ev.Name)
	})
	v.WatchConfig()
	slog.Debug("watching config", "file", v.ConfigFileUsed())
}
