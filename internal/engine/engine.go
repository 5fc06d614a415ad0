// Package engine wires the clipboard history components together.
//
// An Engine is constructed explicitly and owns the history store on a single
// goroutine, Run's loop. Monitor ticks and every public operation execute on
// that loop, so the store is never touched concurrently. Disk writes are
// handed off to the Saver as full snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"go.klb.dev/cliphist/internal/clip"
	"go.klb.dev/cliphist/internal/history"
	"go.klb.dev/cliphist/internal/hub"
	"go.klb.dev/cliphist/internal/metrics"
	"go.klb.dev/cliphist/internal/monitor"
	"go.klb.dev/cliphist/internal/persist"
	"go.klb.dev/cliphist/internal/playback"
)

var (
	// ErrUnknownEntry is returned for an id not present in history.
	ErrUnknownEntry = errors.New("engine: unknown entry")
	// ErrNotEditable is returned when editing an image entry or setting an
	// empty text payload.
	ErrNotEditable = errors.New("engine: entry text cannot be set")
	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("engine: stopped")
)

// Saver persists snapshots of the history. persist.Persister implements it.
type Saver interface {
	Load() ([]history.Entry, error)
	Request(entries []history.Entry, clear bool)
	SetLoading(loading bool)
	OnSave(fn func(error))
}

// Settings are the runtime-adjustable options.
type Settings struct {
	Limit         int
	Interval      time.Duration
	SkipSensitive bool
	Excluded      []string
	Flash         time.Duration
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Limit:         history.DefaultLimit,
		Interval:      monitor.DefaultInterval,
		SkipSensitive: true,
		Flash:         playback.DefaultFlash,
	}
}

// Options configures New.
type Options struct {
	System     clip.System
	Saver      Saver
	Settings   Settings
	Monitoring bool
	Metrics    *metrics.Metrics // optional
}

// Status is a point-in-time view of the engine.
type Status struct {
	Monitoring  bool
	Trusted     bool
	Entries     int
	Limit       int
	Interval    time.Duration
	Backend     string
	Excluded    []string
	Watchers    int
	PasteActive bool
	PastedID    string
}

// Engine is the clipboard history engine.
type Engine struct {
	sys     clip.System
	saver   Saver
	hub     *hub.Hub
	metrics *metrics.Metrics
	flash   *playback.Indicator
	player  *playback.Player
	log     *slog.Logger

	// Owned by the loop goroutine.
	store      *history.Store
	mon        *monitor.Monitor
	monitoring bool
	interval   time.Duration
	ticker     *time.Ticker

	trusted atomic.Bool
	ops     chan func()
	done    chan struct{}
	running atomic.Bool
}

// New builds an Engine. Nothing runs until Run is called.
func New(opts Options) (*Engine, error) {
	if opts.System == nil || opts.Saver == nil {
		return nil, errors.New("engine: System and Saver are required")
	}
	s := opts.Settings
	if s.Limit <= 0 {
		return nil, history.ErrInvalidLimit
	}
	if s.Interval <= 0 {
		s.Interval = monitor.DefaultInterval
	}

	e := &Engine{
		sys:        opts.System,
		saver:      opts.Saver,
		hub:        hub.New(),
		metrics:    opts.Metrics,
		flash:      playback.NewIndicator(s.Flash),
		log:        slog.With("component", "engine"),
		monitoring: opts.Monitoring,
		interval:   s.Interval,
		ops:        make(chan func()),
		done:       make(chan struct{}),
	}
	e.player = playback.New(opts.System, e.flash)
	e.store = history.New(s.Limit, e.changed)
	e.mon = monitor.New(opts.System, monitor.NewSettings(s.SkipSensitive, s.Excluded))
	e.trusted.Store(opts.System.Trusted(false))
	e.flash.SetOnChange(e.flashed)
	e.saver.OnSave(e.saved)
	return e, nil
}

// Run loads the saved history, then polls the clipboard and serves
// operations until ctx is done. It returns nil on cancellation.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}
	defer close(e.done)
	defer e.flash.Stop()

	e.load()

	e.ticker = time.NewTicker(e.interval)
	defer e.ticker.Stop()

	e.log.Info("engine started",
		"backend", e.sys.Name(),
		"entries", e.store.Len(),
		"limit", e.store.Limit(),
		"interval", e.interval,
		"monitoring", e.monitoring,
	)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped")
			return nil
		case fn := <-e.ops:
			fn()
		case <-e.ticker.C:
			e.tick()
		}
	}
}

// load restores persisted history. A failed load leaves the store as it
// is; saves are suppressed while it runs.
func (e *Engine) load() {
	e.saver.SetLoading(true)
	defer e.saver.SetLoading(false)

	entries, err := e.saver.Load()
	if err != nil {
		e.log.Error("history load failed, keeping in-memory history", "err", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	e.store.Restore(entries)
	e.log.Info("history loaded", "entries", e.store.Len())
}

// tick is one monitor cycle plus the permission poll.
func (e *Engine) tick() {
	e.setTrusted(e.sys.Trusted(false))
	if !e.monitoring {
		return
	}

	r := e.mon.Check()
	switch r.Outcome {
	case monitor.Unchanged:
	case monitor.Captured:
		e.store.Insert(r.Entry)
		e.metrics.Captured(string(r.Entry.Kind))
		e.log.Debug("clipboard captured",
			"id", r.Entry.ID,
			"kind", r.Entry.Kind,
			"size_bytes", len(r.Entry.Text)+len(r.Entry.Data),
			"app", r.App.ID,
			"sensitive", r.Entry.Sensitive,
		)
	default:
		e.metrics.Skipped(string(r.Outcome))
	}
}

func (e *Engine) setTrusted(t bool) {
	if e.trusted.Swap(t) != t {
		e.log.Info("input permission changed", "trusted", t)
		e.hub.Publish(hub.Event{Type: hub.EventPermission, Value: t})
	}
}

// changed runs on the loop inside every store mutation. Emptiness is only
// persisted when the user asked for it: clearing, or deleting the last entry.
func (e *Engine) changed(c history.Change) {
	n := e.store.Len()
	e.metrics.SetEntries(n)
	explicit := c.Op == history.OpClear || (c.Op == history.OpDelete && n == 0)
	e.saver.Request(e.store.Entries(), explicit)
	e.hub.Publish(hub.Event{Type: hub.EventHistory, Op: string(c.Op), ID: c.ID})
}

func (e *Engine) saved(err error) {
	switch {
	case err == nil:
		e.metrics.Saved("ok")
	case errors.Is(err, persist.ErrEmptySave):
		e.metrics.Saved("refused")
	default:
		e.metrics.Saved("error")
	}
}

func (e *Engine) flashed(id string, active bool) {
	typ := hub.EventPasteCleared
	if active {
		typ = hub.EventPaste
	}
	e.hub.Publish(hub.Event{Type: typ, ID: id, Value: active})
}

// call runs fn on the loop and waits for it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case e.ops <- func() { fn(); close(finished) }:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetMonitoring starts or stops capturing. Content copied while monitoring
// was off is not captured on resume.
func (e *Engine) SetMonitoring(ctx context.Context, on bool) error {
	return e.call(ctx, func() {
		if e.monitoring == on {
			return
		}
		e.monitoring = on
		if on {
			e.mon.Resync()
		}
		e.log.Info("monitoring changed", "monitoring", on)
		e.hub.Publish(hub.Event{Type: hub.EventMonitoring, Value: on})
	})
}

// Entries returns the history in display order.
func (e *Engine) Entries(ctx context.Context) ([]history.Entry, error) {
	var out []history.Entry
	err := e.call(ctx, func() { out = e.store.Entries() })
	return out, err
}

// Get returns one entry.
func (e *Engine) Get(ctx context.Context, id string) (history.Entry, error) {
	var (
		entry history.Entry
		ok    bool
	)
	if err := e.call(ctx, func() { entry, ok = e.store.Get(id) }); err != nil {
		return history.Entry{}, err
	}
	if !ok {
		return history.Entry{}, fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	return entry, nil
}

// SetFavorite sets the favorite flag.
func (e *Engine) SetFavorite(ctx context.Context, id string, favorite bool) error {
	return e.mutate(ctx, id, func() bool { return e.store.SetFavorite(id, favorite) })
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (e *Engine) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var now bool
	err := e.mutate(ctx, id, func() bool {
		cur, ok := e.store.Get(id)
		if !ok {
			return false
		}
		now = !cur.Favorite
		return e.store.SetFavorite(id, now)
	})
	return now, err
}

// Delete removes an entry.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.mutate(ctx, id, func() bool { return e.store.Delete(id) })
}

// Rename sets the display title. An empty title restores the computed label.
func (e *Engine) Rename(ctx context.Context, id, title string) error {
	return e.mutate(ctx, id, func() bool { return e.store.Rename(id, title) })
}

// SetText replaces the text payload of a textual entry.
func (e *Engine) SetText(ctx context.Context, id, text string) error {
	var editable bool
	err := e.mutate(ctx, id, func() bool {
		cur, ok := e.store.Get(id)
		if !ok {
			return false
		}
		editable = cur.Kind.Textual() && text != ""
		if !editable {
			return true
		}
		return e.store.SetText(id, text)
	})
	if err == nil && !editable {
		return fmt.Errorf("%w: %s", ErrNotEditable, id)
	}
	return err
}

func (e *Engine) mutate(ctx context.Context, id string, fn func() bool) error {
	var ok bool
	if err := e.call(ctx, func() { ok = fn() }); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	return nil
}

// Clear removes every entry and persists the empty history. It returns the
// number of entries removed.
func (e *Engine) Clear(ctx context.Context) (int, error) {
	var n int
	err := e.call(ctx, func() {
		n = e.store.Clear()
		e.log.Info("history cleared", "removed", n)
	})
	return n, err
}

// PasteOption adjusts a single Paste call.
type PasteOption func(*pasteConfig)

type pasteConfig struct {
	after func(history.Entry, playback.Result)
}

// AfterPaste registers fn to run once the entry is on the clipboard and the
// shortcut has been posted (or skipped). fn runs on the caller's goroutine,
// off the engine loop, so it may call back into the engine.
func AfterPaste(fn func(history.Entry, playback.Result)) PasteOption {
	return func(c *pasteConfig) { c.after = fn }
}

// Paste writes the entry to the clipboard and posts the paste shortcut.
// pid > 0 targets that process. The write is not captured back as a new
// entry. A missing input permission is reported in the result, not as an
// error.
func (e *Engine) Paste(ctx context.Context, id string, pid int, opts ...PasteOption) (playback.Result, error) {
	var cfg pasteConfig
	for _, o := range opts {
		o(&cfg)
	}
	var (
		entry history.Entry
		res   playback.Result
		perr  error
		found bool
	)
	err := e.call(ctx, func() {
		entry, found = e.store.Get(id)
		if !found {
			return
		}
		e.mon.Expect(entry)
		res, perr = e.player.Paste(entry, pid)
		if perr != nil {
			e.mon.Forget()
			return
		}
		if errors.Is(res.Skipped, playback.ErrNotTrusted) {
			e.setTrusted(false)
		}
	})
	switch {
	case err != nil:
		return playback.Result{}, err
	case !found:
		return playback.Result{}, fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	case perr != nil:
		return playback.Result{}, perr
	}
	e.metrics.Pasted(res.Keystroke)
	if cfg.after != nil {
		cfg.after(entry, res)
	}
	return res, nil
}

// Trusted reports the last polled input permission state.
func (e *Engine) Trusted() bool { return e.trusted.Load() }

// RequestTrust asks the OS to show its input permission prompt where it has
// one, and returns the resulting state.
func (e *Engine) RequestTrust(ctx context.Context) (bool, error) {
	var t bool
	err := e.call(ctx, func() {
		t = e.sys.Trusted(true)
		e.setTrusted(t)
	})
	return t, err
}

// ApplySettings updates limit, exclusions, sensitivity handling, interval,
// and flash duration on the running engine.
func (e *Engine) ApplySettings(ctx context.Context, s Settings) error {
	if s.Limit <= 0 {
		return history.ErrInvalidLimit
	}
	var err error
	callErr := e.call(ctx, func() {
		if err = e.store.SetLimit(s.Limit); err != nil {
			return
		}
		e.mon.Apply(monitor.NewSettings(s.SkipSensitive, s.Excluded))
		if s.Interval > 0 && s.Interval != e.interval {
			e.interval = s.Interval
			e.ticker.Reset(s.Interval)
		}
		e.flash.SetDuration(s.Flash)
		e.log.Info("settings applied",
			"limit", s.Limit,
			"interval", e.interval,
			"skip_sensitive", s.SkipSensitive,
			"excluded", len(s.Excluded),
		)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Subscribe registers s for notifications and returns a function that
// unregisters it.
func (e *Engine) Subscribe(s hub.Subscriber) (unsubscribe func()) {
	e.hub.Register(s)
	return func() { e.hub.Unregister(s) }
}

// Status reports the engine state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var st Status
	err := e.call(ctx, func() {
		st = Status{
			Monitoring: e.monitoring,
			Trusted:    e.trusted.Load(),
			Entries:    e.store.Len(),
			Limit:      e.store.Limit(),
			Interval:   e.interval,
			Backend:    e.sys.Name(),
			Excluded:   e.Excluded(),
			Watchers:   e.hub.Len(),
		}
		st.PastedID, st.PasteActive = e.flash.Active()
	})
	return st, err
}

// Excluded returns the configured exclusion list, sorted.
func (e *Engine) Excluded() []string {
	ids := make([]string, 0)
	for id := range e.mon.Settings().Excluded {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
