package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/cliphist/internal/clip"
	"go.klb.dev/cliphist/internal/history"
	"go.klb.dev/cliphist/internal/hub"
	"go.klb.dev/cliphist/internal/metrics"
	"go.klb.dev/cliphist/internal/persist"
	"go.klb.dev/cliphist/internal/playback"
)

var (
	editor = clip.App{ID: "com.example.editor", Name: "Editor", PID: 11}
	vault  = clip.App{ID: "com.example.vault", Name: "Vault", PID: 12}
)

type saveRequest struct {
	n       int
	clear   bool
	loading bool
}

type fakeSaver struct {
	mu       sync.Mutex
	stored   []history.Entry
	loadErr  error
	loading  bool
	requests []saveRequest
}

func (f *fakeSaver) Load() ([]history.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.stored), f.loadErr
}

func (f *fakeSaver) Request(entries []history.Entry, clear bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, saveRequest{n: len(entries), clear: clear, loading: f.loading})
}

func (f *fakeSaver) SetLoading(loading bool) {
	f.mu.Lock()
	f.loading = loading
	f.mu.Unlock()
}

func (f *fakeSaver) OnSave(func(error)) {}

func (f *fakeSaver) last() saveRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return saveRequest{n: -1}
	}
	return f.requests[len(f.requests)-1]
}

type fixture struct {
	e     *Engine
	board *clip.Memory
	saver *fakeSaver
	m     *metrics.Metrics
}

func start(t *testing.T, saver *fakeSaver, settings Settings) fixture {
	t.Helper()
	board := clip.NewMemory()
	return startOn(t, board, board, saver, settings)
}

// startOn runs an engine on sys; board is the in-memory clipboard behind it.
func startOn(t *testing.T, sys clip.System, board *clip.Memory, saver *fakeSaver, settings Settings) fixture {
	t.Helper()
	if saver == nil {
		saver = &fakeSaver{}
	}
	m := metrics.New()
	settings.Interval = time.Hour
	e, err := New(Options{System: sys, Saver: saver, Settings: settings, Monitoring: true, Metrics: m})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errc)
	})
	return fixture{e: e, board: board, saver: saver, m: m}
}

func (f fixture) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, f.e.call(context.Background(), f.e.tick))
}

func (f fixture) copy(t *testing.T, app clip.App, text string) history.Entry {
	t.Helper()
	f.board.Set(app, nil, map[clip.Rep][]byte{clip.RepText: []byte(text)})
	f.tick(t)
	entries, err := f.e.Entries(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	return entries[0]
}

// counter sums every series of the named counter.
func counter(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, series := range mf.GetMetric() {
			sum += series.GetCounter().GetValue()
		}
	}
	return sum
}

// labeled returns the value of one series of the named counter.
func labeled(t *testing.T, m *metrics.Metrics, name, label, value string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, series := range mf.GetMetric() {
			for _, lp := range series.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return series.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// busyBoard fails the next write once.
type busyBoard struct {
	*clip.Memory
	mu   sync.Mutex
	fail bool
}

func (b *busyBoard) Write(items []clip.Item) error {
	b.mu.Lock()
	fail := b.fail
	b.fail = false
	b.mu.Unlock()
	if fail {
		return errors.New("pasteboard busy")
	}
	return b.Memory.Write(items)
}

func next(t *testing.T, c *hub.Channel, typ hub.EventType) hub.Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-c.C:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{System: clip.NewMemory(), Saver: &fakeSaver{}, Settings: Settings{Limit: 0}})
	assert.ErrorIs(t, err, history.ErrInvalidLimit)
}

func TestCapture_InsertsSavesAndNotifies(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	watch := hub.NewChannel("test", 16)
	defer f.e.Subscribe(watch)()

	e := f.copy(t, editor, "hello")
	assert.Equal(t, history.KindText, e.Kind)
	assert.Equal(t, "Editor", e.SourceApp)

	assert.Equal(t, saveRequest{n: 1}, f.saver.last())
	ev := next(t, watch, hub.EventHistory)
	assert.Equal(t, string(history.OpInsert), ev.Op)
	assert.Equal(t, e.ID, ev.ID)
	assert.Equal(t, 1.0, counter(t, f.m, "cliphist_captures_total"))
}

func TestCapture_RecopyBumpsInsteadOfDuplicating(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	first := f.copy(t, editor, "same")
	require.NoError(t, f.e.SetFavorite(context.Background(), first.ID, true))
	f.copy(t, editor, "other")
	second := f.copy(t, editor, "same")

	entries, err := f.e.Entries(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.True(t, second.Favorite)
	assert.False(t, second.CapturedAt.Before(first.CapturedAt))
}

func TestLoad_RestoresWithoutSaving(t *testing.T) {
	now := time.Now()
	saver := &fakeSaver{stored: []history.Entry{
		{ID: "a", Kind: history.KindText, Text: "old", CapturedAt: now.Add(-time.Hour)},
		{ID: "b", Kind: history.KindURL, Text: "https://go.dev", CapturedAt: now},
	}}
	f := start(t, saver, DefaultSettings())

	entries, err := f.e.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)

	saver.mu.Lock()
	defer saver.mu.Unlock()
	for _, r := range saver.requests {
		assert.True(t, r.loading, "no save may be requested outside loading during restore")
	}
	assert.False(t, saver.loading)
}

func TestLoad_FailureKeepsRunning(t *testing.T) {
	f := start(t, &fakeSaver{loadErr: persist.ErrCorrupt}, DefaultSettings())
	entries, err := f.e.Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)

	f.copy(t, editor, "still works")
}

func TestCapture_ExcludedApp(t *testing.T) {
	s := DefaultSettings()
	s.Excluded = []string{vault.ID}
	f := start(t, nil, s)

	f.board.Set(vault, nil, map[clip.Rep][]byte{clip.RepText: []byte("hunter2")})
	f.tick(t)

	entries, err := f.e.Entries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1.0, counter(t, f.m, "cliphist_skipped_total"))
}

func TestCapture_SensitiveSkipped(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	f.copy(t, editor, "visible")

	f.board.Set(editor,
		[]string{"public.utf8-plain-text", "de.petermaurer.TransientPasteboardType"},
		map[clip.Rep][]byte{clip.RepText: []byte("secret")})
	f.tick(t)

	entries, err := f.e.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "visible", entries[0].Text)
}

func TestOperations_UnknownEntry(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	ctx := context.Background()

	assert.ErrorIs(t, f.e.SetFavorite(ctx, "nope", true), ErrUnknownEntry)
	assert.ErrorIs(t, f.e.Delete(ctx, "nope"), ErrUnknownEntry)
	assert.ErrorIs(t, f.e.Rename(ctx, "nope", "x"), ErrUnknownEntry)
	assert.ErrorIs(t, f.e.SetText(ctx, "nope", "x"), ErrUnknownEntry)
	_, err := f.e.ToggleFavorite(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownEntry)
	_, err = f.e.Paste(ctx, "nope", 0)
	assert.ErrorIs(t, err, ErrUnknownEntry)
	_, err = f.e.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownEntry)
	assert.Equal(t, -1, f.saver.last().n, "no-ops must not request a save")
}

func TestOperations_EditRenameFavoriteDelete(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	ctx := context.Background()
	e := f.copy(t, editor, "draft")

	require.NoError(t, f.e.SetText(ctx, e.ID, "final"))
	require.NoError(t, f.e.Rename(ctx, e.ID, "note"))
	fav, err := f.e.ToggleFavorite(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, fav)

	got, err := f.e.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Text)
	assert.Equal(t, "note", got.Label())
	assert.True(t, got.Favorite)

	assert.ErrorIs(t, f.e.SetText(ctx, e.ID, ""), ErrNotEditable)

	require.NoError(t, f.e.Delete(ctx, e.ID))
	assert.Equal(t, saveRequest{n: 0, clear: true}, f.saver.last(), "deleting the last entry is an explicit empty")
}

func TestSetText_RejectsImage(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	f.board.Set(editor, nil, map[clip.Rep][]byte{clip.RepPNG: {0x89, 'P', 'N', 'G'}})
	f.tick(t)
	entries, err := f.e.Entries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.ErrorIs(t, f.e.SetText(context.Background(), entries[0].ID, "x"), ErrNotEditable)
}

func TestClear_RequestsExplicitEmptySave(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	f.copy(t, editor, "a")
	f.copy(t, editor, "b")

	n, err := f.e.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, saveRequest{n: 0, clear: true}, f.saver.last())
}

func TestPaste_WritesPostsAndIsNotRecaptured(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	ctx := context.Background()
	watch := hub.NewChannel("test", 16)
	defer f.e.Subscribe(watch)()

	old := f.copy(t, editor, "first")
	f.copy(t, editor, "second")

	res, err := f.e.Paste(ctx, old.ID, 99)
	require.NoError(t, err)
	assert.True(t, res.Keystroke)
	assert.Equal(t, []int{99}, f.board.Posted())

	text, err := f.board.Read(clip.RepText)
	require.NoError(t, err)
	assert.Equal(t, "first", string(text))

	ev := next(t, watch, hub.EventPaste)
	assert.Equal(t, old.ID, ev.ID)

	f.tick(t)
	entries, err := f.e.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Text, "own paste must not be captured as a new copy")

	st, err := f.e.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.PasteActive)
	assert.Equal(t, old.ID, st.PastedID)
	assert.Equal(t, 1.0, counter(t, f.m, "cliphist_pastes_total"))
}

func TestPaste_FailedWriteDoesNotSwallowRecopy(t *testing.T) {
	board := &busyBoard{Memory: clip.NewMemory()}
	f := startOn(t, board, board.Memory, nil, DefaultSettings())
	ctx := context.Background()

	hello := f.copy(t, editor, "hello")
	f.copy(t, editor, "world")

	board.mu.Lock()
	board.fail = true
	board.mu.Unlock()
	_, err := f.e.Paste(ctx, hello.ID, 0)
	require.Error(t, err)
	assert.Empty(t, board.Posted())

	top := f.copy(t, editor, "hello")
	assert.Equal(t, "hello", top.Text, "a genuine re-copy moves the entry to the top")
	entries, err := f.e.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 0.0, counter(t, f.m, "cliphist_pastes_total"))
}

func TestPaste_WhilePausedThenRecopy(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	ctx := context.Background()

	hello := f.copy(t, editor, "hello")
	f.copy(t, editor, "world")

	require.NoError(t, f.e.SetMonitoring(ctx, false))
	_, err := f.e.Paste(ctx, hello.ID, 0)
	require.NoError(t, err)
	require.NoError(t, f.e.SetMonitoring(ctx, true))

	top := f.copy(t, editor, "hello")
	assert.Equal(t, "hello", top.Text)
	entries, err := f.e.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPaste_AfterPasteHook(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	ctx := context.Background()
	e := f.copy(t, editor, "x")

	var (
		got     history.Entry
		gotRes  playback.Result
		entries []history.Entry
		calls   int
	)
	res, err := f.e.Paste(ctx, e.ID, 5, AfterPaste(func(entry history.Entry, r playback.Result) {
		calls++
		got, gotRes = entry, r
		// The hook runs off the loop and may call back into the engine.
		var lerr error
		entries, lerr = f.e.Entries(ctx)
		assert.NoError(t, lerr)
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, res, gotRes)
	assert.Len(t, entries, 1)

	_, err = f.e.Paste(ctx, "missing", 0, AfterPaste(func(history.Entry, playback.Result) { calls++ }))
	assert.ErrorIs(t, err, ErrUnknownEntry)
	assert.Equal(t, 1, calls, "hook does not run when nothing was pasted")
}

func TestPaste_WithoutPermission(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	ctx := context.Background()
	e := f.copy(t, editor, "x")
	watch := hub.NewChannel("test", 16)
	defer f.e.Subscribe(watch)()

	f.board.SetTrusted(false)
	res, err := f.e.Paste(ctx, e.ID, 0)
	require.NoError(t, err)
	assert.False(t, res.Keystroke)
	assert.ErrorIs(t, res.Skipped, playback.ErrNotTrusted)
	assert.False(t, f.e.Trusted())

	ev := next(t, watch, hub.EventPermission)
	assert.False(t, ev.Value)
}

func TestPermission_PolledEveryTick(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	assert.True(t, f.e.Trusted())

	f.board.SetTrusted(false)
	f.tick(t)
	assert.False(t, f.e.Trusted())

	f.board.SetTrusted(true)
	ok, err := f.e.RequestTrust(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, f.board.Prompts())
}

func TestMonitoring_PauseAndResume(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	ctx := context.Background()
	watch := hub.NewChannel("test", 16)
	defer f.e.Subscribe(watch)()

	require.NoError(t, f.e.SetMonitoring(ctx, false))
	assert.False(t, next(t, watch, hub.EventMonitoring).Value)

	f.board.Set(editor, nil, map[clip.Rep][]byte{clip.RepText: []byte("private")})
	f.tick(t)
	require.NoError(t, f.e.SetMonitoring(ctx, true))
	f.tick(t)

	entries, err := f.e.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "content copied while paused is not captured on resume")

	f.copy(t, editor, "public")
}

func TestApplySettings(t *testing.T) {
	f := start(t, nil, DefaultSettings())
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		f.copy(t, editor, s)
	}

	s := DefaultSettings()
	s.Limit = 2
	s.Interval = 2 * time.Hour
	s.Excluded = []string{vault.ID, editor.ID}
	require.NoError(t, f.e.ApplySettings(ctx, s))

	st, err := f.e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, 2, st.Limit)
	assert.Equal(t, 2*time.Hour, st.Interval)
	assert.Equal(t, []string{editor.ID, vault.ID}, st.Excluded)
	assert.True(t, st.Monitoring)
	assert.Equal(t, "memory", st.Backend)

	s.Limit = -1
	assert.ErrorIs(t, f.e.ApplySettings(ctx, s), history.ErrInvalidLimit)
}

func TestStopped(t *testing.T) {
	board := clip.NewMemory()
	e, err := New(Options{System: board, Saver: &fakeSaver{}, Settings: DefaultSettings()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()
	_, err = e.Entries(context.Background())
	require.NoError(t, err)
	cancel()
	require.NoError(t, <-errc)

	_, err = e.Entries(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Error(t, e.Run(context.Background()), "Run may only be called once")
}

func TestCall_RespectsContext(t *testing.T) {
	e, err := New(Options{System: clip.NewMemory(), Saver: &fakeSaver{}, Settings: DefaultSettings()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = e.Entries(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPersistence_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	board := clip.NewMemory()

	run := func(fn func(e *Engine)) {
		p := persist.New(dir, nil)
		e, err := New(Options{System: board, Saver: p, Settings: DefaultSettings(), Monitoring: true})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); _ = e.Run(ctx) }()
		go func() { defer wg.Done(); p.Run(ctx) }()
		fn(e)
		cancel()
		wg.Wait()
	}

	run(func(e *Engine) {
		board.Set(editor, nil, map[clip.Rep][]byte{clip.RepText: []byte("keep me")})
		require.NoError(t, e.call(context.Background(), e.tick))
		entries, err := e.Entries(context.Background())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.NoError(t, e.SetFavorite(context.Background(), entries[0].ID, true))
	})

	run(func(e *Engine) {
		entries, err := e.Entries(context.Background())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "keep me", entries[0].Text)
		assert.True(t, entries[0].Favorite)
	})
}

func TestPersistence_FailedSaveKeepsMemoryAndRetries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	// A file where the data directory belongs fails every write, even as root.
	require.NoError(t, os.WriteFile(dir, nil, 0o600))

	board := clip.NewMemory()
	p := persist.New(dir, nil)
	m := metrics.New()
	settings := DefaultSettings()
	settings.Interval = time.Hour
	e, err := New(Options{System: board, Saver: p, Settings: settings, Monitoring: true, Metrics: m})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = e.Run(ctx) }()
	go func() { defer wg.Done(); p.Run(ctx) }()
	defer func() { cancel(); wg.Wait() }()

	copyText := func(text string) {
		board.Set(editor, nil, map[clip.Rep][]byte{clip.RepText: []byte(text)})
		require.NoError(t, e.call(ctx, e.tick))
	}

	copyText("first")
	require.Eventually(t, func() bool {
		return labeled(t, m, "cliphist_saves_total", "result", "error") >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, labeled(t, m, "cliphist_saves_total", "result", "ok"))

	entries, err := e.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "first", entries[0].Text)

	require.NoError(t, os.Remove(dir))
	copyText("second")
	require.Eventually(t, func() bool {
		return labeled(t, m, "cliphist_saves_total", "result", "ok") >= 1
	}, 2*time.Second, 5*time.Millisecond)

	saved, err := persist.New(dir, nil).Load()
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "second", saved[0].Text)
}
