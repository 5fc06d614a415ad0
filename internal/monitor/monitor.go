// Package monitor drives one capture cycle per clipboard change: exclusion
// check, privacy filter, classification. It does not own the history; the
// caller merges what Check returns.
package monitor

import (
	"log/slog"
	"sync/atomic"
	"time"

	"go.klb.dev/cliphist/internal/classify"
	"go.klb.dev/cliphist/internal/clip"
	"go.klb.dev/cliphist/internal/history"
	"go.klb.dev/cliphist/internal/privacy"
)

// DefaultInterval is how often the clipboard is checked. No supported
// platform pushes change notifications to a background process, so
// responsiveness is traded against wakeups here.
const DefaultInterval = 500 * time.Millisecond

// Source is what the monitor reads from.
type Source interface {
	ChangeCount() int64
	FrontApp() clip.App
	clip.Reader
}

// Settings are the user-controlled capture rules.
type Settings struct {
	SkipSensitive bool
	Excluded      map[string]struct{}
}

// NewSettings builds Settings from a list of excluded application ids.
func NewSettings(skipSensitive bool, excluded []string) Settings {
	s := Settings{SkipSensitive: skipSensitive, Excluded: make(map[string]struct{}, len(excluded))}
	for _, id := range excluded {
		if id != "" {
			s.Excluded[id] = struct{}{}
		}
	}
	return s
}

// Excludes reports whether captures from app are suppressed.
func (s Settings) Excludes(app clip.App) bool {
	if app.ID == "" {
		return false
	}
	_, ok := s.Excluded[app.ID]
	return ok
}

// Outcome says what a Check did.
type Outcome string

const (
	Unchanged   Outcome = "unchanged"
	Captured    Outcome = "captured"
	Excluded    Outcome = "excluded"
	Sensitive   Outcome = "sensitive"
	Unsupported Outcome = "unsupported"
	// Echo is the clipboard write made by our own paste coming back.
	Echo Outcome = "echo"
)

// Result is the outcome of one Check. Entry is set only when Captured.
type Result struct {
	Outcome Outcome
	Entry   history.Entry
	App     clip.App
	Marker  string
}

// Monitor remembers the last change count it saw.
type Monitor struct {
	src      Source
	now      func() time.Time
	last     int64
	expect   *history.Entry
	settings atomic.Pointer[Settings]
	log      *slog.Logger
}

// New returns a Monitor primed with the current change count, so content
// already on the clipboard at startup is not captured.
func New(src Source, settings Settings) *Monitor {
	m := &Monitor{
		src:  src,
		now:  time.Now,
		last: src.ChangeCount(),
		log:  slog.With("component", "monitor"),
	}
	m.settings.Store(&settings)
	return m
}

// SetClock replaces the capture timestamp source.
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

// Settings returns the active settings.
func (m *Monitor) Settings() Settings { return *m.settings.Load() }

// Apply swaps the settings. Safe to call from any goroutine.
func (m *Monitor) Apply(s Settings) { m.settings.Store(&s) }

// Resync adopts the current change count without capturing, used when
// monitoring resumes after a pause. A pending expectation is dropped since
// the change it was waiting for has been skipped.
func (m *Monitor) Resync() {
	m.last = m.src.ChangeCount()
	m.expect = nil
}

// Expect marks e as about to be written to the clipboard by playback. If the
// next change carries the same payload it is reported as Echo instead of
// being captured again.
func (m *Monitor) Expect(e history.Entry) { m.expect = &e }

// Forget drops a pending expectation, used when the write it announced
// never happened.
func (m *Monitor) Forget() { m.expect = nil }

// Check runs one cycle. The unchanged case is a single counter comparison.
// Check must only be called from one goroutine.
func (m *Monitor) Check() Result {
	cc := m.src.ChangeCount()
	if cc == m.last {
		return Result{Outcome: Unchanged}
	}
	m.last = cc
	expect := m.expect
	m.expect = nil

	app := m.src.FrontApp()
	settings := m.Settings()
	if settings.Excludes(app) {
		m.log.Debug("clipboard change from excluded app ignored", "app", app.ID)
		return Result{Outcome: Excluded, App: app}
	}

	snap := clip.Take(m.src, cc, app)
	marker, sensitive := privacy.Marker(snap.Types)
	if sensitive && settings.SkipSensitive {
		m.log.Debug("sensitive clipboard content skipped", "marker", marker, "app", app.ID)
		return Result{Outcome: Sensitive, App: app, Marker: marker}
	}

	entry, ok := classify.Classify(snap, m.now())
	if !ok {
		return Result{Outcome: Unsupported, App: app}
	}
	if expect != nil && entry.SamePayload(*expect) {
		return Result{Outcome: Echo, App: app}
	}
	entry.Sensitive = sensitive
	return Result{Outcome: Captured, Entry: entry, App: app, Marker: marker}
}
