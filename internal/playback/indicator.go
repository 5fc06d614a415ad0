package playback

import (
	"sync"
	"time"
)

// DefaultFlash is how long the paste indicator stays raised.
const DefaultFlash = 1500 * time.Millisecond

// Indicator is a transient "paste performed" signal. Flash raises it and a
// timer lowers it again; a new flash restarts the timer.
type Indicator struct {
	mu       sync.Mutex
	duration time.Duration
	active   string // id of the pasted entry, empty when lowered
	timer    *time.Timer
	gen      uint64
	onChange func(id string, active bool)
}

// NewIndicator returns an Indicator that self-clears after d.
func NewIndicator(d time.Duration) *Indicator {
	if d <= 0 {
		d = DefaultFlash
	}
	return &Indicator{duration: d}
}

// SetOnChange registers a callback for raise and lower transitions. It runs
// without the indicator's lock held.
func (in *Indicator) SetOnChange(fn func(id string, active bool)) {
	in.mu.Lock()
	in.onChange = fn
	in.mu.Unlock()
}

// SetDuration changes how long future flashes last.
func (in *Indicator) SetDuration(d time.Duration) {
	if d <= 0 {
		return
	}
	in.mu.Lock()
	in.duration = d
	in.mu.Unlock()
}

// Flash raises the indicator for id.
func (in *Indicator) Flash(id string) {
	in.mu.Lock()
	if in.timer != nil {
		in.timer.Stop()
	}
	in.gen++
	gen := in.gen
	in.active = id
	in.timer = time.AfterFunc(in.duration, func() { in.lower(gen) })
	cb := in.onChange
	in.mu.Unlock()
	if cb != nil {
		cb(id, true)
	}
}

// Active returns the id of the entry last pasted while the indicator is up.
func (in *Indicator) Active() (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.active, in.active != ""
}

// Stop lowers the indicator immediately without notifying.
func (in *Indicator) Stop() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
	in.gen++
	in.active = ""
}

func (in *Indicator) lower(gen uint64) {
	in.mu.Lock()
	// A later flash owns the indicator now.
	if gen != in.gen || in.active == "" {
		in.mu.Unlock()
		return
	}
	id := in.active
	in.active = ""
	in.timer = nil
	cb := in.onChange
	in.mu.Unlock()
	if cb != nil {
		cb(id, false)
	}
}
