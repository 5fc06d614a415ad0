package clip

import (
	"maps"
	"slices"
	"sync"
)

// Memory is an in-process clipboard. It backs headless builds and tests:
// Set simulates another application copying, Write is what playback does.
// Keystrokes are recorded instead of posted.
type Memory struct {
	mu       sync.Mutex
	count    int64
	types    []string
	reps     map[Rep][]byte
	failures map[Rep]error
	app      App
	trusted  bool
	prompted int
	posted   []int
}

// NewMemory returns an empty in-memory board that reports input permission
// as granted.
func NewMemory() *Memory {
	return &Memory{
		reps:     make(map[Rep][]byte),
		failures: make(map[Rep]error),
		trusted:  true,
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) ChangeCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *Memory) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.types)
}

func (m *Memory) Read(r Rep) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[r]; err != nil {
		return nil, err
	}
	return slices.Clone(m.reps[r]), nil
}

func (m *Memory) Write(items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reps = make(map[Rep][]byte, len(items))
	m.types = m.types[:0]
	for _, it := range items {
		m.reps[it.Rep] = slices.Clone(it.Data)
		m.types = append(m.types, string(it.Rep))
	}
	m.count++
	return nil
}

func (m *Memory) FrontApp() App {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.app
}

func (m *Memory) Close() {}

// Set replaces the clipboard contents as if app had copied them. types are
// the raw advertised type identifiers, including any marker types; when nil
// the rep names are used.
func (m *Memory) Set(app App, types []string, reps map[Rep][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.app = app
	m.reps = maps.Clone(reps)
	if m.reps == nil {
		m.reps = make(map[Rep][]byte)
	}
	if types == nil {
		for r := range reps {
			types = append(types, string(r))
		}
		slices.Sort(types)
	}
	m.types = slices.Clone(types)
	m.count++
}

// SetFrontApp changes the focused application without touching the board.
func (m *Memory) SetFrontApp(app App) {
	m.mu.Lock()
	m.app = app
	m.mu.Unlock()
}

// FailRead makes reads of r fail with err until cleared with a nil err.
func (m *Memory) FailRead(r Rep, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, r)
		return
	}
	m.failures[r] = err
}

// SetTrusted controls what Trusted reports.
func (m *Memory) SetTrusted(trusted bool) {
	m.mu.Lock()
	m.trusted = trusted
	m.mu.Unlock()
}

func (m *Memory) Trusted(prompt bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prompt {
		m.prompted++
	}
	return m.trusted
}

func (m *Memory) PostPaste(pid int) error {
	m.mu.Lock()
	m.posted = append(m.posted, pid)
	m.mu.Unlock()
	return nil
}

// Posted returns the pid of every PostPaste call so far.
func (m *Memory) Posted() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.posted)
}

// Prompts returns how many times a permission prompt was requested.
func (m *Memory) Prompts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompted
}
