// Package persist saves and restores the clipboard history as a JSON document.
//
// Saves are atomic (temp file + rename), copy the previous document to a
// backup first, and are refused when the history is empty unless the caller
// is an explicit clear. Loads never touch the in-memory history on failure;
// the caller decides what to do with the error.
package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.klb.dev/cliphist/internal/crypto"
	"go.klb.dev/cliphist/internal/history"
)

const (
	FileName   = "history.json"
	backupExt  = ".bak"
	corruptExt = ".corrupt"
)

var (
	// ErrEmptySave is returned when a non-clear save carries no entries.
	ErrEmptySave = errors.New("persist: refusing to save empty history")
	// ErrCorrupt is returned when neither the document nor its backup can be decoded.
	ErrCorrupt = errors.New("persist: history document is corrupt")
)

type request struct {
	entries []history.Entry
	clear   bool
}

// Persister owns the history document in one directory.
type Persister struct {
	path   string
	backup string
	box    *crypto.Box // nil = plain JSON
	log    *slog.Logger

	loading atomic.Bool
	onSave  atomic.Pointer[func(error)]

	writeMu sync.Mutex
	corrupt bool // primary failed to decode at load; guarded by writeMu

	mu      sync.Mutex
	pending *request
	wake    chan struct{}
}

// New returns a Persister for dir/history.json. box may be nil.
func New(dir string, box *crypto.Box) *Persister {
	path := filepath.Join(dir, FileName)
	return &Persister{
		path:   path,
		backup: path + backupExt,
		box:    box,
		log:    slog.With("component", "persist"),
		wake:   make(chan struct{}, 1),
	}
}

// Path returns the primary document path.
func (p *Persister) Path() string { return p.path }

// BackupPath returns the backup document path.
func (p *Persister) BackupPath() string { return p.backup }

// OnSave registers a callback invoked after every background save attempt.
func (p *Persister) OnSave(fn func(error)) { p.onSave.Store(&fn) }

// SetLoading marks a load as in progress. Save requests made meanwhile are
// dropped so a partially restored history is never written.
func (p *Persister) SetLoading(loading bool) { p.loading.Store(loading) }

// Request schedules an asynchronous save of entries. Requests that arrive
// before the writer gets to them coalesce; only the newest is written.
// entries must not be mutated by the caller afterwards.
func (p *Persister) Request(entries []history.Entry, clear bool) {
	if p.loading.Load() {
		p.log.Debug("save skipped during load")
		return
	}
	p.mu.Lock()
	if p.pending != nil && p.pending.clear && len(entries) == 0 {
		clear = true
	}
	p.pending = &request{entries: entries, clear: clear}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run writes requested saves until ctx is done, then flushes whatever is
// still pending. Call in a goroutine.
func (p *Persister) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case <-p.wake:
			p.flush()
		}
	}
}

func (p *Persister) flush() {
	p.mu.Lock()
	req := p.pending
	p.pending = nil
	p.mu.Unlock()
	if req == nil {
		return
	}

	err := p.Save(req.entries, req.clear)
	switch {
	case errors.Is(err, ErrEmptySave):
		p.log.Warn("refusing to persist empty history outside of clear")
	case err != nil:
		p.log.Error("history save failed", "err", err)
	default:
		p.log.Debug("history saved", "entries", len(req.entries), "path", p.path)
	}
	if fn := p.onSave.Load(); fn != nil {
		(*fn)(err)
	}
}

// Save writes entries synchronously. An empty save is refused unless clear
// is set. Each call writes a complete document; concurrent calls serialize.
func (p *Persister) Save(entries []history.Entry, clear bool) error {
	if len(entries) == 0 && !clear {
		return ErrEmptySave
	}
	data, err := encode(entries)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if p.box != nil {
		if data, err = p.box.Seal(data); err != nil {
			return fmt.Errorf("seal: %w", err)
		}
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	if p.corrupt {
		// Keep the undecodable document for inspection and leave the backup,
		// which may be the last good copy, alone.
		if err := os.Rename(p.path, p.path+corruptExt); err != nil && !os.IsNotExist(err) {
			p.log.Warn("could not set corrupt history aside", "err", err)
		}
	} else if err := copyFile(p.path, p.backup); err != nil && !os.IsNotExist(err) {
		p.log.Warn("history backup failed", "err", err)
	}

	if err := writeAtomic(p.path, data); err != nil {
		return err
	}
	p.corrupt = false
	return nil
}

// Load reads the document, falling back to the backup when the primary is
// missing or unreadable. It returns nil, nil on first run.
func (p *Persister) Load() ([]history.Entry, error) {
	entries, err := p.read(p.path)
	if err == nil {
		return entries, nil
	}
	primaryMissing := os.IsNotExist(err)
	if !primaryMissing {
		p.log.Warn("history document unreadable, trying backup", "path", p.path, "err", err)
		if errors.Is(err, ErrCorrupt) {
			p.writeMu.Lock()
			p.corrupt = true
			p.writeMu.Unlock()
		}
	}

	backup, berr := p.read(p.backup)
	switch {
	case berr == nil:
		p.log.Warn("history restored from backup", "path", p.backup, "entries", len(backup))
		return backup, nil
	case primaryMissing && os.IsNotExist(berr):
		return nil, nil
	case primaryMissing:
		return nil, berr
	}
	return nil, err
}

func (p *Persister) read(path string) ([]history.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if crypto.Sealed(data) {
		if p.box == nil {
			return nil, fmt.Errorf("%w: %s is encrypted and no history key is set", ErrCorrupt, path)
		}
		if data, err = p.box.Open(data); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}
	entries, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return entries, nil
}

// writeAtomic writes data to a temp file in the target directory, syncs it,
// and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("finalize history: %w", err)
	}
	return nil
}

// copyFile copies src over dst atomically.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	return writeAtomic(dst, data)
}
