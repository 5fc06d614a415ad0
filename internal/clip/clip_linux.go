//go:build linux

package clip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	atotto "github.com/atotto/clipboard"
	"golang.design/x/clipboard"
)

const (
	linuxPollInterval = 250 * time.Millisecond
	toolTimeout       = 300 * time.Millisecond
)

// linuxMIME maps each Rep to its X11 / Wayland target name.
var linuxMIME = map[Rep]string{
	RepFileURL: "text/uri-list",
	RepPNG:     "image/png",
	RepTIFF:    "image/tiff",
	RepText:    "text/plain",
	RepRTF:     "text/rtf",
	RepHTML:    "text/html",
}

// linuxBackend polls the clipboard and turns content changes into a counter,
// since neither X11 selections nor Wayland expose one. Every external tool
// runs on the poll goroutine: a change is published only once its targets
// have been read into the cache, so Types and Read never start a process.
type linuxBackend struct {
	name    string
	targets targetLister // nil when no xclip / wl-paste is installed
	keys    *pasteTool   // nil when no xdotool / wtype is installed

	readText  func() []byte
	readImage func() []byte
	writeText func([]byte) error
	writePNG  func([]byte) error

	count atomic.Int64
	done  chan struct{}

	mu       sync.Mutex
	lastText []byte
	lastImg  []byte
	types    []string
	extra    map[Rep][]byte // targets other than text and PNG, for the current change
}

// targetLister enumerates and reads clipboard targets by MIME type.
type targetLister interface {
	list() ([]string, error)
	read(mime string) ([]byte, error)
}

// New returns the Linux clipboard backend. golang.design/x/clipboard is tried
// first; when it cannot reach a display, atotto/clipboard (which shells out
// to xclip, xsel, or wl-clipboard) serves text only. With neither available
// the in-memory board is returned. clipboard.Init is called here rather than
// in init() so CLI sub-commands never touch the display.
func New() System {
	b := &linuxBackend{
		keys: findPasteTool(),
		done: make(chan struct{}),
	}
	if t := findTargetTool(); t != nil {
		b.targets = t
	}
	switch {
	case clipboard.Init() == nil:
		b.name = "Linux clipboard (poll)"
		b.readText = func() []byte { return clipboard.Read(clipboard.FmtText) }
		b.readImage = func() []byte { return clipboard.Read(clipboard.FmtImage) }
		b.writeText = func(d []byte) error { clipboard.Write(clipboard.FmtText, d); return nil }
		b.writePNG = func(d []byte) error { clipboard.Write(clipboard.FmtImage, d); return nil }
	case !atotto.Unsupported:
		b.name = "Linux clipboard (text only)"
		b.readText = func() []byte {
			s, err := atotto.ReadAll()
			if err != nil {
				return nil
			}
			return []byte(s)
		}
		b.readImage = func() []byte { return nil }
		b.writeText = func(d []byte) error { return atotto.WriteAll(string(d)) }
		b.writePNG = func([]byte) error { return errors.New("image write unsupported without a display") }
	default:
		slog.Warn("clipboard unavailable, running headless")
		return NewMemory()
	}
	go b.poll()
	return b
}

func (b *linuxBackend) Name() string { return b.name }

func (b *linuxBackend) poll() {
	t := time.NewTicker(linuxPollInterval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			b.sample()
		}
	}
}

// sample reads the clipboard and, when it changed, refreshes the cache and
// bumps the counter.
func (b *linuxBackend) sample() {
	text := b.readText()
	img := b.readImage()
	b.mu.Lock()
	same := bytes.Equal(text, b.lastText) && bytes.Equal(img, b.lastImg)
	b.mu.Unlock()
	if same {
		return
	}

	types, extra := b.readTargets(text, img)
	b.mu.Lock()
	b.lastText, b.lastImg = text, img
	b.types, b.extra = types, extra
	b.mu.Unlock()
	b.count.Add(1)
}

// readTargets lists the offered targets and reads only those it knows,
// one tool run each.
func (b *linuxBackend) readTargets(text, img []byte) ([]string, map[Rep][]byte) {
	var types []string
	extra := make(map[Rep][]byte)
	if b.targets != nil {
		if listed, err := b.targets.list(); err == nil {
			types = listed
			for r, mime := range linuxMIME {
				if r == RepText || r == RepPNG || !slices.Contains(listed, mime) {
					continue
				}
				data, err := b.targets.read(mime)
				if err != nil {
					slog.Debug("clipboard target unreadable", "target", mime, "err", err)
					continue
				}
				if len(data) > 0 {
					extra[r] = data
				}
			}
			return types, extra
		}
	}
	if len(text) > 0 {
		types = append(types, linuxMIME[RepText])
	}
	if len(img) > 0 {
		types = append(types, linuxMIME[RepPNG])
	}
	return types, extra
}

func (b *linuxBackend) ChangeCount() int64 { return b.count.Load() }

func (b *linuxBackend) Types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.types)
}

func (b *linuxBackend) Read(r Rep) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch r {
	case RepText:
		return b.lastText, nil
	case RepPNG:
		return b.lastImg, nil
	}
	return b.extra[r], nil
}

func (b *linuxBackend) Write(items []Item) error {
	for _, it := range items {
		switch it.Rep {
		case RepText, RepURL, RepFileURL:
			return b.writeText(it.Data)
		case RepPNG:
			return b.writePNG(it.Data)
		}
	}
	return fmt.Errorf("no writable representation among %d items", len(items))
}

// FrontApp is unknown on Linux: neither X11 nor Wayland offers a portable
// focused-application query.
func (b *linuxBackend) FrontApp() App { return App{} }

func (b *linuxBackend) Close() { close(b.done) }

func (b *linuxBackend) Trusted(bool) bool { return b.keys != nil }

func (b *linuxBackend) PostPaste(pid int) error {
	if b.keys == nil {
		return errors.New("no xdotool or wtype on PATH")
	}
	return b.keys.post(pid)
}

// ── external tools ──────────────────────────────────────────────────────────

// targetTool enumerates and reads clipboard targets through xclip or wl-paste.
type targetTool struct {
	path    string
	listArg []string
	readArg func(mime string) []string
}

func findTargetTool() *targetTool {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if p, err := exec.LookPath("wl-paste"); err == nil {
			return &targetTool{
				path:    p,
				listArg: []string{"--list-types"},
				readArg: func(m string) []string { return []string{"--no-newline", "--type", m} },
			}
		}
	}
	if p, err := exec.LookPath("xclip"); err == nil {
		return &targetTool{
			path:    p,
			listArg: []string{"-selection", "clipboard", "-t", "TARGETS", "-o"},
			readArg: func(m string) []string { return []string{"-selection", "clipboard", "-t", m, "-o"} },
		}
	}
	return nil
}

func (t *targetTool) run(args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()
	return exec.CommandContext(ctx, t.path, args...).Output()
}

func (t *targetTool) list() ([]string, error) {
	out, err := t.run(t.listArg)
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(out)), nil
}

// read returns nil, nil when the target is not offered; both tools exit
// non-zero in that case.
func (t *targetTool) read(mime string) ([]byte, error) {
	out, err := t.run(t.readArg(mime))
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, nil
	}
	return out, err
}

// pasteTool posts ctrl+v through xdotool (X11) or wtype (Wayland).
type pasteTool struct {
	path string
	args func(pid int) []string
}

func findPasteTool() *pasteTool {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if p, err := exec.LookPath("wtype"); err == nil {
			return &pasteTool{path: p, args: func(int) []string {
				return []string{"-M", "ctrl", "v", "-m", "ctrl"}
			}}
		}
	}
	if p, err := exec.LookPath("xdotool"); err == nil {
		return &pasteTool{path: p, args: func(pid int) []string {
			if pid > 0 {
				return []string{"search", "--onlyvisible", "--pid", strconv.Itoa(pid),
					"windowactivate", "--sync", "key", "--clearmodifiers", "ctrl+v"}
			}
			return []string{"key", "--clearmodifiers", "ctrl+v"}
		}}
	}
	return nil
}

// post starts the tool and does not wait for it.
func (p *pasteTool) post(pid int) error {
	cmd := exec.Command(p.path, p.args(pid)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.path, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
