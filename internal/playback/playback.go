// Package playback writes a history entry back to the system clipboard and
// posts the platform paste shortcut so it lands in the focused application.
package playback

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"go.klb.dev/cliphist/internal/clip"
	"go.klb.dev/cliphist/internal/history"
)

// ErrNotTrusted reports that synthetic input was skipped because the OS has
// not granted the input permission. It is carried in Result, never returned.
var ErrNotTrusted = errors.New("playback: input permission not granted")

var (
	pngMagic    = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	tiffMagicLE = []byte{'I', 'I', 0x2a, 0}
	tiffMagicBE = []byte{'M', 'M', 0, 0x2a}
)

// Result describes what a paste did beyond the clipboard write.
type Result struct {
	// Keystroke is true when the paste shortcut was posted.
	Keystroke bool
	// Skipped holds why it was not, ErrNotTrusted or a post failure.
	Skipped error
}

// Player replays entries. It holds no history state.
type Player struct {
	sys   clip.System
	flash *Indicator
	log   *slog.Logger
}

// New returns a Player writing to sys. flash may be nil.
func New(sys clip.System, flash *Indicator) *Player {
	return &Player{sys: sys, flash: flash, log: slog.With("component", "playback")}
}

// Paste clears the clipboard, writes the representations for e, then posts
// modifier+V. pid > 0 targets that process where the platform supports it.
//
// Only a failed clipboard write is an error. A missing input permission or a
// failed keystroke leaves the content on the clipboard for a manual paste.
// Paste does not wait for focus to settle.
func (p *Player) Paste(e history.Entry, pid int) (Result, error) {
	items, err := Items(e)
	if err != nil {
		return Result{}, err
	}
	if err := p.sys.Write(items); err != nil {
		return Result{}, fmt.Errorf("write clipboard: %w", err)
	}
	if p.flash != nil {
		p.flash.Flash(e.ID)
	}

	if !p.sys.Trusted(false) {
		p.log.Info("paste keystroke skipped, input permission missing", "id", e.ID)
		return Result{Skipped: ErrNotTrusted}, nil
	}
	if err := p.sys.PostPaste(pid); err != nil {
		p.log.Warn("paste keystroke failed", "id", e.ID, "err", err)
		return Result{Skipped: err}, nil
	}
	p.log.Debug("pasted", "id", e.ID, "kind", e.Kind, "pid", pid)
	return Result{Keystroke: true}, nil
}

// Items returns the clipboard representations for e, primary first.
// Backends that hold a single representation keep the first they support.
func Items(e history.Entry) ([]clip.Item, error) {
	switch e.Kind {
	case history.KindText:
		items := []clip.Item{{Rep: clip.RepText, Data: []byte(e.Text)}}
		if len(e.Styled) > 0 && e.StyledType != "" {
			items = append(items, clip.Item{Rep: clip.Rep(e.StyledType), Data: e.Styled})
		}
		return items, nil
	case history.KindURL:
		return []clip.Item{
			{Rep: clip.RepURL, Data: []byte(e.Text)},
			{Rep: clip.RepText, Data: []byte(e.Text)},
		}, nil
	case history.KindFile:
		u := url.URL{Scheme: "file", Path: e.Text}
		return []clip.Item{
			{Rep: clip.RepFileURL, Data: []byte(u.String())},
			{Rep: clip.RepText, Data: []byte(e.Text)},
		}, nil
	case history.KindColor:
		return []clip.Item{{Rep: clip.RepText, Data: []byte(e.Text)}}, nil
	case history.KindImage:
		return []clip.Item{{Rep: imageRep(e.Data), Data: e.Data}}, nil
	}
	return nil, fmt.Errorf("playback: entry %s has unknown kind %q", e.ID, e.Kind)
}

// imageRep picks the representation matching the stored bytes, which are
// kept exactly as captured.
func imageRep(data []byte) clip.Rep {
	if bytes.HasPrefix(data, tiffMagicLE) || bytes.HasPrefix(data, tiffMagicBE) {
		return clip.RepTIFF
	}
	if !bytes.HasPrefix(data, pngMagic) {
		slog.Debug("unrecognized image signature, writing as png", "size_bytes", len(data))
	}
	return clip.RepPNG
}
