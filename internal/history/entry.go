// Package history holds the in-memory clipboard history: the Entry model and
// the Store that enforces dedup, ordering, and capacity rules.
//
// The Store knows nothing about disk. Every mutation is reported through the
// Change callback so the caller can schedule persistence.
package history

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Kind is the classified content type of an entry. Exactly one per entry.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
	KindURL   Kind = "url"
	KindColor Kind = "color"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile, KindURL, KindColor:
		return true
	}
	return false
}

// Textual reports whether entries of this kind carry their payload in Text.
func (k Kind) Textual() bool { return k != KindImage }

// Entry is one historical clipboard capture.
//
// Textual kinds carry Text; images carry Data. Text entries may additionally
// carry Styled (rich text bytes) tagged with StyledType, used only for
// formatting-preserving paste-back.
type Entry struct {
	ID         string
	Kind       Kind
	Text       string
	Data       []byte
	Styled     []byte
	StyledType string
	CapturedAt time.Time
	SourceApp  string
	Favorite   bool
	Sensitive  bool
	Title      string
}

// NewID returns a fresh process-unique entry identifier.
func NewID() string { return uuid.NewString() }

// SamePayload reports whether e and o hold identical content of the same kind.
// The styled blob does not take part: it is a rendering of the same text.
func (e Entry) SamePayload(o Entry) bool {
	return e.Kind == o.Kind && e.Text == o.Text && bytes.Equal(e.Data, o.Data)
}

// Validate checks that exactly the payload field matching Kind is populated.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry: missing id")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("entry %s: unknown kind %q", e.ID, e.Kind)
	}
	if e.Kind.Textual() {
		if e.Text == "" || len(e.Data) > 0 {
			return fmt.Errorf("entry %s: %s entry must carry text only", e.ID, e.Kind)
		}
		return nil
	}
	if len(e.Data) == 0 || e.Text != "" || len(e.Styled) > 0 {
		return fmt.Errorf("entry %s: image entry must carry data only", e.ID)
	}
	return nil
}

const maxLabelRunes = 80

// Label returns the user's title override, or a label computed from the payload.
func (e Entry) Label() string {
	if e.Title != "" {
		return e.Title
	}
	switch e.Kind {
	case KindImage:
		return fmt.Sprintf("Image (%d KB)", (len(e.Data)+1023)/1024)
	case KindFile:
		return filepath.Base(e.Text)
	}
	line := strings.TrimSpace(e.Text)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if utf8.RuneCountInString(line) > maxLabelRunes {
		r := []rune(line)
		line = string(r[:maxLabelRunes]) + "…"
	}
	return line
}

// before reports whether a sorts ahead of b: favorites first, then newest first.
func before(a, b Entry) bool {
	if a.Favorite != b.Favorite {
		return a.Favorite
	}
	return a.CapturedAt.After(b.CapturedAt)
}
