package rpc

import (
	"fmt"
	"time"

	"go.klb.dev/cliphist/internal/engine"
	"go.klb.dev/cliphist/internal/history"
	"go.klb.dev/cliphist/internal/hub"
)

// Entry is a history entry on the wire. Payload fields are only filled when
// asked for.
type Entry struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Label      string    `json:"label"`
	Text       string    `json:"text,omitempty"`
	Data       []byte    `json:"data,omitempty"`
	Size       int       `json:"size"`
	CapturedAt time.Time `json:"captured_at"`
	SourceApp  string    `json:"source_app,omitempty"`
	Favorite   bool      `json:"favorite,omitempty"`
	Sensitive  bool      `json:"sensitive,omitempty"`
	Title      string    `json:"title,omitempty"`
}

type ListRequest struct {
	// Payload includes Text and Data in the response.
	Payload   bool   `json:"payload,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Favorites bool   `json:"favorites,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type ListResponse struct {
	Entries []Entry `json:"entries"`
}

type GetRequest struct {
	ID string `json:"id"`
}

type FavoriteRequest struct {
	ID string `json:"id"`
	// Favorite sets the flag; nil toggles it.
	Favorite *bool `json:"favorite,omitempty"`
}

type FavoriteResponse struct {
	Favorite bool `json:"favorite"`
}

type DeleteRequest struct {
	ID string `json:"id"`
}

type RenameRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type EditRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type ClearRequest struct{}

type ClearResponse struct {
	Removed int `json:"removed"`
}

type PasteRequest struct {
	ID  string `json:"id"`
	PID int    `json:"pid,omitempty"`
}

type PasteResponse struct {
	Keystroke bool   `json:"keystroke"`
	Skipped   string `json:"skipped,omitempty"`
}

type MonitoringRequest struct {
	Enabled bool `json:"enabled"`
}

type StatusRequest struct{}

type StatusResponse struct {
	Monitoring  bool          `json:"monitoring"`
	Trusted     bool          `json:"trusted"`
	Entries     int           `json:"entries"`
	Limit       int           `json:"limit"`
	Interval    time.Duration `json:"interval"`
	Backend     string        `json:"backend"`
	Excluded    []string      `json:"excluded,omitempty"`
	Watchers    int           `json:"watchers"`
	PasteActive bool          `json:"paste_active"`
	PastedID    string        `json:"pasted_id,omitempty"`
}

type PermissionRequest struct {
	// Prompt asks the OS to show its permission dialog.
	Prompt bool `json:"prompt,omitempty"`
}

type PermissionResponse struct {
	Trusted bool `json:"trusted"`
}

type WatchRequest struct {
	// Types limits the stream to these event types; empty means all.
	Types []string `json:"types,omitempty"`
}

type Event struct {
	Type  string    `json:"type"`
	Op    string    `json:"op,omitempty"`
	ID    string    `json:"id,omitempty"`
	Value bool      `json:"value,omitempty"`
	At    time.Time `json:"at"`
}

type Empty struct{}

// maskedLabel stands in for the computed label of a sensitive entry, which
// would otherwise show the start of the secret.
func maskedLabel(e history.Entry) string {
	return fmt.Sprintf("•••••••• (%d chars)", len([]rune(e.Text)))
}

func toEntry(e history.Entry, payload bool) Entry {
	out := Entry{
		ID:         e.ID,
		Kind:       string(e.Kind),
		Label:      e.Label(),
		Size:       len(e.Text) + len(e.Data),
		CapturedAt: e.CapturedAt,
		SourceApp:  e.SourceApp,
		Favorite:   e.Favorite,
		Sensitive:  e.Sensitive,
		Title:      e.Title,
	}
	if e.Sensitive && e.Title == "" && e.Kind.Textual() {
		out.Label = maskedLabel(e)
	}
	if payload {
		out.Text, out.Data = e.Text, e.Data
	}
	return out
}

func toStatus(st engine.Status) *StatusResponse {
	return &StatusResponse{
		Monitoring:  st.Monitoring,
		Trusted:     st.Trusted,
		Entries:     st.Entries,
		Limit:       st.Limit,
		Interval:    st.Interval,
		Backend:     st.Backend,
		Excluded:    st.Excluded,
		Watchers:    st.Watchers,
		PasteActive: st.PasteActive,
		PastedID:    st.PastedID,
	}
}

func toEvent(ev hub.Event) *Event {
	return &Event{Type: string(ev.Type), Op: ev.Op, ID: ev.ID, Value: ev.Value, At: ev.At}
}
