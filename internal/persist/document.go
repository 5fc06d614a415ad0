package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.klb.dev/cliphist/internal/history"
)

const documentVersion = 1

// document is the on-disk form. Older documents are a bare array of records
// (version 0); fields they lack decode to their zero values.
type document struct {
	Version int      `json:"version"`
	Entries []record `json:"entries"`
}

// record field names are part of the on-disk format; do not rename.
// Binary payloads are base64 via encoding/json's []byte handling.
type record struct {
	ID         string       `json:"id"`
	Kind       history.Kind `json:"kind"`
	Text       string       `json:"text,omitempty"`
	Data       []byte       `json:"data,omitempty"`
	Styled     []byte       `json:"styled,omitempty"`
	StyledType string       `json:"styled_type,omitempty"`
	CapturedAt time.Time    `json:"captured_at"`
	SourceApp  string       `json:"source_app,omitempty"`
	Favorite   bool         `json:"favorite,omitempty"`
	Sensitive  bool         `json:"sensitive,omitempty"`
	Title      string       `json:"title,omitempty"`
}

func encode(entries []history.Entry) ([]byte, error) {
	doc := document{Version: documentVersion, Entries: make([]record, len(entries))}
	for i, e := range entries {
		doc.Entries[i] = record{
			ID:         e.ID,
			Kind:       e.Kind,
			Text:       e.Text,
			Data:       e.Data,
			Styled:     e.Styled,
			StyledType: e.StyledType,
			CapturedAt: e.CapturedAt,
			SourceApp:  e.SourceApp,
			Favorite:   e.Favorite,
			Sensitive:  e.Sensitive,
			Title:      e.Title,
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

func decode(data []byte) ([]history.Entry, error) {
	var doc document
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		if err := json.Unmarshal(trimmed, &doc.Entries); err != nil {
			return nil, fmt.Errorf("decode legacy document: %w", err)
		}
	} else if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Version > documentVersion {
		return nil, fmt.Errorf("document version %d is newer than supported %d", doc.Version, documentVersion)
	}
	out := make([]history.Entry, 0, len(doc.Entries))
	for _, r := range doc.Entries {
		out = append(out, history.Entry{
			ID:         r.ID,
			Kind:       r.Kind,
			Text:       r.Text,
			Data:       r.Data,
			Styled:     r.Styled,
			StyledType: r.StyledType,
			CapturedAt: r.CapturedAt,
			SourceApp:  r.SourceApp,
			Favorite:   r.Favorite,
			Sensitive:  r.Sensitive,
			Title:      r.Title,
		})
	}
	return out, nil
}
