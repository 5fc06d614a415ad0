package history

import (
	"errors"
	"slices"
	"sort"
)

// DefaultLimit is the history size used when none is configured.
const DefaultLimit = 200

// ErrInvalidLimit is returned when a non-positive history limit is requested.
var ErrInvalidLimit = errors.New("history: limit must be positive")

// Op names the mutation reported in a Change.
type Op string

const (
	OpInsert   Op = "insert"
	OpFavorite Op = "favorite"
	OpDelete   Op = "delete"
	OpRename   Op = "rename"
	OpEdit     Op = "edit"
	OpLimit    Op = "limit"
	OpClear    Op = "clear"
	OpRestore  Op = "restore"
)

// Change describes one store mutation.
type Change struct {
	Op Op
	ID string // empty for whole-store operations
}

// Store is the ordered, bounded, deduplicated history.
//
// Store is not safe for concurrent use. The engine owns it from a single
// goroutine and hands out copies via Entries.
type Store struct {
	entries  []Entry
	limit    int
	onChange func(Change)
}

// New returns an empty store bounded by limit. onChange may be nil.
func New(limit int, onChange func(Change)) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{limit: limit, onChange: onChange}
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.entries) }

// Limit returns the current history limit.
func (s *Store) Limit() int { return s.limit }

// Entries returns a copy of the entries in display order.
func (s *Store) Entries() []Entry { return slices.Clone(s.entries) }

// Get returns the entry with the given id.
func (s *Store) Get(id string) (Entry, bool) {
	if i := s.index(id); i >= 0 {
		return s.entries[i], true
	}
	return Entry{}, false
}

// Insert merges a freshly captured entry into the store. An existing entry
// with the same kind and payload is replaced, carrying its favorite flag and
// title forward, so re-copying bumps content instead of duplicating it.
func (s *Store) Insert(e Entry) {
	if i := slices.IndexFunc(s.entries, e.SamePayload); i >= 0 {
		old := s.entries[i]
		e.Favorite = old.Favorite
		if e.Title == "" {
			e.Title = old.Title
		}
		s.entries = slices.Delete(s.entries, i, i+1)
	}
	s.entries = slices.Insert(s.entries, 0, e)
	s.sort()
	s.trim()
	s.changed(Change{Op: OpInsert, ID: e.ID})
}

// SetFavorite sets the favorite flag and re-sorts. No-op for unknown ids.
func (s *Store) SetFavorite(id string, favorite bool) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.entries[i].Favorite = favorite
	s.sort()
	s.changed(Change{Op: OpFavorite, ID: id})
	return true
}

// Delete removes an entry. No-op for unknown ids.
func (s *Store) Delete(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	s.changed(Change{Op: OpDelete, ID: id})
	return true
}

// Rename sets the display title override. An empty title restores the
// computed label. No-op for unknown ids.
func (s *Store) Rename(id, title string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.entries[i].Title = title
	s.changed(Change{Op: OpRename, ID: id})
	return true
}

// SetText overwrites the payload of a textual entry in place, keeping its
// identity. The styled representation no longer matches and is dropped.
// Image entries and empty text are rejected.
func (s *Store) SetText(id, text string) bool {
	i := s.index(id)
	if i < 0 || text == "" || !s.entries[i].Kind.Textual() {
		return false
	}
	s.entries[i].Text = text
	s.entries[i].Styled = nil
	s.entries[i].StyledType = ""
	s.changed(Change{Op: OpEdit, ID: id})
	return true
}

// SetLimit changes the history limit and evicts overflow immediately.
func (s *Store) SetLimit(limit int) error {
	if limit <= 0 {
		return ErrInvalidLimit
	}
	if limit == s.limit {
		return nil
	}
	s.limit = limit
	if len(s.entries) > limit {
		s.trim()
		s.changed(Change{Op: OpLimit})
	}
	return nil
}

// Clear removes every entry. It returns how many were removed.
func (s *Store) Clear() int {
	n := len(s.entries)
	s.entries = nil
	s.changed(Change{Op: OpClear})
	return n
}

// Restore replaces the contents with entries reconstructed from storage.
// Invalid entries and duplicate ids are dropped; order and limit are enforced.
func (s *Store) Restore(entries []Entry) {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Validate() != nil {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	s.entries = out
	s.sort()
	s.trim()
	s.changed(Change{Op: OpRestore})
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.entries, func(e Entry) bool { return e.ID == id })
}

func (s *Store) sort() {
	sort.SliceStable(s.entries, func(i, j int) bool { return before(s.entries[i], s.entries[j]) })
}

// trim drops from the tail, which the sort order makes the oldest
// non-favorite unless only favorites remain.
func (s *Store) trim() {
	if len(s.entries) > s.limit {
		clear(s.entries[s.limit:])
		s.entries = s.entries[:s.limit]
	}
}

func (s *Store) changed(c Change) {
	if s.onChange != nil {
		s.onChange(c)
	}
}
