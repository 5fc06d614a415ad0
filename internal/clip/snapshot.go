package clip

import (
	"fmt"
	"log/slog"
	"slices"
)

// Snapshot is an immutable copy of every readable representation at one
// instant. All classification reads use the snapshot, never the live board.
type Snapshot struct {
	ChangeCount int64
	App         App
	Types       []string
	Reps        map[Rep][]byte
}

// Has reports whether the snapshot holds a non-empty payload for r.
func (s Snapshot) Has(r Rep) bool { return len(s.Reps[r]) > 0 }

// Get returns the payload for r, or nil.
func (s Snapshot) Get(r Rep) []byte { return s.Reps[r] }

// Reader is the read half of a Backend.
type Reader interface {
	Types() []string
	Read(r Rep) ([]byte, error)
}

// Take reads every known representation from b. A representation whose read
// fails or panics is treated as absent; the snapshot carries on with the rest.
func Take(b Reader, changeCount int64, app App) Snapshot {
	s := Snapshot{
		ChangeCount: changeCount,
		App:         app,
		Reps:        make(map[Rep][]byte, len(AllReps)),
	}
	if types, err := safeTypes(b); err != nil {
		slog.Debug("clipboard types unreadable", "err", err)
	} else {
		s.Types = slices.Clone(types)
	}
	for _, r := range AllReps {
		data, err := safeRead(b, r)
		if err != nil {
			slog.Debug("clipboard representation unreadable", "rep", r, "err", err)
			continue
		}
		if len(data) > 0 {
			s.Reps[r] = slices.Clone(data)
		}
	}
	return s
}

func safeRead(b Reader, r Rep) (data []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			data, err = nil, fmt.Errorf("read %s panicked: %v", r, p)
		}
	}()
	return b.Read(r)
}

func safeTypes(b Reader) (types []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			types, err = nil, fmt.Errorf("types panicked: %v", p)
		}
	}()
	return b.Types(), nil
}
