//go:build !darwin && !windows && !linux

package clip

import "log/slog"

// New returns an in-memory board for platforms without a native backend.
func New() System {
	slog.Warn("no native clipboard on this platform, using in-memory board")
	return NewMemory()
}
