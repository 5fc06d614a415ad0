// Package classify turns a clipboard snapshot into at most one history entry.
//
// Representations are not mutually exclusive, so a fixed priority decides:
// file reference, then bitmap, then explicit URL, then plain text (which may
// still turn out to be a URL or a color).
package classify

import (
	"bufio"
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"time"

	"mvdan.cc/xurls/v2"

	"go.klb.dev/cliphist/internal/clip"
	"go.klb.dev/cliphist/internal/history"
)

var (
	links    = xurls.Strict()
	hosts    = xurls.Relaxed()
	hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// Classify returns the best-fit entry for s, or false if no recognized
// representation is present. The entry gets a fresh id and capturedAt = now.
func Classify(s clip.Snapshot, now time.Time) (history.Entry, bool) {
	e := history.Entry{
		ID:         history.NewID(),
		CapturedAt: now,
		SourceApp:  s.App.Name,
	}

	if path, ok := filePath(s.Get(clip.RepFileURL)); ok {
		e.Kind, e.Text = history.KindFile, path
		return e, true
	}

	for _, r := range clip.ImageReps {
		if s.Has(r) {
			// Stored as-is: no re-encoding.
			e.Kind, e.Data = history.KindImage, s.Get(r)
			return e, true
		}
	}

	if u := strings.TrimSpace(string(s.Get(clip.RepURL))); u != "" {
		e.Kind, e.Text = history.KindURL, u
		return e, true
	}

	text := string(s.Get(clip.RepText))
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return history.Entry{}, false
	}
	switch {
	case IsLink(trimmed):
		e.Kind, e.Text = history.KindURL, trimmed
	case hexColor.MatchString(trimmed):
		e.Kind, e.Text = history.KindColor, trimmed
	default:
		e.Kind, e.Text = history.KindText, text
		for _, r := range clip.StyledReps {
			if s.Has(r) {
				e.Styled, e.StyledType = s.Get(r), string(r)
				break
			}
		}
	}
	return e, true
}

// fileSuffixes are top-level domains that are far more often a file
// extension when a bare name is copied.
var fileSuffixes = map[string]bool{
	"md": true, "zip": true, "mov": true, "sh": true, "py": true,
	"rs": true, "pl": true, "cc": true, "so": true,
}

// IsLink reports whether the whole of s is a single link. A link with a
// scheme always counts; a bare host such as www.example.com counts unless
// it reads like a file name or an email address.
func IsLink(s string) bool {
	if whole(links.FindStringIndex(s), s) {
		return true
	}
	if !whole(hosts.FindStringIndex(s), s) || strings.Contains(s, "@") {
		return false
	}
	host := s
	if i := strings.IndexAny(host, "/:?#"); i >= 0 {
		host = host[:i]
	}
	dot := strings.LastIndexByte(host, '.')
	if dot < 0 {
		return false
	}
	return !fileSuffixes[strings.ToLower(host[dot+1:])]
}

func whole(loc []int, s string) bool {
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// filePath resolves a file-url representation. Both a single URL and a
// text/uri-list (first non-comment line wins) are accepted.
func filePath(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimRight(sc.Text(), "\x00"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || u.Scheme != "file" || u.Path == "" {
			return "", false
		}
		if u.Host != "" && u.Host != "localhost" {
			return "", false
		}
		return u.Path, true
	}
	return "", false
}
