// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the appropriate implementation:
//
//	clip_darwin.go   macOS NSPasteboard via cgo: changeCount, every type,
//	                 frontmost app, AX trust, CGEvent paste
//	clip_windows.go  Windows via golang.design/x/clipboard + cgo sequence
//	                 number, format names, foreground process, SendInput
//	clip_linux.go    Linux via golang.design/x/clipboard (atotto fallback),
//	                 xclip / wl-paste for extra targets, xdotool / wtype paste
//	clip_other.go    in-memory board for headless builds
//
// Backends speak in Reps, a small platform-neutral set of representations.
// Marker types are reported verbatim through Types so privacy checks can see
// them without reading any payload.
package clip

// Rep is a platform-neutral clipboard representation.
type Rep string

const (
	RepFileURL Rep = "file-url"
	RepPNG     Rep = "png"
	RepTIFF    Rep = "tiff"
	RepURL     Rep = "url"
	RepText    Rep = "text"
	RepRTF     Rep = "rtf"
	RepHTML    Rep = "html"
)

// ImageReps lists bitmap representations in format-preference order.
var ImageReps = []Rep{RepPNG, RepTIFF}

// StyledReps lists rich-text representations in preference order.
var StyledReps = []Rep{RepRTF, RepHTML}

// AllReps is every representation a snapshot tries to read.
var AllReps = []Rep{RepFileURL, RepPNG, RepTIFF, RepURL, RepText, RepRTF, RepHTML}

// App identifies the frontmost application. Fields are owned copies; no OS
// handle survives the call that produced them.
type App struct {
	ID   string // bundle identifier, executable name, or WM class
	Name string // human-readable name
	PID  int
}

// Item is one representation to place on the clipboard.
type Item struct {
	Rep  Rep
	Data []byte
}

// Backend is the interface that all platform clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// ChangeCount returns a value that increases on every clipboard write.
	// It must be cheap; the monitor calls it on every tick.
	ChangeCount() int64

	// Types returns the raw type identifiers currently advertised.
	Types() []string

	// Read returns the payload of one representation, or nil, nil if absent.
	Read(r Rep) ([]byte, error)

	// Write clears the clipboard and places items on it. Backends that cannot
	// hold several representations at once write the first one they support.
	Write(items []Item) error

	// FrontApp returns the application that currently has focus. Zero value
	// when unknown.
	FrontApp() App

	// Close releases any resources held by the backend.
	Close()
}

// Keystroker synthesizes the platform paste shortcut.
type Keystroker interface {
	// Trusted reports whether the process may post synthetic input. When
	// prompt is true the OS is asked to show its permission dialog.
	Trusted(prompt bool) bool

	// PostPaste posts modifier+V. pid > 0 targets that process where the
	// platform allows; otherwise the event goes to the global input stream.
	PostPaste(pid int) error
}

// System is a clipboard backend that can also paste.
type System interface {
	Backend
	Keystroker
}
