// Package privacy decides from marker types alone whether a clipboard
// snapshot holds sensitive or transient content. Payloads are never read.
package privacy

// Marker families. Any one present marks the snapshot sensitive.
var (
	// Concealed markers: the copying app asks clipboard tools not to show it.
	Concealed = []string{
		"org.nspasteboard.ConcealedType",
		"x-kde-passwordManagerHint",
		"ExcludeClipboardContentFromMonitorProcessing",
	}
	// Transient markers: the content exists only for an immediate paste.
	Transient = []string{
		"org.nspasteboard.TransientType",
		"org.nspasteboard.AutoGeneratedType",
		"Clipboard Viewer Ignore",
	}
	// TransientText is the text-specific transient marker.
	TransientText = []string{
		"de.petermaurer.TransientPasteboardType",
	}
	// PasswordManager markers are set by third-party password managers.
	PasswordManager = []string{
		"com.agilebits.onepassword",
		"com.bitwarden.desktop.concealed",
	}
)

var markers = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, family := range [][]string{Concealed, Transient, TransientText, PasswordManager} {
		for _, t := range family {
			m[t] = struct{}{}
		}
	}
	return m
}()

// Marker returns the first marker type found among types.
func Marker(types []string) (string, bool) {
	for _, t := range types {
		if _, ok := markers[t]; ok {
			return t, true
		}
	}
	return "", false
}

// Sensitive reports whether any marker type is present.
func Sensitive(types []string) bool {
	_, ok := Marker(types)
	return ok
}
