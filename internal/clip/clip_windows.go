//go:build windows

package clip

// #cgo LDFLAGS: -luser32 -lkernel32
//
// #include <windows.h>
// #include <stdlib.h>
// #include <string.h>
//
// static DWORD cliphist_seq(void) {
//     return GetClipboardSequenceNumber();
// }
//
// // Writes NUL-separated format names into buf; returns bytes used.
// static int cliphist_formats(char* buf, int size) {
//     int used = 0;
//     if (!OpenClipboard(NULL)) { return -1; }
//     UINT f = 0;
//     while ((f = EnumClipboardFormats(f)) != 0) {
//         char name[256];
//         int n = GetClipboardFormatNameA(f, name, sizeof(name));
//         if (n <= 0) { n = wsprintfA(name, "CF_%u", f); }
//         if (used + n + 1 > size) { break; }
//         memcpy(buf + used, name, n);
//         used += n;
//         buf[used++] = 0;
//     }
//     CloseClipboard();
//     return used;
// }
//
// static int cliphist_front(char* buf, DWORD size, DWORD* pid) {
//     HWND h = GetForegroundWindow();
//     *pid = 0;
//     if (h == NULL) { return 0; }
//     GetWindowThreadProcessId(h, pid);
//     HANDLE p = OpenProcess(PROCESS_QUERY_LIMITED_INFORMATION, FALSE, *pid);
//     if (p == NULL) { return 0; }
//     DWORD n = size;
//     if (!QueryFullProcessImageNameA(p, 0, buf, &n)) { n = 0; }
//     CloseHandle(p);
//     return (int)n;
// }
//
// static void cliphist_key(INPUT* in, WORD vk, DWORD flags) {
//     in->type = INPUT_KEYBOARD;
//     in->ki.wVk = vk;
//     in->ki.dwFlags = flags;
// }
//
// static void cliphist_post_paste(void) {
//     INPUT in[4];
//     ZeroMemory(in, sizeof(in));
//     cliphist_key(&in[0], VK_CONTROL, 0);
//     cliphist_key(&in[1], 'V', 0);
//     cliphist_key(&in[2], 'V', KEYEVENTF_KEYUP);
//     cliphist_key(&in[3], VK_CONTROL, KEYEVENTF_KEYUP);
//     SendInput(4, in, sizeof(INPUT));
// }
import "C"

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.design/x/clipboard"
)

type windowsBackend struct{}

// New returns the Windows clipboard backend. The change counter is the
// system clipboard sequence number, so no listener window is needed.
func New() System {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard init failed", "err", err)
	}
	return windowsBackend{}
}

func (windowsBackend) Name() string { return "Windows Clipboard" }

func (windowsBackend) ChangeCount() int64 { return int64(C.cliphist_seq()) }

func (windowsBackend) Types() []string {
	buf := make([]byte, 8192)
	n := C.cliphist_formats((*C.char)(unsafe.Pointer(&buf[0])), C.int(len(buf)))
	if n <= 0 {
		return nil
	}
	var types []string
	for _, name := range bytes.Split(buf[:n], []byte{0}) {
		if len(name) > 0 {
			types = append(types, string(name))
		}
	}
	return types
}

func (windowsBackend) Read(r Rep) ([]byte, error) {
	switch r {
	case RepText:
		return clipboard.Read(clipboard.FmtText), nil
	case RepPNG:
		return clipboard.Read(clipboard.FmtImage), nil
	}
	return nil, nil
}

// Write places the first supported item; each golang.design write empties
// the clipboard first, so only one representation can be held.
func (windowsBackend) Write(items []Item) error {
	for _, it := range items {
		switch it.Rep {
		case RepText, RepURL, RepFileURL:
			clipboard.Write(clipboard.FmtText, it.Data)
			return nil
		case RepPNG:
			clipboard.Write(clipboard.FmtImage, it.Data)
			return nil
		}
	}
	return fmt.Errorf("no writable representation among %d items", len(items))
}

func (windowsBackend) FrontApp() App {
	buf := make([]byte, 1024)
	var pid C.DWORD
	n := C.cliphist_front((*C.char)(unsafe.Pointer(&buf[0])), C.DWORD(len(buf)), &pid)
	if n <= 0 {
		return App{PID: int(pid)}
	}
	exe := filepath.Base(string(buf[:n]))
	return App{
		ID:   strings.ToLower(exe),
		Name: strings.TrimSuffix(exe, filepath.Ext(exe)),
		PID:  int(pid),
	}
}

func (windowsBackend) Close() {}

// Trusted is always true: SendInput needs no grant outside of UIPI, which
// cannot be queried ahead of time.
func (windowsBackend) Trusted(bool) bool { return true }

// PostPaste holds ctrl across V since Windows key events carry no modifier
// flags. pid is ignored; input goes to the foreground window.
func (windowsBackend) PostPaste(int) error {
	C.cliphist_post_paste()
	return nil
}
