//go:build darwin

package clip

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa -framework ApplicationServices
// #import <Cocoa/Cocoa.h>
// #import <ApplicationServices/ApplicationServices.h>
// #include <stdlib.h>
// #include <string.h>
//
// static long cliphist_change_count(void) {
//     return (long)[[NSPasteboard generalPasteboard] changeCount];
// }
//
// static char* cliphist_types(void) {
//     @autoreleasepool {
//         NSArray *types = [[NSPasteboard generalPasteboard] types];
//         if (types == nil) { return NULL; }
//         return strdup([[types componentsJoinedByString:@"\n"] UTF8String]);
//     }
// }
//
// static void* cliphist_read(const char* type, int* length) {
//     @autoreleasepool {
//         NSData *d = [[NSPasteboard generalPasteboard] dataForType:[NSString stringWithUTF8String:type]];
//         if (d == nil) { *length = -1; return NULL; }
//         *length = (int)[d length];
//         void *buf = malloc([d length] > 0 ? [d length] : 1);
//         memcpy(buf, [d bytes], [d length]);
//         return buf;
//     }
// }
//
// static void cliphist_clear(void) {
//     [[NSPasteboard generalPasteboard] clearContents];
// }
//
// static int cliphist_write(const char* type, const void* data, int length) {
//     @autoreleasepool {
//         NSData *d = [NSData dataWithBytes:data length:length];
//         return [[NSPasteboard generalPasteboard] setData:d forType:[NSString stringWithUTF8String:type]] ? 1 : 0;
//     }
// }
//
// static char* cliphist_front_app(int* pid) {
//     @autoreleasepool {
//         NSRunningApplication *app = [[NSWorkspace sharedWorkspace] frontmostApplication];
//         if (app == nil) { *pid = 0; return NULL; }
//         *pid = (int)[app processIdentifier];
//         NSString *bundle = [app bundleIdentifier] ?: @"";
//         NSString *name = [app localizedName] ?: @"";
//         return strdup([[NSString stringWithFormat:@"%@\n%@", bundle, name] UTF8String]);
//     }
// }
//
// static int cliphist_trusted(int prompt) {
//     @autoreleasepool {
//         NSDictionary *opts = @{(__bridge id)kAXTrustedCheckOptionPrompt: prompt ? @YES : @NO};
//         return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)opts) ? 1 : 0;
//     }
// }
//
// static void cliphist_post(CGEventRef e, int pid) {
//     CGEventSetFlags(e, kCGEventFlagMaskCommand);
//     if (pid > 0) {
//         CGEventPostToPid((pid_t)pid, e);
//     } else {
//         CGEventPost(kCGAnnotatedSessionEventTap, e);
//     }
//     CFRelease(e);
// }
//
// static void cliphist_post_paste(int pid) {
//     const CGKeyCode kCommand = 0x37;
//     const CGKeyCode kV = 0x09;
//     CGEventSourceRef src = CGEventSourceCreate(kCGEventSourceStateCombinedSessionState);
//     cliphist_post(CGEventCreateKeyboardEvent(src, kCommand, true), pid);
//     cliphist_post(CGEventCreateKeyboardEvent(src, kCommand, false), pid);
//     cliphist_post(CGEventCreateKeyboardEvent(src, kV, true), pid);
//     cliphist_post(CGEventCreateKeyboardEvent(src, kV, false), pid);
//     if (src != NULL) { CFRelease(src); }
// }
import "C"

import (
	"fmt"
	"strings"
	"unsafe"
)

// darwinTypes maps each Rep to its pasteboard type identifier.
var darwinTypes = map[Rep]string{
	RepFileURL: "public.file-url",
	RepPNG:     "public.png",
	RepTIFF:    "public.tiff",
	RepURL:     "public.url",
	RepText:    "public.utf8-plain-text",
	RepRTF:     "public.rtf",
	RepHTML:    "public.html",
}

type darwinBackend struct{}

// New returns the macOS pasteboard backend. NSPasteboard exposes a change
// counter, so there is no background goroutine; the monitor polls
// ChangeCount directly.
func New() System { return darwinBackend{} }

func (darwinBackend) Name() string { return "macOS NSPasteboard" }

func (darwinBackend) ChangeCount() int64 { return int64(C.cliphist_change_count()) }

func (darwinBackend) Types() []string {
	cs := C.cliphist_types()
	if cs == nil {
		return nil
	}
	defer C.free(unsafe.Pointer(cs))
	joined := C.GoString(cs)
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "\n")
}

func (darwinBackend) Read(r Rep) ([]byte, error) {
	typ, ok := darwinTypes[r]
	if !ok {
		return nil, nil
	}
	ct := C.CString(typ)
	defer C.free(unsafe.Pointer(ct))
	var n C.int
	buf := C.cliphist_read(ct, &n)
	if n < 0 || buf == nil {
		return nil, nil
	}
	defer C.free(buf)
	return C.GoBytes(buf, n), nil
}

func (darwinBackend) Write(items []Item) error {
	C.cliphist_clear()
	for _, it := range items {
		typ, ok := darwinTypes[it.Rep]
		if !ok {
			return fmt.Errorf("unsupported representation: %s", it.Rep)
		}
		ct := C.CString(typ)
		var data unsafe.Pointer
		if len(it.Data) > 0 {
			data = C.CBytes(it.Data)
		}
		ok = C.cliphist_write(ct, data, C.int(len(it.Data))) == 1
		C.free(unsafe.Pointer(ct))
		if data != nil {
			C.free(data)
		}
		if !ok {
			return fmt.Errorf("pasteboard rejected %s", it.Rep)
		}
	}
	return nil
}

// FrontApp copies the bundle id and name out of NSRunningApplication before
// returning; the Objective-C object is released with the autorelease pool.
func (darwinBackend) FrontApp() App {
	var pid C.int
	cs := C.cliphist_front_app(&pid)
	if cs == nil {
		return App{}
	}
	defer C.free(unsafe.Pointer(cs))
	id, name, _ := strings.Cut(C.GoString(cs), "\n")
	return App{ID: id, Name: name, PID: int(pid)}
}

func (darwinBackend) Close() {}

func (darwinBackend) Trusted(prompt bool) bool {
	p := C.int(0)
	if prompt {
		p = 1
	}
	return C.cliphist_trusted(p) == 1
}

func (darwinBackend) PostPaste(pid int) error {
	C.cliphist_post_paste(C.int(pid))
	return nil
}
