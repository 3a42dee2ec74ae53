//go:build darwin

package source

/*
#cgo darwin CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo darwin LDFLAGS: -framework CoreGraphics -framework ApplicationServices -framework Cocoa
#include <ApplicationServices/ApplicationServices.h>
#include <Cocoa/Cocoa.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

static Boolean axCheckTrusted(void) {
        const void *keys[] = { kAXTrustedCheckOptionPrompt };
        const void *values[] = { kCFBooleanTrue };
        CFDictionaryRef options = CFDictionaryCreate(kCFAllocatorDefault, keys, values, 1,
                                                     &kCFTypeDictionaryKeyCallBacks,
                                                     &kCFTypeDictionaryValueCallBacks);
        Boolean trusted = AXIsProcessTrustedWithOptions(options);
        CFRelease(options);
        return trusted;
}

extern CGEventRef goHandleEvent(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *userInfo);

static CFRunLoopSourceRef startEventTap(uintptr_t handle, CGEventMask mask, CFMachPortRef *tapOut) {
        CFMachPortRef tap = CGEventTapCreate(kCGSessionEventTap,
                                             kCGHeadInsertEventTap,
                                             kCGEventTapOptionListenOnly,
                                             mask,
                                             goHandleEvent,
                                             (void *)handle);
        if (tap == NULL) {
                return NULL;
        }
        CGEventTapEnable(tap, true);
        CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
        *tapOut = tap;
        return source;
}

static CFRunLoopRef currentRunLoop(void) {
        return CFRunLoopGetCurrent();
}

static CGEventMask cgEventMaskBit(CGEventType type) {
        return ((CGEventMask)1) << type;
}

static void addSourceToRunLoop(CFRunLoopRef loop, CFRunLoopSourceRef source) {
        CFRunLoopAddSource(loop, source, kCFRunLoopCommonModes);
}

static void runCurrentRunLoop(void) {
        CFRunLoopRun();
}

static void stopRunLoop(CFRunLoopRef loop) {
        CFRunLoopStop(loop);
}

static double cgEventGetX(CGEventRef event) {
        return CGEventGetLocation(event).x;
}

static double cgEventGetY(CGEventRef event) {
        return CGEventGetLocation(event).y;
}

static int64_t cgEventGetKeycode(CGEventRef event) {
        return CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
}

static int64_t cgEventGetScrollDelta(CGEventRef event) {
        return CGEventGetIntegerValueField(event, kCGScrollWheelEventDeltaAxis1);
}

static uint64_t cgEventGetFlags(CGEventRef event) {
        return (uint64_t)CGEventGetFlags(event);
}

static int cgEventGetUnicode(CGEventRef event, UniChar *buf, int max) {
        UniCharCount length = 0;
        CGEventKeyboardGetUnicodeString(event, (UniCharCount)max, &length, buf);
        return (int)length;
}

static CFStringRef copyFocusedWindowTitle(void) {
        AXUIElementRef systemWide = AXUIElementCreateSystemWide();
        if (systemWide == NULL) {
                return NULL;
        }
        AXUIElementRef app = NULL;
        AXError err = AXUIElementCopyAttributeValue(systemWide, kAXFocusedApplicationAttribute, (CFTypeRef *)&app);
        if (err != kAXErrorSuccess || app == NULL) {
                if (app != NULL) {
                        CFRelease(app);
                }
                CFRelease(systemWide);
                return NULL;
        }
        AXUIElementRef window = NULL;
        err = AXUIElementCopyAttributeValue(app, kAXFocusedWindowAttribute, (CFTypeRef *)&window);
        if (err != kAXErrorSuccess || window == NULL) {
                if (window != NULL) {
                        CFRelease(window);
                }
                CFRelease(app);
                CFRelease(systemWide);
                return NULL;
        }
        CFStringRef title = NULL;
        AXUIElementCopyAttributeValue(window, kAXTitleAttribute, (CFTypeRef *)&title);
        CFRelease(window);
        CFRelease(app);
        CFRelease(systemWide);
        return title;
}

static CFStringRef copyFocusedAppName(void) {
        NSRunningApplication *app = [[NSWorkspace sharedWorkspace] frontmostApplication];
        if (app == nil) {
                return NULL;
        }
        NSString *name = app.localizedName ?: @"";
        return (__bridge_retained CFStringRef)name;
}

static int32_t focusedAppPID(void) {
        NSRunningApplication *app = [[NSWorkspace sharedWorkspace] frontmostApplication];
        if (app == nil) {
                return 0;
        }
        return (int32_t)app.processIdentifier;
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/cgo"
	"sync"
	"time"
	"unicode/utf16"
	"unsafe"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

// Native returns the Quartz event tap backend. Focused windows are
// registered in reg so element lookups resolve while they stay focused.
func Native(clock func() time.Time, reg *uia.MemoryRegistry) Source {
	if clock == nil {
		clock = time.Now
	}
	return &quartzSource{now: clock, registry: reg}
}

type quartzSource struct {
	now      func() time.Time
	registry *uia.MemoryRegistry
}

func (s *quartzSource) Open(ctx context.Context) (Stream, error) {
	if C.axCheckTrusted() == C.Boolean(0) {
		return nil, ErrAccessibilityPermission
	}
	return &quartzStream{now: s.now, registry: s.registry, stopped: make(chan struct{})}, nil
}

type quartzStream struct {
	emit      func(events.RawEvent)
	now       func() time.Time
	registry  *uia.MemoryRegistry
	stopped   chan struct{}
	stopLoop  func()
	closeOnce sync.Once

	focusLock sync.Mutex
	lastApp   string
	lastPID   int32
	lastTitle string
	lastRef   uia.Ref
	lastFlags uint64
}

func (s *quartzStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopped)
		if s.stopLoop != nil {
			s.stopLoop()
		}
	})
	return nil
}

func (s *quartzStream) Run(ctx context.Context, emit func(events.RawEvent)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.emit = emit

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	handle := cgo.NewHandle(s)
	defer handle.Delete()

	mask := C.cgEventMaskBit(C.kCGEventKeyDown) |
		C.cgEventMaskBit(C.kCGEventKeyUp) |
		C.cgEventMaskBit(C.kCGEventFlagsChanged) |
		C.cgEventMaskBit(C.kCGEventLeftMouseDown) |
		C.cgEventMaskBit(C.kCGEventLeftMouseUp) |
		C.cgEventMaskBit(C.kCGEventRightMouseDown) |
		C.cgEventMaskBit(C.kCGEventRightMouseUp) |
		C.cgEventMaskBit(C.kCGEventOtherMouseDown) |
		C.cgEventMaskBit(C.kCGEventOtherMouseUp) |
		C.cgEventMaskBit(C.kCGEventMouseMoved) |
		C.cgEventMaskBit(C.kCGEventLeftMouseDragged) |
		C.cgEventMaskBit(C.kCGEventScrollWheel)

	var tap C.CFMachPortRef
	source := C.startEventTap(C.uintptr_t(handle), mask, &tap)
	if source == 0 {
		return errors.New("failed to create CGEvent tap")
	}
	defer C.CFRelease(C.CFTypeRef(source))
	defer C.CFRelease(C.CFTypeRef(tap))

	loop := C.currentRunLoop()
	stopOnce := sync.Once{}
	s.stopLoop = func() {
		stopOnce.Do(func() {
			C.stopRunLoop(loop)
		})
	}
	C.addSourceToRunLoop(loop, source)

	cancelWatcher := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.stopLoop()
		case <-s.stopped:
		}
		close(cancelWatcher)
	}()

	s.emitFocus(s.now().UTC())
	C.runCurrentRunLoop()
	s.Close()
	<-cancelWatcher
	return ctx.Err()
}

func (s *quartzStream) emitFocus(now time.Time) {
	title := cfStringToGo(C.copyFocusedWindowTitle())
	app := cfStringToGo(C.copyFocusedAppName())
	pid := int32(C.focusedAppPID())

	s.focusLock.Lock()
	appChanged := app != s.lastApp || pid != s.lastPID
	titleChanged := title != s.lastTitle
	if appChanged || titleChanged {
		s.lastApp, s.lastPID, s.lastTitle = app, pid, title
		s.lastRef = uia.Ref(fmt.Sprintf("window:%d", pid))
	}
	ref := s.lastRef
	s.focusLock.Unlock()

	if !appChanged && !titleChanged {
		return
	}
	if s.registry != nil {
		s.registry.Put(ref, uia.NewStaticElement("window", title, app))
	}

	action := events.WindowFocused
	if !appChanged {
		action = events.WindowTitleChanged
	}
	s.emit(events.RawEvent{
		Timestamp: now,
		Element:   ref,
		Payload: &events.WindowEvent{
			Action:          action,
			WindowID:        fmt.Sprintf("%d", pid),
			Title:           title,
			ApplicationName: app,
			ProcessID:       pid,
		},
	})
}

func (s *quartzStream) focusRef() uia.Ref {
	s.focusLock.Lock()
	defer s.focusLock.Unlock()
	return s.lastRef
}

const (
	flagShift   = 1 << 17
	flagControl = 1 << 18
	flagAlt     = 1 << 19
	flagCommand = 1 << 20
)

// modifiersFrom maps Quartz flags. Command acts as the primary shortcut
// modifier and is reported as Ctrl.
func modifiersFrom(flags uint64) events.Modifiers {
	return events.Modifiers{
		Ctrl:  flags&(flagControl|flagCommand) != 0,
		Alt:   flags&flagAlt != 0,
		Shift: flags&flagShift != 0,
	}
}

// macKeycodes translates Quartz virtual key codes for the keys the
// aggregators care about. Letters and digits are resolved from the
// character instead.
var macKeycodes = map[int64]uint32{
	0x24: events.VKReturn,
	0x30: events.VKTab,
	0x31: events.VKSpace,
	0x33: events.VKBack,
	0x35: events.VKEscape,
	0x75: events.VKDelete,
	0x7B: events.VKLeft,
	0x7C: events.VKRight,
	0x7D: events.VKDown,
	0x7E: events.VKUp,
	0x73: events.VKHome,
	0x77: events.VKEnd,
	0x74: events.VKPrior,
	0x79: events.VKNext,
	0x38: events.VKLShift,
	0x3C: events.VKRShift,
	0x3B: events.VKLControl,
	0x3E: events.VKRControl,
	0x3A: events.VKLMenu,
	0x3D: events.VKRMenu,
	0x37: events.VKControl,
	0x36: events.VKControl,
	0x60: events.VKFunction(5),
	0x76: events.VKFunction(4),
}

var macModifierMasks = map[uint32]uint64{
	events.VKLShift:   flagShift,
	events.VKRShift:   flagShift,
	events.VKLControl: flagControl,
	events.VKRControl: flagControl,
	events.VKLMenu:    flagAlt,
	events.VKRMenu:    flagAlt,
	events.VKControl:  flagCommand,
}

func (s *quartzStream) handleKeyboard(now time.Time, eventType C.CGEventType, event C.CGEventRef) {
	raw := int64(C.cgEventGetKeycode(event))
	flags := uint64(C.cgEventGetFlags(event))

	var buf [8]C.UniChar
	n := int(C.cgEventGetUnicode(event, &buf[0], C.int(len(buf))))
	units := make([]uint16, 0, n)
	for i := 0; i < n; i++ {
		units = append(units, uint16(buf[i]))
	}
	char := string(utf16.Decode(units))

	code, ok := macKeycodes[raw]
	if !ok && len(char) == 1 {
		c := char[0]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			code = events.VKLetter(rune(c))
		} else if c >= '0' && c <= '9' {
			code = uint32(c)
		}
	}

	down := eventType == C.kCGEventKeyDown
	if eventType == C.kCGEventFlagsChanged {
		down = flags&macModifierMasks[code] != 0
		char = ""
	}
	if code == events.VKReturn || code == events.VKTab || code == events.VKBack || code == events.VKEscape {
		char = ""
	}

	s.emit(events.RawEvent{
		Timestamp: now,
		Element:   s.focusRef(),
		Payload: &events.KeyboardEvent{
			KeyCode:   code,
			Character: char,
			IsKeyDown: down,
			Modifiers: modifiersFrom(flags),
		},
	})
}

func (s *quartzStream) handleMouse(now time.Time, eventType C.CGEventType, event C.CGEventRef) {
	pos := events.Position{X: int(C.cgEventGetX(event)), Y: int(C.cgEventGetY(event))}
	me := &events.MouseEvent{
		Type:      events.MouseMove,
		Position:  pos,
		Modifiers: modifiersFrom(uint64(C.cgEventGetFlags(event))),
	}
	switch eventType {
	case C.kCGEventLeftMouseDown:
		me.Type, me.Button = events.MouseDown, events.ButtonLeft
	case C.kCGEventLeftMouseUp:
		me.Type, me.Button = events.MouseUp, events.ButtonLeft
	case C.kCGEventRightMouseDown:
		me.Type, me.Button = events.MouseDown, events.ButtonRight
	case C.kCGEventRightMouseUp:
		me.Type, me.Button = events.MouseUp, events.ButtonRight
	case C.kCGEventOtherMouseDown:
		me.Type, me.Button = events.MouseDown, events.ButtonMiddle
	case C.kCGEventOtherMouseUp:
		me.Type, me.Button = events.MouseUp, events.ButtonMiddle
	case C.kCGEventScrollWheel:
		me.Type = events.MouseWheel
		me.WheelDelta = int(C.cgEventGetScrollDelta(event))
	}
	s.emit(events.RawEvent{Timestamp: now, Element: s.focusRef(), Payload: me})
}

func cfStringToGo(str C.CFStringRef) string {
	if str == 0 {
		return ""
	}
	defer C.CFRelease(C.CFTypeRef(str))
	length := C.CFStringGetLength(str)
	if length == 0 {
		return ""
	}
	bufSize := C.CFIndex(1 + 4*length)
	buf := make([]byte, int(bufSize))
	if C.CFStringGetCString(str, (*C.char)(unsafe.Pointer(&buf[0])), bufSize, C.kCFStringEncodingUTF8) == C.Boolean(0) {
		return ""
	}
	return C.GoString((*C.char)(unsafe.Pointer(&buf[0])))
}

//export goHandleEvent
func goHandleEvent(_ C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, userInfo unsafe.Pointer) C.CGEventRef {
	handle := cgo.Handle(uintptr(userInfo))
	stream, ok := handle.Value().(*quartzStream)
	if !ok {
		return event
	}

	now := stream.now().UTC()
	stream.emitFocus(now)

	switch eventType {
	case C.kCGEventKeyDown, C.kCGEventKeyUp, C.kCGEventFlagsChanged:
		stream.handleKeyboard(now, eventType, event)
	case C.kCGEventLeftMouseDown, C.kCGEventLeftMouseUp,
		C.kCGEventRightMouseDown, C.kCGEventRightMouseUp,
		C.kCGEventOtherMouseDown, C.kCGEventOtherMouseUp,
		C.kCGEventMouseMoved, C.kCGEventLeftMouseDragged, C.kCGEventScrollWheel:
		stream.handleMouse(now, eventType, event)
	}

	return event
}
