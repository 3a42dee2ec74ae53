package events

import (
	"fmt"

	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

// Payload is the kind-specific body of an event. The unexported marker keeps
// the set of implementations closed to this package.
type Payload interface {
	Kind() Kind
	payload()
}

// NewPayload returns an empty payload for kind, ready to be decoded into.
func NewPayload(kind Kind) (Payload, error) {
	switch kind {
	case KindKeyboard:
		return &KeyboardEvent{}, nil
	case KindMouse:
		return &MouseEvent{}, nil
	case KindClipboard:
		return &ClipboardEvent{}, nil
	case KindTextSelection:
		return &TextSelectionEvent{}, nil
	case KindWindow:
		return &WindowEvent{}, nil
	case KindUIFocusChanged:
		return &UIFocusChangedEvent{}, nil
	case KindUIPropertyChanged:
		return &UIPropertyChangedEvent{}, nil
	case KindUIStructureChanged:
		return &UIStructureChangedEvent{}, nil
	case KindTextInputCompleted:
		return &TextInputCompletedEvent{}, nil
	case KindApplicationSwitch:
		return &ApplicationSwitchEvent{}, nil
	case KindBrowserTabNavigation:
		return &BrowserTabNavigationEvent{}, nil
	case KindDragDrop:
		return &DragDropEvent{}, nil
	case KindHotkey:
		return &HotkeyEvent{}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}

// Modifiers records which modifier keys were held.
type Modifiers struct {
	Ctrl  bool `json:"ctrl,omitempty"`
	Alt   bool `json:"alt,omitempty"`
	Shift bool `json:"shift,omitempty"`
	Win   bool `json:"win,omitempty"`
}

// Any reports whether a command modifier (Ctrl, Alt or Win) is held.
func (m Modifiers) Any() bool { return m.Ctrl || m.Alt || m.Win }

// Position is a screen coordinate in pixels.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// KeyboardEvent is a single key transition.
type KeyboardEvent struct {
	KeyCode   uint32    `json:"key_code"`
	Character string    `json:"character,omitempty"`
	IsKeyDown bool      `json:"is_key_down"`
	Modifiers Modifiers `json:"modifiers"`
}

// MouseEventType enumerates pointer transitions.
type MouseEventType string

const (
	MouseMove        MouseEventType = "move"
	MouseDown        MouseEventType = "down"
	MouseUp          MouseEventType = "up"
	MouseClick       MouseEventType = "click"
	MouseDoubleClick MouseEventType = "double_click"
	MouseWheel       MouseEventType = "wheel"
)

// MouseButton identifies the pointer button involved.
type MouseButton string

const (
	ButtonNone   MouseButton = ""
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// MouseEvent is a pointer transition.
type MouseEvent struct {
	Type       MouseEventType `json:"event_type"`
	Button     MouseButton    `json:"button,omitempty"`
	Position   Position       `json:"position"`
	WheelDelta int            `json:"wheel_delta,omitempty"`
	Modifiers  Modifiers      `json:"modifiers"`
}

// ClipboardAction enumerates clipboard operations.
type ClipboardAction string

const (
	ClipboardCopy  ClipboardAction = "copy"
	ClipboardCut   ClipboardAction = "cut"
	ClipboardPaste ClipboardAction = "paste"
	ClipboardClear ClipboardAction = "clear"
)

// ClipboardEvent is one clipboard operation. ContentSize is the length of the
// original content in runes; Content may be a truncated preview.
type ClipboardEvent struct {
	Action      ClipboardAction `json:"action"`
	Content     string          `json:"content,omitempty"`
	ContentSize int             `json:"content_size"`
	Format      string          `json:"format,omitempty"`
	Truncated   bool            `json:"truncated,omitempty"`
}

// SelectionMethod tags how a text selection was made.
type SelectionMethod string

const (
	SelectionUnknown     SelectionMethod = "unknown"
	SelectionMouseDrag   SelectionMethod = "mouse_drag"
	SelectionDoubleClick SelectionMethod = "double_click"
	SelectionKeyboard    SelectionMethod = "keyboard"
)

// TextSelectionEvent reports the currently selected text.
type TextSelectionEvent struct {
	Text            string          `json:"selected_text"`
	Length          int             `json:"selection_length"`
	Method          SelectionMethod `json:"selection_method,omitempty"`
	ApplicationName string          `json:"application_name,omitempty"`
	Truncated       bool            `json:"truncated,omitempty"`
}

// WindowAction enumerates window notifications.
type WindowAction string

const (
	WindowFocused      WindowAction = "focused"
	WindowOpened       WindowAction = "opened"
	WindowClosed       WindowAction = "closed"
	WindowTitleChanged WindowAction = "title_changed"
)

// WindowEvent is a top-level window notification. SwitchHint carries the
// backend's own knowledge of how focus moved, when it has any.
type WindowEvent struct {
	Action          WindowAction            `json:"action"`
	WindowID        string                  `json:"window_id,omitempty"`
	Title           string                  `json:"title,omitempty"`
	ApplicationName string                  `json:"application_name,omitempty"`
	ProcessID       int32                   `json:"process_id,omitempty"`
	URL             string                  `json:"url,omitempty"`
	SwitchHint      ApplicationSwitchMethod `json:"switch_hint,omitempty"`
}

// UIFocusChangedEvent reports keyboard focus moving to a new element.
type UIFocusChangedEvent struct {
	ApplicationName string `json:"application_name,omitempty"`
	ProcessID       int32  `json:"process_id,omitempty"`
	WindowID        string `json:"window_id,omitempty"`
	Role            string `json:"role,omitempty"`
	Name            string `json:"name,omitempty"`
}

// UIPropertyChangedEvent reports a property of an element changing value.
type UIPropertyChangedEvent struct {
	PropertyName    string `json:"property_name"`
	OldValue        string `json:"old_value,omitempty"`
	NewValue        string `json:"new_value,omitempty"`
	ApplicationName string `json:"application_name,omitempty"`
	WindowID        string `json:"window_id,omitempty"`
	Role            string `json:"role,omitempty"`
}

// StructureChangeType enumerates tree mutations.
type StructureChangeType string

const (
	StructureChildAdded          StructureChangeType = "child_added"
	StructureChildRemoved        StructureChangeType = "child_removed"
	StructureChildrenInvalidated StructureChangeType = "children_invalidated"
	StructureChildrenReordered   StructureChangeType = "children_reordered"
)

// UIStructureChangedEvent reports the element tree changing shape.
type UIStructureChangedEvent struct {
	ChangeType      StructureChangeType `json:"change_type"`
	ApplicationName string              `json:"application_name,omitempty"`
	WindowID        string              `json:"window_id,omitempty"`
	ChildCount      int                 `json:"child_count,omitempty"`
}

// TextInputMethod classifies how a field's text was produced.
type TextInputMethod string

const (
	InputTyped      TextInputMethod = "typed"
	InputPasted     TextInputMethod = "pasted"
	InputAutoFilled TextInputMethod = "auto_filled"
	InputMixed      TextInputMethod = "mixed"
)

// Flush reasons attached to completed text input.
const (
	FlushTimeout   = "timeout"
	FlushFocusLost = "focus_lost"
	FlushCommitKey = "commit_key"
	FlushStopped   = "stopped"
)

// TextInputCompletedEvent summarises one text-entry session in a field.
type TextInputCompletedEvent struct {
	TextValue        string          `json:"text_value"`
	FieldName        string          `json:"field_name,omitempty"`
	FieldType        string          `json:"field_type,omitempty"`
	InputMethod      TextInputMethod `json:"input_method"`
	TypingDurationMs int64           `json:"typing_duration_ms"`
	KeystrokeCount   int             `json:"keystroke_count"`
	ApplicationName  string          `json:"application_name,omitempty"`
	FlushReason      string          `json:"flush_reason,omitempty"`
}

// ApplicationSwitchMethod classifies how the foreground application changed.
type ApplicationSwitchMethod string

const (
	SwitchAltTab             ApplicationSwitchMethod = "alt_tab"
	SwitchTaskbarClick       ApplicationSwitchMethod = "taskbar_click"
	SwitchWindowClick        ApplicationSwitchMethod = "window_click"
	SwitchWindowsKeyShortcut ApplicationSwitchMethod = "windows_key_shortcut"
	SwitchStartMenu          ApplicationSwitchMethod = "start_menu"
	SwitchOther              ApplicationSwitchMethod = "other"
)

// ApplicationSwitchEvent reports a change of foreground application.
// DwellTimeMs is nil for the first application observed.
type ApplicationSwitchEvent struct {
	FromApplication string                  `json:"from_application,omitempty"`
	ToApplication   string                  `json:"to_application"`
	FromProcessID   int32                   `json:"from_process_id,omitempty"`
	ToProcessID     int32                   `json:"to_process_id,omitempty"`
	SwitchMethod    ApplicationSwitchMethod `json:"switch_method"`
	DwellTimeMs     *int64                  `json:"dwell_time_ms,omitempty"`
	SwitchCount     int                     `json:"switch_count"`
}

// TabAction describes what happened to the tab.
type TabAction string

const (
	TabCreated   TabAction = "created"
	TabSwitched  TabAction = "switched"
	TabClosed    TabAction = "closed"
	TabNavigated TabAction = "navigated"
)

// TabNavigationMethod classifies how a navigation was triggered.
type TabNavigationMethod string

const (
	NavKeyboardShortcut TabNavigationMethod = "keyboard_shortcut"
	NavTabClick         TabNavigationMethod = "tab_click"
	NavNewTabButton     TabNavigationMethod = "new_tab_button"
	NavCloseButton      TabNavigationMethod = "close_button"
	NavAddressBar       TabNavigationMethod = "address_bar"
	NavLinkNewTab       TabNavigationMethod = "link_new_tab"
	NavOther            TabNavigationMethod = "other"
)

// BrowserTabNavigationEvent reports a settled change of url or title in a
// browser window. PageDwellTimeMs is nil for a window's first page.
type BrowserTabNavigationEvent struct {
	Action          TabAction           `json:"action"`
	Method          TabNavigationMethod `json:"method"`
	Browser         string              `json:"browser"`
	WindowID        string              `json:"window_id,omitempty"`
	URL             string              `json:"url,omitempty"`
	Title           string              `json:"title,omitempty"`
	FromURL         string              `json:"from_url,omitempty"`
	FromTitle       string              `json:"from_title,omitempty"`
	PageDwellTimeMs *int64              `json:"page_dwell_time_ms,omitempty"`
}

// DragDropEvent reports a completed (or interrupted) drag gesture.
type DragDropEvent struct {
	StartPosition Position    `json:"start_position"`
	EndPosition   Position    `json:"end_position"`
	Button        MouseButton `json:"button"`
	Distance      float64     `json:"distance"`
	DurationMs    int64       `json:"duration_ms"`
	SourceElement *uia.Info   `json:"source_element,omitempty"`
	Completed     bool        `json:"completed"`
}

// HotkeyEvent reports a modifier+key combination. Action is empty when the
// combination has no known meaning.
type HotkeyEvent struct {
	Combination string `json:"combination"`
	Action      string `json:"action,omitempty"`
	IsGlobal    bool   `json:"is_global,omitempty"`
}

func (*KeyboardEvent) Kind() Kind             { return KindKeyboard }
func (*MouseEvent) Kind() Kind                { return KindMouse }
func (*ClipboardEvent) Kind() Kind            { return KindClipboard }
func (*TextSelectionEvent) Kind() Kind        { return KindTextSelection }
func (*WindowEvent) Kind() Kind               { return KindWindow }
func (*UIFocusChangedEvent) Kind() Kind       { return KindUIFocusChanged }
func (*UIPropertyChangedEvent) Kind() Kind    { return KindUIPropertyChanged }
func (*UIStructureChangedEvent) Kind() Kind   { return KindUIStructureChanged }
func (*TextInputCompletedEvent) Kind() Kind   { return KindTextInputCompleted }
func (*ApplicationSwitchEvent) Kind() Kind    { return KindApplicationSwitch }
func (*BrowserTabNavigationEvent) Kind() Kind { return KindBrowserTabNavigation }
func (*DragDropEvent) Kind() Kind             { return KindDragDrop }
func (*HotkeyEvent) Kind() Kind               { return KindHotkey }

func (*KeyboardEvent) payload()             {}
func (*MouseEvent) payload()                {}
func (*ClipboardEvent) payload()            {}
func (*TextSelectionEvent) payload()        {}
func (*WindowEvent) payload()               {}
func (*UIFocusChangedEvent) payload()       {}
func (*UIPropertyChangedEvent) payload()    {}
func (*UIStructureChangedEvent) payload()   {}
func (*TextInputCompletedEvent) payload()   {}
func (*ApplicationSwitchEvent) payload()    {}
func (*BrowserTabNavigationEvent) payload() {}
func (*DragDropEvent) payload()             {}
func (*HotkeyEvent) payload()               {}
