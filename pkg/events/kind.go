package events

// Kind tags every raw and semantic event.
type Kind string

// Raw kinds produced by capture backends.
const (
	KindKeyboard           Kind = "keyboard"
	KindMouse              Kind = "mouse"
	KindClipboard          Kind = "clipboard"
	KindTextSelection      Kind = "text_selection"
	KindWindow             Kind = "window"
	KindUIFocusChanged     Kind = "ui_focus_changed"
	KindUIPropertyChanged  Kind = "ui_property_changed"
	KindUIStructureChanged Kind = "ui_structure_changed"
)

// Semantic kinds derived by the aggregation pipeline.
const (
	KindTextInputCompleted   Kind = "text_input_completed"
	KindApplicationSwitch    Kind = "application_switch"
	KindBrowserTabNavigation Kind = "browser_tab_navigation"
	KindDragDrop             Kind = "drag_drop"
	KindHotkey               Kind = "hotkey"
)

var (
	rawKinds = []Kind{
		KindKeyboard,
		KindMouse,
		KindClipboard,
		KindTextSelection,
		KindWindow,
		KindUIFocusChanged,
		KindUIPropertyChanged,
		KindUIStructureChanged,
	}
	semanticKinds = []Kind{
		KindTextInputCompleted,
		KindApplicationSwitch,
		KindBrowserTabNavigation,
		KindDragDrop,
		KindHotkey,
	}
)

// RawKinds lists the kinds a capture backend may submit.
func RawKinds() []Kind {
	return append([]Kind(nil), rawKinds...)
}

// SemanticKinds lists the kinds only the pipeline emits.
func SemanticKinds() []Kind {
	return append([]Kind(nil), semanticKinds...)
}

// AllKinds lists every kind in the output alphabet.
func AllKinds() []Kind {
	out := make([]Kind, 0, len(rawKinds)+len(semanticKinds))
	out = append(out, rawKinds...)
	return append(out, semanticKinds...)
}

// IsSemantic reports whether k is derived rather than captured.
func (k Kind) IsSemantic() bool {
	for _, s := range semanticKinds {
		if s == k {
			return true
		}
	}
	return false
}

// Valid reports whether k belongs to the alphabet.
func (k Kind) Valid() bool {
	for _, s := range AllKinds() {
		if s == k {
			return true
		}
	}
	return false
}
