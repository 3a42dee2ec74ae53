package recorder

import (
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/aggregate"
	"github.com/offlinefirst/workflow-recorder/pkg/config"
	"github.com/offlinefirst/workflow-recorder/pkg/events"
)

// PipelineOptions maps recorder settings onto the aggregation pipeline.
func PipelineOptions(cfg config.RecorderConfig) aggregate.Options {
	return aggregate.Options{
		PassThrough: map[events.Kind]bool{
			events.KindKeyboard:           cfg.RecordKeyboard,
			events.KindMouse:              cfg.RecordMouse,
			events.KindWindow:             cfg.RecordWindow,
			events.KindClipboard:          cfg.RecordClipboard,
			events.KindTextSelection:      cfg.RecordTextSelection,
			events.KindUIFocusChanged:     cfg.RecordUIFocusChanges,
			events.KindUIStructureChanged: cfg.RecordUIStructureChanges,
			events.KindUIPropertyChanged:  cfg.RecordUIPropertyChanges,
		},
		TextInput:           cfg.RecordTextInputCompletion,
		ApplicationSwitch:   cfg.RecordApplicationSwitch,
		BrowserTab:          cfg.RecordBrowserTabNavigation,
		DragDrop:            cfg.RecordDragDrop,
		Hotkeys:             cfg.RecordHotkeys,
		TextInputTimeout:    cfg.TextInputTimeout(),
		EmitEmptyTextInput:  cfg.EmitEmptyTextInput,
		MaxClipboardLength:  cfg.MaxClipboardContentLength,
		MaxSelectionLength:  cfg.MaxTextSelectionLength,
		TrackModifierStates: cfg.TrackModifierStates,
		MouseMoveThrottle:   cfg.MouseMoveThrottle(),
		MinDragDistance:     cfg.MinDragDistance,
		BrowserSettle:       cfg.BrowserSettle(),
	}
}

// highlightColors follows the console legend printed by `flowrec record`.
var highlightColors = map[events.Kind]uint32{
	events.KindKeyboard:             0xFF0000, // red
	events.KindTextSelection:        0xFFFF00, // yellow
	events.KindUIFocusChanged:       0x00FF00, // green
	events.KindUIPropertyChanged:    0xFF8000, // orange
	events.KindMouse:                0xFF8000,
	events.KindTextInputCompleted:   0x8000FF, // purple
	events.KindDragDrop:             0x00FFFF, // cyan
	events.KindApplicationSwitch:    0x80FF00, // lime
	events.KindBrowserTabNavigation: 0xFFFF80, // light yellow
}

// HighlightColor returns the highlight colour for kind and whether the kind
// is highlighted at all.
func HighlightColor(kind events.Kind) (uint32, bool) {
	c, ok := highlightColors[kind]
	return c, ok
}

const highlightDuration = 800 * time.Millisecond
