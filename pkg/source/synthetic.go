package source

import (
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

// SyntheticOptions configures the deterministic demo source.
type SyntheticOptions struct {
	Clock    func() time.Time
	Registry *uia.MemoryRegistry
	// Pace replays the timeline in real time; otherwise events are emitted
	// back to back.
	Pace bool
	// Hold keeps the stream open after the timeline until cancelled.
	Hold bool
}

// Synthetic returns a Source replaying a fixed desktop session: typing in
// an editor, a keyboard shortcut, an Alt+Tab into a browser, opening a tab
// and navigating it from the address bar, a drag, and clipboard activity.
// Elements used by the timeline are registered in opts.Registry.
func Synthetic(opts SyntheticOptions) Source {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	script := SyntheticScript(clock().UTC(), opts.Registry)
	return script.Source(ReplayOptions{Pace: opts.Pace, Hold: opts.Hold, Clock: clock})
}

// SyntheticScript builds the demo timeline starting at start.
func SyntheticScript(start time.Time, reg *uia.MemoryRegistry) *Script {
	const (
		editor     uia.Ref = "notepad:edit"
		address    uia.Ref = "chrome:omnibox"
		newTab     uia.Ref = "chrome:new-tab-button"
		canvas     uia.Ref = "chrome:canvas"
		chromeWin          = "0x2a01"
		notepadWin         = "0x1f04"
	)
	if reg != nil {
		reg.Put(editor, uia.NewStaticElement("edit", "Text Editor", "notepad"))
		reg.Put(address, uia.NewStaticElement("edit", "Address and search bar", "chrome"))
		reg.Put(newTab, uia.NewStaticElement("button", "New Tab", "chrome"))
		reg.Put(canvas, uia.NewStaticElement("pane", "Board", "chrome"))
	}

	s := NewScript(start).Step(80 * time.Millisecond)
	s.Window("notepad.exe", 4120, notepadWin, "Untitled - Notepad", "")
	s.Focus(editor, "notepad.exe", "edit", "Text Editor")
	s.Type(editor, "Drafting email to support@example.com about rollot")
	s.Backspace(editor, 2)
	s.Type(editor, "ut")
	s.Wait(3 * time.Second)

	s.Hold(events.Modifiers{Ctrl: true}).Key(editor, events.VKControl, "")
	s.Key(editor, events.VKLetter('s'), "")
	s.Hold(events.Modifiers{})

	s.Hold(events.Modifiers{Alt: true}).Key("", events.VKMenu, "")
	s.Key("", events.VKTab, "")
	s.Hold(events.Modifiers{})
	s.Add("window:"+chromeWin, &events.WindowEvent{
		Action:          events.WindowFocused,
		WindowID:        chromeWin,
		Title:           "Roadmap - Google Chrome",
		ApplicationName: "chrome.exe",
		ProcessID:       5200,
		URL:             "https://docs.example.com/roadmap",
	})
	s.Wait(2 * time.Second)

	s.Click(newTab, 640, 12)
	s.Add("window:"+chromeWin, &events.WindowEvent{
		Action:          events.WindowTitleChanged,
		WindowID:        chromeWin,
		Title:           "New Tab - Google Chrome",
		ApplicationName: "chrome.exe",
		ProcessID:       5200,
		URL:             "chrome://newtab/",
	})
	s.Wait(time.Second)

	s.Focus(address, "chrome.exe", "edit", "Address and search bar")
	s.Type(address, "orders.example.com/checkout")
	s.Key(address, events.VKReturn, "")
	s.Add(address, &events.UIPropertyChangedEvent{
		PropertyName:    "value",
		OldValue:        "orders.example.com/checkout",
		NewValue:        "https://orders.example.com/checkout",
		ApplicationName: "chrome.exe",
		WindowID:        chromeWin,
		Role:            "edit",
	})
	s.Add("window:"+chromeWin, &events.WindowEvent{
		Action:          events.WindowTitleChanged,
		WindowID:        chromeWin,
		Title:           "Checkout - Google Chrome",
		ApplicationName: "chrome.exe",
		ProcessID:       5200,
		URL:             "https://orders.example.com/checkout",
	})
	s.Wait(2 * time.Second)

	s.Step(10*time.Millisecond).Drag(canvas, events.Position{X: 100, Y: 200}, events.Position{X: 400, Y: 260}, 12)
	s.Step(80 * time.Millisecond)

	s.Add(canvas, &events.TextSelectionEvent{Text: "Quarterly plan summary", Length: 22, ApplicationName: "chrome.exe"})
	s.Hold(events.Modifiers{Ctrl: true}).Key(canvas, events.VKLetter('c'), "")
	s.Hold(events.Modifiers{})
	s.Add("", &events.ClipboardEvent{Action: events.ClipboardCopy, Content: "Quarterly plan summary", ContentSize: 22, Format: "text"})
	return s
}
