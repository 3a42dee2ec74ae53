package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/source"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

func switches(out []Emission) ([]*events.ApplicationSwitchEvent, []time.Time) {
	var evs []*events.ApplicationSwitchEvent
	var at []time.Time
	for _, e := range ofKind(out, events.KindApplicationSwitch) {
		evs = append(evs, e.Payload.(*events.ApplicationSwitchEvent))
		at = append(at, e.Timestamp)
	}
	return evs, at
}

func TestDwellTimeBetweenSwitches(t *testing.T) {
	p := New(DefaultOptions())
	s := source.NewScript(base)
	s.Window("notepad.exe", 10, "w1", "Notes", "")
	s.Wait(3 * time.Second)
	s.Window("chrome.exe", 20, "w2", "Inbox", "")
	s.Window("chrome.exe", 20, "w3", "Docs", "")
	s.Focus("chrome:page", "chrome.exe", "document", "Docs")
	s.Wait(5 * time.Second)
	s.Window("Notepad.exe", 10, "w1", "Notes", "")
	out := run(p, s.Events())

	evs, at := switches(out)
	require.Len(t, evs, 3)
	require.Nil(t, evs[0].DwellTimeMs)
	require.Empty(t, evs[0].FromApplication)
	require.Equal(t, "notepad.exe", evs[0].ToApplication)
	for k := 1; k < len(evs); k++ {
		require.NotNil(t, evs[k].DwellTimeMs)
		require.Equal(t, at[k].Sub(at[k-1]).Milliseconds(), *evs[k].DwellTimeMs)
		require.Equal(t, k+1, evs[k].SwitchCount)
	}
	require.Equal(t, "chrome.exe", evs[2].FromApplication)
	require.Equal(t, int32(20), evs[2].FromProcessID)
}

func TestSwitchMethodClassification(t *testing.T) {
	reg := uia.NewMemoryRegistry()
	reg.Put("taskbar:chrome", uia.NewStaticElement("button", "Google Chrome", "explorer.exe"))
	reg.Put("notepad:edit", uia.NewStaticElement("edit", "Body", "notepad.exe"))
	opts := DefaultOptions()
	opts.Registry = reg
	p := New(opts)

	s := source.NewScript(base)
	s.Window("notepad.exe", 10, "w1", "Notes", "")

	s.Hold(events.Modifiers{Alt: true}).Key("", events.VKTab, "")
	s.Hold(events.Modifiers{})
	s.Window("chrome.exe", 20, "w2", "Inbox", "")

	s.Wait(3 * time.Second)
	s.Click("notepad:edit", 10, 10)
	s.Window("notepad.exe", 10, "w1", "Notes", "")

	s.Wait(3 * time.Second)
	s.Click("taskbar:chrome", 500, 1060)
	s.Window("chrome.exe", 20, "w2", "Inbox", "")

	s.Wait(6 * time.Second)
	s.Key("", events.VKLWin, "")
	s.Window("explorer.exe", 30, "w4", "Start", "")

	s.Wait(6 * time.Second)
	s.Hold(events.Modifiers{Win: true}).Key("", events.VK0+2, "")
	s.Hold(events.Modifiers{})
	s.Window("outlook.exe", 40, "w5", "Mail", "")

	s.Wait(6 * time.Second)
	s.Window("notepad.exe", 10, "w1", "Notes", "")

	s.Wait(6 * time.Second)
	s.Window("chrome.exe", 20, "w2", "Inbox", events.SwitchTaskbarClick)
	out := run(p, s.Events())

	evs, _ := switches(out)
	got := make([]events.ApplicationSwitchMethod, 0, len(evs))
	for _, ev := range evs {
		got = append(got, ev.SwitchMethod)
	}
	require.Equal(t, []events.ApplicationSwitchMethod{
		events.SwitchOther,
		events.SwitchAltTab,
		events.SwitchWindowClick,
		events.SwitchTaskbarClick,
		events.SwitchStartMenu,
		events.SwitchWindowsKeyShortcut,
		events.SwitchOther,
		events.SwitchTaskbarClick,
	}, got)
}

type staticResolver map[int32]string

func (r staticResolver) Name(pid int32) (string, error) {
	if name, ok := r[pid]; ok {
		return name, nil
	}
	return "", uia.ErrElementUnavailable
}

func TestResolverFillsMissingNames(t *testing.T) {
	opts := DefaultOptions()
	opts.Resolver = staticResolver{7: "code.exe"}
	p := New(opts)

	s := source.NewScript(base)
	s.Window("", 7, "w1", "main.go", "")
	s.Window("", 8, "w2", "", "")
	out := run(p, s.Events())

	evs, _ := switches(out)
	require.Len(t, evs, 2)
	require.Equal(t, "code.exe", evs[0].ToApplication)
	require.Empty(t, evs[1].ToApplication)
	require.Equal(t, int32(8), evs[1].ToProcessID)
}

func TestNamelessEventsFromForegroundProcessDoNotSwitch(t *testing.T) {
	p := New(DefaultOptions())
	s := source.NewScript(base)
	s.Window("notepad.exe", 10, "w1", "Notes", "")
	s.Add("notepad:edit", &events.UIFocusChangedEvent{ProcessID: 10, Role: "edit"})
	s.Add("", &events.WindowEvent{Action: events.WindowFocused, ProcessID: 10, WindowID: "w1"})
	s.Add("", &events.WindowEvent{Action: events.WindowTitleChanged, ProcessID: 10, WindowID: "w1", Title: "Notes*"})
	s.Add("", &events.UIFocusChangedEvent{ProcessID: 11, Role: "pane"})
	out := run(p, s.Events())

	evs, _ := switches(out)
	require.Len(t, evs, 2)
	require.Equal(t, "notepad.exe", evs[0].ToApplication)
	require.Equal(t, "notepad.exe", evs[1].FromApplication)
	require.Equal(t, int32(11), evs[1].ToProcessID)
}
