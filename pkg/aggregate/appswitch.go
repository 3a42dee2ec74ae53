package aggregate

import (
	"strings"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
)

// appSwitch tracks the foreground application and reports each change once.
type appSwitch struct {
	seen    bool
	current string
	display string
	pid     int32
	since   time.Time
	count   int
}

// observe reports foreground identity id (shown as display) at at. It
// returns nil when the foreground application did not change.
func (a *appSwitch) observe(at time.Time, id, display string, pid int32, hint events.ApplicationSwitchMethod, in *inputState) *events.ApplicationSwitchEvent {
	if id == "" || (a.seen && id == a.current) {
		return nil
	}
	ev := &events.ApplicationSwitchEvent{
		FromApplication: a.display,
		ToApplication:   display,
		FromProcessID:   a.pid,
		ToProcessID:     pid,
		SwitchMethod:    switchMethod(at, hint, in),
		SwitchCount:     a.count + 1,
	}
	if a.seen {
		dwell := at.Sub(a.since).Milliseconds()
		ev.DwellTimeMs = &dwell
	}
	a.seen = true
	a.current, a.display, a.pid = id, display, pid
	a.since = at
	a.count++
	return ev
}

func switchMethod(at time.Time, hint events.ApplicationSwitchMethod, in *inputState) events.ApplicationSwitchMethod {
	if hint != "" {
		return hint
	}
	switch {
	case within(at, in.altTabAt, shortcutWindow):
		return events.SwitchAltTab
	case within(at, in.winDigitAt, shortcutWindow):
		return events.SwitchWindowsKeyShortcut
	case within(at, in.winTapAt, startMenuWindow):
		return events.SwitchStartMenu
	case within(at, in.lastClick.at, clickWindow):
		if isTaskbar(in.lastClick) {
			return events.SwitchTaskbarClick
		}
		return events.SwitchWindowClick
	default:
		return events.SwitchOther
	}
}

func isTaskbar(c click) bool {
	if c.info == nil {
		return false
	}
	app := events.NormalizeApplication(c.info.ApplicationName)
	return (app == "explorer" || app == "dock") && strings.Contains(strings.ToLower(c.info.Role), "button")
}
