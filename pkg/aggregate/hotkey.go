package aggregate

import (
	"fmt"
	"time"
	"unicode"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
)

// repeatWindow bounds how long a held key suppresses repeats when its
// release was never observed.
const repeatWindow = time.Second

type hotkeyAction struct {
	action string
	global bool
}

var hotkeyTable = map[string]hotkeyAction{
	"Ctrl+C":          {action: "copy"},
	"Ctrl+X":          {action: "cut"},
	"Ctrl+V":          {action: "paste"},
	"Ctrl+Z":          {action: "undo"},
	"Ctrl+Y":          {action: "redo"},
	"Ctrl+Shift+Z":    {action: "redo"},
	"Ctrl+A":          {action: "select_all"},
	"Ctrl+S":          {action: "save"},
	"Ctrl+Shift+S":    {action: "save_as"},
	"Ctrl+O":          {action: "open"},
	"Ctrl+N":          {action: "new"},
	"Ctrl+P":          {action: "print"},
	"Ctrl+F":          {action: "find"},
	"Ctrl+H":          {action: "replace"},
	"Ctrl+T":          {action: "new_tab"},
	"Ctrl+W":          {action: "close_tab"},
	"Ctrl+Shift+T":    {action: "reopen_closed_tab"},
	"Ctrl+Tab":        {action: "next_tab"},
	"Ctrl+Shift+Tab":  {action: "previous_tab"},
	"Ctrl+PageDown":   {action: "next_tab"},
	"Ctrl+PageUp":     {action: "previous_tab"},
	"Ctrl+L":          {action: "focus_address_bar"},
	"Ctrl+R":          {action: "reload"},
	"Alt+Left":        {action: "navigate_back"},
	"Alt+Right":       {action: "navigate_forward"},
	"Alt+Tab":         {action: "switch_application", global: true},
	"Alt+Shift+Tab":   {action: "switch_application", global: true},
	"Alt+F4":          {action: "close_window", global: true},
	"Win+D":           {action: "show_desktop", global: true},
	"Win+E":           {action: "file_explorer", global: true},
	"Win+R":           {action: "run_dialog", global: true},
	"Win+L":           {action: "lock_screen", global: true},
	"Win+Tab":         {action: "task_view", global: true},
	"Ctrl+Shift+Esc":  {action: "task_manager", global: true},
	"Ctrl+Alt+Delete": {action: "secure_attention", global: true},
}

func init() {
	for i := 1; i <= 8; i++ {
		hotkeyTable[fmt.Sprintf("Ctrl+%d", i)] = hotkeyAction{action: fmt.Sprintf("select_tab_%d", i)}
	}
	hotkeyTable["Ctrl+9"] = hotkeyAction{action: "select_last_tab"}
	for i := 1; i <= 9; i++ {
		hotkeyTable[fmt.Sprintf("Win+%d", i)] = hotkeyAction{action: fmt.Sprintf("launch_taskbar_%d", i), global: true}
	}
}

// isAltGrText reports whether Ctrl+Alt with a non-alphanumeric character
// is really AltGr producing text.
func isAltGrText(ev *events.KeyboardEvent, mods events.Modifiers) bool {
	if !mods.Ctrl || !mods.Alt || mods.Win || ev.Character == "" {
		return false
	}
	for _, r := range ev.Character {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}

// hotkeyDetector turns modifier+key presses into HotkeyEvents, one per
// physical press.
type hotkeyDetector struct {
	held map[uint32]time.Time
}

func newHotkeyDetector() *hotkeyDetector {
	return &hotkeyDetector{held: make(map[uint32]time.Time)}
}

func (h *hotkeyDetector) onKey(at time.Time, ev *events.KeyboardEvent, mods events.Modifiers) *events.HotkeyEvent {
	if !ev.IsKeyDown {
		delete(h.held, ev.KeyCode)
		return nil
	}
	if events.IsModifierKey(ev.KeyCode) || !mods.Any() || isAltGrText(ev, mods) {
		return nil
	}
	if prev, ok := h.held[ev.KeyCode]; ok && at.Sub(prev) < repeatWindow {
		h.held[ev.KeyCode] = at
		return nil
	}
	h.held[ev.KeyCode] = at

	combo := events.Combination(mods, ev.KeyCode)
	known := hotkeyTable[combo]
	return &events.HotkeyEvent{Combination: combo, Action: known.action, IsGlobal: known.global}
}
