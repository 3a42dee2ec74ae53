package aggregate

import (
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

// Windows within which recent input explains a later change.
const (
	shortcutWindow  = 2 * time.Second
	startMenuWindow = 5 * time.Second
	clickWindow     = time.Second
	doubleClickGap  = 500 * time.Millisecond
	selectionWindow = time.Second
	addressWindow   = 3 * time.Second
)

type keyPress struct {
	at   time.Time
	code uint32
	ref  uia.Ref
	mods events.Modifiers
}

type click struct {
	at     time.Time
	ref    uia.Ref
	info   *uia.Info
	button events.MouseButton
	mods   events.Modifiers
	pos    events.Position
}

// inputState is the recent-input history shared by the aggregators that
// classify how a change happened.
type inputState struct {
	track bool
	held  events.Modifiers

	lastKey    keyPress
	lastHotkey struct {
		at    time.Time
		combo string
	}
	altTabAt   time.Time
	winDigitAt time.Time
	winTapAt   time.Time
	winDown    bool
	winUsed    bool
	keyNavAt   time.Time

	lastClick   click
	prevDownAt  time.Time
	prevDownPos events.Position
	doubleAt    time.Time
	pointerDown bool
	movedDown   bool
	lastUpAt    time.Time
	lastUpMoved bool
}

// key records a key transition and returns the effective modifiers.
func (s *inputState) key(at time.Time, ref uia.Ref, ev *events.KeyboardEvent) events.Modifiers {
	if s.track && events.IsModifierKey(ev.KeyCode) {
		s.trackModifier(at, ev)
	}
	mods := ev.Modifiers
	if s.track {
		mods.Ctrl = mods.Ctrl || s.held.Ctrl
		mods.Alt = mods.Alt || s.held.Alt
		mods.Shift = mods.Shift || s.held.Shift
		mods.Win = mods.Win || s.held.Win
	}
	if !ev.IsKeyDown || events.IsModifierKey(ev.KeyCode) {
		return mods
	}

	if s.winDown {
		s.winUsed = true
	}
	s.lastKey = keyPress{at: at, code: ev.KeyCode, ref: ref, mods: mods}
	switch {
	case mods.Alt && ev.KeyCode == events.VKTab:
		s.altTabAt = at
	case mods.Win && ev.KeyCode >= events.VK0 && ev.KeyCode <= events.VK9:
		s.winDigitAt = at
	}
	if (mods.Shift && events.IsNavigationKey(ev.KeyCode)) || (mods.Ctrl && ev.KeyCode == events.VKLetter('a')) {
		s.keyNavAt = at
	}
	return mods
}

func (s *inputState) trackModifier(at time.Time, ev *events.KeyboardEvent) {
	down := ev.IsKeyDown
	switch ev.KeyCode {
	case events.VKControl, events.VKLControl, events.VKRControl:
		s.held.Ctrl = down
	case events.VKMenu, events.VKLMenu, events.VKRMenu:
		s.held.Alt = down
	case events.VKShift, events.VKLShift, events.VKRShift:
		s.held.Shift = down
	case events.VKLWin, events.VKRWin:
		s.held.Win = down
		if down {
			s.winDown, s.winUsed = true, false
		} else {
			if s.winDown && !s.winUsed {
				s.winTapAt = at
			}
			s.winDown = false
		}
	}
}

func (s *inputState) hotkey(at time.Time, combo string) {
	s.lastHotkey.at = at
	s.lastHotkey.combo = combo
}

// mouse records a pointer transition. info is the resolved element under a
// button press, if any.
func (s *inputState) mouse(at time.Time, ref uia.Ref, ev *events.MouseEvent, info *uia.Info) {
	switch ev.Type {
	case events.MouseDown:
		if s.winDown {
			s.winUsed = true
		}
		if at.Sub(s.prevDownAt) <= doubleClickGap && s.prevDownPos == ev.Position {
			s.doubleAt = at
		}
		s.prevDownAt, s.prevDownPos = at, ev.Position
		s.pointerDown, s.movedDown = true, false
		s.lastClick = click{at: at, ref: ref, info: info, button: ev.Button, mods: ev.Modifiers, pos: ev.Position}
	case events.MouseDoubleClick:
		s.doubleAt = at
	case events.MouseMove:
		if s.pointerDown {
			s.movedDown = true
		}
	case events.MouseUp:
		s.lastUpAt = at
		s.lastUpMoved = s.movedDown
		s.pointerDown, s.movedDown = false, false
	}
}

func within(at, since time.Time, d time.Duration) bool {
	return !since.IsZero() && !at.Before(since) && at.Sub(since) <= d
}

// selectionMethod guesses how a selection reported at at was made.
func (s *inputState) selectionMethod(at time.Time) events.SelectionMethod {
	switch {
	case s.pointerDown && s.movedDown, within(at, s.lastUpAt, doubleClickGap) && s.lastUpMoved:
		return events.SelectionMouseDrag
	case within(at, s.doubleAt, doubleClickGap):
		return events.SelectionDoubleClick
	case within(at, s.keyNavAt, selectionWindow):
		return events.SelectionKeyboard
	default:
		return events.SelectionUnknown
	}
}
