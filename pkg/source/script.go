package source

import (
	"context"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

// Script builds a timed sequence of raw events. Each helper appends at the
// script's cursor and moves the cursor forward by the configured step.
type Script struct {
	cursor time.Time
	step   time.Duration
	events []events.RawEvent
	mods   events.Modifiers
}

// NewScript starts a script at start with a default 50ms gap between events.
func NewScript(start time.Time) *Script {
	return &Script{cursor: start, step: 50 * time.Millisecond}
}

// Step sets the gap inserted after each appended event.
func (s *Script) Step(d time.Duration) *Script {
	s.step = d
	return s
}

// Wait moves the cursor forward without emitting anything.
func (s *Script) Wait(d time.Duration) *Script {
	s.cursor = s.cursor.Add(d)
	return s
}

// Now returns the cursor.
func (s *Script) Now() time.Time { return s.cursor }

// Add appends an arbitrary payload targeting ref.
func (s *Script) Add(ref uia.Ref, p events.Payload) *Script {
	s.events = append(s.events, events.RawEvent{Timestamp: s.cursor, Element: ref, Payload: p})
	s.cursor = s.cursor.Add(s.step)
	return s
}

// Window reports app's window gaining the foreground.
func (s *Script) Window(app string, pid int32, windowID, title string, hint events.ApplicationSwitchMethod) *Script {
	return s.Add(uia.Ref("window:"+windowID), &events.WindowEvent{
		Action:          events.WindowFocused,
		WindowID:        windowID,
		Title:           title,
		ApplicationName: app,
		ProcessID:       pid,
		SwitchHint:      hint,
	})
}

// Focus moves keyboard focus to ref inside app.
func (s *Script) Focus(ref uia.Ref, app, role, name string) *Script {
	return s.Add(ref, &events.UIFocusChangedEvent{ApplicationName: app, Role: role, Name: name})
}

// Hold sets the modifiers attached to subsequent key and pointer events.
func (s *Script) Hold(m events.Modifiers) *Script {
	s.mods = m
	return s
}

// Key appends a down/up pair for code with the held modifiers.
func (s *Script) Key(ref uia.Ref, code uint32, char string) *Script {
	s.Add(ref, &events.KeyboardEvent{KeyCode: code, Character: char, IsKeyDown: true, Modifiers: s.mods})
	return s.Add(ref, &events.KeyboardEvent{KeyCode: code, IsKeyDown: false, Modifiers: s.mods})
}

// Type appends one key press per rune of text.
func (s *Script) Type(ref uia.Ref, text string) *Script {
	for _, r := range text {
		code := events.VKLetter(r)
		switch {
		case r == ' ':
			code = events.VKSpace
		case r == '\n':
			s.Key(ref, events.VKReturn, "")
			continue
		case (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9'):
			code = 0
		}
		s.Key(ref, code, string(r))
	}
	return s
}

// Backspace appends n backspace presses.
func (s *Script) Backspace(ref uia.Ref, n int) *Script {
	for i := 0; i < n; i++ {
		s.Key(ref, events.VKBack, "")
	}
	return s
}

// Paste appends a clipboard paste of text into ref.
func (s *Script) Paste(ref uia.Ref, text string) *Script {
	return s.Add(ref, &events.ClipboardEvent{Action: events.ClipboardPaste, Content: text, ContentSize: len([]rune(text)), Format: "text"})
}

// Click appends a left down/up pair at (x, y) on ref.
func (s *Script) Click(ref uia.Ref, x, y int) *Script {
	pos := events.Position{X: x, Y: y}
	s.Add(ref, &events.MouseEvent{Type: events.MouseDown, Button: events.ButtonLeft, Position: pos, Modifiers: s.mods})
	return s.Add(ref, &events.MouseEvent{Type: events.MouseUp, Button: events.ButtonLeft, Position: pos, Modifiers: s.mods})
}

// Drag appends a left-button press at from, steps moves toward to, and a
// release at to.
func (s *Script) Drag(ref uia.Ref, from, to events.Position, steps int) *Script {
	s.Add(ref, &events.MouseEvent{Type: events.MouseDown, Button: events.ButtonLeft, Position: from})
	for i := 1; i <= steps; i++ {
		p := events.Position{
			X: from.X + (to.X-from.X)*i/steps,
			Y: from.Y + (to.Y-from.Y)*i/steps,
		}
		s.Add(ref, &events.MouseEvent{Type: events.MouseMove, Position: p})
	}
	return s.Add(ref, &events.MouseEvent{Type: events.MouseUp, Button: events.ButtonLeft, Position: to})
}

// Events returns a copy of the scripted events.
func (s *Script) Events() []events.RawEvent {
	return append([]events.RawEvent(nil), s.events...)
}

// ReplayOptions controls how a script or recording is played back.
type ReplayOptions struct {
	// Pace sleeps between events to reproduce the recorded gaps and rebases
	// timestamps onto Clock. Without it events are emitted back to back
	// with their original timestamps.
	Pace bool
	// Hold keeps the stream open after the last event until the context is
	// cancelled, so the recording continues like a live backend.
	Hold  bool
	Clock func() time.Time
}

// Source returns a Source that replays the script.
func (s *Script) Source(opts ReplayOptions) Source {
	evs := s.Events()
	return StreamFunc(func(ctx context.Context, emit func(events.RawEvent)) error {
		return play(ctx, evs, opts, emit)
	})
}

func play(ctx context.Context, evs []events.RawEvent, opts ReplayOptions, emit func(events.RawEvent)) error {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	var origin, base time.Time
	if len(evs) > 0 {
		origin = evs[0].Timestamp
		base = clock()
	}
	for _, ev := range evs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.Pace {
			offset := ev.Timestamp.Sub(origin)
			ev.Timestamp = base.Add(offset)
			if wait := ev.Timestamp.Sub(clock()); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}
		emit(ev)
	}
	if opts.Hold {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}
