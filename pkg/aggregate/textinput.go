package aggregate

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

// pasteDominance is the share of inserted characters a single paste must
// contribute for a mixed session to still count as pasted.
const pasteDominance = 0.8

type textSession struct {
	ref       uia.Ref
	field     string
	fieldType string
	app       string

	text       []rune
	keystrokes int
	typed      int
	pasted     int
	autofilled int
	pastes     int
	maxPaste   int

	start time.Time
	last  time.Time
}

func (s *textSession) method() events.TextInputMethod {
	inserted := s.typed + s.pasted + s.autofilled
	switch {
	case s.autofilled > 0 && s.autofilled > s.typed+s.pasted:
		return events.InputAutoFilled
	case s.pastes == 0 && s.autofilled == 0:
		return events.InputTyped
	case s.typed == 0 && s.autofilled == 0:
		return events.InputPasted
	case s.pastes == 1 && s.autofilled == 0 && float64(s.maxPaste) >= pasteDominance*float64(inserted):
		return events.InputPasted
	default:
		return events.InputMixed
	}
}

// textInput collapses keystrokes and pastes into one TextInputCompletedEvent
// per element and session.
type textInput struct {
	p        *Pipeline
	sessions map[uia.Ref]*textSession
}

func newTextInput(p *Pipeline) *textInput {
	return &textInput{p: p, sessions: make(map[uia.Ref]*textSession)}
}

func textKey(ref uia.Ref) string { return "text:" + string(ref) }

// onKey handles a key press aimed at target. Emissions are the terminal
// events of sessions the press closes.
func (t *textInput) onKey(out []Emission, at time.Time, target uia.Ref, ev *events.KeyboardEvent, mods events.Modifiers) []Emission {
	if !ev.IsKeyDown || events.IsModifierKey(ev.KeyCode) {
		return out
	}
	if mods.Any() && !isAltGrText(ev, mods) {
		return out
	}
	out = t.flushOthers(out, at, target, events.FlushFocusLost)
	s := t.sessions[target]

	switch ev.KeyCode {
	case events.VKBack:
		if s != nil {
			if n := len(s.text); n > 0 {
				s.text = s.text[:n-1]
			}
			s.keystrokes++
			t.touch(s, at)
		}
		return out
	case events.VKDelete:
		if s != nil {
			s.keystrokes++
			t.touch(s, at)
		}
		return out
	case events.VKReturn, events.VKTab:
		if s != nil {
			s.keystrokes++
			s.last = at
			out = t.flush(out, s, at, events.FlushCommitKey)
		}
		return out
	case events.VKEscape:
		return out
	}

	char := printable(ev.Character)
	if char == "" {
		return out
	}
	if s == nil {
		if s = t.open(at, target); s == nil {
			return out
		}
	}
	s.text = append(s.text, []rune(char)...)
	s.typed += utf8.RuneCountInString(char)
	s.keystrokes++
	t.touch(s, at)
	return out
}

// onPaste handles clipboard content pasted into target.
func (t *textInput) onPaste(out []Emission, at time.Time, target uia.Ref, content string) []Emission {
	if content == "" {
		return out
	}
	out = t.flushOthers(out, at, target, events.FlushFocusLost)
	s := t.sessions[target]
	if s == nil {
		if s = t.open(at, target); s == nil {
			return out
		}
	}
	n := utf8.RuneCountInString(content)
	s.text = append(s.text, []rune(content)...)
	s.pasted += n
	s.pastes++
	if n > s.maxPaste {
		s.maxPaste = n
	}
	s.keystrokes++
	t.touch(s, at)
	return out
}

// onValueChange reconciles a tracked element's value property. Growth the
// keystrokes do not explain is attributed to autofill.
func (t *textInput) onValueChange(at time.Time, ref uia.Ref, ev *events.UIPropertyChangedEvent) {
	s := t.sessions[ref]
	if s == nil || !isValueProperty(ev.PropertyName) {
		return
	}
	next := []rune(ev.NewValue)
	if string(next) == string(s.text) {
		return
	}
	if grown := len(next) - len(s.text); grown > 0 {
		s.autofilled += grown
	}
	s.text = next
	t.touch(s, at)
}

// onFocus flushes every session not bound to the newly focused element.
func (t *textInput) onFocus(out []Emission, at time.Time, focused uia.Ref) []Emission {
	return t.flushOthers(out, at, focused, events.FlushFocusLost)
}

func (t *textInput) open(at time.Time, target uia.Ref) *textSession {
	if t.p.private() {
		return nil
	}
	s := &textSession{ref: target, start: at, last: at, app: t.p.fg.display}
	role := ""
	if target == t.p.focus.ref {
		role, s.field = t.p.focus.role, t.p.focus.name
		if t.p.focus.app != "" {
			s.app = t.p.focus.app
		}
	}
	if info := t.p.describe(target); info != nil {
		if info.Role != "" {
			role = info.Role
		}
		if info.Name != "" {
			s.field = info.Name
		}
	}
	if !uia.IsEditable(role) {
		return nil
	}
	s.fieldType = role
	t.sessions[target] = s
	return s
}

func (t *textInput) tracking(ref uia.Ref) bool {
	_, ok := t.sessions[ref]
	return ok
}

func (t *textInput) touch(s *textSession, at time.Time) {
	s.last = at
	t.p.timers.schedule(textKey(s.ref), at.Add(t.p.opts.TextInputTimeout))
}

func (t *textInput) flushOthers(out []Emission, at time.Time, keep uia.Ref, reason string) []Emission {
	for _, s := range t.ordered() {
		if s.ref != keep {
			out = t.flush(out, s, at, reason)
		}
	}
	return out
}

// flushAll closes every open session, oldest first.
func (t *textInput) flushAll(out []Emission, at time.Time, reason string) []Emission {
	for _, s := range t.ordered() {
		out = t.flush(out, s, at, reason)
	}
	return out
}

// expire handles a fired inactivity deadline.
func (t *textInput) expire(out []Emission, at time.Time, ref uia.Ref) []Emission {
	if s := t.sessions[ref]; s != nil {
		out = t.flush(out, s, at, events.FlushTimeout)
	}
	return out
}

func (t *textInput) ordered() []*textSession {
	out := make([]*textSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].start.Equal(out[j].start) {
			return out[i].ref < out[j].ref
		}
		return out[i].start.Before(out[j].start)
	})
	return out
}

func (t *textInput) flush(out []Emission, s *textSession, at time.Time, reason string) []Emission {
	delete(t.sessions, s.ref)
	t.p.timers.cancel(textKey(s.ref))

	value := string(s.text)
	if current, ok := t.p.elementText(s.ref); ok && current != "" {
		value = current
	}
	if isSecret(s.fieldType, s.field) {
		value = strings.Repeat("*", utf8.RuneCountInString(value))
	}
	if value == "" && !t.p.opts.EmitEmptyTextInput {
		t.p.stats.EmptyTextSuppressed++
		return out
	}

	return t.p.emit(out, at, s.ref, &events.TextInputCompletedEvent{
		TextValue:        value,
		FieldName:        s.field,
		FieldType:        s.fieldType,
		InputMethod:      s.method(),
		TypingDurationMs: s.last.Sub(s.start).Milliseconds(),
		KeystrokeCount:   s.keystrokes,
		ApplicationName:  s.app,
		FlushReason:      reason,
	})
}

func printable(s string) string {
	if s == "" {
		return ""
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return ""
		}
	}
	return s
}

func isValueProperty(name string) bool {
	switch strings.ToLower(name) {
	case "value", "axvalue", "valuevalue", "text":
		return true
	}
	return false
}

func isSecret(fieldType, field string) bool {
	ft := strings.ToLower(fieldType)
	return strings.Contains(ft, "password") || strings.Contains(ft, "secure") ||
		strings.Contains(strings.ToLower(field), "password")
}
