// Package aggregate collapses the ordered raw event stream into semantic
// workflow events.
//
// A Pipeline is single threaded: the recorder feeds it raw events in
// dispatch order and calls Advance periodically so inactivity deadlines fire
// even when input stops. Each call returns the emissions it caused in output
// order. Sessions that a raw event closes are emitted before that event;
// events derived from it are emitted after.
package aggregate

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

// Emission is one event leaving the pipeline, before the merger stamps it.
type Emission struct {
	Timestamp time.Time
	Element   uia.Ref
	Payload   events.Payload
}

// NameResolver maps a process id to an application name.
type NameResolver interface {
	Name(pid int32) (string, error)
}

// Options configures a Pipeline.
type Options struct {
	// PassThrough lists the raw kinds forwarded to the output unchanged.
	PassThrough map[events.Kind]bool

	TextInput         bool
	ApplicationSwitch bool
	BrowserTab        bool
	DragDrop          bool
	Hotkeys           bool

	TextInputTimeout   time.Duration
	EmitEmptyTextInput bool

	MaxClipboardLength  int
	MaxSelectionLength  int
	TrackModifierStates bool
	MouseMoveThrottle   time.Duration
	MinDragDistance     float64
	BrowserSettle       time.Duration

	// Registry resolves element references. Nil disables element lookups.
	Registry uia.Registry
	Resolver NameResolver

	Privacy  events.PrivacyPolicy
	Redactor events.Redactor
	Logger   *slog.Logger
}

// DefaultOptions enables every aggregator and passes every raw kind through.
func DefaultOptions() Options {
	pass := make(map[events.Kind]bool)
	for _, k := range events.RawKinds() {
		pass[k] = true
	}
	return Options{
		PassThrough:         pass,
		TextInput:           true,
		ApplicationSwitch:   true,
		BrowserTab:          true,
		DragDrop:            true,
		Hotkeys:             true,
		TextInputTimeout:    2 * time.Second,
		MaxClipboardLength:  2048,
		MaxSelectionLength:  512,
		TrackModifierStates: true,
		MouseMoveThrottle:   100 * time.Millisecond,
		MinDragDistance:     5,
		BrowserSettle:       500 * time.Millisecond,
	}
}

// RequiredKinds returns the raw kinds the pipeline must receive: the
// pass-through kinds plus whatever the enabled aggregators consume.
func (o Options) RequiredKinds() map[events.Kind]bool {
	kinds := make(map[events.Kind]bool)
	for k, on := range o.PassThrough {
		if on {
			kinds[k] = true
		}
	}
	add := func(ks ...events.Kind) {
		for _, k := range ks {
			kinds[k] = true
		}
	}
	if o.TextInput {
		add(events.KindKeyboard, events.KindClipboard, events.KindUIFocusChanged, events.KindWindow, events.KindUIPropertyChanged)
	}
	if o.ApplicationSwitch {
		add(events.KindWindow, events.KindUIFocusChanged, events.KindKeyboard, events.KindMouse)
	}
	if o.BrowserTab {
		add(events.KindWindow, events.KindUIPropertyChanged, events.KindKeyboard, events.KindMouse)
	}
	if o.DragDrop {
		add(events.KindMouse)
	}
	if o.Hotkeys {
		add(events.KindKeyboard)
	}
	return kinds
}

// Stats are pipeline counters.
type Stats struct {
	Processed           uint64 `json:"processed"`
	Emitted             uint64 `json:"emitted"`
	Throttled           uint64 `json:"throttled"`
	PrivateDropped      uint64 `json:"private_dropped"`
	EmptyTextSuppressed uint64 `json:"empty_text_suppressed"`
	ElementFailures     uint64 `json:"element_failures"`
	PendingDeadlines    int    `json:"pending_deadlines"`
	OpenTextSessions    int    `json:"open_text_sessions"`
}

type foreground struct {
	app     string
	display string
	pid     int32
	window  string
	url     string
}

type focusState struct {
	ref  uia.Ref
	role string
	name string
	app  string
}

// Pipeline runs every aggregator over one ordered raw stream.
type Pipeline struct {
	opts   Options
	logger *slog.Logger

	timers   *timers
	input    inputState
	text     *textInput
	apps     appSwitch
	tabs     *browserTabs
	drag     *dragDrop
	hotkeys  *hotkeyDetector
	throttle *mouseThrottle

	fg    foreground
	focus focusState
	now   time.Time
	stats Stats
}

// New constructs a pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.TextInputTimeout <= 0 {
		opts.TextInputTimeout = 2 * time.Second
	}
	if opts.BrowserSettle <= 0 {
		opts.BrowserSettle = 500 * time.Millisecond
	}
	p := &Pipeline{
		opts:     opts,
		logger:   logger.With("component", "aggregate"),
		timers:   newTimers(),
		hotkeys:  newHotkeyDetector(),
		throttle: newMouseThrottle(opts.MouseMoveThrottle),
	}
	p.input.track = opts.TrackModifierStates
	p.text = newTextInput(p)
	p.tabs = newBrowserTabs(p)
	p.drag = newDragDrop(p)
	return p
}

// Process consumes one raw event. Timestamps that run backwards are clamped
// to the latest time seen.
func (p *Pipeline) Process(raw events.RawEvent) []Emission {
	at := raw.Timestamp
	if at.Before(p.now) {
		at = p.now
	}
	out := p.advance(nil, at)
	p.now = at
	p.stats.Processed++

	ref := raw.Element
	switch ev := raw.Payload.(type) {
	case *events.KeyboardEvent:
		out = p.onKeyboard(out, at, ref, ev)
	case *events.MouseEvent:
		out = p.onMouse(out, at, ref, ev)
	case *events.ClipboardEvent:
		out = p.onClipboard(out, at, ref, ev)
	case *events.TextSelectionEvent:
		out = p.onSelection(out, at, ref, ev)
	case *events.WindowEvent:
		out = p.onWindow(out, at, ref, ev)
	case *events.UIFocusChangedEvent:
		out = p.onFocus(out, at, ref, ev)
	case *events.UIPropertyChangedEvent:
		out = p.onProperty(out, at, ref, ev)
	case *events.UIStructureChangedEvent:
		out = p.passThrough(out, at, ref, ev)
	default:
		p.logger.Warn("unhandled raw event", "kind", string(raw.Kind()))
	}
	return out
}

// Advance fires every deadline at or before now.
func (p *Pipeline) Advance(now time.Time) []Emission {
	if now.Before(p.now) {
		return nil
	}
	out := p.advance(nil, now)
	p.now = now
	return out
}

// Flush fires due deadlines and then closes every open session, pending
// navigation, and in-progress drag. The pipeline is left idle.
func (p *Pipeline) Flush(now time.Time) []Emission {
	if now.Before(p.now) {
		now = p.now
	}
	out := p.advance(nil, now)
	p.now = now
	out = p.text.flushAll(out, now, events.FlushStopped)
	out = p.tabs.settleAll(out, now)
	out = p.drag.abandon(out, now)
	p.timers.reset()
	return out
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	s := p.stats
	s.PendingDeadlines = p.timers.pending()
	s.OpenTextSessions = len(p.text.sessions)
	return s
}

func (p *Pipeline) advance(out []Emission, now time.Time) []Emission {
	for _, d := range p.timers.due(now) {
		switch {
		case strings.HasPrefix(d.key, "text:"):
			out = p.text.expire(out, d.at, uia.Ref(strings.TrimPrefix(d.key, "text:")))
		case strings.HasPrefix(d.key, "tab:"):
			out = p.tabs.settle(out, d.at, strings.TrimPrefix(d.key, "tab:"))
		}
	}
	return out
}

func (p *Pipeline) onKeyboard(out []Emission, at time.Time, ref uia.Ref, ev *events.KeyboardEvent) []Emission {
	mods := p.input.key(at, ref, ev)
	if p.opts.TextInput {
		if target := p.target(ref); !target.IsZero() {
			out = p.text.onKey(out, at, target, ev, mods)
		}
	}
	out = p.passThrough(out, at, ref, ev)
	if hk := p.hotkeys.onKey(at, ev, mods); hk != nil {
		p.input.hotkey(at, hk.Combination)
		if p.opts.Hotkeys && !p.private() {
			out = p.emit(out, at, ref, hk)
		}
	}
	return out
}

func (p *Pipeline) onMouse(out []Emission, at time.Time, ref uia.Ref, ev *events.MouseEvent) []Emission {
	var info *uia.Info
	if ev.Type == events.MouseDown {
		info = p.describe(ref)
	}
	p.input.mouse(at, ref, ev, info)
	if p.opts.PassThrough[events.KindMouse] {
		if p.throttle.allow(at, ev) {
			out = p.passThrough(out, at, ref, ev)
		} else {
			p.stats.Throttled++
		}
	}
	if p.opts.DragDrop {
		out = p.drag.onMouse(out, at, ref, ev)
	}
	return out
}

func (p *Pipeline) onClipboard(out []Emission, at time.Time, ref uia.Ref, ev *events.ClipboardEvent) []Emission {
	if ev.Action == events.ClipboardPaste && p.opts.TextInput {
		if target := p.target(ref); !target.IsZero() {
			out = p.text.onPaste(out, at, target, ev.Content)
		}
	}
	return p.passThrough(out, at, ref, filterClipboard(ev, p.opts.MaxClipboardLength))
}

func (p *Pipeline) onSelection(out []Emission, at time.Time, ref uia.Ref, ev *events.TextSelectionEvent) []Emission {
	sel := filterSelection(ev, p.opts.MaxSelectionLength, p.input.selectionMethod(at))
	if sel.ApplicationName == "" {
		sel.ApplicationName = p.fg.display
	}
	return p.passThrough(out, at, ref, sel)
}

func (p *Pipeline) onWindow(out []Emission, at time.Time, ref uia.Ref, ev *events.WindowEvent) []Emission {
	// Redaction rewrites the payload in place once it is emitted.
	url, title := ev.URL, ev.Title
	switch ev.Action {
	case events.WindowFocused:
		id, display := p.identify(ev.ApplicationName, ev.ProcessID)
		if (id != p.fg.app || ev.WindowID != p.fg.window) && p.opts.TextInput {
			out = p.text.flushAll(out, at, events.FlushFocusLost)
		}
		fgURL := url
		if w := p.tabs.windows[ev.WindowID]; fgURL == "" && w != nil {
			fgURL = w.url
		}
		p.fg = foreground{app: id, display: display, pid: ev.ProcessID, window: ev.WindowID, url: fgURL}
		out = p.passThrough(out, at, ref, ev)
		out = p.switchApp(out, at, ref, ev.SwitchHint)
		p.observeBrowser(at, id, ev.WindowID, ref, url, title)
	case events.WindowTitleChanged:
		id, _ := p.identify(ev.ApplicationName, ev.ProcessID)
		if ev.WindowID == p.fg.window {
			if id == "" {
				id = p.fg.app
			}
			if url != "" {
				p.fg.url = url
			}
		}
		out = p.passThrough(out, at, ref, ev)
		p.observeBrowser(at, id, ev.WindowID, ref, url, title)
	case events.WindowClosed:
		if p.opts.BrowserTab {
			out = p.tabs.close(out, at, ev.WindowID)
		}
		out = p.passThrough(out, at, ref, ev)
	default:
		out = p.passThrough(out, at, ref, ev)
	}
	return out
}

func (p *Pipeline) onFocus(out []Emission, at time.Time, ref uia.Ref, ev *events.UIFocusChangedEvent) []Emission {
	if p.opts.TextInput {
		out = p.text.onFocus(out, at, ref)
	}
	p.focus = focusState{ref: ref, role: ev.Role, name: ev.Name, app: ev.ApplicationName}
	out = p.passThrough(out, at, ref, ev)

	if id, display := p.identify(ev.ApplicationName, ev.ProcessID); id != "" && id != p.fg.app {
		window := ev.WindowID
		if window == "" {
			window = p.fg.window
		}
		p.fg = foreground{app: id, display: display, pid: ev.ProcessID, window: window}
		out = p.switchApp(out, at, ref, "")
	}
	return out
}

func (p *Pipeline) onProperty(out []Emission, at time.Time, ref uia.Ref, ev *events.UIPropertyChangedEvent) []Emission {
	if p.opts.TextInput {
		p.text.onValueChange(at, ref, ev)
	}
	value := ev.NewValue
	out = p.passThrough(out, at, ref, ev)

	if !isValueProperty(ev.PropertyName) || !looksLikeURL(value) || p.text.tracking(ref) {
		return out
	}
	window := ev.WindowID
	if window == "" {
		window = p.fg.window
	}
	id := appIdentity(ev.ApplicationName, 0)
	if window == p.fg.window {
		if id == "" {
			id = p.fg.app
		}
		p.fg.url = value
	}
	p.observeBrowser(at, id, window, "", value, "")
	return out
}

func (p *Pipeline) switchApp(out []Emission, at time.Time, ref uia.Ref, hint events.ApplicationSwitchMethod) []Emission {
	if !p.opts.ApplicationSwitch {
		return out
	}
	id, display, pid := p.fg.app, p.fg.display, p.fg.pid
	if p.private() {
		id, display, pid = events.PrivateApplication, events.PrivateApplication, 0
	}
	ev := p.apps.observe(at, id, display, pid, hint, &p.input)
	if ev == nil {
		return out
	}
	return p.emit(out, at, ref, ev)
}

func (p *Pipeline) observeBrowser(at time.Time, app, windowID string, ref uia.Ref, url, title string) {
	if !p.opts.BrowserTab || windowID == "" || !isBrowser(app) || p.private() {
		return
	}
	p.tabs.observe(at, app, windowID, ref, url, title, &p.input)
}

func (p *Pipeline) passThrough(out []Emission, at time.Time, ref uia.Ref, ev events.Payload) []Emission {
	if !p.opts.PassThrough[ev.Kind()] {
		return out
	}
	if p.private() {
		p.stats.PrivateDropped++
		return out
	}
	return p.emit(out, at, ref, ev)
}

func (p *Pipeline) emit(out []Emission, at time.Time, ref uia.Ref, ev events.Payload) []Emission {
	if p.opts.Redactor.Enabled() {
		p.opts.Redactor.ApplyPayload(ev)
	}
	p.stats.Emitted++
	return append(out, Emission{Timestamp: at, Element: ref, Payload: ev})
}

// private reports whether the foreground context is excluded from the
// recording.
func (p *Pipeline) private() bool {
	return !p.opts.Privacy.Allows(p.fg.display, p.fg.url)
}

func (p *Pipeline) target(ref uia.Ref) uia.Ref {
	if ref.IsZero() {
		return p.focus.ref
	}
	return ref
}

func (p *Pipeline) describe(ref uia.Ref) *uia.Info {
	info, err := uia.Describe(p.opts.Registry, ref)
	if err != nil {
		p.stats.ElementFailures++
		p.logger.Debug("element unavailable", "ref", string(ref), "error", err)
		return nil
	}
	return info
}

func (p *Pipeline) elementText(ref uia.Ref) (string, bool) {
	if p.opts.Registry == nil || ref.IsZero() {
		return "", false
	}
	el, err := p.opts.Registry.Lookup(ref)
	if err == nil {
		var text string
		if text, err = el.Text(1); err == nil {
			return text, true
		}
	}
	p.stats.ElementFailures++
	p.logger.Debug("element text unavailable", "ref", string(ref), "error", err)
	return "", false
}

func (p *Pipeline) appName(name string, pid int32) string {
	if name != "" || pid == 0 || p.opts.Resolver == nil {
		return name
	}
	resolved, err := p.opts.Resolver.Name(pid)
	if err != nil {
		p.logger.Debug("resolve process name", "pid", pid, "error", err)
		return ""
	}
	return resolved
}

// identify returns the switch key and display name for an event's
// application. A nameless event from the foreground process keeps the
// foreground identity.
func (p *Pipeline) identify(name string, pid int32) (id, display string) {
	display = p.appName(name, pid)
	if display == "" && pid != 0 && pid == p.fg.pid && p.fg.app != "" {
		return p.fg.app, p.fg.display
	}
	return appIdentity(display, pid), display
}

// appIdentity is the key application switches compare on.
func appIdentity(name string, pid int32) string {
	if n := events.NormalizeApplication(name); n != "" {
		return n
	}
	if pid != 0 {
		return "pid:" + strconv.Itoa(int(pid))
	}
	return ""
}
