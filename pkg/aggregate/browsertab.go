package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

var browsers = map[string]string{
	"chrome":   "Google Chrome",
	"msedge":   "Microsoft Edge",
	"firefox":  "Mozilla Firefox",
	"brave":    "Brave",
	"opera":    "Opera",
	"vivaldi":  "Vivaldi",
	"safari":   "Safari",
	"arc":      "Arc",
	"chromium": "Chromium",
}

// isBrowser reports whether a normalised application identity is a web
// browser.
func isBrowser(app string) bool {
	_, ok := browsers[app]
	return ok
}

// normalizeTitle strips the trailing browser name browsers append.
func normalizeTitle(browser, title string) string {
	title = strings.TrimSpace(title)
	name, ok := browsers[browser]
	if !ok {
		return title
	}
	for _, sep := range []string{" - ", " — ", " – "} {
		if trimmed, found := strings.CutSuffix(title, sep+name); found {
			return strings.TrimSpace(trimmed)
		}
	}
	return title
}

func looksLikeURL(v string) bool {
	v = strings.TrimSpace(v)
	return strings.Contains(v, "://") || strings.HasPrefix(v, "about:")
}

type pendingNav struct {
	firstAt   time.Time
	fromURL   string
	fromTitle string
	url       string
	title     string
	method    events.TabNavigationMethod
	action    events.TabAction
}

type tabWindow struct {
	browser string
	ref     uia.Ref
	known   bool
	url     string
	title   string
	since   time.Time
	pending *pendingNav
}

// browserTabs tracks (url, title) per browser window. Churn is collected
// into a pending navigation that settles after a quiet period.
type browserTabs struct {
	p       *Pipeline
	windows map[string]*tabWindow
}

func newBrowserTabs(p *Pipeline) *browserTabs {
	return &browserTabs{p: p, windows: make(map[string]*tabWindow)}
}

func tabKey(windowID string) string { return "tab:" + windowID }

// observe records the window's current url and title. An empty url keeps
// the previous one; an empty title likewise.
func (b *browserTabs) observe(at time.Time, browser, windowID string, ref uia.Ref, url, title string, in *inputState) {
	w := b.windows[windowID]
	if w == nil {
		w = &tabWindow{browser: browser}
		b.windows[windowID] = w
	}
	if !ref.IsZero() {
		w.ref = ref
	}
	title = normalizeTitle(browser, title)

	curURL, curTitle := w.url, w.title
	if w.pending != nil {
		curURL, curTitle = w.pending.url, w.pending.title
	}
	if url == "" {
		url = curURL
	}
	if title == "" {
		title = curTitle
	}
	if w.known && url == curURL && title == curTitle {
		return
	}
	if w.pending == nil {
		method, action := navigationMethod(at, in)
		w.pending = &pendingNav{
			firstAt:   at,
			fromURL:   w.url,
			fromTitle: w.title,
			method:    method,
			action:    action,
		}
	}
	w.pending.url, w.pending.title = url, title
	b.p.timers.schedule(tabKey(windowID), at.Add(b.p.opts.BrowserSettle))
}

// settle emits the pending navigation of windowID, if any.
func (b *browserTabs) settle(out []Emission, at time.Time, windowID string) []Emission {
	w := b.windows[windowID]
	if w == nil || w.pending == nil {
		return out
	}
	b.p.timers.cancel(tabKey(windowID))
	nav := w.pending
	w.pending = nil
	if w.known && nav.url == w.url && nav.title == w.title {
		return out
	}

	ev := &events.BrowserTabNavigationEvent{
		Action:    nav.action,
		Method:    nav.method,
		Browser:   w.browser,
		WindowID:  windowID,
		URL:       nav.url,
		Title:     nav.title,
		FromURL:   nav.fromURL,
		FromTitle: nav.fromTitle,
	}
	if w.known {
		dwell := nav.firstAt.Sub(w.since).Milliseconds()
		ev.PageDwellTimeMs = &dwell
	}
	w.known = true
	w.url, w.title = nav.url, nav.title
	w.since = nav.firstAt
	return b.p.emit(out, at, w.ref, ev)
}

// close settles and forgets a closed browser window.
func (b *browserTabs) close(out []Emission, at time.Time, windowID string) []Emission {
	out = b.settle(out, at, windowID)
	delete(b.windows, windowID)
	return out
}

// settleAll emits every pending navigation, ordered by window id.
func (b *browserTabs) settleAll(out []Emission, at time.Time) []Emission {
	ids := make([]string, 0, len(b.windows))
	for id, w := range b.windows {
		if w.pending != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = b.settle(out, at, id)
	}
	return out
}

func navigationMethod(at time.Time, in *inputState) (events.TabNavigationMethod, events.TabAction) {
	if within(at, in.lastHotkey.at, shortcutWindow) {
		switch combo := in.lastHotkey.combo; {
		case combo == "Ctrl+T", combo == "Ctrl+Shift+T", combo == "Ctrl+N":
			return events.NavKeyboardShortcut, events.TabCreated
		case combo == "Ctrl+W", combo == "Ctrl+F4":
			return events.NavKeyboardShortcut, events.TabClosed
		case combo == "Ctrl+Tab", combo == "Ctrl+Shift+Tab", combo == "Ctrl+PageUp", combo == "Ctrl+PageDown",
			strings.HasPrefix(combo, "Ctrl+") && len(combo) == len("Ctrl+1") && combo[5] >= '1' && combo[5] <= '9':
			return events.NavKeyboardShortcut, events.TabSwitched
		case combo == "Alt+Left", combo == "Alt+Right", combo == "Ctrl+R", combo == "Ctrl+L":
			return events.NavKeyboardShortcut, events.TabNavigated
		}
	}
	last := in.lastKey
	if within(at, last.at, shortcutWindow) && last.code == events.VKFunction(5) {
		return events.NavKeyboardShortcut, events.TabNavigated
	}
	if within(at, last.at, addressWindow) && last.code == events.VKReturn && !last.mods.Any() {
		return events.NavAddressBar, events.TabNavigated
	}
	c := in.lastClick
	if within(at, c.at, shortcutWindow) {
		if c.button == events.ButtonMiddle || (c.button == events.ButtonLeft && c.mods.Ctrl) {
			return events.NavLinkNewTab, events.TabCreated
		}
		if c.info != nil {
			role := strings.ToLower(c.info.Role)
			name := strings.ToLower(c.info.Name)
			switch {
			case strings.Contains(name, "new tab"):
				return events.NavNewTabButton, events.TabCreated
			case strings.Contains(name, "close"):
				return events.NavCloseButton, events.TabClosed
			case strings.Contains(role, "tab"):
				return events.NavTabClick, events.TabSwitched
			}
		}
	}
	return events.NavOther, events.TabNavigated
}
