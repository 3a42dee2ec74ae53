package aggregate

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
)

// mouseThrottle forwards at most one pointer move per interval. Other
// pointer events always pass.
type mouseThrottle struct {
	limiter *rate.Limiter
}

func newMouseThrottle(interval time.Duration) *mouseThrottle {
	if interval <= 0 {
		return &mouseThrottle{}
	}
	return &mouseThrottle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (m *mouseThrottle) allow(at time.Time, ev *events.MouseEvent) bool {
	if m.limiter == nil || ev.Type != events.MouseMove {
		return true
	}
	return m.limiter.AllowN(at, 1)
}

// truncateRunes cuts s to at most max runes. max <= 0 means unlimited.
func truncateRunes(s string, max int) (string, bool) {
	if max <= 0 {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// filterClipboard returns a copy of ev whose content preview is bounded.
// ContentSize always reports the full length.
func filterClipboard(ev *events.ClipboardEvent, max int) *events.ClipboardEvent {
	out := *ev
	if out.ContentSize == 0 {
		out.ContentSize = len([]rune(ev.Content))
	}
	var cut bool
	out.Content, cut = truncateRunes(ev.Content, max)
	out.Truncated = out.Truncated || cut
	return &out
}

// filterSelection bounds the selected text, keeping the full Length, and
// fills in the selection method when the source did not report one.
func filterSelection(ev *events.TextSelectionEvent, max int, method events.SelectionMethod) *events.TextSelectionEvent {
	out := *ev
	if out.Length == 0 {
		out.Length = len([]rune(ev.Text))
	}
	var cut bool
	out.Text, cut = truncateRunes(ev.Text, max)
	out.Truncated = out.Truncated || cut
	if out.Method == "" || out.Method == events.SelectionUnknown {
		out.Method = method
	}
	return &out
}
