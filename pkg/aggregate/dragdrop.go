package aggregate

import (
	"math"
	"time"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

type dragPhase int

const (
	dragIdle dragPhase = iota
	dragPressed
	dragActive
)

// dragDrop recognises press, move past a threshold, release sequences of
// the left button.
type dragDrop struct {
	p      *Pipeline
	phase  dragPhase
	start  time.Time
	from   events.Position
	last   events.Position
	ref    uia.Ref
	button events.MouseButton
}

func newDragDrop(p *Pipeline) *dragDrop {
	return &dragDrop{p: p}
}

func distance(a, b events.Position) float64 {
	return math.Hypot(float64(b.X-a.X), float64(b.Y-a.Y))
}

func (d *dragDrop) onMouse(out []Emission, at time.Time, ref uia.Ref, ev *events.MouseEvent) []Emission {
	switch ev.Type {
	case events.MouseDown:
		if ev.Button != events.ButtonLeft {
			return out
		}
		d.phase = dragPressed
		d.start, d.from, d.last = at, ev.Position, ev.Position
		d.ref, d.button = ref, ev.Button
	case events.MouseMove:
		if d.phase == dragIdle {
			return out
		}
		d.last = ev.Position
		if d.phase == dragPressed && distance(d.from, ev.Position) > d.p.opts.MinDragDistance {
			d.phase = dragActive
		}
	case events.MouseUp:
		if d.phase == dragIdle || ev.Button != d.button {
			return out
		}
		active := d.phase == dragActive
		d.last = ev.Position
		if !active && distance(d.from, ev.Position) > d.p.opts.MinDragDistance {
			active = true
		}
		d.phase = dragIdle
		if active {
			out = d.finish(out, at, ref, true)
		}
	}
	return out
}

// abandon emits an in-progress drag as incomplete.
func (d *dragDrop) abandon(out []Emission, at time.Time) []Emission {
	if d.phase != dragActive {
		d.phase = dragIdle
		return out
	}
	d.phase = dragIdle
	return d.finish(out, at, d.ref, false)
}

func (d *dragDrop) finish(out []Emission, at time.Time, ref uia.Ref, completed bool) []Emission {
	if d.p.private() {
		return out
	}
	ev := &events.DragDropEvent{
		StartPosition: d.from,
		EndPosition:   d.last,
		Button:        d.button,
		Distance:      distance(d.from, d.last),
		DurationMs:    at.Sub(d.start).Milliseconds(),
		SourceElement: d.p.describe(d.ref),
		Completed:     completed,
	}
	return d.p.emit(out, at, ref, ev)
}
