package aggregate

import (
	"container/heap"
	"time"
)

type deadline struct {
	at  time.Time
	key string
	gen uint64
}

type deadlineHeap []deadline

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].gen < h[j].gen
	}
	return h[i].at.Before(h[j].at)
}
func (h deadlineHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)   { *h = append(*h, x.(deadline)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// timers is a single min-heap of deadlines shared by every aggregator.
// Rescheduling or cancelling a key leaves the old entry in the heap; it is
// recognised as stale by its generation when popped.
type timers struct {
	h    deadlineHeap
	live map[string]uint64
	next uint64
}

func newTimers() *timers {
	return &timers{live: make(map[string]uint64)}
}

func (t *timers) schedule(key string, at time.Time) {
	t.next++
	t.live[key] = t.next
	heap.Push(&t.h, deadline{at: at, key: key, gen: t.next})
	if len(t.h) > 64 && len(t.h) > 4*len(t.live) {
		t.compact()
	}
}

func (t *timers) cancel(key string) {
	delete(t.live, key)
}

// due pops every live deadline at or before now, earliest first.
func (t *timers) due(now time.Time) []deadline {
	var out []deadline
	for len(t.h) > 0 && !t.h[0].at.After(now) {
		d := heap.Pop(&t.h).(deadline)
		if gen, ok := t.live[d.key]; ok && gen == d.gen {
			delete(t.live, d.key)
			out = append(out, d)
		}
	}
	return out
}

func (t *timers) pending() int { return len(t.live) }

func (t *timers) compact() {
	kept := t.h[:0]
	for _, d := range t.h {
		if gen, ok := t.live[d.key]; ok && gen == d.gen {
			kept = append(kept, d)
		}
	}
	t.h = kept
	heap.Init(&t.h)
}

func (t *timers) reset() {
	t.h = t.h[:0]
	t.live = make(map[string]uint64)
}
