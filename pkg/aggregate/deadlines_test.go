package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimersFireInOrderAndSkipStale(t *testing.T) {
	tm := newTimers()
	tm.schedule("a", base.Add(3*time.Second))
	tm.schedule("b", base.Add(time.Second))
	tm.schedule("a", base.Add(2*time.Second))
	tm.schedule("c", base.Add(time.Second))
	tm.cancel("c")

	require.Empty(t, tm.due(base))

	got := tm.due(base.Add(5 * time.Second))
	require.Len(t, got, 2)
	require.Equal(t, "b", got[0].key)
	require.Equal(t, "a", got[1].key)
	require.Equal(t, base.Add(2*time.Second), got[1].at)
	require.Zero(t, tm.pending())
}

func TestTimersCompactBoundsHeap(t *testing.T) {
	tm := newTimers()
	for i := 0; i < 1000; i++ {
		tm.schedule("k", base.Add(time.Duration(i)*time.Millisecond))
	}
	require.LessOrEqual(t, len(tm.h), 65)
	got := tm.due(base.Add(time.Hour))
	require.Len(t, got, 1)
	require.Equal(t, base.Add(999*time.Millisecond), got[0].at)
}
