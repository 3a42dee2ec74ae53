package source

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
	"github.com/offlinefirst/workflow-recorder/pkg/permissions"
	"github.com/offlinefirst/workflow-recorder/pkg/uia"
)

var base = time.Date(2024, 3, 14, 9, 26, 0, 0, time.UTC)

func collect(t *testing.T, src Source) []events.RawEvent {
	t.Helper()
	stream, err := src.Open(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	var got []events.RawEvent
	require.NoError(t, stream.Run(context.Background(), func(ev events.RawEvent) {
		got = append(got, ev)
	}))
	return got
}

func TestScriptTypeProducesKeyPairs(t *testing.T) {
	s := NewScript(base).Step(10 * time.Millisecond)
	s.Type("e1", "ab")
	evs := s.Events()
	require.Len(t, evs, 4)

	first := evs[0].Payload.(*events.KeyboardEvent)
	require.True(t, first.IsKeyDown)
	require.Equal(t, "a", first.Character)
	require.Equal(t, events.VKLetter('a'), first.KeyCode)
	require.False(t, evs[1].Payload.(*events.KeyboardEvent).IsKeyDown)
	require.Equal(t, base.Add(30*time.Millisecond), evs[3].Timestamp)
}

func TestScriptDragInterpolates(t *testing.T) {
	s := NewScript(base).Drag("c", events.Position{X: 0, Y: 0}, events.Position{X: 100, Y: 0}, 4)
	evs := s.Events()
	require.Len(t, evs, 6)
	last := evs[4].Payload.(*events.MouseEvent)
	require.Equal(t, events.MouseMove, last.Type)
	require.Equal(t, 100, last.Position.X)
}

func TestScriptSourceWithoutPaceKeepsTimestamps(t *testing.T) {
	s := NewScript(base).Click("b", 1, 2)
	got := collect(t, s.Source(ReplayOptions{}))
	require.Len(t, got, 2)
	require.Equal(t, base, got[0].Timestamp)
}

func TestScriptSourceHoldWaitsForCancel(t *testing.T) {
	src := NewScript(base).Click("b", 1, 2).Source(ReplayOptions{Hold: true})
	stream, err := src.Open(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx, func(events.RawEvent) {}) }()

	select {
	case err := <-done:
		t.Fatalf("stream returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestReplayRoundTrip(t *testing.T) {
	s := NewScript(base).Focus("e1", "notepad", "edit", "Body").Type("e1", "hi")
	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, s.Events()))

	path := filepath.Join(t.TempDir(), "raw.jsonl")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got := collect(t, Replay(path, ReplayOptions{}))
	require.Equal(t, s.Events(), got)
}

func TestReplayMissingFileFailsOnOpen(t *testing.T) {
	_, err := Replay(filepath.Join(t.TempDir(), "missing.jsonl"), ReplayOptions{}).Open(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSyntheticRegistersElements(t *testing.T) {
	reg := uia.NewMemoryRegistry()
	got := collect(t, Synthetic(SyntheticOptions{Clock: func() time.Time { return base }, Registry: reg}))
	require.NotEmpty(t, got)

	_, err := reg.Lookup("notepad:edit")
	require.NoError(t, err)
	for i := 1; i < len(got); i++ {
		require.False(t, got[i].Timestamp.Before(got[i-1].Timestamp), "timestamps must not go backwards")
	}
}

func TestDetectEnvironmentSetsFields(t *testing.T) {
	env := DetectEnvironment()
	require.NotEmpty(t, env.Provider)
	require.NotEmpty(t, env.Permission)
	require.NotEmpty(t, env.Message)
}

func TestDetectDarwinPermissions(t *testing.T) {
	granted := []permissions.ProbeResult{
		{Surface: "accessibility", Status: permissions.StatusGranted},
		{Surface: "input monitoring", Status: permissions.StatusGranted},
	}
	env := detect("darwin", granted)
	require.True(t, env.Available)
	require.Equal(t, "granted", env.Permission)

	prompt := []permissions.ProbeResult{
		{Surface: "accessibility", Status: permissions.StatusPromptRequired, Message: "accessibility trust required"},
		{Surface: "input monitoring", Status: permissions.StatusDenied, Guidance: "grant it"},
	}
	env = detect("darwin", prompt)
	require.False(t, env.Available)
	require.Equal(t, "denied", env.Permission)
	require.Equal(t, "grant it", env.Guidance)
	require.Contains(t, env.Message, "input monitoring denied")

	env = detect("linux", nil)
	require.False(t, env.Available)
	require.Equal(t, "synthetic", env.Provider)
}
