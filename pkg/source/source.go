// Package source defines the capture boundary of the recorder and ships the
// backends that implement it: a scripted synthetic source, a JSONL replay
// source, and the macOS Quartz event tap.
package source

import (
	"context"
	"errors"

	"github.com/offlinefirst/workflow-recorder/pkg/events"
)

// ErrAccessibilityPermission indicates the host must grant Accessibility trust.
var ErrAccessibilityPermission = errors.New("macOS accessibility permission required for event capture")

// ErrUnsupported indicates the backend cannot run on this platform.
var ErrUnsupported = errors.New("capture backend unsupported on this platform")

// Source acquires a capture stream. Open failures mean capture is
// unavailable; errors returned later by Stream.Run are mid-stream failures.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream delivers raw events until the context is cancelled, the backend is
// exhausted (nil error) or it fails. emit must not block; it is called from
// the backend's own capture context.
type Stream interface {
	Run(ctx context.Context, emit func(events.RawEvent)) error
	Close() error
}

// StreamFunc adapts a function literal to both Source and Stream.
type StreamFunc func(ctx context.Context, emit func(events.RawEvent)) error

// Open returns f itself.
func (f StreamFunc) Open(context.Context) (Stream, error) { return f, nil }

// Run calls the underlying function.
func (f StreamFunc) Run(ctx context.Context, emit func(events.RawEvent)) error {
	return f(ctx, emit)
}

// Close is a no-op.
func (f StreamFunc) Close() error { return nil }
