package recorder

import "errors"

var (
	// ErrCaptureUnavailable reports that the capture source could not be opened.
	ErrCaptureUnavailable = errors.New("capture unavailable")
	// ErrAlreadyRecording is returned by Start while a recording is active.
	ErrAlreadyRecording = errors.New("recorder already recording")
	// ErrNotRecording is returned by operations that need an active recording.
	ErrNotRecording = errors.New("recorder not recording")
	// ErrFinished is returned when restarting a recorder that has stopped.
	ErrFinished = errors.New("recorder finished")
	// ErrAlreadySubscribed is returned when a second subscriber registers.
	ErrAlreadySubscribed = errors.New("recorder already has a subscriber")
	// ErrCaptureFailed reports a capture stream that failed mid-recording.
	ErrCaptureFailed = errors.New("capture failed")
)
