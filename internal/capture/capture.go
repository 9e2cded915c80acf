package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureReason classifies why a capture device could not be used.
type FailureReason int

const (
	ReasonUnsupported FailureReason = iota
	ReasonPermissionDenied
	ReasonNoDevice
	ReasonDeviceBusy
	ReasonOther
)

func (r FailureReason) String() string {
	switch r {
	case ReasonUnsupported:
		return "unsupported-runtime"
	case ReasonPermissionDenied:
		return "permission-denied"
	case ReasonNoDevice:
		return "no-device"
	case ReasonDeviceBusy:
		return "device-busy"
	}
	return "other"
}

// Sentinel errors a Device implementation returns from Open. The recorder
// maps them to typed availability failures with user-facing hints.
var (
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	ErrNoDevice         = errors.New("capture: no microphone found")
	ErrDeviceBusy       = errors.New("capture: microphone in use by another application")
)

// DeviceError is the typed failure surfaced by CheckAvailability and
// StartRecording. It is always recoverable by degrading to text input.
type DeviceError struct {
	Reason FailureReason
	Hint   string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture: %s: %s", e.Reason, e.Hint)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ErrNoAudio is returned by StopRecording when the stream emitted no data.
var ErrNoAudio = errors.New("capture: no audio recorded")

// ErrNotRecording is returned by StopRecording without an active recording.
var ErrNotRecording = errors.New("capture: no recording in progress")

// ErrAlreadyRecording guards the at-most-one-active-recording invariant.
var ErrAlreadyRecording = errors.New("capture: recording already in progress")

// Status is the result of a non-destructive availability probe.
type Status struct {
	Available         bool
	PermissionGranted bool
	DeviceLabel       string
}

// Constraints configure the opened audio stream.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
	// ChunkInterval is the fixed time slice per emitted buffer.
	ChunkInterval time.Duration
}

// DefaultConstraints mirror the capture settings used for interview
// recordings: 16kHz mono with echo cancellation, noise suppression and
// 100ms data slices.
func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		SampleRate:       16000,
		ChunkInterval:    100 * time.Millisecond,
	}
}

// Stream is an open, exclusively-owned hardware audio stream. Chunks emits
// PCM16LE mono buffers in fixed time slices and is closed by Close.
type Stream interface {
	Chunks() <-chan []byte
	Close() error
}

// Device abstracts the host's microphone capability. Open may prompt for
// permission; it returns the stream and the device label. Implementations
// signal typed failures with the package sentinel errors.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, string, error)
}

// SpeechRecognizer is the optional parallel recognition capability that
// accumulates a best-effort transcript while a recording is active. A nil
// recognizer simply disables the fallback.
type SpeechRecognizer interface {
	Start(ctx context.Context) error
	Feed(pcm []byte)
	// Snapshot returns the transcript accumulated so far.
	Snapshot() string
	// Stop tears the session down and returns the final transcript.
	Stop() string
}

// Recording is the finalized output of one capture window.
type Recording struct {
	Data     []byte
	MIMEType string
	// FallbackTranscript is the parallel recognizer's final snapshot,
	// empty when no recognizer was supplied or nothing was heard.
	FallbackTranscript string
	Chunks             int
}
