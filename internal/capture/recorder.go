package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Recorder owns the microphone lifecycle: availability probing, exclusive
// stream acquisition, chunk buffering and the parallel recognition fallback.
// Every StartRecording is matched by exactly one StopRecording or
// CancelRecording; overlapping recordings are rejected.
type Recorder struct {
	device     Device
	recognizer SpeechRecognizer
	encodings  []Encoding
	cons       Constraints
	log        *logrus.Entry

	mu          sync.Mutex
	status      *Status
	active      bool
	stream      Stream
	chunks      [][]byte
	encoding    Encoding
	recogCancel context.CancelFunc
	collectDone chan struct{}
}

// NewRecorder builds a recorder around the injected device. recognizer may
// be nil. An empty encodings list selects the default preference chain.
func NewRecorder(device Device, recognizer SpeechRecognizer, encodings []Encoding, cons Constraints) *Recorder {
	if len(encodings) == 0 {
		encodings = DefaultEncodings(cons.SampleRate)
	}
	return &Recorder{
		device:     device,
		recognizer: recognizer,
		encodings:  encodings,
		cons:       cons,
		log:        logrus.WithField("component", "capture"),
	}
}

// CheckAvailability probes the device non-destructively: the stream is
// opened and immediately released. The OS permission prompt, if any, fires
// at most once per call.
func (r *Recorder) CheckAvailability(ctx context.Context) (Status, error) {
	if r.device == nil {
		st := Status{}
		r.setStatus(st)
		return st, &DeviceError{Reason: ReasonUnsupported, Hint: "runtime does not support microphone access"}
	}

	stream, label, err := r.device.Open(ctx, r.cons)
	if err != nil {
		st := Status{}
		r.setStatus(st)
		return st, classifyOpenError(err)
	}
	_ = stream.Close()

	st := Status{Available: true, PermissionGranted: true, DeviceLabel: label}
	if st.DeviceLabel == "" {
		st.DeviceLabel = "Microphone"
	}
	r.setStatus(st)
	return st, nil
}

func (r *Recorder) setStatus(st Status) {
	r.mu.Lock()
	r.status = &st
	r.mu.Unlock()
}

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return &DeviceError{Reason: ReasonPermissionDenied, Hint: "microphone permission denied, allow access in settings", Err: err}
	case errors.Is(err, ErrNoDevice):
		return &DeviceError{Reason: ReasonNoDevice, Hint: "no microphone found, connect a microphone", Err: err}
	case errors.Is(err, ErrDeviceBusy):
		return &DeviceError{Reason: ReasonDeviceBusy, Hint: "microphone is in use by another application", Err: err}
	default:
		return &DeviceError{Reason: ReasonOther, Hint: "microphone error", Err: err}
	}
}

// StartRecording opens the hardware stream, begins buffering fixed-size time
// slices, and starts the parallel recognition session when a recognizer is
// present. Callers that receive an error must fall back to text input.
func (r *Recorder) StartRecording(ctx context.Context) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	known := r.status != nil && r.status.Available
	r.mu.Unlock()

	// Lazy availability check on first use.
	if !known {
		if _, err := r.CheckAvailability(ctx); err != nil {
			return err
		}
	}

	encoding := negotiateEncoding(r.encodings)
	if encoding == nil {
		return &DeviceError{Reason: ReasonUnsupported, Hint: "no supported audio encoding"}
	}

	stream, _, err := r.device.Open(ctx, r.cons)
	if err != nil {
		return classifyOpenError(err)
	}

	r.mu.Lock()
	r.active = true
	r.stream = stream
	r.chunks = nil
	r.encoding = encoding
	r.collectDone = make(chan struct{})
	r.mu.Unlock()

	if r.recognizer != nil {
		recogCtx, cancel := context.WithCancel(context.Background())
		r.mu.Lock()
		r.recogCancel = cancel
		r.mu.Unlock()
		if err := r.recognizer.Start(recogCtx); err != nil {
			// Best effort only: recording proceeds without the fallback.
			r.log.WithError(err).Warn("recognition fallback failed to start")
			cancel()
			r.mu.Lock()
			r.recogCancel = nil
			r.mu.Unlock()
		}
	}

	go r.collect(stream)
	r.log.WithField("mime", encoding.MIMEType()).Debug("recording started")
	return nil
}

// collect drains the stream into the chunk buffer and feeds the recognizer.
func (r *Recorder) collect(stream Stream) {
	defer close(r.collectDone)
	for chunk := range stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		buf := make([]byte, len(chunk))
		copy(buf, chunk)
		r.mu.Lock()
		feeding := r.active
		if feeding {
			r.chunks = append(r.chunks, buf)
		}
		recog := r.recognizer
		hasRecog := r.recogCancel != nil
		r.mu.Unlock()
		if feeding && hasRecog && recog != nil {
			recog.Feed(buf)
		}
	}
}

// StopRecording finalizes the buffered audio into a single encoded blob,
// tears down the hardware stream and captures the recognizer's final
// transcript. Zero emitted chunks yields ErrNoAudio.
func (r *Recorder) StopRecording() (*Recording, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	stream := r.stream
	done := r.collectDone
	r.mu.Unlock()

	// Recognizer first so its last words are captured before teardown.
	transcript := r.stopRecognizer()

	_ = stream.Close()
	<-done

	r.mu.Lock()
	chunks := r.chunks
	encoding := r.encoding
	r.active = false
	r.stream = nil
	r.chunks = nil
	r.collectDone = nil
	r.mu.Unlock()

	if len(chunks) == 0 {
		return nil, ErrNoAudio
	}
	data, err := encoding.Encode(chunks)
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{
		"chunks": len(chunks),
		"bytes":  len(data),
	}).Debug("recording stopped")
	return &Recording{
		Data:               data,
		MIMEType:           encoding.MIMEType(),
		FallbackTranscript: transcript,
		Chunks:             len(chunks),
	}, nil
}

// CancelRecording performs the same teardown as StopRecording but discards
// all buffered data. Safe to call at any time, including when idle.
func (r *Recorder) CancelRecording() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	stream := r.stream
	done := r.collectDone
	r.active = false
	r.mu.Unlock()

	_ = r.stopRecognizer()
	_ = stream.Close()
	<-done

	r.mu.Lock()
	r.stream = nil
	r.chunks = nil
	r.collectDone = nil
	r.mu.Unlock()
	r.log.Debug("recording cancelled")
}

func (r *Recorder) stopRecognizer() string {
	r.mu.Lock()
	cancel := r.recogCancel
	r.recogCancel = nil
	recog := r.recognizer
	r.mu.Unlock()
	if cancel == nil || recog == nil {
		return ""
	}
	transcript := recog.Stop()
	cancel()
	return transcript
}

// IsRecording reports whether a recording window is active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Status returns the last availability probe result, nil before any probe.
func (r *Recorder) Status() *Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == nil {
		return nil
	}
	st := *r.status
	return &st
}

// RecognizerAvailable reports whether the parallel fallback is wired.
func (r *Recorder) RecognizerAvailable() bool {
	return r.recognizer != nil
}
