// Package orchestrator sequences capture, transcription, the session
// client, synthesis, and playback into one observable conversation. The
// host (a terminal client, a UI bridge) injects the hardware-facing
// capabilities and observes the transcript through a callback.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/archive"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/capture"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/playback"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/session"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/transcribe"
)

// ErrCompleted reports that the interview finished and no further turns
// are accepted.
var ErrCompleted = errors.New("orchestrator: interview already completed")

// ErrNoTranscript reports that every transcription provider failed; the
// caller should prompt the user to type the answer instead.
var ErrNoTranscript = errors.New("orchestrator: could not transcribe recording")

// Role distinguishes the two sides of the conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry in the conversation transcript.
type Turn struct {
	ID             string
	Role           Role
	Content        string
	AudioURL       string
	Evaluation     *session.Evaluation
	QuestionNumber int
	TotalQuestions int
	Pending        bool
	Timestamp      time.Time
}

// Synthesizer renders assistant text into a playable audio URL.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (string, error)
}

// Resolver resolves a finished recording into text.
type Resolver interface {
	Resolve(ctx context.Context, rec capture.Recording, language string) (transcribe.Result, error)
}

// Options carries the injected capabilities. Recorder and Player are
// optional; a nil Recorder forces text mode, a nil Player skips playback.
type Options struct {
	Session  *session.Client
	Recorder *capture.Recorder
	Player   *playback.Player
	Synth    Synthesizer
	Resolver Resolver
	Archive  archive.Storage

	Language string
	Voice    string

	// OnTurns is invoked with a snapshot of the full transcript after
	// every change. May be nil.
	OnTurns func([]Turn)
}

// Orchestrator drives one interview conversation.
type Orchestrator struct {
	opts Options
	log  *logrus.Entry

	mu         sync.Mutex
	turns      []Turn
	voiceMode  bool
	processing bool
	completed  bool
	lastAnswer string
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Session == nil {
		return nil, errors.New("orchestrator: session client required")
	}
	if opts.Resolver == nil {
		opts.Resolver = transcribe.NewResolver(0, transcribe.NewLocalProvider())
	}
	if opts.Language == "" {
		opts.Language = "en"
	}
	return &Orchestrator{
		opts: opts,
		log:  logrus.WithField("component", "orchestrator"),
	}, nil
}

// Begin probes the microphone, starts the session, and surfaces the
// greeting. A microphone failure demotes the conversation to text mode; a
// session start failure is fatal.
func (o *Orchestrator) Begin(ctx context.Context, kind session.Kind, req session.StartRequest) error {
	if o.opts.Recorder != nil {
		if _, err := o.opts.Recorder.CheckAvailability(ctx); err != nil {
			o.log.WithError(err).Warn("microphone unavailable, continuing in text mode")
		} else {
			o.mu.Lock()
			o.voiceMode = true
			o.mu.Unlock()
		}
	}

	start, err := o.opts.Session.Start(ctx, kind, req)
	if err != nil {
		return fmt.Errorf("start interview: %w", err)
	}

	greeting := Turn{
		ID:             uuid.NewString(),
		Role:           RoleAssistant,
		Content:        start.Greeting,
		QuestionNumber: 1,
		TotalQuestions: start.TotalQuestions,
		Timestamp:      time.Now(),
	}
	o.appendTurn(greeting)
	o.speak(ctx, greeting.ID, start.Greeting)
	return nil
}

// SubmitText runs one typed turn through the session.
func (o *Orchestrator) SubmitText(ctx context.Context, text string) error {
	if err := o.acceptTurn(); err != nil {
		return err
	}
	defer o.setProcessing(false)

	userTurn := Turn{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	}
	o.appendTurn(userTurn)
	return o.respond(ctx, text)
}

// StartVoiceTurn opens the microphone for one answer.
func (o *Orchestrator) StartVoiceTurn(ctx context.Context) error {
	o.mu.Lock()
	voice := o.voiceMode
	done := o.completed
	o.mu.Unlock()
	if done {
		return ErrCompleted
	}
	if !voice || o.opts.Recorder == nil {
		return errors.New("orchestrator: voice mode unavailable")
	}
	if o.opts.Player != nil {
		o.opts.Player.Stop()
	}
	return o.opts.Recorder.StartRecording(ctx)
}

// FinishVoiceTurn stops the recording, appends a pending placeholder so the
// transcript never appears frozen, resolves the transcript, and submits it.
// Resolver exhaustion removes the placeholder and returns ErrNoTranscript so
// the caller can fall back to a typed answer.
func (o *Orchestrator) FinishVoiceTurn(ctx context.Context) error {
	if err := o.acceptTurn(); err != nil {
		return err
	}
	defer o.setProcessing(false)

	rec, err := o.opts.Recorder.StopRecording()
	if err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}

	placeholder := Turn{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   "(Transcribing…)",
		Pending:   true,
		Timestamp: time.Now(),
	}
	o.appendTurn(placeholder)

	result, err := o.opts.Resolver.Resolve(ctx, *rec, o.opts.Language)
	if err != nil {
		o.removeTurn(placeholder.ID)
		o.log.WithError(err).Warn("transcription exhausted, asking for typed answer")
		return fmt.Errorf("%w: %v", ErrNoTranscript, err)
	}
	o.resolveTurn(placeholder.ID, result.Text)
	o.archiveRecording(ctx, rec)

	return o.respond(ctx, result.Text)
}

// AbandonVoiceTurn discards an in-progress recording.
func (o *Orchestrator) AbandonVoiceTurn() {
	if o.opts.Recorder != nil {
		o.opts.Recorder.CancelRecording()
	}
}

// Retry resends the last user answer after a failed respond, without
// appending a duplicate user turn.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	last := o.lastAnswer
	o.mu.Unlock()
	if last == "" {
		return errors.New("orchestrator: nothing to retry")
	}
	if err := o.acceptTurn(); err != nil {
		return err
	}
	defer o.setProcessing(false)
	return o.respond(ctx, last)
}

// respond submits text to the session and appends the assistant reply.
func (o *Orchestrator) respond(ctx context.Context, text string) error {
	o.mu.Lock()
	o.lastAnswer = text
	o.mu.Unlock()

	reply, err := o.opts.Session.Respond(ctx, text)
	if err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}

	assistant := Turn{
		ID:             uuid.NewString(),
		Role:           RoleAssistant,
		Content:        reply.Message,
		Evaluation:     reply.Evaluation,
		QuestionNumber: reply.QuestionNumber,
		TotalQuestions: reply.TotalQuestions,
		Timestamp:      time.Now(),
	}
	o.appendTurn(assistant)

	o.mu.Lock()
	o.lastAnswer = ""
	if reply.Complete {
		o.completed = true
	}
	complete := o.completed
	o.mu.Unlock()

	if !complete {
		o.speak(ctx, assistant.ID, reply.Message)
	}
	return nil
}

// speak renders and plays an assistant turn. Synthesis failure leaves the
// turn text-only.
func (o *Orchestrator) speak(ctx context.Context, turnID, text string) {
	if o.opts.Synth == nil || o.opts.Player == nil {
		return
	}
	o.mu.Lock()
	voice := o.voiceMode
	o.mu.Unlock()
	if !voice {
		return
	}
	url, err := o.opts.Synth.Synthesize(ctx, text, o.opts.Voice)
	if err != nil {
		o.log.WithError(err).Warn("synthesis failed, turn stays text-only")
		return
	}
	o.mu.Lock()
	for i := range o.turns {
		if o.turns[i].ID == turnID {
			o.turns[i].AudioURL = url
			break
		}
	}
	o.mu.Unlock()
	o.notify()
	o.opts.Player.Play(url)
}

// archiveRecording uploads the raw answer audio when storage is configured.
// Failures are logged only.
func (o *Orchestrator) archiveRecording(ctx context.Context, rec *capture.Recording) {
	if o.opts.Archive == nil {
		return
	}
	current, _ := o.opts.Session.Progress()
	key := archive.ObjectKey(o.opts.Session.SessionID(), current, rec.MIMEType)
	if err := o.opts.Archive.Upload(ctx, key, rec.MIMEType, rec.Data); err != nil {
		o.log.WithError(err).Warn("recording archival failed")
	}
}

// End finishes the session and halts playback.
func (o *Orchestrator) End(ctx context.Context) error {
	if o.opts.Player != nil {
		o.opts.Player.Stop()
	}
	if o.opts.Recorder != nil && o.opts.Recorder.IsRecording() {
		o.opts.Recorder.CancelRecording()
	}
	return o.opts.Session.End(ctx)
}

// acceptTurn gates a new turn on the completion latch and flips the
// processing indicator.
func (o *Orchestrator) acceptTurn() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.completed {
		return ErrCompleted
	}
	o.processing = true
	return nil
}

func (o *Orchestrator) setProcessing(v bool) {
	o.mu.Lock()
	o.processing = v
	o.mu.Unlock()
}

func (o *Orchestrator) appendTurn(t Turn) {
	o.mu.Lock()
	o.turns = append(o.turns, t)
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) resolveTurn(id, text string) {
	o.mu.Lock()
	for i := range o.turns {
		if o.turns[i].ID == id {
			o.turns[i].Content = text
			o.turns[i].Pending = false
			break
		}
	}
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) removeTurn(id string) {
	o.mu.Lock()
	for i := range o.turns {
		if o.turns[i].ID == id {
			o.turns = append(o.turns[:i], o.turns[i+1:]...)
			break
		}
	}
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) notify() {
	if o.opts.OnTurns == nil {
		return
	}
	o.opts.OnTurns(o.Turns())
}

// Turns returns a snapshot of the conversation so far.
func (o *Orchestrator) Turns() []Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Turn, len(o.turns))
	copy(out, o.turns)
	return out
}

// VoiceMode reports whether microphone capture is available this session.
func (o *Orchestrator) VoiceMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.voiceMode
}

// Processing reports whether a turn is currently being handled.
func (o *Orchestrator) Processing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.processing
}

// Completed reports whether the interview has finished.
func (o *Orchestrator) Completed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed
}

// Speaking reports whether the assistant's audio is currently playing.
func (o *Orchestrator) Speaking() bool {
	return o.opts.Player != nil && o.opts.Player.IsPlaying()
}

// Progress returns the 1-based question position and total.
func (o *Orchestrator) Progress() (current, total int) {
	return o.opts.Session.Progress()
}

// Summary returns the final evaluation payload once completed.
func (o *Orchestrator) Summary() []byte {
	return o.opts.Session.Summary()
}
