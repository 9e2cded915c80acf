package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/api"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/capture"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/playback"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/session"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/transcribe"
)

// interviewBackend is a minimal scripted backend: greeting plus a fixed
// question bank, completing when the bank runs out.
type interviewBackend struct {
	mu        sync.Mutex
	questions []string
	asked     int
}

func (b *interviewBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/interview/screening/start", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"session_id":    "sess-orch",
			"greeting":      "Welcome. " + b.questions[0],
			"max_questions": len(b.questions),
		})
		b.asked = 1
	})
	mux.HandleFunc("/api/interview/screening/message", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.asked >= len(b.questions) {
			json.NewEncoder(w).Encode(map[string]any{
				"message":     "That concludes the interview.",
				"is_complete": true,
				"summary":     map[string]any{"overall_score": 4.1},
				"evaluation":  map[string]any{"score": 4.0, "feedback": "solid"},
			})
			return
		}
		b.asked++
		json.NewEncoder(w).Encode(map[string]any{
			"message":         b.questions[b.asked-1],
			"question_number": b.asked,
			"total_questions": len(b.questions),
			"evaluation":      map[string]any{"score": 3.5, "feedback": "good detail"},
		})
	})
	mux.HandleFunc("/api/interview/screening/session/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"ended"}`))
	})
	return mux
}

type stubSynth struct {
	mu    sync.Mutex
	urls  []string
	fail  bool
	count int
}

func (s *stubSynth) Synthesize(_ context.Context, text, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if s.fail {
		return "", errors.New("synthesis down")
	}
	url := fmt.Sprintf("clip-%d", s.count)
	s.urls = append(s.urls, url)
	return url, nil
}

type stubResolver struct {
	text string
	err  error
}

func (s *stubResolver) Resolve(_ context.Context, rec capture.Recording, lang string) (transcribe.Result, error) {
	if s.err != nil {
		return transcribe.Result{}, s.err
	}
	return transcribe.Result{Text: s.text, Provider: "stub", Language: lang}, nil
}

type stubArchive struct {
	mu   sync.Mutex
	keys []string
}

func (s *stubArchive) Upload(_ context.Context, key, _ string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return nil
}

// instant output finishes every clip immediately.
type instantOutput struct{}

func (instantOutput) Play(string) (<-chan error, error) {
	done := make(chan error)
	close(done)
	return done, nil
}
func (instantOutput) Pause()            {}
func (instantOutput) Resume() error     { return nil }
func (instantOutput) Stop()             {}
func (instantOutput) SetVolume(float64) {}

type fakeStream struct{ ch chan []byte }

func (f *fakeStream) Chunks() <-chan []byte { return f.ch }
func (f *fakeStream) Close() error          { close(f.ch); return nil }

type fakeDevice struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
}

func (f *fakeDevice) Open(context.Context, capture.Constraints) (capture.Stream, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, "", f.err
	}
	st := &fakeStream{ch: make(chan []byte, 8)}
	st.ch <- []byte{0, 1, 0, 1}
	f.streams = append(f.streams, st)
	return st, "fake-mic", nil
}

func newTestRecorder(dev capture.Device) *capture.Recorder {
	cons := capture.DefaultConstraints()
	return capture.NewRecorder(dev, nil, []capture.Encoding{capture.NewWAVEncoding(cons.SampleRate)}, cons)
}

func startBackend(t *testing.T, questions ...string) *session.Client {
	t.Helper()
	b := &interviewBackend{questions: questions}
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	return session.NewClient(api.New(srv.URL, 2*time.Second))
}

func TestBegin_TextModeWhenNoMicrophone(t *testing.T) {
	dev := &fakeDevice{err: capture.ErrPermissionDenied}
	o, err := New(Options{
		Session:  startBackend(t, "Q1", "Q2"),
		Recorder: newTestRecorder(dev),
		Resolver: &stubResolver{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Begin(context.Background(), session.KindScreening, session.StartRequest{UserID: "u1"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if o.VoiceMode() {
		t.Fatal("voice mode should be off after permission denial")
	}
	turns := o.Turns()
	if len(turns) != 1 || turns[0].Role != RoleAssistant {
		t.Fatalf("turns = %+v", turns)
	}
	if err := o.StartVoiceTurn(context.Background()); err == nil {
		t.Fatal("voice turn should be rejected in text mode")
	}
}

func TestTextInterview_RunsToCompletion(t *testing.T) {
	synth := &stubSynth{}
	o, err := New(Options{
		Session:  startBackend(t, "Q1", "Q2"),
		Recorder: newTestRecorder(&fakeDevice{}),
		Player:   playback.NewPlayer(instantOutput{}, playback.Events{}, true),
		Synth:    synth,
		Resolver: &stubResolver{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := o.Begin(ctx, session.KindScreening, session.StartRequest{UserID: "u1"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := o.SubmitText(ctx, "My background is distributed systems."); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if o.Completed() {
		t.Fatal("completed too early")
	}
	if err := o.SubmitText(ctx, "I want to grow into a lead role."); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if !o.Completed() {
		t.Fatal("interview should be complete")
	}
	if err := o.SubmitText(ctx, "one more"); !errors.Is(err, ErrCompleted) {
		t.Fatalf("post-completion turn err = %v", err)
	}

	turns := o.Turns()
	// greeting + 2 user turns + 2 assistant replies
	if len(turns) != 5 {
		t.Fatalf("len(turns) = %d", len(turns))
	}
	last := turns[len(turns)-1]
	if last.Evaluation == nil || last.Evaluation.Score != 4.0 {
		t.Fatalf("final evaluation = %+v", last.Evaluation)
	}
	var summary map[string]float64
	if err := json.Unmarshal(o.Summary(), &summary); err != nil || summary["overall_score"] != 4.1 {
		t.Fatalf("summary = %s (%v)", o.Summary(), err)
	}
	// greeting and the mid-interview reply are spoken; the completion
	// message is not.
	if synth.count != 2 {
		t.Fatalf("synth calls = %d", synth.count)
	}
}

func TestVoiceTurn_ResolvesPlaceholder(t *testing.T) {
	arch := &stubArchive{}
	o, err := New(Options{
		Session:  startBackend(t, "Q1", "Q2"),
		Recorder: newTestRecorder(&fakeDevice{}),
		Resolver: &stubResolver{text: "I shipped a payments platform."},
		Archive:  arch,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := o.Begin(ctx, session.KindScreening, session.StartRequest{UserID: "u1"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !o.VoiceMode() {
		t.Fatal("voice mode expected")
	}
	if err := o.StartVoiceTurn(ctx); err != nil {
		t.Fatalf("StartVoiceTurn: %v", err)
	}
	if err := o.FinishVoiceTurn(ctx); err != nil {
		t.Fatalf("FinishVoiceTurn: %v", err)
	}

	turns := o.Turns()
	// greeting + resolved user turn + assistant reply
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d", len(turns))
	}
	user := turns[1]
	if user.Role != RoleUser || user.Pending || user.Content != "I shipped a payments platform." {
		t.Fatalf("user turn = %+v", user)
	}
	if len(arch.keys) != 1 {
		t.Fatalf("archived %d recordings", len(arch.keys))
	}
}

func TestVoiceTurn_ResolverExhaustionLeavesCleanTranscript(t *testing.T) {
	o, err := New(Options{
		Session:  startBackend(t, "Q1", "Q2"),
		Recorder: newTestRecorder(&fakeDevice{}),
		Resolver: &stubResolver{err: transcribe.ErrExhausted},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := o.Begin(ctx, session.KindScreening, session.StartRequest{UserID: "u1"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := o.StartVoiceTurn(ctx); err != nil {
		t.Fatalf("StartVoiceTurn: %v", err)
	}
	err = o.FinishVoiceTurn(ctx)
	if !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("err = %v, want ErrNoTranscript", err)
	}
	// The placeholder must not survive; only the greeting remains and the
	// session can continue by typing.
	if turns := o.Turns(); len(turns) != 1 {
		t.Fatalf("len(turns) = %d after exhaustion", len(turns))
	}
	if err := o.SubmitText(ctx, "typed answer instead"); err != nil {
		t.Fatalf("typed fallback: %v", err)
	}
}

func TestRetry_DoesNotDuplicateUserTurn(t *testing.T) {
	var fail bool
	var mu sync.Mutex
	b := &interviewBackend{questions: []string{"Q1", "Q2"}}
	inner := b.handler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		f := fail
		mu.Unlock()
		if f && r.URL.Path == "/api/interview/screening/message" {
			http.Error(w, `{"detail":"upstream model error"}`, http.StatusBadGateway)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	defer srv.Close()

	o, err := New(Options{
		Session:  session.NewClient(api.New(srv.URL, 2*time.Second)),
		Resolver: &stubResolver{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := o.Begin(ctx, session.KindScreening, session.StartRequest{UserID: "u1"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	mu.Lock()
	fail = true
	mu.Unlock()
	if err := o.SubmitText(ctx, "first attempt"); err == nil {
		t.Fatal("expected respond failure")
	}
	before := len(o.Turns()) // greeting + user turn

	mu.Lock()
	fail = false
	mu.Unlock()
	if err := o.Retry(ctx); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	turns := o.Turns()
	if len(turns) != before+1 {
		t.Fatalf("retry appended %d turns, want 1 assistant reply", len(turns)-before)
	}
	users := 0
	for _, tn := range turns {
		if tn.Role == RoleUser {
			users++
		}
	}
	if users != 1 {
		t.Fatalf("user turns = %d, want 1", users)
	}
}

func TestEnd_ReleasesResources(t *testing.T) {
	dev := &fakeDevice{}
	rec := newTestRecorder(dev)
	o, err := New(Options{
		Session:  startBackend(t, "Q1", "Q2"),
		Recorder: rec,
		Resolver: &stubResolver{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := o.Begin(ctx, session.KindScreening, session.StartRequest{UserID: "u1"}); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := o.StartVoiceTurn(ctx); err != nil {
		t.Fatalf("StartVoiceTurn: %v", err)
	}
	if err := o.End(ctx); err != nil {
		t.Fatalf("End: %v", err)
	}
	if rec.IsRecording() {
		t.Fatal("recording still active after End")
	}
}
