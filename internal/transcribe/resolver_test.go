package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/api"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/capture"
)

type stubProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Transcribe(context.Context, capture.Recording, string) (string, error) {
	s.calls++
	return s.text, s.err
}

func rec(transcript string) capture.Recording {
	return capture.Recording{
		Data:               []byte{1, 2, 3},
		MIMEType:           "audio/opus",
		FallbackTranscript: transcript,
	}
}

func TestResolve_FirstProviderWins(t *testing.T) {
	primary := &stubProvider{name: "gpu", text: "I led the migration"}
	backup := &stubProvider{name: "cloud", text: "unused"}
	r := NewResolver(time.Second, primary, backup)

	got, err := r.Resolve(context.Background(), rec(""), "en")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Text != "I led the migration" || got.Provider != "gpu" || got.Language != "en" {
		t.Fatalf("Resolve = %+v", got)
	}
	if backup.calls != 0 {
		t.Fatalf("backup called %d times", backup.calls)
	}
}

func TestResolve_FallsThroughOnFailure(t *testing.T) {
	primary := &stubProvider{name: "gpu", err: errors.New("service unavailable")}
	empty := &stubProvider{name: "cloud", text: "   "}
	r := NewResolver(time.Second, primary, empty, NewLocalProvider())

	got, err := r.Resolve(context.Background(), rec("my greatest strength is focus"), "en")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Provider != "local" {
		t.Fatalf("provider = %q, want local", got.Provider)
	}
	if got.Text != "my greatest strength is focus" {
		t.Fatalf("text = %q", got.Text)
	}
}

func TestResolve_Exhausted(t *testing.T) {
	r := NewResolver(time.Second,
		&stubProvider{name: "gpu", err: errors.New("down")},
		NewLocalProvider(), // empty fallback transcript
	)
	_, err := r.Resolve(context.Background(), rec(""), "en")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}

func TestResolve_ContextCancelStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	late := &stubProvider{name: "cloud", text: "should not run"}
	r := NewResolver(time.Second,
		&stubProvider{name: "gpu", err: context.Canceled},
		late,
	)
	_, err := r.Resolve(ctx, rec(""), "en")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if late.calls != 0 {
		t.Fatal("chain continued after cancellation")
	}
}

func TestBackendProvider_UploadsRecording(t *testing.T) {
	var gotProvider, gotLanguage, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/voice/transcribe" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotProvider = r.FormValue("provider")
		gotLanguage = r.FormValue("language")
		if _, hdr, err := r.FormFile("audio"); err == nil {
			gotFile = hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"walk me through your resume","language":"en","provider":"gpu"}`))
	}))
	defer srv.Close()

	p := NewGPUProvider(api.New(srv.URL, time.Second))
	text, err := p.Transcribe(context.Background(), rec(""), "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "walk me through your resume" {
		t.Fatalf("text = %q", text)
	}
	if gotProvider != "gpu" || gotLanguage != "en" || gotFile != "recording.opus" {
		t.Fatalf("form = provider:%q language:%q file:%q", gotProvider, gotLanguage, gotFile)
	}
}

func TestBackendProvider_ServerErrorFallsToLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"transcription pool busy"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := api.New(srv.URL, time.Second)
	r := NewResolver(time.Second, NewGPUProvider(client), NewCloudProvider(client), NewLocalProvider())

	got, err := r.Resolve(context.Background(), rec("tell me about a conflict"), "en")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Provider != "local" || got.Text != "tell me about a conflict" {
		t.Fatalf("Resolve = %+v", got)
	}
}

func TestBackendProvider_RejectsEmptyRecording(t *testing.T) {
	p := NewCloudProvider(api.New("http://127.0.0.1:1", time.Second))
	if _, err := p.Transcribe(context.Background(), capture.Recording{}, "en"); err == nil {
		t.Fatal("expected error for empty recording")
	}
}
