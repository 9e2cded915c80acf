// Package transcribe turns a finished recording into text by walking an
// ordered provider chain. A provider failure moves to the next provider;
// the resolver only fails when every provider has been exhausted.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/api"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/capture"
)

// ErrExhausted reports that no provider produced a transcript.
var ErrExhausted = errors.New("transcribe: all providers failed")

// Result is a resolved transcript tagged with the provider that produced it.
type Result struct {
	Text     string
	Provider string
	Language string
}

// Provider converts one recording into text.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, rec capture.Recording, language string) (string, error)
}

// Resolver walks providers in order until one succeeds.
type Resolver struct {
	providers []Provider
	timeout   time.Duration
	log       *logrus.Entry
}

// NewResolver builds a resolver over the given providers. perProvider bounds
// each individual attempt; zero means 30s.
func NewResolver(perProvider time.Duration, providers ...Provider) *Resolver {
	if perProvider <= 0 {
		perProvider = 30 * time.Second
	}
	return &Resolver{
		providers: providers,
		timeout:   perProvider,
		log:       logrus.WithField("component", "transcribe"),
	}
}

// Resolve tries each provider in order and returns the first non-empty
// transcript. Empty transcripts count as failures so a later provider can
// still recover the turn.
func (r *Resolver) Resolve(ctx context.Context, rec capture.Recording, language string) (Result, error) {
	var lastErr error
	for _, p := range r.providers {
		attempt, cancel := context.WithTimeout(ctx, r.timeout)
		text, err := p.Transcribe(attempt, rec, language)
		cancel()
		if err != nil {
			r.log.WithError(err).WithField("provider", p.Name()).Warn("transcription attempt failed")
			lastErr = err
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			r.log.WithField("provider", p.Name()).Debug("provider returned empty transcript")
			lastErr = fmt.Errorf("%s: empty transcript", p.Name())
			continue
		}
		return Result{Text: text, Provider: p.Name(), Language: language}, nil
	}
	if lastErr != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
	}
	return Result{}, ErrExhausted
}

// transcribeResponse is the backend's transcription payload.
type transcribeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Provider string `json:"provider"`
}

// BackendProvider uploads the recording to the coaching backend. The hint
// field lets the backend route to a specific engine tier.
type BackendProvider struct {
	client *api.Client
	name   string
	hint   string
}

// NewGPUProvider targets the backend's accelerated transcription tier.
func NewGPUProvider(client *api.Client) *BackendProvider {
	return &BackendProvider{client: client, name: "gpu", hint: "gpu"}
}

// NewCloudProvider targets the backend's hosted cloud transcription.
func NewCloudProvider(client *api.Client) *BackendProvider {
	return &BackendProvider{client: client, name: "cloud", hint: "cloud"}
}

func (b *BackendProvider) Name() string { return b.name }

func (b *BackendProvider) Transcribe(ctx context.Context, rec capture.Recording, language string) (string, error) {
	if len(rec.Data) == 0 {
		return "", errors.New("empty recording")
	}
	fields := map[string]string{"language": language}
	if b.hint != "" {
		fields["provider"] = b.hint
	}
	var resp transcribeResponse
	err := b.client.PostMultipart(ctx, "/api/voice/transcribe",
		fields, "audio", fileNameFor(rec.MIMEType), rec.MIMEType, rec.Data, &resp)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func fileNameFor(mime string) string {
	if strings.Contains(mime, "wav") {
		return "recording.wav"
	}
	return "recording.opus"
}

// LocalProvider serves the transcript the on-device recognizer accumulated
// while recording. It is the last resort before giving up the turn.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider { return &LocalProvider{} }

func (l *LocalProvider) Name() string { return "local" }

func (l *LocalProvider) Transcribe(_ context.Context, rec capture.Recording, _ string) (string, error) {
	if strings.TrimSpace(rec.FallbackTranscript) == "" {
		return "", errors.New("no on-device transcript available")
	}
	return rec.FallbackTranscript, nil
}
