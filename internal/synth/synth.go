// Package synth converts assistant replies into playable audio URLs.
// The primary path asks the coaching backend for a pre-rendered clip;
// when the backend's voice pipeline is down a direct Deepgram session
// renders the speech locally.
package synth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/api"
)

// ErrUnavailable reports that no synthesizer could render the text.
var ErrUnavailable = errors.New("synth: no synthesizer available")

// Synthesizer renders text to a URL the playback unit can consume.
// Implementations may return remote URLs or data URLs.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, voice string) (string, error)
}

// Chain tries synthesizers in order and returns the first audio URL.
type Chain struct {
	members []Synthesizer
	log     *logrus.Entry
}

func NewChain(members ...Synthesizer) *Chain {
	return &Chain{
		members: members,
		log:     logrus.WithField("component", "synth"),
	}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Synthesize(ctx context.Context, text, voice string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty text", ErrUnavailable)
	}
	var lastErr error
	for _, s := range c.members {
		url, err := s.Synthesize(ctx, text, voice)
		if err != nil {
			c.log.WithError(err).WithField("synthesizer", s.Name()).Warn("synthesis attempt failed")
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if url != "" {
			return url, nil
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}
	return "", ErrUnavailable
}

// Backend asks the coaching backend to render the clip server-side.
type Backend struct {
	client *api.Client
}

func NewBackend(client *api.Client) *Backend { return &Backend{client: client} }

func (b *Backend) Name() string { return "backend" }

type synthesizeRequest struct {
	Text    string  `json:"text"`
	Voice   string  `json:"voice"`
	Emotion *string `json:"emotion"`
}

type synthesizeResponse struct {
	AudioURL string `json:"audio_url"`
}

func (b *Backend) Synthesize(ctx context.Context, text, voice string) (string, error) {
	var resp synthesizeResponse
	err := b.client.PostJSON(ctx, "/api/voice/synthesize-url",
		synthesizeRequest{Text: text, Voice: voice}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AudioURL == "" {
		return "", errors.New("backend returned no audio url")
	}
	return resp.AudioURL, nil
}

// DataURL packages a rendered WAV clip as a data URL so playback needs no
// extra fetch.
func DataURL(wav []byte) string {
	return "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(wav)
}
