package synth

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
	"github.com/sirupsen/logrus"

	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/capture"
)

// Deepgram renders speech over a Deepgram websocket session and returns the
// clip as a WAV data URL. It is the fallback when the backend voice
// pipeline cannot serve a clip.
type Deepgram struct {
	apiKey     string
	model      string
	sampleRate int
	log        *logrus.Entry
}

func NewDeepgram(apiKey, model string) *Deepgram {
	if model == "" {
		model = "aura-2-thalia-en"
	}
	return &Deepgram{
		apiKey:     apiKey,
		model:      model,
		sampleRate: 48000,
		log:        logrus.WithField("component", "synth.deepgram"),
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

func (d *Deepgram) Synthesize(ctx context.Context, text, _ string) (string, error) {
	pcm, err := d.renderPCM(ctx, text)
	if err != nil {
		return "", err
	}
	if len(pcm) == 0 {
		return "", errors.New("deepgram returned no audio")
	}
	return DataURL(capture.WrapPCMInWAV(pcm, d.sampleRate)), nil
}

// renderPCM collects the full linear16 stream for one utterance. The session
// ends on a quiet window after audio has been seen, or on a hard deadline.
func (d *Deepgram) renderPCM(ctx context.Context, text string) ([]byte, error) {
	if d.apiKey == "" {
		return nil, errors.New("deepgram: API key missing")
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   "linear16",
		SampleRate: d.sampleRate,
	}

	var (
		lastRecvUnix int64
		seenAudio    int32
		audio        []byte
		audioCh      = make(chan []byte, 4096)
	)

	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		atomic.StoreInt64(&lastRecvUnix, time.Now().UnixNano())
		atomic.StoreInt32(&seenAudio, 1)
		b := make([]byte, len(data))
		copy(b, data)
		select {
		case audioCh <- b:
		default:
		}
		return nil
	}}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}

	stopped := false
	stopClient := func() {
		if !stopped {
			stopped = true
			dg.Stop()
		}
	}
	defer stopClient()

	if ok := dg.Connect(); !ok {
		return nil, errors.New("deepgram: connect failed")
	}

	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		d.log.WithError(err).Warn("deepgram flush")
	}

	idleWindow := 400 * time.Millisecond
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(12 * time.Second)

	drain := func() {
		for {
			select {
			case chunk := <-audioCh:
				audio = append(audio, chunk...)
			default:
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk := <-audioCh:
			audio = append(audio, chunk...)
		case <-ticker.C:
			if atomic.LoadInt32(&seenAudio) == 1 {
				last := time.Unix(0, atomic.LoadInt64(&lastRecvUnix))
				if time.Since(last) > idleWindow {
					drain()
					return audio, nil
				}
			}
			if time.Now().After(deadline) {
				drain()
				return audio, nil
			}
		}
	}
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
