// Package recognizer provides the best-effort parallel transcription session
// the capture unit runs alongside a recording. It is strictly a fallback
// input: its transcript is consulted only after the primary recording stops,
// and only when the backend transcription providers fail.
package recognizer

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// message is one transcript event from the streaming recognition service.
type message struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
	Error string `json:"error,omitempty"`
}

// Streaming is a continuous speech-recognition session over a websocket.
// The remote service may end a session after silence; while the recording is
// still active the session auto-restarts and keeps accumulating text, so the
// final snapshot spans the entire recording window.
type Streaming struct {
	url    string
	apiKey string
	log    *logrus.Entry

	mu        sync.Mutex
	conn      *websocket.Conn
	running   bool
	committed strings.Builder
	interim   string

	audioCh chan []byte
	stopCh  chan struct{}
}

// NewStreaming builds a recognizer for the given websocket endpoint. apiKey
// may be empty for unauthenticated endpoints.
func NewStreaming(wsURL, apiKey string) *Streaming {
	return &Streaming{
		url:    wsURL,
		apiKey: apiKey,
		log:    logrus.WithField("component", "recognizer"),
	}
}

// Start connects and begins the recognition session. The session runs until
// Stop or ctx cancellation; server-side ends trigger a reconnect.
func (s *Streaming) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.committed.Reset()
	s.interim = ""
	s.audioCh = make(chan []byte, 256)
	s.stopCh = make(chan struct{})
	s.running = true
	audioCh := s.audioCh
	stopCh := s.stopCh
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
	s.setConn(conn)

	go s.sendLoop(audioCh, stopCh)
	go s.readLoop(ctx, stopCh)
	return nil
}

func (s *Streaming) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	var hdr http.Header
	if s.apiKey != "" {
		hdr = http.Header{"Authorization": []string{s.apiKey}}
	}
	conn, resp, err := dialer.DialContext(ctx, s.url, hdr)
	if err != nil {
		if resp != nil {
			s.log.WithField("status", resp.StatusCode).Warn("recognizer connect failed")
		}
		return nil, err
	}
	return conn, nil
}

func (s *Streaming) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// Feed queues PCM audio for the recognition service. When the buffer is
// full the chunk is dropped; the fallback transcript is best-effort.
func (s *Streaming) Feed(pcm []byte) {
	s.mu.Lock()
	running := s.running
	ch := s.audioCh
	s.mu.Unlock()
	if !running {
		return
	}
	select {
	case ch <- pcm:
	default:
		s.log.Debug("recognizer audio buffer full, dropping chunk")
	}
}

func (s *Streaming) sendLoop(audioCh <-chan []byte, stopCh <-chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case pcm, ok := <-audioCh:
			if !ok {
				return
			}
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				s.log.WithError(err).Debug("recognizer send failed")
			}
		}
	}
}

// readLoop consumes transcript events and reconnects when the service ends
// the session mid-recording.
func (s *Streaming) readLoop(ctx context.Context, stopCh <-chan struct{}) {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}
			// Session ended server-side while still recording: restart.
			next, derr := s.dial(ctx)
			if derr != nil {
				s.log.WithError(derr).Debug("recognizer restart failed")
				return
			}
			s.setConn(next)
			continue
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "transcript":
			s.mu.Lock()
			if msg.Final {
				if s.committed.Len() > 0 && msg.Text != "" {
					s.committed.WriteString(" ")
				}
				s.committed.WriteString(msg.Text)
				s.interim = ""
			} else {
				s.interim = msg.Text
			}
			s.mu.Unlock()
		case "error":
			// no-speech style errors are routine; keep the session alive
			s.log.WithField("error", msg.Error).Debug("recognizer event")
		}
	}
}

// Snapshot returns the transcript accumulated so far, committed text plus
// the latest interim fragment.
func (s *Streaming) Snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return joinTranscript(s.committed.String(), s.interim)
}

// Stop tears the session down and returns the final transcript snapshot.
func (s *Streaming) Stop() string {
	s.mu.Lock()
	if !s.running {
		final := joinTranscript(s.committed.String(), s.interim)
		s.mu.Unlock()
		return final
	}
	s.running = false
	close(s.stopCh)
	conn := s.conn
	s.conn = nil
	final := joinTranscript(s.committed.String(), s.interim)
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteJSON(map[string]string{"type": "terminate"})
		_ = conn.Close()
	}
	return final
}

func joinTranscript(committed, interim string) string {
	out := strings.TrimSpace(committed)
	interim = strings.TrimSpace(interim)
	if interim != "" {
		if out != "" {
			out += " "
		}
		out += interim
	}
	return out
}
