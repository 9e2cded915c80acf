package recognizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// echoServer upgrades the connection, then replies to each binary audio
// frame with a scripted transcript event.
func echoServer(t *testing.T, events []message) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		i := 0
		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue // terminate or other control payloads
			}
			if i < len(events) {
				raw, _ := json.Marshal(events[i])
				if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
					return
				}
				i++
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForTranscript(t *testing.T, s *Streaming, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Snapshot() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("transcript = %q, want %q", s.Snapshot(), want)
}

func TestStreaming_AccumulatesFinalsAndInterim(t *testing.T) {
	srv := echoServer(t, []message{
		{Type: "transcript", Text: "tell me about", Final: false},
		{Type: "transcript", Text: "tell me about yourself", Final: true},
		{Type: "transcript", Text: "and your", Final: false},
	})
	defer srv.Close()

	s := NewStreaming(wsURL(srv), "")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s.Feed([]byte{1})
	waitForTranscript(t, s, "tell me about")

	s.Feed([]byte{2})
	waitForTranscript(t, s, "tell me about yourself")

	s.Feed([]byte{3})
	waitForTranscript(t, s, "tell me about yourself and your")

	final := s.Stop()
	if final != "tell me about yourself and your" {
		t.Fatalf("Stop = %q", final)
	}
}

func TestStreaming_StopIsIdempotent(t *testing.T) {
	srv := echoServer(t, []message{
		{Type: "transcript", Text: "hello", Final: true},
	})
	defer srv.Close()

	s := NewStreaming(wsURL(srv), "")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Feed([]byte{1})
	waitForTranscript(t, s, "hello")

	if got := s.Stop(); got != "hello" {
		t.Fatalf("first Stop = %q", got)
	}
	if got := s.Stop(); got != "hello" {
		t.Fatalf("second Stop = %q", got)
	}
}

func TestStreaming_DialFailure(t *testing.T) {
	s := NewStreaming("ws://127.0.0.1:1/nope", "key")
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := s.Start(ctx); err == nil {
		t.Fatal("expected dial error")
	}
	// A failed start leaves the recognizer stopped and empty.
	if got := s.Stop(); got != "" {
		t.Fatalf("Stop after failed start = %q", got)
	}
}

func TestJoinTranscript(t *testing.T) {
	cases := []struct {
		committed, interim, want string
	}{
		{"", "", ""},
		{"done", "", "done"},
		{"", "partial", "partial"},
		{"done", "partial", "done partial"},
		{"  done  ", " partial ", "done partial"},
	}
	for _, c := range cases {
		if got := joinTranscript(c.committed, c.interim); got != c.want {
			t.Errorf("joinTranscript(%q, %q) = %q, want %q", c.committed, c.interim, got, c.want)
		}
	}
}
