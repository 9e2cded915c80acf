package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/api"
)

// ErrResponseInFlight is returned when Respond is called while a previous
// Respond on the same session has not resolved yet. Turns are strictly
// serialized; the caller must disable input while a turn is pending.
var ErrResponseInFlight = errors.New("session: previous response still in flight")

// InvalidStateError is returned when an operation is not legal in the
// session's current lifecycle state.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("session: %s not valid in state %s", e.Op, e.State)
}

// Client owns one interview session's turn-based protocol and its
// authoritative state: lifecycle phase, question index and total count.
// Other components may read that state but never mutate it.
type Client struct {
	api *api.Client
	log *logrus.Entry

	mu             sync.Mutex
	state          State
	kind           Kind
	sessionID      string
	questionNumber int
	totalQuestions int
	inFlight       bool
	summary        json.RawMessage
}

// NewClient constructs an uninitialized session client.
func NewClient(backend *api.Client) *Client {
	return &Client{
		api: backend,
		log: logrus.WithField("component", "session"),
	}
}

type startRequestBody struct {
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name,omitempty"`
	ResumeText     string `json:"resume_text,omitempty"`
	JobDescription string `json:"job_description,omitempty"`
	VoiceEnabled   bool   `json:"voice_enabled,omitempty"`
}

type startResponseBody struct {
	SessionID            string `json:"session_id"`
	InterviewType        string `json:"interview_type"`
	Greeting             string `json:"greeting"`
	DurationLimitMinutes int    `json:"duration_limit_minutes"`
	MaxQuestions         int    `json:"max_questions"`
	// Some interview kinds report the count under a different key.
	TotalQuestions int `json:"total_questions"`
}

// Start begins a new session of the given kind. On success the client is
// active with an authoritative total question count and the backend's
// greeting. On failure the client is errored and the typed backend error is
// returned; a start failure is fatal for the session.
func (c *Client) Start(ctx context.Context, kind Kind, req StartRequest) (*StartResult, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("session: unknown interview kind %q", kind)
	}
	c.mu.Lock()
	if c.state != StateUninitialized {
		st := c.state
		c.mu.Unlock()
		return nil, &InvalidStateError{Op: "start", State: st}
	}
	c.state = StateStarting
	c.kind = kind
	c.mu.Unlock()

	body := startRequestBody{
		UserID:         req.UserID,
		UserName:       req.UserName,
		ResumeText:     req.ResumeText,
		JobDescription: req.JobDescription,
		VoiceEnabled:   req.VoiceEnabled,
	}
	var resp startResponseBody
	err := c.api.PostJSON(ctx, fmt.Sprintf("/api/interview/%s/start", kind), body, &resp)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateErrored
		return nil, err
	}

	total := resp.MaxQuestions
	if total == 0 {
		total = resp.TotalQuestions
	}
	c.state = StateActive
	c.sessionID = resp.SessionID
	c.questionNumber = 1
	c.totalQuestions = total
	c.log.WithFields(logrus.Fields{
		"session_id":      resp.SessionID,
		"kind":            kind,
		"total_questions": total,
	}).Info("session started")

	return &StartResult{
		SessionID:      resp.SessionID,
		Greeting:       resp.Greeting,
		TotalQuestions: total,
		DurationLimit:  time.Duration(resp.DurationLimitMinutes) * time.Minute,
	}, nil
}

type messageRequestBody struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// messageResponseBody accepts the superset of the reply shapes the backend
// variants produce: completion may be flagged by type or by is_complete, the
// reply text may arrive as message or ai_response, and the question counter
// as question_number or current_question.
type messageResponseBody struct {
	Type            string          `json:"type"`
	Message         string          `json:"message"`
	AIResponse      string          `json:"ai_response"`
	QuestionNumber  int             `json:"question_number"`
	CurrentQuestion int             `json:"current_question"`
	TotalQuestions  int             `json:"total_questions"`
	IsComplete      bool            `json:"is_complete"`
	Evaluation      *Evaluation     `json:"evaluation,omitempty"`
	Summary         json.RawMessage `json:"summary,omitempty"`
}

// Respond submits the user's answer text and returns the assistant's reply.
// Valid only while active; concurrent calls are rejected with
// ErrResponseInFlight. A backend failure leaves the session active so the
// same turn can be retried.
func (c *Client) Respond(ctx context.Context, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &api.Error{Kind: api.KindValidation, Detail: "empty response text"}
	}

	c.mu.Lock()
	if c.state != StateActive {
		st := c.state
		c.mu.Unlock()
		return nil, &InvalidStateError{Op: "respond", State: st}
	}
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrResponseInFlight
	}
	c.inFlight = true
	sessionID := c.sessionID
	kind := c.kind
	c.mu.Unlock()

	var resp messageResponseBody
	err := c.api.PostJSON(ctx, fmt.Sprintf("/api/interview/%s/message", kind),
		messageRequestBody{SessionID: sessionID, Message: text}, &resp)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err != nil {
		// Recoverable: the session stays active and the turn may be retried.
		return nil, err
	}

	message := resp.Message
	if message == "" {
		message = resp.AIResponse
	}
	qn := resp.QuestionNumber
	if qn == 0 {
		qn = resp.CurrentQuestion
	}
	// Question index is 1-based and never moves backwards.
	if qn > c.questionNumber {
		c.questionNumber = qn
	}
	// Total count is authoritative from start; accept only explicit upward
	// revisions.
	if resp.TotalQuestions > c.totalQuestions {
		c.totalQuestions = resp.TotalQuestions
	}

	complete := resp.IsComplete || resp.Type == "completion"
	if complete {
		c.state = StateCompleting
		c.summary = resp.Summary
		c.state = StateCompleted
		c.log.WithField("session_id", sessionID).Info("session completed")
	}

	return &TurnResult{
		Message:        message,
		QuestionNumber: c.questionNumber,
		TotalQuestions: c.totalQuestions,
		Complete:       complete,
		Evaluation:     resp.Evaluation,
		Summary:        resp.Summary,
	}, nil
}

// End terminates the session early. It is idempotent from the caller's
// perspective: ending an already-terminated session, or one the backend no
// longer knows about, is a no-op success.
func (c *Client) End(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateActive, StateCompleting:
		// proceed
	case StateCompleted, StateEnded, StateErrored:
		c.mu.Unlock()
		return nil
	default:
		st := c.state
		c.mu.Unlock()
		return &InvalidStateError{Op: "end", State: st}
	}
	sessionID := c.sessionID
	kind := c.kind
	c.mu.Unlock()

	status, err := c.api.Delete(ctx, fmt.Sprintf("/api/interview/%s/session/%s", kind, sessionID))
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		c.log.WithField("session_id", sessionID).Debug("session already absent server-side")
	} else if status < 200 || status >= 300 {
		return &api.Error{Kind: api.KindUnavailable, Status: status, Detail: "failed to end session"}
	}

	c.mu.Lock()
	c.state = StateEnded
	c.mu.Unlock()
	return nil
}

// Info fetches the backend's view of the session.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	c.mu.Lock()
	sessionID := c.sessionID
	kind := c.kind
	c.mu.Unlock()
	if sessionID == "" {
		return nil, &InvalidStateError{Op: "info", State: StateUninitialized}
	}
	var info Info
	if err := c.api.Get(ctx, fmt.Sprintf("/api/interview/%s/session/%s", kind, sessionID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// State returns the current lifecycle phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the backend-issued session id, empty before Start.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Kind returns the interview kind chosen at Start.
func (c *Client) Kind() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kind
}

// Progress returns the 1-based current question number and the total count.
func (c *Client) Progress() (current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.questionNumber, c.totalQuestions
}

// Summary returns the completion summary payload, nil until completed.
func (c *Client) Summary() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}
