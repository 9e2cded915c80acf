package session

import (
	"encoding/json"
	"time"
)

// Kind enumerates the interview formats the backend supports.
type Kind string

const (
	KindScreening  Kind = "screening"
	KindBehavioral Kind = "behavioral"
	KindTechnical  Kind = "technical"
	KindCustomize  Kind = "customize"
)

// Valid reports whether k is one of the known interview kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindScreening, KindBehavioral, KindTechnical, KindCustomize:
		return true
	}
	return false
}

// State is the client-side lifecycle phase of one interview session.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateActive
	StateCompleting
	StateCompleted
	StateEnded
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateCompleting:
		return "completing"
	case StateCompleted:
		return "completed"
	case StateEnded:
		return "ended"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// StarScores holds the situational rubric attached to behavioral answers.
type StarScores struct {
	Situation float64 `json:"situation,omitempty"`
	Task      float64 `json:"task,omitempty"`
	Action    float64 `json:"action,omitempty"`
	Result    float64 `json:"result,omitempty"`
}

// TechnicalScores holds the competency rubric attached to technical answers.
type TechnicalScores struct {
	TechnicalAccuracy    float64 `json:"technical_accuracy,omitempty"`
	DepthOfKnowledge     float64 `json:"depth_of_knowledge,omitempty"`
	PracticalExperience  float64 `json:"practical_experience,omitempty"`
	SystemThinking       float64 `json:"system_thinking,omitempty"`
	CommunicationClarity float64 `json:"communication_clarity,omitempty"`
}

// Evaluation is the per-response feedback produced by the backend. It is
// display data only; the client never mutates it. The two rubric blocks are
// mutually exclusive and depend on the interview kind.
type Evaluation struct {
	Score           float64          `json:"score,omitempty"`
	Feedback        string           `json:"feedback,omitempty"`
	Strengths       []string         `json:"strengths,omitempty"`
	Improvements    []string         `json:"improvements,omitempty"`
	StarScores      *StarScores      `json:"star_scores,omitempty"`
	TechnicalScores *TechnicalScores `json:"technical_scores,omitempty"`
}

// StartRequest carries the caller-supplied context for a new session.
type StartRequest struct {
	UserID         string
	UserName       string
	ResumeText     string
	JobDescription string
	VoiceEnabled   bool
}

// StartResult is the outcome of a successful Start.
type StartResult struct {
	SessionID      string
	Greeting       string
	TotalQuestions int
	DurationLimit  time.Duration
}

// TurnResult is the backend's reply to one submitted response.
type TurnResult struct {
	Message        string
	QuestionNumber int
	TotalQuestions int
	Complete       bool
	Evaluation     *Evaluation
	Summary        json.RawMessage
}

// Info mirrors the backend's session detail view.
type Info struct {
	SessionID            string             `json:"session_id"`
	UserID               string             `json:"user_id"`
	InterviewType        string             `json:"interview_type"`
	Phase                string             `json:"phase"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	TotalQuestions       int                `json:"total_questions"`
	TotalResponses       int                `json:"total_responses"`
	CreatedAt            string             `json:"created_at"`
	StartedAt            string             `json:"started_at,omitempty"`
	CompletedAt          string             `json:"completed_at,omitempty"`
	Scores               map[string]float64 `json:"scores,omitempty"`
}
