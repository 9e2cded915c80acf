// Package devserver is a self-contained stand-in for the coaching backend.
// It serves the full interview and voice HTTP surface with canned question
// banks and heuristic scoring so the client stack can be exercised end to
// end without the real service.
package devserver

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/capture"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/synth"
)

var questionBanks = map[string][]string{
	"screening": {
		"Tell me about yourself and your background.",
		"What interests you about this role?",
		"What are your salary expectations?",
		"When would you be available to start?",
		"Do you have any questions for us?",
	},
	"behavioral": {
		"Tell me about a time you had to resolve a conflict within your team.",
		"Describe a situation where you missed a deadline. What happened?",
		"Give me an example of a goal you set and how you achieved it.",
		"Tell me about a time you received difficult feedback.",
		"Describe a decision you made with incomplete information.",
	},
	"technical": {
		"Walk me through the architecture of a system you designed recently.",
		"How would you debug a service whose latency doubled overnight?",
		"Explain how you approach testing in a large codebase.",
		"How do you decide between consistency and availability in a distributed store?",
		"Describe a performance problem you found and how you fixed it.",
	},
	"customize": {
		"Based on your resume, tell me about your most relevant project.",
		"How does your experience map to the job description?",
		"What gap between your background and this role concerns you most?",
	},
}

// Server implements the backend HTTP contract for development.
type Server struct {
	store *Store
	log   *logrus.Entry

	// StubTranscript, when non-empty, is returned by the transcribe
	// endpoint. When empty the endpoint answers 503, which pushes clients
	// down their fallback chain.
	StubTranscript string
}

func New() *Server {
	return &Server{
		store: NewStore(),
		log:   logrus.WithField("component", "devserver"),
	}
}

// Handler builds the routed echo instance.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/health", s.health)
	e.GET("/api/voice/status", s.voiceStatus)
	e.POST("/api/voice/transcribe", s.transcribe)
	e.POST("/api/voice/synthesize-url", s.synthesizeURL)

	e.POST("/api/interview/:kind/start", s.startInterview)
	e.POST("/api/interview/:kind/message", s.message)
	e.GET("/api/interview/:kind/session/:id", s.sessionInfo)
	e.DELETE("/api/interview/:kind/session/:id", s.deleteSession)

	return e
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "healthy"})
}

func (s *Server) voiceStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"voice_enabled": true,
		"tts":           echo.Map{"available": true, "provider": "devserver"},
		"stt":           echo.Map{"available": s.StubTranscript != "", "provider": "devserver"},
	})
}

type startRequest struct {
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
}

func (s *Server) startInterview(c echo.Context) error {
	kind := c.Param("kind")
	bank, ok := questionBanks[kind]
	if !ok {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "unknown interview type: " + kind})
	}
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid request body"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "user_id is required"})
	}

	sess := s.store.Create(kind, req.UserID, req.UserName, bank)
	name := req.UserName
	if name == "" {
		name = "there"
	}
	greeting := fmt.Sprintf("Hi %s, welcome to your %s interview. We'll cover %d questions. %s",
		name, kind, len(bank), bank[0])

	s.log.WithFields(logrus.Fields{"session": sess.ID, "kind": kind}).Info("interview started")
	return c.JSON(http.StatusOK, echo.Map{
		"session_id":             sess.ID,
		"greeting":               greeting,
		"max_questions":          len(bank),
		"duration_limit_minutes": 30,
	})
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) message(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid request body"})
	}
	sess, release, ok := s.store.Get(req.SessionID)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "session not found"})
	}
	defer release()

	if sess.Completed {
		return c.JSON(http.StatusConflict, echo.Map{"detail": "interview already completed"})
	}

	eval, score := s.evaluate(sess.Kind, req.Message)
	sess.Responses++
	sess.Scores = append(sess.Scores, score)

	wantsStop := strings.Contains(strings.ToLower(req.Message), "stop the interview")
	if sess.Asked >= len(sess.Questions) || wantsStop {
		sess.Completed = true
		return c.JSON(http.StatusOK, echo.Map{
			"message":     "That concludes the interview. Thank you for your time.",
			"is_complete": true,
			"evaluation":  eval,
			"summary": echo.Map{
				"overall_score":   average(sess.Scores),
				"total_responses": sess.Responses,
				"interview_type":  sess.Kind,
			},
		})
	}

	sess.Asked++
	return c.JSON(http.StatusOK, echo.Map{
		"message":         sess.Questions[sess.Asked-1],
		"question_number": sess.Asked,
		"total_questions": len(sess.Questions),
		"is_complete":     false,
		"evaluation":      eval,
	})
}

// evaluate produces a heuristic per-answer score. Longer, structured
// answers score higher; the rubric block depends on the interview kind.
func (s *Server) evaluate(kind, answer string) (echo.Map, float64) {
	words := len(strings.Fields(answer))
	score := 2.0 + math.Min(float64(words)/40.0, 1.0)*2.5
	score = math.Round(score*10) / 10

	eval := echo.Map{
		"score":    score,
		"feedback": feedbackFor(words),
	}
	switch kind {
	case "behavioral":
		eval["star_scores"] = echo.Map{
			"situation": score,
			"task":      math.Max(score-0.5, 1),
			"action":    score,
			"result":    math.Max(score-0.3, 1),
		}
	case "technical":
		eval["technical_scores"] = echo.Map{
			"technical_accuracy":    score,
			"depth_of_knowledge":    math.Max(score-0.4, 1),
			"practical_experience":  score,
			"system_thinking":       math.Max(score-0.2, 1),
			"communication_clarity": score,
		}
	}
	return eval, score
}

func feedbackFor(words int) string {
	switch {
	case words < 10:
		return "Try to expand your answer with a concrete example."
	case words < 40:
		return "Good start. Adding measurable outcomes would strengthen it."
	default:
		return "Well structured answer with good depth."
	}
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return math.Round(sum/float64(len(xs))*10) / 10
}

func (s *Server) sessionInfo(c echo.Context) error {
	sess, release, ok := s.store.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "session not found"})
	}
	defer release()

	phase := "in_progress"
	if sess.Completed {
		phase = "completed"
	}
	return c.JSON(http.StatusOK, echo.Map{
		"session_id":             sess.ID,
		"user_id":                sess.UserID,
		"interview_type":         sess.Kind,
		"phase":                  phase,
		"current_question_index": sess.Asked,
		"total_questions":        len(sess.Questions),
		"total_responses":        sess.Responses,
		"created_at":             sess.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (s *Server) deleteSession(c echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "session not found"})
	}
	s.log.WithField("session", id).Info("session ended")
	return c.JSON(http.StatusOK, echo.Map{"message": "session ended"})
}

func (s *Server) transcribe(c echo.Context) error {
	if s.StubTranscript == "" {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"detail": "transcription providers unavailable"})
	}
	if _, err := c.FormFile("audio"); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "audio file is required"})
	}
	language := c.FormValue("language")
	if language == "" {
		language = "en"
	}
	return c.JSON(http.StatusOK, echo.Map{
		"text":     s.StubTranscript,
		"language": language,
		"provider": "devserver",
	})
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func (s *Server) synthesizeURL(c echo.Context) error {
	var req synthesizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid request body"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"detail": "text is required"})
	}
	return c.JSON(http.StatusOK, echo.Map{"audio_url": synth.DataURL(beepWAV())})
}

// beepWAV renders a short 440 Hz tone so playback paths have real bytes to
// chew on.
func beepWAV() []byte {
	const (
		rate = 16000
		ms   = 200
	)
	samples := rate * ms / 1000
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/rate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return capture.WrapPCMInWAV(pcm, rate)
}
