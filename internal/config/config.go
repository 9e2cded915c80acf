package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds application configuration for both the interview client and
// the local development backend stub.
type Config struct {
	// Client side
	BackendURL     string
	RequestTimeout time.Duration
	UserID         string
	Language       string
	Voice          string

	// Streaming recognition fallback (optional)
	RecognizerWSURL  string
	RecognizerAPIKey string

	// Direct TTS fallback (optional)
	DeepgramAPIKey string
	DeepgramModel  string

	// Recording archive (optional)
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	// Dev server side
	HTTPAddress    string
	StubTranscript string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found")
	}

	backend := os.Getenv("BACKEND_URL")
	if backend == "" {
		backend = "http://localhost:8000"
	}

	timeout := 30 * time.Second
	if v := os.Getenv("REQUEST_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		} else {
			logrus.WithField("value", v).Warn("invalid REQUEST_TIMEOUT_SECONDS, using default")
		}
	}

	lang := os.Getenv("INTERVIEW_LANGUAGE")
	if lang == "" {
		lang = "en"
	}

	voice := os.Getenv("TTS_VOICE")
	if voice == "" {
		voice = "professional"
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8000"
	}

	deepgramModel := os.Getenv("DEEPGRAM_TTS_MODEL")
	if deepgramModel == "" {
		deepgramModel = "aura-2-thalia-en"
	}

	if os.Getenv("DEEPGRAM_API_KEY") == "" {
		logrus.Info("DEEPGRAM_API_KEY not set - direct TTS fallback disabled")
	}
	if os.Getenv("RECOGNIZER_WS_URL") == "" {
		logrus.Info("RECOGNIZER_WS_URL not set - streaming recognition fallback disabled")
	}

	return Config{
		BackendURL:         backend,
		RequestTimeout:     timeout,
		UserID:             os.Getenv("USER_ID"),
		Language:           lang,
		Voice:              voice,
		RecognizerWSURL:    os.Getenv("RECOGNIZER_WS_URL"),
		RecognizerAPIKey:   os.Getenv("RECOGNIZER_API_KEY"),
		DeepgramAPIKey:     os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:      deepgramModel,
		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     envOr("SUPABASE_BUCKET", "interview-recordings"),
		HTTPAddress:        addr,
		StubTranscript:     os.Getenv("STUB_TRANSCRIPT"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
