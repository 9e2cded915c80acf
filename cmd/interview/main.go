// Command interview is a terminal client for the interview coaching
// backend. Answers are typed, or supplied as pre-recorded audio files to
// exercise the full voice pipeline headlessly.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/api"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/archive"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/capture"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/config"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/orchestrator"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/playback"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/recognizer"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/session"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/synth"
	"github.com/EmmaW215/SmartSccuss-Career-Intelligence-AI/internal/transcribe"
)

// fileDevice replays a pre-recorded PCM file as a microphone. The path is
// set per voice turn.
type fileDevice struct {
	mu   sync.Mutex
	path string
}

func (d *fileDevice) setPath(p string) {
	d.mu.Lock()
	d.path = p
	d.mu.Unlock()
}

type fileStream struct{ ch chan []byte }

func (s *fileStream) Chunks() <-chan []byte { return s.ch }
func (s *fileStream) Close() error          { return nil }

func (d *fileDevice) Open(_ context.Context, cons capture.Constraints) (capture.Stream, string, error) {
	d.mu.Lock()
	path := d.path
	d.mu.Unlock()
	if path == "" {
		// Availability probe before any file is selected.
		return &fileStream{ch: closedChunks()}, "file", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %s", capture.ErrNoDevice, path)
		}
		return nil, "", err
	}
	chunkSize := int(float64(cons.SampleRate*2) * cons.ChunkInterval.Seconds())
	if chunkSize <= 0 {
		chunkSize = 3200
	}
	ch := make(chan []byte, len(data)/chunkSize+1)
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		ch <- data[off:end]
	}
	close(ch)
	return &fileStream{ch: ch}, "file:" + path, nil
}

func closedChunks() chan []byte {
	ch := make(chan []byte)
	close(ch)
	return ch
}

// consoleOutput satisfies the playback contract for a headless terminal:
// clips "play" instantly and are announced on the transcript.
type consoleOutput struct{}

func (consoleOutput) Play(src string) (<-chan error, error) {
	done := make(chan error)
	close(done)
	return done, nil
}
func (consoleOutput) Pause()            {}
func (consoleOutput) Resume() error     { return nil }
func (consoleOutput) Stop()             {}
func (consoleOutput) SetVolume(float64) {}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	cfg := config.Load()

	kind := session.KindScreening
	if len(os.Args) > 1 {
		kind = session.Kind(os.Args[1])
		if !kind.Valid() {
			logrus.Fatalf("unknown interview type %q (want screening, behavioral, technical or customize)", os.Args[1])
		}
	}

	client := api.New(cfg.BackendURL, cfg.RequestTimeout)

	var rec capture.SpeechRecognizer
	if cfg.RecognizerWSURL != "" {
		rec = recognizer.NewStreaming(cfg.RecognizerWSURL, cfg.RecognizerAPIKey)
	}
	device := &fileDevice{}
	cons := capture.DefaultConstraints()
	recorder := capture.NewRecorder(device, rec, capture.DefaultEncodings(cons.SampleRate), cons)

	synthesizers := []synth.Synthesizer{synth.NewBackend(client)}
	if cfg.DeepgramAPIKey != "" {
		synthesizers = append(synthesizers, synth.NewDeepgram(cfg.DeepgramAPIKey, cfg.DeepgramModel))
	}

	var store archive.Storage
	if sb := archive.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket); sb.Configured() {
		store = sb
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Session:  session.NewClient(client),
		Recorder: recorder,
		Player:   playback.NewPlayer(consoleOutput{}, playback.Events{}, true),
		Synth:    synth.NewChain(synthesizers...),
		Resolver: transcribe.NewResolver(cfg.RequestTimeout,
			transcribe.NewGPUProvider(client),
			transcribe.NewCloudProvider(client),
			transcribe.NewLocalProvider()),
		Archive:  store,
		Language: cfg.Language,
		Voice:    cfg.Voice,
		OnTurns:  printLatest,
	})
	if err != nil {
		logrus.WithError(err).Fatal("build orchestrator")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		fmt.Println("\nending interview...")
		_ = orch.End(context.Background())
		cancel()
		os.Exit(0)
	}()

	userID := cfg.UserID
	if userID == "" {
		userID = "local-user"
	}
	if err := orch.Begin(ctx, kind, session.StartRequest{UserID: userID, VoiceEnabled: true}); err != nil {
		logrus.WithError(err).Fatal("could not start interview")
	}

	fmt.Println("\nType your answer, or:")
	fmt.Println("  /voice <file>   answer with a recorded audio file")
	fmt.Println("  /retry          resend your last answer")
	fmt.Println("  /quit           end the interview")

	scanner := bufio.NewScanner(os.Stdin)
	for !orch.Completed() {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case line == "/quit":
			if err := orch.End(ctx); err != nil {
				logrus.WithError(err).Warn("end failed")
			}
			return
		case line == "/retry":
			if err := orch.Retry(ctx); err != nil {
				fmt.Printf("retry failed: %v\n", err)
			}
		case strings.HasPrefix(line, "/voice "):
			runVoiceTurn(ctx, orch, device, strings.TrimSpace(strings.TrimPrefix(line, "/voice ")))
		default:
			if err := orch.SubmitText(ctx, line); err != nil {
				if errors.Is(err, orchestrator.ErrCompleted) {
					break
				}
				fmt.Printf("answer failed: %v (use /retry)\n", err)
			}
		}
	}

	if orch.Completed() {
		fmt.Println("\nInterview complete.")
		if summary := orch.Summary(); len(summary) > 0 {
			fmt.Printf("Summary: %s\n", summary)
		}
	}
	if err := orch.End(ctx); err != nil {
		logrus.WithError(err).Warn("end failed")
	}
}

func runVoiceTurn(ctx context.Context, orch *orchestrator.Orchestrator, device *fileDevice, path string) {
	device.setPath(path)
	defer device.setPath("")
	if err := orch.StartVoiceTurn(ctx); err != nil {
		fmt.Printf("voice turn failed: %v\n", err)
		return
	}
	if err := orch.FinishVoiceTurn(ctx); err != nil {
		if errors.Is(err, orchestrator.ErrNoTranscript) {
			fmt.Println("could not transcribe that recording; please type your answer")
			return
		}
		fmt.Printf("voice turn failed: %v (use /retry)\n", err)
	}
}

// printLatest renders the newest turn after each transcript change.
func printLatest(turns []orchestrator.Turn) {
	if len(turns) == 0 {
		return
	}
	t := turns[len(turns)-1]
	if t.Pending {
		fmt.Println("… transcribing")
		return
	}
	speaker := "You"
	if t.Role == orchestrator.RoleAssistant {
		speaker = "Interviewer"
	}
	fmt.Printf("\n%s: %s\n", speaker, t.Content)
	if t.Evaluation != nil && t.Evaluation.Feedback != "" {
		fmt.Printf("  [score %.1f] %s\n", t.Evaluation.Score, t.Evaluation.Feedback)
	}
	if t.QuestionNumber > 0 && t.TotalQuestions > 0 {
		fmt.Printf("  (question %d of %d)\n", t.QuestionNumber, t.TotalQuestions)
	}
}
