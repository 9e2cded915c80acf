package playback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrAutoplayBlocked is returned by an Output when playback policy denies
// starting audio without a user gesture.
var ErrAutoplayBlocked = errors.New("playback: autoplay blocked")

// PlaybackError is the typed, non-fatal error surfaced when a clip fails to
// load or play. The queue survives it; the next item is attempted.
type PlaybackError struct {
	URL string
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback: %s: %v", e.URL, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// Output is the single audio sink a Player exclusively owns. Play returns a
// done channel that yields at most one error and is closed when the clip
// ends. Play itself fails fast on load errors or ErrAutoplayBlocked.
type Output interface {
	Play(src string) (done <-chan error, err error)
	Pause()
	Resume() error
	Stop()
	SetVolume(v float64)
}

// Events is the fixed set of named playback notifications.
type Events struct {
	OnStarted func(url string)
	OnEnded   func(url string)
	OnError   func(url string, err error)
}

// Player plays synthesized speech clips in strict FIFO order. While a clip
// is playing, or while autoplay is blocked, new clips are queued rather than
// interrupting; an explicit Stop abandons the current clip and every queued
// one.
type Player struct {
	out Output
	ev  Events
	log *logrus.Entry

	mu          sync.Mutex
	queue       []string
	playing     bool
	paused      bool
	current     string
	canAutoplay bool
	volume      float64
	gen         int
}

// NewPlayer wraps the injected output. autoplayAllowed carries the host's
// initial autoplay probe result.
func NewPlayer(out Output, ev Events, autoplayAllowed bool) *Player {
	return &Player{
		out:         out,
		ev:          ev,
		log:         logrus.WithField("component", "playback"),
		canAutoplay: autoplayAllowed,
		volume:      1,
	}
}

// Play loads and plays a clip, or enqueues it when something is already
// playing or autoplay is blocked. It never fails the caller for policy
// reasons; load errors are reported through OnError and the queue advances.
func (p *Player) Play(url string) {
	p.mu.Lock()
	if p.playing || p.paused || !p.canAutoplay {
		p.queue = append(p.queue, url)
		blocked := !p.canAutoplay
		p.mu.Unlock()
		if blocked {
			p.log.WithField("url", url).Debug("autoplay blocked, clip queued")
		}
		return
	}
	p.startLocked(url)
}

// startLocked begins playback of url; p.mu must be held and is released.
func (p *Player) startLocked(url string) {
	done, err := p.out.Play(url)
	if errors.Is(err, ErrAutoplayBlocked) {
		p.canAutoplay = false
		p.queue = append([]string{url}, p.queue...)
		p.mu.Unlock()
		p.log.WithField("url", url).Debug("autoplay blocked, clip queued")
		return
	}
	if err != nil {
		next := p.popLocked()
		p.mu.Unlock()
		p.report(url, err)
		if next != "" {
			p.mu.Lock()
			p.startLocked(next)
		}
		return
	}
	p.playing = true
	p.paused = false
	p.current = url
	gen := p.gen
	p.mu.Unlock()

	if p.ev.OnStarted != nil {
		p.ev.OnStarted(url)
	}
	go p.watch(url, gen, done)
}

// watch waits for the current clip to finish and advances the queue.
func (p *Player) watch(url string, gen int, done <-chan error) {
	err, ok := <-done

	p.mu.Lock()
	if gen != p.gen {
		// An explicit Stop invalidated this clip; do not advance.
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.current = ""
	next := p.popLocked()
	p.mu.Unlock()

	if ok && err != nil {
		p.report(url, err)
	} else if p.ev.OnEnded != nil {
		p.ev.OnEnded(url)
	}

	if next != "" {
		p.mu.Lock()
		p.startLocked(next)
	}
}

func (p *Player) popLocked() string {
	if len(p.queue) == 0 {
		return ""
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	return next
}

func (p *Player) report(url string, err error) {
	perr := &PlaybackError{URL: url, Err: err}
	p.log.WithError(perr).Warn("clip failed, skipping to next")
	if p.ev.OnError != nil {
		p.ev.OnError(url, perr)
	}
}

// Pause halts the current clip without losing position or the queue.
func (p *Player) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.paused = true
	p.mu.Unlock()
	p.out.Pause()
}

// Resume continues a paused clip. When nothing is paused it acts as the
// user-gesture confirmation of playback permission: autoplay is re-enabled
// and the queue drains one item at a time.
func (p *Player) Resume() error {
	p.mu.Lock()
	if p.paused {
		p.paused = false
		p.playing = true
		p.mu.Unlock()
		if err := p.out.Resume(); err != nil {
			p.mu.Lock()
			p.playing = false
			p.mu.Unlock()
			return &PlaybackError{URL: p.Current(), Err: err}
		}
		return nil
	}
	p.canAutoplay = true
	if p.playing || len(p.queue) == 0 {
		p.mu.Unlock()
		return nil
	}
	next := p.popLocked()
	p.startLocked(next)
	return nil
}

// Stop halts playback and abandons all pending speech: the queue is cleared,
// not just the current clip.
func (p *Player) Stop() {
	p.mu.Lock()
	p.gen++
	p.playing = false
	p.paused = false
	p.current = ""
	p.queue = nil
	p.mu.Unlock()
	p.out.Stop()
}

// SetVolume clamps v to [0,1] and applies it.
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	p.out.SetVolume(v)
}

// Volume returns the last applied volume.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// IsPlaying reports whether a clip is actively playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Current returns the URL of the playing clip, empty when idle.
func (p *Player) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Queued returns a copy of the pending queue in play order.
func (p *Player) Queued() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.queue))
	copy(out, p.queue)
	return out
}

// CanAutoplay reports whether autonomous playback is currently believed
// permitted.
func (p *Player) CanAutoplay() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canAutoplay
}
