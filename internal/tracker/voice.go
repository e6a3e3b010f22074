package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Spoken cues.
const (
	CueThree     = "Three"
	CueTwo       = "Two"
	CueOne       = "One"
	CueGo        = "Let's Run!"
	CuePaused    = "Workout paused."
	CueResumed   = "Resuming workout."
	CueFinished  = "Workout finished. Great job."
	CueCancelled = "Countdown cancelled."
	CueShoesWorn = "Your shoes have exceeded their mileage target."
)

// Announcer receives cue texts. Implementations must not block and must not
// call back into the Engine.
type Announcer interface {
	Announce(text string)
}

// AnnouncerFunc adapts a function to Announcer.
type AnnouncerFunc func(text string)

func (f AnnouncerFunc) Announce(text string) { f(text) }

// Voice is a text-to-speech capability. Say should return when the utterance
// finishes or ctx is cancelled.
type Voice interface {
	Say(ctx context.Context, text string) error
}

// Dispatcher is a fire-and-forget Announcer over a Voice. A new cue cancels
// the one still in flight so cues never queue up behind each other.
type Dispatcher struct {
	voice Voice
	log   zerolog.Logger
	muted atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewDispatcher accepts a nil voice; cues are then dropped.
func NewDispatcher(voice Voice, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{voice: voice, log: log}
}

func (d *Dispatcher) SetMuted(muted bool) { d.muted.Store(muted) }

func (d *Dispatcher) Muted() bool { return d.muted.Load() }

func (d *Dispatcher) Announce(text string) {
	if d.voice == nil || d.muted.Load() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		defer cancel()
		if err := d.voice.Say(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Debug().Err(err).Str("cue", text).Msg("voice cue failed")
		}
	}()
}

// Silence cancels the utterance in flight, if any.
func (d *Dispatcher) Silence() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
