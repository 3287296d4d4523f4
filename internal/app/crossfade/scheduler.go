package crossfade

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/openfm/internal/infra/clock"
)

// Frame is one step of a fade.
type Frame struct {
	Step  int
	Steps int
	Out   float64 // outgoing track gain
	In    float64 // incoming track gain
}

// FrameAt returns the frame for step of steps.
func FrameAt(step, steps int) Frame {
	out, in := Pair(step, steps)
	return Frame{Step: step, Steps: steps, Out: out, In: in}
}

// FrameFunc receives one fade frame.
type FrameFunc func(Frame)

// Scheduler drives one crossfade at a time on a clock-driven tick.
//
// Callbacks are delivered under the scheduler's delivery lock: once Stop or
// Start returns, no callback of the replaced fade runs any more. Callbacks
// must therefore not call Stop or Start themselves.
type Scheduler struct {
	deliver sync.Mutex // held while callbacks run; taken before mu

	mu    sync.Mutex
	clock clock.Clock
	tick  time.Duration

	timer      clock.Timer
	gen        uint64 // bumped on every Start/Stop; stale ticks compare against it
	step       int
	steps      int
	onGain     FrameFunc
	onComplete FrameFunc
}

// NewScheduler creates a scheduler. A non-positive tick uses DefaultTick.
func NewScheduler(c clock.Clock, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{clock: c, tick: tick}
}

// Tick returns the ramp resolution.
func (s *Scheduler) Tick() time.Duration {
	return s.tick
}

// Start begins a fade of the given duration, stopping any fade in progress.
// onGain is called with step 0 immediately and on every tick after; once the
// final step is reached it receives (0, 1), the fade stops itself and
// onComplete runs exactly once with the final frame. Either callback may be nil.
func (s *Scheduler) Start(duration time.Duration, onGain, onComplete FrameFunc) int {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.step = 0
	s.steps = NewRamp(1, 0, duration, s.tick).Steps
	s.onGain = onGain
	s.onComplete = onComplete
	steps := s.steps
	s.timer = s.clock.Every(s.tick, func() { s.advance(gen) })
	s.mu.Unlock()

	zlog.Debug().Msgf("crossfade: started: duration=%v steps=%d tick=%v", duration, steps, s.tick)
	if onGain != nil {
		onGain(FrameAt(0, steps))
	}
	return steps
}

func (s *Scheduler) advance(gen uint64) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if gen != s.gen || s.timer == nil {
		s.mu.Unlock()
		return
	}
	s.step++
	frame := FrameAt(s.step, s.steps)
	onGain := s.onGain
	var onComplete FrameFunc
	if frame.Step >= frame.Steps {
		onComplete = s.onComplete
		s.stopLocked()
	}
	s.mu.Unlock()

	if onGain != nil {
		onGain(frame)
	}
	if onComplete != nil {
		onComplete(frame)
	}
}

// Stop cancels the fade in progress and waits for a callback already being
// delivered. It is safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.gen++
	s.onGain = nil
	s.onComplete = nil
}

// IsActive reports whether a fade is in progress.
func (s *Scheduler) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Progress returns the current step and the total number of steps.
func (s *Scheduler) Progress() (step, steps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step, s.steps
}
