// Package reveal turns a complete reply into a timed sequence of growing
// prefixes, emulating a streaming response.
//
// A Scheduler owns one live Handle per key. Callers sharing a Scheduler must
// keep their keys apart. Each Handle emits its prefixes
// one interval apart through the callbacks passed to Start and calls the
// done callback exactly once after the last prefix. Stopping a Handle, or
// starting a new reveal for the same key, silences the old sequence: once
// Stop returns no callback of that Handle is running and none will run.
//
// Callbacks run on the Clock's goroutine while the Handle's lock is held, so
// they must not call Stop on their own Handle.
package reveal

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultInterval is the delay between two consecutive ticks.
const DefaultInterval = 15 * time.Millisecond

var (
	ErrClosed        = errors.New("reveal: scheduler closed")
	ErrInvalidConfig = errors.New("reveal: invalid configuration")
)

type Scheduler struct {
	clock    Clock
	interval time.Duration
	step     int
	logger   zerolog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

type Option func(*Scheduler)

// WithInterval sets the delay between ticks.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithStep sets how many runes each tick reveals.
func WithStep(n int) Option {
	return func(s *Scheduler) { s.step = n }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger.With().Str("component", "reveal").Logger() }
}

// New creates a Scheduler. A nil clock means RealClock.
func New(clock Clock, opts ...Option) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	s := &Scheduler{
		clock:    clock,
		interval: DefaultInterval,
		step:     1,
		logger:   zerolog.Nop(),
		handles:  make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the configured delay between ticks.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start begins revealing fullText under key. onTick receives every growing
// prefix in order, onDone is called once after the last one. An empty
// fullText produces no ticks and calls onDone before Start returns.
//
// A live reveal already registered under key is stopped first.
func (s *Scheduler) Start(key string, fullText string, onTick func(string), onDone func()) (*Handle, error) {
	if s.interval <= 0 || s.step < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "interval %v, step %d", s.interval, s.step)
	}
	if onTick == nil {
		onTick = func(string) {}
	}
	if onDone == nil {
		onDone = func() {}
	}

	h := &Handle{
		key:       key,
		scheduler: s,
		runes:     []rune(fullText),
		onTick:    onTick,
		onDone:    onDone,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	old := s.handles[key]
	s.handles[key] = h
	s.mu.Unlock()

	if old != nil {
		s.logger.Debug().Str("key", key).Msg("replacing live reveal")
		old.Stop()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.runes) == 0 {
		h.finishLocked()
		return h, nil
	}
	h.timer = s.clock.AfterFunc(s.interval, h.fire)
	s.logger.Debug().Str("key", key).Int("runes", len(h.runes)).Msg("reveal started")
	return h, nil
}

// Close stops every live reveal. Later calls to Start return ErrClosed.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	live := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		live = append(live, h)
	}
	s.handles = make(map[string]*Handle)
	s.mu.Unlock()

	for _, h := range live {
		h.Stop()
	}
}

// Live reports how many reveals are currently running.
func (s *Scheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) forget(h *Handle) {
	s.mu.Lock()
	if s.handles[h.key] == h {
		delete(s.handles, h.key)
	}
	s.mu.Unlock()
}

// Handle controls one running reveal.
type Handle struct {
	key       string
	scheduler *Scheduler
	onTick    func(string)
	onDone    func()
	done      chan struct{}

	mu       sync.Mutex
	runes    []rune
	pos      int
	timer    Timer
	stopped  bool
	finished bool
}

// Key returns the key the reveal was started under.
func (h *Handle) Key() string {
	return h.key
}

// Done is closed when the reveal finishes or is stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stopped reports whether the reveal was cancelled before finishing.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Stop cancels the reveal. It is safe to call more than once and after the
// reveal finished.
func (h *Handle) Stop() {
	h.mu.Lock()
	if h.stopped || h.finished {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
	}
	close(h.done)
	h.mu.Unlock()

	h.scheduler.forget(h)
	h.scheduler.logger.Debug().Str("key", h.key).Int("revealed", h.pos).Msg("reveal cancelled")
}

func (h *Handle) fire() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.finished {
		return
	}

	h.pos += h.scheduler.step
	if h.pos > len(h.runes) {
		h.pos = len(h.runes)
	}
	h.onTick(string(h.runes[:h.pos]))

	if h.pos == len(h.runes) {
		h.finishLocked()
		return
	}
	h.timer = h.scheduler.clock.AfterFunc(h.scheduler.interval, h.fire)
}

func (h *Handle) finishLocked() {
	h.finished = true
	h.timer = nil
	close(h.done)
	h.onDone()
	// forget takes the scheduler lock; Start and Close never hold it while
	// waiting on a handle lock.
	h.scheduler.forget(h)
	h.scheduler.logger.Debug().Str("key", h.key).Int("runes", len(h.runes)).Msg("reveal finished")
}
