// Package model holds the conversation state of one chat session.
//
// A Controller owns the transcript. It accepts user input, asks a
// provider.Source for a reply and hands the reply to a reveal.Scheduler,
// which grows the assistant message one step at a time. Every change is
// published as a Snapshot to subscribers.
//
// The session moves through idle → awaiting_reply → revealing → idle, and
// ends in closed. Typing is true outside idle and gates new submissions.
package model

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gefen/provider"
	"gefen/reveal"
)

var (
	// ErrEmptyReply is reported when a source returns no text.
	ErrEmptyReply = errors.New("source returned an empty reply")
	// ErrRevealStopped is reported when a reveal is cancelled by someone
	// other than the controller, such as a closing scheduler.
	ErrRevealStopped = errors.New("reveal stopped before the reply was complete")
)

// Controller is the single writer of one session transcript.
type Controller struct {
	source       provider.Source
	scheduler    *reveal.Scheduler
	logger       zerolog.Logger
	historyLimit int
	replyTimeout time.Duration
	errorText    string
	now          func() time.Time
	sessionID    string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	messages []Message
	lastID   uint64
	typing   bool
	phase    Phase
	version  uint64
	exchange uint64 // bumped per accepted submission and on Close
	revealID uint64
	handle   *reveal.Handle
	subs     map[int]chan Snapshot
	nextSub  int
}

// NewController creates an idle session. A nil scheduler gets a default one
// on the real clock. A scheduler may be shared between controllers: reveals
// are keyed by session id and message id.
func NewController(source provider.Source, scheduler *reveal.Scheduler, opts ...Option) *Controller {
	if scheduler == nil {
		scheduler = reveal.New(nil)
	}
	c := &Controller{
		source:       source,
		scheduler:    scheduler,
		logger:       zerolog.Nop(),
		historyLimit: DefaultHistoryLimit,
		replyTimeout: DefaultReplyTimeout,
		errorText:    DefaultErrorText,
		now:          time.Now,
		sessionID:    uuid.NewString(),
		phase:        PhaseIdle,
		subs:         make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "session").Str("session", c.sessionID).Logger()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// SessionID returns the id carried by every snapshot of this session.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Submit records text as a user message and requests a reply. It returns
// false without changing anything when the trimmed text is empty, a reply
// is still in progress, or the session is closed.
func (c *Controller) Submit(text string) bool {
	content := strings.TrimSpace(text)
	if content == "" {
		c.logger.Debug().Msg("submit rejected: empty input")
		return false
	}

	c.mu.Lock()
	if c.phase == PhaseClosed {
		c.mu.Unlock()
		c.logger.Debug().Msg("submit rejected: session closed")
		return false
	}
	if c.typing {
		phase := c.phase
		c.mu.Unlock()
		c.logger.Debug().Str("phase", string(phase)).Msg("submit rejected: reply in progress")
		return false
	}

	history := c.historyLocked()
	msg := c.appendLocked(RoleUser, content)
	c.typing = true
	c.phase = PhaseAwaitingReply
	c.exchange++
	ex := c.exchange
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info().Uint64("message", msg.ID).Int("history", len(history)).Msg("submit accepted")
	go c.generate(ex, content, history)
	return true
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Typing reports whether a reply is in progress.
func (c *Controller) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Subscribe returns a channel that first yields the current snapshot and
// then every later one. A slow reader only sees the newest pending
// snapshot. The channel is closed by the returned cancel func or by Close.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	ch <- c.snapshotLocked()
	if c.phase == PhaseClosed {
		close(ch)
		c.mu.Unlock()
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close cancels any pending reply or reveal, publishes a final snapshot and
// closes every subscription. The transcript is frozen afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.phase == PhaseClosed {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseClosed
	c.typing = false
	c.exchange++
	h := c.handle
	c.handle = nil
	c.revealID = 0
	c.publishLocked()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	n := len(c.messages)
	c.mu.Unlock()

	c.cancel()
	// The handle lock is taken by tick callbacks before c.mu, so it must
	// be stopped without holding c.mu.
	if h != nil {
		h.Stop()
	}
	c.logger.Info().Int("messages", n).Msg("session closed")
}

type generateResult struct {
	reply string
	err   error
}

func (c *Controller) generate(ex uint64, query string, history []provider.Turn) {
	ctx, cancel := context.WithTimeout(c.ctx, c.replyTimeout)
	defer cancel()

	done := make(chan generateResult, 1)
	go func() {
		reply, err := c.source.Generate(ctx, query, history)
		done <- generateResult{reply: reply, err: err}
	}()

	var res generateResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err == nil && res.reply == "" {
		res.err = ErrEmptyReply
	}
	if res.err != nil {
		c.failExchange(ex, errors.Wrap(res.err, "failed to generate reply"))
		return
	}
	c.beginReveal(ex, res.reply)
}

func (c *Controller) failExchange(ex uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ex != c.exchange || c.phase != PhaseAwaitingReply {
		return
	}
	msg := c.appendLocked(RoleAssistant, c.errorText)
	c.messages[len(c.messages)-1].Error = true
	c.typing = false
	c.phase = PhaseIdle
	c.publishLocked()
	c.logger.Warn().Err(err).Uint64("message", msg.ID).Msg("reply failed")
}

func (c *Controller) beginReveal(ex uint64, reply string) {
	c.mu.Lock()
	if ex != c.exchange || c.phase != PhaseAwaitingReply {
		c.mu.Unlock()
		return
	}
	msg := c.appendLocked(RoleAssistant, "")
	id := msg.ID
	c.phase = PhaseRevealing
	c.revealID = id
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Debug().Uint64("message", id).Int("bytes", len(reply)).Msg("reply received")

	h, err := c.scheduler.Start(c.revealKey(id),
		reply,
		func(partial string) { c.onRevealTick(ex, id, partial) },
		func() { c.onRevealDone(ex, id) },
	)
	if err != nil {
		c.abortReveal(ex, id, err)
		return
	}

	c.mu.Lock()
	if ex == c.exchange && c.revealID == id && c.phase == PhaseRevealing {
		c.handle = h
		c.mu.Unlock()
		go c.watchReveal(ex, id, h)
		return
	}
	c.mu.Unlock()
	// Closed or finished while Start was running.
	h.Stop()
}

// watchReveal ends the exchange when h is stopped without finishing. Stops
// issued by Close are ignored since the exchange token has moved on.
func (c *Controller) watchReveal(ex, id uint64, h *reveal.Handle) {
	<-h.Done()
	if h.Stopped() {
		c.abortReveal(ex, id, errors.Wrapf(ErrRevealStopped, "key %s", h.Key()))
	}
}

func (c *Controller) revealKey(id uint64) string {
	return c.sessionID + "/" + strconv.FormatUint(id, 10)
}

func (c *Controller) onRevealTick(ex, id uint64, partial string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.revealActiveLocked(ex, id) {
		return
	}
	m := &c.messages[len(c.messages)-1]
	if len(partial) <= len(m.Content) || !strings.HasPrefix(partial, m.Content) {
		return
	}
	m.Content = partial
	c.publishLocked()
}

func (c *Controller) onRevealDone(ex, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.revealActiveLocked(ex, id) {
		return
	}
	c.finishRevealLocked()
	c.logger.Debug().Uint64("message", id).Msg("reply revealed")
}

func (c *Controller) abortReveal(ex, id uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.revealActiveLocked(ex, id) {
		return
	}
	m := &c.messages[len(c.messages)-1]
	if m.Content == "" {
		m.Content = c.errorText
		m.Error = true
	}
	c.finishRevealLocked()
	c.logger.Error().Err(err).Uint64("message", id).Msg("reveal aborted")
}

func (c *Controller) revealActiveLocked(ex, id uint64) bool {
	return ex == c.exchange &&
		c.phase == PhaseRevealing &&
		c.revealID == id &&
		len(c.messages) > 0 &&
		c.messages[len(c.messages)-1].ID == id
}

func (c *Controller) finishRevealLocked() {
	c.typing = false
	c.phase = PhaseIdle
	c.revealID = 0
	c.handle = nil
	c.publishLocked()
}

func (c *Controller) appendLocked(role Role, content string) Message {
	c.lastID++
	msg := Message{
		ID:        c.lastID,
		Role:      role,
		Content:   content,
		CreatedAt: c.now(),
	}
	c.messages = append(c.messages, msg)
	return msg
}

// historyLocked returns the prior exchange as seen by the source, without
// error entries and capped at historyLimit.
func (c *Controller) historyLocked() []provider.Turn {
	if c.historyLimit == 0 {
		return nil
	}
	var turns []provider.Turn
	for _, m := range c.messages {
		if m.Error {
			continue
		}
		turns = append(turns, provider.Turn{Role: string(m.Role), Content: m.Content})
	}
	if len(turns) > c.historyLimit {
		turns = turns[len(turns)-c.historyLimit:]
	}
	return turns
}

func (c *Controller) snapshotLocked() Snapshot {
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{
		SessionID: c.sessionID,
		Version:   c.version,
		Messages:  msgs,
		Typing:    c.typing,
		Phase:     c.phase,
	}
}

func (c *Controller) publishLocked() {
	c.version++
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale pending snapshot; only this goroutine sends
			// while c.mu is held, so the retry cannot block.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
