package provider

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrEmptyPool is returned by CannedSource when it has no replies to pick.
var ErrEmptyPool = errors.New("provider: canned reply pool is empty")

// DefaultReplies is the pool CannedSource picks from unless WithPool is used.
var DefaultReplies = []string{
	"Based on the documents I've analyzed, here's what I found relevant to your question. The information suggests that this topic has multiple facets worth exploring.",
	"Great question! From the knowledge base, I can see that this is a common inquiry. Let me break down the key points for you.",
	"I've searched through the available resources and found some interesting insights. The main takeaway is that context matters significantly.",
}

// CannedSource returns a pseudo-randomly chosen reply from a fixed pool.
// It is safe for concurrent use.
type CannedSource struct {
	pool       []string
	latencyMin time.Duration
	latencyMax time.Duration
	logger     zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

type CannedOption func(*CannedSource)

// WithPool replaces the reply pool. The slice is copied.
func WithPool(replies []string) CannedOption {
	return func(c *CannedSource) {
		c.pool = append([]string(nil), replies...)
	}
}

// WithRand sets the random source used to pick replies.
func WithRand(r *rand.Rand) CannedOption {
	return func(c *CannedSource) { c.rng = r }
}

// WithSeed makes the pick sequence reproducible.
func WithSeed(seed uint64) CannedOption {
	return func(c *CannedSource) { c.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithLatency delays every reply by a uniform duration in [lo, hi].
func WithLatency(lo, hi time.Duration) CannedOption {
	return func(c *CannedSource) {
		c.latencyMin = lo
		c.latencyMax = hi
	}
}

func WithSourceLogger(logger zerolog.Logger) CannedOption {
	return func(c *CannedSource) { c.logger = logger.With().Str("component", "canned_source").Logger() }
}

// NewCannedSource creates a CannedSource over DefaultReplies.
func NewCannedSource(opts ...CannedOption) *CannedSource {
	c := &CannedSource{
		pool:   append([]string(nil), DefaultReplies...),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if c.latencyMax < c.latencyMin {
		c.latencyMax = c.latencyMin
	}
	return c
}

// Pool returns a copy of the replies this source picks from.
func (c *CannedSource) Pool() []string {
	return append([]string(nil), c.pool...)
}

// Generate ignores query and history and returns one reply from the pool.
func (c *CannedSource) Generate(ctx context.Context, query string, history []Turn) (string, error) {
	if len(c.pool) == 0 {
		return "", ErrEmptyPool
	}

	c.mu.Lock()
	reply := c.pool[c.rng.IntN(len(c.pool))]
	delay := c.latencyMin
	if spread := c.latencyMax - c.latencyMin; spread > 0 {
		delay += time.Duration(c.rng.Int64N(int64(spread) + 1))
	}
	c.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", errors.Wrap(ctx.Err(), "canned reply cancelled")
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, "canned reply cancelled")
	}

	c.logger.Debug().
		Int("query_len", len(query)).
		Int("history", len(history)).
		Dur("latency", delay).
		Msg("canned reply picked")
	return reply, nil
}
