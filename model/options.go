package model

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultHistoryLimit = 20
	DefaultReplyTimeout = 30 * time.Second
	DefaultErrorText    = "Sorry, I couldn't put together an answer this time. Please try again."
)

type Option func(*Controller)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithHistoryLimit caps how many prior messages are handed to the source.
// Zero passes no history.
func WithHistoryLimit(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.historyLimit = n
		}
	}
}

// WithReplyTimeout bounds how long the controller waits for the source.
func WithReplyTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.replyTimeout = d
		}
	}
}

// WithErrorText sets the assistant text shown when no reply could be produced.
func WithErrorText(s string) Option {
	return func(c *Controller) {
		if s != "" {
			c.errorText = s
		}
	}
}

// WithClock sets the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(c *Controller) {
		if id != "" {
			c.sessionID = id
		}
	}
}
