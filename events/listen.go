package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gefen/model"
)

// Listen subscribes to the snapshots of sessionID. The returned channel
// holds at most one pending snapshot, always the newest seen, and never
// yields a version older than one already delivered. It is closed when ctx
// is done or the subscription ends.
func Listen(ctx context.Context, sub message.Subscriber, sessionID string, logger zerolog.Logger) (<-chan model.Snapshot, error) {
	in, err := sub.Subscribe(ctx, Topic(sessionID))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to subscribe to session %s", sessionID)
	}
	logger = logger.With().Str("component", "events").Str("session", sessionID).Logger()

	out := make(chan model.Snapshot, 1)
	go func() {
		defer close(out)
		var last uint64
		seen := false
		for msg := range in {
			snap, err := Decode(msg)
			msg.Ack()
			if err != nil {
				logger.Warn().Err(err).Msg("dropping undecodable snapshot")
				continue
			}
			if seen && snap.Version <= last {
				logger.Trace().Uint64("version", snap.Version).Uint64("last", last).Msg("dropping stale snapshot")
				continue
			}
			seen = true
			last = snap.Version
			offer(out, snap)
		}
	}()
	return out, nil
}

// offer replaces any unread snapshot in ch with snap. ch must have a single
// sender.
func offer(ch chan model.Snapshot, snap model.Snapshot) {
	select {
	case ch <- snap:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
