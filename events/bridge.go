// Package events carries session snapshots over a watermill Pub/Sub so that
// presentation code never reads controller state directly.
package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gefen/model"
)

const (
	metadataSession = "session_id"
	metadataVersion = "version"
	metadataPhase   = "phase"
)

// Topic returns the topic snapshots of sessionID are published on.
func Topic(sessionID string) string {
	return "session." + sessionID
}

// NewPubSub creates the in-process Pub/Sub used between the controller and
// its consumers.
func NewPubSub(logger zerolog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, NewLoggerAdapter(logger))
}

// Bridge republishes a snapshot feed as JSON messages.
type Bridge struct {
	publisher message.Publisher
	logger    zerolog.Logger
}

func NewBridge(publisher message.Publisher, logger zerolog.Logger) *Bridge {
	return &Bridge{
		publisher: publisher,
		logger:    logger.With().Str("component", "events").Logger(),
	}
}

// Run publishes every snapshot read from feed until feed is closed or ctx is
// done. It returns the first publish error.
func (b *Bridge) Run(ctx context.Context, feed <-chan model.Snapshot) error {
	b.logger.Debug().Msg("bridge started")
	defer b.logger.Debug().Msg("bridge stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-feed:
			if !ok {
				return nil
			}
			if err := b.Publish(snap); err != nil {
				return err
			}
		}
	}
}

// Publish sends one snapshot on its session topic.
func (b *Bridge) Publish(snap model.Snapshot) error {
	msg, err := Encode(snap)
	if err != nil {
		return err
	}
	if err := b.publisher.Publish(Topic(snap.SessionID), msg); err != nil {
		return errors.Wrapf(err, "failed to publish snapshot v%d", snap.Version)
	}
	b.logger.Trace().Uint64("version", snap.Version).Str("phase", string(snap.Phase)).Msg("snapshot published")
	return nil
}

// Encode builds the watermill message carrying snap.
func Encode(snap model.Snapshot) (*message.Message, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal snapshot")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(metadataSession, snap.SessionID)
	msg.Metadata.Set(metadataVersion, strconv.FormatUint(snap.Version, 10))
	msg.Metadata.Set(metadataPhase, string(snap.Phase))
	return msg, nil
}

// Decode turns a message produced by Encode back into a snapshot.
func Decode(msg *message.Message) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		return model.Snapshot{}, errors.Wrapf(err, "failed to decode snapshot message %s", msg.UUID)
	}
	return snap, nil
}
