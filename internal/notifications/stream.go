package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultStreamName = "batch-registry:registration-events"

// StreamListener appends registration events to a Redis stream for
// consumers outside this process.
type StreamListener struct {
	client *redis.Client
	logger *logrus.Logger
	stream string
}

// NewStreamListener returns nil when no client is configured.
func NewStreamListener(client *redis.Client, logger *logrus.Logger, stream string) *StreamListener {
	if client == nil {
		return nil
	}
	if stream == "" {
		stream = DefaultStreamName
	}
	return &StreamListener{
		client: client,
		logger: logger,
		stream: stream,
	}
}

func (l *StreamListener) OnEvent(ctx context.Context, event types.RegistrationEvent) error {
	if l == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	streamID, err := l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]any{
			"event_id":   event.ID.String(),
			"event_type": string(event.Type),
			"event":      string(payload),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to stream %s: %w", l.stream, err)
	}

	l.logger.WithFields(logrus.Fields{
		"event_type": event.Type,
		"stream_id":  streamID,
	}).Debug("Published registration event to stream")
	return nil
}
