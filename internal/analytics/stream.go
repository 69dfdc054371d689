package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcel-gle/gb-qr-tracker/internal/metrics"
	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

const (
	// StreamKey is the Redis stream for derived hits.
	StreamKey = "stream:hits"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:hits:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 500 * time.Millisecond
)

// StreamPublisher appends derived hits to a Redis stream. It is the Sink
// of the dispatcher in stream mode; a StreamWorker applies them later.
type StreamPublisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewStreamPublisher creates a new hit stream publisher.
func NewStreamPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *StreamPublisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamPublisher{
		redis:   client,
		logger:  logger.With("component", "analytics.publisher"),
		metrics: recorder,
	}
}

// Publish adds a hit to the stream and returns the stream ID.
func (p *StreamPublisher) Publish(ctx context.Context, hit model.Hit) (string, error) {
	data, err := json.Marshal(hit)
	if err != nil {
		return "", fmt.Errorf("marshal hit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return id, nil
}

// Apply implements Sink.
func (p *StreamPublisher) Apply(ctx context.Context, hit model.Hit) error {
	streamID, err := p.Publish(ctx, hit)
	if err != nil {
		return err
	}
	p.logger.Debug("hit published", "hit_id", hit.ID, "stream_id", streamID)
	return nil
}
