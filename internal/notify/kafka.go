// Package notify publishes created event groups to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/event-radar/internal/models"
)

const defaultAttempts = 5

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// GroupMessage is the JSON payload written for every created group.
type GroupMessage struct {
	RunID       string            `json:"run_id"`
	Group       models.EventGroup `json:"group"`
	PublishedAt time.Time         `json:"published_at"`
}

// KafkaPublisher writes event groups to a topic keyed by group id.
type KafkaPublisher struct {
	writer   messageWriter
	log      *slog.Logger
	attempts int
	backoff  time.Duration
	now      func() time.Time
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		MaxAttempts:            3,
	}
	return newPublisher(w, log)
}

func newPublisher(w messageWriter, log *slog.Logger) *KafkaPublisher {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &KafkaPublisher{
		writer:   w,
		log:      log.With("component", "group_publisher"),
		attempts: defaultAttempts,
		backoff:  time.Second,
		now:      time.Now,
	}
}

// PublishGroup writes group, retrying with exponential backoff until the
// attempts are exhausted or ctx is done.
func (p *KafkaPublisher) PublishGroup(ctx context.Context, runID string, group models.EventGroup) error {
	payload, err := json.Marshal(GroupMessage{
		RunID:       runID,
		Group:       group,
		PublishedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal group %d: %w", group.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(group.ID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "group_size", Value: []byte(strconv.Itoa(len(group.Members)))},
		},
	}

	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if lastErr = p.writer.WriteMessages(ctx, msg); lastErr == nil {
			p.log.Debug("group published",
				slog.Int64("group_id", group.ID),
				slog.Int("attempt", attempt+1),
			)
			return nil
		}
		if attempt == p.attempts-1 {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * p.backoff
		p.log.Warn("group publish failed, retrying",
			slog.Int64("group_id", group.ID),
			slog.Any("err", lastErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("publish group %d: %w", group.ID, ctx.Err())
		}
	}
	return fmt.Errorf("publish group %d after %d attempts: %w", group.ID, p.attempts, lastErr)
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
