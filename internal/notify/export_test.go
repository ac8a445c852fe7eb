package notify

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewTestPublisher(w MessageWriter, now func() time.Time) *KafkaPublisher {
	p := newPublisher(w, nil)
	p.backoff = time.Millisecond
	p.now = now
	return p
}
