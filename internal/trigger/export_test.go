package trigger

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/event-radar/internal/dedupe"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewTestListener(r MessageReader, seen *dedupe.Cache[int64]) *Listener {
	l := newListener(r, seen, nil)
	l.fetchBackoff = time.Millisecond
	return l
}
