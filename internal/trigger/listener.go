// Package trigger turns article-ingested events from Kafka into grouping
// run requests.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/event-radar/internal/dedupe"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the payload announced by ingestion for every stored article.
type Event struct {
	ArticleID int64 `json:"article_id"`
}

// Listener consumes the trigger topic and reports every article id it has not
// seen recently.
type Listener struct {
	reader       messageReader
	seen         *dedupe.Cache[int64]
	log          *slog.Logger
	fetchBackoff time.Duration
}

// NewListener creates a listener reading topic as consumer group groupID.
func NewListener(brokers []string, topic, groupID string, seen *dedupe.Cache[int64], log *slog.Logger) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1e6,
		MaxWait:        time.Second,
		CommitInterval: 0, // Disable auto-commit; manual commit only
	})
	return newListener(reader, seen, log)
}

func newListener(r messageReader, seen *dedupe.Cache[int64], log *slog.Logger) *Listener {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Listener{
		reader:       r,
		seen:         seen,
		log:          log.With("component", "trigger_listener"),
		fetchBackoff: time.Second,
	}
}

// Run reads messages until ctx is cancelled. onArticle is called once per new
// article id. Every message, malformed or duplicate ones included, is
// committed so it is not redelivered.
func (l *Listener) Run(ctx context.Context, onArticle func(articleID int64)) error {
	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				l.log.Info("context canceled, stopping")
				return nil
			}
			l.log.Error("fetch message", slog.Any("err", err))
			select {
			case <-time.After(l.fetchBackoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		if id, err := decodeEvent(msg.Value); err != nil {
			l.log.Warn("skip malformed trigger",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)
		} else if l.seen.CheckAndMark(id) {
			l.log.Debug("duplicate trigger", slog.Int64("article_id", id))
		} else {
			onArticle(id)
		}

		if err := l.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Error("commit message", slog.Any("err", err))
		}
	}
}

// Close closes the underlying reader.
func (l *Listener) Close() error {
	return l.reader.Close()
}

func decodeEvent(data []byte) (int64, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return 0, fmt.Errorf("decode trigger: %w", err)
	}
	if ev.ArticleID <= 0 {
		return 0, fmt.Errorf("decode trigger: invalid article id %d", ev.ArticleID)
	}
	return ev.ArticleID, nil
}
