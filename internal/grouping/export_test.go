package grouping

import (
	"context"
	"sync"

	"github.com/DeafMist/event-radar/internal/models"
)

// SequenceCommitter hands out consecutive ids without persisting anything.
type SequenceCommitter struct {
	mu   sync.Mutex
	next int64
}

func NewSequenceCommitter(start int64) *SequenceCommitter {
	if start < 1 {
		start = 1
	}
	return &SequenceCommitter{next: start}
}

func (c *SequenceCommitter) CommitGroup(context.Context, models.EventGroup) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	return id, nil
}
