// Package temporal decides whether two articles are close enough in time to be
// compared at all.
package temporal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/DeafMist/event-radar/internal/models"
)

// DefaultMaxDays is the widest gap, in whole days, between related articles.
const DefaultMaxDays = 2

var errEmptyTimestamp = errors.New("empty timestamp")

// naiveZone marks results that carried no zone. Its offset matches no real
// zone, so an explicit offset in the input can never be mistaken for it.
var naiveZone = time.FixedZone("naive", -(11*3600 + 59*60 + 59))

var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02T15:04:05Z0700",
		"2006-01-02 15:04:05Z0700",
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// ParseTimestamp parses a stored timestamp. aware is false when the input had
// no zone information; such times are returned with a UTC location but must be
// read as wall clock.
func ParseTimestamp(raw string) (t time.Time, aware bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, errEmptyTimestamp
	}

	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true, nil
		}
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, false, nil
		}
	}

	// Anything else (RSS dialects, named months). dateparse keeps the given
	// location only when the input carries no zone of its own.
	ts, err := dateparse.ParseIn(raw, naiveZone)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	if ts.Location() == naiveZone {
		return inZone(ts, time.UTC), false, nil
	}
	return ts, true, nil
}

// Anchor is the temporal reference point of one article.
type Anchor struct {
	Time  time.Time
	Aware bool
	Valid bool
}

// AnchorOf picks Published, or CreatedAt when Published is empty. A missing
// timestamp yields an invalid anchor and no error; an unparseable one yields an
// error.
func AnchorOf(a models.Article) (Anchor, error) {
	raw := strings.TrimSpace(a.Published)
	if raw == "" {
		raw = strings.TrimSpace(a.CreatedAt)
	}
	if raw == "" {
		return Anchor{}, nil
	}

	ts, aware, err := ParseTimestamp(raw)
	if err != nil {
		return Anchor{}, fmt.Errorf("article %d: %w", a.ID, err)
	}
	return Anchor{Time: ts, Aware: aware, Valid: true}, nil
}

// Close reports whether two anchors are at most maxDays whole days apart.
// Invalid anchors never block a pair.
func Close(a, b Anchor, maxDays int) bool {
	if !a.Valid || !b.Valid {
		return true
	}

	ta, tb := a.Time, b.Time
	switch {
	case a.Aware && !b.Aware:
		tb = inZone(tb, ta.Location())
	case !a.Aware && b.Aware:
		ta = inZone(ta, tb.Location())
	}

	return DaysBetween(ta, tb) <= maxDays
}

// DaysBetween returns the number of whole days separating a and b.
func DaysBetween(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}

func inZone(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// Gate is the article-level temporal check used outside the batch builder.
type Gate struct {
	log *slog.Logger
}

// NewGate returns a gate that reports fail-open decisions to log.
func NewGate(log *slog.Logger) *Gate {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gate{log: log}
}

// AreClose reports whether two articles were published within maxDays of each
// other. Missing or unparseable dates allow the pair.
func (g *Gate) AreClose(a, b models.Article, maxDays int) bool {
	anchorA, errA := AnchorOf(a)
	anchorB, errB := AnchorOf(b)
	if err := errors.Join(errA, errB); err != nil {
		g.log.Warn("cannot parse publication date, allowing pair",
			slog.Int64("article_a", a.ID),
			slog.Int64("article_b", b.ID),
			slog.Any("err", err),
		)
		return true
	}
	if !anchorA.Valid || !anchorB.Valid {
		g.log.Warn("missing publication dates, allowing pair",
			slog.Int64("article_a", a.ID),
			slog.Int64("article_b", b.ID),
		)
		return true
	}

	near := Close(anchorA, anchorB, maxDays)
	if !near {
		g.log.Debug("articles too far apart",
			slog.Int64("article_a", a.ID),
			slog.Int64("article_b", b.ID),
			slog.Int("max_days", maxDays),
		)
	}
	return near
}
