package grouping

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/DeafMist/event-radar/internal/models"
)

const instrumentationName = "github.com/DeafMist/event-radar/internal/grouping"

// Metrics records run outcomes on an OpenTelemetry meter.
type Metrics struct {
	runs          metric.Int64Counter
	groups        metric.Int64Counter
	articles      metric.Int64Counter
	errors        metric.Int64Counter
	publishErrors metric.Int64Counter
	duration      metric.Float64Histogram
}

// NewMetrics registers the run instruments. A nil meter uses the global
// provider, which is a no-op until one is installed.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	var (
		m   Metrics
		err error
	)
	if m.runs, err = meter.Int64Counter("grouping.runs",
		metric.WithDescription("Grouping runs by outcome")); err != nil {
		return nil, fmt.Errorf("create runs counter: %w", err)
	}
	if m.groups, err = meter.Int64Counter("grouping.groups_created",
		metric.WithDescription("Event groups committed")); err != nil {
		return nil, fmt.Errorf("create groups counter: %w", err)
	}
	if m.articles, err = meter.Int64Counter("grouping.articles_grouped",
		metric.WithDescription("Articles assigned to a group")); err != nil {
		return nil, fmt.Errorf("create articles counter: %w", err)
	}
	if m.errors, err = meter.Int64Counter("grouping.errors",
		metric.WithDescription("Failed group commits and run failures")); err != nil {
		return nil, fmt.Errorf("create errors counter: %w", err)
	}
	if m.publishErrors, err = meter.Int64Counter("grouping.publish_errors",
		metric.WithDescription("Group notifications that could not be delivered")); err != nil {
		return nil, fmt.Errorf("create publish errors counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("grouping.run_duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of a grouping run")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return &m, nil
}

func (m *Metrics) record(ctx context.Context, stats models.RunStats, runErr error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if runErr != nil {
		outcome = "failed"
	}
	// Recording must not be cut short by a cancelled run.
	ctx = context.WithoutCancel(ctx)

	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.groups.Add(ctx, int64(stats.GroupsCreated))
	m.articles.Add(ctx, int64(stats.ArticlesGrouped))
	m.errors.Add(ctx, int64(stats.Errors))
	m.publishErrors.Add(ctx, int64(stats.PublishErrors))
	m.duration.Record(ctx, stats.ProcessingTimeSeconds)
}
