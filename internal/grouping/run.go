package grouping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeafMist/event-radar/internal/models"
	"github.com/DeafMist/event-radar/internal/similarity"
	"github.com/DeafMist/event-radar/internal/temporal"
)

// ErrRunInProgress is returned when Run is called while another run on the same
// Runner has not finished.
var ErrRunInProgress = errors.New("grouping run already in progress")

// Defaults for Options.
const (
	DefaultSimilarityThreshold = 0.3
	DefaultDaysBack            = 7
	DefaultMinGroupSize        = 2
	DefaultCandidateLimit      = 1000
)

// publishTimeout bounds announcing the groups of one run. Groups committed
// before a run was cancelled are still announced.
const publishTimeout = 30 * time.Second

// Options configure one run.
type Options struct {
	Params
	DaysBack       int
	CandidateLimit int
}

// DefaultOptions returns the stock tuning.
func DefaultOptions() Options {
	return Options{
		Params: Params{
			Threshold:       DefaultSimilarityThreshold,
			MinGroupSize:    DefaultMinGroupSize,
			MaxTimeDiffDays: temporal.DefaultMaxDays,
		},
		DaysBack:       DefaultDaysBack,
		CandidateLimit: DefaultCandidateLimit,
	}
}

// Store is the persistence contract of the grouping engine.
type Store interface {
	// LoadUngroupedCandidates returns ungrouped articles created within the
	// last daysBack days, newest first, at most limit of them.
	LoadUngroupedCandidates(ctx context.Context, daysBack, limit int) ([]models.Article, error)
	// NextGroupID reserves an id greater than any id issued before.
	NextGroupID(ctx context.Context) (int64, error)
	// AssignGroup tags exactly articleIDs with groupID, or nothing at all.
	AssignGroup(ctx context.Context, groupID int64, articleIDs []int64) error
	FetchGroup(ctx context.Context, groupID int64) ([]models.Article, error)
	// ResetAllGroups clears every assignment but keeps the id sequence.
	ResetAllGroups(ctx context.Context) error
}

// Publisher announces committed groups to downstream consumers.
type Publisher interface {
	PublishGroup(ctx context.Context, runID string, group models.EventGroup) error
}

// Runner executes grouping runs against a store.
type Runner struct {
	store     Store
	builder   *Builder
	publisher Publisher
	metrics   *Metrics
	log       *slog.Logger
	mu        sync.Mutex
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithPublisher announces every committed group through p.
func WithPublisher(p Publisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

// WithMetrics records run outcomes on m.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner wires a store with a builder.
func NewRunner(store Store, builder *Builder, log *slog.Logger, opts ...RunnerOption) *Runner {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if builder == nil {
		builder = NewBuilder(similarity.NewScorer(nil, similarity.DefaultWeights(), 0), 0, log)
	}
	r := &Runner{store: store, builder: builder, log: log.With("component", "grouping_run")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run loads candidates, clusters them and commits every formed group. The
// returned stats are valid even when err is non-nil. Concurrent calls fail
// fast with ErrRunInProgress.
func (r *Runner) Run(ctx context.Context, opts Options) (stats models.RunStats, err error) {
	if !r.mu.TryLock() {
		return models.RunStats{}, ErrRunInProgress
	}
	defer r.mu.Unlock()

	start := time.Now()
	stats = models.RunStats{RunID: uuid.NewString(), StartedAt: start.UTC()}
	log := r.log.With(slog.String("run_id", stats.RunID))

	defer func() {
		stats.ProcessingTimeSeconds = time.Since(start).Seconds()
		r.metrics.record(ctx, stats, err)
	}()

	log.Info("grouping run started",
		slog.Float64("threshold", opts.Threshold),
		slog.Int("days_back", opts.DaysBack),
		slog.Int("min_group_size", opts.MinGroupSize),
		slog.Int("max_time_diff_days", opts.MaxTimeDiffDays),
	)

	articles, err := r.store.LoadUngroupedCandidates(ctx, opts.DaysBack, opts.CandidateLimit)
	if err != nil {
		stats.Errors = 1
		log.Error("load candidates failed", slog.Any("err", err))
		return stats, fmt.Errorf("load candidates: %w", err)
	}
	stats.ArticlesProcessed = len(articles)
	if len(articles) == 0 {
		log.Info("no ungrouped articles in window")
		return stats, nil
	}

	res, buildErr := r.builder.Build(ctx, articles, opts.Params, CommitterFunc(r.commit))
	stats.GroupsCreated = len(res.Groups)
	stats.ArticlesGrouped = res.ArticlesGrouped()
	stats.Errors = res.Errors

	stats.PublishErrors = r.publish(ctx, log, stats.RunID, res.Groups)

	if buildErr != nil {
		log.Warn("grouping run interrupted",
			slog.Int("groups_created", stats.GroupsCreated),
			slog.Any("err", buildErr),
		)
		return stats, fmt.Errorf("build groups: %w", buildErr)
	}

	log.Info("grouping run finished",
		slog.Int("articles_processed", stats.ArticlesProcessed),
		slog.Int("groups_created", stats.GroupsCreated),
		slog.Int("articles_grouped", stats.ArticlesGrouped),
		slog.Float64("average_group_size", stats.AverageGroupSize()),
		slog.Int("errors", stats.Errors),
		slog.Int("publish_errors", stats.PublishErrors),
		slog.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}

func (r *Runner) publish(ctx context.Context, log *slog.Logger, runID string, groups []models.EventGroup) int {
	if r.publisher == nil {
		return 0
	}
	if len(groups) == 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	failed := 0
	for _, g := range groups {
		if err := r.publisher.PublishGroup(ctx, runID, g); err != nil {
			failed++
			log.Warn("publish group failed", slog.Int64("group_id", g.ID), slog.Any("err", err))
		}
	}
	return failed
}

// commit allocates a fresh id and tags the group's articles with it.
func (r *Runner) commit(ctx context.Context, group models.EventGroup) (int64, error) {
	id, err := r.store.NextGroupID(ctx)
	if err != nil {
		return 0, fmt.Errorf("allocate group id: %w", err)
	}
	if err := r.store.AssignGroup(ctx, id, group.ArticleIDs()); err != nil {
		return 0, fmt.Errorf("assign group %d: %w", id, err)
	}
	return id, nil
}
