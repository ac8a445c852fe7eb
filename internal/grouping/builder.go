// Package grouping clusters recent articles from different sources into event
// groups.
package grouping

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/event-radar/internal/models"
	"github.com/DeafMist/event-radar/internal/similarity"
	"github.com/DeafMist/event-radar/internal/temporal"
)

// Params tune a single clustering pass.
type Params struct {
	Threshold       float64
	MinGroupSize    int
	MaxTimeDiffDays int
}

// Committer persists a newly formed group and returns its id. A failed commit
// must leave every member untouched.
type Committer interface {
	CommitGroup(ctx context.Context, group models.EventGroup) (int64, error)
}

// CommitterFunc adapts a function to Committer.
type CommitterFunc func(ctx context.Context, group models.EventGroup) (int64, error)

// CommitGroup calls f.
func (f CommitterFunc) CommitGroup(ctx context.Context, group models.EventGroup) (int64, error) {
	return f(ctx, group)
}

// BuildResult is the outcome of one pass.
type BuildResult struct {
	Groups []models.EventGroup
	Errors int
}

// ArticlesGrouped counts the articles across all formed groups.
func (r BuildResult) ArticlesGrouped() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Members)
	}
	return n
}

// Builder runs the greedy pivot pass.
type Builder struct {
	scorer  *similarity.Scorer
	log     *slog.Logger
	workers int
}

// NewBuilder returns a builder that prepares profiles with at most workers
// goroutines. workers <= 0 selects GOMAXPROCS.
func NewBuilder(scorer *similarity.Scorer, workers int, log *slog.Logger) *Builder {
	if scorer == nil {
		scorer = similarity.NewScorer(nil, similarity.DefaultWeights(), 0)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{scorer: scorer, log: log.With("component", "cluster_builder"), workers: workers}
}

type prepared struct {
	profiles []similarity.Profile
	anchors  []temporal.Anchor
}

type match struct {
	index int
	score float64
}

// Build walks articles in order, using each unprocessed one as a pivot. Later
// unprocessed articles from other sources that are close in time and score at
// least params.Threshold join the pivot, best score first. A group is
// committed when it reaches params.MinGroupSize.
//
// A cancelled context stops the pass between pivots; the groups committed so
// far are returned together with ctx.Err().
func (b *Builder) Build(ctx context.Context, articles []models.Article, params Params, committer Committer) (BuildResult, error) {
	var res BuildResult
	if len(articles) == 0 {
		return res, nil
	}
	if params.MinGroupSize < 2 {
		params.MinGroupSize = 2
	}

	prep, err := b.prepare(ctx, articles)
	if err != nil {
		return res, err
	}

	processed := make([]bool, len(articles))
	for i := range articles {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if processed[i] {
			continue
		}

		pivot := articles[i]
		matches := b.matches(i, articles, prep, processed, params)
		admitted := admit(i, matches, articles, prep, params.MaxTimeDiffDays)

		if len(admitted) < params.MinGroupSize-1 {
			processed[i] = true
			continue
		}

		group := models.EventGroup{PivotID: pivot.ID, Members: make([]models.GroupMember, 0, len(admitted)+1)}
		group.Members = append(group.Members, member(pivot, 1))
		for _, m := range admitted {
			group.Members = append(group.Members, member(articles[m.index], m.score))
		}

		id, err := committer.CommitGroup(ctx, group)
		if err != nil {
			res.Errors++
			processed[i] = true
			b.log.Error("commit group failed",
				slog.Int64("pivot_id", pivot.ID),
				slog.Int("size", len(group.Members)),
				slog.Any("err", err),
			)
			continue
		}

		group.ID = id
		processed[i] = true
		for _, m := range admitted {
			processed[m.index] = true
		}
		res.Groups = append(res.Groups, group)

		b.log.Debug("group formed",
			slog.Int64("group_id", id),
			slog.Int64("pivot_id", pivot.ID),
			slog.Int("size", len(group.Members)),
		)
	}

	return res, nil
}

func (b *Builder) prepare(ctx context.Context, articles []models.Article) (prepared, error) {
	prep := prepared{
		profiles: make([]similarity.Profile, len(articles)),
		anchors:  make([]temporal.Anchor, len(articles)),
	}

	var (
		mu        sync.Mutex
		badAnchor = make(map[int]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range articles {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			prep.profiles[i] = b.scorer.Profile(articles[i])
			anchor, err := temporal.AnchorOf(articles[i])
			if err != nil {
				mu.Lock()
				badAnchor[i] = err
				mu.Unlock()
			}
			prep.anchors[i] = anchor
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return prepared{}, err
	}

	for i := range articles {
		if err, ok := badAnchor[i]; ok {
			b.log.Warn("cannot parse publication date, temporal check disabled for article",
				slog.Int64("article_id", articles[i].ID),
				slog.Any("err", err),
			)
		}
	}
	return prep, nil
}

func (b *Builder) matches(pivot int, articles []models.Article, prep prepared, processed []bool, params Params) []match {
	var out []match
	for j := pivot + 1; j < len(articles); j++ {
		if processed[j] {
			continue
		}
		if articles[j].SourceName == articles[pivot].SourceName {
			continue
		}
		if !temporal.Close(prep.anchors[pivot], prep.anchors[j], params.MaxTimeDiffDays) {
			continue
		}
		score := b.scorer.Compare(prep.profiles[pivot], prep.profiles[j])
		if score >= params.Threshold {
			out = append(out, match{index: j, score: score})
		}
	}

	slices.SortStableFunc(out, func(x, y match) int {
		return cmp.Compare(y.score, x.score)
	})
	return out
}

// admit keeps matches in score order while every member pair stays from
// distinct sources and within the time window.
func admit(pivot int, matches []match, articles []models.Article, prep prepared, maxDays int) []match {
	sources := map[string]struct{}{articles[pivot].SourceName: {}}
	admitted := make([]match, 0, len(matches))

	for _, m := range matches {
		src := articles[m.index].SourceName
		if _, dup := sources[src]; dup {
			continue
		}
		near := true
		for _, other := range admitted {
			if !temporal.Close(prep.anchors[other.index], prep.anchors[m.index], maxDays) {
				near = false
				break
			}
		}
		if !near {
			continue
		}
		sources[src] = struct{}{}
		admitted = append(admitted, m)
	}
	return admitted
}

func member(a models.Article, score float64) models.GroupMember {
	return models.GroupMember{ArticleID: a.ID, SourceName: a.SourceName, Title: a.Title, Score: score}
}
