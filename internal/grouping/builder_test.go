package grouping_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/event-radar/internal/grouping"
	"github.com/DeafMist/event-radar/internal/models"
	"github.com/DeafMist/event-radar/internal/processing"
	"github.com/DeafMist/event-radar/internal/similarity"
)

var baseTime = time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC)

func at(offset time.Duration) string {
	return baseTime.Add(offset).Format(time.RFC3339)
}

func newBuilder() *grouping.Builder {
	scorer := similarity.NewScorer(processing.NewNormalizer(3, "tr"), similarity.DefaultWeights(), 0)
	return grouping.NewBuilder(scorer, 2, nil)
}

func defaultParams() grouping.Params {
	return grouping.DefaultOptions().Params
}

func memberIDs(g models.EventGroup) []int64 {
	return g.ArticleIDs()
}

func TestBuildScenarios(t *testing.T) {
	tests := []struct {
		name     string
		articles []models.Article
		params   grouping.Params
		want     [][]int64
	}{
		{
			name: "shared central bank keywords",
			articles: []models.Article{
				{ID: 1, Title: "Merkez Bankası faiz kararı açıkladı", SourceName: "A", Published: at(0)},
				{ID: 2, Title: "Merkez Bankası faiz oranını değiştirdi", SourceName: "B", Published: at(time.Hour)},
				{ID: 3, Title: "Hava durumu bugün güneşli", SourceName: "C", Published: at(0)},
			},
			params: defaultParams(),
			want:   [][]int64{{1, 2}},
		},
		{
			name: "same source never grouped",
			articles: []models.Article{
				{ID: 1, Title: "Merkez Bankası faiz kararı açıkladı", SourceName: "A", Published: at(0)},
				{ID: 2, Title: "Merkez Bankası faiz oranını değiştirdi", SourceName: "A", Published: at(time.Hour)},
			},
			params: defaultParams(),
		},
		{
			name: "five days apart",
			articles: []models.Article{
				{ID: 1, Title: "Merkez Bankası faiz kararı açıkladı", SourceName: "A", Published: at(0)},
				{ID: 2, Title: "Merkez Bankası faiz oranını değiştirdi", SourceName: "B", Published: at(5 * 24 * time.Hour)},
			},
			params: defaultParams(),
		},
		{
			name: "single match reaches minimum size two",
			articles: []models.Article{
				{ID: 1, Title: "Merkez Bankası faiz kararı açıkladı", SourceName: "A", Published: at(0)},
				{ID: 2, Title: "Merkez Bankası faiz oranını değiştirdi", SourceName: "B", Published: at(time.Hour)},
			},
			params: grouping.Params{Threshold: 0.3, MinGroupSize: 2, MaxTimeDiffDays: 2},
			want:   [][]int64{{1, 2}},
		},
		{
			name: "single match below minimum size three",
			articles: []models.Article{
				{ID: 1, Title: "Merkez Bankası faiz kararı açıkladı", SourceName: "A", Published: at(0)},
				{ID: 2, Title: "Merkez Bankası faiz oranını değiştirdi", SourceName: "B", Published: at(time.Hour)},
			},
			params: grouping.Params{Threshold: 0.3, MinGroupSize: 3, MaxTimeDiffDays: 2},
		},
		{
			name: "threshold above score",
			articles: []models.Article{
				{ID: 1, Title: "Merkez Bankası faiz kararı açıkladı", SourceName: "A", Published: at(0)},
				{ID: 2, Title: "Merkez Bankası faiz oranını değiştirdi", SourceName: "B", Published: at(time.Hour)},
			},
			params: grouping.Params{Threshold: 0.5, MinGroupSize: 2, MaxTimeDiffDays: 2},
		},
		{
			name: "missing dates do not block",
			articles: []models.Article{
				{ID: 1, Title: "Merkez Bankası faiz kararı açıkladı", SourceName: "A"},
				{ID: 2, Title: "Merkez Bankası faiz oranını değiştirdi", SourceName: "B", Published: "not a timestamp"},
			},
			params: defaultParams(),
			want:   [][]int64{{1, 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newBuilder().Build(context.Background(), tt.articles, tt.params, grouping.NewSequenceCommitter(1))
			require.NoError(t, err)
			require.Zero(t, res.Errors)

			got := make([][]int64, 0, len(res.Groups))
			for _, g := range res.Groups {
				got = append(got, memberIDs(g))
			}
			if len(tt.want) == 0 {
				require.Empty(t, got)
				return
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBuildOrdersMembersByScore(t *testing.T) {
	articles := []models.Article{
		{ID: 1, Title: "Merkez Bankası faiz kararı", SourceName: "A", Published: at(0)},
		{ID: 2, Title: "Merkez Bankası faiz", SourceName: "B", Published: at(0)},
		{ID: 3, Title: "Merkez Bankası faiz kararı açıkladı", SourceName: "C", Published: at(0)},
	}

	res, err := newBuilder().Build(context.Background(), articles, defaultParams(), grouping.NewSequenceCommitter(10))
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)

	g := res.Groups[0]
	require.Equal(t, int64(10), g.ID)
	require.Equal(t, int64(1), g.PivotID)
	require.Equal(t, []int64{1, 3, 2}, g.ArticleIDs())
	require.InDelta(t, 1.0, g.Members[0].Score, 1e-9)
	require.Greater(t, g.Members[1].Score, g.Members[2].Score)
}

func TestBuildKeepsInputOrderOnEqualScores(t *testing.T) {
	tests := []struct {
		name  string
		order []int64
	}{
		{name: "B before C", order: []int64{1, 2, 3}},
		{name: "C before B", order: []int64{1, 3, 2}},
	}
	sources := map[int64]string{1: "A", 2: "B", 3: "C"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			articles := make([]models.Article, 0, len(tt.order))
			for _, id := range tt.order {
				articles = append(articles, models.Article{
					ID:         id,
					Title:      "Merkez Bankası faiz kararı açıkladı",
					SourceName: sources[id],
					Published:  at(0),
				})
			}

			res, err := newBuilder().Build(context.Background(), articles, defaultParams(), grouping.NewSequenceCommitter(1))
			require.NoError(t, err)
			require.Len(t, res.Groups, 1)

			g := res.Groups[0]
			require.Equal(t, tt.order, g.ArticleIDs())
			require.InDelta(t, g.Members[1].Score, g.Members[2].Score, 1e-12)
		})
	}
}

func TestBuildAdmitsOneArticlePerSource(t *testing.T) {
	articles := []models.Article{
		{ID: 1, Title: "Merkez Bankası faiz kararı", SourceName: "A", Published: at(0)},
		{ID: 2, Title: "Merkez Bankası faiz kararı açıkladı", SourceName: "B", Published: at(0)},
		{ID: 3, Title: "Merkez Bankası faiz", SourceName: "B", Published: at(0)},
	}

	res, err := newBuilder().Build(context.Background(), articles, defaultParams(), grouping.NewSequenceCommitter(1))
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	require.Equal(t, []int64{1, 2}, res.Groups[0].ArticleIDs())
	require.Equal(t, 2, res.ArticlesGrouped())
}

func TestBuildKeepsMembersWithinTimeWindow(t *testing.T) {
	// Both candidates are two days from the pivot but four days from each other.
	articles := []models.Article{
		{ID: 1, Title: "Merkez Bankası faiz kararı", SourceName: "A", Published: at(48 * time.Hour)},
		{ID: 2, Title: "Merkez Bankası faiz kararı açıkladı", SourceName: "B", Published: at(96 * time.Hour)},
		{ID: 3, Title: "Merkez Bankası faiz", SourceName: "C", Published: at(0)},
	}

	res, err := newBuilder().Build(context.Background(), articles, defaultParams(), grouping.NewSequenceCommitter(1))
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	require.Equal(t, []int64{1, 2}, res.Groups[0].ArticleIDs())
}

func TestBuildCommitFailureReleasesMembers(t *testing.T) {
	articles := []models.Article{
		{ID: 1, Title: "Deprem İstanbul'da hissedildi", SourceName: "A", Published: at(0)},
		{ID: 2, Title: "Deprem İstanbul'da hissedildi", SourceName: "B", Published: at(0)},
		{ID: 3, Title: "Deprem İstanbul'da hissedildi", SourceName: "C", Published: at(0)},
	}

	calls := 0
	committer := grouping.CommitterFunc(func(_ context.Context, g models.EventGroup) (int64, error) {
		calls++
		if g.PivotID == 1 {
			return 0, errors.New("database is locked")
		}
		return 42, nil
	})

	res, err := newBuilder().Build(context.Background(), articles, defaultParams(), committer)
	require.NoError(t, err)
	require.Equal(t, 1, res.Errors)
	require.Equal(t, 2, calls)
	require.Len(t, res.Groups, 1)
	require.Equal(t, int64(42), res.Groups[0].ID)
	require.Equal(t, []int64{2, 3}, res.Groups[0].ArticleIDs())
}

func TestBuildStopsOnCancelledContext(t *testing.T) {
	articles := []models.Article{
		{ID: 1, Title: "Deprem İstanbul'da hissedildi", SourceName: "A", Published: at(0)},
		{ID: 2, Title: "Deprem İstanbul'da hissedildi", SourceName: "B", Published: at(0)},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newBuilder().Build(ctx, articles, defaultParams(), grouping.NewSequenceCommitter(1))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, res.Groups)
}

func TestBuildEmptyInput(t *testing.T) {
	res, err := newBuilder().Build(context.Background(), nil, defaultParams(), grouping.NewSequenceCommitter(1))
	require.NoError(t, err)
	require.Empty(t, res.Groups)
	require.Zero(t, res.ArticlesGrouped())
}

func TestSequenceCommitter(t *testing.T) {
	c := grouping.NewSequenceCommitter(0)
	first, err := c.CommitGroup(context.Background(), models.EventGroup{})
	require.NoError(t, err)
	second, err := c.CommitGroup(context.Background(), models.EventGroup{})
	require.NoError(t, err)
	require.Equal(t, int64(1), first)
	require.Equal(t, int64(2), second)
}
