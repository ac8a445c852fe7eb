package elasticsearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/DeafMist/event-radar/internal/models"
)

const topSourcesLimit = 10

type groupBuckets struct {
	Aggregations struct {
		Groups struct {
			Buckets []struct {
				Key      float64 `json:"key"`
				DocCount int     `json:"doc_count"`
				First    struct {
					ValueAsString string `json:"value_as_string"`
				} `json:"first"`
				Last struct {
					ValueAsString string `json:"value_as_string"`
				} `json:"last"`
			} `json:"buckets"`
		} `json:"groups"`
	} `json:"aggregations"`
}

func groupAggregation(limit int) map[string]any {
	return map[string]any{
		"groups": map[string]any{
			"terms": map[string]any{
				"field": "event_group_id",
				"size":  limit,
				"order": []map[string]any{
					{"_count": "desc"},
					{"last": "desc"},
				},
			},
			"aggs": map[string]any{
				"first": map[string]any{"min": map[string]any{"field": "created_at"}},
				"last":  map[string]any{"max": map[string]any{"field": "created_at"}},
			},
		},
	}
}

func groupedFilter() map[string]any {
	return map[string]any{"range": map[string]any{"event_group_id": map[string]any{"gt": 0}}}
}

// ListGroups returns the largest groups, ties broken by most recent article.
func (c *Client) ListGroups(ctx context.Context, limit int) ([]models.GroupSummary, error) {
	groups, err := c.groupSummaries(ctx, groupedFilter(), limit)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// SearchGroups returns groups with an article whose title or description
// matches term.
func (c *Client) SearchGroups(ctx context.Context, term string, limit int) ([]models.GroupSummary, error) {
	query := map[string]any{
		"bool": map[string]any{
			"filter": []map[string]any{groupedFilter()},
			"must": []map[string]any{
				{"multi_match": map[string]any{
					"query":  strings.TrimSpace(term),
					"fields": []string{"title^2", "description"},
				}},
			},
		},
	}
	groups, err := c.groupSummaries(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search groups: %w", err)
	}
	return groups, nil
}

func (c *Client) groupSummaries(ctx context.Context, query map[string]any, limit int) ([]models.GroupSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	body := map[string]any{
		"size":  0,
		"query": query,
		"aggs":  groupAggregation(limit),
	}

	var parsed groupBuckets
	if err := c.search(ctx, body, &parsed); err != nil {
		return nil, err
	}

	groups := make([]models.GroupSummary, 0, len(parsed.Aggregations.Groups.Buckets))
	for _, b := range parsed.Aggregations.Groups.Buckets {
		g := models.GroupSummary{
			GroupID:      int64(b.Key),
			ArticleCount: b.DocCount,
			FirstArticle: b.First.ValueAsString,
			LastArticle:  b.Last.ValueAsString,
		}
		members, err := c.FetchGroup(ctx, g.GroupID)
		if err != nil {
			return nil, err
		}
		g.Articles = members
		groups = append(groups, g)
	}
	return groups, nil
}

// Status summarises how much of the index is grouped.
func (c *Client) Status(ctx context.Context) (models.GroupingStatus, error) {
	var st models.GroupingStatus

	body := map[string]any{
		"size":             0,
		"track_total_hits": true,
		"aggs": map[string]any{
			"grouped": map[string]any{
				"filter": groupedFilter(),
				"aggs": map[string]any{
					"groups": map[string]any{
						"cardinality": map[string]any{
							"field":               "event_group_id",
							"precision_threshold": 40000,
						},
					},
				},
			},
			"sources": map[string]any{
				"terms": map[string]any{"field": "source_name", "size": topSourcesLimit},
			},
		},
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
		} `json:"hits"`
		Aggregations struct {
			Grouped struct {
				DocCount int `json:"doc_count"`
				Groups   struct {
					Value int `json:"value"`
				} `json:"groups"`
			} `json:"grouped"`
			Sources struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int    `json:"doc_count"`
				} `json:"buckets"`
			} `json:"sources"`
		} `json:"aggregations"`
	}
	if err := c.search(ctx, body, &parsed); err != nil {
		return st, fmt.Errorf("status: %w", err)
	}

	st.TotalArticles = parsed.Hits.Total.Value
	st.GroupedArticles = parsed.Aggregations.Grouped.DocCount
	st.TotalGroups = parsed.Aggregations.Grouped.Groups.Value
	st.TopSources = make([]models.SourceCount, 0, len(parsed.Aggregations.Sources.Buckets))
	for _, b := range parsed.Aggregations.Sources.Buckets {
		st.TopSources = append(st.TopSources, models.SourceCount{SourceName: b.Key, Articles: b.DocCount})
	}
	st.Finalize()
	return st, nil
}
