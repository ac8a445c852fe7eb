package elasticsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/event-radar/internal/models"
)

// ErrGroupConflict is returned by AssignGroup when an article is missing or
// already grouped. Partially applied tags are reverted before it is returned.
var ErrGroupConflict = errors.New("articles missing or already grouped")

func ungroupedQuery() map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"should": []map[string]any{
				{"bool": map[string]any{
					"must_not": []map[string]any{
						{"exists": map[string]any{"field": "event_group_id"}},
					},
				}},
				{"term": map[string]any{"event_group_id": 0}},
			},
			"minimum_should_match": 1,
		},
	}
}

func newestFirst() []map[string]any {
	return []map[string]any{
		{"created_at": map[string]any{"order": "desc"}},
		{"id": map[string]any{"order": "desc"}},
	}
}

// LoadUngroupedCandidates returns ungrouped articles created in the last
// daysBack days, newest first.
func (c *Client) LoadUngroupedCandidates(ctx context.Context, daysBack, limit int) ([]models.Article, error) {
	if limit <= 0 || limit > maxResultWindow {
		limit = maxResultWindow
	}
	cutoff := c.now().AddDate(0, 0, -daysBack).UTC().Format(time.RFC3339)

	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					ungroupedQuery(),
					{"range": map[string]any{"created_at": map[string]any{"gte": cutoff}}},
				},
			},
		},
		"sort": newestFirst(),
	}

	var parsed searchHits
	if err := c.search(ctx, body, &parsed); err != nil {
		return nil, fmt.Errorf("load ungrouped candidates: %w", err)
	}
	return parsed.articles(), nil
}

// NextGroupID advances the group sequence document past every group id
// present in the index.
func (c *Client) NextGroupID(ctx context.Context) (int64, error) {
	body := map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"max_group": map[string]any{"max": map[string]any{"field": "event_group_id"}},
		},
	}
	var parsed struct {
		Aggregations struct {
			MaxGroup struct {
				Value *float64 `json:"value"`
			} `json:"max_group"`
		} `json:"aggregations"`
	}
	if err := c.search(ctx, body, &parsed); err != nil {
		return 0, fmt.Errorf("next group id: %w", err)
	}

	var floor int64
	if v := parsed.Aggregations.MaxGroup.Value; v != nil {
		floor = int64(*v)
	}

	id, err := c.nextSequence(ctx, groupSequenceID, floor)
	if err != nil {
		return 0, fmt.Errorf("next group id: %w", err)
	}
	return id, nil
}

// AssignGroup tags the ungrouped articles among ids with groupID in a single
// update-by-query. When fewer documents than ids were updated, the tags just
// written are removed again and ErrGroupConflict is returned.
func (c *Client) AssignGroup(ctx context.Context, groupID int64, articleIDs []int64) error {
	ids := unique(articleIDs)
	if len(ids) == 0 {
		return fmt.Errorf("assign group %d: no articles", groupID)
	}

	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"terms": map[string]any{"id": ids}},
					ungroupedQuery(),
				},
			},
		},
		"script": map[string]any{
			"lang":   "painless",
			"source": "ctx._source.event_group_id = params.group_id",
			"params": map[string]any{"group_id": groupID},
		},
	}

	res, err := c.updateByQuery(ctx, body, "abort")
	if err == nil && res.Updated == int64(len(ids)) && res.VersionConflicts == 0 && len(res.Failures) == 0 {
		return nil
	}

	if revertErr := c.revertGroup(ctx, groupID, ids); revertErr != nil {
		c.log.Error("revert partial group failed",
			slog.Int64("group_id", groupID),
			slog.Any("err", revertErr),
		)
		err = errors.Join(err, revertErr)
	}
	if err != nil {
		return fmt.Errorf("assign group %d: %w", groupID, err)
	}
	return fmt.Errorf("assign group %d: %d of %d articles updated: %w", groupID, res.Updated, len(ids), ErrGroupConflict)
}

func (c *Client) revertGroup(ctx context.Context, groupID int64, ids []int64) error {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"terms": map[string]any{"id": ids}},
					{"term": map[string]any{"event_group_id": groupID}},
				},
			},
		},
		"script": map[string]any{
			"lang":   "painless",
			"source": "ctx._source.remove('event_group_id')",
		},
	}
	_, err := c.updateByQuery(context.WithoutCancel(ctx), body, "proceed")
	return err
}

// FetchGroup returns the members of a group, newest first.
func (c *Client) FetchGroup(ctx context.Context, groupID int64) ([]models.Article, error) {
	body := map[string]any{
		"size":  maxResultWindow,
		"query": map[string]any{"term": map[string]any{"event_group_id": groupID}},
		"sort":  newestFirst(),
	}

	var parsed searchHits
	if err := c.search(ctx, body, &parsed); err != nil {
		return nil, fmt.Errorf("fetch group %d: %w", groupID, err)
	}
	return parsed.articles(), nil
}

// ResetAllGroups removes every group assignment. The group sequence document
// is left untouched.
func (c *Client) ResetAllGroups(ctx context.Context) error {
	body := map[string]any{
		"query": map[string]any{"exists": map[string]any{"field": "event_group_id"}},
		"script": map[string]any{
			"lang":   "painless",
			"source": "ctx._source.remove('event_group_id')",
		},
	}

	res, err := c.updateByQuery(ctx, body, "proceed")
	if err != nil {
		return fmt.Errorf("reset groups: %w", err)
	}
	c.log.Info("event groups reset", slog.Int64("articles", res.Updated))
	return nil
}

func unique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
