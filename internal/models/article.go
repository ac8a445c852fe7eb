package models

import "time"

// Article is an ingested news item as seen by the grouping engine.
// Published and CreatedAt hold the timestamps exactly as stored; they may carry
// a zone offset or be naive.
type Article struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Content      string `json:"content,omitempty"`
	Summary      string `json:"summary,omitempty"`
	SourceName   string `json:"source_name"`
	Link         string `json:"link,omitempty"`
	Published    string `json:"published,omitempty"`
	CreatedAt    string `json:"created_at"`
	EventGroupID int64  `json:"event_group_id,omitempty"`
}

// Body returns the first non-empty of description, content and summary.
func (a Article) Body() string {
	switch {
	case a.Description != "":
		return a.Description
	case a.Content != "":
		return a.Content
	default:
		return a.Summary
	}
}

// Grouped reports whether the article already belongs to an event group.
func (a Article) Grouped() bool {
	return a.EventGroupID > 0
}

// GroupMember is one article inside an event group together with its
// similarity to the group's pivot. The pivot itself has score 1.
type GroupMember struct {
	ArticleID  int64   `json:"article_id"`
	SourceName string  `json:"source_name"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
}

// EventGroup is a set of articles judged to report the same event.
type EventGroup struct {
	ID      int64         `json:"id"`
	PivotID int64         `json:"pivot_id"`
	Members []GroupMember `json:"members"`
}

// ArticleIDs lists member ids, pivot first.
func (g EventGroup) ArticleIDs() []int64 {
	ids := make([]int64, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.ArticleID)
	}
	return ids
}

// RunStats summarises one grouping run. It is returned even when the run fails.
type RunStats struct {
	RunID                 string    `json:"run_id"`
	StartedAt             time.Time `json:"started_at"`
	ArticlesProcessed     int       `json:"articles_processed"`
	GroupsCreated         int       `json:"groups_created"`
	ArticlesGrouped       int       `json:"articles_grouped"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	Errors                int       `json:"errors"`
	PublishErrors         int       `json:"publish_errors"`
}

// AverageGroupSize returns articles per created group, 0 when none were created.
func (s RunStats) AverageGroupSize() float64 {
	if s.GroupsCreated == 0 {
		return 0
	}
	return float64(s.ArticlesGrouped) / float64(s.GroupsCreated)
}

// GroupSummary describes a stored event group for inspection tooling.
type GroupSummary struct {
	GroupID      int64     `json:"group_id"`
	ArticleCount int       `json:"article_count"`
	FirstArticle string    `json:"first_article"`
	LastArticle  string    `json:"last_article"`
	Articles     []Article `json:"articles"`
}

// SourceCount is the number of stored articles for one source.
type SourceCount struct {
	SourceName string `json:"source_name"`
	Articles   int    `json:"articles"`
}

// GroupingStatus is a snapshot of how much of the corpus is grouped.
type GroupingStatus struct {
	TotalArticles      int           `json:"total_articles"`
	GroupedArticles    int           `json:"grouped_articles"`
	UngroupedArticles  int           `json:"ungrouped_articles"`
	TotalGroups        int           `json:"total_groups"`
	AverageGroupSize   float64       `json:"average_group_size"`
	GroupingPercentage float64       `json:"grouping_percentage"`
	TopSources         []SourceCount `json:"top_sources"`
}

// Finalize derives the ratio fields from the raw counters.
func (s *GroupingStatus) Finalize() {
	s.UngroupedArticles = s.TotalArticles - s.GroupedArticles
	if s.TotalGroups > 0 {
		s.AverageGroupSize = round2(float64(s.GroupedArticles) / float64(s.TotalGroups))
	}
	if s.TotalArticles > 0 {
		s.GroupingPercentage = round2(float64(s.GroupedArticles) / float64(s.TotalArticles) * 100)
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
