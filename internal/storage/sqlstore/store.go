// Package sqlstore keeps articles and event group assignments in SQLite or
// PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/DeafMist/event-radar/internal/models"
)

// ErrGroupConflict is returned by AssignGroup when an article is missing or
// already belongs to a group. Nothing is written in that case.
var ErrGroupConflict = errors.New("articles missing or already grouped")

const topSourcesLimit = 10

var articleColumns = []string{
	"id",
	"title",
	"COALESCE(description, '')",
	"COALESCE(content, '')",
	"COALESCE(summary, '')",
	"source_name",
	"COALESCE(link, '')",
	"COALESCE(published, '')",
	"created_at",
	"COALESCE(event_group_id, 0)",
}

// Store implements the grouping store contract on database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
	now     func() time.Time
}

// Open connects to dsn with the given dialect and applies the schema.
func Open(ctx context.Context, dialect Dialect, dsn string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if dialect.Name == SQLite.Name {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(dialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// One writer at a time keeps SQLite from returning SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, dialect: dialect, log: log.With("component", "sqlstore", "dialect", dialect.Name), now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") || strings.HasPrefix(path, "file:") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.seedSequence()); err != nil {
		return fmt.Errorf("seed group sequence: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.dialect.Name, err)
	}
	return nil
}

// SaveArticle inserts an article and returns its id. An empty CreatedAt takes
// the database default.
func (s *Store) SaveArticle(ctx context.Context, a models.Article) (int64, error) {
	cols := []string{"title", "description", "content", "summary", "source_name", "link", "published"}
	vals := []any{a.Title, a.Description, a.Content, a.Summary, a.SourceName, a.Link, a.Published}
	if a.CreatedAt != "" {
		cols = append(cols, "created_at")
		vals = append(vals, a.CreatedAt)
	}
	if a.Grouped() {
		cols = append(cols, "event_group_id")
		vals = append(vals, a.EventGroupID)
	}

	query, args, err := s.dialect.builder().
		Insert(articlesTable).
		Columns(cols...).
		Values(vals...).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

// LoadUngroupedCandidates returns ungrouped articles created in the last
// daysBack days, newest first.
func (s *Store) LoadUngroupedCandidates(ctx context.Context, daysBack, limit int) ([]models.Article, error) {
	cutoff := s.now().AddDate(0, 0, -daysBack)

	q := s.dialect.builder().
		Select(articleColumns...).
		From(articlesTable).
		Where(ungrouped()).
		Where(sq.Expr(s.dialect.createdAt+" >= ?", s.dialect.cutoff(cutoff))).
		OrderBy(s.dialect.createdAt+" DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	articles, err := s.queryArticles(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load ungrouped candidates: %w", err)
	}
	return articles, nil
}

// NextGroupID advances the group sequence. The sequence never moves backwards,
// even after ResetAllGroups.
func (s *Store) NextGroupID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, s.dialect.nextGroupID()).Scan(&id); err != nil {
		return 0, fmt.Errorf("next group id: %w", err)
	}
	return id, nil
}

// AssignGroup tags every id with groupID in one transaction. If any id is
// missing or already grouped the transaction is rolled back and
// ErrGroupConflict is returned.
func (s *Store) AssignGroup(ctx context.Context, groupID int64, articleIDs []int64) error {
	ids := unique(articleIDs)
	if len(ids) == 0 {
		return fmt.Errorf("assign group %d: no articles", groupID)
	}

	query, args, err := s.dialect.builder().
		Update(articlesTable).
		Set("event_group_id", groupID).
		Where(sq.Eq{"id": ids}).
		Where(ungrouped()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build assign: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign group %d: %w", groupID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("assign group %d: %w", groupID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign group %d: rows affected: %w", groupID, err)
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("assign group %d: %d of %d articles updated: %w", groupID, n, len(ids), ErrGroupConflict)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group %d: %w", groupID, err)
	}
	return nil
}

// FetchGroup returns the members of a group, newest first. An unknown group
// yields an empty slice.
func (s *Store) FetchGroup(ctx context.Context, groupID int64) ([]models.Article, error) {
	q := s.dialect.builder().
		Select(articleColumns...).
		From(articlesTable).
		Where(sq.Eq{"event_group_id": groupID}).
		OrderBy(s.dialect.createdAt+" DESC", "id DESC")

	articles, err := s.queryArticles(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch group %d: %w", groupID, err)
	}
	return articles, nil
}

// ResetAllGroups clears every assignment. Group ids issued before stay
// retired.
func (s *Store) ResetAllGroups(ctx context.Context) error {
	query, args, err := s.dialect.builder().
		Update(articlesTable).
		Set("event_group_id", nil).
		Where(sq.NotEq{"event_group_id": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("reset groups: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.log.Info("event groups reset", slog.Int64("articles", n))
	}
	return nil
}

// ListGroups returns the largest groups, ties broken by most recent article.
func (s *Store) ListGroups(ctx context.Context, limit int) ([]models.GroupSummary, error) {
	groups, err := s.groupSummaries(ctx, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// SearchGroups returns groups with at least one article whose title or
// description contains term.
func (s *Store) SearchGroups(ctx context.Context, term string, limit int) ([]models.GroupSummary, error) {
	pattern := "%" + strings.TrimSpace(term) + "%"
	like := s.dialect.like

	q := s.dialect.builder().
		Select("DISTINCT event_group_id").
		From(articlesTable).
		Where(sq.Gt{"event_group_id": 0}).
		Where(sq.Or{
			sq.Expr("title "+like+" ?", pattern),
			sq.Expr("description "+like+" ?", pattern),
		})

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search groups: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search groups: %w", err)
	}
	rows.Close()
	if len(ids) == 0 {
		return []models.GroupSummary{}, nil
	}

	groups, err := s.groupSummaries(ctx, ids, limit)
	if err != nil {
		return nil, fmt.Errorf("search groups: %w", err)
	}
	return groups, nil
}

// Status summarises how much of the corpus is grouped.
func (s *Store) Status(ctx context.Context) (models.GroupingStatus, error) {
	var st models.GroupingStatus

	counts := s.dialect.builder().
		Select(
			"COUNT(*)",
			"COUNT(CASE WHEN event_group_id > 0 THEN 1 END)",
			"COUNT(DISTINCT CASE WHEN event_group_id > 0 THEN event_group_id END)",
		).
		From(articlesTable)
	query, args, err := counts.ToSql()
	if err != nil {
		return st, fmt.Errorf("build status: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&st.TotalArticles, &st.GroupedArticles, &st.TotalGroups); err != nil {
		return st, fmt.Errorf("status counts: %w", err)
	}

	query, args, err = s.dialect.builder().
		Select("source_name", "COUNT(*)").
		From(articlesTable).
		GroupBy("source_name").
		OrderBy("COUNT(*) DESC", "source_name").
		Limit(topSourcesLimit).
		ToSql()
	if err != nil {
		return st, fmt.Errorf("build top sources: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return st, fmt.Errorf("top sources: %w", err)
	}
	defer rows.Close()

	st.TopSources = []models.SourceCount{}
	for rows.Next() {
		var sc models.SourceCount
		if err := rows.Scan(&sc.SourceName, &sc.Articles); err != nil {
			return st, fmt.Errorf("scan source: %w", err)
		}
		st.TopSources = append(st.TopSources, sc)
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("top sources: %w", err)
	}

	st.Finalize()
	return st, nil
}

func (s *Store) groupSummaries(ctx context.Context, only []int64, limit int) ([]models.GroupSummary, error) {
	c := s.dialect.createdAt
	q := s.dialect.builder().
		Select("event_group_id", "COUNT(*)", "MIN("+c+")", "MAX("+c+")").
		From(articlesTable).
		Where(sq.Gt{"event_group_id": 0}).
		GroupBy("event_group_id").
		OrderBy("COUNT(*) DESC", "MAX("+c+") DESC", "event_group_id DESC")
	if only != nil {
		q = q.Where(sq.Eq{"event_group_id": only})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build group summaries: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	groups := []models.GroupSummary{}
	for rows.Next() {
		var (
			g           models.GroupSummary
			first, last sql.NullString
		)
		if err := rows.Scan(&g.GroupID, &g.ArticleCount, &first, &last); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group summary: %w", err)
		}
		g.FirstArticle, g.LastArticle = first.String, last.String
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range groups {
		members, err := s.FetchGroup(ctx, groups[i].GroupID)
		if err != nil {
			return nil, err
		}
		groups[i].Articles = members
	}
	return groups, nil
}

func (s *Store) queryArticles(ctx context.Context, q sq.SelectBuilder) ([]models.Article, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	articles := []models.Article{}
	for rows.Next() {
		var a models.Article
		if err := rows.Scan(
			&a.ID,
			&a.Title,
			&a.Description,
			&a.Content,
			&a.Summary,
			&a.SourceName,
			&a.Link,
			&a.Published,
			&a.CreatedAt,
			&a.EventGroupID,
		); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func ungrouped() sq.Or {
	return sq.Or{sq.Eq{"event_group_id": nil}, sq.Eq{"event_group_id": 0}}
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
