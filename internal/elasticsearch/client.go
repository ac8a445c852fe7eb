package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/event-radar/internal/models"
)

const (
	groupSequenceID   = "event_group_sequence"
	articleSequenceID = "article_sequence"
	maxResultWindow   = 10000
)

var articleMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":          map[string]any{"type": "long"},
			"title":       map[string]any{"type": "text"},
			"description": map[string]any{"type": "text"},
			"content":     map[string]any{"type": "text", "index": false},
			"summary":     map[string]any{"type": "text", "index": false},
			"source_name": map[string]any{"type": "keyword"},
			"link":        map[string]any{"type": "keyword", "index": false},
			"published":   map[string]any{"type": "keyword"},
			"created_at": map[string]any{
				"type":   "date",
				"format": "strict_date_optional_time||yyyy-MM-dd HH:mm:ss||epoch_millis",
			},
			"event_group_id": map[string]any{"type": "long"},
		},
	},
}

// Client wraps go-elasticsearch with the article store operations.
type Client struct {
	es        *elasticsearch.Client
	index     string
	metaIndex string
	log       *slog.Logger
	now       func() time.Time
}

// New instantiates the Elasticsearch client. Group and article sequences live
// in a companion index named "<index>-meta".
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		es:        es,
		index:     index,
		metaIndex: index + "-meta",
		log:       logger.With("component", "elasticsearch"),
		now:       time.Now,
	}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// Health checks that the cluster answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// Close is a no-op; the transport has no resources to release.
func (c *Client) Close() error {
	return nil
}

// EnsureIndex creates the article index with its mapping when it is missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index failed: %s", res.Status())
	}

	payload, err := json.Marshal(articleMapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err := decode(res, err, "create index", nil); err != nil {
		return err
	}
	c.log.Info("created article index", slog.String("index", c.index))
	return nil
}

// SaveArticle indexes an article and returns its id. Articles without an id
// get the next value of the article sequence; an empty CreatedAt becomes now.
func (c *Client) SaveArticle(ctx context.Context, a models.Article) (int64, error) {
	if a.ID == 0 {
		id, err := c.nextSequence(ctx, articleSequenceID, 0)
		if err != nil {
			return 0, err
		}
		a.ID = id
	}
	if a.CreatedAt == "" {
		a.CreatedAt = c.now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return 0, fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: strconv.FormatInt(a.ID, 10),
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err := decode(res, err, "index doc", nil); err != nil {
		return 0, err
	}
	return a.ID, nil
}

// nextSequence atomically increments a counter document and returns the new
// value, which is always greater than floor.
func (c *Client) nextSequence(ctx context.Context, name string, floor int64) (int64, error) {
	body := map[string]any{
		"scripted_upsert": true,
		"upsert":          map[string]any{},
		"script": map[string]any{
			"lang": "painless",
			"source": "long cur = ctx._source.value == null ? 0L : ((Number) ctx._source.value).longValue();" +
				" ctx._source.value = Math.max(cur, ((Number) params.floor).longValue()) + 1;",
			"params": map[string]any{"floor": floor},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal sequence update: %w", err)
	}

	retries := 5
	req := esapi.UpdateRequest{
		Index:           c.metaIndex,
		DocumentID:      name,
		Body:            bytes.NewReader(payload),
		Refresh:         "true",
		RetryOnConflict: &retries,
		Source:          []string{"true"},
	}

	var parsed struct {
		Get struct {
			Source struct {
				Value int64 `json:"value"`
			} `json:"_source"`
		} `json:"get"`
	}
	res, err := req.Do(ctx, c.es)
	if err := decode(res, err, "advance "+name, &parsed); err != nil {
		return 0, err
	}
	if parsed.Get.Source.Value <= floor {
		return 0, fmt.Errorf("advance %s: sequence returned %d", name, parsed.Get.Source.Value)
	}
	return parsed.Get.Source.Value, nil
}

func (c *Client) search(ctx context.Context, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	return decode(res, err, "search", out)
}

func (c *Client) updateByQuery(ctx context.Context, body map[string]any, conflicts string) (updateByQueryResult, error) {
	var parsed updateByQueryResult

	payload, err := json.Marshal(body)
	if err != nil {
		return parsed, fmt.Errorf("marshal update body: %w", err)
	}

	res, err := c.es.UpdateByQuery(
		[]string{c.index},
		c.es.UpdateByQuery.WithContext(ctx),
		c.es.UpdateByQuery.WithBody(bytes.NewReader(payload)),
		c.es.UpdateByQuery.WithRefresh(true),
		c.es.UpdateByQuery.WithConflicts(conflicts),
		c.es.UpdateByQuery.WithWaitForCompletion(true),
	)
	err = decode(res, err, "update by query", &parsed)
	return parsed, err
}

type updateByQueryResult struct {
	Updated          int64             `json:"updated"`
	VersionConflicts int64             `json:"version_conflicts"`
	Failures         []json.RawMessage `json:"failures"`
}

type searchHits struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.Article `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (h searchHits) articles() []models.Article {
	items := make([]models.Article, 0, len(h.Hits.Hits))
	for _, hit := range h.Hits.Hits {
		items = append(items, hit.Source)
	}
	return items
}

func decode(res *esapi.Response, err error, op string, out any) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%s failed: %s", op, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
