package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendSQLite        = "sqlite"
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
)

// Common contains storage parameters shared by every service.
type Common struct {
	StorageBackend     string
	SQLitePath         string
	PostgresDSN        string
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Grouping tunes the clustering engine.
type Grouping struct {
	SimilarityThreshold float64
	DaysBack            int
	MinGroupSize        int
	MaxTimeDiffDays     int
	CandidateLimit      int
	MinKeywordLength    int
	TitleWeight         float64
	ContentWeight       float64
	ContentMaxChars     int
	Language            string
	Workers             int
}

// Grouper holds configuration for the scheduled grouping daemon.
type Grouper struct {
	Common
	Grouping
	Schedule        string
	Timezone        string
	RunTimeout      time.Duration
	KafkaBrokers    []string
	GroupsTopic     string
	TriggerTopic    string
	KafkaConsumer   string
	TriggerDebounce time.Duration
	DedupeCapacity  int
	DedupeTTL       time.Duration
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int
	AllowReset  bool
}

// CLI configures groupctl.
type CLI struct {
	Common
	Grouping
}

// LoadGrouper builds a Grouper config from the config file and environment.
func LoadGrouper() (*Grouper, error) {
	v, err := newValues()
	if err != nil {
		return nil, err
	}

	common, err := v.common()
	if err != nil {
		return nil, err
	}
	grouping, err := v.grouping()
	if err != nil {
		return nil, err
	}

	c := &Grouper{
		Common:          common,
		Grouping:        grouping,
		Schedule:        v.getEnv("GROUPER_SCHEDULE", "*/10 * * * *"),
		Timezone:        v.getEnv("GROUPER_TIMEZONE", "UTC"),
		RunTimeout:      v.getDuration("GROUPER_RUN_TIMEOUT", "5m"),
		KafkaBrokers:    splitAndTrim(v.getEnv("KAFKA_BROKERS", "kafka:9092")),
		GroupsTopic:     v.getOptional("KAFKA_GROUPS_TOPIC", "news_groups"),
		TriggerTopic:    v.getOptional("KAFKA_TRIGGER_TOPIC", "news_ingested"),
		KafkaConsumer:   v.getEnv("KAFKA_CONSUMER_GROUP", "event-grouper"),
		TriggerDebounce: v.getDuration("GROUPER_TRIGGER_DEBOUNCE", "30s"),
		DedupeCapacity:  v.getInt("GROUPER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:       v.getDuration("GROUPER_DEDUPE_TTL", "24h"),
	}

	if strings.TrimSpace(c.Schedule) == "" {
		return nil, fmt.Errorf("GROUPER_SCHEDULE cannot be empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return nil, fmt.Errorf("GROUPER_TIMEZONE: %w", err)
	}
	if c.RunTimeout <= 0 {
		return nil, fmt.Errorf("GROUPER_RUN_TIMEOUT must be positive")
	}
	if (c.GroupsTopic != "" || c.TriggerTopic != "") && len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.TriggerDebounce < 0 {
		return nil, fmt.Errorf("GROUPER_TRIGGER_DEBOUNCE cannot be negative")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("GROUPER_DEDUPE_CAPACITY must be positive")
	}
	if c.DedupeTTL <= 0 {
		return nil, fmt.Errorf("GROUPER_DEDUPE_TTL must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from the config file and environment.
func LoadAPI() (*API, error) {
	v, err := newValues()
	if err != nil {
		return nil, err
	}
	common, err := v.common()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:      common,
		BindAddr:    v.getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: v.getInt("API_PAGE_SIZE", 20),
		MaxPage:     v.getInt("API_MAX_PAGE_SIZE", 100),
		AllowReset:  v.getBool("API_ALLOW_RESET", false),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadCLI builds the groupctl config from the config file and environment.
func LoadCLI() (*CLI, error) {
	v, err := newValues()
	if err != nil {
		return nil, err
	}
	common, err := v.common()
	if err != nil {
		return nil, err
	}
	grouping, err := v.grouping()
	if err != nil {
		return nil, err
	}
	return &CLI{Common: common, Grouping: grouping}, nil
}

func (v values) common() (Common, error) {
	c := Common{
		StorageBackend:     strings.ToLower(v.getEnv("STORAGE_BACKEND", BackendSQLite)),
		SQLitePath:         v.getEnv("SQLITE_PATH", "rss_articles.db"),
		PostgresDSN:        v.getEnv("POSTGRES_DSN", ""),
		ElasticsearchAddr:  v.getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: v.getEnv("ELASTICSEARCH_INDEX", "articles"),
	}

	switch c.StorageBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			return c, fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return c, fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
		}
	case BackendElasticsearch:
		if c.ElasticsearchIndex == "" {
			return c, fmt.Errorf("ELASTICSEARCH_INDEX cannot be empty")
		}
	default:
		return c, fmt.Errorf("STORAGE_BACKEND %q is not one of sqlite, postgres, elasticsearch", c.StorageBackend)
	}
	return c, nil
}

func (v values) grouping() (Grouping, error) {
	g := Grouping{
		SimilarityThreshold: v.getFloat("GROUPING_SIMILARITY_THRESHOLD", 0.3),
		DaysBack:            v.getInt("GROUPING_DAYS_BACK", 7),
		MinGroupSize:        v.getInt("GROUPING_MIN_GROUP_SIZE", 2),
		MaxTimeDiffDays:     v.getInt("GROUPING_MAX_TIME_DIFF_DAYS", 2),
		CandidateLimit:      v.getInt("GROUPING_CANDIDATE_LIMIT", 1000),
		MinKeywordLength:    v.getInt("GROUPING_MIN_KEYWORD_LENGTH", 3),
		TitleWeight:         v.getFloat("GROUPING_TITLE_WEIGHT", 0.7),
		ContentWeight:       v.getFloat("GROUPING_CONTENT_WEIGHT", 0.3),
		ContentMaxChars:     v.getInt("GROUPING_CONTENT_MAX_CHARS", 1000),
		Language:            v.getEnv("GROUPING_LANGUAGE", "tr"),
		Workers:             v.getInt("GROUPING_WORKERS", 4),
	}
	return g, g.Validate()
}

// Validate checks engine parameters. It is also used for command-line
// overrides.
func (g Grouping) Validate() error {
	if g.SimilarityThreshold < 0 || g.SimilarityThreshold > 1 {
		return fmt.Errorf("GROUPING_SIMILARITY_THRESHOLD must be within [0, 1]")
	}
	if g.DaysBack <= 0 {
		return fmt.Errorf("GROUPING_DAYS_BACK must be positive")
	}
	if g.MinGroupSize < 2 {
		return fmt.Errorf("GROUPING_MIN_GROUP_SIZE must be at least 2")
	}
	if g.MaxTimeDiffDays < 0 {
		return fmt.Errorf("GROUPING_MAX_TIME_DIFF_DAYS cannot be negative")
	}
	if g.CandidateLimit <= 0 {
		return fmt.Errorf("GROUPING_CANDIDATE_LIMIT must be positive")
	}
	if g.MinKeywordLength < 1 {
		return fmt.Errorf("GROUPING_MIN_KEYWORD_LENGTH must be positive")
	}
	if g.TitleWeight < 0 || g.ContentWeight < 0 {
		return fmt.Errorf("GROUPING_TITLE_WEIGHT and GROUPING_CONTENT_WEIGHT cannot be negative")
	}
	if sum := g.TitleWeight + g.ContentWeight; sum <= 0 || sum > 1+1e-9 {
		return fmt.Errorf("GROUPING_TITLE_WEIGHT + GROUPING_CONTENT_WEIGHT must be within (0, 1], got %g", sum)
	}
	if g.ContentMaxChars <= 0 {
		return fmt.Errorf("GROUPING_CONTENT_MAX_CHARS must be positive")
	}
	if g.Workers <= 0 {
		return fmt.Errorf("GROUPING_WORKERS must be positive")
	}
	return nil
}

func (v values) getEnv(key, fallback string) string {
	if raw, ok := v.lookup(key); ok && raw != "" {
		return raw
	}
	return fallback
}

// getOptional is getEnv, except that a value explicitly set to "-" or "off"
// disables the setting.
func (v values) getOptional(key, fallback string) string {
	raw := v.getEnv(key, fallback)
	switch strings.ToLower(raw) {
	case "-", "off", "none":
		return ""
	}
	return raw
}

func (v values) getInt(key string, fallback int) int {
	if raw, ok := v.lookup(key); ok && raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			return parsed
		}
	}
	return fallback
}

func (v values) getFloat(key string, fallback float64) float64 {
	if raw, ok := v.lookup(key); ok && raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(parsed) {
			return parsed
		}
	}
	return fallback
}

func (v values) getBool(key string, fallback bool) bool {
	if raw, ok := v.lookup(key); ok && raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			return parsed
		}
	}
	return fallback
}

func (v values) getDuration(key, fallback string) time.Duration {
	raw := v.getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := parseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseDuration(raw string) (time.Duration, error) {
	return time.ParseDuration(raw)
}

// lookup prefers the process environment over the config file.
func (v values) lookup(key string) (string, bool) {
	if raw, ok := os.LookupEnv(key); ok && raw != "" {
		return raw, true
	}
	raw, ok := v.file[key]
	return raw, ok
}
