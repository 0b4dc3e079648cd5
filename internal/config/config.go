package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Document store
	MongoURI          string
	MongoDB           string
	WebtoonCollection string
	CommentCollection string

	// Catalog source
	CatalogURL string

	// Fetch
	FetchRetries    int
	FetchRetryDelay time.Duration
	FetchTimeout    time.Duration
	FetchMaxSize    int64
	FetchRate       float64

	// Crawl
	CrawlConcurrency int
	CrawlBatchSize   int
	CrawlEntryLimit  int
	CrawlDayFilter   string
	CrawlGlobalLimit int

	// Comments
	CDPURL             string
	CommentBatchSize   int
	CommentLimit       int
	ReplyLimit         int
	CommentConcurrency int
	CommentWaitTimeout time.Duration

	// Snapshot
	UseSnapshot bool
	HDFSAddr    string
	HDFSUser    string
	SnapshotDir string

	// Scheduler
	RunInterval time.Duration

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す（起動時の設定エラーのみが致命的）。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.MongoURI = os.Getenv("MONGO_URI")
	if cfg.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}

	cfg.CatalogURL = os.Getenv("CATALOG_URL")
	if cfg.CatalogURL == "" {
		missing = append(missing, "CATALOG_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.MongoDB = getEnvString("MONGO_DB", "webtoons")
	cfg.WebtoonCollection = getEnvString("MONGO_WEBTOON_COLLECTION", "webtoon_data")
	cfg.CommentCollection = getEnvString("MONGO_COMMENT_COLLECTION", "webtoon_comments")

	cfg.FetchRetries = getEnvInt("FETCH_RETRIES", 5)
	cfg.FetchRetryDelay = getEnvDuration("FETCH_RETRY_DELAY", 5*time.Second)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 15*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchRate = getEnvFloat("FETCH_RATE", 5)

	cfg.CrawlConcurrency = getEnvInt("CRAWL_CONCURRENCY", 20)
	cfg.CrawlBatchSize = getEnvInt("CRAWL_BATCH_SIZE", 20)
	cfg.CrawlEntryLimit = getEnvInt("CRAWL_ENTRY_LIMIT", 0)
	cfg.CrawlDayFilter = getEnvString("CRAWL_DAY_FILTER", "")
	cfg.CrawlGlobalLimit = getEnvInt("CRAWL_GLOBAL_LIMIT", 64)

	cfg.CDPURL = getEnvString("CDP_URL", "ws://localhost:9222")
	cfg.CommentBatchSize = getEnvInt("COMMENT_BATCH_SIZE", 50)
	cfg.CommentLimit = getEnvInt("COMMENT_LIMIT", 5)
	cfg.ReplyLimit = getEnvInt("REPLY_LIMIT", 5)
	cfg.CommentConcurrency = getEnvInt("COMMENT_CONCURRENCY", 0)
	cfg.CommentWaitTimeout = getEnvDuration("COMMENT_WAIT_TIMEOUT", 10*time.Second)

	cfg.UseSnapshot = getEnvBool("USE_SNAPSHOT", true)
	cfg.HDFSAddr = getEnvString("HDFS_ADDR", "")
	cfg.HDFSUser = getEnvString("HDFS_USER", "hdfs")
	cfg.SnapshotDir = getEnvString("SNAPSHOT_DIR", "/webtoons_data")

	cfg.RunInterval = getEnvDuration("RUN_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
