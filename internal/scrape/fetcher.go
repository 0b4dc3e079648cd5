// Package scrape はカタログソースのページ取得と抽出を提供する。
// フェッチャー、ページネーション探索、CSSセレクタ抽出を含む。
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnavailable はリトライ上限まで取得に失敗したことを示す。
// ソフト失敗であり、呼び出し元はこの作業単位をスキップする。
// 致命的エラーとして伝播してはならない。
var ErrUnavailable = errors.New("scrape: page unavailable after retries")

// PageFetcher はページ取得のインターフェース。
// テスト時にモックに差し替え可能。
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetchMetrics はフェッチャーが記録するメトリクスのインターフェース。
type FetchMetrics interface {
	RecordFetchSuccess()
	RecordFetchFailure()
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
}

// FetcherConfig はFetcherの動作パラメータ。
type FetcherConfig struct {
	// Retries は最大試行回数（デフォルト: 5）。
	Retries int
	// RetryDelay は試行間の固定待機時間（デフォルト: 5秒）。
	// 指数バックオフやジッターは意図的に使わない（一定間隔）。
	RetryDelay time.Duration
	// MaxBodySize はレスポンスボディの最大読み取りサイズ。
	MaxBodySize int64
	// UserAgent はリクエストのUser-Agentヘッダー。
	UserAgent string
}

// Fetcher はリトライ付きのページ取得プリミティブ。
// トランスポートエラーと非2xxレスポンスはいずれも失敗として扱い、
// 固定間隔で再試行する。上限到達でErrUnavailableを返す。
// 全リクエストはグローバルレートリミッターを通過する。
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	metrics FetchMetrics
	logger  *slog.Logger
	config  FetcherConfig
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(
	client *http.Client,
	limiter *rate.Limiter,
	m FetchMetrics,
	logger *slog.Logger,
	config FetcherConfig,
) *Fetcher {
	if config.Retries <= 0 {
		config.Retries = 5
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 5 * 1024 * 1024
	}
	if config.UserAgent == "" {
		config.UserAgent = "Toonman/1.0 Catalog Harvester"
	}
	return &Fetcher{
		client:  client,
		limiter: limiter,
		metrics: m,
		logger:  logger,
		config:  config,
	}
}

// Fetch はURLの内容を取得する。リトライ上限まで失敗した場合は
// ErrUnavailableを返す。コンテキストのキャンセルはその時点のエラーを返す。
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	for attempt := 1; attempt <= f.config.Retries; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		body, status, err := f.do(ctx, url)
		if err == nil {
			f.metrics.RecordHTTPStatus(status)
			f.metrics.RecordFetchLatency(time.Since(start))
			f.metrics.RecordFetchSuccess()
			return body, nil
		}

		if status > 0 {
			f.metrics.RecordHTTPStatus(status)
		}
		f.logger.Warn("ページの取得に失敗しました",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", f.config.Retries),
			slog.String("error", err.Error()),
		)

		if attempt < f.config.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.config.RetryDelay):
			}
		}
	}

	f.metrics.RecordFetchFailure()
	f.logger.Error("リトライ上限に達したためページをスキップします",
		slog.String("url", url),
		slog.Int("max_retries", f.config.Retries),
	)
	return nil, ErrUnavailable
}

// do は1回のHTTPリクエストを実行する。
// 非2xxステータスはエラーとして返す（ステータスコード付き）。
func (f *Fetcher) do(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("HTTPステータス %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodySize))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	return body, resp.StatusCode, nil
}
