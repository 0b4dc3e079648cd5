// Package ingest はカタログの一括取り込みパイプラインを提供する。
// カテゴリ探索、鮮度判定、エントリ取得、バッチアップサートを実行する。
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/toonman/internal/model"
	"github.com/hitoshi/toonman/internal/repository"
	"github.com/hitoshi/toonman/internal/schedule"
)

// PageFetcher はページ取得のインターフェース。
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// PageDiscoverer はページネーション探索のインターフェース。
type PageDiscoverer interface {
	Discover(ctx context.Context, baseURL string) ([]string, error)
}

// CatalogExtractor はカタログページからの抽出処理のインターフェース。
type CatalogExtractor interface {
	CategoryLinks(body []byte, pageURL string) ([]string, error)
	EntryLinks(body []byte, pageURL string) ([]string, error)
	EntryDetails(body []byte, pageURL string) (*model.Webtoon, error)
	Episodes(body []byte, pageURL string) ([]model.Episode, error)
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
}

// IngestMetrics は取り込みパイプラインが記録するメトリクスのインターフェース。
type IngestMetrics interface {
	RecordEntriesUpserted(count int)
}

// Config はCoordinatorの動作パラメータ。
type Config struct {
	// CatalogURL はカタログのエントリポイントURL。
	CatalogURL string
	// Concurrency はカテゴリの最大並列数（デフォルト: 20）。
	Concurrency int
	// BatchSize はアップサート1回あたりのエントリ数（デフォルト: 20）。
	BatchSize int
	// EntryLimit はカテゴリごとの処理エントリ数上限。0は無制限。
	EntryLimit int
	// DayFilter は曜日フィルタ。空でないときエントリ自身のスケジュールより優先される。
	DayFilter string
	// GlobalLimit は全カテゴリ横断のエントリ処理の最大並列数（デフォルト: 64）。
	GlobalLimit int
}

// Coordinator はカタログ全体の一括取り込みを調整する。
// カテゴリごとにゴルーチンを起動しsemaphoreで並列数を制御する。
// エントリ単位の処理はカテゴリ横断のグローバルsemaphoreを通過するため、
// カテゴリ数×エントリ並列の積でフェッチが爆発することはない。
type Coordinator struct {
	fetcher   PageFetcher
	walker    PageDiscoverer
	extractor CatalogExtractor
	ssrfGuard SSRFValidator
	repo      repository.WebtoonRepository
	metrics   IngestMetrics
	logger    *slog.Logger
	config    Config
	gate      chan struct{}
	now       func() time.Time
}

// NewCoordinator はCoordinatorの新しいインスタンスを生成する。
func NewCoordinator(
	fetcher PageFetcher,
	walker PageDiscoverer,
	extractor CatalogExtractor,
	ssrfGuard SSRFValidator,
	repo repository.WebtoonRepository,
	m IngestMetrics,
	logger *slog.Logger,
	config Config,
) *Coordinator {
	if config.Concurrency <= 0 {
		config.Concurrency = 20
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}
	if config.GlobalLimit <= 0 {
		config.GlobalLimit = 64
	}
	return &Coordinator{
		fetcher:   fetcher,
		walker:    walker,
		extractor: extractor,
		ssrfGuard: ssrfGuard,
		repo:      repo,
		metrics:   m,
		logger:    logger,
		config:    config,
		gate:      make(chan struct{}, config.GlobalLimit),
		now:       time.Now,
	}
}

// Result は1回の取り込み実行の集計。
type Result struct {
	RunID      string
	Categories int
	Entries    int
	Upserted   int
	Skipped    int
	Failed     int
}

type stats struct {
	mu       sync.Mutex
	entries  int
	upserted int
	skipped  int
	failed   int
}

func (s *stats) add(entries, upserted, skipped, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries += entries
	s.upserted += upserted
	s.skipped += skipped
	s.failed += failed
}

// Run はカタログ全体を1回取り込む。カテゴリの取得失敗は
// そのカテゴリをスキップして続行する。エントリポイント自体の
// 取得失敗のみ致命的エラーとして返す。
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	logger := c.logger.With(slog.String("run_id", runID))
	start := c.now()

	if err := c.ssrfGuard.ValidateURL(c.config.CatalogURL); err != nil {
		return nil, fmt.Errorf("カタログURLの検証に失敗: %w", err)
	}

	body, err := c.fetcher.Fetch(ctx, c.config.CatalogURL)
	if err != nil {
		return nil, fmt.Errorf("カタログの取得に失敗: %w", err)
	}
	categories, err := c.extractor.CategoryLinks(body, c.config.CatalogURL)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの抽出に失敗: %w", err)
	}

	logger.Info("取り込みサイクルを開始します",
		slog.Int("categories", len(categories)),
		slog.String("day_filter", c.config.DayFilter),
	)

	st := &stats{}
	sem := make(chan struct{}, c.config.Concurrency)
	var wg sync.WaitGroup

	for _, category := range categories {
		wg.Add(1)
		sem <- struct{}{}

		go func(categoryURL string) {
			defer wg.Done()
			defer func() { <-sem }()

			c.harvestCategory(ctx, logger, categoryURL, st)
		}(category)
	}

	wg.Wait()

	result := &Result{
		RunID:      runID,
		Categories: len(categories),
		Entries:    st.entries,
		Upserted:   st.upserted,
		Skipped:    st.skipped,
		Failed:     st.failed,
	}
	logger.Info("取り込みサイクルが完了しました",
		slog.Int("categories", result.Categories),
		slog.Int("entries", result.Entries),
		slog.Int("upserted", result.Upserted),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result, nil
}

// harvestCategory は1カテゴリの全エントリを処理する。
// エントリは並列に評価・取得され、取得できたレコードはバッチに
// 積まれてBatchSizeごとにアップサートされる。
func (c *Coordinator) harvestCategory(ctx context.Context, logger *slog.Logger, categoryURL string, st *stats) {
	entryURLs, err := c.collectEntryURLs(ctx, categoryURL)
	if err != nil {
		logger.Error("カテゴリの探索に失敗しました",
			slog.String("category_url", categoryURL),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(entryURLs) == 0 {
		logger.Info("カテゴリにエントリがありません",
			slog.String("category_url", categoryURL),
		)
		return
	}

	results := make(chan *model.Webtoon)
	var wg sync.WaitGroup

	for _, entryURL := range entryURLs {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()

			// グローバル許可ゲート: カテゴリ横断の総並列数を制限する
			select {
			case c.gate <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-c.gate }()

			w := c.processEntry(ctx, logger, url, st)
			if w == nil {
				return
			}
			select {
			case results <- w:
			case <-ctx.Done():
			}
		}(entryURL)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	batch := make([]*model.Webtoon, 0, c.config.BatchSize)
	for w := range results {
		batch = append(batch, w)
		if len(batch) >= c.config.BatchSize {
			c.flush(ctx, logger, batch, st)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		c.flush(ctx, logger, batch, st)
	}
}

// collectEntryURLs はカテゴリの全リストページからエントリURLを収集する。
// 重複を除去し、EntryLimitが設定されていればそこで打ち切る。
func (c *Coordinator) collectEntryURLs(ctx context.Context, categoryURL string) ([]string, error) {
	pages, err := c.walker.Discover(ctx, categoryURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var urls []string
	for _, page := range pages {
		body, err := c.fetcher.Fetch(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		links, err := c.extractor.EntryLinks(body, page)
		if err != nil {
			continue
		}
		for _, link := range links {
			if seen[link] {
				continue
			}
			seen[link] = true
			urls = append(urls, link)
			if c.config.EntryLimit > 0 && len(urls) >= c.config.EntryLimit {
				return urls, nil
			}
		}
	}
	return urls, nil
}

// processEntry は1エントリの鮮度を評価し、再フェッチが必要なら
// 詳細とエピソードリストを取得してレコードを返す。
// スキップまたはソフト失敗の場合はnilを返す。
func (c *Coordinator) processEntry(ctx context.Context, logger *slog.Logger, entryURL string, st *stats) *model.Webtoon {
	st.add(1, 0, 0, 0)

	existing, err := c.repo.FindByURL(ctx, entryURL)
	if err != nil {
		logger.Error("エントリの検索に失敗しました",
			slog.String("entry_url", entryURL),
			slog.String("error", err.Error()),
		)
		st.add(0, 0, 0, 1)
		return nil
	}

	now := c.now()
	if existing != nil {
		// 同日内の再処理防止はスケジュール評価より先に効く
		if schedule.HandledToday(existing.LastUpdate, now) {
			st.add(0, 0, 1, 0)
			return nil
		}
		sched := schedule.Parse(existing.DayInfo)
		if !schedule.NeedsRefresh(sched, c.config.DayFilter, existing.LastUpdate, now) {
			st.add(0, 0, 1, 0)
			return nil
		}
	}

	body, err := c.fetcher.Fetch(ctx, entryURL)
	if err != nil {
		// リトライ上限到達等のソフト失敗はこのエントリだけを落とす
		st.add(0, 0, 0, 1)
		return nil
	}

	webtoon, err := c.extractor.EntryDetails(body, entryURL)
	if err != nil {
		logger.Error("エントリの抽出に失敗しました",
			slog.String("entry_url", entryURL),
			slog.String("error", err.Error()),
		)
		st.add(0, 0, 0, 1)
		return nil
	}

	webtoon.Episodes = c.collectEpisodes(ctx, logger, entryURL)
	return webtoon
}

// collectEpisodes はエントリのエピソードリストを全ページから収集する。
// ページ単位の失敗はそのページを落として続行する。
func (c *Coordinator) collectEpisodes(ctx context.Context, logger *slog.Logger, entryURL string) []model.Episode {
	pages, err := c.walker.Discover(ctx, entryURL)
	if err != nil {
		logger.Warn("エピソードページの探索に失敗しました",
			slog.String("entry_url", entryURL),
			slog.String("error", err.Error()),
		)
		return nil
	}

	var episodes []model.Episode
	for _, page := range pages {
		body, err := c.fetcher.Fetch(ctx, page)
		if err != nil {
			continue
		}
		eps, err := c.extractor.Episodes(body, page)
		if err != nil {
			continue
		}
		episodes = append(episodes, eps...)
	}
	return episodes
}

// flush はバッチをアップサートする。個別ドキュメントの失敗は
// ログに記録して残りを継続する。致命的エラーでもこのバッチを
// 失敗として数えるだけで、実行全体は中断しない。
func (c *Coordinator) flush(ctx context.Context, logger *slog.Logger, batch []*model.Webtoon, st *stats) {
	upserted, failures, err := c.repo.BulkUpsert(ctx, batch)
	if err != nil {
		logger.Error("バッチアップサートに失敗しました",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()),
		)
		st.add(0, 0, 0, len(batch))
		return
	}

	for _, f := range failures {
		logger.Error("ドキュメントの書き込みに失敗しました",
			slog.Int("index", f.Index),
			slog.String("key", f.Key),
			slog.String("message", f.Message),
		)
	}

	st.add(0, upserted, 0, len(failures))
	c.metrics.RecordEntriesUpserted(upserted)
}
