package comments

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/toonman/internal/model"
	"github.com/hitoshi/toonman/internal/repository"
)

// harvestPageSize は当日更新エントリの読み出しページサイズ。
const harvestPageSize = 500

// CommentClient はエピソードのコメント抽出インターフェース。
type CommentClient interface {
	Harvest(ctx context.Context, episodeURL string) ([]model.Comment, error)
}

// HarvestMetrics はコメント収集が記録するメトリクスのインターフェース。
type HarvestMetrics interface {
	RecordThreadsUpserted(count int)
}

// HarvesterConfig はHarvesterの動作パラメータ。
type HarvesterConfig struct {
	// BatchSize はアップサート1回あたりのスレッド数（デフォルト: 50）。
	BatchSize int
	// Concurrency はエピソードの最大並列数。0は無制限。
	Concurrency int
}

// Harvester は当日更新されたエントリの全エピソードのコメントを収集する。
// エピソードごとにゴルーチンを起動し、完了した結果から順に
// バッチへ積んでアップサートする。
type Harvester struct {
	client      CommentClient
	webtoonRepo repository.WebtoonRepository
	commentRepo repository.CommentRepository
	metrics     HarvestMetrics
	logger      *slog.Logger
	config      HarvesterConfig
	now         func() time.Time
}

// NewHarvester はHarvesterの新しいインスタンスを生成する。
func NewHarvester(
	client CommentClient,
	webtoonRepo repository.WebtoonRepository,
	commentRepo repository.CommentRepository,
	m HarvestMetrics,
	logger *slog.Logger,
	config HarvesterConfig,
) *Harvester {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	return &Harvester{
		client:      client,
		webtoonRepo: webtoonRepo,
		commentRepo: commentRepo,
		metrics:     m,
		logger:      logger,
		config:      config,
		now:         time.Now,
	}
}

// Run は当日更新されたエントリのエピソードコメントを1回収集する。
// アップサートしたスレッド数を返す。エピソード単位の失敗は
// そのエピソードを落として続行する。
func (h *Harvester) Run(ctx context.Context) (int, error) {
	start := h.now()
	today := start.Format(model.DateLayout)

	total := 0
	for skip := int64(0); ; skip += harvestPageSize {
		page, err := h.webtoonRepo.ListUpdatedOn(ctx, today, skip, harvestPageSize)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			break
		}

		episodeURLs := collectEpisodeURLs(page)
		n, err := h.harvestEpisodes(ctx, episodeURLs)
		total += n
		if err != nil {
			return total, err
		}

		if len(page) < harvestPageSize {
			break
		}
	}

	h.logger.Info("コメント収集サイクルが完了しました",
		slog.String("date", today),
		slog.Int("threads", total),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return total, nil
}

// collectEpisodeURLs はエントリ群から重複を除いたエピソードURLを集める。
func collectEpisodeURLs(page []*model.Webtoon) []string {
	seen := make(map[string]bool)
	var urls []string
	for _, w := range page {
		for _, ep := range w.Episodes {
			if ep.URL == "" || seen[ep.URL] {
				continue
			}
			seen[ep.URL] = true
			urls = append(urls, ep.URL)
		}
	}
	return urls
}

// harvestEpisodes はエピソード群を並列に収集し、バッチでアップサートする。
func (h *Harvester) harvestEpisodes(ctx context.Context, episodeURLs []string) (int, error) {
	if len(episodeURLs) == 0 {
		return 0, nil
	}

	var sem chan struct{}
	if h.config.Concurrency > 0 {
		sem = make(chan struct{}, h.config.Concurrency)
	}

	results := make(chan *model.CommentThread)
	var wg sync.WaitGroup

	for _, episodeURL := range episodeURLs {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()

			if sem != nil {
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				defer func() { <-sem }()
			}

			comments, err := h.client.Harvest(ctx, url)
			if err != nil {
				h.logger.Error("エピソードのコメント抽出に失敗しました",
					slog.String("episode_url", url),
					slog.String("error", err.Error()),
				)
				return
			}
			thread := &model.CommentThread{
				EpisodeURL: url,
				Comments:   comments,
			}
			select {
			case results <- thread:
			case <-ctx.Done():
			}
		}(episodeURL)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	total := 0
	batch := make([]*model.CommentThread, 0, h.config.BatchSize)
	for thread := range results {
		batch = append(batch, thread)
		if len(batch) >= h.config.BatchSize {
			total += h.flush(ctx, batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		total += h.flush(ctx, batch)
	}
	return total, ctx.Err()
}

// flush はスレッドのバッチをアップサートし、成功数を返す。
// 個別ドキュメントの失敗はログに記録して残りを継続する。
func (h *Harvester) flush(ctx context.Context, batch []*model.CommentThread) int {
	upserted, failures, err := h.commentRepo.BulkUpsert(ctx, batch)
	if err != nil {
		h.logger.Error("コメントスレッドのアップサートに失敗しました",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()),
		)
		return 0
	}
	for _, f := range failures {
		h.logger.Error("スレッドの書き込みに失敗しました",
			slog.Int("index", f.Index),
			slog.String("key", f.Key),
			slog.String("message", f.Message),
		)
	}
	h.metrics.RecordThreadsUpserted(upserted)
	return upserted
}
