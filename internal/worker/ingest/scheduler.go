package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/toonman/internal/model"
	"github.com/hitoshi/toonman/internal/repository"
	"github.com/hitoshi/toonman/internal/snapshot"
)

// listPageSize はコンパクション対象レコードの読み出しページサイズ。
const listPageSize = 500

// snapshotDatasetWebtoons はカタログスナップショットのデータセット名。
const snapshotDatasetWebtoons = "webtoon_data"

// snapshotDatasetComments はコメントスナップショットのデータセット名。
const snapshotDatasetComments = "webtoon_comments"

// CatalogRunner はカタログ取り込みの実行インターフェース。
type CatalogRunner interface {
	Run(ctx context.Context) (*Result, error)
}

// CommentRunner はコメント収集の実行インターフェース。
// 収集したスレッド数を返す。
type CommentRunner interface {
	Run(ctx context.Context) (int, error)
}

// SnapshotCompactor はスナップショットコンパクションの実行インターフェース。
type SnapshotCompactor interface {
	Compact(ctx context.Context, dataset, keyField string, records []snapshot.Record) error
}

// Scheduler は日次パイプライン全体のスケジューリングを行う。
// 1サイクルは カタログ取り込み → カタログスナップショット →
// コメント収集 → コメントスナップショット の順で実行される。
// 各ステージの失敗はログに記録し、後続ステージは実行される。
type Scheduler struct {
	catalog     CatalogRunner
	comments    CommentRunner
	compactor   SnapshotCompactor
	webtoonRepo repository.WebtoonRepository
	commentRepo repository.CommentRepository
	logger      *slog.Logger
	useSnapshot bool
	now         func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// useSnapshotがfalseの場合、スナップショットステージはスキップされる。
// commentsがnilの場合、コメントステージはスキップされる。
func NewScheduler(
	catalog CatalogRunner,
	comments CommentRunner,
	compactor SnapshotCompactor,
	webtoonRepo repository.WebtoonRepository,
	commentRepo repository.CommentRepository,
	logger *slog.Logger,
	useSnapshot bool,
) *Scheduler {
	return &Scheduler{
		catalog:     catalog,
		comments:    comments,
		compactor:   compactor,
		webtoonRepo: webtoonRepo,
		commentRepo: commentRepo,
		logger:      logger,
		useSnapshot: useSnapshot,
		now:         time.Now,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Bool("use_snapshot", s.useSnapshot),
	)

	// 起動直後に1回実行
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce はパイプラインを1サイクル実行する。
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := s.now()
	today := start.Format(model.DateLayout)

	if _, err := s.catalog.Run(ctx); err != nil {
		s.logger.Error("カタログ取り込みに失敗しました",
			slog.String("error", err.Error()),
		)
	}
	if ctx.Err() != nil {
		return
	}

	if s.useSnapshot {
		if err := s.compactWebtoons(ctx, today); err != nil {
			s.logger.Error("カタログスナップショットの更新に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}
	if ctx.Err() != nil {
		return
	}

	if s.comments != nil {
		if threads, err := s.comments.Run(ctx); err != nil {
			s.logger.Error("コメント収集に失敗しました",
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("コメント収集が完了しました",
				slog.Int("threads", threads),
			)
		}
		if ctx.Err() != nil {
			return
		}

		if s.useSnapshot {
			if err := s.compactComments(ctx, today); err != nil {
				s.logger.Error("コメントスナップショットの更新に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}

	s.logger.Info("パイプラインサイクルが完了しました",
		slog.String("date", today),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}

// compactWebtoons は当日更新されたカタログエントリをスナップショットへマージする。
func (s *Scheduler) compactWebtoons(ctx context.Context, datePrefix string) error {
	var records []snapshot.Record
	for skip := int64(0); ; skip += listPageSize {
		page, err := s.webtoonRepo.ListUpdatedOn(ctx, datePrefix, skip, listPageSize)
		if err != nil {
			return err
		}
		for _, w := range page {
			records = append(records, snapshot.Record{Key: w.URL, Data: w})
		}
		if len(page) < listPageSize {
			break
		}
	}
	return s.compactor.Compact(ctx, snapshotDatasetWebtoons, "url", records)
}

// compactComments は当日更新されたコメントスレッドをスナップショットへマージする。
func (s *Scheduler) compactComments(ctx context.Context, datePrefix string) error {
	var records []snapshot.Record
	for skip := int64(0); ; skip += listPageSize {
		page, err := s.commentRepo.ListUpdatedOn(ctx, datePrefix, skip, listPageSize)
		if err != nil {
			return err
		}
		for _, t := range page {
			records = append(records, snapshot.Record{Key: t.EpisodeURL, Data: t})
		}
		if len(page) < listPageSize {
			break
		}
	}
	return s.compactor.Compact(ctx, snapshotDatasetComments, "episode_url", records)
}
