// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/toonman/internal/config"
	"github.com/hitoshi/toonman/internal/database"
	"github.com/hitoshi/toonman/internal/handler"
	"github.com/hitoshi/toonman/internal/logger"
	"github.com/hitoshi/toonman/internal/metrics"
	"github.com/hitoshi/toonman/internal/repository"
	"github.com/hitoshi/toonman/internal/scrape"
	"github.com/hitoshi/toonman/internal/security"
	"github.com/hitoshi/toonman/internal/snapshot"
	"github.com/hitoshi/toonman/internal/worker/comments"
	"github.com/hitoshi/toonman/internal/worker/ingest"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("catalog_url", cfg.CatalogURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandOnce:
		return runOnce(cfg)
	case CommandWorker:
		return runWorker(cfg)
	default:
		return runWorker(cfg)
	}
}

// pipeline はワイヤリング済みのパイプライン一式。
type pipeline struct {
	scheduler *ingest.Scheduler
	health    *database.HealthChecker
	registry  *prometheus.Registry
	close     func()
}

// buildPipeline は全依存関係をワイヤリングしたパイプラインを構築する。
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	// 1. ストア接続
	client, err := database.Open(ctx, cfg.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open mongodb: %w", err)
	}
	if err := database.Ping(ctx, client); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	slog.Info("document store connection established")

	db := client.Database(cfg.MongoDB)
	webtoonRepo := repository.NewMongoWebtoonRepo(db.Collection(cfg.WebtoonCollection))
	commentRepo := repository.NewMongoCommentRepo(db.Collection(cfg.CommentCollection))

	// 2. メトリクスとセキュリティサービス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. フェッチ層
	burst := int(cfg.FetchRate)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.FetchRate), burst)
	fetcher := scrape.NewFetcher(
		ssrfGuard.NewSafeClient(cfg.FetchTimeout),
		limiter, collector, slog.Default(),
		scrape.FetcherConfig{
			Retries:     cfg.FetchRetries,
			RetryDelay:  cfg.FetchRetryDelay,
			MaxBodySize: cfg.FetchMaxSize,
		},
	)
	walker := scrape.NewWalker(fetcher, slog.Default())
	extractor := scrape.NewExtractor(sanitizer, slog.Default())

	// 4. カタログ取り込み
	coordinator := ingest.NewCoordinator(
		fetcher, walker, extractor, ssrfGuard,
		webtoonRepo, collector, slog.Default(),
		ingest.Config{
			CatalogURL:  cfg.CatalogURL,
			Concurrency: cfg.CrawlConcurrency,
			BatchSize:   cfg.CrawlBatchSize,
			EntryLimit:  cfg.CrawlEntryLimit,
			DayFilter:   cfg.CrawlDayFilter,
			GlobalLimit: cfg.CrawlGlobalLimit,
		},
	)

	// 5. コメント収集
	commentClient := comments.NewClient(slog.Default(), comments.ClientConfig{
		CDPURL:       cfg.CDPURL,
		CommentLimit: cfg.CommentLimit,
		ReplyLimit:   cfg.ReplyLimit,
		WaitTimeout:  cfg.CommentWaitTimeout,
	})
	harvester := comments.NewHarvester(
		commentClient, webtoonRepo, commentRepo, collector, slog.Default(),
		comments.HarvesterConfig{
			BatchSize:   cfg.CommentBatchSize,
			Concurrency: cfg.CommentConcurrency,
		},
	)

	// 6. スナップショット
	var store snapshot.Store
	var closeStore func()
	if cfg.HDFSAddr != "" {
		hdfsStore, err := snapshot.NewHDFSStore(cfg.HDFSAddr, cfg.HDFSUser)
		if err != nil {
			client.Disconnect(context.Background())
			return nil, err
		}
		store = hdfsStore
		closeStore = func() { hdfsStore.Close() }
		slog.Info("snapshot store: hdfs", slog.String("addr", cfg.HDFSAddr))
	} else {
		store = snapshot.NewLocalStore()
		slog.Info("snapshot store: local filesystem", slog.String("dir", cfg.SnapshotDir))
	}
	compactor := snapshot.NewCompactor(store, cfg.SnapshotDir, collector, slog.Default())

	// 7. パイプラインスケジューラ
	scheduler := ingest.NewScheduler(
		coordinator, harvester, compactor,
		webtoonRepo, commentRepo, slog.Default(), cfg.UseSnapshot,
	)

	return &pipeline{
		scheduler: scheduler,
		health:    database.NewHealthChecker(client),
		registry:  registry,
		close: func() {
			if closeStore != nil {
				closeStore()
			}
			client.Disconnect(context.Background())
		},
	}, nil
}

// runWorker はワーカーモードで起動する。
// 日次パイプラインのスケジューラと運用サーバーを両方起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	server := newOpsServer(cfg.ServerPort, p)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("ops server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	go func() {
		slog.Info("ops server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("run_interval", cfg.RunInterval),
		slog.Int("crawl_concurrency", cfg.CrawlConcurrency),
		slog.Int("global_limit", cfg.CrawlGlobalLimit),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	p.scheduler.Start(ctx, cfg.RunInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runOnce はパイプラインを1サイクルだけ実行して終了する。
func runOnce(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		slog.Info("shutting down...")
		cancel()
	}()

	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	p.scheduler.RunOnce(ctx)
	return ctx.Err()
}

// runServe は運用サーバーのみで起動する。
// パイプラインは起動せず、/healthと/metricsだけを公開する。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	client, err := database.Open(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("failed to open mongodb: %w", err)
	}
	defer client.Disconnect(context.Background())

	if err := database.Ping(ctx, client); err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	slog.Info("document store connection established")

	registry := prometheus.NewRegistry()
	metrics.NewCollector(registry)

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:  database.NewHealthChecker(client),
		MetricsHandler: metrics.Handler(registry),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("ops server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down ops server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("ops server stopped gracefully")
	return nil
}

// newOpsServer はパイプラインのヘルスとメトリクスを公開するHTTPサーバーを返す。
func newOpsServer(port string, p *pipeline) *http.Server {
	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:  p.health,
		MetricsHandler: metrics.Handler(p.registry),
	})
	return &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
