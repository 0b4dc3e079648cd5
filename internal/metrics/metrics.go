// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// フェッチャー・コーディネーター・コンパクターから利用する。
type MetricsCollector interface {
	RecordFetchSuccess()
	RecordFetchFailure()
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordEntriesUpserted(count int)
	RecordThreadsUpserted(count int)
	RecordSnapshotRecords(dataset string, count int)
	RecordCompactionRun(dataset string, success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess    prometheus.Counter
	fetchFail       prometheus.Counter
	httpStatus      *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
	entriesUpserted prometheus.Counter
	threadsUpserted prometheus.Counter
	snapshotRecords *prometheus.CounterVec
	compactionRuns  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toonman_fetch_success_total",
			Help: "ページフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toonman_fetch_fail_total",
			Help: "リトライ上限まで失敗したページフェッチの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toonman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toonman_fetch_latency_seconds",
			Help:    "ページフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		entriesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toonman_entries_upserted_total",
			Help: "アップサートされたカタログエントリの合計数",
		}),
		threadsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toonman_threads_upserted_total",
			Help: "アップサートされたコメントスレッドの合計数",
		}),
		snapshotRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toonman_snapshot_records_total",
			Help: "スナップショットに書き出されたレコードの合計数",
		}, []string{"dataset"}),
		compactionRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toonman_compaction_runs_total",
			Help: "コンパクション実行回数（結果別）",
		}, []string{"dataset", "status"}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.httpStatus,
		c.fetchLatency,
		c.entriesUpserted,
		c.threadsUpserted,
		c.snapshotRecords,
		c.compactionRuns,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess() {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はリトライ上限到達によるフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure() {
	c.fetchFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordEntriesUpserted はアップサートされたカタログエントリ数を記録する。
func (c *Collector) RecordEntriesUpserted(count int) {
	c.entriesUpserted.Add(float64(count))
}

// RecordThreadsUpserted はアップサートされたコメントスレッド数を記録する。
func (c *Collector) RecordThreadsUpserted(count int) {
	c.threadsUpserted.Add(float64(count))
}

// RecordSnapshotRecords はスナップショットに書き出されたレコード数を記録する。
func (c *Collector) RecordSnapshotRecords(dataset string, count int) {
	c.snapshotRecords.WithLabelValues(dataset).Add(float64(count))
}

// RecordCompactionRun はコンパクション実行を結果付きで記録する。
func (c *Collector) RecordCompactionRun(dataset string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.compactionRuns.WithLabelValues(dataset, status).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
