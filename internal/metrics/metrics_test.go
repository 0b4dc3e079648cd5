package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector_CountersExposed(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchSuccess()
	c.RecordFetchSuccess()
	c.RecordFetchFailure()
	c.RecordHTTPStatus(200)
	c.RecordFetchLatency(120 * time.Millisecond)
	c.RecordEntriesUpserted(3)
	c.RecordThreadsUpserted(2)
	c.RecordSnapshotRecords("webtoon_data", 10)
	c.RecordCompactionRun("webtoon_data", true)
	c.RecordCompactionRun("webtoon_comments", false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"toonman_fetch_success_total 2",
		"toonman_fetch_fail_total 1",
		`toonman_http_status_total{status_code="200"} 1`,
		"toonman_entries_upserted_total 3",
		"toonman_threads_upserted_total 2",
		`toonman_snapshot_records_total{dataset="webtoon_data"} 10`,
		`toonman_compaction_runs_total{dataset="webtoon_data",status="success"} 1`,
		`toonman_compaction_runs_total{dataset="webtoon_comments",status="failure"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("メトリクス出力に %q が含まれるべき", want)
		}
	}
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("同一レジストリへの二重登録はpanicすべき")
		}
	}()
	NewCollector(reg)
}
