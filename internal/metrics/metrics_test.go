package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestSetupMetricsRoute_ReturnsHandler はメトリクスルートのハンドラーが正常に返ることを検証する。
func TestSetupMetricsRoute_ReturnsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	handler := SetupMetricsRoute(reg)
	if handler == nil {
		t.Fatal("expected non-nil handler")
	}
}

// TestSetupMetricsRoute_ServesMetrics は/metricsパスでメトリクスが返ることを検証する。
func TestSetupMetricsRoute_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordPollSuccess("github")
	c.RecordPollFailure("twitter", "rateLimit")
	c.RecordHTTPStatus("github", 200)
	c.RecordPollLatency("github", 120*time.Millisecond)
	c.RecordFavoritesIngested("github", 3)
	c.RecordQuotaRemaining("twitter", 12)

	handler := SetupMetricsRoute(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	for _, name := range []string{
		"favhub_poll_success_total",
		"favhub_poll_fail_total",
		"favhub_http_status_total",
		"favhub_poll_latency_seconds",
		"favhub_favorites_ingested_total",
		"favhub_quota_remaining",
	} {
		if !strings.Contains(bodyStr, name) {
			t.Errorf("response should contain %s metric", name)
		}
	}
}

// TestRecordQuotaRemaining_Gauge はゲージが最新値で上書きされることを検証する。
func TestRecordQuotaRemaining_Gauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordQuotaRemaining("github", 50)
	c.RecordQuotaRemaining("github", 7)

	handler := SetupMetricsRoute(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), `favhub_quota_remaining{network="github"} 7`) {
		t.Error("ゲージは最後に記録した値を保持するべき")
	}
}
