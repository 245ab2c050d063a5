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
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordPollSuccess(network string)
	RecordPollFailure(network string, reason string)
	RecordHTTPStatus(network string, statusCode int)
	RecordPollLatency(network string, duration time.Duration)
	RecordFavoritesIngested(network string, count int)
	RecordQuotaRemaining(network string, quota int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	pollSuccess       *prometheus.CounterVec
	pollFail          *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	pollLatency       *prometheus.HistogramVec
	favoritesIngested *prometheus.CounterVec
	quotaRemaining    *prometheus.GaugeVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pollSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "favhub_poll_success_total",
			Help: "収集サイクル成功の合計数",
		}, []string{"network"}),
		pollFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "favhub_poll_fail_total",
			Help: "収集サイクル失敗の合計数（指示別）",
		}, []string{"network", "reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "favhub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"network", "status_code"}),
		pollLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "favhub_poll_latency_seconds",
			Help:    "収集サイクルのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"network"}),
		favoritesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "favhub_favorites_ingested_total",
			Help: "保存されたお気に入りの合計数",
		}, []string{"network"}),
		quotaRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "favhub_quota_remaining",
			Help: "ネットワーク別の残APIクォータ",
		}, []string{"network"}),
	}

	reg.MustRegister(
		c.pollSuccess,
		c.pollFail,
		c.httpStatus,
		c.pollLatency,
		c.favoritesIngested,
		c.quotaRemaining,
	)

	return c
}

// RecordPollSuccess は収集サイクル成功を記録する。
func (c *Collector) RecordPollSuccess(network string) {
	c.pollSuccess.WithLabelValues(network).Inc()
}

// RecordPollFailure は収集サイクル失敗を記録する。
func (c *Collector) RecordPollFailure(network string, reason string) {
	c.pollFail.WithLabelValues(network, reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(network string, statusCode int) {
	c.httpStatus.WithLabelValues(network, strconv.Itoa(statusCode)).Inc()
}

// RecordPollLatency は収集サイクルのレイテンシを記録する。
func (c *Collector) RecordPollLatency(network string, duration time.Duration) {
	c.pollLatency.WithLabelValues(network).Observe(duration.Seconds())
}

// RecordFavoritesIngested は保存されたお気に入り数を記録する。
func (c *Collector) RecordFavoritesIngested(network string, count int) {
	c.favoritesIngested.WithLabelValues(network).Add(float64(count))
}

// RecordQuotaRemaining は残APIクォータを記録する。
func (c *Collector) RecordQuotaRemaining(network string, quota int) {
	c.quotaRemaining.WithLabelValues(network).Set(float64(quota))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
