// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// auth.LoginMetricsとauth.ProviderMetricsを満たす。
type Collector struct {
	loginSuccess    *prometheus.CounterVec
	loginFailure    *prometheus.CounterVec
	tokensIssued    prometheus.Counter
	providerStatus  *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_login_success_total",
			Help: "ログイン成功の合計数（フロー別）",
		}, []string{"flow"}),
		loginFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_login_failure_total",
			Help: "ログイン失敗の合計数（フロー・エラーコード別）",
		}, []string{"flow", "code"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authgate_tokens_issued_total",
			Help: "発行されたセッショントークンの合計数",
		}),
		providerStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_provider_http_status_total",
			Help: "プロバイダー呼び出しのHTTPステータスコード別レスポンス数（0は到達失敗）",
		}, []string{"endpoint", "status_code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authgate_provider_request_seconds",
			Help:    "プロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFailure,
		c.tokensIssued,
		c.providerStatus,
		c.providerLatency,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess(flow string) {
	c.loginSuccess.WithLabelValues(flow).Inc()
}

// RecordLoginFailure はログイン失敗をエラーコード付きで記録する。
func (c *Collector) RecordLoginFailure(flow, code string) {
	c.loginFailure.WithLabelValues(flow, code).Inc()
}

// RecordTokenIssued はセッショントークン発行を記録する。
func (c *Collector) RecordTokenIssued() {
	c.tokensIssued.Inc()
}

// RecordProviderRequest はプロバイダー呼び出しの結果を記録する。
// statusCode 0 はネットワークレベルの到達失敗を表す。
func (c *Collector) RecordProviderRequest(endpoint string, statusCode int, duration time.Duration) {
	c.providerStatus.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.providerLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
