// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/hikbridge/internal/model"
)

// HikCentral呼び出し結果のラベル値。
const (
	OutcomeSuccess        = "success"
	OutcomeVendorError    = "vendor_error"
	OutcomeTransportError = "transport_error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ベンダークライアントやサービス層から利用する。
type MetricsCollector interface {
	RecordVendorCall(path, outcome string, duration time.Duration)
	RecordSyncOperation(operation, code string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	vendorCalls   *prometheus.CounterVec
	vendorLatency *prometheus.HistogramVec
	syncOps       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		vendorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hikbridge_vendor_calls_total",
			Help: "HikCentral API呼び出しの合計数（パス・結果別）",
		}, []string{"path", "outcome"}),
		vendorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hikbridge_vendor_call_latency_seconds",
			Help:    "HikCentral API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		syncOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hikbridge_sync_operations_total",
			Help: "同期操作の合計数（操作・結果コード別）",
		}, []string{"operation", "code"}),
	}

	reg.MustRegister(
		c.vendorCalls,
		c.vendorLatency,
		c.syncOps,
	)

	return c
}

// RecordVendorCall はHikCentral API呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordVendorCall(path, outcome string, duration time.Duration) {
	c.vendorCalls.WithLabelValues(path, outcome).Inc()
	c.vendorLatency.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordSyncOperation は同期操作の結果を記録する。成功時の code は "OK"。
func (c *Collector) RecordSyncOperation(operation, code string) {
	c.syncOps.WithLabelValues(operation, code).Inc()
}

// ResultCode は同期操作の結果ラベルを返す。
// 成功時は "OK"、model.APIError の場合はそのコード、それ以外は "INTERNAL"。
func ResultCode(err error) string {
	if err == nil {
		return "OK"
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "INTERNAL"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しない MetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordVendorCall(string, string, time.Duration) {}
func (NopCollector) RecordSyncOperation(string, string)             {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
