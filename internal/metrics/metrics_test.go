package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/hikbridge/internal/model"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

// TestRecordVendorCall_IncrementsCounterWithLabels はパス・結果ラベル付きでカウンタが増加することを検証する。
func TestRecordVendorCall_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	path := "/artemis/api/resource/v1/person/single/add"
	c.RecordVendorCall(path, OutcomeSuccess, 120*time.Millisecond)
	c.RecordVendorCall(path, OutcomeSuccess, 80*time.Millisecond)
	c.RecordVendorCall(path, OutcomeVendorError, 50*time.Millisecond)

	mf := findMetricFamily(t, reg, "hikbridge_vendor_calls_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		if labelValue(m, "path") != path {
			t.Errorf("path label = %q, want %q", labelValue(m, "path"), path)
		}
		val := m.GetCounter().GetValue()
		switch labelValue(m, "outcome") {
		case OutcomeSuccess:
			if val != 2 {
				t.Errorf("vendor_calls_total{outcome=success} = %v, want 2", val)
			}
		case OutcomeVendorError:
			if val != 1 {
				t.Errorf("vendor_calls_total{outcome=vendor_error} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected outcome label: %s", labelValue(m, "outcome"))
		}
	}
}

// TestRecordVendorCall_ObservesLatency はレイテンシヒストグラムに観測値が記録されることを検証する。
func TestRecordVendorCall_ObservesLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVendorCall("/artemis/api/common/v1/version", OutcomeTransportError, 2*time.Second)

	mf := findMetricFamily(t, reg, "hikbridge_vendor_call_latency_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() != 2 {
		t.Errorf("sample sum = %v, want 2", h.GetSampleSum())
	}
}

// TestRecordSyncOperation_IncrementsCounter は同期操作カウンタが結果コード別に増加することを検証する。
func TestRecordSyncOperation_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncOperation("create", "OK")
	c.RecordSyncOperation("create", "STORAGE_CONFLICT")
	c.RecordSyncOperation("create", "OK")

	mf := findMetricFamily(t, reg, "hikbridge_sync_operations_total")
	for _, m := range mf.GetMetric() {
		val := m.GetCounter().GetValue()
		switch labelValue(m, "code") {
		case "OK":
			if val != 2 {
				t.Errorf("sync_operations_total{code=OK} = %v, want 2", val)
			}
		case "STORAGE_CONFLICT":
			if val != 1 {
				t.Errorf("sync_operations_total{code=STORAGE_CONFLICT} = %v, want 1", val)
			}
		}
	}
}

// TestHandler_ServesMetrics はハンドラーがPrometheus形式でメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSyncOperation("delete", "OK")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "hikbridge_sync_operations_total") {
		t.Error("response should contain hikbridge_sync_operations_total metric")
	}
}

// TestNopCollector_DoesNotPanic はNopCollectorが何もしないことを検証する。
func TestNopCollector_DoesNotPanic(t *testing.T) {
	var c MetricsCollector = NopCollector{}
	c.RecordVendorCall("/x", OutcomeSuccess, time.Second)
	c.RecordSyncOperation("create", "OK")
}

// TestResultCode はエラーから結果ラベルが決まることを検証する。
func TestResultCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"成功", nil, "OK"},
		{"APIError", model.NewResidentNotFoundError("42"), model.ErrCodeResidentNotFound},
		{"ラップされたAPIError", fmt.Errorf("wrap: %w", model.NewVendorError(nil)), model.ErrCodeVendorError},
		{"その他", errors.New("boom"), "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResultCode(tt.err); got != tt.want {
				t.Errorf("ResultCode = %q, want %q", got, tt.want)
			}
		})
	}
}
