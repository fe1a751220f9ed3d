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

	"github.com/hitoshi/loggate/internal/model"
)

// findMetric は指定名・ラベルに一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{model.ErrNoCredential, OutcomeMissing},
		{model.ErrMissingCredential, OutcomeMissing},
		{fmt.Errorf("wrapped: %w", model.ErrInvalidToken), OutcomeInvalid},
		{model.ErrUnauthorized, OutcomeInvalid},
		{model.ErrExpiredToken, OutcomeExpired},
		{model.ErrVerificationUnavailable, OutcomeUnavailable},
		{model.ErrSessionNotFound, OutcomeNoSession},
		{errors.New("boom"), OutcomeError},
	}
	for _, tt := range tests {
		if got := Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRecordAuthDecision_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthDecision("header", nil)
	c.RecordAuthDecision("header", nil)
	c.RecordAuthDecision("session", model.ErrSessionNotFound)

	m := findMetric(t, reg, "loggate_auth_decisions_total", map[string]string{"method": "header", "outcome": "ok"})
	if m == nil {
		t.Fatal("header/ok metric not found")
	}
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("header/ok = %v, want 2", v)
	}

	m = findMetric(t, reg, "loggate_auth_decisions_total", map[string]string{"method": "session", "outcome": "no_session"})
	if m == nil {
		t.Fatal("session/no_session metric not found")
	}
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("session/no_session = %v, want 1", v)
	}
}

func TestRecordLogin_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(nil)
	c.RecordLogin(model.ErrUnauthorized)

	if m := findMetric(t, reg, "loggate_logins_total", map[string]string{"outcome": "ok"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("logins ok should be 1")
	}
	if m := findMetric(t, reg, "loggate_logins_total", map[string]string{"outcome": "invalid"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("logins invalid should be 1")
	}
}

func TestRecordLogAppend_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogAppend(nil)
	c.RecordLogAppend(model.ErrStorageIO)

	if m := findMetric(t, reg, "loggate_log_appends_total", map[string]string{"outcome": "ok"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("log appends ok should be 1")
	}
	if m := findMetric(t, reg, "loggate_log_appends_total", map[string]string{"outcome": "error"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("log appends error should be 1")
	}
}

func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(302)

	if m := findMetric(t, reg, "loggate_http_status_total", map[string]string{"status_code": "200"}); m == nil || m.GetCounter().GetValue() != 2 {
		t.Error("status 200 should be 2")
	}
	if m := findMetric(t, reg, "loggate_http_status_total", map[string]string{"status_code": "302"}); m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("status 302 should be 1")
	}
}

func TestRecordSessionsPurged_IgnoresZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionsPurged(0)
	c.RecordSessionsPurged(3)

	m := findMetric(t, reg, "loggate_sessions_purged_total", nil)
	if m == nil {
		t.Fatal("sessions purged metric not found")
	}
	if v := m.GetCounter().GetValue(); v != 3 {
		t.Errorf("sessions purged = %v, want 3", v)
	}
}

func TestObserveVerification_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveVerification(100*time.Millisecond, nil)
	c.ObserveVerification(5*time.Second, model.ErrVerificationUnavailable)

	m := findMetric(t, reg, "loggate_token_verify_latency_seconds", map[string]string{"outcome": "ok"})
	if m == nil {
		t.Fatal("verify latency ok metric not found")
	}
	if n := m.GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("sample count = %d, want 1", n)
	}
	if s := m.GetHistogram().GetSampleSum(); s < 0.09 || s > 0.11 {
		t.Errorf("sample sum = %v, want ~0.1", s)
	}
}

func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthDecision("form", nil)
	c.RecordLogin(nil)
	c.RecordLogAppend(nil)
	c.RecordHTTPStatus(200)
	c.RecordSessionsPurged(1)
	c.ObserveVerification(time.Millisecond, nil)

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, metric := range []string{
		"loggate_auth_decisions_total",
		"loggate_logins_total",
		"loggate_log_appends_total",
		"loggate_http_status_total",
		"loggate_sessions_purged_total",
		"loggate_token_verify_latency_seconds",
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordLogin(nil)
	c2.RecordLogin(nil)
	c2.RecordLogin(nil)

	if m := findMetric(t, reg1, "loggate_logins_total", nil); m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("reg1 logins should be 1")
	}
	if m := findMetric(t, reg2, "loggate_logins_total", nil); m == nil || m.GetCounter().GetValue() != 2 {
		t.Error("reg2 logins should be 2")
	}
}

func TestNopCollector_DoesNotPanic(t *testing.T) {
	var c MetricsCollector = NopCollector{}
	c.RecordAuthDecision("header", nil)
	c.RecordLogin(nil)
	c.RecordLogAppend(nil)
	c.RecordHTTPStatus(200)
	c.RecordSessionsPurged(1)
	c.ObserveVerification(time.Second, nil)
}
