// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/loggate/internal/model"
)

// 結果ラベルの値
const (
	OutcomeOK          = "ok"
	OutcomeMissing     = "missing"
	OutcomeInvalid     = "invalid"
	OutcomeExpired     = "expired"
	OutcomeUnavailable = "unavailable"
	OutcomeNoSession   = "no_session"
	OutcomeError       = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、ハンドラー、ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthDecision(method string, err error)
	RecordLogin(err error)
	RecordLogAppend(err error)
	RecordHTTPStatus(statusCode int)
	RecordSessionsPurged(count int64)
	ObserveVerification(duration time.Duration, err error)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authDecisions  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	logAppends     *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	sessionsPurged prometheus.Counter
	verifyLatency  *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loggate_auth_decisions_total",
			Help: "保護リソースへのアクセス判定数（資格情報の種類・結果別）",
		}, []string{"method", "outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loggate_logins_total",
			Help: "ログイン試行数（結果別）",
		}, []string{"outcome"}),
		logAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loggate_log_appends_total",
			Help: "ログ追記数（結果別）",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loggate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loggate_sessions_purged_total",
			Help: "期限切れにより削除されたセッションの合計数",
		}),
		verifyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loggate_token_verify_latency_seconds",
			Help:    "IDトークン検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.authDecisions,
		c.logins,
		c.logAppends,
		c.httpStatus,
		c.sessionsPurged,
		c.verifyLatency,
	)

	return c
}

// Outcome はエラーを結果ラベルに変換する。
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, model.ErrMissingCredential), errors.Is(err, model.ErrNoCredential):
		return OutcomeMissing
	case errors.Is(err, model.ErrExpiredToken):
		return OutcomeExpired
	case errors.Is(err, model.ErrVerificationUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, model.ErrInvalidToken), errors.Is(err, model.ErrUnauthorized):
		return OutcomeInvalid
	case errors.Is(err, model.ErrSessionNotFound):
		return OutcomeNoSession
	default:
		return OutcomeError
	}
}

// RecordAuthDecision はアクセス判定の結果を記録する。
func (c *Collector) RecordAuthDecision(method string, err error) {
	c.authDecisions.WithLabelValues(method, Outcome(err)).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(err error) {
	c.logins.WithLabelValues(Outcome(err)).Inc()
}

// RecordLogAppend はログ追記の結果を記録する。
func (c *Collector) RecordLogAppend(err error) {
	c.logAppends.WithLabelValues(Outcome(err)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsPurged は削除されたセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	if count > 0 {
		c.sessionsPurged.Add(float64(count))
	}
}

// ObserveVerification はトークン検証のレイテンシを記録する。
// verifier.Observerを満たす。
func (c *Collector) ObserveVerification(duration time.Duration, err error) {
	c.verifyLatency.WithLabelValues(Outcome(err)).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。メトリクスを無効にする場合やテストで使う。
type NopCollector struct{}

func (NopCollector) RecordAuthDecision(string, error) {}
func (NopCollector) RecordLogin(error) {}
func (NopCollector) RecordLogAppend(error) {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordSessionsPurged(int64) {}
func (NopCollector) ObserveVerification(time.Duration, error) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
