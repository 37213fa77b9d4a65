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
// サービス層、ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordVoteAccepted()
	RecordVoteRejected(reason string)
	RecordWindowTransition(state string)
	RecordHTTPStatus(statusCode int)
	RecordResultsLatency(duration time.Duration)
	RecordTokensCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	votesAccepted     prometheus.Counter
	votesRejected     *prometheus.CounterVec
	windowTransitions *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	resultsLatency    prometheus.Histogram
	tokensCleaned     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		votesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "votebox_votes_accepted_total",
			Help: "受理された投票の合計数",
		}),
		votesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "votebox_votes_rejected_total",
			Help: "拒否された投票の理由別合計数",
		}, []string{"reason"}),
		windowTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "votebox_voting_window_transitions_total",
			Help: "投票受付状態の遷移回数",
		}, []string{"state"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "votebox_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		resultsLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "votebox_results_latency_seconds",
			Help:    "集計結果の算出にかかった時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokensCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "votebox_tokens_cleaned_total",
			Help: "削除された期限切れトークンの合計数",
		}),
	}

	reg.MustRegister(
		c.votesAccepted,
		c.votesRejected,
		c.windowTransitions,
		c.httpStatus,
		c.resultsLatency,
		c.tokensCleaned,
	)

	return c
}

// RecordVoteAccepted は投票の受理を記録する。
func (c *Collector) RecordVoteAccepted() {
	c.votesAccepted.Inc()
}

// RecordVoteRejected は投票の拒否を理由（エラーコード）とともに記録する。
func (c *Collector) RecordVoteRejected(reason string) {
	c.votesRejected.WithLabelValues(reason).Inc()
}

// RecordWindowTransition は投票受付状態の遷移を記録する。stateは "open" または "closed"。
func (c *Collector) RecordWindowTransition(state string) {
	c.windowTransitions.WithLabelValues(state).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordResultsLatency は集計のレイテンシを記録する。
func (c *Collector) RecordResultsLatency(duration time.Duration) {
	c.resultsLatency.Observe(duration.Seconds())
}

// RecordTokensCleaned は削除されたトークン数を記録する。
func (c *Collector) RecordTokensCleaned(count int64) {
	c.tokensCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// StatusMiddleware はレスポンスのステータスコードをcollectorに記録するミドルウェアを返す。
func StatusMiddleware(collector MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			collector.RecordHTTPStatus(rec.status)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

var _ MetricsCollector = (*Collector)(nil)
