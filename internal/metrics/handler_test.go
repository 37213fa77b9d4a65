package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestHandler_ServesMetrics はHandlerがメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordVoteAccepted()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "votebox_votes_accepted_total") {
		t.Error("response should contain votebox_votes_accepted_total metric")
	}
}

// TestStatusMiddleware_RecordsWrittenStatus は書き込まれたステータスが記録されることを検証する。
func TestStatusMiddleware_RecordsWrittenStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	handler := StatusMiddleware(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/vote", nil))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	mf := findMetricFamily(t, reg, "votebox_http_status_total")
	if got := labelValue(mf.GetMetric()[0], "status_code"); got != "201" {
		t.Errorf("status_code label = %q, want %q", got, "201")
	}
}

// TestStatusMiddleware_DefaultsTo200 はWriteHeaderなしの場合に200が記録されることを検証する。
func TestStatusMiddleware_DefaultsTo200(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	handler := StatusMiddleware(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	mf := findMetricFamily(t, reg, "votebox_http_status_total")
	if got := labelValue(mf.GetMetric()[0], "status_code"); got != "200" {
		t.Errorf("status_code label = %q, want %q", got, "200")
	}
}
