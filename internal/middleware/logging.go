package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// requestLog はリクエスト処理中に判明したログ用の情報を外側のミドルウェアへ伝える。
// 認証はロギングより内側で行われるため、コンテキストの値だけではuser_idを拾えない。
type requestLog struct {
	userID string
}

var requestLogContextKey = contextKey("request_log")

// withRequestLog はリクエストにrequestLogを持たせる。既に存在する場合はそれを使う。
func withRequestLog(r *http.Request) (*http.Request, *requestLog) {
	if rl, ok := r.Context().Value(requestLogContextKey).(*requestLog); ok {
		return r, rl
	}
	rl := &requestLog{}
	return r.WithContext(context.WithValue(r.Context(), requestLogContextKey, rl)), rl
}

// noteUserID は認証済みユーザーIDをrequestLogに記録する。
func noteUserID(ctx context.Context, userID string) {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		rl.userID = userID
	}
}

// userIDForLog はログに載せるユーザーIDを返す。未認証なら空文字。
func userIDForLog(r *http.Request, rl *requestLog) string {
	if rl != nil && rl.userID != "" {
		return rl.userID
	}
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p.UserID
	}
	return ""
}

// statusRecorder はステータスコードと書き込みバイト数を記録する。
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Status は記録したステータスコードを返す。何も書き込まれていなければ200。
func (sr *statusRecorder) Status() int {
	if sr.status == 0 {
		return http.StatusOK
	}
	return sr.status
}

// NewLoggingMiddleware はリクエストごとに1行のJSONログ（http_request）を出力するミドルウェアを返す。
// レベルはステータスコードで決まる。認証済みリクエストにはuser_idを、
// chiのRequestIDミドルウェアを通過していればrequest_idを付与する。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, rl := withRequestLog(r)
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.Status()
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if userID := userIDForLog(r, rl); userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			logger.LogAttrs(r.Context(), levelForStatus(status), "http_request", attrs...)
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
