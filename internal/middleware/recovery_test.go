package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/votebox/internal/model"
)

// captureDefaultLogger はグローバルロガーの出力をバッファに差し替える。
func captureDefaultLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	return &buf
}

func TestRecoveryMiddleware_RecoversPanic(t *testing.T) {
	buf := captureDefaultLogger(t)

	h := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/vote", nil)
	req = req.WithContext(ContextWithPrincipal(req.Context(), model.Principal{UserID: "u-1"}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}

	logged := buf.String()
	if !strings.Contains(logged, "panic recovered") || !strings.Contains(logged, `"user_id":"u-1"`) {
		t.Errorf("panic should be logged with user_id, got: %s", logged)
	}
}

// TestRecoveryMiddleware_PassesThrough はpanicしない場合に応答を変更しないことを検証する。
func TestRecoveryMiddleware_PassesThrough(t *testing.T) {
	h := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
}

// TestRecoveryMiddleware_RepanicsAbortHandler はErrAbortHandlerを握りつぶさないことを検証する。
func TestRecoveryMiddleware_RepanicsAbortHandler(t *testing.T) {
	h := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	t.Fatal("ServeHTTP should re-panic")
}

// TestRecoveryMiddleware_LogsUserFromInnerAuth は内側で認証されたユーザーIDをpanicログに含めることを検証する。
func TestRecoveryMiddleware_LogsUserFromInnerAuth(t *testing.T) {
	buf := captureDefaultLogger(t)

	authn := tokenAuthenticator(map[string]model.Principal{"voter-token": {UserID: "u-7"}})
	h := NewRecoveryMiddleware()(NewAuthMiddleware(authn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/vote", nil)
	req.Header.Set("Authorization", "Bearer voter-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(buf.String(), `"user_id":"u-7"`) {
		t.Errorf("panic log should contain user_id, got: %s", buf.String())
	}
}
