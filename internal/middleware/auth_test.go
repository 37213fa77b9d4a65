package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/votebox/internal/model"
)

// --- モック定義 ---

type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, token string) (*model.Principal, error)
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, token)
	}
	return nil, model.NewUnauthenticatedError()
}

// tokenAuthenticator は既知のトークンのみを受け付ける。
func tokenAuthenticator(tokens map[string]model.Principal) *mockAuthenticator {
	return &mockAuthenticator{
		authenticateFn: func(ctx context.Context, token string) (*model.Principal, error) {
			p, ok := tokens[token]
			if !ok {
				return nil, model.NewUnauthenticatedError()
			}
			return &p, nil
		},
	}
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Code
}

// --- TokenFromRequest ---

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		wantOK bool
	}{
		{"Bearer", "Bearer abc123", "abc123", true},
		{"Token（別名）", "Token abc123", "abc123", true},
		{"スキーム小文字", "bearer abc123", "abc123", true},
		{"ヘッダーなし", "", "", false},
		{"スキームなし", "abc123", "", false},
		{"未対応スキーム", "Basic dXNlcjpwYXNz", "", false},
		{"トークン空", "Bearer ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, ok := TokenFromRequest(req)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("TokenFromRequest() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// --- NewAuthMiddleware ---

func TestAuthMiddleware_ValidToken_InjectsPrincipal(t *testing.T) {
	mw := NewAuthMiddleware(tokenAuthenticator(map[string]model.Principal{
		"valid-token": {UserID: "user-123", IsAdmin: true},
	}))

	var captured model.Principal
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Error("expected principal in context")
		}
		captured = p
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured.UserID != "user-123" || !captured.IsAdmin {
		t.Errorf("principal = %+v", captured)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	mw := NewAuthMiddleware(tokenAuthenticator(map[string]model.Principal{
		"valid-token": {UserID: "user-123"},
	}))
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"ヘッダーなし", ""},
		{"未対応スキーム", "Basic dXNlcjpwYXNz"},
		{"未登録トークン", "Bearer unknown-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if code := decodeErrorCode(t, w); code != model.ErrCodeUnauthenticated {
				t.Errorf("code = %q, want %q", code, model.ErrCodeUnauthenticated)
			}
		})
	}
}

// 認証ストアの障害は401ではなく500になることを検証
func TestAuthMiddleware_StoreFailure_Returns500(t *testing.T) {
	mw := NewAuthMiddleware(&mockAuthenticator{
		authenticateFn: func(ctx context.Context, token string) (*model.Principal, error) {
			return nil, errors.New("connection refused")
		},
	})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// --- RequireAdmin ---

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		principal  *model.Principal
		wantStatus int
		wantCalled bool
	}{
		{"管理者", &model.Principal{UserID: "admin", IsAdmin: true}, http.StatusOK, true},
		{"一般ユーザー", &model.Principal{UserID: "voter"}, http.StatusForbidden, false},
		{"未認証", nil, http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/voting/start", nil)
			if tt.principal != nil {
				req = req.WithContext(ContextWithPrincipal(req.Context(), *tt.principal))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
		})
	}
}

// --- コンテキスト ---

func TestPrincipalFromContext_NoValue(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Error("expected no principal in empty context")
	}
}

func TestPrincipalFromContext_RoundTrip(t *testing.T) {
	ctx := ContextWithPrincipal(context.Background(), model.Principal{UserID: "user-1", IsAdmin: true})
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID != "user-1" || !p.IsAdmin {
		t.Errorf("PrincipalFromContext() = (%+v, %v)", p, ok)
	}
}
