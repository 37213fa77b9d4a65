package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/votebox/internal/auth"
	"github.com/hitoshi/votebox/internal/metrics"
	"github.com/hitoshi/votebox/internal/middleware"
	"github.com/hitoshi/votebox/internal/model"
	"github.com/hitoshi/votebox/internal/vote"
)

// mockAuthenticator は既知のトークンのみを受け付けるAuthenticator。
type mockAuthenticator struct {
	tokens map[string]model.Principal
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	p, ok := m.tokens[token]
	if !ok {
		return nil, model.NewUnauthenticatedError()
	}
	return &p, nil
}

// createTestRouter はテスト用の完全なルーターを構築するヘルパー。
func createTestRouter(t *testing.T) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	reg := prometheus.NewRegistry()

	return NewRouter(&RouterDeps{
		Authenticator: &mockAuthenticator{tokens: map[string]model.Principal{
			"voter-token": {UserID: "voter-1"},
			"admin-token": {UserID: "admin-1", IsAdmin: true},
		}},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		HealthChecker:     stubPinger{},
		Metrics:           metrics.NewCollector(reg),
		Gatherer:          reg,
		AuthService: &mockAuthService{
			profileFn: func(ctx context.Context, p model.Principal) (*auth.Profile, error) {
				return &auth.Profile{User: &model.User{ID: p.UserID}}, nil
			},
		},
		UserService: &mockUserService{},
		CandidateService: &mockCandidateService{
			listFn: func(ctx context.Context) ([]*model.Candidate, error) {
				return []*model.Candidate{{ID: 1, Name: "Alice", Slug: "alice"}}, nil
			},
			createFn: func(ctx context.Context, name, slug string) (*model.Candidate, error) {
				return &model.Candidate{ID: 2, Name: name, Slug: slug}, nil
			},
		},
		VoteService: &mockVoteService{
			castVoteFn: func(ctx context.Context, p model.Principal, slug string) (*vote.Receipt, error) {
				return &vote.Receipt{
					Ballot:        model.Ballot{UserID: p.UserID, VotedAt: time.Now()},
					CandidateName: "Alice",
					CandidateSlug: slug,
				}, nil
			},
		},
		VotingService: &mockVotingService{
			startFn: func(ctx context.Context) (*model.VotingWindow, error) {
				now := time.Now()
				return &model.VotingWindow{IsActive: true, StartedAt: &now}, nil
			},
			stopFn: func(ctx context.Context) (*model.VotingWindow, error) {
				now := time.Now()
				return &model.VotingWindow{EndedAt: &now}, nil
			},
		},
		ResultsService: &mockResultsService{},
	})
}

func serve(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// TestNewRouter_Routes は全エンドポイントの認証・認可とステータスを検証する。
func TestNewRouter_Routes(t *testing.T) {
	router := createTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       string
		wantStatus int
	}{
		// 公開ルート
		{"候補者一覧", http.MethodGet, "/api/candidates", "", "", http.StatusOK},
		{"候補者一覧（末尾スラッシュ）", http.MethodGet, "/api/candidates/", "", "", http.StatusOK},
		{"集計結果", http.MethodGet, "/api/results", "", "", http.StatusOK},
		{"受付状態", http.MethodGet, "/api/voting/status/", "", "", http.StatusOK},
		{"ヘルスチェック", http.MethodGet, "/health", "", "", http.StatusOK},
		{"メトリクス", http.MethodGet, "/metrics", "", "", http.StatusOK},

		// 認証ルート
		{"プロフィール未認証", http.MethodGet, "/profile", "", "", http.StatusUnauthorized},
		{"プロフィール不正トークン", http.MethodGet, "/profile", "bogus", "", http.StatusUnauthorized},
		{"プロフィール", http.MethodGet, "/profile/", "voter-token", "", http.StatusOK},
		{"投票未認証", http.MethodPost, "/api/vote", "", `{"candidate_slug":"alice"}`, http.StatusUnauthorized},
		{"投票", http.MethodPost, "/api/vote/", "voter-token", `{"candidate_slug":"alice"}`, http.StatusCreated},
		{"ログアウト", http.MethodPost, "/logout", "voter-token", "", http.StatusNoContent},
		{"退会", http.MethodDelete, "/api/users/me", "voter-token", "", http.StatusNoContent},

		// 管理者ルート
		{"開始（一般ユーザー）", http.MethodPost, "/api/voting/start", "voter-token", "", http.StatusForbidden},
		{"開始（管理者）", http.MethodPost, "/api/voting/start", "admin-token", "", http.StatusOK},
		{"終了（管理者）", http.MethodPost, "/api/voting/stop/", "admin-token", "", http.StatusOK},
		{"候補者登録（一般ユーザー）", http.MethodPost, "/api/candidates", "voter-token", `{"name":"Carol","slug":"carol"}`, http.StatusForbidden},
		{"候補者登録（未認証）", http.MethodPost, "/api/candidates", "", `{"name":"Carol","slug":"carol"}`, http.StatusUnauthorized},
		{"候補者登録（管理者）", http.MethodPost, "/api/candidates", "admin-token", `{"name":"Carol","slug":"carol"}`, http.StatusCreated},
		{"候補者削除（管理者）", http.MethodDelete, "/api/candidates/alice", "admin-token", "", http.StatusNoContent},

		// 存在しないルート
		{"未定義パス", http.MethodGet, "/api/feeds", "", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, tt.path, tt.token, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d (body: %s)", tt.method, tt.path, w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

// TestNewRouter_CommonHeaders はCORSとセキュリティヘッダーが全ルートに付与されることを検証する。
func TestNewRouter_CommonHeaders(t *testing.T) {
	router := createTestRouter(t)

	for _, w := range []*httptest.ResponseRecorder{
		serve(router, http.MethodGet, "/api/results", "", ""),
		serve(router, http.MethodPost, "/api/vote", "", ""),
	} {
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
		if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Errorf("X-Content-Type-Options = %q", got)
		}
	}
}

// TestNewRouter_Preflight はプリフライトが認証なしで204を返すことを検証する。
func TestNewRouter_Preflight(t *testing.T) {
	router := createTestRouter(t)

	w := serve(router, http.MethodOptions, "/api/vote", "", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

// TestNewRouter_MetricsRecordsStatus はレスポンスのステータスがメトリクスに記録されることを検証する。
func TestNewRouter_MetricsRecordsStatus(t *testing.T) {
	router := createTestRouter(t)

	serve(router, http.MethodGet, "/profile", "", "")

	w := serve(router, http.MethodGet, "/metrics", "", "")
	if !strings.Contains(w.Body.String(), `votebox_http_status_total{status_code="401"} 1`) {
		t.Errorf("401 not recorded in metrics:\n%s", w.Body.String())
	}
}
