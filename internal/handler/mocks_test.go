package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/votebox/internal/auth"
	"github.com/hitoshi/votebox/internal/middleware"
	"github.com/hitoshi/votebox/internal/model"
	"github.com/hitoshi/votebox/internal/results"
	"github.com/hitoshi/votebox/internal/vote"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn func(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	loginFn    func(ctx context.Context, email, password string) (*auth.Session, error)
	profileFn  func(ctx context.Context, principal model.Principal) (*auth.Profile, error)
	logoutFn   func(ctx context.Context, token string) error
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error) {
	return m.registerFn(ctx, in)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthService) Profile(ctx context.Context, principal model.Principal) (*auth.Profile, error) {
	return m.profileFn(ctx, principal)
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

type mockCandidateService struct {
	listFn   func(ctx context.Context) ([]*model.Candidate, error)
	createFn func(ctx context.Context, name, slug string) (*model.Candidate, error)
	deleteFn func(ctx context.Context, slug string) error
}

func (m *mockCandidateService) List(ctx context.Context) ([]*model.Candidate, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockCandidateService) Create(ctx context.Context, name, slug string) (*model.Candidate, error) {
	return m.createFn(ctx, name, slug)
}

func (m *mockCandidateService) Delete(ctx context.Context, slug string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, slug)
	}
	return nil
}

type mockVoteService struct {
	castVoteFn func(ctx context.Context, principal model.Principal, slug string) (*vote.Receipt, error)
}

func (m *mockVoteService) CastVote(ctx context.Context, principal model.Principal, slug string) (*vote.Receipt, error) {
	return m.castVoteFn(ctx, principal, slug)
}

type mockVotingService struct {
	statusFn func(ctx context.Context) (*model.VotingWindow, error)
	startFn  func(ctx context.Context) (*model.VotingWindow, error)
	stopFn   func(ctx context.Context) (*model.VotingWindow, error)
}

func (m *mockVotingService) Status(ctx context.Context) (*model.VotingWindow, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return &model.VotingWindow{}, nil
}

func (m *mockVotingService) Start(ctx context.Context) (*model.VotingWindow, error) {
	return m.startFn(ctx)
}

func (m *mockVotingService) Stop(ctx context.Context) (*model.VotingWindow, error) {
	return m.stopFn(ctx)
}

type mockResultsService struct {
	computeFn func(ctx context.Context) (*results.Summary, error)
}

func (m *mockResultsService) Compute(ctx context.Context) (*results.Summary, error) {
	if m.computeFn != nil {
		return m.computeFn(ctx)
	}
	return &results.Summary{}, nil
}

// --- ヘルパー ---

// withPrincipal はリクエストコンテキストに認証主体を注入する。
func withPrincipal(r *http.Request, userID string, isAdmin bool) *http.Request {
	return r.WithContext(middleware.ContextWithPrincipal(r.Context(), model.Principal{UserID: userID, IsAdmin: isAdmin}))
}

// decodeBody はレスポンスボディをJSONとしてvに読み込む。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
}

// assertErrorResponse はステータスとエラーコードを検証する。
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, status int, code string) middleware.ErrorResponseBody {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	var body middleware.ErrorResponseBody
	decodeBody(t, w, &body)
	if body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
	return body
}
