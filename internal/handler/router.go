package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/votebox/internal/metrics"
	"github.com/hitoshi/votebox/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 監視
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer

	// サービス
	AuthService      AuthServiceInterface
	UserService      AccountRemover
	CandidateService CandidateServiceInterface
	VoteService      VoteServiceInterface
	VotingService    VotingServiceInterface
	ResultsService   ResultsServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS → StripSlashes
//	  公開ルート:   RateLimit(General, IP単位)
//	  認証ルート:   Auth → RateLimit(General, ユーザー単位) [→ RequireAdmin] [→ RateLimit(Vote)]
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(metrics.StatusMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	// 末尾スラッシュ付きのURL（/api/vote/ など）も受け付ける
	r.Use(chimw.StripSlashes)

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService)
	candidateHandler := NewCandidateHandler(deps.CandidateService)
	voteHandler := NewVoteHandler(deps.VoteService)
	votingHandler := NewVotingHandler(deps.VotingService)
	resultsHandler := NewResultsHandler(deps.ResultsService)

	// --- 監視用ルート（レート制限なし） ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証不要のルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		r.Get("/api/candidates", candidateHandler.ListCandidates)
		r.Get("/api/results", resultsHandler.GetResults)
		r.Get("/api/voting/status", votingHandler.Status)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/profile", authHandler.Profile)
		r.Post("/logout", authHandler.Logout)
		r.Delete("/api/users/me", userHandler.DeleteMe)

		r.With(deps.RateLimiter.VoteMiddleware()).Post("/api/vote", voteHandler.CastVote)

		// 管理者のみ
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Post("/api/candidates", candidateHandler.CreateCandidate)
			r.Delete("/api/candidates/{slug}", candidateHandler.DeleteCandidate)
			r.Post("/api/voting/start", votingHandler.Start)
			r.Post("/api/voting/stop", votingHandler.Stop)
		})
	})

	return r
}
