package app

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/votebox/internal/auth"
	"github.com/hitoshi/votebox/internal/candidate"
	"github.com/hitoshi/votebox/internal/config"
	"github.com/hitoshi/votebox/internal/handler"
	"github.com/hitoshi/votebox/internal/metrics"
	"github.com/hitoshi/votebox/internal/middleware"
	"github.com/hitoshi/votebox/internal/repository"
	"github.com/hitoshi/votebox/internal/results"
	"github.com/hitoshi/votebox/internal/security"
	"github.com/hitoshi/votebox/internal/user"
	"github.com/hitoshi/votebox/internal/vote"
	"github.com/hitoshi/votebox/internal/voting"
)

// services はDB接続から構築したドメインサービス一式。
type services struct {
	auth      *auth.Service
	user      *user.Service
	candidate *candidate.Service
	vote      *vote.Service
	voting    *voting.Service
	results   *results.Service
}

// newRegistry はアプリケーションメトリクスとランタイムメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// newServices はリポジトリとドメインサービスを組み立てる。
func newServices(db *sql.DB, cfg *config.Config, collector metrics.MetricsCollector) (*services, error) {
	userRepo := repository.NewPostgresUserRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)
	candidateRepo := repository.NewPostgresCandidateRepo(db)
	ballotRepo := repository.NewPostgresBallotRepo(db)
	windowRepo := repository.NewPostgresVotingWindowRepo(db)

	sanitizer := security.NewTextSanitizer()

	votingService := voting.NewService(windowRepo, collector)

	authService, err := auth.NewService(userRepo, tokenRepo, ballotRepo, sanitizer, auth.ServiceConfig{
		TokenMaxAge: cfg.TokenMaxAge,
		BcryptCost:  cfg.BcryptCost,
	})
	if err != nil {
		return nil, err
	}

	return &services{
		auth:      authService,
		user:      user.NewService(userRepo, tokenRepo, votingService),
		candidate: candidate.NewService(candidateRepo, votingService, sanitizer),
		vote: vote.NewService(ballotRepo, candidateRepo, votingService,
			vote.WithRecorder(collector),
			vote.WithRequireOpenWindow(cfg.VoteRequireOpenWindow),
		),
		voting:  votingService,
		results: results.NewService(ballotRepo, collector),
	}, nil
}

// newAPIHandler はAPIサーバーのルーターを組み立てる。
// 呼び出し側はrlを停止する責任を持つ。
func newAPIHandler(
	db *sql.DB,
	cfg *config.Config,
	svc *services,
	rl *middleware.RateLimiter,
	reg *prometheus.Registry,
	collector metrics.MetricsCollector,
) http.Handler {
	return handler.NewRouter(&handler.RouterDeps{
		Authenticator:     svc.auth,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		Logger:            slog.Default(),

		HealthChecker: db,
		Metrics:       collector,
		Gatherer:      reg,

		AuthService:      svc.auth,
		UserService:      svc.user,
		CandidateService: svc.candidate,
		VoteService:      svc.vote,
		VotingService:    svc.voting,
		ResultsService:   svc.results,
	})
}
