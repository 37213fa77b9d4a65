// Package app はサブコマンドの解析と依存関係のワイヤリングを行うアプリケーションのエントリーポイント。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/votebox/internal/config"
	"github.com/hitoshi/votebox/internal/database"
	"github.com/hitoshi/votebox/internal/handler"
	"github.com/hitoshi/votebox/internal/logger"
	"github.com/hitoshi/votebox/internal/metrics"
	"github.com/hitoshi/votebox/internal/middleware"
	"github.com/hitoshi/votebox/internal/model"
	"github.com/hitoshi/votebox/internal/worker/cleanup"
)

// dotenvFile は起動時に読み込む任意の.envファイル。
const dotenvFile = ".env"

// Init はアプリケーションの初期化を行う。
// 環境変数（と.env）からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load(dotenvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。管理コマンドの結果はwに出力する。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	// 引数はDB接続前に検査する
	migrateAction := "up"
	switch cmd {
	case CommandMigrate:
		if len(args) > 1 {
			migrateAction = args[1]
		}
		if migrateAction != "up" && migrateAction != "down" && migrateAction != "version" {
			return errors.New("usage: votebox migrate [up|down|version]")
		}
	case CommandAddCandidate:
		if len(args) != 3 {
			return errors.New("usage: votebox add-candidate <name> <slug>")
		}
	case CommandGrantAdmin:
		if len(args) != 2 {
			return errors.New("usage: votebox grant-admin <email>")
		}
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(w, cfg, migrateAction)
	case CommandAddCandidate:
		return runAddCandidate(w, cfg, args[1], args[2])
	case CommandGrantAdmin:
		return runGrantAdmin(w, cfg, args[1])
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, collector := newRegistry()
	svc, err := newServices(db, cfg, collector)
	if err != nil {
		return err
	}

	rl := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitVote))
	defer rl.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newAPIHandler(db, cfg, svc, rl, reg, collector),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("API server starting",
		slog.String("addr", server.Addr),
		slog.Bool("vote_require_open_window", cfg.VoteRequireOpenWindow),
	)
	return serveUntilSignal(server)
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}

	slog.Info("shutting down server...", slog.String("addr", server.Addr))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れトークンを定期的に削除し、/healthと/metricsのみを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, collector := newRegistry()
	job := cleanup.NewTokenCleanupJob(db, slog.Default(), collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("worker starting",
		slog.Duration("token_cleanup_interval", cfg.TokenCleanupInterval),
	)

	go job.Start(ctx, cfg.TokenCleanupInterval)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newWorkerHandler(db, reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return serveUntilSignal(server)
}

// newWorkerHandler はワーカーの監視用エンドポイントを返す。
func newWorkerHandler(checker handler.HealthChecker, reg prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handler.NewHealthHandler(checker))
	r.Handle("/metrics", metrics.Handler(reg))
	return r
}

// runMigrate はデータベースマイグレーションを操作する。
// upは未適用分をすべて適用し、downは直近の1つを取り消し、versionは現在のバージョンを出力する。
func runMigrate(w io.Writer, cfg *config.Config, action string) error {
	slog.Info("running database migrations",
		slog.String("action", action),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case "down":
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case "version":
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migration version failed: %w", err)
		}
		fmt.Fprintf(w, "version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully", slog.String("action", action))
	return nil
}

// runAddCandidate は候補者を1件登録する。
func runAddCandidate(w io.Writer, cfg *config.Config, name, slug string) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	_, collector := newRegistry()
	svc, err := newServices(db, cfg, collector)
	if err != nil {
		return err
	}

	c, err := svc.candidate.Create(context.Background(), name, slug)
	if err != nil {
		return describeError("add-candidate", err)
	}

	fmt.Fprintf(w, "candidate created: id=%d name=%q slug=%q\n", c.ID, c.Name, c.Slug)
	return nil
}

// runGrantAdmin は指定メールアドレスのユーザーを管理者にする。
func runGrantAdmin(w io.Writer, cfg *config.Config, email string) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	_, collector := newRegistry()
	svc, err := newServices(db, cfg, collector)
	if err != nil {
		return err
	}

	if err := svc.user.GrantAdmin(context.Background(), email, true); err != nil {
		return describeError("grant-admin", err)
	}

	fmt.Fprintf(w, "admin granted: %s\n", email)
	return nil
}

// describeError は管理コマンドのエラーを利用者向けの文に変換する。
func describeError(command string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		for _, f := range apiErr.Fields {
			msg += fmt.Sprintf(" %s: %s", f.Field, f.Message)
		}
		return fmt.Errorf("%s: %s (%s)", command, msg, apiErr.Code)
	}
	return fmt.Errorf("%s: %w", command, err)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
