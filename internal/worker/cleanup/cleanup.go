// Package cleanup は期限切れBearerトークンの定期削除ジョブを提供する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanedRecorder は削除件数の記録先。
type CleanedRecorder interface {
	RecordTokensCleaned(count int64)
}

// TokenCleanupJob は有効期限を過ぎたトークンを削除するジョブ。
// 期限切れトークンは認証時にも拒否されるため、このジョブはテーブルの肥大化防止のみを担う。
type TokenCleanupJob struct {
	db       Executor
	logger   *slog.Logger
	recorder CleanedRecorder
}

// NewTokenCleanupJob は新しいTokenCleanupJobを生成する。recorderはnilでもよい。
func NewTokenCleanupJob(db Executor, logger *slog.Logger, recorder CleanedRecorder) *TokenCleanupJob {
	return &TokenCleanupJob{
		db:       db,
		logger:   logger,
		recorder: recorder,
	}
}

// Run は期限切れトークンを削除し、削除件数を返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *TokenCleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE expires_at <= now()`)
	if err != nil {
		j.logger.Error("トークンクリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("トークンクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordTokensCleaned(deletedCount)
	}

	j.logger.Info("トークンクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deletedCount, nil
}

// Start は起動直後に1回、その後interval間隔でRunを実行する。
// コンテキストがキャンセルされるまで実行を継続する。個々の失敗はログに残して継続する。
func (j *TokenCleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("トークンクリーンアップを開始しました",
		slog.Duration("interval", interval),
	)

	_, _ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("トークンクリーンアップを停止しました")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
