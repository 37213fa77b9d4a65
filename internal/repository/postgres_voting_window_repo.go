package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/votebox/internal/model"
)

// PostgresVotingWindowRepo はPostgreSQLを使用した投票受付状態リポジトリ。
// voting_windowテーブルはid=1の1行のみを持つ。
type PostgresVotingWindowRepo struct {
	db *sql.DB
}

// NewPostgresVotingWindowRepo はPostgresVotingWindowRepoを生成する。
func NewPostgresVotingWindowRepo(db *sql.DB) *PostgresVotingWindowRepo {
	return &PostgresVotingWindowRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWindow(row rowScanner) (*model.VotingWindow, error) {
	w := &model.VotingWindow{}
	var startedAt, endedAt sql.NullTime
	if err := row.Scan(&w.IsActive, &startedAt, &endedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.StartedAt = nullTimePtr(startedAt)
	w.EndedAt = nullTimePtr(endedAt)
	return w, nil
}

// Get は現在の投票受付状態を返す。
func (r *PostgresVotingWindowRepo) Get(ctx context.Context) (*model.VotingWindow, error) {
	w, err := scanWindow(r.db.QueryRowContext(ctx,
		`SELECT is_active, started_at, ended_at, updated_at FROM voting_window WHERE id = 1`,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to get voting window: %w", err)
	}
	return w, nil
}

// Transition は行ロックを取得した上で状態遷移を試みる。
// 開始時はended_atをクリアし、終了時はstarted_atを保持する。
func (r *PostgresVotingWindowRepo) Transition(ctx context.Context, active bool, at func(current *model.VotingWindow) time.Time) (*model.VotingWindow, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanWindow(tx.QueryRowContext(ctx,
		`SELECT is_active, started_at, ended_at, updated_at FROM voting_window WHERE id = 1 FOR UPDATE`,
	))
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock voting window: %w", err)
	}

	if current.IsActive == active {
		return current, false, nil
	}

	now := at(current)
	var query string
	if active {
		query = `UPDATE voting_window
		         SET is_active = TRUE, started_at = $1, ended_at = NULL, updated_at = $1
		         WHERE id = 1
		         RETURNING is_active, started_at, ended_at, updated_at`
	} else {
		query = `UPDATE voting_window
		         SET is_active = FALSE, ended_at = $1, updated_at = $1
		         WHERE id = 1
		         RETURNING is_active, started_at, ended_at, updated_at`
	}

	updated, err := scanWindow(tx.QueryRowContext(ctx, query, now))
	if err != nil {
		return nil, false, fmt.Errorf("failed to update voting window: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return updated, true, nil
}

// requireWindowClosed はトランザクション内でvoting_windowの行を共有ロックし、
// 受付中ならErrVotingOpenを返す。ロックはコミットまで保持され、
// その間Transitionの行ロック取得は待たされる。
func requireWindowClosed(ctx context.Context, tx *sql.Tx) error {
	var active bool
	err := tx.QueryRowContext(ctx,
		`SELECT is_active FROM voting_window WHERE id = 1 FOR SHARE`,
	).Scan(&active)
	if err != nil {
		return fmt.Errorf("failed to lock voting window: %w", err)
	}
	if active {
		return ErrVotingOpen
	}
	return nil
}

// compile-time interface check
var _ VotingWindowRepository = (*PostgresVotingWindowRepo)(nil)
