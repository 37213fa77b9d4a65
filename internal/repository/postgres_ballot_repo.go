package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/votebox/internal/model"
)

// PostgresBallotRepo はPostgreSQLを使用した投票リポジトリ。
type PostgresBallotRepo struct {
	db *sql.DB
}

// NewPostgresBallotRepo はPostgresBallotRepoを生成する。
func NewPostgresBallotRepo(db *sql.DB) *PostgresBallotRepo {
	return &PostgresBallotRepo{db: db}
}

// FindByUserID はユーザーの投票を候補者情報付きで取得する。未投票の場合はnilを返す。
func (r *PostgresBallotRepo) FindByUserID(ctx context.Context, userID string) (*model.BallotWithCandidate, error) {
	b := &model.BallotWithCandidate{}
	err := r.db.QueryRowContext(ctx,
		`SELECT b.id, b.user_id, b.candidate_id, b.voted_at, c.name, c.slug
		 FROM ballots b
		 JOIN candidates c ON c.id = b.candidate_id
		 WHERE b.user_id = $1`,
		userID,
	).Scan(&b.ID, &b.UserID, &b.CandidateID, &b.VotedAt, &b.CandidateName, &b.CandidateSlug)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ballot: %w", err)
	}

	return b, nil
}

// Create は投票を作成する。
// 存在確認と作成の原子性はballots_user_id_keyのUNIQUE制約に委ねる。
func (r *PostgresBallotRepo) Create(ctx context.Context, ballot *model.Ballot) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ballots (id, user_id, candidate_id, voted_at)
		 VALUES ($1, $2, $3, $4)`,
		ballot.ID, ballot.UserID, ballot.CandidateID, ballot.VotedAt,
	)
	if err == nil {
		return nil
	}

	if _, ok := constraintViolation(err, pqUniqueViolation); ok {
		return ErrBallotExists
	}
	if constraint, ok := constraintViolation(err, pqForeignKeyViolation); ok {
		if constraint == "ballots_user_id_fkey" {
			return ErrUserGone
		}
		return ErrCandidateGone
	}
	return fmt.Errorf("failed to create ballot: %w", err)
}

// Tally は単一のスナップショット内で候補者別得票数と総投票数を取得する。
// 得票数と総数を同じREPEATABLE READトランザクションで読むため、
// 並行する投票があっても合計は一致する。
func (r *PostgresBallotRepo) Tally(ctx context.Context) ([]model.CandidateTally, int, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT c.id, c.name, c.slug, c.created_at, COUNT(b.id)
		 FROM candidates c
		 LEFT JOIN ballots b ON b.candidate_id = c.id
		 GROUP BY c.id
		 ORDER BY c.id`,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to tally ballots: %w", err)
	}
	defer rows.Close()

	var tallies []model.CandidateTally
	for rows.Next() {
		var t model.CandidateTally
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.Votes); err != nil {
			return nil, 0, fmt.Errorf("failed to scan tally: %w", err)
		}
		tallies = append(tallies, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate tallies: %w", err)
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ballots`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count ballots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return tallies, total, nil
}

// compile-time interface check
var _ BallotRepository = (*PostgresBallotRepo)(nil)
