package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/votebox/internal/model"
)

// PostgresCandidateRepo はPostgreSQLを使用した候補者リポジトリ。
type PostgresCandidateRepo struct {
	db *sql.DB
}

// NewPostgresCandidateRepo はPostgresCandidateRepoを生成する。
func NewPostgresCandidateRepo(db *sql.DB) *PostgresCandidateRepo {
	return &PostgresCandidateRepo{db: db}
}

// List は全候補者をID昇順で返す。
func (r *PostgresCandidateRepo) List(ctx context.Context) ([]*model.Candidate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, slug, created_at FROM candidates ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("候補者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var candidates []*model.Candidate
	for rows.Next() {
		c := &model.Candidate{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("候補者のスキャンに失敗しました: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("候補者一覧の走査に失敗しました: %w", err)
	}

	return candidates, nil
}

// FindBySlug はslugで候補者を取得する。見つからない場合はnilを返す。
func (r *PostgresCandidateRepo) FindBySlug(ctx context.Context, slug string) (*model.Candidate, error) {
	c := &model.Candidate{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at FROM candidates WHERE slug = $1`,
		slug,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("候補者の取得に失敗しました: %w", err)
	}

	return c, nil
}

// Create は候補者を作成し、採番されたIDとcreated_atを設定する。
func (r *PostgresCandidateRepo) Create(ctx context.Context, candidate *model.Candidate) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO candidates (name, slug) VALUES ($1, $2)
		 RETURNING id, created_at`,
		candidate.Name, candidate.Slug,
	).Scan(&candidate.ID, &candidate.CreatedAt)
	if err != nil {
		if _, ok := constraintViolation(err, pqUniqueViolation); ok {
			return ErrDuplicateCandidate
		}
		return fmt.Errorf("候補者の作成に失敗しました: %w", err)
	}
	return nil
}

// DeleteBySlug は投票受付が閉じていることを確認した上で候補者を削除する。
// 関連するballotsはCASCADE削除される。確認と削除は同一トランザクションで行う。
func (r *PostgresCandidateRepo) DeleteBySlug(ctx context.Context, slug string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if err := requireWindowClosed(ctx, tx); err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM candidates WHERE slug = $1`,
		slug,
	)
	if err != nil {
		return false, fmt.Errorf("候補者の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ CandidateRepository = (*PostgresCandidateRepo)(nil)
