// Package candidate は候補者の登録・一覧・削除のドメインロジックを提供する。
package candidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/votebox/internal/model"
	"github.com/hitoshi/votebox/internal/repository"
)

const (
	maxNameLength = 100
	maxSlugLength = 20
)

// TextSanitizer は表示用テキストのサニタイズインターフェース。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// WindowChecker は投票受付状態の参照インターフェース。
type WindowChecker interface {
	IsOpen(ctx context.Context) (bool, error)
}

// Service は候補者管理のサービス層。
type Service struct {
	repo      repository.CandidateRepository
	window    WindowChecker
	sanitizer TextSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.CandidateRepository, window WindowChecker, sanitizer TextSanitizer) *Service {
	return &Service{
		repo:      repo,
		window:    window,
		sanitizer: sanitizer,
	}
}

// List は全候補者をID昇順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Candidate, error) {
	candidates, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("候補者一覧の取得に失敗しました: %w", err)
	}
	return candidates, nil
}

// Create は候補者を登録する。slugは小文字に正規化される。
func (s *Service) Create(ctx context.Context, name, slug string) (*model.Candidate, error) {
	name = s.sanitizer.Sanitize(name)
	slug = strings.ToLower(strings.TrimSpace(slug))

	var fields []model.FieldError
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		fields = append(fields, model.FieldError{Field: "name", Message: "候補者名は必須です。"})
	case n > maxNameLength:
		fields = append(fields, model.FieldError{Field: "name", Message: fmt.Sprintf("候補者名は%d文字以内で入力してください。", maxNameLength)})
	}
	if msg := validateSlug(slug); msg != "" {
		fields = append(fields, model.FieldError{Field: "slug", Message: msg})
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields...)
	}

	c := &model.Candidate{Name: name, Slug: slug}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrDuplicateCandidate) {
			return nil, model.NewDuplicateCandidateError()
		}
		return nil, fmt.Errorf("候補者の登録に失敗しました: %w", err)
	}

	slog.Info("候補者を登録しました",
		slog.Int64("candidate_id", c.ID),
		slog.String("slug", c.Slug),
	)
	return c, nil
}

// Delete は候補者を削除する。投票受付中は削除できない。
// 候補者への投票はCASCADE削除される。
func (s *Service) Delete(ctx context.Context, slug string) error {
	open, err := s.window.IsOpen(ctx)
	if err != nil {
		return fmt.Errorf("投票受付状態の取得に失敗しました: %w", err)
	}
	if open {
		return model.NewVotingInProgressError()
	}

	// 上の確認後に受付が始まった場合はリポジトリがロック下で拒否する
	deleted, err := s.repo.DeleteBySlug(ctx, slug)
	if errors.Is(err, repository.ErrVotingOpen) {
		return model.NewVotingInProgressError()
	}
	if err != nil {
		return fmt.Errorf("候補者の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewCandidateNotFoundError(slug)
	}

	slog.Info("候補者を削除しました", slog.String("slug", slug))
	return nil
}

// validateSlug はslugの形式を検査し、不正な場合はメッセージを返す。
// 使用できる文字は英数字、ハイフン、アンダースコアのみ。
func validateSlug(slug string) string {
	if slug == "" {
		return "slugは必須です。"
	}
	if len(slug) > maxSlugLength {
		return fmt.Sprintf("slugは%d文字以内で入力してください。", maxSlugLength)
	}
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "slugには英数字、ハイフン、アンダースコアのみ使用できます。"
		}
	}
	return ""
}
