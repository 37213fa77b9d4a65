// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/votebox/internal/model"
	"github.com/hitoshi/votebox/internal/repository"
)

// WindowChecker は投票受付状態を返すインターフェース。
type WindowChecker interface {
	IsOpen(ctx context.Context) (bool, error)
}

// Service はユーザー管理のサービス層。
// 退会と管理者権限の付与を提供する。
type Service struct {
	userRepo  repository.UserRepository
	tokenRepo repository.TokenRepository
	window    WindowChecker
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, tokenRepo repository.TokenRepository, window WindowChecker) *Service {
	return &Service{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		window:    window,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: auth_tokens → user（ballotsはCASCADE削除）
//
// 退会すると本人確認番号が解放され再登録できるため、投票受付中は退会を受け付けない。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	open, err := s.window.IsOpen(ctx)
	if err != nil {
		return fmt.Errorf("投票受付状態の取得に失敗しました: %w", err)
	}
	if open {
		return model.NewWithdrawalDuringVotingError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if err := s.tokenRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("トークンの削除に失敗しました: %w", err)
	}

	err = s.userRepo.DeleteByID(ctx, userID)
	if errors.Is(err, repository.ErrVotingOpen) {
		return model.NewWithdrawalDuringVotingError()
	}
	if err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}

// GrantAdmin はメールアドレスで指定したユーザーの管理者フラグを設定する。
func (s *Service) GrantAdmin(ctx context.Context, email string, isAdmin bool) error {
	email = strings.ToLower(strings.TrimSpace(email))
	updated, err := s.userRepo.SetAdmin(ctx, email, isAdmin)
	if err != nil {
		return fmt.Errorf("管理者フラグの更新に失敗しました: %w", err)
	}
	if !updated {
		return model.NewUserNotFoundError()
	}

	slog.Info("管理者フラグを更新しました",
		slog.String("email", email),
		slog.Bool("is_admin", isAdmin),
	)
	return nil
}
