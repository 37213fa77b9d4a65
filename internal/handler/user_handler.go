package handler

import (
	"context"
	"net/http"
)

// AccountRemover はログイン中ユーザーのアカウントを削除する。user.Serviceが実装する。
type AccountRemover interface {
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はログイン中ユーザー自身のアカウント操作を扱う。
type UserHandler struct {
	accounts AccountRemover
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(accounts AccountRemover) *UserHandler {
	return &UserHandler{accounts: accounts}
}

// DeleteMe は退会処理を行い、成功時は本文なしの204を返す。
// 投票受付中は400（VOTING_IN_PROGRESS）となる。投票は退会と同時に失われる。
//
// DELETE /api/users/me
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	if err := h.accounts.Withdraw(r.Context(), principal.UserID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
