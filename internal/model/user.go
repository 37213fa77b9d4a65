// Package model はドメインモデルを定義する。
package model

import "time"

// User は登録済みの投票者を表す。
type User struct {
	ID           string
	Username     string
	Email        string
	ExternalID   string // 本人確認番号（DNI等）
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal は認証済みリクエストの主体を表す。
// 管理者権限はユーザー種別ではなくフラグとして保持する。
type Principal struct {
	UserID  string
	IsAdmin bool
}

// AuthToken はBearerトークンの永続化表現。
// 平文トークンは保存せず、SHA-256ハッシュのみを保持する。
type AuthToken struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
