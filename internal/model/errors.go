// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string         // エラーコード
	Message  string         // エラーメッセージ
	Category string         // カテゴリ: auth, validation, vote, voting, candidate, system
	Action   string         // ユーザー向け対処方法
	Details  map[string]any // 状態競合時に呼び出し元へ返す付加情報（直前の値など）
	Fields   []FieldError   // バリデーションエラーのフィールド別内訳
}

// FieldError はフィールド単位のバリデーションエラーを表す。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeDuplicateUsername   = "DUPLICATE_USERNAME"
	ErrCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	ErrCodeDuplicateExternalID = "DUPLICATE_EXTERNAL_ID"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeAlreadyVoted        = "ALREADY_VOTED"
	ErrCodeVotingClosed        = "VOTING_CLOSED"
	ErrCodeCandidateNotFound   = "CANDIDATE_NOT_FOUND"
	ErrCodeDuplicateCandidate  = "DUPLICATE_CANDIDATE"
	ErrCodeVotingInProgress    = "VOTING_IN_PROGRESS"
	ErrCodeAlreadyActive       = "ALREADY_ACTIVE"
	ErrCodeAlreadyInactive     = "ALREADY_INACTIVE"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError はフィールド別の入力エラーを生成する。
func NewValidationError(fields ...FieldError) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各項目の内容を確認して再送信してください。",
		Fields:   fields,
	}
}

// NewInvalidRequestError はリクエストボディを解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUnauthenticatedError は認証失敗エラーを生成する。
// トークンのどの部分が誤っていたかは含めない。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてトークンを取得してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスとパスワードのどちらが誤っていたかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewDuplicateUsernameError はユーザー名重複エラーを生成する。
func NewDuplicateUsernameError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  "このユーザー名は既に使用されています。",
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "ログインするか、別のメールアドレスを指定してください。",
	}
}

// NewDuplicateExternalIDError は本人確認番号の重複エラーを生成する。
func NewDuplicateExternalIDError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateExternalID,
		Message:  "この本人確認番号は既に登録されています。",
		Category: "validation",
		Action:   "入力した番号を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAlreadyVotedError は投票済みエラーを生成する。
// 直前の投票先と投票日時を付加情報として含める。
func NewAlreadyVotedError(candidateName string, votedAt time.Time) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyVoted,
		Message:  fmt.Sprintf("既に %s に投票済みです。", candidateName),
		Category: "vote",
		Action:   "投票は1人1回までです。",
		Details: map[string]any{
			"previous_vote": map[string]any{
				"candidate": candidateName,
				"voted_at":  votedAt,
			},
		},
	}
}

// NewVotingClosedError は投票受付期間外エラーを生成する。
func NewVotingClosedError() *APIError {
	return &APIError{
		Code:     ErrCodeVotingClosed,
		Message:  "現在は投票を受け付けていません。",
		Category: "voting",
		Action:   "投票が開始されてから再度お試しください。",
	}
}

// NewCandidateNotFoundError は候補者未検出エラーを生成する。
func NewCandidateNotFoundError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeCandidateNotFound,
		Message:  fmt.Sprintf("候補者 %q が見つかりません。", slug),
		Category: "candidate",
		Action:   "候補者一覧からslugを確認してください。",
	}
}

// NewDuplicateCandidateError は候補者の名前またはslugの重複エラーを生成する。
func NewDuplicateCandidateError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateCandidate,
		Message:  "同じ名前またはslugの候補者が既に存在します。",
		Category: "candidate",
		Action:   "別の名前とslugを指定してください。",
	}
}

// NewVotingInProgressError は投票受付中に候補者を削除しようとした場合のエラーを生成する。
func NewVotingInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeVotingInProgress,
		Message:  "投票受付中は候補者を削除できません。",
		Category: "candidate",
		Action:   "投票を終了してから再度お試しください。",
	}
}

// NewWithdrawalDuringVotingError は投票受付中に退会しようとした場合のエラーを生成する。
func NewWithdrawalDuringVotingError() *APIError {
	return &APIError{
		Code:     ErrCodeVotingInProgress,
		Message:  "投票受付中は退会できません。",
		Category: "user",
		Action:   "投票終了後に再度お試しください。",
	}
}

// NewAlreadyActiveError は投票開始済みエラーを生成する。
func NewAlreadyActiveError(startedAt *time.Time) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyActive,
		Message:  "投票は既に開始されています。",
		Category: "voting",
		Action:   "現在の投票を終了してから開始してください。",
		Details:  map[string]any{"started_at": startedAt},
	}
}

// NewAlreadyInactiveError は投票終了済みエラーを生成する。
func NewAlreadyInactiveError(endedAt *time.Time) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyInactive,
		Message:  "投票は開始されていません。",
		Category: "voting",
		Action:   "投票を開始してから終了してください。",
		Details:  map[string]any{"ended_at": endedAt},
	}
}
