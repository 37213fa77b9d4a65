// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/votebox/internal/model"
)

// ErrBallotExists は同一ユーザーの投票が既に存在する場合に返される。
// ballots.user_id のUNIQUE制約違反を変換したもの。
var ErrBallotExists = errors.New("ballot already exists for user")

// ErrCandidateGone は投票先の候補者が存在しない場合に返される（外部キー制約違反）。
var ErrCandidateGone = errors.New("candidate does not exist")

// ErrUserGone は投票者が存在しない場合に返される（外部キー制約違反）。
var ErrUserGone = errors.New("user does not exist")

// ErrDuplicateCandidate は候補者の名前またはslugが重複した場合に返される。
var ErrDuplicateCandidate = errors.New("candidate name or slug already exists")

// ErrVotingOpen は投票受付中のため削除を行わなかった場合に返される。
var ErrVotingOpen = errors.New("voting window is open")

// DuplicateUserError はユーザー作成時のUNIQUE制約違反を表す。
// Fieldには "username"、"email"、"external_id" のいずれかが入る。
type DuplicateUserError struct {
	Field string
}

// Error はerrorインターフェースを実装する。
func (e *DuplicateUserError) Error() string {
	return "duplicate user " + e.Field
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// ExistsByUsername は同じユーザー名のユーザーが存在するかを返す。
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// ExistsByExternalID は同じ本人確認番号のユーザーが存在するかを返す。
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)

	// CreateWithToken はユーザーと初回トークンを同一トランザクションで作成する。
	// UNIQUE制約違反は*DuplicateUserErrorとして返す。
	CreateWithToken(ctx context.Context, user *model.User, token *model.AuthToken) error

	// SetAdmin は指定メールアドレスのユーザーの管理者フラグを更新する。
	// 対象が存在しない場合はfalseを返す。
	SetAdmin(ctx context.Context, email string, isAdmin bool) (bool, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するauth_tokens、ballotsはCASCADE削除される。
	// 投票受付中はErrVotingOpenを返し、何も削除しない。
	DeleteByID(ctx context.Context, id string) error
}

// TokenRepository はBearerトークンの永続化インターフェース。
type TokenRepository interface {
	// Create はトークンを作成する。
	Create(ctx context.Context, token *model.AuthToken) error

	// FindPrincipal は有効期限内のトークンハッシュに対応する主体を取得する。
	// 見つからない、または期限切れの場合はnilを返す。
	FindPrincipal(ctx context.Context, tokenHash string) (*model.Principal, error)

	// DeleteByHash は指定トークンを削除する。
	DeleteByHash(ctx context.Context, tokenHash string) error

	// DeleteByUserID は指定ユーザーの全トークンを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// CandidateRepository は候補者データの永続化インターフェース。
type CandidateRepository interface {
	// List は全候補者をID昇順で返す。
	List(ctx context.Context) ([]*model.Candidate, error)

	// FindBySlug はslugで候補者を取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Candidate, error)

	// Create は候補者を作成し、採番されたIDとcreated_atを設定する。
	// 名前またはslugの重複はErrDuplicateCandidateを返す。
	Create(ctx context.Context, candidate *model.Candidate) error

	// DeleteBySlug は候補者を削除する。関連するballotsはCASCADE削除される。
	// 削除対象が存在しなかった場合はfalseを返す。
	// 投票受付中はErrVotingOpenを返し、何も削除しない。
	DeleteBySlug(ctx context.Context, slug string) (bool, error)
}

// BallotRepository は投票データの永続化インターフェース。
// 1ユーザー1票はballots.user_idのUNIQUE制約で保証する。
type BallotRepository interface {
	// FindByUserID はユーザーの投票を候補者情報付きで取得する。未投票の場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.BallotWithCandidate, error)

	// Create は投票を作成する。
	// UNIQUE制約違反はErrBallotExists、候補者の外部キー違反はErrCandidateGoneを返す。
	Create(ctx context.Context, ballot *model.Ballot) error

	// Tally は単一のスナップショット内で候補者別得票数と総投票数を取得する。
	Tally(ctx context.Context) ([]model.CandidateTally, int, error)
}

// VotingWindowRepository は投票受付状態（シングルトン）の永続化インターフェース。
type VotingWindowRepository interface {
	// Get は現在の投票受付状態を返す。
	Get(ctx context.Context) (*model.VotingWindow, error)

	// Transition は行ロックを取得した上で状態遷移を試みる。
	// 現在の状態が既にactiveと等しい場合は更新せず、現在の状態とfalseを返す。
	// 更新した場合は更新後の状態とtrueを返す。
	// atは遷移時刻で、ロック取得後の現在状態を受け取って決定する。
	Transition(ctx context.Context, active bool, at func(current *model.VotingWindow) time.Time) (*model.VotingWindow, bool, error)
}
