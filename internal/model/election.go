// Package model はドメインモデルを定義する。
package model

import "time"

// Candidate は投票対象の候補者を表す。
// 外部にはSlugで公開し、IDは並び順の決定にのみ用いる。
type Candidate struct {
	ID        int64
	Name      string
	Slug      string
	CreatedAt time.Time
}

// Ballot は1ユーザーの1票を表す。作成後は変更されない。
type Ballot struct {
	ID          string
	UserID      string
	CandidateID int64
	VotedAt     time.Time
}

// BallotWithCandidate は投票と投票先候補者を結合したモデル。
type BallotWithCandidate struct {
	Ballot
	CandidateName string
	CandidateSlug string
}

// VotingWindow はシステム全体で1行だけ存在する投票受付状態を表す。
// IsActiveがtrueの場合、StartedAtは必ず設定されている。
type VotingWindow struct {
	IsActive  bool
	StartedAt *time.Time
	EndedAt   *time.Time
	UpdatedAt time.Time
}

// CandidateTally は候補者ごとの得票数を表す。
type CandidateTally struct {
	Candidate
	Votes int
}
