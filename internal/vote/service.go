// Package vote は投票の受付（1ユーザー1票）のドメインロジックを提供する。
package vote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/votebox/internal/model"
	"github.com/hitoshi/votebox/internal/repository"
)

// WindowChecker は投票受付状態の参照インターフェース。
type WindowChecker interface {
	IsOpen(ctx context.Context) (bool, error)
}

// VoteRecorder は投票結果のメトリクス記録インターフェース。
type VoteRecorder interface {
	RecordVoteAccepted()
	RecordVoteRejected(reason string)
}

// Receipt は受理された投票の内容。
type Receipt struct {
	Ballot        model.Ballot
	CandidateName string
	CandidateSlug string
}

// Service は投票受付のサービス層。
type Service struct {
	ballotRepo    repository.BallotRepository
	candidateRepo repository.CandidateRepository
	window        WindowChecker
	recorder      VoteRecorder
	requireOpen   bool
	now           func() time.Time
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithRecorder はメトリクス記録先を設定する。
func WithRecorder(r VoteRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithRequireOpenWindow は投票受付状態による制限の有無を設定する。デフォルトは有効。
func WithRequireOpenWindow(require bool) Option {
	return func(s *Service) { s.requireOpen = require }
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	ballotRepo repository.BallotRepository,
	candidateRepo repository.CandidateRepository,
	window WindowChecker,
	opts ...Option,
) *Service {
	s := &Service{
		ballotRepo:    ballotRepo,
		candidateRepo: candidateRepo,
		window:        window,
		requireOpen:   true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CastVote はprincipalの1票をcandidateSlugの候補者に記録する。
//
// 事前条件は次の順に検査し、最初に満たさなかったものをエラーとして返す。
//  1. 未投票であること（ALREADY_VOTED、直前の投票先と日時を含む）
//  2. 投票受付中であること（VOTING_CLOSED、制限が有効な場合のみ）
//  3. 候補者が指定され存在すること（VALIDATION_ERROR、CANDIDATE_NOT_FOUND）
//
// 同一ユーザーの並行要求はballotsのUNIQUE制約により1件のみ成功し、
// 残りはALREADY_VOTEDとなる。
func (s *Service) CastVote(ctx context.Context, principal model.Principal, candidateSlug string) (*Receipt, error) {
	receipt, err := s.castVote(ctx, principal, candidateSlug)

	var apiErr *model.APIError
	switch {
	case err == nil:
		s.recordAccepted()
		slog.Info("投票を受け付けました",
			slog.String("user_id", principal.UserID),
			slog.String("candidate", candidateSlug),
		)
	case errors.As(err, &apiErr):
		s.recordRejected(apiErr.Code)
	}

	return receipt, err
}

func (s *Service) castVote(ctx context.Context, principal model.Principal, candidateSlug string) (*Receipt, error) {
	// 1. 既存の投票
	existing, err := s.ballotRepo.FindByUserID(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("投票履歴の取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyVotedError(existing.CandidateName, existing.VotedAt)
	}

	// 2. 投票受付状態
	if s.requireOpen {
		open, err := s.window.IsOpen(ctx)
		if err != nil {
			return nil, fmt.Errorf("投票受付状態の取得に失敗しました: %w", err)
		}
		if !open {
			return nil, model.NewVotingClosedError()
		}
	}

	// 3. 候補者
	if candidateSlug == "" {
		return nil, model.NewValidationError(model.FieldError{Field: "candidate_slug", Message: "候補者のslugは必須です。"})
	}
	candidate, err := s.candidateRepo.FindBySlug(ctx, candidateSlug)
	if err != nil {
		return nil, fmt.Errorf("候補者の取得に失敗しました: %w", err)
	}
	if candidate == nil {
		return nil, model.NewCandidateNotFoundError(candidateSlug)
	}

	ballot := model.Ballot{
		ID:          uuid.New().String(),
		UserID:      principal.UserID,
		CandidateID: candidate.ID,
		VotedAt:     s.now().UTC(),
	}

	err = s.ballotRepo.Create(ctx, &ballot)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrBallotExists):
		// 並行要求に先を越された場合は勝った投票の内容を返す
		return nil, s.alreadyVoted(ctx, principal.UserID, candidate.Name, ballot.VotedAt)
	case errors.Is(err, repository.ErrCandidateGone):
		return nil, model.NewCandidateNotFoundError(candidateSlug)
	case errors.Is(err, repository.ErrUserGone):
		return nil, model.NewUserNotFoundError()
	default:
		return nil, fmt.Errorf("投票の記録に失敗しました: %w", err)
	}

	return &Receipt{
		Ballot:        ballot,
		CandidateName: candidate.Name,
		CandidateSlug: candidate.Slug,
	}, nil
}

// alreadyVoted は既存の投票を読み直してALREADY_VOTEDエラーを組み立てる。
// 読み直しに失敗した場合は手元の情報で代用する。
func (s *Service) alreadyVoted(ctx context.Context, userID, fallbackName string, fallbackAt time.Time) error {
	existing, err := s.ballotRepo.FindByUserID(ctx, userID)
	if err != nil || existing == nil {
		slog.Warn("競合した投票の読み直しに失敗しました",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return model.NewAlreadyVotedError(fallbackName, fallbackAt)
	}
	return model.NewAlreadyVotedError(existing.CandidateName, existing.VotedAt)
}

func (s *Service) recordAccepted() {
	if s.recorder != nil {
		s.recorder.RecordVoteAccepted()
	}
}

func (s *Service) recordRejected(reason string) {
	if s.recorder != nil {
		s.recorder.RecordVoteRejected(reason)
	}
}
