// Package voting は投票受付状態（開始・終了）の管理を提供する。
package voting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/votebox/internal/model"
	"github.com/hitoshi/votebox/internal/repository"
)

// TransitionRecorder は状態遷移のメトリクス記録インターフェース。
type TransitionRecorder interface {
	RecordWindowTransition(state string)
}

// Service は投票受付状態のサービス層。
// 状態はリポジトリ上の1行のみで、プロセス内には保持しない。
type Service struct {
	repo     repository.VotingWindowRepository
	recorder TransitionRecorder
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。recorderはnilでもよい。
func NewService(repo repository.VotingWindowRepository, recorder TransitionRecorder) *Service {
	return &Service{
		repo:     repo,
		recorder: recorder,
		now:      time.Now,
	}
}

// Status は現在の投票受付状態を返す。
func (s *Service) Status(ctx context.Context) (*model.VotingWindow, error) {
	w, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("投票受付状態の取得に失敗しました: %w", err)
	}
	return w, nil
}

// IsOpen は投票を受け付けているかを返す。
func (s *Service) IsOpen(ctx context.Context) (bool, error) {
	w, err := s.Status(ctx)
	if err != nil {
		return false, err
	}
	return w.IsActive, nil
}

// Start は投票受付を開始する。既に開始済みの場合はALREADY_ACTIVEエラーを返す。
func (s *Service) Start(ctx context.Context) (*model.VotingWindow, error) {
	w, changed, err := s.repo.Transition(ctx, true, s.startTime)
	if err != nil {
		return nil, fmt.Errorf("投票受付の開始に失敗しました: %w", err)
	}
	if !changed {
		return nil, model.NewAlreadyActiveError(w.StartedAt)
	}

	s.record("open")
	slog.Info("投票受付を開始しました",
		slog.Time("started_at", *w.StartedAt),
	)
	return w, nil
}

// Stop は投票受付を終了する。既に終了済みの場合はALREADY_INACTIVEエラーを返す。
func (s *Service) Stop(ctx context.Context) (*model.VotingWindow, error) {
	w, changed, err := s.repo.Transition(ctx, false, func(*model.VotingWindow) time.Time {
		return s.now()
	})
	if err != nil {
		return nil, fmt.Errorf("投票受付の終了に失敗しました: %w", err)
	}
	if !changed {
		return nil, model.NewAlreadyInactiveError(w.EndedAt)
	}

	s.record("closed")
	slog.Info("投票受付を終了しました",
		slog.Time("ended_at", *w.EndedAt),
	)
	return w, nil
}

// startTime は開始時刻を決める。
// 時計が巻き戻ってもstarted_atが単調増加するよう、直前のstarted_at+1µs以上にする。
func (s *Service) startTime(current *model.VotingWindow) time.Time {
	now := s.now()
	if current.StartedAt != nil {
		floor := current.StartedAt.Add(time.Microsecond)
		if now.Before(floor) {
			return floor
		}
	}
	return now
}

func (s *Service) record(state string) {
	if s.recorder != nil {
		s.recorder.RecordWindowTransition(state)
	}
}
