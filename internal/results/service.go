// Package results は候補者別の得票集計を提供する。
package results

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/hitoshi/votebox/internal/repository"
)

// LatencyRecorder は集計時間のメトリクス記録インターフェース。
type LatencyRecorder interface {
	RecordResultsLatency(duration time.Duration)
}

// CandidateResult は候補者1件分の集計結果。
type CandidateResult struct {
	ID         int64
	Name       string
	Slug       string
	Votes      int
	Percentage float64
}

// Summary は集計結果全体。Resultsの得票数の合計は常にTotalVotesと一致する。
type Summary struct {
	TotalVotes int
	Results    []CandidateResult
}

// Service は集計のサービス層。
type Service struct {
	ballotRepo repository.BallotRepository
	recorder   LatencyRecorder
}

// NewService はServiceの新しいインスタンスを生成する。recorderはnilでもよい。
func NewService(ballotRepo repository.BallotRepository, recorder LatencyRecorder) *Service {
	return &Service{
		ballotRepo: ballotRepo,
		recorder:   recorder,
	}
}

// Compute は単一スナップショットから集計結果を算出する。
// 並び順は得票数の降順、同数の場合は候補者IDの昇順。
func (s *Service) Compute(ctx context.Context) (*Summary, error) {
	start := time.Now()

	tallies, total, err := s.ballotRepo.Tally(ctx)
	if err != nil {
		return nil, fmt.Errorf("得票数の集計に失敗しました: %w", err)
	}

	results := make([]CandidateResult, len(tallies))
	for i, t := range tallies {
		results[i] = CandidateResult{
			ID:         t.ID,
			Name:       t.Name,
			Slug:       t.Slug,
			Votes:      t.Votes,
			Percentage: Percentage(t.Votes, total),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Votes != results[j].Votes {
			return results[i].Votes > results[j].Votes
		}
		return results[i].ID < results[j].ID
	})

	if s.recorder != nil {
		s.recorder.RecordResultsLatency(time.Since(start))
	}

	return &Summary{
		TotalVotes: total,
		Results:    results,
	}, nil
}

// Percentage はvotes/total*100を小数第2位に丸めた値を返す。totalが0の場合は0。
// 丸めはfloat64の値そのものに対して行い、ちょうど中間の値は偶数側に寄せる（1/32 → 3.12）。
func Percentage(votes, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(votes) / float64(total) * 100
	r, _ := strconv.ParseFloat(strconv.FormatFloat(p, 'f', 2, 64), 64)
	return r
}
