package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/votebox/internal/model"
	"github.com/hitoshi/votebox/internal/vote"
)

// VoteServiceInterface は投票ハンドラーが必要とするサービスインターフェース。
type VoteServiceInterface interface {
	CastVote(ctx context.Context, principal model.Principal, candidateSlug string) (*vote.Receipt, error)
}

// VoteHandler は投票のHTTPハンドラー。
type VoteHandler struct {
	service VoteServiceInterface
}

// NewVoteHandler はVoteHandlerを生成する。
func NewVoteHandler(service VoteServiceInterface) *VoteHandler {
	return &VoteHandler{service: service}
}

type castVoteRequest struct {
	CandidateSlug string `json:"candidate_slug"`
}

type voteResponse struct {
	Candidate     string    `json:"candidate"`
	CandidateSlug string    `json:"candidate_slug"`
	VotedAt       time.Time `json:"voted_at"`
}

type castVoteResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Vote    voteResponse `json:"vote"`
}

// CastVote は認証済みユーザーの投票を受け付ける。
// POST /api/vote
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req castVoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	receipt, err := h.service.CastVote(r.Context(), principal, req.CandidateSlug)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, castVoteResponse{
		Success: true,
		Message: "投票を受け付けました。",
		Vote: voteResponse{
			Candidate:     receipt.CandidateName,
			CandidateSlug: receipt.CandidateSlug,
			VotedAt:       receipt.Ballot.VotedAt,
		},
	})
}
