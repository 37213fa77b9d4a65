package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/votebox/internal/model"
)

// VotingServiceInterface は投票受付状態ハンドラーが必要とするサービスインターフェース。
type VotingServiceInterface interface {
	Status(ctx context.Context) (*model.VotingWindow, error)
	Start(ctx context.Context) (*model.VotingWindow, error)
	Stop(ctx context.Context) (*model.VotingWindow, error)
}

// VotingHandler は投票受付の開始・終了・状態参照のHTTPハンドラー。
type VotingHandler struct {
	service VotingServiceInterface
}

// NewVotingHandler はVotingHandlerを生成する。
func NewVotingHandler(service VotingServiceInterface) *VotingHandler {
	return &VotingHandler{service: service}
}

type votingStatusResponse struct {
	IsActive  bool       `json:"is_active"`
	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

type votingStartResponse struct {
	IsActive  bool       `json:"is_active"`
	StartedAt *time.Time `json:"started_at"`
}

type votingStopResponse struct {
	IsActive bool       `json:"is_active"`
	EndedAt  *time.Time `json:"ended_at"`
}

// Status は現在の投票受付状態を返す。
// GET /api/voting/status
func (h *VotingHandler) Status(w http.ResponseWriter, r *http.Request) {
	win, err := h.service.Status(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, votingStatusResponse{
		IsActive:  win.IsActive,
		StartedAt: win.StartedAt,
		EndedAt:   win.EndedAt,
	})
}

// Start は投票受付を開始する（管理者のみ）。
// POST /api/voting/start
func (h *VotingHandler) Start(w http.ResponseWriter, r *http.Request) {
	win, err := h.service.Start(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, votingStartResponse{IsActive: win.IsActive, StartedAt: win.StartedAt})
}

// Stop は投票受付を終了する（管理者のみ）。
// POST /api/voting/stop
func (h *VotingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	win, err := h.service.Stop(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, votingStopResponse{IsActive: win.IsActive, EndedAt: win.EndedAt})
}
