package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/votebox/internal/model"
)

// CandidateServiceInterface は候補者ハンドラーが必要とするサービスインターフェース。
type CandidateServiceInterface interface {
	List(ctx context.Context) ([]*model.Candidate, error)
	Create(ctx context.Context, name, slug string) (*model.Candidate, error)
	Delete(ctx context.Context, slug string) error
}

// CandidateHandler は候補者管理のHTTPハンドラー。
type CandidateHandler struct {
	service CandidateServiceInterface
}

// NewCandidateHandler はCandidateHandlerを生成する。
func NewCandidateHandler(service CandidateServiceInterface) *CandidateHandler {
	return &CandidateHandler{service: service}
}

type createCandidateRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type candidateResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ListCandidates は候補者一覧をID順で返す。
// GET /api/candidates
func (h *CandidateHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]candidateResponse, len(candidates))
	for i, c := range candidates {
		resp[i] = toCandidateResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateCandidate は候補者を登録する（管理者のみ）。
// POST /api/candidates
func (h *CandidateHandler) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	var req createCandidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.service.Create(r.Context(), req.Name, req.Slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCandidateResponse(c))
}

// DeleteCandidate は候補者を削除する（管理者のみ）。
// DELETE /api/candidates/{slug}
func (h *CandidateHandler) DeleteCandidate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toCandidateResponse(c *model.Candidate) candidateResponse {
	return candidateResponse{ID: c.ID, Name: c.Name, Slug: c.Slug}
}
