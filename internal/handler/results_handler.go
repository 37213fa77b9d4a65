package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/votebox/internal/results"
)

// ResultsServiceInterface は集計ハンドラーが必要とするサービスインターフェース。
type ResultsServiceInterface interface {
	Compute(ctx context.Context) (*results.Summary, error)
}

// ResultsHandler は集計結果のHTTPハンドラー。
type ResultsHandler struct {
	service ResultsServiceInterface
}

// NewResultsHandler はResultsHandlerを生成する。
func NewResultsHandler(service ResultsServiceInterface) *ResultsHandler {
	return &ResultsHandler{service: service}
}

type candidateResultResponse struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Slug       string  `json:"slug"`
	Votes      int     `json:"votes"`
	Percentage float64 `json:"percentage"`
}

type resultsResponse struct {
	TotalVotes int                       `json:"total_votes"`
	Results    []candidateResultResponse `json:"results"`
}

// GetResults は候補者ごとの得票数と得票率を返す。
// GET /api/results
func (h *ResultsHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Compute(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := resultsResponse{
		TotalVotes: summary.TotalVotes,
		Results:    make([]candidateResultResponse, len(summary.Results)),
	}
	for i, c := range summary.Results {
		resp.Results[i] = candidateResultResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}
