package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/votebox/internal/model"
)

func TestCandidateHandler_ListCandidates(t *testing.T) {
	svc := &mockCandidateService{
		listFn: func(ctx context.Context) ([]*model.Candidate, error) {
			return []*model.Candidate{
				{ID: 1, Name: "Alice", Slug: "alice"},
				{ID: 2, Name: "Bob", Slug: "bob"},
			}, nil
		},
	}
	h := NewCandidateHandler(svc)

	w := httptest.NewRecorder()
	h.ListCandidates(w, httptest.NewRequest(http.MethodGet, "/api/candidates", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp []candidateResponse
	decodeBody(t, w, &resp)
	if len(resp) != 2 || resp[0].Slug != "alice" || resp[1].ID != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

// 候補者がいない場合にnullではなく空配列を返すことを検証
func TestCandidateHandler_ListCandidates_Empty(t *testing.T) {
	h := NewCandidateHandler(&mockCandidateService{})

	w := httptest.NewRecorder()
	h.ListCandidates(w, httptest.NewRequest(http.MethodGet, "/api/candidates", nil))

	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestCandidateHandler_CreateCandidate(t *testing.T) {
	svc := &mockCandidateService{
		createFn: func(ctx context.Context, name, slug string) (*model.Candidate, error) {
			return &model.Candidate{ID: 3, Name: name, Slug: slug}, nil
		},
	}
	h := NewCandidateHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/candidates", strings.NewReader(`{"name":"Carol","slug":"carol"}`))
	w := httptest.NewRecorder()

	h.CreateCandidate(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	var resp candidateResponse
	decodeBody(t, w, &resp)
	if resp.ID != 3 || resp.Name != "Carol" || resp.Slug != "carol" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCandidateHandler_CreateCandidate_Validation(t *testing.T) {
	svc := &mockCandidateService{
		createFn: func(ctx context.Context, name, slug string) (*model.Candidate, error) {
			return nil, model.NewValidationError(model.FieldError{Field: "slug", Message: "slugは必須です。"})
		},
	}
	h := NewCandidateHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/candidates", strings.NewReader(`{"name":"Carol"}`))
	w := httptest.NewRecorder()

	h.CreateCandidate(w, req)

	body := assertErrorResponse(t, w, http.StatusBadRequest, model.ErrCodeValidation)
	if len(body.Fields) != 1 || body.Fields[0].Field != "slug" {
		t.Errorf("fields = %+v", body.Fields)
	}
}

func TestCandidateHandler_DeleteCandidate(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"削除成功", nil, http.StatusNoContent},
		{"受付中", model.NewVotingInProgressError(), http.StatusBadRequest},
		{"存在しない", model.NewCandidateNotFoundError("zed"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSlug string
			svc := &mockCandidateService{
				deleteFn: func(ctx context.Context, slug string) error {
					gotSlug = slug
					return tt.err
				},
			}
			r := chi.NewRouter()
			r.Delete("/api/candidates/{slug}", NewCandidateHandler(svc).DeleteCandidate)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/candidates/alice", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if gotSlug != "alice" {
				t.Errorf("slug = %q, want %q", gotSlug, "alice")
			}
		})
	}
}
