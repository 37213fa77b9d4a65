package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/votebox/internal/auth"
	"github.com/hitoshi/votebox/internal/middleware"
	"github.com/hitoshi/votebox/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	Profile(ctx context.Context, principal model.Principal) (*auth.Profile, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler はユーザー登録・ログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type registerRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	ExternalID string `json:"external_id"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	ExternalID string `json:"external_id,omitempty"`
	IsAdmin    bool   `json:"is_admin"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type profileVoteResponse struct {
	Candidate     string    `json:"candidate"`
	CandidateSlug string    `json:"candidate_slug"`
	VotedAt       time.Time `json:"voted_at"`
}

type profileResponse struct {
	ID         string               `json:"id"`
	Username   string               `json:"username"`
	Email      string               `json:"email"`
	IsAdmin    bool                 `json:"is_admin"`
	DateJoined time.Time            `json:"date_joined"`
	Vote       *profileVoteResponse `json:"vote"`
}

// Register はユーザーを登録しトークンを返す。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.Register(r.Context(), auth.RegisterInput{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		ExternalID: req.ExternalID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toSessionResponse(session)
	resp.User.ExternalID = session.User.ExternalID
	writeJSON(w, http.StatusCreated, resp)
}

// Login はメールアドレスとパスワードでトークンを発行する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Profile はログイン中ユーザーの情報と投票状況を返す。
// GET /profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Profile(r.Context(), principal)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := profileResponse{
		ID:         profile.User.ID,
		Username:   profile.User.Username,
		Email:      profile.User.Email,
		IsAdmin:    profile.User.IsAdmin,
		DateJoined: profile.User.CreatedAt,
	}
	if v := profile.Vote; v != nil {
		resp.Vote = &profileVoteResponse{
			Candidate:     v.CandidateName,
			CandidateSlug: v.CandidateSlug,
			VotedAt:       v.VotedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout はリクエストに使われたトークンを破棄する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromRequest(r)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{
		Token: s.Token,
		User: userResponse{
			ID:       s.User.ID,
			Username: s.User.Username,
			Email:    s.User.Email,
			IsAdmin:  s.User.IsAdmin,
		},
	}
}
