// Package auth はユーザー登録、ログイン、Bearerトークン認証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/votebox/internal/model"
	"github.com/hitoshi/votebox/internal/repository"
)

const (
	maxUsernameLength   = 150
	maxExternalIDLength = 20
	minPasswordLength   = 8
	// bcryptは72バイトを超える入力を扱えない
	maxPasswordBytes = 72
)

// TextSanitizer は表示用テキストのサニタイズインターフェース。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// BallotFinder はユーザーの投票を取得するインターフェース。
type BallotFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.BallotWithCandidate, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	TokenMaxAge time.Duration // トークン有効期間
	BcryptCost  int           // bcryptのコスト
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Username   string
	Email      string
	Password   string
	ExternalID string
}

// Session は発行したトークンとユーザーの組。Tokenは平文で、この時点でのみ参照できる。
type Session struct {
	Token string
	User  *model.User
}

// Profile はログイン中ユーザーの情報と投票状況。
type Profile struct {
	User *model.User
	Vote *model.BallotWithCandidate // 未投票の場合はnil
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	tokenRepo repository.TokenRepository
	ballots   BallotFinder
	sanitizer TextSanitizer
	config    ServiceConfig
	now       func() time.Time
	dummyHash []byte
}

// NewService はServiceを生成する。
// BcryptCostが0の場合はbcrypt.DefaultCostを使う。bcryptが受け付けないコストはエラーとなる。
func NewService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	ballots BallotFinder,
	sanitizer TextSanitizer,
	config ServiceConfig,
) (*Service, error) {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	// 存在しないメールアドレスでも照合時間を揃えるためのダミーハッシュ
	dummy, err := bcrypt.GenerateFromPassword([]byte("votebox-dummy-password"), config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hashing: %w", err)
	}
	return &Service{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		ballots:   ballots,
		sanitizer: sanitizer,
		config:    config,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Register はユーザーを登録し、トークンを発行する。
// 重複は username → email → external_id の順に検査する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Username = s.sanitizer.Sanitize(in.Username)
	in.Email = normalizeEmail(in.Email)
	in.ExternalID = strings.TrimSpace(in.ExternalID)

	if fields := validateRegistration(in); len(fields) > 0 {
		return nil, model.NewValidationError(fields...)
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, model.NewDuplicateUsernameError()
	}

	existing, err := s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError()
	}

	exists, err = s.userRepo.ExistsByExternalID(ctx, in.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to check external id: %w", err)
	}
	if exists {
		return nil, model.NewDuplicateExternalIDError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		ExternalID:   in.ExternalID,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	plain, token, err := s.newToken(user.ID, now)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.CreateWithToken(ctx, user, token); err != nil {
		var dupErr *repository.DuplicateUserError
		if errors.As(err, &dupErr) {
			return nil, duplicateError(dupErr.Field)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return &Session{Token: plain, User: user}, nil
}

// Login はメールアドレスとパスワードを照合し、新しいトークンを発行する。
// どちらが誤っていても同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.userRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	plain, token, err := s.newToken(user.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.tokenRepo.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return &Session{Token: plain, User: user}, nil
}

// Authenticate はトークンを検証し、対応する主体を返す。
// 形式不正・未登録・期限切れはいずれもUNAUTHENTICATEDとなる。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	if !wellFormedToken(token) {
		return nil, model.NewUnauthenticatedError()
	}

	principal, err := s.tokenRepo.FindPrincipal(ctx, HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	if principal == nil {
		return nil, model.NewUnauthenticatedError()
	}
	return principal, nil
}

// Profile はユーザー情報と投票状況を返す。
func (s *Service) Profile(ctx context.Context, principal model.Principal) (*Profile, error) {
	user, err := s.userRepo.FindByID(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	vote, err := s.ballots.FindByUserID(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find ballot: %w", err)
	}

	return &Profile{User: user, Vote: vote}, nil
}

// Logout はトークンを破棄する。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}

	if err := s.tokenRepo.DeleteByHash(ctx, HashToken(token)); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// newToken は平文トークンと永続化用のAuthTokenを生成する。
func (s *Service) newToken(userID string, now time.Time) (string, *model.AuthToken, error) {
	plain, err := GenerateToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return plain, &model.AuthToken{
		TokenHash: HashToken(plain),
		UserID:    userID,
		ExpiresAt: now.Add(s.config.TokenMaxAge),
		CreatedAt: now,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateRegistration は登録入力を検査し、フィールド別のエラーを返す。
func validateRegistration(in RegisterInput) []model.FieldError {
	var fields []model.FieldError

	switch n := utf8.RuneCountInString(in.Username); {
	case n == 0:
		fields = append(fields, model.FieldError{Field: "username", Message: "ユーザー名は必須です。"})
	case n > maxUsernameLength:
		fields = append(fields, model.FieldError{Field: "username", Message: fmt.Sprintf("ユーザー名は%d文字以内で入力してください。", maxUsernameLength)})
	}

	if in.Email == "" {
		fields = append(fields, model.FieldError{Field: "email", Message: "メールアドレスは必須です。"})
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		fields = append(fields, model.FieldError{Field: "email", Message: "メールアドレスの形式が正しくありません。"})
	}

	switch {
	case utf8.RuneCountInString(in.Password) < minPasswordLength:
		fields = append(fields, model.FieldError{Field: "password", Message: fmt.Sprintf("パスワードは%d文字以上で入力してください。", minPasswordLength)})
	case len(in.Password) > maxPasswordBytes:
		fields = append(fields, model.FieldError{Field: "password", Message: "パスワードが長すぎます。"})
	}

	switch n := utf8.RuneCountInString(in.ExternalID); {
	case n == 0:
		fields = append(fields, model.FieldError{Field: "external_id", Message: "本人確認番号は必須です。"})
	case n > maxExternalIDLength:
		fields = append(fields, model.FieldError{Field: "external_id", Message: fmt.Sprintf("本人確認番号は%d文字以内で入力してください。", maxExternalIDLength)})
	}

	return fields
}

// duplicateError はUNIQUE制約違反のフィールドをAPIErrorに変換する。
func duplicateError(field string) *model.APIError {
	switch field {
	case "username":
		return model.NewDuplicateUsernameError()
	case "email":
		return model.NewDuplicateEmailError()
	default:
		return model.NewDuplicateExternalIDError()
	}
}
