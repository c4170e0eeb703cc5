// Package service holds SnapCaption's business rules.
//
//	Handler (HTTP) → Service (rules, orchestration) → Repository / Gateway / Engine
//
// Services take their collaborators as interfaces, so tests pass in-memory
// fakes, and never touch HTTP types.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/snapcaption/internal/apperror"
	"github.com/sakif/snapcaption/internal/auth"
	"github.com/sakif/snapcaption/internal/model"
	"github.com/sakif/snapcaption/internal/repository"
)

// MinPasswordLength is the shortest password Signup accepts.
const MinPasswordLength = 6

// invalidCredentials is the one message for every sign-in failure, so a
// caller cannot tell an unknown email from a wrong password.
const invalidCredentials = "Invalid email or password"

const createFailed = "Failed to create account"

// AuthService is the credential store plus session issuing.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// Session is a signed-in user plus the token for the session cookie.
type Session struct {
	User  *model.User
	Token string
}

// SignupInput is the sign-up form.
type SignupInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Name            string `json:"name"`
}

// CreateUser registers a password account and returns it without the hash.
//
// The email is trimmed and lower-cased before use. An email that is already
// registered fails with apperror.DuplicateEmail, whether it is caught by the
// lookup here or, for a concurrent sign-up, by the unique index.
func (s *AuthService) CreateUser(ctx context.Context, email, password, name string) (*model.User, error) {
	email = normalizeEmail(email)

	_, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperror.DuplicateEmail()
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, apperror.StorageFailure(createFailed, fmt.Errorf("service/auth: checking email: %w", err))
	}

	if len(password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes))
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.StorageFailure(createFailed, fmt.Errorf("service/auth: %w", err))
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, apperror.StorageFailure(createFailed, fmt.Errorf("service/auth: creating user: %w", err))
	}

	s.logger.InfoContext(ctx, "user created", slog.String("userID", user.ID))
	return user.Public(), nil
}

// GetUserByEmail returns the full stored record, hash included. Lookup
// failures are logged and reported as absent.
func (s *AuthService) GetUserByEmail(ctx context.Context, email string) (*model.User, bool) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	return s.found(ctx, user, err, "email")
}

// GetUserByID returns the full stored record, hash included. Lookup failures
// are logged and reported as absent. It satisfies auth.UserLookup.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, bool) {
	if id == "" {
		return nil, false
	}
	user, err := s.users.GetUserByID(ctx, id)
	return s.found(ctx, user, err, "id")
}

func (s *AuthService) found(ctx context.Context, user *model.User, err error, by string) (*model.User, bool) {
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.ErrorContext(ctx, "user lookup failed", slog.String("by", by), slog.Any("error", err))
		}
		return nil, false
	}
	return user, true
}

// ValidateUser checks a password and returns the public user on a match.
// It fails closed: unknown email, a passwordless account, a wrong password
// and a lookup error all give (nil, false), after the same bcrypt work.
func (s *AuthService) ValidateUser(ctx context.Context, email, password string) (*model.User, bool) {
	user, ok := s.GetUserByEmail(ctx, email)
	if !ok || user.PasswordHash == "" {
		s.passwords.VerifyNone(password)
		return nil, false
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, false
	}
	return user.Public(), true
}

// Signup validates the form, creates the account and starts a session.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" || in.ConfirmPassword == "" || strings.TrimSpace(in.Name) == "" {
		return nil, apperror.ValidationFailed("", "All fields are required")
	}
	if in.Password != in.ConfirmPassword {
		return nil, apperror.ValidationFailed("confirmPassword", "Passwords do not match")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes))
	}

	user, err := s.CreateUser(ctx, in.Email, in.Password, in.Name)
	if err != nil {
		return nil, err
	}
	return s.startSession(user)
}

// Signin checks credentials and starts a session. Every failure is the same
// apperror.Unauthenticated.
func (s *AuthService) Signin(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperror.ValidationFailed("", "Email and password are required")
	}

	user, ok := s.ValidateUser(ctx, email, password)
	if !ok {
		s.logger.InfoContext(ctx, "sign-in rejected")
		return nil, apperror.Unauthenticated(invalidCredentials)
	}

	s.logger.InfoContext(ctx, "user signed in", slog.String("userID", user.ID))
	return s.startSession(user)
}

// LoginWithGitHub signs in the account linked to a GitHub profile, creating
// a passwordless account on first use. The profile must carry an email that
// no other account uses.
func (s *AuthService) LoginWithGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*Session, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, err := s.users.GetUserByGitHubID(ctx, ghUser.ID)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "user signed in via GitHub", slog.String("userID", user.ID))
		return s.startSession(user.Public())
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, apperror.StorageFailure(createFailed, fmt.Errorf("service/auth: looking up GitHub user %d: %w", ghUser.ID, err))
	}

	email := normalizeEmail(ghUser.Email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "Your GitHub account has no verified email address")
	}

	user = &model.User{
		Email:    email,
		Name:     ghUser.DisplayName(),
		GitHubID: ghUser.ID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, apperror.StorageFailure(createFailed, fmt.Errorf("service/auth: creating GitHub user %d: %w", ghUser.ID, err))
	}

	s.logger.InfoContext(ctx, "user created via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)
	return s.startSession(user.Public())
}

// ResolveSession returns the public user a session token belongs to.
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*model.User, bool) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return nil, false
	}
	user, ok := s.GetUserByID(ctx, userID)
	if !ok {
		return nil, false
	}
	return user.Public(), true
}

func (s *AuthService) startSession(user *model.User) (*Session, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &Session{User: user, Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
