package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/bloodbank/internal/core/domain"
	"github.com/rl1809/bloodbank/internal/core/service"
	"github.com/rl1809/bloodbank/internal/port"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

type Service struct {
	users  port.UserRepository
	tokens *TokenIssuer
	logger *zap.Logger
}

func NewService(users port.UserRepository, tokens *TokenIssuer, logger *zap.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Register creates a requester account.
func (s *Service) Register(ctx context.Context, username, email, password string) (domain.User, error) {
	return s.create(ctx, username, email, password, false)
}

// CreateAdmin creates a staff account. It is only reachable from the CLI.
func (s *Service) CreateAdmin(ctx context.Context, username, email, password string) (domain.User, error) {
	return s.create(ctx, username, email, password, true)
}

func (s *Service) create(ctx context.Context, username, email, password string, staff bool) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, fmt.Errorf("%w: username and password are required", service.ErrValidation)
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return domain.User{}, fmt.Errorf("%w: invalid email %q", service.ErrValidation, email)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		IsStaff:      staff,
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return domain.User{}, fmt.Errorf("username %q is taken: %w", username, domain.ErrConflict)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.Bool("is_staff", staff))
	return user, nil
}

// Login checks the password and returns an access/refresh pair.
func (s *Service) Login(ctx context.Context, username, password string) (TokenPair, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return TokenPair{}, ErrInvalidCredentials
	}

	access, err := s.tokens.Issue(user.Caller(), AccessToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.tokens.Issue(user.Caller(), RefreshToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token. The user is
// reloaded so a revoked staff flag takes effect.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	caller, err := s.tokens.Parse(refreshToken, RefreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	user, err := s.users.GetUser(ctx, caller.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return TokenPair{}, fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	access, err := s.tokens.Issue(user.Caller(), AccessToken)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	return TokenPair{Access: access}, nil
}

// Verify resolves an access token into the caller it was issued for.
func (s *Service) Verify(token string) (domain.Caller, error) {
	return s.tokens.Parse(token, AccessToken)
}
