package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unichat/internal/auth"
	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/model"
	"github.com/unichat/internal/roster"
	"github.com/unichat/internal/storage"
)

// MinPasswordLength applies to changed passwords. Initial passwords are the registration number.
const MinPasswordLength = 6

type LoginResult struct {
	Token string            `json:"token"`
	User  model.AccountView `json:"user"`
}

// AuthService logs students in and provisions credentials on first login.
type AuthService struct {
	store      *storage.Store
	dir        *roster.Directory
	tokens     *auth.Tokens
	adminID    string
	bcryptCost int
}

func NewAuthService(store *storage.Store, dir *roster.Directory, tokens *auth.Tokens, adminID string, bcryptCost int) *AuthService {
	return &AuthService{store: store, dir: dir, tokens: tokens, adminID: adminID, bcryptCost: bcryptCost}
}

func (s *AuthService) Login(ctx context.Context, regNumber, password string) (LoginResult, error) {
	defer logger.DeferLogDuration("auth.Login", time.Now())()
	regNumber = strings.TrimSpace(regNumber)
	if regNumber == "" || password == "" {
		return LoginResult{}, fail(ErrInvalidInput, "Username and password are required")
	}
	profile, ok := s.dir.Lookup(regNumber)
	if !ok {
		return LoginResult{}, fail(ErrNotFound, "Student not found")
	}

	user, err := s.credential(ctx, regNumber)
	if err != nil {
		return LoginResult{}, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return LoginResult{}, fail(ErrUnauthenticated, "Invalid password")
	}

	token, err := s.tokens.Issue(regNumber)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token: token,
		User: model.AccountView{
			Profile:            profile,
			IsAdmin:            regNumber == s.adminID,
			HasChangedPassword: user.HasChangedPassword,
		},
	}, nil
}

// credential returns the stored credential, creating one with the registration number
// as password when the student logs in for the first time.
func (s *AuthService) credential(ctx context.Context, regNumber string) (model.User, error) {
	user, err := s.store.Users.Get(ctx, regNumber)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return model.User{}, fmt.Errorf("auth.credential: %w", err)
	}

	hash, err := auth.HashPassword(regNumber, s.bcryptCost)
	if err != nil {
		return model.User{}, err
	}
	user = model.User{ID: regNumber, PasswordHash: hash, CreatedAt: now()}
	err = s.store.Users.Append(ctx, user)
	if errors.Is(err, storage.ErrConflict) {
		// provisioned concurrently
		return s.store.Users.Get(ctx, regNumber)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("auth.credential: %w", err)
	}
	logger.Infof("auth: provisioned credential for %s", regNumber)
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, regNumber, current, next string) error {
	defer logger.DeferLogDuration("auth.ChangePassword", time.Now())()
	if current == "" || next == "" {
		return fail(ErrInvalidInput, "Current and new password are required")
	}
	if len(next) < MinPasswordLength {
		return fail(ErrInvalidInput, fmt.Sprintf("New password must be at least %d characters", MinPasswordLength))
	}
	user, err := s.store.Users.Get(ctx, regNumber)
	if errors.Is(err, storage.ErrNotFound) {
		return fail(ErrNotFound, "User not found")
	}
	if err != nil {
		return fmt.Errorf("auth.ChangePassword: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, current) {
		return fail(ErrUnauthenticated, "Current password is incorrect")
	}
	hash, err := auth.HashPassword(next, s.bcryptCost)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.HasChangedPassword = true
	if err := s.store.Users.Put(ctx, user); err != nil {
		return fmt.Errorf("auth.ChangePassword: %w", err)
	}
	return nil
}

// Verify resolves a bearer token to a registration number.
func (s *AuthService) Verify(token string) (string, error) {
	return s.tokens.Verify(token)
}

func (s *AuthService) IsAdmin(regNumber string) bool {
	return regNumber == s.adminID
}
