// Package auth implements login, logout, and session bookkeeping.
package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/harborwatch/harborwatch/internal/shared"
	"github.com/harborwatch/harborwatch/internal/users"
)

// UserFinder resolves login credentials to an account.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
}

// SessionRecorder persists session metadata for auditing.
type SessionRecorder interface {
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// Service wraps authentication business rules.
type Service struct {
	finder   UserFinder
	sessions SessionRecorder
}

// NewService constructs a new Service.
func NewService(finder UserFinder, sessions SessionRecorder) *Service {
	return &Service{finder: finder, sessions: sessions}
}

// Authenticate validates email/password credentials. Every failure mode
// reports the same error so responses cannot be used to probe for accounts.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.finder.FindByEmail(ctx, email)
	if err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.sessions.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.sessions.DeleteSession(ctx, id)
}
