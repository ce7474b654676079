package users

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/harborwatch/harborwatch/internal/roles"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, tenantID int64) ([]User, error)
	GetUser(ctx context.Context, tenantID, id int64) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateRole(ctx context.Context, tenantID, id int64, role string) (User, error)
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users in the tenant.
func (s *Service) ListUsers(ctx context.Context, tenantID int64) ([]User, error) {
	return s.repo.ListUsers(ctx, tenantID)
}

// GetUser fetches one user in the tenant.
func (s *Service) GetUser(ctx context.Context, tenantID, id int64) (User, error) {
	return s.repo.GetUser(ctx, tenantID, id)
}

// CreateUser registers a user with a bcrypt-hashed password.
func (s *Service) CreateUser(ctx context.Context, tenantID int64, email, name, password string, role roles.Role) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return User{}, errors.New("users: email required")
	}
	if !role.Valid() {
		return User{}, errors.New("users: unknown role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	return s.repo.CreateUser(ctx, User{
		TenantID:     tenantID,
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: string(hash),
		IsActive:     true,
	})
}

// ChangeRole updates a user's role.
func (s *Service) ChangeRole(ctx context.Context, tenantID, id int64, role roles.Role) (User, error) {
	if !role.Valid() {
		return User{}, errors.New("users: unknown role")
	}
	return s.repo.UpdateRole(ctx, tenantID, id, string(role))
}
