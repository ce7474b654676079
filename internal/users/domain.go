// Package users manages tenant user accounts.
package users

import (
	"time"

	"github.com/harborwatch/harborwatch/internal/roles"
)

// User represents a user account within a tenant.
type User struct {
	ID           int64
	TenantID     int64
	Email        string
	Name         string
	Role         roles.Role
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
