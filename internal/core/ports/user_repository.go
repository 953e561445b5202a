package ports

import (
	"context"

	"github.com/matt-iam/iam-api/internal/core/domain"
)

// UserRepository persists users. FindByEmail always returns the user with
// roles and permissions resolved; the storage layer decides how eagerly.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Save(ctx context.Context, user *domain.User) error
}

// RoleRepository resolves role definitions. Role management itself lives
// outside this service; registration only needs the default role to exist.
type RoleRepository interface {
	FindByName(ctx context.Context, name string) (*domain.Role, error)
}
