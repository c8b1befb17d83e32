package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/roster/backend/internal/domain/shared"
)

// UserRepository is the persistence port for the identity store. Lookups by
// username are exact within a realm; email lookups are case-insensitive across
// the whole store.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id uuid.UUID) error

	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByUsername(ctx context.Context, realm, username string) (*User, error)
	// FindAllByUsername returns every record matching the username within the
	// realm. Rename resolution requires exactly one distinct match.
	FindAllByUsername(ctx context.Context, realm, username string) ([]*User, error)
	// FindByEmailFold returns a user whose email equals the given address
	// under case folding, or ErrNotFound.
	FindByEmailFold(ctx context.Context, email string) (*User, error)
	FindAll(ctx context.Context, realm string, filter shared.Filter) ([]*User, int64, error)

	ExistsByUsername(ctx context.Context, realm, username string) (bool, error)
}
