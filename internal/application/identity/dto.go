package identity

import (
	"time"

	"github.com/google/uuid"
)

// LoginInput carries login credentials.
type LoginInput struct {
	Username string
	Password string
	IP       string
}

// UserInfo is the operator projection returned by auth operations.
type UserInfo struct {
	ID           uuid.UUID
	Realm        string
	Username     string
	Email        string
	FirstName    string
	LastName     string
	Capabilities []string
}

// LoginResult carries the issued token pair and the operator projection.
type LoginResult struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	TokenType             string
	User                  UserInfo
}

// RefreshTokenInput carries the refresh token being exchanged.
type RefreshTokenInput struct {
	RefreshToken string
}

// RefreshTokenResult carries the re-issued token pair.
type RefreshTokenResult struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	TokenType             string
}

// LogoutInput identifies the session being ended. TokenTTL is the remaining
// lifetime of the access token; the revocation mark only needs to outlive it.
type LogoutInput struct {
	UserID   uuid.UUID
	TokenJTI string
	TokenTTL time.Duration
}

// GetCurrentUserInput identifies the operator being looked up.
type GetCurrentUserInput struct {
	UserID uuid.UUID
}

// CurrentUserResult carries the operator projection with fresh capabilities.
type CurrentUserResult struct {
	User UserInfo
}
