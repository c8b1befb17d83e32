// Package identity holds the application services around operator identity:
// authentication, session lifecycle and the scope-filtered directory.
package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/infrastructure/auth"
)

// AuthService handles operator authentication. Operators live in the identity
// store like any other account; the tenant a session is scoped to is the
// operator's own identity.
type AuthService struct {
	users        identity.UserRepository
	capabilities CapabilityResolver
	jwtService   *auth.JWTService
	sessions     auth.SessionStore
	realm        string
	logger       *zap.Logger
}

// NewAuthService creates a new authentication service. The realm is the one
// operator logins resolve against.
func NewAuthService(
	users identity.UserRepository,
	capabilities CapabilityResolver,
	jwtService *auth.JWTService,
	sessions auth.SessionStore,
	realm string,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:        users,
		capabilities: capabilities,
		jwtService:   jwtService,
		sessions:     sessions,
		realm:        realm,
		logger:       logger,
	}
}

// Login authenticates an operator and returns a token pair.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	s.logger.Info("login attempt",
		zap.String("username", input.Username),
		zap.String("ip", input.IP))

	user, err := s.users.FindByUsername(ctx, s.realm, input.Username)
	if err != nil {
		s.logger.Warn("unknown username at login", zap.String("username", input.Username))
		return nil, shared.NewDomainError("INVALID_CREDENTIALS", "Invalid username or password")
	}

	if !user.CanLogIn() {
		s.logger.Warn("login attempt on account that cannot log in",
			zap.String("username", input.Username),
			zap.Bool("suspended", user.Suspended),
			zap.String("auth", user.Auth))
		return nil, shared.NewDomainError("ACCOUNT_INACTIVE", "Account cannot log in")
	}

	if !user.VerifyPassword(input.Password) {
		s.logger.Warn("invalid password", zap.String("username", input.Username))
		return nil, shared.NewDomainError("INVALID_CREDENTIALS", "Invalid username or password")
	}

	capabilities, err := s.capabilities.CapabilitiesFor(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to resolve capabilities", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to resolve capabilities")
	}

	tokenPair, err := s.jwtService.GenerateTokenPair(auth.GenerateTokenInput{
		// Sessions are scoped to the operator's own identity.
		TenantID:     user.ID,
		UserID:       user.ID,
		Username:     user.Username,
		Capabilities: capabilities,
	})
	if err != nil {
		s.logger.Error("failed to generate token pair", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to generate authentication tokens")
	}

	s.logger.Info("operator logged in",
		zap.String("username", user.Username),
		zap.String("user_id", user.ID.String()))

	return &LoginResult{
		AccessToken:           tokenPair.AccessToken,
		RefreshToken:          tokenPair.RefreshToken,
		AccessTokenExpiresAt:  tokenPair.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: tokenPair.RefreshTokenExpiresAt,
		TokenType:             tokenPair.TokenType,
		User:                  userInfo(user, capabilities),
	}, nil
}

// RefreshToken exchanges a valid refresh token for a fresh pair. Capabilities
// are recomputed so role changes take effect at the next refresh.
func (s *AuthService) RefreshToken(ctx context.Context, input RefreshTokenInput) (*RefreshTokenResult, error) {
	refreshClaims, err := s.jwtService.ValidateRefreshToken(input.RefreshToken)
	if err != nil {
		s.logger.Warn("refresh token validation failed", zap.Error(err))
		return nil, mapTokenError(err)
	}

	userID, err := uuid.Parse(refreshClaims.UserID)
	if err != nil {
		return nil, shared.NewDomainError("TOKEN_INVALID", "Invalid user ID in token")
	}

	revoked, err := s.sessions.IsIssuedBeforeRevocation(ctx, refreshClaims.UserID, refreshClaims.GetIssuedAtTime())
	if err != nil {
		s.logger.Warn("session store lookup failed during refresh", zap.Error(err))
	} else if revoked {
		return nil, shared.NewDomainError("TOKEN_INVALID", "Session has been revoked")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("user not found during refresh", zap.String("user_id", userID.String()))
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}
	if !user.CanLogIn() {
		return nil, shared.NewDomainError("ACCOUNT_INACTIVE", "Account is no longer active")
	}

	capabilities, err := s.capabilities.CapabilitiesFor(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to resolve capabilities during refresh", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to resolve capabilities")
	}

	tokenPair, err := s.jwtService.RefreshTokenPair(input.RefreshToken, capabilities)
	if err != nil {
		s.logger.Warn("token refresh failed", zap.Error(err))
		return nil, mapTokenError(err)
	}

	s.logger.Info("token refreshed", zap.String("user_id", userID.String()))

	return &RefreshTokenResult{
		AccessToken:           tokenPair.AccessToken,
		RefreshToken:          tokenPair.RefreshToken,
		AccessTokenExpiresAt:  tokenPair.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: tokenPair.RefreshTokenExpiresAt,
		TokenType:             tokenPair.TokenType,
	}, nil
}

// Logout revokes the current access token. The mark lives only as long as the
// token would have.
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	if input.TokenJTI == "" || input.TokenTTL <= 0 {
		return nil
	}
	if err := s.sessions.RevokeToken(ctx, input.TokenJTI, input.TokenTTL); err != nil {
		s.logger.Error("failed to revoke token at logout",
			zap.String("user_id", input.UserID.String()),
			zap.Error(err))
		return shared.NewDomainError("INTERNAL_ERROR", "Failed to end session")
	}
	s.logger.Info("operator logged out", zap.String("user_id", input.UserID.String()))
	return nil
}

// GetCurrentUser returns the operator projection with freshly resolved
// capabilities.
func (s *AuthService) GetCurrentUser(ctx context.Context, input GetCurrentUserInput) (*CurrentUserResult, error) {
	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, shared.NewDomainError("USER_NOT_FOUND", "User not found")
	}

	capabilities, err := s.capabilities.CapabilitiesFor(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to resolve capabilities", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to resolve capabilities")
	}

	return &CurrentUserResult{User: userInfo(user, capabilities)}, nil
}

func userInfo(user *identity.User, capabilities []string) UserInfo {
	return UserInfo{
		ID:           user.ID,
		Realm:        user.Realm,
		Username:     user.Username,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Capabilities: capabilities,
	}
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return shared.NewDomainError("TOKEN_EXPIRED", "Refresh token has expired")
	case errors.Is(err, auth.ErrMaxRefreshExceeded):
		return shared.NewDomainError("TOKEN_MAX_REFRESH", "Maximum token refresh count exceeded. Please log in again")
	case errors.Is(err, auth.ErrInvalidToken):
		return shared.NewDomainError("TOKEN_INVALID", "Invalid refresh token")
	default:
		return shared.NewDomainError("TOKEN_INVALID", "Failed to validate refresh token")
	}
}
