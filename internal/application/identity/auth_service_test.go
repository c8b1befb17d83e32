package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/infrastructure/auth"
	"github.com/roster/backend/internal/infrastructure/config"
)

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                 "test-secret-key-at-least-32-chars",
		RefreshSecret:          "test-refresh-secret-key-32-chars",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: 7 * 24 * time.Hour,
		Issuer:                 "test-issuer",
		MaxRefreshCount:        10,
	})
}

func newTestOperator(t *testing.T) *identity.User {
	t.Helper()
	user, err := identity.NewUser("main", "batchadmin")
	require.NoError(t, err)
	require.NoError(t, user.SetPassword("correct-horse-battery"))
	user.Confirmed = true
	return user
}

func newTestAuthService(users *MockUserRepository, resolver CapabilityResolver) (*AuthService, auth.SessionStore) {
	sessions := auth.NewInMemorySessionStore()
	svc := NewAuthService(users, resolver, newTestJWTService(), sessions, "main", zap.NewNop())
	return svc, sessions
}

func TestAuthService_Login(t *testing.T) {
	users := new(MockUserRepository)
	user := newTestOperator(t)
	users.On("FindByUsername", mock.Anything, "main", "batchadmin").Return(user, nil)

	svc, _ := newTestAuthService(users, &stubResolver{capabilities: []string{"user:upload"}})

	result, err := svc.Login(context.Background(), LoginInput{
		Username: "batchadmin",
		Password: "correct-horse-battery",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, "Bearer", result.TokenType)
	assert.Equal(t, user.ID, result.User.ID)
	assert.Equal(t, []string{"user:upload"}, result.User.Capabilities)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	users := new(MockUserRepository)
	users.On("FindByUsername", mock.Anything, "main", "batchadmin").Return(newTestOperator(t), nil)

	svc, _ := newTestAuthService(users, &stubResolver{})

	_, err := svc.Login(context.Background(), LoginInput{
		Username: "batchadmin",
		Password: "wrong",
	})

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_CREDENTIALS", domainErr.Code)
}

func TestAuthService_Login_UnknownUser(t *testing.T) {
	users := new(MockUserRepository)
	users.On("FindByUsername", mock.Anything, "main", "ghost").Return(nil, shared.ErrNotFound)

	svc, _ := newTestAuthService(users, &stubResolver{})

	_, err := svc.Login(context.Background(), LoginInput{Username: "ghost", Password: "whatever"})

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	// Unknown usernames and wrong passwords are indistinguishable.
	assert.Equal(t, "INVALID_CREDENTIALS", domainErr.Code)
}

func TestAuthService_Login_SuspendedAccount(t *testing.T) {
	users := new(MockUserRepository)
	user := newTestOperator(t)
	user.SetSuspended(true)
	users.On("FindByUsername", mock.Anything, "main", "batchadmin").Return(user, nil)

	svc, _ := newTestAuthService(users, &stubResolver{})

	_, err := svc.Login(context.Background(), LoginInput{
		Username: "batchadmin",
		Password: "correct-horse-battery",
	})

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "ACCOUNT_INACTIVE", domainErr.Code)
}

func TestAuthService_Login_ResolverFailure(t *testing.T) {
	users := new(MockUserRepository)
	users.On("FindByUsername", mock.Anything, "main", "batchadmin").Return(newTestOperator(t), nil)

	svc, _ := newTestAuthService(users, &stubResolver{err: errors.New("store down")})

	_, err := svc.Login(context.Background(), LoginInput{
		Username: "batchadmin",
		Password: "correct-horse-battery",
	})

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INTERNAL_ERROR", domainErr.Code)
}

func TestAuthService_RefreshToken(t *testing.T) {
	users := new(MockUserRepository)
	user := newTestOperator(t)
	users.On("FindByUsername", mock.Anything, "main", "batchadmin").Return(user, nil)
	users.On("FindByID", mock.Anything, user.ID).Return(user, nil)

	svc, _ := newTestAuthService(users, &stubResolver{capabilities: []string{"user:upload"}})

	login, err := svc.Login(context.Background(), LoginInput{
		Username: "batchadmin",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)

	result, err := svc.RefreshToken(context.Background(), RefreshTokenInput{
		RefreshToken: login.RefreshToken,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEqual(t, login.AccessToken, result.AccessToken)
}

func TestAuthService_RefreshToken_Invalid(t *testing.T) {
	users := new(MockUserRepository)
	svc, _ := newTestAuthService(users, &stubResolver{})

	_, err := svc.RefreshToken(context.Background(), RefreshTokenInput{
		RefreshToken: "not.a.token",
	})

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "TOKEN_INVALID", domainErr.Code)
}

func TestAuthService_RefreshToken_RevokedSession(t *testing.T) {
	users := new(MockUserRepository)
	user := newTestOperator(t)
	users.On("FindByUsername", mock.Anything, "main", "batchadmin").Return(user, nil)

	svc, sessions := newTestAuthService(users, &stubResolver{})

	login, err := svc.Login(context.Background(), LoginInput{
		Username: "batchadmin",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)

	require.NoError(t, sessions.RevokeUser(context.Background(), user.ID.String(), time.Hour))

	_, err = svc.RefreshToken(context.Background(), RefreshTokenInput{
		RefreshToken: login.RefreshToken,
	})

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "TOKEN_INVALID", domainErr.Code)
}

func TestAuthService_Logout_RevokesToken(t *testing.T) {
	users := new(MockUserRepository)
	user := newTestOperator(t)
	svc, sessions := newTestAuthService(users, &stubResolver{})

	err := svc.Logout(context.Background(), LogoutInput{
		UserID:   user.ID,
		TokenJTI: "some-jti",
		TokenTTL: time.Minute,
	})
	require.NoError(t, err)

	revoked, err := sessions.IsTokenRevoked(context.Background(), "some-jti")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestAuthService_GetCurrentUser(t *testing.T) {
	users := new(MockUserRepository)
	user := newTestOperator(t)
	users.On("FindByID", mock.Anything, user.ID).Return(user, nil)

	svc, _ := newTestAuthService(users, &stubResolver{capabilities: []string{"group:view"}})

	result, err := svc.GetCurrentUser(context.Background(), GetCurrentUserInput{UserID: user.ID})

	require.NoError(t, err)
	assert.Equal(t, "batchadmin", result.User.Username)
	assert.Equal(t, []string{"group:view"}, result.User.Capabilities)
}
