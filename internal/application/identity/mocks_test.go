package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/roster/backend/internal/domain/enrol"
	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
)

// MockUserRepository mocks identity.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *identity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *identity.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindByUsername(ctx context.Context, realm, username string) (*identity.User, error) {
	args := m.Called(ctx, realm, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindAllByUsername(ctx context.Context, realm, username string) ([]*identity.User, error) {
	args := m.Called(ctx, realm, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmailFold(ctx context.Context, email string) (*identity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *MockUserRepository) FindAll(ctx context.Context, realm string, filter shared.Filter) ([]*identity.User, int64, error) {
	args := m.Called(ctx, realm, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*identity.User), args.Get(1).(int64), args.Error(2)
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, realm, username string) (bool, error) {
	args := m.Called(ctx, realm, username)
	return args.Bool(0), args.Error(1)
}

// MockDirectory mocks tenant.Directory.
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) FindAllScoped(ctx context.Context, realm string, match tenant.Filter, filter shared.Filter) ([]*identity.User, int64, error) {
	args := m.Called(ctx, realm, match, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*identity.User), args.Get(1).(int64), args.Error(2)
}

// MockEnrolmentRepository mocks enrol.EnrolmentRepository.
type MockEnrolmentRepository struct {
	mock.Mock
}

func (m *MockEnrolmentRepository) Enrol(ctx context.Context, enrolment *enrol.Enrolment) error {
	args := m.Called(ctx, enrolment)
	return args.Error(0)
}

func (m *MockEnrolmentRepository) IsEnrolled(ctx context.Context, courseID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, courseID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnrolmentRepository) FindEnrolment(ctx context.Context, courseID, userID uuid.UUID, method string) (*enrol.Enrolment, error) {
	args := m.Called(ctx, courseID, userID, method)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enrol.Enrolment), args.Error(1)
}

func (m *MockEnrolmentRepository) UpdateEnrolment(ctx context.Context, enrolment *enrol.Enrolment) error {
	args := m.Called(ctx, enrolment)
	return args.Error(0)
}

func (m *MockEnrolmentRepository) AssignSystemRole(ctx context.Context, userID, roleID uuid.UUID) error {
	args := m.Called(ctx, userID, roleID)
	return args.Error(0)
}

func (m *MockEnrolmentRepository) UnassignSystemRole(ctx context.Context, userID, roleID uuid.UUID) error {
	args := m.Called(ctx, userID, roleID)
	return args.Error(0)
}

func (m *MockEnrolmentRepository) HasSystemRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, roleID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEnrolmentRepository) FindSystemRoles(ctx context.Context, userID uuid.UUID) ([]*enrol.Role, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*enrol.Role), args.Error(1)
}

// stubResolver returns a fixed capability set.
type stubResolver struct {
	capabilities []string
	err          error
}

func (r *stubResolver) CapabilitiesFor(context.Context, uuid.UUID) ([]string, error) {
	return r.capabilities, r.err
}

// mapResolver returns a per-user capability set.
type mapResolver struct {
	capabilities map[uuid.UUID][]string
}

func (r *mapResolver) CapabilitiesFor(_ context.Context, userID uuid.UUID) ([]string, error) {
	return r.capabilities[userID], nil
}

// stubAuthorizer grants every capability unless a denial is registered.
type stubAuthorizer struct {
	denied map[string]bool
}

func allowAll() *stubAuthorizer {
	return &stubAuthorizer{denied: make(map[string]bool)}
}

func (a *stubAuthorizer) deny(capability string) *stubAuthorizer {
	a.denied[capability] = true
	return a
}

func (a *stubAuthorizer) Can(_ uuid.UUID, capability string) bool {
	return !a.denied[capability]
}
