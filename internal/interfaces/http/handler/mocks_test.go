package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/roster/backend/internal/domain/enrol"
	"github.com/roster/backend/internal/domain/grouping"
	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
)

// MockUserRepository is a mock implementation of identity.UserRepository
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
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*identity.User), args.Get(1).(int64), args.Error(2)
}

func (m *MockUserRepository) ExistsByUsername(ctx context.Context, realm, username string) (bool, error) {
	args := m.Called(ctx, realm, username)
	return args.Bool(0), args.Error(1)
}

// MockDirectory is a mock implementation of tenant.Directory
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) FindAllScoped(ctx context.Context, realm string, match tenant.Filter, filter shared.Filter) ([]*identity.User, int64, error) {
	args := m.Called(ctx, realm, match, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*identity.User), args.Get(1).(int64), args.Error(2)
}

// MockGroupRepository is a mock implementation of grouping.GroupRepository
type MockGroupRepository struct {
	mock.Mock
}

func (m *MockGroupRepository) Create(ctx context.Context, group *grouping.Group) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *MockGroupRepository) Update(ctx context.Context, group *grouping.Group) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *MockGroupRepository) FindByID(ctx context.Context, id uuid.UUID) (*grouping.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*grouping.Group), args.Error(1)
}

func (m *MockGroupRepository) FindByIDNumber(ctx context.Context, idnumber string) (*grouping.Group, error) {
	args := m.Called(ctx, idnumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*grouping.Group), args.Error(1)
}

func (m *MockGroupRepository) FindByIDNumberPattern(ctx context.Context, pattern string) (*grouping.Group, error) {
	args := m.Called(ctx, pattern)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*grouping.Group), args.Error(1)
}

func (m *MockGroupRepository) ExistsByIDNumber(ctx context.Context, idnumber string) (bool, error) {
	args := m.Called(ctx, idnumber)
	return args.Bool(0), args.Error(1)
}

func (m *MockGroupRepository) FindAllByPrefixPattern(ctx context.Context, pattern string, filter shared.Filter) ([]*grouping.Group, int64, error) {
	args := m.Called(ctx, pattern, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*grouping.Group), args.Get(1).(int64), args.Error(2)
}

func (m *MockGroupRepository) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *MockGroupRepository) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockGroupRepository) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

// MockCourseRepository is a mock implementation of enrol.CourseRepository
type MockCourseRepository struct {
	mock.Mock
}

func (m *MockCourseRepository) FindByShortName(ctx context.Context, shortName string) (*enrol.Course, error) {
	args := m.Called(ctx, shortName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enrol.Course), args.Error(1)
}

// MockRoleRepository is a mock implementation of enrol.RoleRepository
type MockRoleRepository struct {
	mock.Mock
}

func (m *MockRoleRepository) FindByShortName(ctx context.Context, shortName string) (*enrol.Role, error) {
	args := m.Called(ctx, shortName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enrol.Role), args.Error(1)
}

func (m *MockRoleRepository) FindByArchetype(ctx context.Context, archetype string) (*enrol.Role, error) {
	args := m.Called(ctx, archetype)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*enrol.Role), args.Error(1)
}

// MockEnrolmentRepository is a mock implementation of enrol.EnrolmentRepository
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

// stubTxRunner runs the function directly without a transaction.
type stubTxRunner struct{}

func (stubTxRunner) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// stubCapabilityResolver returns a fixed per-user capability set.
type stubCapabilityResolver struct {
	capabilities map[uuid.UUID][]string
}

func (r *stubCapabilityResolver) CapabilitiesFor(_ context.Context, userID uuid.UUID) ([]string, error) {
	return r.capabilities[userID], nil
}
