package upload

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/roster/backend/internal/domain/enrol"
	"github.com/roster/backend/internal/domain/grouping"
	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
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

// MockGroupRepository mocks grouping.GroupRepository.
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
		return nil, 0, args.Error(2)
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

// MockCourseRepository mocks enrol.CourseRepository.
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

// MockRoleRepository mocks enrol.RoleRepository.
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

// stubTx runs the function inline without a real transaction.
type stubTx struct{}

func (stubTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// stubSessions records revocations.
type stubSessions struct {
	revoked []uuid.UUID
}

func (s *stubSessions) RevokeAll(_ context.Context, userID uuid.UUID) error {
	s.revoked = append(s.revoked, userID)
	return nil
}
