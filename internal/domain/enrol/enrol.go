// Package enrol models courses, enrolment methods and roles as the
// reconciler's post-processing step sees them.
package enrol

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/roster/backend/internal/domain/shared"
)

// Enrolment statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// MethodManual is the enrolment method bulk upload applies through.
const MethodManual = "manual"

// Role is an assignable role.
type Role struct {
	shared.BaseEntity
	ShortName string
	Archetype string
	// AssignableAtSystem permits assignment outside a course context.
	AssignableAtSystem bool
}

// Course is a course reference.
type Course struct {
	shared.BaseEntity
	ShortName string
	// DefaultRoleID is the role granted when neither an explicit role
	// column nor a legacy type mapping applies.
	DefaultRoleID uuid.UUID
	// DefaultPeriod is the enrolment duration applied when the row gives
	// none; zero means open-ended.
	DefaultPeriod time.Duration
}

// Enrolment is a user's enrolment into a course via a method.
type Enrolment struct {
	shared.BaseEntity
	CourseID  uuid.UUID
	UserID    uuid.UUID
	Method    string
	RoleID    uuid.UUID
	Status    string
	TimeStart time.Time
	TimeEnd   time.Time
}

// SystemRoleAssignment is a role granted at system level.
type SystemRoleAssignment struct {
	UserID uuid.UUID
	RoleID uuid.UUID
}

// LegacyTypeRole maps the legacy numeric "type" column to a role archetype:
// 1 = student, 2 = teacher, 3 = non-editing teacher.
func LegacyTypeRole(typeCode string) (string, bool) {
	switch typeCode {
	case "1":
		return "student", true
	case "2":
		return "editingteacher", true
	case "3":
		return "teacher", true
	}
	return "", false
}

// CourseRepository is the persistence port for course lookups.
type CourseRepository interface {
	FindByShortName(ctx context.Context, shortName string) (*Course, error)
}

// RoleRepository is the persistence port for role lookups.
type RoleRepository interface {
	FindByShortName(ctx context.Context, shortName string) (*Role, error)
	FindByArchetype(ctx context.Context, archetype string) (*Role, error)
}

// EnrolmentRepository is the persistence port for enrolments and system role
// assignments. Enrol and AssignSystemRole are idempotent.
type EnrolmentRepository interface {
	Enrol(ctx context.Context, enrolment *Enrolment) error
	IsEnrolled(ctx context.Context, courseID, userID uuid.UUID) (bool, error)
	FindEnrolment(ctx context.Context, courseID, userID uuid.UUID, method string) (*Enrolment, error)
	UpdateEnrolment(ctx context.Context, enrolment *Enrolment) error

	AssignSystemRole(ctx context.Context, userID, roleID uuid.UUID) error
	UnassignSystemRole(ctx context.Context, userID, roleID uuid.UUID) error
	HasSystemRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error)
	// FindSystemRoles lists the roles the user holds at system level.
	FindSystemRoles(ctx context.Context, userID uuid.UUID) ([]*Role, error)
}
