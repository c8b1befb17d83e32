package upload

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/roster/backend/internal/domain/enrol"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
)

// ApplyStatus is the result kind of one applier call.
type ApplyStatus int

const (
	// StatusApplied means the change was made.
	StatusApplied ApplyStatus = iota
	// StatusAlreadyApplied means the target state already held; no-op.
	StatusAlreadyApplied
	// StatusRemoved means a removal was performed.
	StatusRemoved
)

// ApplyResult is the typed result of one applier call.
type ApplyResult struct {
	Status  ApplyStatus
	Message string
}

// EnrolmentSpec carries the course-indexed detail columns of one row.
type EnrolmentSpec struct {
	CourseShortName string
	// RoleShortName is the explicit role<N> value, if any.
	RoleShortName string
	// TypeCode is the legacy numeric type<N> value, if any.
	TypeCode string
	// Status is the enrolstatus<N> value, if any.
	Status string
	// TimeStartRaw is the enroltimestart<N> value: unix seconds or a
	// YYYY-MM-DD date.
	TimeStartRaw string
	// PeriodRaw is the enrolperiod<N> value in seconds.
	PeriodRaw string
}

// EnrolApplier applies group membership, course enrolments and system roles
// after an identity commit. None of its methods fail on "already applied".
type EnrolApplier struct {
	resolver   *GroupResolver
	groups     groupMembershipStore
	courses    enrol.CourseRepository
	roles      enrol.RoleRepository
	enrolments enrol.EnrolmentRepository
	authz      tenant.Authorizer
	now        func() time.Time
}

// groupMembershipStore is the membership slice of grouping.GroupRepository.
type groupMembershipStore interface {
	AddMember(ctx context.Context, groupID, userID uuid.UUID) error
	IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
}

// NewEnrolApplier creates an applier.
func NewEnrolApplier(
	resolver *GroupResolver,
	groups groupMembershipStore,
	courses enrol.CourseRepository,
	roles enrol.RoleRepository,
	enrolments enrol.EnrolmentRepository,
	authz tenant.Authorizer,
) *EnrolApplier {
	return &EnrolApplier{
		resolver:   resolver,
		groups:     groups,
		courses:    courses,
		roles:      roles,
		enrolments: enrolments,
		authz:      authz,
		now:        time.Now,
	}
}

// ApplyGroup resolves the named group for the scope and adds the user to it.
// A matched readonly group accepts members; only its creation and rename are
// refused elsewhere. When courseShortName is set the group belongs to that
// course and the user must already be enrolled there; membership is never
// created "bare".
func (a *EnrolApplier) ApplyGroup(ctx context.Context, scope *tenant.Scope, userID uuid.UUID, groupName, courseShortName string) (ApplyResult, error) {
	group, err := a.resolver.ResolveOrCreate(ctx, scope, groupName)
	if err != nil {
		return ApplyResult{}, err
	}

	if courseShortName != "" {
		course, err := a.courses.FindByShortName(ctx, courseShortName)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return ApplyResult{}, shared.NewDomainError(shared.CodeExternalResource,
					fmt.Sprintf("course '%s' not found", courseShortName))
			}
			return ApplyResult{}, err
		}
		enrolled, err := a.enrolments.IsEnrolled(ctx, course.ID, userID)
		if err != nil {
			return ApplyResult{}, err
		}
		if !enrolled {
			return ApplyResult{}, shared.NewDomainError(shared.CodeValidation,
				fmt.Sprintf("not enrolled in '%s', group '%s' not assigned", courseShortName, group.BaseName))
		}
	}

	member, err := a.groups.IsMember(ctx, group.ID, userID)
	if err != nil {
		return ApplyResult{}, err
	}
	if member {
		return ApplyResult{Status: StatusAlreadyApplied, Message: fmt.Sprintf("already in group '%s'", group.BaseName)}, nil
	}

	if err := a.groups.AddMember(ctx, group.ID, userID); err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{Status: StatusApplied, Message: fmt.Sprintf("added to group '%s'", group.BaseName)}, nil
}

// ApplyEnrolment enrols the user into a course. The role is resolved from
// the explicit role column, then the legacy numeric type, then the course
// default. An existing manual enrolment is left untouched.
func (a *EnrolApplier) ApplyEnrolment(ctx context.Context, tenantID, userID uuid.UUID, spec EnrolmentSpec) (ApplyResult, error) {
	if !a.authz.Can(tenantID, tenant.CapEnrolManage) {
		return ApplyResult{}, shared.NewDomainError(shared.CodePermissionDenied, "no permission to enrol users")
	}

	course, err := a.courses.FindByShortName(ctx, spec.CourseShortName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ApplyResult{}, shared.NewDomainError(shared.CodeExternalResource,
				fmt.Sprintf("course '%s' not found", spec.CourseShortName))
		}
		return ApplyResult{}, err
	}

	roleID, err := a.resolveRole(ctx, course, spec)
	if err != nil {
		return ApplyResult{}, err
	}

	existing, err := a.enrolments.FindEnrolment(ctx, course.ID, userID, enrol.MethodManual)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return ApplyResult{}, err
	}
	if existing != nil {
		return ApplyResult{Status: StatusAlreadyApplied, Message: fmt.Sprintf("already enrolled in '%s'", course.ShortName)}, nil
	}

	start, end := a.window(course, spec)

	status := enrol.StatusActive
	if spec.Status == enrol.StatusSuspended {
		status = enrol.StatusSuspended
	}

	enrolment := &enrol.Enrolment{
		BaseEntity: shared.NewBaseEntity(),
		CourseID:   course.ID,
		UserID:     userID,
		Method:     enrol.MethodManual,
		RoleID:     roleID,
		Status:     status,
		TimeStart:  start,
		TimeEnd:    end,
	}
	if err := a.enrolments.Enrol(ctx, enrolment); err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{Status: StatusApplied, Message: fmt.Sprintf("enrolled in '%s'", course.ShortName)}, nil
}

// ApplySystemRole grants or removes a system-level role.
func (a *EnrolApplier) ApplySystemRole(ctx context.Context, tenantID, userID uuid.UUID, roleShortName string, removing bool) (ApplyResult, error) {
	if !a.authz.Can(tenantID, tenant.CapRoleAssign) {
		return ApplyResult{}, shared.NewDomainError(shared.CodePermissionDenied, "no permission to assign system roles")
	}

	role, err := a.roles.FindByShortName(ctx, roleShortName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ApplyResult{}, shared.NewDomainError(shared.CodeExternalResource,
				fmt.Sprintf("role '%s' not found", roleShortName))
		}
		return ApplyResult{}, err
	}
	if !role.AssignableAtSystem {
		return ApplyResult{}, shared.NewDomainError(shared.CodeValidation,
			fmt.Sprintf("role '%s' is not assignable at system level", roleShortName))
	}

	has, err := a.enrolments.HasSystemRole(ctx, userID, role.ID)
	if err != nil {
		return ApplyResult{}, err
	}

	if removing {
		if !has {
			return ApplyResult{Status: StatusAlreadyApplied, Message: fmt.Sprintf("role '%s' not assigned", roleShortName)}, nil
		}
		if err := a.enrolments.UnassignSystemRole(ctx, userID, role.ID); err != nil {
			return ApplyResult{}, err
		}
		return ApplyResult{Status: StatusRemoved, Message: fmt.Sprintf("role '%s' removed", roleShortName)}, nil
	}

	if has {
		return ApplyResult{Status: StatusAlreadyApplied, Message: fmt.Sprintf("role '%s' already assigned", roleShortName)}, nil
	}
	if err := a.enrolments.AssignSystemRole(ctx, userID, role.ID); err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{Status: StatusApplied, Message: fmt.Sprintf("role '%s' assigned", roleShortName)}, nil
}

// resolveRole picks the role for an enrolment: explicit role column, legacy
// numeric type, then the course default.
func (a *EnrolApplier) resolveRole(ctx context.Context, course *enrol.Course, spec EnrolmentSpec) (uuid.UUID, error) {
	if spec.RoleShortName != "" {
		role, err := a.roles.FindByShortName(ctx, spec.RoleShortName)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return uuid.Nil, shared.NewDomainError(shared.CodeExternalResource,
					fmt.Sprintf("role '%s' not found", spec.RoleShortName))
			}
			return uuid.Nil, err
		}
		return role.ID, nil
	}

	if spec.TypeCode != "" {
		archetype, ok := enrol.LegacyTypeRole(spec.TypeCode)
		if !ok {
			return uuid.Nil, shared.NewDomainError(shared.CodeValidation,
				fmt.Sprintf("unknown enrolment type '%s'", spec.TypeCode))
		}
		role, err := a.roles.FindByArchetype(ctx, archetype)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return uuid.Nil, shared.NewDomainError(shared.CodeExternalResource,
					fmt.Sprintf("no role with archetype '%s'", archetype))
			}
			return uuid.Nil, err
		}
		return role.ID, nil
	}

	return course.DefaultRoleID, nil
}

// window computes the enrolment time window: start is today's midnight
// unless an explicit start parses; end is start plus the row period, else
// the course default period, else open-ended.
func (a *EnrolApplier) window(course *enrol.Course, spec EnrolmentSpec) (time.Time, time.Time) {
	now := a.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if spec.TimeStartRaw != "" {
		if secs, err := strconv.ParseInt(spec.TimeStartRaw, 10, 64); err == nil && secs > 0 {
			start = time.Unix(secs, 0)
		} else if t, err := time.ParseInLocation("2006-01-02", spec.TimeStartRaw, now.Location()); err == nil {
			start = t
		}
	}

	var end time.Time
	if spec.PeriodRaw != "" {
		if secs, err := strconv.ParseInt(spec.PeriodRaw, 10, 64); err == nil && secs > 0 {
			end = start.Add(time.Duration(secs) * time.Second)
		}
	}
	if end.IsZero() && course.DefaultPeriod > 0 {
		end = start.Add(course.DefaultPeriod)
	}

	return start, end
}
