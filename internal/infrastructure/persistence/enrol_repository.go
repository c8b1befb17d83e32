package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/roster/backend/internal/domain/enrol"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/infrastructure/persistence/models"
)

// GormCourseRepository implements enrol.CourseRepository using GORM
type GormCourseRepository struct {
	db *gorm.DB
}

var _ enrol.CourseRepository = (*GormCourseRepository)(nil)

// NewGormCourseRepository creates a new GormCourseRepository
func NewGormCourseRepository(db *gorm.DB) *GormCourseRepository {
	return &GormCourseRepository{db: db}
}

// FindByShortName finds a course by its short name
func (r *GormCourseRepository) FindByShortName(ctx context.Context, shortName string) (*enrol.Course, error) {
	var model models.CourseModel
	if err := dbFrom(ctx, r.db).
		Where("short_name = ?", shortName).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GormRoleRepository implements enrol.RoleRepository using GORM
type GormRoleRepository struct {
	db *gorm.DB
}

var _ enrol.RoleRepository = (*GormRoleRepository)(nil)

// NewGormRoleRepository creates a new GormRoleRepository
func NewGormRoleRepository(db *gorm.DB) *GormRoleRepository {
	return &GormRoleRepository{db: db}
}

// FindByShortName finds a role by its short name
func (r *GormRoleRepository) FindByShortName(ctx context.Context, shortName string) (*enrol.Role, error) {
	var model models.RoleModel
	if err := dbFrom(ctx, r.db).
		Where("short_name = ?", shortName).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByArchetype finds the first role carrying the archetype
func (r *GormRoleRepository) FindByArchetype(ctx context.Context, archetype string) (*enrol.Role, error) {
	var model models.RoleModel
	if err := dbFrom(ctx, r.db).
		Where("archetype = ?", archetype).
		Order("short_name ASC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// GormEnrolmentRepository implements enrol.EnrolmentRepository using GORM
type GormEnrolmentRepository struct {
	db *gorm.DB
}

var _ enrol.EnrolmentRepository = (*GormEnrolmentRepository)(nil)

// NewGormEnrolmentRepository creates a new GormEnrolmentRepository
func NewGormEnrolmentRepository(db *gorm.DB) *GormEnrolmentRepository {
	return &GormEnrolmentRepository{db: db}
}

// Enrol records an enrolment; re-enrolling through the same method is a
// no-op
func (r *GormEnrolmentRepository) Enrol(ctx context.Context, enrolment *enrol.Enrolment) error {
	model := models.EnrolmentModelFromDomain(enrolment)
	return dbFrom(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_id"}, {Name: "user_id"}, {Name: "method"}},
			DoNothing: true,
		}).
		Create(model).Error
}

// IsEnrolled reports whether the user is enrolled in the course through any
// method
func (r *GormEnrolmentRepository) IsEnrolled(ctx context.Context, courseID, userID uuid.UUID) (bool, error) {
	var count int64
	if err := dbFrom(ctx, r.db).Model(&models.EnrolmentModel{}).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindEnrolment finds the user's enrolment in the course through the method
func (r *GormEnrolmentRepository) FindEnrolment(ctx context.Context, courseID, userID uuid.UUID, method string) (*enrol.Enrolment, error) {
	var model models.EnrolmentModel
	if err := dbFrom(ctx, r.db).
		Where("course_id = ? AND user_id = ? AND method = ?", courseID, userID, method).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpdateEnrolment updates an existing enrolment
func (r *GormEnrolmentRepository) UpdateEnrolment(ctx context.Context, enrolment *enrol.Enrolment) error {
	model := models.EnrolmentModelFromDomain(enrolment)
	result := dbFrom(ctx, r.db).Save(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AssignSystemRole grants a system-level role; assigning twice is a no-op
func (r *GormEnrolmentRepository) AssignSystemRole(ctx context.Context, userID, roleID uuid.UUID) error {
	assignment := models.SystemRoleModel{
		UserID:    userID,
		RoleID:    roleID,
		CreatedAt: time.Now(),
	}
	return dbFrom(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&assignment).Error
}

// UnassignSystemRole revokes a system-level role
func (r *GormEnrolmentRepository) UnassignSystemRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return dbFrom(ctx, r.db).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&models.SystemRoleModel{}).Error
}

// HasSystemRole reports whether the user holds the system-level role
func (r *GormEnrolmentRepository) HasSystemRole(ctx context.Context, userID, roleID uuid.UUID) (bool, error) {
	var count int64
	if err := dbFrom(ctx, r.db).Model(&models.SystemRoleModel{}).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindSystemRoles lists the roles the user holds at system level
func (r *GormEnrolmentRepository) FindSystemRoles(ctx context.Context, userID uuid.UUID) ([]*enrol.Role, error) {
	var roleModels []models.RoleModel
	if err := dbFrom(ctx, r.db).Model(&models.RoleModel{}).
		Joins("JOIN system_role_assignments ON system_role_assignments.role_id = roles.id").
		Where("system_role_assignments.user_id = ?", userID).
		Order("roles.short_name ASC").
		Find(&roleModels).Error; err != nil {
		return nil, err
	}

	roles := make([]*enrol.Role, len(roleModels))
	for i := range roleModels {
		roles[i] = roleModels[i].ToDomain()
	}
	return roles, nil
}
