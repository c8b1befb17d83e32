package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/roster/backend/internal/domain/grouping"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/infrastructure/persistence/models"
)

// GormGroupRepository implements grouping.GroupRepository using GORM.
// Pattern lookups use the Postgres regular expression operator; idnumbers
// carry the tenant prefix so anchored patterns stay cheap on the unique
// index.
type GormGroupRepository struct {
	db *gorm.DB
}

var _ grouping.GroupRepository = (*GormGroupRepository)(nil)

// NewGormGroupRepository creates a new GormGroupRepository
func NewGormGroupRepository(db *gorm.DB) *GormGroupRepository {
	return &GormGroupRepository{db: db}
}

// Create creates a new group
func (r *GormGroupRepository) Create(ctx context.Context, group *grouping.Group) error {
	model := models.GroupModelFromDomain(group)
	return dbFrom(ctx, r.db).Create(model).Error
}

// Update updates an existing group
func (r *GormGroupRepository) Update(ctx context.Context, group *grouping.Group) error {
	model := models.GroupModelFromDomain(group)
	result := dbFrom(ctx, r.db).Save(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a group by ID
func (r *GormGroupRepository) FindByID(ctx context.Context, id uuid.UUID) (*grouping.Group, error) {
	var model models.GroupModel
	if err := dbFrom(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDNumber finds a group by its exact encoded idnumber
func (r *GormGroupRepository) FindByIDNumber(ctx context.Context, idnumber string) (*grouping.Group, error) {
	var model models.GroupModel
	if err := dbFrom(ctx, r.db).
		Where("idnumber = ?", idnumber).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDNumberPattern finds the group whose idnumber matches the anchored
// regular expression
func (r *GormGroupRepository) FindByIDNumberPattern(ctx context.Context, pattern string) (*grouping.Group, error) {
	var model models.GroupModel
	if err := dbFrom(ctx, r.db).
		Where("idnumber ~ ?", pattern).
		Order("idnumber ASC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistsByIDNumber reports whether a group with the exact idnumber exists
func (r *GormGroupRepository) ExistsByIDNumber(ctx context.Context, idnumber string) (bool, error) {
	var count int64
	if err := dbFrom(ctx, r.db).Model(&models.GroupModel{}).
		Where("idnumber = ?", idnumber).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindAllByPrefixPattern lists groups under a prefix pattern with pagination
func (r *GormGroupRepository) FindAllByPrefixPattern(ctx context.Context, pattern string, filter shared.Filter) ([]*grouping.Group, int64, error) {
	query := dbFrom(ctx, r.db).Model(&models.GroupModel{}).
		Where("idnumber ~ ?", pattern)
	if filter.Search != "" {
		query = query.Where("name ILIKE ?", "%"+filter.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := ValidateSortField(filter.OrderBy, GroupSortFields, "idnumber")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query = query.Order(orderBy + " " + orderDir)
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var groupModels []models.GroupModel
	if err := query.Find(&groupModels).Error; err != nil {
		return nil, 0, err
	}
	groups := make([]*grouping.Group, len(groupModels))
	for i := range groupModels {
		groups[i] = groupModels[i].ToDomain()
	}
	return groups, total, nil
}

// AddMember adds a membership; adding twice is a no-op
func (r *GormGroupRepository) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	member := models.GroupMemberModel{
		GroupID:   groupID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	return dbFrom(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&member).Error
}

// IsMember reports whether the user belongs to the group
func (r *GormGroupRepository) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var count int64
	if err := dbFrom(ctx, r.db).Model(&models.GroupMemberModel{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// RemoveMember removes a membership
func (r *GormGroupRepository) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	return dbFrom(ctx, r.db).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupMemberModel{}).Error
}
