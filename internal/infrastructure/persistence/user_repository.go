package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
	"github.com/roster/backend/internal/infrastructure/persistence/models"
)

// GormUserRepository implements identity.UserRepository using GORM
type GormUserRepository struct {
	db *gorm.DB
}

var (
	_ identity.UserRepository = (*GormUserRepository)(nil)
	_ tenant.Directory        = (*GormUserRepository)(nil)
)

// NewGormUserRepository creates a new GormUserRepository
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Create creates a new user
func (r *GormUserRepository) Create(ctx context.Context, user *identity.User) error {
	model, err := models.UserModelFromDomain(user)
	if err != nil {
		return err
	}
	return dbFrom(ctx, r.db).Create(model).Error
}

// Update updates an existing user
func (r *GormUserRepository) Update(ctx context.Context, user *identity.User) error {
	model, err := models.UserModelFromDomain(user)
	if err != nil {
		return err
	}
	result := dbFrom(ctx, r.db).Save(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete marks a user deleted. The record is kept so the username stays
// reserved within the realm.
func (r *GormUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := dbFrom(ctx, r.db).Model(&models.UserModel{}).
		Where("id = ? AND deleted = false", id).
		Update("deleted", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID finds a user by ID
func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	var model models.UserModel
	if err := dbFrom(ctx, r.db).First(&model, "id = ? AND deleted = false", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByUsername finds a user by username within the realm
func (r *GormUserRepository) FindByUsername(ctx context.Context, realm, username string) (*identity.User, error) {
	var model models.UserModel
	if err := dbFrom(ctx, r.db).
		Where("realm = ? AND username = ? AND deleted = false", realm, username).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindAllByUsername returns every record matching the username within the
// realm.
func (r *GormUserRepository) FindAllByUsername(ctx context.Context, realm, username string) ([]*identity.User, error) {
	var userModels []models.UserModel
	if err := dbFrom(ctx, r.db).
		Where("realm = ? AND username = ? AND deleted = false", realm, username).
		Find(&userModels).Error; err != nil {
		return nil, err
	}
	users := make([]*identity.User, 0, len(userModels))
	for i := range userModels {
		user, err := userModels[i].ToDomain()
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// FindByEmailFold finds a user by email under case folding
func (r *GormUserRepository) FindByEmailFold(ctx context.Context, email string) (*identity.User, error) {
	if email == "" {
		return nil, shared.ErrNotFound
	}
	var model models.UserModel
	if err := dbFrom(ctx, r.db).
		Where("LOWER(email) = ? AND deleted = false", strings.ToLower(email)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindAll lists users in the realm with pagination
func (r *GormUserRepository) FindAll(ctx context.Context, realm string, filter shared.Filter) ([]*identity.User, int64, error) {
	query := dbFrom(ctx, r.db).Model(&models.UserModel{}).
		Where("realm = ? AND deleted = false", realm)
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where(
			"username ILIKE ? OR email ILIKE ? OR first_name ILIKE ? OR last_name ILIKE ?",
			pattern, pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := ValidateSortField(filter.OrderBy, UserSortFields, "username")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query = query.Order(orderBy + " " + orderDir)
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var userModels []models.UserModel
	if err := query.Find(&userModels).Error; err != nil {
		return nil, 0, err
	}
	users := make([]*identity.User, 0, len(userModels))
	for i := range userModels {
		user, err := userModels[i].ToDomain()
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	return users, total, nil
}

// FindAllScoped lists users in the realm matching the scope filter, with
// pagination. Linked-field conditions are pushed into the query as jsonb
// containment on the attrs document, then the exact predicate is applied per
// returned row. A deny-all filter short-circuits to an empty page.
func (r *GormUserRepository) FindAllScoped(ctx context.Context, realm string, match tenant.Filter, filter shared.Filter) ([]*identity.User, int64, error) {
	if match.DenyAll() {
		return []*identity.User{}, 0, nil
	}

	query := dbFrom(ctx, r.db).Model(&models.UserModel{}).
		Where("realm = ? AND deleted = false", realm)
	for _, cond := range match.Conditions() {
		if cond.Multi {
			// Any shared value satisfies a multi-valued condition.
			clauses := make([]string, 0, len(cond.Values))
			args := make([]any, 0, len(cond.Values)*2)
			for _, v := range cond.Values {
				doc, err := json.Marshal([]string{v})
				if err != nil {
					return nil, 0, err
				}
				clauses = append(clauses, "attrs -> ? -> 'values' @> ?")
				args = append(args, cond.Key, string(doc))
			}
			query = query.Where("("+strings.Join(clauses, " OR ")+")", args...)
			continue
		}
		doc, err := json.Marshal(cond.Values)
		if err != nil {
			return nil, 0, err
		}
		query = query.Where("attrs -> ? -> 'values' @> ?", cond.Key, string(doc))
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where(
			"username ILIKE ? OR email ILIKE ? OR first_name ILIKE ? OR last_name ILIKE ?",
			pattern, pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := ValidateSortField(filter.OrderBy, UserSortFields, "username")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query = query.Order(orderBy + " " + orderDir)
	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var userModels []models.UserModel
	if err := query.Find(&userModels).Error; err != nil {
		return nil, 0, err
	}
	users := make([]*identity.User, 0, len(userModels))
	for i := range userModels {
		user, err := userModels[i].ToDomain()
		if err != nil {
			return nil, 0, err
		}
		if !match.Matches(user.Attrs) {
			total--
			continue
		}
		users = append(users, user)
	}
	return users, total, nil
}

// ExistsByUsername reports whether the username is taken within the realm,
// deleted records included.
func (r *GormUserRepository) ExistsByUsername(ctx context.Context, realm, username string) (bool, error) {
	var count int64
	if err := dbFrom(ctx, r.db).Model(&models.UserModel{}).
		Where("realm = ? AND username = ?", realm, username).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
