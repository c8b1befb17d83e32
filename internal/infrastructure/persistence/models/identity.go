package models

import (
	"encoding/json"
	"fmt"

	"github.com/roster/backend/internal/domain/identity"
)

// UserModel is the persistence model for the User domain entity. Profile
// attributes are stored as a jsonb document keyed by attribute name.
type UserModel struct {
	BaseModel
	Realm              string `gorm:"type:varchar(100);not null;uniqueIndex:idx_users_realm_username,priority:1"`
	Username           string `gorm:"type:varchar(100);not null;uniqueIndex:idx_users_realm_username,priority:2"`
	Email              string `gorm:"type:varchar(200);index"`
	FirstName          string `gorm:"type:varchar(100)"`
	LastName           string `gorm:"type:varchar(100)"`
	Auth               string `gorm:"type:varchar(20);not null;default:'manual'"`
	Suspended          bool   `gorm:"not null;default:false"`
	Confirmed          bool   `gorm:"not null;default:false"`
	Deleted            bool   `gorm:"not null;default:false;index"`
	Protected          bool   `gorm:"not null;default:false"`
	PasswordHash       string `gorm:"type:varchar(255)"`
	MustChangePassword bool   `gorm:"not null;default:false"`
	Lang               string `gorm:"type:varchar(30)"`
	AttrsJSON          string `gorm:"column:attrs;type:jsonb;not null;default:'{}'"`
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts the persistence model to a domain User entity.
func (m *UserModel) ToDomain() (*identity.User, error) {
	attrs := make(map[string]identity.AttrValue)
	if m.AttrsJSON != "" {
		if err := json.Unmarshal([]byte(m.AttrsJSON), &attrs); err != nil {
			return nil, fmt.Errorf("failed to decode user attrs: %w", err)
		}
	}
	return &identity.User{
		BaseEntity:         m.BaseModel.ToDomain(),
		Realm:              m.Realm,
		Username:           m.Username,
		Email:              m.Email,
		FirstName:          m.FirstName,
		LastName:           m.LastName,
		Auth:               m.Auth,
		Suspended:          m.Suspended,
		Confirmed:          m.Confirmed,
		Deleted:            m.Deleted,
		Protected:          m.Protected,
		PasswordHash:       m.PasswordHash,
		MustChangePassword: m.MustChangePassword,
		Lang:               m.Lang,
		Attrs:              attrs,
	}, nil
}

// FromDomain populates the persistence model from a domain User entity.
func (m *UserModel) FromDomain(u *identity.User) error {
	attrs := u.Attrs
	if attrs == nil {
		attrs = make(map[string]identity.AttrValue)
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode user attrs: %w", err)
	}
	m.FromDomainBaseEntity(u.BaseEntity)
	m.Realm = u.Realm
	m.Username = u.Username
	m.Email = u.Email
	m.FirstName = u.FirstName
	m.LastName = u.LastName
	m.Auth = u.Auth
	m.Suspended = u.Suspended
	m.Confirmed = u.Confirmed
	m.Deleted = u.Deleted
	m.Protected = u.Protected
	m.PasswordHash = u.PasswordHash
	m.MustChangePassword = u.MustChangePassword
	m.Lang = u.Lang
	m.AttrsJSON = string(raw)
	return nil
}

// UserModelFromDomain creates a new persistence model from a domain User
// entity.
func UserModelFromDomain(u *identity.User) (*UserModel, error) {
	m := &UserModel{}
	if err := m.FromDomain(u); err != nil {
		return nil, err
	}
	return m, nil
}
