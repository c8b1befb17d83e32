package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/roster/backend/internal/domain/grouping"
)

// GroupModel is the persistence model for the Group domain entity. Only the
// encoded idnumber is stored; the decoded prefix fields are derived per
// request from the caller's scope.
type GroupModel struct {
	BaseModel
	IDNumber  string    `gorm:"column:idnumber;type:varchar(255);not null;uniqueIndex"`
	Name      string    `gorm:"type:varchar(255);not null"`
	Component string    `gorm:"type:varchar(100)"`
	Visible   bool      `gorm:"not null;default:true"`
	ContextID uuid.UUID `gorm:"type:uuid;not null;index"`
}

// TableName returns the table name for GORM
func (GroupModel) TableName() string {
	return "groups"
}

// ToDomain converts the persistence model to a domain Group entity.
func (m *GroupModel) ToDomain() *grouping.Group {
	return &grouping.Group{
		BaseEntity: m.BaseModel.ToDomain(),
		IDNumber:   m.IDNumber,
		Name:       m.Name,
		Component:  m.Component,
		Visible:    m.Visible,
		ContextID:  m.ContextID,
	}
}

// FromDomain populates the persistence model from a domain Group entity.
func (m *GroupModel) FromDomain(g *grouping.Group) {
	m.FromDomainBaseEntity(g.BaseEntity)
	m.IDNumber = g.IDNumber
	m.Name = g.Name
	m.Component = g.Component
	m.Visible = g.Visible
	m.ContextID = g.ContextID
}

// GroupModelFromDomain creates a new persistence model from a domain Group
// entity.
func GroupModelFromDomain(g *grouping.Group) *GroupModel {
	m := &GroupModel{}
	m.FromDomain(g)
	return m
}

// GroupMemberModel is the persistence model for group membership.
type GroupMemberModel struct {
	GroupID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (GroupMemberModel) TableName() string {
	return "group_members"
}
