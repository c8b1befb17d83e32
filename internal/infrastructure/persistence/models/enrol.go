package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/roster/backend/internal/domain/enrol"
)

// CourseModel is the persistence model for the Course domain entity.
type CourseModel struct {
	BaseModel
	ShortName string `gorm:"type:varchar(255);not null;uniqueIndex"`
	// DefaultRoleID may be the zero UUID when the course grants no role by
	// default.
	DefaultRoleID uuid.UUID `gorm:"type:uuid"`
	// DefaultPeriodSeconds is the default enrolment duration; zero means
	// open-ended.
	DefaultPeriodSeconds int64 `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (CourseModel) TableName() string {
	return "courses"
}

// ToDomain converts the persistence model to a domain Course entity.
func (m *CourseModel) ToDomain() *enrol.Course {
	return &enrol.Course{
		BaseEntity:    m.BaseModel.ToDomain(),
		ShortName:     m.ShortName,
		DefaultRoleID: m.DefaultRoleID,
		DefaultPeriod: time.Duration(m.DefaultPeriodSeconds) * time.Second,
	}
}

// RoleModel is the persistence model for the Role domain entity.
type RoleModel struct {
	BaseModel
	ShortName          string `gorm:"type:varchar(100);not null;uniqueIndex"`
	Archetype          string `gorm:"type:varchar(100);index"`
	AssignableAtSystem bool   `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (RoleModel) TableName() string {
	return "roles"
}

// ToDomain converts the persistence model to a domain Role entity.
func (m *RoleModel) ToDomain() *enrol.Role {
	return &enrol.Role{
		BaseEntity:         m.BaseModel.ToDomain(),
		ShortName:          m.ShortName,
		Archetype:          m.Archetype,
		AssignableAtSystem: m.AssignableAtSystem,
	}
}

// EnrolmentModel is the persistence model for the Enrolment domain entity.
type EnrolmentModel struct {
	BaseModel
	CourseID  uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrolments_course_user_method,priority:1"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrolments_course_user_method,priority:2;index"`
	Method    string     `gorm:"type:varchar(30);not null;uniqueIndex:idx_enrolments_course_user_method,priority:3"`
	RoleID    uuid.UUID  `gorm:"type:uuid"`
	Status    string     `gorm:"type:varchar(20);not null;default:'active'"`
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// TableName returns the table name for GORM
func (EnrolmentModel) TableName() string {
	return "enrolments"
}

// ToDomain converts the persistence model to a domain Enrolment entity.
func (m *EnrolmentModel) ToDomain() *enrol.Enrolment {
	e := &enrol.Enrolment{
		BaseEntity: m.BaseModel.ToDomain(),
		CourseID:   m.CourseID,
		UserID:     m.UserID,
		Method:     m.Method,
		RoleID:     m.RoleID,
		Status:     m.Status,
	}
	if m.TimeStart != nil {
		e.TimeStart = *m.TimeStart
	}
	if m.TimeEnd != nil {
		e.TimeEnd = *m.TimeEnd
	}
	return e
}

// FromDomain populates the persistence model from a domain Enrolment entity.
func (m *EnrolmentModel) FromDomain(e *enrol.Enrolment) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.CourseID = e.CourseID
	m.UserID = e.UserID
	m.Method = e.Method
	m.RoleID = e.RoleID
	m.Status = e.Status
	m.TimeStart = nil
	m.TimeEnd = nil
	if !e.TimeStart.IsZero() {
		ts := e.TimeStart
		m.TimeStart = &ts
	}
	if !e.TimeEnd.IsZero() {
		te := e.TimeEnd
		m.TimeEnd = &te
	}
}

// EnrolmentModelFromDomain creates a new persistence model from a domain
// Enrolment entity.
func EnrolmentModelFromDomain(e *enrol.Enrolment) *EnrolmentModel {
	m := &EnrolmentModel{}
	m.FromDomain(e)
	return m
}

// SystemRoleModel is the persistence model for system-level role
// assignments.
type SystemRoleModel struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoleID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SystemRoleModel) TableName() string {
	return "system_role_assignments"
}
