// Package models holds the GORM models backing the roster tables. Domain
// entities stay free of ORM tags; mappers in the repository layer convert
// between the two.
//
// Files:
//   - base.go: shared model embedding (ID, timestamps, soft delete)
//   - identity.go: users, credentials and capability assignments
//   - grouping.go: tenant-prefixed groups and memberships
//   - enrol.go: courses, roles and enrolments touched by bulk uploads
package models
