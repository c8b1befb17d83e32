// Package grouping models the flat, shared group table and the memberships
// hanging off it. Several tenants share one namespace; the tenant prefix and
// the readonly marker are string-encoded into the stored idnumber, but inside
// the domain a Group carries them as first-class fields. Encoding and
// decoding happen only at the persistence boundary, through the scope codec.
package grouping

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
)

// Group is one entry of the shared group table.
type Group struct {
	shared.BaseEntity
	// IDNumber is the encoded external key: prefix + optional readonly
	// marker + base name.
	IDNumber string
	Name     string
	// Prefix, Readonly and BaseName are the decoded form of IDNumber for
	// the scope the group was loaded under.
	Prefix   string
	Readonly bool
	BaseName string
	// Component marks externally managed groups; non-empty means immutable
	// for tenants.
	Component string
	Visible   bool
	ContextID uuid.UUID
}

// External reports whether the group is owned by an external component.
func (g *Group) External() bool {
	return g.Component != ""
}

// Decode fills the decoded fields from IDNumber using the given scope.
func (g *Group) Decode(scope *tenant.Scope) {
	g.Readonly = scope.IsReadonly(g.IDNumber)
	g.BaseName = scope.StripPrefix(g.IDNumber, true)
	g.Prefix = strings.TrimSuffix(g.IDNumber, g.BaseName)
	if g.Readonly {
		g.Prefix = strings.TrimSuffix(g.Prefix, "r_")
	}
}

// NewGroup creates a group with identical name and idnumber, the form bulk
// upload auto-creates.
func NewGroup(idnumber string, contextID uuid.UUID) *Group {
	return &Group{
		BaseEntity: shared.NewBaseEntity(),
		IDNumber:   idnumber,
		Name:       idnumber,
		Visible:    true,
		ContextID:  contextID,
	}
}

// Membership is one (group, user) pair. Adding an existing pair is a no-op.
type Membership struct {
	GroupID uuid.UUID
	UserID  uuid.UUID
}

// GroupRepository is the persistence port for groups and memberships.
type GroupRepository interface {
	Create(ctx context.Context, group *Group) error
	Update(ctx context.Context, group *Group) error

	FindByID(ctx context.Context, id uuid.UUID) (*Group, error)
	FindByIDNumber(ctx context.Context, idnumber string) (*Group, error)
	// FindByIDNumberPattern returns the group whose idnumber matches the
	// anchored regular expression, or shared.ErrNotFound.
	FindByIDNumberPattern(ctx context.Context, pattern string) (*Group, error)
	ExistsByIDNumber(ctx context.Context, idnumber string) (bool, error)
	// FindAllByPrefixPattern lists groups under a prefix pattern for
	// tenant-visible listings.
	FindAllByPrefixPattern(ctx context.Context, pattern string, filter shared.Filter) ([]*Group, int64, error)

	// AddMember adds a membership idempotently; adding twice is a no-op.
	AddMember(ctx context.Context, groupID, userID uuid.UUID) error
	IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error
}
