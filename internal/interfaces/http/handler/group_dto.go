package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/roster/backend/internal/domain/grouping"
)

// CreateGroupRequest represents the request body for group creation. The name
// is the decoded base name; the tenant prefix is applied server-side.
type CreateGroupRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// GroupMemberRequest represents the request body for membership changes
type GroupMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// GroupResponse represents a group decoded for the caller's tenant
type GroupResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	BaseName  string    `json:"base_name"`
	Readonly  bool      `json:"readonly"`
	External  bool      `json:"external"`
	Component string    `json:"component,omitempty"`
	Visible   bool      `json:"visible"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func groupResponse(g *grouping.Group) GroupResponse {
	return GroupResponse{
		ID:        g.ID,
		Name:      g.Name,
		BaseName:  g.BaseName,
		Readonly:  g.Readonly,
		External:  g.External(),
		Component: g.Component,
		Visible:   g.Visible,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func groupResponses(groups []*grouping.Group) []GroupResponse {
	out := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupResponse(g))
	}
	return out
}
