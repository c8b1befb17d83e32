package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appgrouping "github.com/roster/backend/internal/application/grouping"
	"github.com/roster/backend/internal/domain/grouping"
	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
	"github.com/roster/backend/internal/infrastructure/auth"
	"github.com/roster/backend/internal/interfaces/http/dto"
	"github.com/roster/backend/internal/interfaces/http/middleware"
)

// GroupHandler serves the tenant-facing slice of the shared group table.
// Like the directory handler it assembles the service per request, because
// the scope and the capability set come from the caller's token.
type GroupHandler struct {
	BaseHandler
	groups    grouping.GroupRepository
	users     identity.UserRepository
	scopes    *ScopeBuilder
	contextID uuid.UUID
	logger    *zap.Logger
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(
	groups grouping.GroupRepository,
	users identity.UserRepository,
	scopes *ScopeBuilder,
	contextID uuid.UUID,
	logger *zap.Logger,
) *GroupHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupHandler{
		groups:    groups,
		users:     users,
		scopes:    scopes,
		contextID: contextID,
		logger:    logger,
	}
}

// ListGroups returns the page of groups under the caller's namespace prefix
func (h *GroupHandler) ListGroups(c *gin.Context) {
	svc, scope, ok := h.groupService(c)
	if !ok {
		return
	}

	req := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Search:   req.Search,
	}

	groups, total, err := svc.List(c.Request.Context(), scope, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, groupResponses(groups), total, filter.Page, filter.PageSize)
}

// GetGroup returns one group if it is visible to the caller's tenant
func (h *GroupHandler) GetGroup(c *gin.Context) {
	svc, scope, ok := h.groupService(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid group ID")
		return
	}

	group, err := svc.Get(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, groupResponse(group))
}

// CreateGroup creates a group under the caller's namespace prefix
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	svc, scope, ok := h.groupService(c)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	group, err := svc.Create(c.Request.Context(), scope, req.Name)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, groupResponse(group))
}

// AddGroupMember adds an in-scope identity to a writable group
func (h *GroupHandler) AddGroupMember(c *gin.Context) {
	svc, scope, ok := h.groupService(c)
	if !ok {
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid group ID")
		return
	}
	var req GroupMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if err := svc.AddMember(c.Request.Context(), scope, groupID, req.UserID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// RemoveGroupMember removes an in-scope identity from a writable group
func (h *GroupHandler) RemoveGroupMember(c *gin.Context) {
	svc, scope, ok := h.groupService(c)
	if !ok {
		return
	}

	groupID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid group ID")
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	if err := svc.RemoveMember(c.Request.Context(), scope, groupID, userID); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// groupService builds the per-request group service. On failure it writes the
// error response itself and returns ok=false.
func (h *GroupHandler) groupService(c *gin.Context) (*appgrouping.GroupService, *tenant.Scope, bool) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil {
		h.Unauthorized(c, "Authentication required")
		return nil, nil, false
	}
	operatorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return nil, nil, false
	}

	scope, _, err := h.scopes.Build(c.Request.Context(), operatorID, c.QueryMap("selected"))
	if err != nil {
		h.HandleError(c, err)
		return nil, nil, false
	}

	svc := appgrouping.NewGroupService(h.groups, h.users, auth.NewClaimsAuthorizer(claims), h.contextID, h.logger)
	return svc, scope, true
}

// RegisterRoutes registers all group routes
func (h *GroupHandler) RegisterRoutes(rg *gin.RouterGroup) {
	groups := rg.Group("/groups")
	{
		groups.GET("", h.ListGroups)
		groups.POST("", h.CreateGroup)
		groups.GET("/:id", h.GetGroup)
		groups.POST("/:id/members", h.AddGroupMember)
		groups.DELETE("/:id/members/:userId", h.RemoveGroupMember)
	}
}
