package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appidentity "github.com/roster/backend/internal/application/identity"
	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
	"github.com/roster/backend/internal/infrastructure/auth"
	"github.com/roster/backend/internal/interfaces/http/dto"
	"github.com/roster/backend/internal/interfaces/http/middleware"
)

// UserHandler serves the scoped identity directory. The tenant scope and the
// capability set are both per-request state, so the directory service is
// assembled fresh for every call instead of being injected at startup.
type UserHandler struct {
	BaseHandler
	users     identity.UserRepository
	directory tenant.Directory
	resolver  appidentity.CapabilityResolver
	scopes    *ScopeBuilder
	logger    *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users identity.UserRepository, directory tenant.Directory, resolver appidentity.CapabilityResolver, scopes *ScopeBuilder, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{
		users:     users,
		directory: directory,
		resolver:  resolver,
		scopes:    scopes,
		logger:    logger,
	}
}

// ListUsers returns the page of identities visible under the caller's scope
func (h *UserHandler) ListUsers(c *gin.Context) {
	svc, scope, ok := h.directoryService(c)
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

	users, total, err := svc.List(c.Request.Context(), scope, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, userResponses(users), total, filter.Page, filter.PageSize)
}

// GetUser returns one identity if it is visible under the caller's scope
func (h *UserHandler) GetUser(c *gin.Context) {
	svc, scope, ok := h.directoryService(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid user ID")
		return
	}

	user, err := svc.Get(c.Request.Context(), scope, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, userResponse(user))
}

// ListPeers returns the identities under the caller's scope that hold the
// upload capability themselves, the co-managers of the same tenant
func (h *UserHandler) ListPeers(c *gin.Context) {
	svc, scope, ok := h.directoryService(c)
	if !ok {
		return
	}

	peers, err := svc.Peers(c.Request.Context(), scope)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, userResponses(peers))
}

// directoryService builds the per-request directory service. On failure it
// writes the error response itself and returns ok=false.
func (h *UserHandler) directoryService(c *gin.Context) (*appidentity.DirectoryService, *tenant.Scope, bool) {
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

	svc := appidentity.NewDirectoryService(h.users, h.directory, h.resolver, auth.NewClaimsAuthorizer(claims), h.logger)
	return svc, scope, true
}

// RegisterRoutes registers all user directory routes
func (h *UserHandler) RegisterRoutes(rg *gin.RouterGroup) {
	users := rg.Group("/users")
	{
		users.GET("", h.ListUsers)
		users.GET("/peers", h.ListPeers)
		users.GET("/:id", h.GetUser)
	}
}
