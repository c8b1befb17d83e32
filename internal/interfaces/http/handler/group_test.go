package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roster/backend/internal/domain/grouping"
	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/tenant"
	"github.com/roster/backend/internal/infrastructure/auth"
	"github.com/roster/backend/internal/interfaces/http/middleware"
)

func setupGroupRouter(h *GroupHandler, jwtService *auth.JWTService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(jwtService))
	h.RegisterRoutes(api)
	return r
}

func newGroupTestHandler(userRepo *MockUserRepository, groupRepo *MockGroupRepository, contextID uuid.UUID) *GroupHandler {
	return NewGroupHandler(groupRepo, userRepo, NewScopeBuilder(userRepo, testTenantConfig()), contextID, nil)
}

func TestGroupHandler_ListGroups_DecodesUnderPrefix(t *testing.T) {
	userRepo := new(MockUserRepository)
	groupRepo := new(MockGroupRepository)
	operator := newTestOperator(t)
	userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)

	contextID := uuid.New()
	stored := grouping.NewGroup("org7_math", contextID)
	readonly := grouping.NewGroup("org7_r_physics", contextID)
	groupRepo.On("FindAllByPrefixPattern", mock.Anything, "^org7_(r_)?", mock.Anything).
		Return([]*grouping.Group{stored, readonly}, int64(2), nil)

	jwtService := newTestJWTService()
	handler := newGroupTestHandler(userRepo, groupRepo, contextID)
	router := setupGroupRouter(handler, jwtService)

	token := issueToken(t, jwtService, operator, tenant.CapGroupView)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/groups", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].([]interface{})
	require.Len(t, data, 2)

	first := data[0].(map[string]interface{})
	assert.Equal(t, "math", first["base_name"])
	assert.False(t, first["readonly"].(bool))

	second := data[1].(map[string]interface{})
	assert.Equal(t, "physics", second["base_name"])
	assert.True(t, second["readonly"].(bool))
}

func TestGroupHandler_CreateGroup(t *testing.T) {
	userRepo := new(MockUserRepository)
	groupRepo := new(MockGroupRepository)
	operator := newTestOperator(t)
	userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)

	contextID := uuid.New()
	groupRepo.On("ExistsByIDNumber", mock.Anything, "org7_chemistry").Return(false, nil)
	groupRepo.On("Create", mock.Anything, mock.MatchedBy(func(g *grouping.Group) bool {
		return g.IDNumber == "org7_chemistry" && g.ContextID == contextID
	})).Return(nil)

	jwtService := newTestJWTService()
	handler := newGroupTestHandler(userRepo, groupRepo, contextID)
	router := setupGroupRouter(handler, jwtService)

	token := issueToken(t, jwtService, operator, tenant.CapGroupManage)
	body, _ := json.Marshal(CreateGroupRequest{Name: "chemistry"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "chemistry", data["base_name"])
	groupRepo.AssertExpectations(t)
}

func TestGroupHandler_CreateGroup_Conflict(t *testing.T) {
	userRepo := new(MockUserRepository)
	groupRepo := new(MockGroupRepository)
	operator := newTestOperator(t)
	userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)
	groupRepo.On("ExistsByIDNumber", mock.Anything, "org7_chemistry").Return(true, nil)

	jwtService := newTestJWTService()
	handler := newGroupTestHandler(userRepo, groupRepo, uuid.New())
	router := setupGroupRouter(handler, jwtService)

	token := issueToken(t, jwtService, operator, tenant.CapGroupManage)
	body, _ := json.Marshal(CreateGroupRequest{Name: "chemistry"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGroupHandler_CreateGroup_WithoutCapability(t *testing.T) {
	userRepo := new(MockUserRepository)
	groupRepo := new(MockGroupRepository)
	operator := newTestOperator(t)
	userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)

	jwtService := newTestJWTService()
	handler := newGroupTestHandler(userRepo, groupRepo, uuid.New())
	router := setupGroupRouter(handler, jwtService)

	token := issueToken(t, jwtService, operator, tenant.CapGroupView)
	body, _ := json.Marshal(CreateGroupRequest{Name: "chemistry"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	groupRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGroupHandler_AddMember(t *testing.T) {
	userRepo := new(MockUserRepository)
	groupRepo := new(MockGroupRepository)
	operator := newTestOperator(t)
	member := newScopedIdentity(t, "student17")
	userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)
	userRepo.On("FindByID", mock.Anything, member.ID).Return(member, nil)

	contextID := uuid.New()
	group := grouping.NewGroup("org7_math", contextID)
	groupRepo.On("FindByID", mock.Anything, group.ID).Return(group, nil)
	groupRepo.On("AddMember", mock.Anything, group.ID, member.ID).Return(nil)

	jwtService := newTestJWTService()
	handler := newGroupTestHandler(userRepo, groupRepo, contextID)
	router := setupGroupRouter(handler, jwtService)

	token := issueToken(t, jwtService, operator, tenant.CapGroupAssign)
	body, _ := json.Marshal(GroupMemberRequest{UserID: member.ID})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups/"+group.ID.String()+"/members", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	groupRepo.AssertExpectations(t)
}

func TestGroupHandler_AddMember_ReadonlyGroup(t *testing.T) {
	userRepo := new(MockUserRepository)
	groupRepo := new(MockGroupRepository)
	operator := newTestOperator(t)
	member := newScopedIdentity(t, "student17")
	userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)
	userRepo.On("FindByID", mock.Anything, member.ID).Return(member, nil)

	contextID := uuid.New()
	group := grouping.NewGroup("org7_r_physics", contextID)
	groupRepo.On("FindByID", mock.Anything, group.ID).Return(group, nil)

	jwtService := newTestJWTService()
	handler := newGroupTestHandler(userRepo, groupRepo, contextID)
	router := setupGroupRouter(handler, jwtService)

	token := issueToken(t, jwtService, operator, tenant.CapGroupAssign)
	body, _ := json.Marshal(GroupMemberRequest{UserID: member.ID})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups/"+group.ID.String()+"/members", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	groupRepo.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything)
}

func TestGroupHandler_GetGroup_ForeignGroupLooksMissing(t *testing.T) {
	userRepo := new(MockUserRepository)
	groupRepo := new(MockGroupRepository)
	operator := newTestOperator(t)
	userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)

	contextID := uuid.New()
	foreign := grouping.NewGroup("org9_math", contextID)
	groupRepo.On("FindByID", mock.Anything, foreign.ID).Return(foreign, nil)

	jwtService := newTestJWTService()
	handler := newGroupTestHandler(userRepo, groupRepo, contextID)
	router := setupGroupRouter(handler, jwtService)

	token := issueToken(t, jwtService, operator, tenant.CapGroupView)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/groups/"+foreign.ID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGroupHandler_RemoveMember(t *testing.T) {
	userRepo := new(MockUserRepository)
	groupRepo := new(MockGroupRepository)
	operator := newTestOperator(t)
	member := newScopedIdentity(t, "student17")
	userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)
	userRepo.On("FindByID", mock.Anything, member.ID).Return(member, nil)

	contextID := uuid.New()
	group := grouping.NewGroup("org7_math", contextID)
	groupRepo.On("FindByID", mock.Anything, group.ID).Return(group, nil)
	groupRepo.On("RemoveMember", mock.Anything, group.ID, member.ID).Return(nil)

	jwtService := newTestJWTService()
	handler := newGroupTestHandler(userRepo, groupRepo, contextID)
	router := setupGroupRouter(handler, jwtService)

	token := issueToken(t, jwtService, operator, tenant.CapGroupAssign)
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/groups/"+group.ID.String()+"/members/"+member.ID.String(), nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	groupRepo.AssertExpectations(t)
}

func TestGroupHandler_ListGroups_EmptyScopeSeesNothing(t *testing.T) {
	userRepo := new(MockUserRepository)
	groupRepo := new(MockGroupRepository)

	// An operator without a prefix attribute derives no namespace.
	operator, err := identity.NewUser("main", "noprefix")
	require.NoError(t, err)
	operator.Confirmed = true
	operator.SetAttr("department", identity.NewScalarAttr("org7"))
	userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)

	jwtService := newTestJWTService()
	handler := newGroupTestHandler(userRepo, groupRepo, uuid.New())
	router := setupGroupRouter(handler, jwtService)

	token := issueToken(t, jwtService, operator, tenant.CapGroupView)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/groups", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	meta := response["meta"].(map[string]interface{})
	assert.Equal(t, float64(0), meta["total"])
	groupRepo.AssertNotCalled(t, "FindAllByPrefixPattern", mock.Anything, mock.Anything, mock.Anything)
}
