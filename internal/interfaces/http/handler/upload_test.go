package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
	"github.com/roster/backend/internal/infrastructure/auth"
	"github.com/roster/backend/internal/infrastructure/cache"
	"github.com/roster/backend/internal/infrastructure/config"
	"github.com/roster/backend/internal/interfaces/http/middleware"
)

func testUploadConfig() config.UploadConfig {
	return config.UploadConfig{
		MaxFileSize:      1 << 20,
		MaxErrors:        100,
		DefaultOperation: "addnew",
		DefaultUpdate:    "nochanges",
		PasswordReset:    "weak",
		MarkMode:         "none",
		DedupTTL:         time.Hour,
		ReportTTL:        time.Hour,
	}
}

type uploadTestEnv struct {
	userRepo   *MockUserRepository
	groupRepo  *MockGroupRepository
	dedup      *cache.InMemoryDedupStore
	reports    *cache.InMemoryReportStore
	handler    *UploadHandler
	jwtService *auth.JWTService
	router     *gin.Engine
}

func newUploadTestEnv(t *testing.T) *uploadTestEnv {
	t.Helper()
	env := &uploadTestEnv{
		userRepo:   new(MockUserRepository),
		groupRepo:  new(MockGroupRepository),
		dedup:      cache.NewInMemoryDedupStore(),
		reports:    cache.NewInMemoryReportStore(),
		jwtService: newTestJWTService(),
	}
	t.Cleanup(func() { _ = env.dedup.Close() })

	revoker := auth.NewSessionRevoker(auth.NewInMemorySessionStore(), time.Hour)
	env.handler = NewUploadHandler(
		env.userRepo,
		env.groupRepo,
		new(MockCourseRepository),
		new(MockRoleRepository),
		new(MockEnrolmentRepository),
		stubTxRunner{},
		revoker,
		env.dedup,
		env.reports,
		NewScopeBuilder(env.userRepo, testTenantConfig()),
		testUploadConfig(),
		uuid.New(),
		nil,
	)

	gin.SetMode(gin.TestMode)
	env.router = gin.New()
	api := env.router.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(env.jwtService))
	env.handler.RegisterRoutes(api)
	return env
}

// multipartUpload builds a multipart request body carrying the CSV file and
// optional form fields.
func multipartUpload(t *testing.T, csv string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "users.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUploadHandler_Upload_CreatesUser(t *testing.T) {
	env := newUploadTestEnv(t)
	operator := newTestOperator(t)
	env.userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)
	env.userRepo.On("FindByUsername", mock.Anything, "main", "student21").Return(nil, shared.ErrNotFound)
	env.userRepo.On("FindByEmailFold", mock.Anything, "s21@example.org").Return(nil, shared.ErrNotFound)
	env.userRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	token := issueToken(t, env.jwtService, operator, tenant.CapUploadUsers, tenant.CapUserCreate)

	csv := "username,firstname,lastname,email\nstudent21,Stu,Dent,s21@example.org\n"
	body, contentType := multipartUpload(t, csv, map[string]string{"operation": "addnew"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.NotEmpty(t, data["batch_id"])

	report := data["report"].(map[string]interface{})
	assert.Equal(t, float64(1), report["total"])
	assert.Equal(t, float64(1), report["created"])
	env.userRepo.AssertExpectations(t)
}

func TestUploadHandler_Upload_DuplicateFileRejected(t *testing.T) {
	env := newUploadTestEnv(t)
	operator := newTestOperator(t)
	env.userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)
	env.userRepo.On("FindByUsername", mock.Anything, "main", "student21").Return(nil, shared.ErrNotFound)
	env.userRepo.On("FindByEmailFold", mock.Anything, "s21@example.org").Return(nil, shared.ErrNotFound)
	env.userRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	token := issueToken(t, env.jwtService, operator, tenant.CapUploadUsers, tenant.CapUserCreate)
	csv := "username,firstname,lastname,email\nstudent21,Stu,Dent,s21@example.org\n"

	send := func() *httptest.ResponseRecorder {
		body, contentType := multipartUpload(t, csv, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	first := send()
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := send()
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestUploadHandler_Upload_WithoutCapability(t *testing.T) {
	env := newUploadTestEnv(t)
	operator := newTestOperator(t)
	env.userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)

	token := issueToken(t, env.jwtService, operator, tenant.CapGroupView)

	csv := "username,firstname,lastname,email\nstudent21,Stu,Dent,s21@example.org\n"
	body, contentType := multipartUpload(t, csv, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	env.userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUploadHandler_Upload_UnknownColumn(t *testing.T) {
	env := newUploadTestEnv(t)
	operator := newTestOperator(t)
	env.userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)

	token := issueToken(t, env.jwtService, operator, tenant.CapUploadUsers)

	csv := "username,favorite_color\nstudent21,green\n"
	body, contentType := multipartUpload(t, csv, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadHandler_Upload_MissingFile(t *testing.T) {
	env := newUploadTestEnv(t)
	operator := newTestOperator(t)

	token := issueToken(t, env.jwtService, operator, tenant.CapUploadUsers)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadHandler_Upload_InvalidOperation(t *testing.T) {
	env := newUploadTestEnv(t)
	operator := newTestOperator(t)

	token := issueToken(t, env.jwtService, operator, tenant.CapUploadUsers)

	csv := "username\nstudent21\n"
	body, contentType := multipartUpload(t, csv, map[string]string{"operation": "replace-everything"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadHandler_Validate(t *testing.T) {
	env := newUploadTestEnv(t)
	operator := newTestOperator(t)

	token := issueToken(t, env.jwtService, operator, tenant.CapUploadUsers)

	csv := "username,email,profile_field_department,cohort1\nstudent21,s21@example.org,org7,math\n"
	body, contentType := multipartUpload(t, csv, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads/validate", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["total_rows"])

	columns := data["columns"].([]interface{})
	require.Len(t, columns, 4)
	profileCol := columns[2].(map[string]interface{})
	assert.Equal(t, "profile_field", profileCol["kind"])
	assert.Equal(t, "department", profileCol["key"])
	groupCol := columns[3].(map[string]interface{})
	assert.Equal(t, "group", groupCol["kind"])
}

func TestUploadHandler_GetReport(t *testing.T) {
	env := newUploadTestEnv(t)
	operator := newTestOperator(t)
	env.userRepo.On("FindByID", mock.Anything, operator.ID).Return(operator, nil)
	env.userRepo.On("FindByUsername", mock.Anything, "main", "student21").Return(nil, shared.ErrNotFound)
	env.userRepo.On("FindByEmailFold", mock.Anything, "s21@example.org").Return(nil, shared.ErrNotFound)
	env.userRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	token := issueToken(t, env.jwtService, operator, tenant.CapUploadUsers, tenant.CapUserCreate)

	csv := "username,firstname,lastname,email\nstudent21,Stu,Dent,s21@example.org\n"
	body, contentType := multipartUpload(t, csv, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var uploadResponse map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploadResponse))
	batchID := uploadResponse["data"].(map[string]interface{})["batch_id"].(string)

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/uploads/reports/"+batchID, nil)
	getReq.Header.Set("Authorization", "Bearer "+token)
	getW := httptest.NewRecorder()
	env.router.ServeHTTP(getW, getReq)

	require.Equal(t, http.StatusOK, getW.Code)

	var reportResponse map[string]interface{}
	require.NoError(t, json.Unmarshal(getW.Body.Bytes(), &reportResponse))
	data := reportResponse["data"].(map[string]interface{})
	assert.Equal(t, batchID, data["batch_id"])
	report := data["report"].(map[string]interface{})
	assert.Equal(t, float64(1), report["created"])
}

func TestUploadHandler_GetReport_NotFound(t *testing.T) {
	env := newUploadTestEnv(t)
	operator := newTestOperator(t)

	token := issueToken(t, env.jwtService, operator, tenant.CapUploadUsers)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads/reports/"+uuid.New().String(), nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
