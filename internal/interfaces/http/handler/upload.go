package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roster/backend/internal/application/upload"
	"github.com/roster/backend/internal/domain/enrol"
	"github.com/roster/backend/internal/domain/grouping"
	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/tenant"
	"github.com/roster/backend/internal/infrastructure/auth"
	"github.com/roster/backend/internal/infrastructure/cache"
	"github.com/roster/backend/internal/infrastructure/config"
	"github.com/roster/backend/internal/infrastructure/csvimport"
	"github.com/roster/backend/internal/infrastructure/logger"
	"github.com/roster/backend/internal/interfaces/http/dto"
	"github.com/roster/backend/internal/interfaces/http/middleware"
)

// UploadHandler handles bulk identity upload endpoints. The reconciler and
// its collaborators are assembled per request because the capability set and
// the tenant scope both come from the caller's token.
type UploadHandler struct {
	BaseHandler
	users      identity.UserRepository
	groups     grouping.GroupRepository
	courses    enrol.CourseRepository
	roles      enrol.RoleRepository
	enrolments enrol.EnrolmentRepository
	tx         upload.TxRunner
	revoker    upload.SessionRevoker
	dedup      cache.DedupStore
	reports    cache.ReportStore
	scopes     *ScopeBuilder
	cfg        config.UploadConfig
	contextID  uuid.UUID
	logger     *zap.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(
	users identity.UserRepository,
	groups grouping.GroupRepository,
	courses enrol.CourseRepository,
	roles enrol.RoleRepository,
	enrolments enrol.EnrolmentRepository,
	tx upload.TxRunner,
	revoker upload.SessionRevoker,
	dedup cache.DedupStore,
	reports cache.ReportStore,
	scopes *ScopeBuilder,
	cfg config.UploadConfig,
	contextID uuid.UUID,
	logger *zap.Logger,
) *UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandler{
		users:      users,
		groups:     groups,
		courses:    courses,
		roles:      roles,
		enrolments: enrolments,
		tx:         tx,
		revoker:    revoker,
		dedup:      dedup,
		reports:    reports,
		scopes:     scopes,
		cfg:        cfg,
		contextID:  contextID,
		logger:     logger,
	}
}

// Upload processes a CSV upload batch and returns the batch report
func (h *UploadHandler) Upload(c *gin.Context) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil {
		h.Unauthorized(c, "Authentication required")
		return
	}
	operatorID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	opts, ok := h.parseOptions(c)
	if !ok {
		return
	}

	content, ok := h.readUploadFile(c)
	if !ok {
		return
	}

	scope, _, err := h.scopes.Build(c.Request.Context(), operatorID, c.PostFormMap("selected"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	// The same file resubmitted by the same tenant within the retention
	// window is rejected instead of processed twice.
	key := batchKey(content, scope.Tenant().ID)
	fresh, err := h.dedup.MarkProcessed(c.Request.Context(), key, h.cfg.DedupTTL)
	if err != nil {
		// Dedup is advisory; a store outage must not block uploads.
		h.logger.Warn("dedup store unavailable, skipping duplicate check", zap.Error(err))
	} else if !fresh {
		h.Error(c, http.StatusConflict, dto.ErrCodeDuplicateBatch, "This file has already been processed recently")
		return
	}

	cs, rows, ok := h.parseFile(c, content)
	if !ok {
		return
	}

	batchID := uuid.New().String()
	ctx, batchLog := logger.WithBatchID(c.Request.Context(), h.logger, batchID)

	authz := auth.NewClaimsAuthorizer(claims)
	resolver := upload.NewGroupResolver(h.groups, authz, h.contextID)
	applier := upload.NewEnrolApplier(resolver, h.groups, h.courses, h.roles, h.enrolments, authz)
	reconciler := upload.NewReconciler(h.users, applier, authz, h.tx, h.revoker, batchLog)

	report, err := reconciler.Process(ctx, scope, cs, rows, opts)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if err := h.reports.Save(ctx, batchID, report, h.cfg.ReportTTL); err != nil {
		// The report is already in hand; losing retention only breaks
		// later retrieval by ID.
		batchLog.Warn("failed to save batch report", zap.Error(err))
	}

	h.Success(c, UploadResponse{BatchID: batchID, Report: report})
}

// Validate parses and classifies an upload file without processing it
func (h *UploadHandler) Validate(c *gin.Context) {
	if claims := middleware.GetJWTClaims(c); claims == nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	content, ok := h.readUploadFile(c)
	if !ok {
		return
	}
	cs, rows, ok := h.parseFile(c, content)
	if !ok {
		return
	}

	h.Success(c, ValidateUploadResponse{
		TotalRows: len(rows),
		Columns:   columnResponses(cs),
	})
}

// GetReport returns the stored report of a finished batch
func (h *UploadHandler) GetReport(c *gin.Context) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	batchID := c.Param("id")
	if _, err := uuid.Parse(batchID); err != nil {
		h.BadRequest(c, "Invalid batch ID")
		return
	}

	report, err := h.reports.Get(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, cache.ErrReportNotFound) {
			h.NotFound(c, "Batch report not found")
			return
		}
		h.InternalError(c, "Failed to load batch report")
		return
	}

	h.Success(c, BatchReportResponse{BatchID: batchID, Report: report})
}

// parseOptions builds the batch options from the form, falling back to the
// configured defaults for everything the form leaves out. On failure it
// writes the error response itself and returns ok=false.
func (h *UploadHandler) parseOptions(c *gin.Context) (upload.Options, bool) {
	operation, err := upload.ParseOperationPolicy(c.DefaultPostForm("operation", h.cfg.DefaultOperation))
	if err != nil {
		h.BadRequest(c, "invalid operation, must be one of: addnew, addinc, addupdate, update")
		return upload.Options{}, false
	}
	update, err := upload.ParseUpdatePolicy(c.DefaultPostForm("update", h.cfg.DefaultUpdate))
	if err != nil {
		h.BadRequest(c, "invalid update policy, must be one of: nochanges, fileoverride, alloverride, missingonly")
		return upload.Options{}, false
	}
	reset, err := upload.ParsePasswordResetPolicy(c.DefaultPostForm("passwordreset", h.cfg.PasswordReset))
	if err != nil {
		h.BadRequest(c, "invalid passwordreset, must be one of: none, weak, all")
		return upload.Options{}, false
	}
	mark, err := upload.ParseMarkPolicy(c.DefaultPostForm("mark", h.cfg.MarkMode))
	if err != nil {
		h.BadRequest(c, "invalid mark, must be one of: none, all, new, updated")
		return upload.Options{}, false
	}

	defaults := make(map[string]string, len(h.cfg.Defaults))
	for field, value := range h.cfg.Defaults {
		defaults[field] = value
	}
	for field, value := range c.PostFormMap("default") {
		defaults[field] = value
	}

	return upload.Options{
		Operation:            operation,
		Update:               update,
		AllowRenames:         formBool(c, "allowrenames", h.cfg.AllowRenames),
		AllowDeletes:         formBool(c, "allowdeletes", h.cfg.AllowDeletes),
		AllowSuspends:        formBool(c, "allowsuspends", h.cfg.AllowSuspends),
		NoNormalize:          formBool(c, "nonormalize", h.cfg.NoNormalize),
		AllowEmailDuplicates: formBool(c, "allowemaildupes", h.cfg.AllowEmailDuplicates),
		PasswordReset:        reset,
		Mark:                 mark,
		Defaults:             defaults,
	}, true
}

// readUploadFile extracts and size-checks the uploaded file. On failure it
// writes the error response itself and returns ok=false.
func (h *UploadHandler) readUploadFile(c *gin.Context) ([]byte, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.BadRequest(c, "file is required")
		return nil, false
	}
	defer file.Close()

	if header.Size > h.cfg.MaxFileSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeValidation, "file exceeds maximum allowed size")
		return nil, false
	}

	contentType := header.Header.Get("Content-Type")
	if contentType != "" && contentType != "text/csv" && contentType != "application/octet-stream" &&
		contentType != "text/plain" && contentType != "application/vnd.ms-excel" {
		h.Error(c, http.StatusUnsupportedMediaType, dto.ErrCodeValidation, "file must be a CSV file")
		return nil, false
	}

	content, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxFileSize+1))
	if err != nil {
		h.InternalError(c, "failed to read file")
		return nil, false
	}
	if int64(len(content)) > h.cfg.MaxFileSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeValidation, "file exceeds maximum allowed size")
		return nil, false
	}
	return content, true
}

// parseFile parses the header and all rows of an upload file. On failure it
// writes the error response itself and returns ok=false.
func (h *UploadHandler) parseFile(c *gin.Context, content []byte) (*csvimport.ColumnSet, []*csvimport.Row, bool) {
	parser, err := csvimport.ParseFromBytes(content)
	if err != nil {
		switch {
		case errors.Is(err, csvimport.ErrEmptyFile):
			h.BadRequest(c, "CSV file is empty")
		case errors.Is(err, csvimport.ErrInvalidEncoding):
			h.BadRequest(c, "CSV file has invalid encoding, must be UTF-8")
		default:
			h.BadRequest(c, "failed to parse file: "+err.Error())
		}
		return nil, nil, false
	}

	if err := parser.ParseHeader(); err != nil {
		if errors.Is(err, csvimport.ErrMissingHeader) {
			h.BadRequest(c, "CSV file is missing header row")
			return nil, nil, false
		}
		h.BadRequest(c, "invalid header row: "+err.Error())
		return nil, nil, false
	}

	cs, err := csvimport.ClassifyHeaders(parser.Headers())
	if err != nil {
		h.BadRequest(c, err.Error())
		return nil, nil, false
	}

	rows, err := parser.ReadAllRows()
	if err != nil {
		h.BadRequest(c, "failed to parse file: "+err.Error())
		return nil, nil, false
	}
	if len(rows) == 0 {
		h.BadRequest(c, "CSV file contains no data rows")
		return nil, nil, false
	}
	return cs, rows, true
}

// batchKey derives the dedup key for an upload: the content hash scoped to
// the submitting tenant.
func batchKey(content []byte, tenantID uuid.UUID) string {
	sum := sha256.New()
	sum.Write(content)
	sum.Write(tenantID[:])
	return hex.EncodeToString(sum.Sum(nil))
}

func formBool(c *gin.Context, name string, fallback bool) bool {
	value, ok := c.GetPostForm(name)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// RegisterRoutes registers all upload routes
func (h *UploadHandler) RegisterRoutes(rg *gin.RouterGroup) {
	uploads := rg.Group("/uploads")
	uploads.Use(middleware.RequireCapabilityWithConfig(tenant.CapUploadUsers, middleware.CapabilityConfig{Logger: h.logger}))
	{
		uploads.POST("", h.Upload)
		uploads.POST("/validate", h.Validate)
		uploads.GET("/reports/:id", h.GetReport)
	}
}
