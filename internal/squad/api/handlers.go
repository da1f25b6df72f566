package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/squad-bridge/internal/common/errors"
	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/squad/history"
	"github.com/kandev/squad-bridge/internal/squad/models"
	"github.com/kandev/squad-bridge/internal/squad/session"
)

// Bridge is the part of squad.Bridge the handlers use.
type Bridge interface {
	CheckInstallation(ctx context.Context) *models.InstallationReport
	Install(ctx context.Context) *models.InstallResult
	Refresh() string
	CreateSession(ctx context.Context, req session.CreateRequest) (*models.Session, error)
	ListSessions(ctx context.Context) []*models.Session
	Sessions() []*models.Session
	ExecuteCommand(ctx context.Context, id, command string, timeout time.Duration) (*models.ExecResult, error)
	TerminateSession(ctx context.Context, id string) bool
	GetSessionStatus(ctx context.Context, id string) (map[string]string, bool)
	RefreshStatuses(ctx context.Context) map[string]map[string]string
	CommandRuns(ctx context.Context, id string, limit int) ([]*models.CommandRun, error)
	SessionHistory(ctx context.Context) ([]*history.SessionRecord, error)
	SessionRecord(ctx context.Context, id string) (*history.SessionRecord, error)
}

// Handler contains HTTP handlers for the squad bridge API
type Handler struct {
	bridge Bridge
	logger *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(b Bridge, log *logger.Logger) *Handler {
	return &Handler{
		bridge: b,
		logger: log.WithComponent("squad-api"),
	}
}

// GetInstallation returns the readiness report
// GET /api/v1/squad/installation[?refresh=true]
func (h *Handler) GetInstallation(c *gin.Context) {
	if c.Query("refresh") == "true" {
		h.bridge.Refresh()
	}
	c.JSON(http.StatusOK, h.bridge.CheckInstallation(c.Request.Context()))
}

// Install runs the installer
// POST /api/v1/squad/installation/install
func (h *Handler) Install(c *gin.Context) {
	result := h.bridge.Install(c.Request.Context())
	if !result.Success {
		c.JSON(http.StatusBadGateway, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListSessions returns the session table, re-synced from the squad command
// when refresh=true
// GET /api/v1/squad/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	var sessions []*models.Session
	if c.Query("refresh") == "true" {
		sessions = h.bridge.ListSessions(c.Request.Context())
	} else {
		sessions = h.bridge.Sessions()
	}
	c.JSON(http.StatusOK, SessionsResponse{Sessions: sessions, Total: len(sessions)})
}

// CreateSession starts a squad session
// POST /api/v1/squad/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	agent := models.AgentType(req.AgentType)
	if req.AgentType != "" {
		agent = models.ParseAgentType(req.AgentType)
	}
	s, err := h.bridge.CreateSession(c.Request.Context(), session.CreateRequest{
		ProjectPath: req.ProjectPath,
		AgentType:   agent,
		Name:        req.SessionName,
		AutoAccept:  req.AutoAccept,
	})
	if err != nil {
		h.renderError(c, "failed to create session", err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// GetSessionStatus returns the squad status fields of a session
// GET /api/v1/squad/sessions/:id/status
func (h *Handler) GetSessionStatus(c *gin.Context) {
	id := c.Param("id")
	status, ok := h.bridge.GetSessionStatus(c.Request.Context(), id)
	if !ok {
		appErr := errors.InstallationMissing("claude-squad")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, StatusResponse{SessionID: id, Status: status})
}

// ExecCommand runs a command inside a session. Timeouts and failed commands
// are reported in the body with 200; only an unknown session is an error.
// POST /api/v1/squad/sessions/:id/exec
func (h *Handler) ExecCommand(c *gin.Context) {
	id := c.Param("id")
	var req ExecCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	if req.TimeoutSeconds < 0 {
		appErr := errors.ValidationError("timeout_seconds", "must not be negative")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	result, err := h.bridge.ExecuteCommand(c.Request.Context(), id, req.Command, timeout)
	if err != nil {
		h.renderError(c, "failed to execute command", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// TerminateSession stops a session
// DELETE /api/v1/squad/sessions/:id
func (h *Handler) TerminateSession(c *gin.Context) {
	id := c.Param("id")
	if !h.bridge.TerminateSession(c.Request.Context(), id) {
		appErr := errors.SessionError(fmt.Sprintf("failed to terminate session '%s'", id), nil)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, TerminateResponse{SessionID: id, Terminated: true})
}

// ListCommandRuns returns the recorded command runs of a session
// GET /api/v1/squad/sessions/:id/runs[?limit=N]
func (h *Handler) ListCommandRuns(c *gin.Context) {
	id := c.Param("id")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			appErr := errors.ValidationError("limit", "must be a non-negative integer")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		limit = n
	}

	runs, err := h.bridge.CommandRuns(c.Request.Context(), id, limit)
	if err != nil {
		h.renderError(c, "failed to list command runs", err)
		return
	}
	c.JSON(http.StatusOK, RunsResponse{SessionID: id, Runs: runs})
}

// ListSessionHistory returns every journalled session, terminated ones included
// GET /api/v1/squad/history/sessions
func (h *Handler) ListSessionHistory(c *gin.Context) {
	recs, err := h.bridge.SessionHistory(c.Request.Context())
	if err != nil {
		h.renderError(c, "failed to list session history", err)
		return
	}
	c.JSON(http.StatusOK, SessionHistoryResponse{Sessions: recs, Total: len(recs)})
}

// GetSessionRecord returns the journalled snapshot of one session
// GET /api/v1/squad/history/sessions/:id
func (h *Handler) GetSessionRecord(c *gin.Context) {
	rec, err := h.bridge.SessionRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, "failed to get session history", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RefreshStatuses fetches the status of every known session
// POST /api/v1/squad/sessions/status/refresh
func (h *Handler) RefreshStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, StatusesResponse{Statuses: h.bridge.RefreshStatuses(c.Request.Context())})
}

func (h *Handler) renderError(c *gin.Context, msg string, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.InternalError(msg, err)
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.WithContext(c.Request.Context()).Error(msg, zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(appErr.HTTPStatus, appErr)
}
