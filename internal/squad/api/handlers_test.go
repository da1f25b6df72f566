package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/squad-bridge/internal/common/errors"
	"github.com/kandev/squad-bridge/internal/common/logger"
	"github.com/kandev/squad-bridge/internal/squad/history"
	"github.com/kandev/squad-bridge/internal/squad/models"
	"github.com/kandev/squad-bridge/internal/squad/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockBridge implements Bridge with overridable functions
type MockBridge struct {
	CheckInstallationFn func(ctx context.Context) *models.InstallationReport
	InstallFn           func(ctx context.Context) *models.InstallResult
	RefreshFn           func() string
	CreateSessionFn     func(ctx context.Context, req session.CreateRequest) (*models.Session, error)
	ListSessionsFn      func(ctx context.Context) []*models.Session
	SessionsFn          func() []*models.Session
	ExecuteCommandFn    func(ctx context.Context, id, command string, timeout time.Duration) (*models.ExecResult, error)
	TerminateSessionFn  func(ctx context.Context, id string) bool
	GetSessionStatusFn  func(ctx context.Context, id string) (map[string]string, bool)
	RefreshStatusesFn   func(ctx context.Context) map[string]map[string]string
	CommandRunsFn       func(ctx context.Context, id string, limit int) ([]*models.CommandRun, error)
	SessionHistoryFn    func(ctx context.Context) ([]*history.SessionRecord, error)
	SessionRecordFn     func(ctx context.Context, id string) (*history.SessionRecord, error)
}

func (m *MockBridge) CheckInstallation(ctx context.Context) *models.InstallationReport {
	if m.CheckInstallationFn != nil {
		return m.CheckInstallationFn(ctx)
	}
	return &models.InstallationReport{Errors: []string{}}
}

func (m *MockBridge) Install(ctx context.Context) *models.InstallResult {
	if m.InstallFn != nil {
		return m.InstallFn(ctx)
	}
	return &models.InstallResult{Success: true}
}

func (m *MockBridge) Refresh() string {
	if m.RefreshFn != nil {
		return m.RefreshFn()
	}
	return ""
}

func (m *MockBridge) CreateSession(ctx context.Context, req session.CreateRequest) (*models.Session, error) {
	if m.CreateSessionFn != nil {
		return m.CreateSessionFn(ctx, req)
	}
	return &models.Session{ID: "mock-session", AgentType: req.AgentType, ProjectPath: req.ProjectPath}, nil
}

func (m *MockBridge) ListSessions(ctx context.Context) []*models.Session {
	if m.ListSessionsFn != nil {
		return m.ListSessionsFn(ctx)
	}
	return []*models.Session{}
}

func (m *MockBridge) Sessions() []*models.Session {
	if m.SessionsFn != nil {
		return m.SessionsFn()
	}
	return []*models.Session{}
}

func (m *MockBridge) ExecuteCommand(ctx context.Context, id, command string, timeout time.Duration) (*models.ExecResult, error) {
	if m.ExecuteCommandFn != nil {
		return m.ExecuteCommandFn(ctx, id, command, timeout)
	}
	return &models.ExecResult{Success: true}, nil
}

func (m *MockBridge) TerminateSession(ctx context.Context, id string) bool {
	if m.TerminateSessionFn != nil {
		return m.TerminateSessionFn(ctx, id)
	}
	return true
}

func (m *MockBridge) GetSessionStatus(ctx context.Context, id string) (map[string]string, bool) {
	if m.GetSessionStatusFn != nil {
		return m.GetSessionStatusFn(ctx, id)
	}
	return map[string]string{}, true
}

func (m *MockBridge) RefreshStatuses(ctx context.Context) map[string]map[string]string {
	if m.RefreshStatusesFn != nil {
		return m.RefreshStatusesFn(ctx)
	}
	return map[string]map[string]string{}
}

func (m *MockBridge) CommandRuns(ctx context.Context, id string, limit int) ([]*models.CommandRun, error) {
	if m.CommandRunsFn != nil {
		return m.CommandRunsFn(ctx, id, limit)
	}
	return []*models.CommandRun{}, nil
}

func (m *MockBridge) SessionHistory(ctx context.Context) ([]*history.SessionRecord, error) {
	if m.SessionHistoryFn != nil {
		return m.SessionHistoryFn(ctx)
	}
	return []*history.SessionRecord{}, nil
}

func (m *MockBridge) SessionRecord(ctx context.Context, id string) (*history.SessionRecord, error) {
	if m.SessionRecordFn != nil {
		return m.SessionRecordFn(ctx, id)
	}
	return nil, errors.NotFound("session history", id)
}

func setupTestRouter(b *MockBridge) *gin.Engine {
	router := gin.New()
	SetupRoutes(router.Group("/api/v1"), b, logger.Nop())
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestGetInstallation(t *testing.T) {
	refreshed := false
	router := setupTestRouter(&MockBridge{
		RefreshFn: func() string { refreshed = true; return "/usr/bin/claude-squad" },
		CheckInstallationFn: func(context.Context) *models.InstallationReport {
			return &models.InstallationReport{Installed: true, CommandPath: "/usr/bin/claude-squad", Version: "1.0.8"}
		},
	})

	w := doRequest(t, router, http.MethodGet, "/api/v1/squad/installation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[models.InstallationReport](t, w)
	assert.True(t, report.Installed)
	assert.Equal(t, "1.0.8", report.Version)
	assert.False(t, refreshed)

	doRequest(t, router, http.MethodGet, "/api/v1/squad/installation?refresh=true", nil)
	assert.True(t, refreshed)
}

func TestInstall(t *testing.T) {
	router := setupTestRouter(&MockBridge{
		InstallFn: func(context.Context) *models.InstallResult {
			return &models.InstallResult{Success: false, Message: "curl is required"}
		},
	})
	w := doRequest(t, router, http.MethodPost, "/api/v1/squad/installation/install", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "curl is required", decode[models.InstallResult](t, w).Message)

	router = setupTestRouter(&MockBridge{})
	w = doRequest(t, router, http.MethodPost, "/api/v1/squad/installation/install", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateSession(t *testing.T) {
	var got session.CreateRequest
	router := setupTestRouter(&MockBridge{
		CreateSessionFn: func(_ context.Context, req session.CreateRequest) (*models.Session, error) {
			got = req
			return &models.Session{ID: "abc", AgentType: req.AgentType, Status: models.StatusActive}, nil
		},
	})

	w := doRequest(t, router, http.MethodPost, "/api/v1/squad/sessions", CreateSessionRequest{
		ProjectPath: "web",
		AgentType:   "Codex",
		SessionName: "feature",
		AutoAccept:  true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "abc", decode[models.Session](t, w).ID)
	assert.Equal(t, session.CreateRequest{ProjectPath: "web", AgentType: models.AgentCodex, Name: "feature", AutoAccept: true}, got)
}

func TestCreateSessionErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		err    error
		status int
		code   string
	}{
		{"missing project", map[string]string{"agent_type": "claude"}, nil, http.StatusBadRequest, errors.ErrCodeBadRequest},
		{"not installed", CreateSessionRequest{ProjectPath: "p"}, errors.InstallationMissing("claude-squad"), http.StatusServiceUnavailable, errors.ErrCodeInstallationMissing},
		{"squad failure", CreateSessionRequest{ProjectPath: "p"}, errors.SessionError("tmux: no server running", nil), http.StatusBadGateway, errors.ErrCodeSessionError},
		{"unexpected", CreateSessionRequest{ProjectPath: "p"}, context.DeadlineExceeded, http.StatusInternalServerError, errors.ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(&MockBridge{
				CreateSessionFn: func(context.Context, session.CreateRequest) (*models.Session, error) {
					return nil, tt.err
				},
			})
			w := doRequest(t, router, http.MethodPost, "/api/v1/squad/sessions", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode[errors.AppError](t, w).Code)
		})
	}
}

func TestListSessions(t *testing.T) {
	synced := false
	router := setupTestRouter(&MockBridge{
		SessionsFn: func() []*models.Session { return []*models.Session{{ID: "a"}} },
		ListSessionsFn: func(context.Context) []*models.Session {
			synced = true
			return []*models.Session{{ID: "a"}, {ID: "b"}}
		},
	})

	w := doRequest(t, router, http.MethodGet, "/api/v1/squad/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[SessionsResponse](t, w).Total)
	assert.False(t, synced)

	w = doRequest(t, router, http.MethodGet, "/api/v1/squad/sessions?refresh=true", nil)
	assert.Equal(t, 2, decode[SessionsResponse](t, w).Total)
	assert.True(t, synced)
}

func TestExecCommand(t *testing.T) {
	var gotTimeout time.Duration
	router := setupTestRouter(&MockBridge{
		ExecuteCommandFn: func(_ context.Context, id, command string, timeout time.Duration) (*models.ExecResult, error) {
			gotTimeout = timeout
			if id != "s1" {
				return nil, errors.NotFound("session", id)
			}
			return &models.ExecResult{Success: false, ExitCode: -1, Error: "command timed out after 2s"}, nil
		},
	})

	w := doRequest(t, router, http.MethodPost, "/api/v1/squad/sessions/s1/exec", ExecCommandRequest{Command: "sleep 9", TimeoutSeconds: 2})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[models.ExecResult](t, w)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, 2*time.Second, gotTimeout)

	w = doRequest(t, router, http.MethodPost, "/api/v1/squad/sessions/zz/exec", ExecCommandRequest{Command: "ls"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, router, http.MethodPost, "/api/v1/squad/sessions/s1/exec", map[string]int{"timeout_seconds": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, http.MethodPost, "/api/v1/squad/sessions/s1/exec", ExecCommandRequest{Command: "ls", TimeoutSeconds: -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrCodeValidationError, decode[errors.AppError](t, w).Code)
}

func TestGetSessionStatus(t *testing.T) {
	router := setupTestRouter(&MockBridge{
		GetSessionStatusFn: func(_ context.Context, id string) (map[string]string, bool) {
			return map[string]string{"status": "running"}, true
		},
	})
	w := doRequest(t, router, http.MethodGet, "/api/v1/squad/sessions/s1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StatusResponse](t, w)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "running", resp.Status["status"])

	router = setupTestRouter(&MockBridge{
		GetSessionStatusFn: func(context.Context, string) (map[string]string, bool) { return nil, false },
	})
	w = doRequest(t, router, http.MethodGet, "/api/v1/squad/sessions/s1/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTerminateSession(t *testing.T) {
	router := setupTestRouter(&MockBridge{
		TerminateSessionFn: func(_ context.Context, id string) bool { return id == "s1" },
	})

	w := doRequest(t, router, http.MethodDelete, "/api/v1/squad/sessions/s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[TerminateResponse](t, w).Terminated)

	w = doRequest(t, router, http.MethodDelete, "/api/v1/squad/sessions/s2", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestRefreshStatuses(t *testing.T) {
	router := setupTestRouter(&MockBridge{
		RefreshStatusesFn: func(context.Context) map[string]map[string]string {
			return map[string]map[string]string{"s1": {"status": "running"}}
		},
	})
	w := doRequest(t, router, http.MethodPost, "/api/v1/squad/sessions/status/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", decode[StatusesResponse](t, w).Statuses["s1"]["status"])
}

func TestListCommandRuns(t *testing.T) {
	var gotLimit int
	router := setupTestRouter(&MockBridge{
		CommandRunsFn: func(_ context.Context, id string, limit int) ([]*models.CommandRun, error) {
			gotLimit = limit
			return []*models.CommandRun{{ID: "r1", SessionID: id, Command: "ls"}}, nil
		},
	})

	w := doRequest(t, router, http.MethodGet, "/api/v1/squad/sessions/s1/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[RunsResponse](t, w)
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, "s1", resp.Runs[0].SessionID)
	assert.Equal(t, 5, gotLimit)

	w = doRequest(t, router, http.MethodGet, "/api/v1/squad/sessions/s1/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSessionHistory(t *testing.T) {
	ended := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	router := setupTestRouter(&MockBridge{
		SessionHistoryFn: func(context.Context) ([]*history.SessionRecord, error) {
			return []*history.SessionRecord{
				{Session: models.Session{ID: "s2", Status: models.StatusActive}},
				{Session: models.Session{ID: "s1"}, TerminatedAt: &ended},
			}, nil
		},
	})

	w := doRequest(t, router, http.MethodGet, "/api/v1/squad/history/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[SessionHistoryResponse](t, w)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "s2", resp.Sessions[0].ID)
	require.NotNil(t, resp.Sessions[1].TerminatedAt)
	assert.True(t, ended.Equal(*resp.Sessions[1].TerminatedAt))
}

func TestGetSessionRecord(t *testing.T) {
	router := setupTestRouter(&MockBridge{
		SessionRecordFn: func(_ context.Context, id string) (*history.SessionRecord, error) {
			if id == "s1" {
				return &history.SessionRecord{Session: models.Session{ID: "s1"}}, nil
			}
			return nil, errors.NotFound("session history", id)
		},
	})

	w := doRequest(t, router, http.MethodGet, "/api/v1/squad/history/sessions/s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", decode[history.SessionRecord](t, w).ID)

	w = doRequest(t, router, http.MethodGet, "/api/v1/squad/history/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
