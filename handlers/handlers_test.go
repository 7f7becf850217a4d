package handlers

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seroest/app"
	"seroest/auth"
	"seroest/config"
	"seroest/db"
	"seroest/lifecycle"
	"seroest/logging"
	"seroest/models"
)

const testSecret = "test-secret"

func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	local, err := db.OpenLocal(filepath.Join(t.TempDir(), "sero-est.db"), logging.Discard())
	require.NoError(t, err)
	return newRouter(t, db.NewGateway(nil, local, logging.Discard()))
}

func newRouter(t *testing.T, gw *db.Gateway) http.Handler {
	t.Helper()
	log := logging.Discard()
	t.Cleanup(func() { gw.Close() })

	orch := app.New(gw, auth.NewAuthenticator(gw, log), lifecycle.New(gw.Authority(), lifecycle.Permissive), auth.NewSession(nil), log)
	return Router{
		Orchestrator: orch,
		JWT:          auth.NewJWTManager(testSecret, time.Hour, 24*time.Hour),
		Users:        gw.Authority(),
		CORS:         config.CORSConfig{AllowedOrigins: []string{"*"}},
		Log:          log,
	}.Handler()
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, h http.Handler, name, password string) string {
	t.Helper()
	return loginPair(t, h, name, password).Token
}

func loginPair(t *testing.T, h http.Handler, name, password string) LoginResponse {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/login", "", LoginRequest{Name: name, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	require.NotEmpty(t, resp.RefreshToken)
	assert.Empty(t, resp.User.Password)
	return resp
}

func TestHealth(t *testing.T) {
	h := setupRouter(t)
	w := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestLogin(t *testing.T) {
	h := setupRouter(t)

	w := do(t, h, http.MethodPost, "/api/login", "", LoginRequest{Name: "karim", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "incorrect")

	w = do(t, h, http.MethodPost, "/api/login", "", LoginRequest{Name: "karim"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	token := login(t, h, "Akram", "akram2025")
	w = do(t, h, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		User        models.User `json:"user"`
		IsMainAdmin bool        `json:"isMainAdmin"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.True(t, me.IsMainAdmin)
	assert.Equal(t, models.RoleAdmin, me.User.Role)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	h := setupRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/projects", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/projects", "garbage", nil).Code)
}

func TestRoleErrorsMapToStatus(t *testing.T) {
	h := setupRouter(t)
	topo := login(t, h, "samir", "samir123")
	karim := login(t, h, "karim", "karim2025")

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/api/dashboard", topo, nil).Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/api/projects", karim, map[string]string{"nom": "X", "dateDebut": "2025-01-01"}).Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/api/logs", karim, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/api/reports/nope/status", karim, UpdateStatusRequest{Status: models.ReportPrinted}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/reports/nope/status", karim, UpdateStatusRequest{Status: "archivee"}).Code)
}

func TestReportFlowOverHTTP(t *testing.T) {
	h := setupRouter(t)
	admin := login(t, h, "akram", "akram2025")

	w := do(t, h, http.MethodPost, "/api/projects", admin, models.Project{Name: "Viaduc", StartDate: "2025-01-10"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var project models.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &project))

	topo := login(t, h, "bachir", "bachir123")
	w = do(t, h, http.MethodPost, "/api/reports", topo, models.Report{
		UserName:        "someone else",
		Date:            "2025-03-14",
		ProjectID:       project.ID,
		PhaseID:         "phase-1",
		StructureType:   models.StructureAbutment,
		StructureNumber: "C1",
		StationID:       "station-2",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var report models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "Bachir", report.UserName)
	assert.Equal(t, "Viaduc", report.ProjectName)

	karim := login(t, h, "karim", "karim2025")
	w = do(t, h, http.MethodPut, "/api/reports/"+report.ID+"/status", karim, UpdateStatusRequest{Status: models.ReportPrinted})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/api/reports/export.csv", karim, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "SERO-EST_Rapports_")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Imprimée")

	w = do(t, h, http.MethodGet, "/api/logs", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []models.ActionLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	assert.Equal(t, app.ActionReportStatus, logs[0].Action)
}

func TestCORSPreflight(t *testing.T) {
	h := setupRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRefreshToken(t *testing.T) {
	h := setupRouter(t)
	admin := login(t, h, "akram", "akram2025")
	pair := loginPair(t, h, "karim", "karim2025")

	w := do(t, h, http.MethodPost, "/api/refresh", "", RefreshTokenRequest{RefreshToken: pair.Token})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "an access token is not a refresh token")

	w = do(t, h, http.MethodGet, "/api/me", pair.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a refresh token is not an access token")

	w = do(t, h, http.MethodPost, "/api/refresh", "", RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var refreshed LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))
	assert.Equal(t, pair.User.ID, refreshed.User.ID)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/me", refreshed.Token, nil).Code)

	w = do(t, h, http.MethodPut, "/api/users/"+pair.User.ID, admin, map[string]bool{"actif": false})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/refresh", "", RefreshTokenRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "deactivated accounts cannot refresh")
}

// usersDown is a remote backend whose user table cannot be read.
type usersDown struct{ *db.LocalStore }

func (usersDown) Name() string { return "remote" }

func (usersDown) ListUsers(context.Context) ([]models.User, error) {
	return nil, errors.New("connection refused")
}

func TestRemoteUserKeepsAccessWhileUsersUnreadable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	remoteStore, err := db.OpenLocal(filepath.Join(dir, "remote.db"), logging.Discard())
	require.NoError(t, err)
	local, err := db.OpenLocal(filepath.Join(dir, "local.db"), logging.Discard())
	require.NoError(t, err)
	require.NoError(t, remoteStore.InsertReport(ctx, models.Report{ID: "r1", UserName: "Nadia", Status: models.ReportRecorded, CreatedAt: models.Now()}))

	h := newRouter(t, db.NewGateway(usersDown{remoteStore}, local, logging.Discard()))

	nadia := models.User{ID: "remote-user-1", Name: "Nadia", Role: models.RoleSupervisor, Active: true}
	token, err := auth.NewJWTManager(testSecret, time.Hour, time.Hour).GenerateToken(nadia)
	require.NoError(t, err)

	w := do(t, h, http.MethodGet, "/api/reports", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reports []models.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "r1", reports[0].ID)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/dashboard", token, nil).Code)
}
