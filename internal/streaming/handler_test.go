package streaming

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConnStats int

func (s stubConnStats) ActiveConnections() int { return int(s) }

func newTestRouter(t *testing.T) (*gin.Engine, *Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, _ := newTestManager(t)
	h := NewHandler(m, stubConnStats(2), nil)

	r := gin.New()
	r.POST("/sessions", h.Create)
	r.GET("/sessions/:id", h.GetByID)
	r.DELETE("/sessions/:id", h.Delete)
	r.GET("/sessions/:id/metrics", h.GetMetrics)
	r.GET("/sessions/:id/result", h.GetLatestResult)
	r.GET("/stats", h.GetSystemStats)
	return r, m
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateSessionEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/sessions", `{"user_id":"u1","club_used":"7-iron"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			SessionID string `json:"session_id"`
			Config    Config `json:"configuration"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Data.SessionID)
	assert.Equal(t, "7-iron", body.Data.Config.ClubUsed)
	// absent fields keep their defaults
	assert.Equal(t, 5, body.Data.Config.AnalysisFrequency)
	assert.True(t, body.Data.Config.EnableRealTimeKPIs)
}

func TestCreateSessionEndpointMissingUser(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(r, http.MethodPost, "/sessions", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSessionEndpoint(t *testing.T) {
	r, m := newTestRouter(t)
	session, err := m.CreateSession(Config{UserID: "u1"})
	require.NoError(t, err)

	w := doJSON(r, http.MethodGet, "/sessions/"+session.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/sessions/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteSessionEndpoint(t *testing.T) {
	r, m := newTestRouter(t)
	session, err := m.CreateSession(Config{UserID: "u1"})
	require.NoError(t, err)

	w := doJSON(r, http.MethodDelete, "/sessions/"+session.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodDelete, "/sessions/"+session.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r, m := newTestRouter(t)
	cfg := DefaultConfig()
	cfg.UserID = "u1"
	cfg.AnalysisFrequency = 1
	session, err := m.CreateSession(cfg)
	require.NoError(t, err)
	require.NotNil(t, m.ProcessFrame(session.ID, goodFrame(1)))

	w := doJSON(r, http.MethodGet, "/sessions/"+session.ID+"/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data PerformanceMetrics `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.Data.FramesProcessed)
}

func TestLatestResultEndpoint(t *testing.T) {
	r, m := newTestRouter(t)
	cfg := DefaultConfig()
	cfg.UserID = "u1"
	cfg.AnalysisFrequency = 1
	session, err := m.CreateSession(cfg)
	require.NoError(t, err)

	w := doJSON(r, http.MethodGet, "/sessions/"+session.ID+"/result", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NotNil(t, m.ProcessFrame(session.ID, goodFrame(1)))
	w = doJSON(r, http.MethodGet, "/sessions/"+session.ID+"/result", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	r, m := newTestRouter(t)
	_, err := m.CreateSession(Config{UserID: "u1"})
	require.NoError(t, err)

	w := doJSON(r, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body.Data["active_connections"])
	assert.EqualValues(t, 1, body.Data["active_sessions"])
}
