package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-ledger/internal/config"
	"github.com/jwalitptl/notification-ledger/internal/handler/health"
	"github.com/jwalitptl/notification-ledger/internal/handler/notification"
	metricsHandler "github.com/jwalitptl/notification-ledger/internal/handler/prometheus"
	"github.com/jwalitptl/notification-ledger/internal/handler/watcher"
	"github.com/jwalitptl/notification-ledger/internal/middleware"
	"github.com/jwalitptl/notification-ledger/pkg/auth"
)

func newTestRouter(t *testing.T) (*gin.Engine, auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := auth.NewJWTService("router-secret", "test", time.Hour)
	r := NewRouter(
		middleware.NewAuthMiddleware(tokens),
		health.NewHandler(nil),
		metricsHandler.New("ledger", prometheus.NewRegistry()),
		notification.NewHandler(nil),
		watcher.NewHandler(nil),
		RouterConfig{
			Server: config.ServerConfig{
				RequestTimeout: time.Second,
				AllowedOrigins: []string{"*"},
			},
		},
	)
	r.Setup()
	return r.Engine(), tokens
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPublicRoutes(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/metrics"} {
		w := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID), path)
	}
}

func TestAPIRequiresAuthentication(t *testing.T) {
	r, tokens := newTestRouter(t)

	for _, path := range []string{
		"/api/v1/notifications",
		"/api/v1/notifications/reasons",
		"/api/v1/work_packages/" + uuid.NewString() + "/watchers",
	} {
		w := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	token, err := tokens.GenerateAccessToken(uuid.New(), "viewer@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/reasons", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
	assert.Contains(t, w.Body.String(), "mentioned")
}
