package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func get(h *Handler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestProbes(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		path   string
		status int
	}{
		{"health", nil, "/health", http.StatusOK},
		{"live", pinger{err: errors.New("down")}, "/health/live", http.StatusOK},
		{"ready without database", nil, "/health/ready", http.StatusOK},
		{"ready with database", pinger{}, "/health/ready", http.StatusOK},
		{"database down", pinger{err: errors.New("down")}, "/health/ready", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(NewHandler(tt.db), tt.path)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
