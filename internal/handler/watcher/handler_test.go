package watcher

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/jwalitptl/notification-ledger/internal/middleware"
	"github.com/jwalitptl/notification-ledger/internal/model"
	apperrors "github.com/jwalitptl/notification-ledger/pkg/errors"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) List(ctx context.Context, viewerID, workPackageID uuid.UUID) ([]*model.Watcher, error) {
	args := m.Called(ctx, viewerID, workPackageID)
	ws, _ := args.Get(0).([]*model.Watcher)
	return ws, args.Error(1)
}

func (m *MockService) Add(ctx context.Context, viewerID, workPackageID, userID uuid.UUID) (*model.Watcher, error) {
	args := m.Called(ctx, viewerID, workPackageID, userID)
	w, _ := args.Get(0).(*model.Watcher)
	return w, args.Error(1)
}

func (m *MockService) Remove(ctx context.Context, viewerID, workPackageID, userID uuid.UUID) error {
	return m.Called(ctx, viewerID, workPackageID, userID).Error(0)
}

func setup(viewerID uuid.UUID) (*gin.Engine, *MockService) {
	gin.SetMode(gin.TestMode)
	svc := new(MockService)
	r := gin.New()
	api := r.Group("/api/v1", func(c *gin.Context) {
		c.Set(middleware.ContextViewerID, viewerID)
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(api)
	return r, svc
}

func request(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWatcherRoutes(t *testing.T) {
	viewer, wp, alice := uuid.New(), uuid.New(), uuid.New()
	base := "/api/v1/work_packages/" + wp.String()
	r, svc := setup(viewer)

	svc.On("List", mock.Anything, viewer, wp).Return([]*model.Watcher{{UserID: alice}}, nil)
	svc.On("Add", mock.Anything, viewer, wp, alice).Return(&model.Watcher{UserID: alice}, nil)
	svc.On("Add", mock.Anything, viewer, wp, viewer).Return(&model.Watcher{UserID: viewer}, nil)
	svc.On("Remove", mock.Anything, viewer, wp, alice).Return(nil)
	svc.On("Remove", mock.Anything, viewer, wp, viewer).Return(apperrors.NewNotFound("watcher", nil))

	w := request(r, http.MethodGet, base+"/watchers", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), alice.String())

	w = request(r, http.MethodPost, base+"/watchers", `{"user_id":"`+alice.String()+`"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = request(r, http.MethodPost, base+"/watch", "")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = request(r, http.MethodDelete, base+"/watchers/"+alice.String(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = request(r, http.MethodDelete, base+"/watch", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.AssertExpectations(t)
}

func TestWatcherRouteValidation(t *testing.T) {
	r, svc := setup(uuid.New())

	w := request(r, http.MethodGet, "/api/v1/work_packages/nope/watchers", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, http.MethodPost, "/api/v1/work_packages/"+uuid.NewString()+"/watchers", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "user_id")

	w = request(r, http.MethodDelete, "/api/v1/work_packages/"+uuid.NewString()+"/watchers/nope", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func init() {
	middleware.UseJSONFieldNames()
}
