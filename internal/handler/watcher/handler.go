package watcher

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notification-ledger/internal/handler"
	"github.com/jwalitptl/notification-ledger/internal/middleware"
	watcherService "github.com/jwalitptl/notification-ledger/internal/service/watcher"
	apperrors "github.com/jwalitptl/notification-ledger/pkg/errors"
)

type Handler struct {
	service watcherService.Service
}

func NewHandler(service watcherService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	wp := r.Group("/work_packages/:id")
	{
		wp.GET("/watchers", h.ListWatchers)
		wp.POST("/watchers", h.AddWatcher)
		wp.DELETE("/watchers/:userId", h.RemoveWatcher)
		wp.POST("/watch", h.Watch)
		wp.DELETE("/watch", h.Unwatch)
	}
}

type addWatcherRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// params extracts the viewer and the work package id every route needs.
func params(c *gin.Context) (viewerID, workPackageID uuid.UUID, ok bool) {
	viewerID, ok = middleware.ViewerID(c)
	if !ok {
		handler.RespondError(c, apperrors.Unauthorized(nil))
		return uuid.Nil, uuid.Nil, false
	}
	workPackageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.RespondBadRequest(c, "invalid work package ID")
		return uuid.Nil, uuid.Nil, false
	}
	return viewerID, workPackageID, true
}

func (h *Handler) ListWatchers(c *gin.Context) {
	viewerID, wpID, ok := params(c)
	if !ok {
		return
	}

	watchers, err := h.service.List(c.Request.Context(), viewerID, wpID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(watchers))
}

func (h *Handler) AddWatcher(c *gin.Context) {
	viewerID, wpID, ok := params(c)
	if !ok {
		return
	}

	var req addWatcherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	w, err := h.service.Add(c.Request.Context(), viewerID, wpID, req.UserID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(w))
}

func (h *Handler) RemoveWatcher(c *gin.Context) {
	viewerID, wpID, ok := params(c)
	if !ok {
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		handler.RespondBadRequest(c, "invalid user ID")
		return
	}

	if err := h.service.Remove(c.Request.Context(), viewerID, wpID, userID); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Watch(c *gin.Context) {
	viewerID, wpID, ok := params(c)
	if !ok {
		return
	}

	w, err := h.service.Add(c.Request.Context(), viewerID, wpID, viewerID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(w))
}

func (h *Handler) Unwatch(c *gin.Context) {
	viewerID, wpID, ok := params(c)
	if !ok {
		return
	}

	if err := h.service.Remove(c.Request.Context(), viewerID, wpID, viewerID); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
