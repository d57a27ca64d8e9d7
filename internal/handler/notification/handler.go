package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notification-ledger/internal/handler"
	"github.com/jwalitptl/notification-ledger/internal/middleware"
	"github.com/jwalitptl/notification-ledger/internal/model"
	notificationService "github.com/jwalitptl/notification-ledger/internal/service/notification"
	apperrors "github.com/jwalitptl/notification-ledger/pkg/errors"
)

type Handler struct {
	service notificationService.Service
}

func NewHandler(service notificationService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)
		notifications.POST("", h.CreateNotification)
		notifications.GET("/reasons", h.ListReasons)
		notifications.POST("/read_all", h.MarkAllRead)
		notifications.GET("/:id", h.GetNotification)
		notifications.POST("/:id/read", h.MarkRead)
	}
	r.POST("/journals/events", h.FanOutJournal)
}

type createNotificationRequest struct {
	Reason      *model.Reason     `json:"reason"`
	RecipientID uuid.UUID         `json:"recipient_id"`
	ActorID     uuid.UUID         `json:"actor_id"`
	ProjectID   uuid.UUID         `json:"project_id"`
	JournalID   uuid.UUID         `json:"journal_id"`
	Resource    model.ResourceRef `json:"resource"`
}

type listNotificationsQuery struct {
	Reason string `form:"reason"`
	Unread bool   `form:"unread"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

type reasonInfo struct {
	Code           int16  `json:"code"`
	Name           string `json:"name"`
	DateAlert      bool   `json:"date_alert"`
	ImmediateAlert bool   `json:"immediate_alert"`
}

func viewer(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.ViewerID(c)
	if !ok {
		handler.RespondError(c, apperrors.Unauthorized(nil))
	}
	return id, ok
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.RespondBadRequest(c, "invalid notification ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) CreateNotification(c *gin.Context) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.RespondBindError(c, err)
		return
	}
	if req.Reason == nil {
		handler.RespondError(c, apperrors.NewInvalidReason("", model.ErrInvalidReason))
		return
	}

	n, err := h.service.Create(c.Request.Context(), model.NotificationParams{
		Reason:      *req.Reason,
		RecipientID: req.RecipientID,
		ActorID:     req.ActorID,
		ProjectID:   req.ProjectID,
		JournalID:   req.JournalID,
		Resource:    req.Resource,
	})
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(n))
}

func (h *Handler) ListNotifications(c *gin.Context) {
	viewerID, ok := viewer(c)
	if !ok {
		return
	}

	var q listNotificationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	filter := model.NotificationFilter{
		UnreadOnly: q.Unread,
		Pagination: model.Pagination{Limit: q.Limit, Offset: q.Offset}.Normalize(),
	}
	if q.Reason != "" {
		reason, err := model.ParseReason(q.Reason)
		if err != nil {
			handler.RespondError(c, err)
			return
		}
		filter.Reason = &reason
	}

	ns, err := h.service.ListVisible(c.Request.Context(), viewerID, filter)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"notifications": ns,
		"limit":         filter.Limit,
		"offset":        filter.Offset,
	}))
}

func (h *Handler) GetNotification(c *gin.Context) {
	viewerID, ok := viewer(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	n, err := h.service.Get(c.Request.Context(), viewerID, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(n))
}

func (h *Handler) MarkRead(c *gin.Context) {
	viewerID, ok := viewer(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	n, err := h.service.MarkRead(c.Request.Context(), viewerID, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(n))
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	viewerID, ok := viewer(c)
	if !ok {
		return
	}

	count, err := h.service.MarkAllRead(c.Request.Context(), viewerID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"marked": count}))
}

func (h *Handler) ListReasons(c *gin.Context) {
	reasons := model.Reasons()
	out := make([]reasonInfo, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, reasonInfo{
			Code:           r.Code(),
			Name:           r.String(),
			DateAlert:      r.IsDateAlert(),
			ImmediateAlert: r.WantsImmediateMail(),
		})
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(out))
}

func (h *Handler) FanOutJournal(c *gin.Context) {
	var event model.JournalEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		handler.RespondBindError(c, err)
		return
	}

	created, err := h.service.NotifyWatchers(c.Request.Context(), event)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(gin.H{
		"notifications": created,
		"count":         len(created),
	}))
}
