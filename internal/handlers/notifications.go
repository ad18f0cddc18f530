package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lazynerd-007/lpv1-sub000/internal/auth"
	"github.com/lazynerd-007/lpv1-sub000/internal/middleware"
	"github.com/lazynerd-007/lpv1-sub000/internal/models"
	"github.com/lazynerd-007/lpv1-sub000/internal/realtime"
	"github.com/lazynerd-007/lpv1-sub000/internal/services"
	apperrors "github.com/lazynerd-007/lpv1-sub000/pkg/errors"
	"github.com/lazynerd-007/lpv1-sub000/pkg/logger"
	"github.com/lazynerd-007/lpv1-sub000/pkg/response"
)

// NotificationHandler exposes the notification API surface: querying and
// mutating the durable store, preference management, and the live stream
// upgrade endpoint.
type NotificationHandler struct {
	service     *services.NotificationService
	broadcaster *realtime.Broadcaster
	hub         *realtime.Hub
	jwtService  *auth.JWTService
	log         *zap.Logger
}

// NewNotificationHandler wires the handler against its collaborators.
func NewNotificationHandler(service *services.NotificationService, broadcaster *realtime.Broadcaster, hub *realtime.Hub, jwtService *auth.JWTService) *NotificationHandler {
	return &NotificationHandler{
		service:     service,
		broadcaster: broadcaster,
		hub:         hub,
		jwtService:  jwtService,
		log:         logger.WithModule("handlers.notifications"),
	}
}

type createNotificationRequest struct {
	UserID    string         `json:"user_id" validate:"required"`
	Type      string         `json:"type" validate:"required,max=64"`
	Title     string         `json:"title" validate:"required,max=255"`
	Message   string         `json:"message" validate:"required"`
	Data      map[string]any `json:"data"`
	ExpiresAt *time.Time     `json:"expires_at"`
}

type createBulkRequest struct {
	UserIDs   []string       `json:"user_ids" validate:"required,min=1"`
	Type      string         `json:"type" validate:"required,max=64"`
	Title     string         `json:"title" validate:"required,max=255"`
	Message   string         `json:"message" validate:"required"`
	Data      map[string]any `json:"data"`
	ExpiresAt *time.Time     `json:"expires_at"`
}

type announceRequest struct {
	Title   string         `json:"title" validate:"required,max=255"`
	Message string         `json:"message" validate:"required"`
	Data    map[string]any `json:"data"`
}

// knownKind gates API-originated notifications to the platform catalog. The
// service layer itself stays open-ended so internal callers can introduce
// kinds ahead of the catalog.
func knownKind(kind string) bool {
	for _, known := range models.KnownNotificationTypes() {
		if kind == known {
			return true
		}
	}
	return false
}

type updatePreferenceRequest struct {
	EmailEnabled *bool `json:"email_enabled"`
	PushEnabled  *bool `json:"push_enabled"`
	InAppEnabled *bool `json:"in_app_enabled"`
}

// List returns the authenticated user's notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	input := services.ListNotificationsInput{
		UserID:     userID,
		UnreadOnly: parseBoolQuery(c, "unread_only"),
		Limit:      parseIntQuery(c, "limit", 0),
		Offset:     parseIntQuery(c, "offset", 0),
	}

	items, err := h.service.ListForUser(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Limit:  input.Limit,
		Offset: input.Offset,
		Total:  int64(len(items)),
	})
}

// UnreadCount returns the authenticated user's unread notification count.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": count})
}

// MarkRead flags one notification read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	dto, err := h.service.MarkRead(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// MarkAllRead flags every unread notification read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	affected, err := h.service.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"marked_read": affected})
}

// Delete removes one of the user's notifications.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	deleted, err := h.service.Delete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !deleted {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Create persists a notification for one recipient. Intended for internal
// platform services and admin tooling.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req createNotificationRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !knownKind(req.Type) {
		response.Error(c, apperrors.NewBadRequest("unknown notification type"))
		return
	}

	dto, err := h.service.Create(c.Request.Context(), services.CreateNotificationInput{
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		Data:      req.Data,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if dto == nil {
		// Recipient opted out of this kind; nothing was stored.
		response.Success(c, http.StatusOK, gin.H{"skipped": true})
		return
	}

	response.Success(c, http.StatusCreated, dto)
}

// CreateBulk persists one notification per resolvable recipient.
func (h *NotificationHandler) CreateBulk(c *gin.Context) {
	var req createBulkRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !knownKind(req.Type) {
		response.Error(c, apperrors.NewBadRequest("unknown notification type"))
		return
	}

	dtos, err := h.service.CreateBulk(c.Request.Context(), services.CreateBulkInput{
		UserIDs:   req.UserIDs,
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		Data:      req.Data,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"created": len(dtos)})
}

// Announce pushes a transient system announcement to every connected user,
// bypassing preferences and the durable store.
func (h *NotificationHandler) Announce(c *gin.Context) {
	var req announceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	h.broadcaster.BroadcastSystemAnnouncement(req.Title, req.Message, req.Data)
	response.Success(c, http.StatusOK, gin.H{
		"announced_to": h.hub.Registry().ConnectedUserCount(),
	})
}

// GetPreferences lists the user's explicit preference rows.
func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	prefs, err := h.service.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, prefs)
}

// UpdatePreference patches the channel toggles for one notification kind.
func (h *NotificationHandler) UpdatePreference(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	if !knownKind(c.Param("type")) {
		response.Error(c, apperrors.NewBadRequest("unknown notification type"))
		return
	}

	var req updatePreferenceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pref, err := h.service.GetOrUpdatePreference(c.Request.Context(), userID, c.Param("type"), services.ChannelUpdate{
		EmailEnabled: req.EmailEnabled,
		PushEnabled:  req.PushEnabled,
		InAppEnabled: req.InAppEnabled,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, pref)
}

// Stream upgrades the request to a live notification connection. The token
// travels in the query string because browsers cannot attach headers to
// websocket handshakes; an invalid token still upgrades so the client can
// observe a policy-violation close code instead of an opaque handshake error.
func (h *NotificationHandler) Stream(c *gin.Context) {
	token := middleware.StreamToken(c)
	if token == "" {
		h.hub.Reject(c.Writer, c.Request, "missing token")
		return
	}

	claims, err := h.jwtService.ValidateAccessToken(token)
	if err != nil {
		h.log.Warn("stream handshake rejected", zap.Error(err))
		h.hub.Reject(c.Writer, c.Request, "invalid token")
		return
	}

	h.hub.Serve(claims.UserID, c.Writer, c.Request)
}
