package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sitterlink/realtime/internal/apperr"
)

// ListNotifications returns one page of the caller's notifications.
func (h *Handler) ListNotifications(c *gin.Context) {
	ident := identity(c)
	page, pageSize := pageParams(c)

	rows, p, err := h.notify.ListNotifications(c.Request.Context(), ident.UserID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	paginated(c, rows, p)
}

type markReadRequest struct {
	NotificationIDs []uint `json:"notificationIds" binding:"required"`
}

// MarkNotificationsRead marks a batch read and reports how many were
// previously unread.
func (h *Handler) MarkNotificationsRead(c *gin.Context) {
	ident := identity(c)

	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validationf("notificationIds is required"))
		return
	}

	marked, err := h.notify.MarkAsRead(c.Request.Context(), ident.UserID, req.NotificationIDs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// UnreadNotificationCount returns the caller's total unread count,
// cache-first with a durable fallback.
func (h *Handler) UnreadNotificationCount(c *gin.Context) {
	ident := identity(c)
	count := h.notify.UnreadCount(c.Request.Context(), ident.UserID)
	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}
