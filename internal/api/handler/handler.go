// Package handler is the thin HTTP and WebSocket edge over the engines.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sitterlink/realtime/internal/apperr"
	"sitterlink/realtime/internal/auth"
	"sitterlink/realtime/internal/chat"
	"sitterlink/realtime/internal/models"
	"sitterlink/realtime/internal/notify"
	"sitterlink/realtime/internal/realtime"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// identityKey is the gin context key the auth middleware stores the caller
// under.
const identityKey = "identity"

type Handler struct {
	chat     *chat.Engine
	notify   *notify.Engine
	registry *realtime.Registry
	router   *realtime.Router
	verifier *auth.Verifier
	log      *logrus.Logger
}

func New(chatEngine *chat.Engine, notifyEngine *notify.Engine, registry *realtime.Registry, router *realtime.Router, verifier *auth.Verifier, log *logrus.Logger) *Handler {
	return &Handler{
		chat:     chatEngine,
		notify:   notifyEngine,
		registry: registry,
		router:   router,
		verifier: verifier,
		log:      log,
	}
}

// Routes mounts the HTTP surface on the gin engine.
func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/", h.Authorize())
	api.GET("/chats", h.ListChats)
	api.POST("/chats", h.CreateChat)
	api.GET("/chats/:id/messages", h.ListChatMessages)
	api.GET("/notifications", h.ListNotifications)
	api.PUT("/notifications/read", h.MarkNotificationsRead)
	api.GET("/notifications/unreadCount", h.UnreadNotificationCount)
}

// Authorize validates the bearer token and stores the identity in the
// request context.
func (h *Handler) Authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := h.verifier.FromBearer(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(identityKey, ident)
		c.Next()
	}
}

func identity(c *gin.Context) auth.Identity {
	ident, _ := c.MustGet(identityKey).(auth.Identity)
	return ident
}

// pageParams parses ?page and ?pageSize with sane bounds.
func pageParams(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// paginated writes the shared result envelope.
func paginated(c *gin.Context, results any, p models.Pagination) {
	c.JSON(http.StatusOK, gin.H{"results": results, "pagination": p})
}

// fail maps engine errors onto HTTP statuses.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrAuth):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
