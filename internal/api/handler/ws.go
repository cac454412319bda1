package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sitterlink/realtime/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The edge proxy enforces origin; the service accepts any.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket authenticates the handshake, upgrades the connection, and
// registers the session. The personal channel is joined immediately so the
// user is reachable before any explicit join event arrives.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		if len(header) > 7 && header[:7] == "Bearer " {
			token = header[7:]
		}
	}

	ident, err := h.verifier.Verify(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote its own error response; writing again would
		// hit a hijack-failed connection.
		h.log.WithError(err).Warn("ws: upgrade failed")
		return
	}

	client := realtime.NewWebSocketClient(conn, ident.UserID, token, h.registry, h.router, h.log)
	h.registry.Register(client)
	if err := h.registry.Join(c.Request.Context(), client, realtime.PersonalChannel(ident.UserID)); err != nil {
		h.log.WithError(err).WithField("user_id", ident.UserID).Warn("ws: personal join at handshake failed")
	}
	client.Run()
}
