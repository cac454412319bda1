package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sitterlink/realtime/internal/apperr"
	"sitterlink/realtime/internal/models"
)

// ListChats returns the caller's chat rooms with their unread counts.
func (h *Handler) ListChats(c *gin.Context) {
	ident := identity(c)
	page, pageSize := pageParams(c)

	rooms, p, err := h.chat.ListRooms(c.Request.Context(), ident.UserID, page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}

	type roomView struct {
		models.ChatRoom
		UnreadCount int64 `json:"unreadCount"`
	}
	views := make([]roomView, 0, len(rooms))
	for _, room := range rooms {
		views = append(views, roomView{
			ChatRoom:    room,
			UnreadCount: h.chat.RoomUnread(c.Request.Context(), ident.UserID, room.ID),
		})
	}
	paginated(c, views, p)
}

type createChatRequest struct {
	OpponentID uint `json:"opponentId" binding:"required"`
}

// CreateChat finds or creates the 1:1 room with the opponent.
func (h *Handler) CreateChat(c *gin.Context) {
	ident := identity(c)

	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Validationf("opponentId is required"))
		return
	}
	if req.OpponentID == ident.UserID {
		fail(c, apperr.Validationf("cannot open a room with yourself"))
		return
	}

	room, err := h.chat.FindOrCreateRoom(c.Request.Context(), ident, req.OpponentID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// ListChatMessages returns one ascending page of room history.
func (h *Handler) ListChatMessages(c *gin.Context) {
	ident := identity(c)
	page, pageSize := pageParams(c)

	roomID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || roomID == 0 {
		fail(c, apperr.Validationf("invalid chat room id"))
		return
	}

	msgs, p, err := h.chat.ListMessages(c.Request.Context(), ident.UserID, uint(roomID), page, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	paginated(c, msgs, p)
}
