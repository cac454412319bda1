package chat

import (
	"context"
	"encoding/json"
	"errors"

	"sitterlink/realtime/internal/apperr"
	"sitterlink/realtime/internal/auth"
	"sitterlink/realtime/internal/models"
	"sitterlink/realtime/internal/realtime"
)

// Client→server event names.
const (
	EventUserJoin    = "chat:user:join"
	EventRoomJoin    = "chat:room:join"
	EventMessageNew  = "chat:message:new"
	EventReadMark    = "chat:read:mark"
	EventAuthExpired = "auth:expired"
)

// RegisterSocketHandlers wires the chat events into the socket router.
func (e *Engine) RegisterSocketHandlers(router *realtime.Router) {
	router.Handle(EventUserJoin, e.handleUserJoin)
	router.Handle(EventRoomJoin, e.handleRoomJoin)
	router.Handle(EventMessageNew, e.handleMessageNew)
	router.Handle(EventReadMark, e.handleReadMark)
}

// authenticate re-verifies the session credential for one inbound event.
// Expiry mid-session must produce an explicit rejection before any room
// action proceeds; when the client supplied no ack callback the rejection is
// the auth:expired event.
func (e *Engine) authenticate(c realtime.Client, rsp *realtime.Responder) (auth.Identity, bool) {
	ident, err := e.verifier.Verify(c.Token())
	if err != nil {
		rsp.ReplyOr(EventAuthExpired, models.AuthExpiredEvent{Message: "authentication expired"})
		return auth.Identity{}, false
	}
	return ident, true
}

func (e *Engine) handleUserJoin(ctx context.Context, c realtime.Client, _ json.RawMessage, rsp *realtime.Responder) {
	if _, ok := e.authenticate(c, rsp); !ok {
		return
	}
	if err := e.registry.Join(ctx, c, realtime.PersonalChannel(c.UserID())); err != nil {
		e.log.WithError(err).WithField("user_id", c.UserID()).Warn("chat: personal join failed")
	}
}

func (e *Engine) handleRoomJoin(ctx context.Context, c realtime.Client, data json.RawMessage, rsp *realtime.Responder) {
	if _, ok := e.authenticate(c, rsp); !ok {
		return
	}
	var in models.RoomJoinInput
	if err := json.Unmarshal(data, &in); err != nil || in.ChatRoomID == 0 {
		rsp.Reply(map[string]any{"success": false, "error": "invalid chatRoomId"})
		return
	}
	if err := e.JoinRoom(ctx, c, in.ChatRoomID); err != nil {
		e.log.WithError(err).WithField("room_id", in.ChatRoomID).Warn("chat: room join rejected")
		rsp.Reply(map[string]any{"success": false, "error": err.Error()})
		return
	}
	rsp.Reply(map[string]any{"success": true})
}

func (e *Engine) handleMessageNew(ctx context.Context, c realtime.Client, data json.RawMessage, rsp *realtime.Responder) {
	ident, ok := e.authenticate(c, rsp)
	if !ok {
		return
	}

	var in models.SendMessageInput
	if err := json.Unmarshal(data, &in); err != nil {
		rsp.Reply(models.MessageAck{Success: false, Error: "malformed payload"})
		return
	}

	ack, err := e.SendMessage(ctx, ident, in)
	if err != nil {
		// The provisional id rides along so the client can mark exactly
		// that optimistic message as failed.
		rsp.Reply(models.MessageAck{
			Success:       false,
			Error:         publicError(err),
			TempMessageID: in.ProvisionalID,
		})
		return
	}
	rsp.Reply(ack)
}

func (e *Engine) handleReadMark(ctx context.Context, c realtime.Client, data json.RawMessage, rsp *realtime.Responder) {
	ident, ok := e.authenticate(c, rsp)
	if !ok {
		return
	}
	var in models.MarkReadInput
	if err := json.Unmarshal(data, &in); err != nil {
		e.log.WithError(err).WithField("user_id", c.UserID()).Warn("chat: malformed read mark")
		return
	}
	e.MarkRead(ctx, ident, in)
}

// publicError maps engine failures to client-safe strings.
func publicError(err error) string {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return err.Error()
	case errors.Is(err, apperr.ErrNotFound):
		return "chat room not found"
	case errors.Is(err, apperr.ErrForbidden):
		return "not a participant of this chat room"
	default:
		return "failed to send message"
	}
}
