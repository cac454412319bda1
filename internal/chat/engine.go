// Package chat is the message fan-out engine: it validates inbound sends,
// persists messages, partitions recipients into present and absent, and
// emits to room or personal channels accordingly.
package chat

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"sitterlink/realtime/internal/apperr"
	"sitterlink/realtime/internal/auth"
	"sitterlink/realtime/internal/counter"
	"sitterlink/realtime/internal/models"
	"sitterlink/realtime/internal/realtime"
	"sitterlink/realtime/internal/storage"
)

// Server→client event names.
const (
	EventRoomMessageNew = "chat:room:message:new"
	EventUserMessageNew = "chat:user:message:new"
	EventRoomReadUpdate = "chat:room:read:update"
	EventUserMessageClr = "chat:user:newMessage:clear"
)

// TokenVerifier is the capability the engine consumes from the identity
// service.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Engine coordinates the durable store, the counter cache and the
// connection registry for chat traffic.
type Engine struct {
	store    storage.Storage
	counters *counter.Cache
	registry *realtime.Registry
	verifier TokenVerifier
	log      *logrus.Logger
}

func NewEngine(store storage.Storage, counters *counter.Cache, registry *realtime.Registry, verifier TokenVerifier, log *logrus.Logger) *Engine {
	return &Engine{
		store:    store,
		counters: counters,
		registry: registry,
		verifier: verifier,
		log:      log,
	}
}

// SendMessage persists one message and fans it out. Participants currently
// joined to the room channel receive the room event carrying the provisional
// id; everyone else receives the personal event. The returned ack always
// echoes the provisional id so the client can reconcile its optimistic
// message, success or not.
func (e *Engine) SendMessage(ctx context.Context, ident auth.Identity, in models.SendMessageInput) (*models.MessageAck, error) {
	if (in.ChatRoomID == nil) == (len(in.OpponentIDs) == 0) {
		return nil, apperr.Validationf("exactly one of chatRoomId and opponentIds must be set")
	}
	if in.Content == "" {
		return nil, apperr.Validationf("content must not be empty")
	}

	room, err := e.resolveRoom(ctx, ident, in)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ChatRoomID: room.ID,
		SenderID:   ident.UserID,
		Content:    in.Content,
	}
	if err := e.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	e.fanOut(ctx, room, msg, in.ProvisionalID)

	return &models.MessageAck{
		Success:       true,
		Message:       msg,
		TempMessageID: in.ProvisionalID,
	}, nil
}

// resolveRoom loads the explicit room (a pair mismatch is an authorization
// failure, not a not-found: the room may exist but is not the caller's) or
// finds/creates the 1:1 room for (sender, opponent).
func (e *Engine) resolveRoom(ctx context.Context, ident auth.Identity, in models.SendMessageInput) (*models.ChatRoom, error) {
	if in.ChatRoomID != nil {
		room, err := e.store.GetRoomByID(ctx, *in.ChatRoomID)
		if err != nil {
			return nil, err
		}
		if !room.HasParticipant(ident.UserID) {
			return nil, apperr.Forbiddenf("user %d is not a participant of room %d", ident.UserID, room.ID)
		}
		return room, nil
	}

	if len(in.OpponentIDs) != 1 {
		return nil, apperr.Validationf("exactly one opponent is required, got %d", len(in.OpponentIDs))
	}
	opponent := in.OpponentIDs[0]
	if opponent == ident.UserID {
		return nil, apperr.Validationf("cannot open a room with yourself")
	}
	return e.FindOrCreateRoom(ctx, ident, opponent)
}

// FindOrCreateRoom returns the unique room for the unordered pair (caller,
// opponent), creating it on first contact. The caller's role decides which
// side of the room they occupy.
func (e *Engine) FindOrCreateRoom(ctx context.Context, ident auth.Identity, opponentID uint) (*models.ChatRoom, error) {
	room, err := e.store.FindRoomByPair(ctx, ident.UserID, opponentID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	room = &models.ChatRoom{ClientID: ident.UserID, PetsitterID: opponentID}
	if ident.Role == auth.RolePetsitter {
		room.ClientID, room.PetsitterID = opponentID, ident.UserID
	}
	if err := e.store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// fanOut emits the room event once and a personal event per absent
// participant, then bumps every recipient's unread counter. Emission
// failures are logged: the message is already committed and the client will
// still see it on the next history fetch.
func (e *Engine) fanOut(ctx context.Context, room *models.ChatRoom, msg *models.Message, provisionalID string) {
	roomChannel := realtime.RoomChannel(room.ID)

	present := make(map[uint]bool)
	members, err := e.registry.Members(ctx, roomChannel)
	if err != nil {
		e.log.WithError(err).WithField("room_id", room.ID).Warn("chat: membership lookup failed, treating all as absent")
	}
	for _, id := range members {
		present[id] = true
	}

	event := models.RoomMessageEvent{Message: *msg, ProvisionalID: provisionalID}
	if err := e.registry.Emit(ctx, roomChannel, EventRoomMessageNew, event); err != nil {
		e.log.WithError(err).WithField("room_id", room.ID).Error("chat: room emit failed")
	}

	for _, participant := range room.Participants() {
		if participant == msg.SenderID {
			continue
		}
		if !present[participant] {
			// Absent participants get the personal event without the
			// provisional id, since they did not request the send.
			payload := models.UserMessageEvent{Message: *msg}
			if err := e.registry.Emit(ctx, realtime.PersonalChannel(participant), EventUserMessageNew, payload); err != nil {
				e.log.WithError(err).WithField("user_id", participant).Error("chat: personal emit failed")
			}
		}
		e.counters.BumpRoomUnread(ctx, participant, room.ID)
	}
}

// MarkRead persists the caller's read pointer and broadcasts the read marker
// to the room plus a clear event to the reader's other sessions. The socket
// protocol has no response channel for this event, so failures are logged
// and swallowed: an accepted at-most-once, best-effort contract.
func (e *Engine) MarkRead(ctx context.Context, ident auth.Identity, in models.MarkReadInput) {
	room, err := e.store.GetRoomByID(ctx, in.ChatRoomID)
	if err != nil {
		e.log.WithError(err).WithField("room_id", in.ChatRoomID).Warn("chat: mark read on unknown room")
		return
	}
	if !room.HasParticipant(ident.UserID) {
		e.log.WithFields(logrus.Fields{"user_id": ident.UserID, "room_id": room.ID}).
			Warn("chat: mark read from non-participant")
		return
	}

	readAt := in.LastReadMessageCreatedAt
	member := &models.ChatMember{
		UserID:            ident.UserID,
		ChatRoomID:        room.ID,
		LastReadMessageID: &in.LastReadMessageID,
		LastReadAt:        &readAt,
	}
	if err := e.store.UpsertChatMember(ctx, member); err != nil {
		e.log.WithError(err).WithField("room_id", room.ID).Error("chat: persisting read pointer failed")
		return
	}

	e.counters.ClearRoomUnread(ctx, ident.UserID, room.ID)

	update := models.ReadUpdateEvent{
		ChatRoomID: room.ID,
		LastReadMessage: models.ReadPointer{
			ID:        in.LastReadMessageID,
			CreatedAt: in.LastReadMessageCreatedAt,
		},
		ReadBy: ident.UserID,
	}
	if err := e.registry.Emit(ctx, realtime.RoomChannel(room.ID), EventRoomReadUpdate, update); err != nil {
		e.log.WithError(err).WithField("room_id", room.ID).Warn("chat: read update emit failed")
	}
	if err := e.registry.Emit(ctx, realtime.PersonalChannel(ident.UserID), EventUserMessageClr, update); err != nil {
		e.log.WithError(err).WithField("user_id", ident.UserID).Warn("chat: clear emit failed")
	}
}

// JoinRoom subscribes a session to a room channel after a participant check.
func (e *Engine) JoinRoom(ctx context.Context, c realtime.Client, roomID uint) error {
	room, err := e.store.GetRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(c.UserID()) {
		return apperr.Forbiddenf("user %d is not a participant of room %d", c.UserID(), roomID)
	}
	return e.registry.Join(ctx, c, realtime.RoomChannel(roomID))
}

// ListRooms returns the caller's rooms, newest first.
func (e *Engine) ListRooms(ctx context.Context, userID uint, page, pageSize int) ([]models.ChatRoom, models.Pagination, error) {
	rooms, total, err := e.store.ListRoomsForUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return rooms, models.NewPagination(total, page, pageSize), nil
}

// ListMessages returns one page of room history. The store pages
// reverse-chronologically; the page is reversed here so clients always
// receive ascending order within a page.
func (e *Engine) ListMessages(ctx context.Context, userID, roomID uint, page, pageSize int) ([]models.Message, models.Pagination, error) {
	room, err := e.store.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	if !room.HasParticipant(userID) {
		return nil, models.Pagination{}, apperr.Forbiddenf("user %d is not a participant of room %d", userID, roomID)
	}

	msgs, total, err := e.store.ListMessages(ctx, roomID, page, pageSize)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, models.NewPagination(total, page, pageSize), nil
}

// RoomUnread returns the cached unread message count for one room, with the
// durable store as fallback.
func (e *Engine) RoomUnread(ctx context.Context, userID, roomID uint) int64 {
	return e.counters.RoomUnread(ctx, userID, roomID, func(ctx context.Context) (int64, error) {
		return e.store.CountUnreadMessages(ctx, userID, roomID)
	})
}
