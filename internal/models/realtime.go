package models

import "time"

// Wire payloads for the socket surface. Payload shapes are declared here and
// validated at the boundary before they reach engine logic.

// SendMessageInput is the chat:message:new request. Exactly one of
// ChatRoomID and OpponentIDs must be set.
type SendMessageInput struct {
	ChatRoomID    *uint  `json:"chatRoomId,omitempty"`
	OpponentIDs   []uint `json:"opponentIds,omitempty"`
	Content       string `json:"content"`
	ProvisionalID string `json:"provisionalId"`
}

// MarkReadInput is the chat:read:mark request.
type MarkReadInput struct {
	ChatRoomID               uint      `json:"chatRoomId"`
	LastReadMessageID        uint      `json:"lastReadMessageId"`
	LastReadMessageCreatedAt time.Time `json:"lastReadMessageCreatedAt"`
}

// MessageAck is the response to chat:message:new. On failure, Error is set
// and TempMessageID still echoes the provisional id so the client can mark
// that specific optimistic message as failed.
type MessageAck struct {
	Success       bool     `json:"success"`
	Message       *Message `json:"message,omitempty"`
	Error         string   `json:"error,omitempty"`
	TempMessageID string   `json:"tempMessageId"`
}

// RoomMessageEvent is chat:room:message:new, delivered on the room channel
// to participants currently viewing the room. It carries the provisional id
// for client-side reconciliation of idempotent retries.
type RoomMessageEvent struct {
	Message       Message `json:"message"`
	ProvisionalID string  `json:"provisionalId,omitempty"`
}

// UserMessageEvent is chat:user:message:new, delivered on the personal
// channel to participants not currently joined to the room.
type UserMessageEvent struct {
	Message Message `json:"message"`
}

// ReadPointer identifies the last message covered by a read receipt.
type ReadPointer struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReadUpdateEvent is both chat:room:read:update and
// chat:user:newMessage:clear.
type ReadUpdateEvent struct {
	ChatRoomID      uint        `json:"chatRoomId"`
	LastReadMessage ReadPointer `json:"lastReadMessage"`
	ReadBy          uint        `json:"readBy"`
}

// RoomJoinInput is the chat:room:join request.
type RoomJoinInput struct {
	ChatRoomID uint `json:"chatRoomId"`
}

// AuthExpiredEvent is emitted in lieu of a failed ack when the client
// supplied no acknowledgment callback.
type AuthExpiredEvent struct {
	Message string `json:"message"`
}

// ReservationActor identifies the user behind a queue event.
type ReservationActor struct {
	ID uint `json:"id"`
}

// ReservationEvent is the reservation-update message consumed from the
// external queue. Delivery is at least once; see the notify engine for the
// documented duplicate behavior.
type ReservationEvent struct {
	ReservationID uint             `json:"reservationId"`
	Sender        ReservationActor `json:"sender"`
	ReceiverIDs   []uint           `json:"receiverIds"`
	EventType     string           `json:"eventType"`
	Status        string           `json:"status"`
}

// Pagination is the result envelope metadata for the HTTP surface.
type Pagination struct {
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
}

// NewPagination derives the envelope from a total row count and page inputs.
func NewPagination(total int64, page, pageSize int) Pagination {
	totalPages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		totalPages++
	}
	return Pagination{Total: total, TotalPages: totalPages, Page: page, PageSize: pageSize}
}
