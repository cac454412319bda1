package models

import "time"

// ChatRoom is a 1:1 conversation between a client and a petsitter. At most
// one room exists per unordered participant pair; rooms are created on the
// first message exchange or an explicit create request and never mutated
// afterwards (deleting a room cascades to its messages).
type ChatRoom struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ClientID    uint      `gorm:"not null;uniqueIndex:idx_room_pair" json:"clientId"`
	PetsitterID uint      `gorm:"not null;uniqueIndex:idx_room_pair" json:"petsitterId"`
	CreatedAt   time.Time `json:"createdAt"`

	Messages []Message `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// HasParticipant reports whether the user is one of the two room members.
func (r *ChatRoom) HasParticipant(userID uint) bool {
	return r.ClientID == userID || r.PetsitterID == userID
}

// Opponent returns the other participant of the room.
func (r *ChatRoom) Opponent(userID uint) uint {
	if r.ClientID == userID {
		return r.PetsitterID
	}
	return r.ClientID
}

// Participants returns both member ids.
func (r *ChatRoom) Participants() []uint {
	return []uint{r.ClientID, r.PetsitterID}
}

// Message is immutable once created. A room owns an ordered sequence of
// messages: creation-time order, ties broken by id.
type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ChatRoomID uint      `gorm:"not null;index:idx_msg_room" json:"chatRoomId"`
	SenderID   uint      `gorm:"not null" json:"senderId"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `gorm:"index:idx_msg_room" json:"createdAt"`
}

// ChatMember holds a participant's read pointer for one room. One row per
// (user, room), mutated only by that user's read-receipt action.
type ChatMember struct {
	UserID            uint       `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	ChatRoomID        uint       `gorm:"primaryKey;autoIncrement:false" json:"chatRoomId"`
	LastReadMessageID *uint      `json:"lastReadMessageId"`
	LastReadAt        *time.Time `json:"lastReadAt"`
}
