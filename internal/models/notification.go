package models

import (
	"time"

	"github.com/lib/pq"
)

// NotificationType enumerates the producers of a notification.
type NotificationType string

const (
	NotificationReservationUpdate NotificationType = "reservation-update"
	NotificationMessage           NotificationType = "message"
	NotificationSystem            NotificationType = "system"
)

// Notification is immutable after creation. SenderID is nil for
// system-generated notifications.
type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	Type        NotificationType `gorm:"type:text;not null" json:"type"`
	SenderID    *uint            `json:"senderId"`
	Message     string           `gorm:"type:text;not null" json:"message"`
	ReceiverIDs pq.Int64Array    `gorm:"type:bigint[]" json:"receiverIds"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NotificationRead is one row per (notification, recipient), created in the
// same transaction as its Notification. The sender's row is pre-marked read.
type NotificationRead struct {
	NotificationID uint       `gorm:"primaryKey;autoIncrement:false" json:"notificationId"`
	UserID         uint       `gorm:"primaryKey;autoIncrement:false;index:idx_noti_read_user" json:"userId"`
	IsRead         bool       `gorm:"not null;default:false" json:"isRead"`
	ReadAt         *time.Time `json:"readAt"`
}

// UserNotification is a notification joined with the requesting user's read
// row, the shape returned by the listing endpoint and the socket event.
type UserNotification struct {
	Notification
	IsRead bool       `json:"isRead"`
	ReadAt *time.Time `json:"readAt"`
}
