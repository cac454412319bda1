// Package storage is the durable-store layer over Postgres. Redis-backed
// state (counters, channel membership, broadcast) lives in the counter and
// realtime packages; everything here is authoritative.
package storage

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"sitterlink/realtime/internal/models"
)

// Storage is the durable-store contract the engines depend on.
type Storage interface {
	// InTransaction runs fn inside one transaction; fn receives a Storage
	// bound to that transaction. Rolled back when fn errors.
	InTransaction(ctx context.Context, fn func(tx Storage) error) error

	// Rooms
	GetRoomByID(ctx context.Context, id uint) (*models.ChatRoom, error)
	FindRoomByPair(ctx context.Context, userA, userB uint) (*models.ChatRoom, error)
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	ListRoomsForUser(ctx context.Context, userID uint, page, pageSize int) ([]models.ChatRoom, int64, error)

	// Messages and read pointers
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, roomID uint, page, pageSize int) ([]models.Message, int64, error)
	UpsertChatMember(ctx context.Context, member *models.ChatMember) error
	GetChatMember(ctx context.Context, userID, roomID uint) (*models.ChatMember, error)
	CountUnreadMessages(ctx context.Context, userID, roomID uint) (int64, error)

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateNotificationReads(ctx context.Context, reads []models.NotificationRead) error
	ListNotificationsForUser(ctx context.Context, userID uint, page, pageSize int) ([]models.UserNotification, int64, error)
	GetNotificationReads(ctx context.Context, userID uint, notificationIDs []uint) ([]models.NotificationRead, error)
	MarkNotificationReads(ctx context.Context, userID uint, notificationIDs []uint) error
	CountUnreadNotifications(ctx context.Context, userID uint) (int64, error)
}

// Service implements Storage on gorm.
type Service struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewService(db *gorm.DB, log *logrus.Logger) *Service {
	return &Service{db: db, log: log}
}

// Migrate creates or updates the schema for every model this service owns.
func (s *Service) Migrate() error {
	return s.db.AutoMigrate(
		&models.ChatRoom{},
		&models.Message{},
		&models.ChatMember{},
		&models.Notification{},
		&models.NotificationRead{},
	)
}

func (s *Service) InTransaction(ctx context.Context, fn func(tx Storage) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Service{db: tx, log: s.log})
	})
}
