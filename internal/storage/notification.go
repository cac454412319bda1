package storage

import (
	"context"
	"time"

	"sitterlink/realtime/internal/apperr"
	"sitterlink/realtime/internal/models"
)

func (s *Service) CreateNotification(ctx context.Context, n *models.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (s *Service) CreateNotificationReads(ctx context.Context, reads []models.NotificationRead) error {
	if len(reads) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&reads).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (s *Service) ListNotificationsForUser(ctx context.Context, userID uint, page, pageSize int) ([]models.UserNotification, int64, error) {
	base := s.db.WithContext(ctx).
		Table("notifications").
		Joins("JOIN notification_reads ON notification_reads.notification_id = notifications.id").
		Where("notification_reads.user_id = ?", userID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, apperr.Persistence(err)
	}

	var rows []models.UserNotification
	err := base.
		Select("notifications.*, notification_reads.is_read, notification_reads.read_at").
		Order("notifications.created_at DESC, notifications.id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	return rows, total, nil
}

func (s *Service) GetNotificationReads(ctx context.Context, userID uint, notificationIDs []uint) ([]models.NotificationRead, error) {
	var reads []models.NotificationRead
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND notification_id IN ?", userID, notificationIDs).
		Find(&reads).Error
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return reads, nil
}

func (s *Service) MarkNotificationReads(ctx context.Context, userID uint, notificationIDs []uint) error {
	if len(notificationIDs) == 0 {
		return nil
	}
	now := time.Now()
	err := s.db.WithContext(ctx).Model(&models.NotificationRead{}).
		Where("user_id = ? AND notification_id IN ?", userID, notificationIDs).
		Updates(map[string]any{"is_read": true, "read_at": now}).Error
	if err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

// CountUnreadNotifications is the durable recount behind the notification
// counter cache.
func (s *Service) CountUnreadNotifications(ctx context.Context, userID uint) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&models.NotificationRead{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&total).Error
	if err != nil {
		return 0, apperr.Persistence(err)
	}
	return total, nil
}
