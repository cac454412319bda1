package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sitterlink/realtime/internal/apperr"
	"sitterlink/realtime/internal/models"
)

func (s *Service) GetRoomByID(ctx context.Context, id uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db.WithContext(ctx).First(&room, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("chat room %d", id)
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return &room, nil
}

// FindRoomByPair looks the room up by its unordered participant pair.
func (s *Service) FindRoomByPair(ctx context.Context, userA, userB uint) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := s.db.WithContext(ctx).
		Where("(client_id = ? AND petsitter_id = ?) OR (client_id = ? AND petsitter_id = ?)",
			userA, userB, userB, userA).
		First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("chat room for pair (%d,%d)", userA, userB)
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return &room, nil
}

func (s *Service) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	if err := s.db.WithContext(ctx).Create(room).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (s *Service) ListRoomsForUser(ctx context.Context, userID uint, page, pageSize int) ([]models.ChatRoom, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("client_id = ? OR petsitter_id = ?", userID, userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Persistence(err)
	}

	var rooms []models.ChatRoom
	err := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rooms).Error
	if err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	return rooms, total, nil
}

func (s *Service) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

// ListMessages pages reverse-chronologically at the storage layer; callers
// reverse each page before returning it so clients always see ascending
// order within a page.
func (s *Service) ListMessages(ctx context.Context, roomID uint, page, pageSize int) ([]models.Message, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Message{}).Where("chat_room_id = ?", roomID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Persistence(err)
	}

	var msgs []models.Message
	err := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, apperr.Persistence(err)
	}
	return msgs, total, nil
}

func (s *Service) UpsertChatMember(ctx context.Context, member *models.ChatMember) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "chat_room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_message_id", "last_read_at"}),
	}).Create(member).Error
	if err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (s *Service) GetChatMember(ctx context.Context, userID, roomID uint) (*models.ChatMember, error) {
	var member models.ChatMember
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND chat_room_id = ?", userID, roomID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("chat member (%d,%d)", userID, roomID)
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return &member, nil
}

// CountUnreadMessages is the durable recount behind the room unread counter:
// messages from the other participant newer than the user's read pointer.
func (s *Service) CountUnreadMessages(ctx context.Context, userID, roomID uint) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("chat_room_id = ? AND sender_id <> ?", roomID, userID)

	member, err := s.GetChatMember(ctx, userID, roomID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		// No read pointer yet; the whole backlog is unread.
	case err != nil:
		return 0, err
	case member.LastReadMessageID != nil:
		q = q.Where("id > ?", *member.LastReadMessageID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, apperr.Persistence(err)
	}
	return total, nil
}
