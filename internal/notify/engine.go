// Package notify is the notification fan-out engine: it turns domain events
// from the queue into durable notifications with per-recipient read rows,
// keeps the unread counter cache in step, and emits to recipient channels.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"sitterlink/realtime/internal/apperr"
	"sitterlink/realtime/internal/auth"
	"sitterlink/realtime/internal/counter"
	"sitterlink/realtime/internal/models"
	"sitterlink/realtime/internal/realtime"
	"sitterlink/realtime/internal/storage"
)

// EventUserNewNotification is the server→client personal-channel event.
const EventUserNewNotification = "noti:user:newNoti"

// EventUserJoin joins the caller's personal notification channel.
const EventUserJoin = "noti:user:join"

// TokenVerifier is the capability the engine consumes from the identity
// service.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Engine coordinates the durable store, the counter cache and the registry
// for notification traffic.
type Engine struct {
	store    storage.Storage
	counters *counter.Cache
	registry *realtime.Registry
	verifier TokenVerifier
	log      *logrus.Logger
}

func NewEngine(store storage.Storage, counters *counter.Cache, registry *realtime.Registry, verifier TokenVerifier, log *logrus.Logger) *Engine {
	return &Engine{store: store, counters: counters, registry: registry, verifier: verifier, log: log}
}

// HandleReservationEvent processes one reservation-update queue event. The
// notification row and every read row commit in one transaction; the counter
// cache is touched strictly after commit so a counter can never run ahead of
// state a client can fetch. Queue delivery is at least once and this path
// carries no dedup key, so a redelivered event creates a second notification
// row; producer-side deduplication is the documented guard.
func (e *Engine) HandleReservationEvent(ctx context.Context, evt models.ReservationEvent) (*models.Notification, error) {
	if evt.Sender.ID == 0 {
		return nil, apperr.Validationf("reservation event missing sender")
	}
	receivers := dedupeReceivers(evt.ReceiverIDs, evt.Sender.ID)
	if len(receivers) == 0 {
		return nil, apperr.Validationf("reservation event has no receivers")
	}

	senderID := evt.Sender.ID
	notification := &models.Notification{
		Type:        models.NotificationReservationUpdate,
		SenderID:    &senderID,
		Message:     fmt.Sprintf("Reservation %d update: %s", evt.ReservationID, evt.Status),
		ReceiverIDs: toInt64Array(receivers),
	}

	err := e.store.InTransaction(ctx, func(tx storage.Storage) error {
		if err := tx.CreateNotification(ctx, notification); err != nil {
			return err
		}
		now := time.Now()
		reads := make([]models.NotificationRead, 0, len(receivers)+1)
		for _, id := range receivers {
			reads = append(reads, models.NotificationRead{
				NotificationID: notification.ID,
				UserID:         id,
			})
		}
		// The sender's row is pre-marked read so their unread count is
		// untouched by their own action.
		reads = append(reads, models.NotificationRead{
			NotificationID: notification.ID,
			UserID:         senderID,
			IsRead:         true,
			ReadAt:         &now,
		})
		return tx.CreateNotificationReads(ctx, reads)
	})
	if err != nil {
		return nil, err
	}

	payload := models.UserNotification{Notification: *notification}
	for _, id := range receivers {
		e.counters.BumpNotificationUnread(ctx, id)
		if err := e.registry.Emit(ctx, realtime.PersonalChannel(id), EventUserNewNotification, payload); err != nil {
			e.log.WithError(err).WithField("user_id", id).Error("notify: personal emit failed")
		}
	}
	return notification, nil
}

// MarkAsRead marks the batch read for the caller and returns how many were
// previously unread. A missing (notification, user) read row means the
// caller is not a recipient: a hard error, never a fabricated row. The
// counter decrements by the previously-unread count, not the batch size.
func (e *Engine) MarkAsRead(ctx context.Context, userID uint, notificationIDs []uint) (int64, error) {
	ids := dedupeIDs(notificationIDs)
	if len(ids) == 0 {
		return 0, apperr.Validationf("no notification ids supplied")
	}

	reads, err := e.store.GetNotificationReads(ctx, userID, ids)
	if err != nil {
		return 0, err
	}
	if len(reads) != len(ids) {
		return 0, apperr.Forbiddenf("user %d is not a recipient of every requested notification", userID)
	}

	unread := make([]uint, 0, len(reads))
	for _, r := range reads {
		if !r.IsRead {
			unread = append(unread, r.NotificationID)
		}
	}
	if len(unread) == 0 {
		return 0, nil
	}

	if err := e.store.MarkNotificationReads(ctx, userID, unread); err != nil {
		return 0, err
	}
	n := int64(len(unread))
	e.counters.DropNotificationUnread(ctx, userID, n, e.recountFor(userID))
	return n, nil
}

// UnreadCount is cache-first with a durable recount and repopulate on miss.
func (e *Engine) UnreadCount(ctx context.Context, userID uint) int64 {
	return e.counters.NotificationUnread(ctx, userID, e.recountFor(userID))
}

// ListNotifications returns one page of the caller's notifications with
// their read state, newest first.
func (e *Engine) ListNotifications(ctx context.Context, userID uint, page, pageSize int) ([]models.UserNotification, models.Pagination, error) {
	rows, total, err := e.store.ListNotificationsForUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return rows, models.NewPagination(total, page, pageSize), nil
}

// RegisterSocketHandlers wires the notification events into the socket
// router. Joining the personal notification channel is the same personal
// channel chat uses, so any emit reaches all of the user's sessions.
func (e *Engine) RegisterSocketHandlers(router *realtime.Router) {
	router.Handle(EventUserJoin, e.handleUserJoin)
}

func (e *Engine) recountFor(userID uint) counter.RecountFunc {
	return func(ctx context.Context) (int64, error) {
		return e.store.CountUnreadNotifications(ctx, userID)
	}
}

func dedupeReceivers(ids []uint, senderID uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == senderID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func toInt64Array(ids []uint) pq.Int64Array {
	out := make(pq.Int64Array, 0, len(ids))
	for _, id := range ids {
		out = append(out, int64(id))
	}
	return out
}
