// Package counter maintains the per-user unread counters: message unread per
// room and notification unread per user. The counters are a derived,
// best-effort cache; the durable store is authoritative. Every mutation is
// an atomic increment/decrement against the key-value store, never a
// read-modify-write in application code.
package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// MessageTTL bounds the per-room unread message counters.
	MessageTTL = 30 * time.Minute
	// NotificationTTL bounds the per-user unread notification counters.
	NotificationTTL = time.Hour
)

// Store is the minimal key-value contract the cache needs. RedisStore is the
// production implementation; MemStore backs tests and degraded mode.
type Store interface {
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	DecrBy(ctx context.Context, key string, n int64) (int64, error)
	// Get returns (value, found, error).
	Get(ctx context.Context, key string) (int64, bool, error)
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RecountFunc recomputes the authoritative count from the durable store.
type RecountFunc func(ctx context.Context) (int64, error)

// Cache wraps a Store with the counter lifecycle: write-through increments
// at fan-out time, decrement/clear at read-receipt time, recount fallback on
// miss, and self-heal on negative drift. Cache failures are logged and never
// surfaced.
type Cache struct {
	store Store
	log   *logrus.Logger
}

func New(store Store, log *logrus.Logger) *Cache {
	return &Cache{store: store, log: log}
}

func messageKey(userID, roomID uint) string {
	return fmt.Sprintf("unread:msg:%d:%d", userID, roomID)
}

func notificationKey(userID uint) string {
	return fmt.Sprintf("unread:noti:%d", userID)
}

// BumpRoomUnread increments the user's unread counter for one room.
func (c *Cache) BumpRoomUnread(ctx context.Context, userID, roomID uint) {
	c.bump(ctx, messageKey(userID, roomID), MessageTTL)
}

// ClearRoomUnread drops the user's unread counter for one room, typically on
// a read receipt covering the room.
func (c *Cache) ClearRoomUnread(ctx context.Context, userID, roomID uint) {
	if err := c.store.Del(ctx, messageKey(userID, roomID)); err != nil {
		c.log.WithError(err).WithField("user_id", userID).Warn("counter: clear room unread failed")
	}
}

// RoomUnread returns the cached unread message count for (user, room),
// recounting from the durable store and repopulating on miss.
func (c *Cache) RoomUnread(ctx context.Context, userID, roomID uint, recount RecountFunc) int64 {
	return c.read(ctx, messageKey(userID, roomID), MessageTTL, recount)
}

// BumpNotificationUnread increments the user's total notification counter.
func (c *Cache) BumpNotificationUnread(ctx context.Context, userID uint) {
	c.bump(ctx, notificationKey(userID), NotificationTTL)
}

// DropNotificationUnread decrements the user's notification counter by n,
// where n is the count of previously-unread items actually marked, never the
// batch size.
func (c *Cache) DropNotificationUnread(ctx context.Context, userID uint, n int64, recount RecountFunc) {
	if n <= 0 {
		return
	}
	key := notificationKey(userID)
	val, err := c.store.DecrBy(ctx, key, n)
	if err != nil {
		c.log.WithError(err).WithField("user_id", userID).Warn("counter: decrement failed")
		return
	}
	if val < 0 {
		c.heal(ctx, key, NotificationTTL, recount)
	}
}

// NotificationUnread returns the cached total unread notification count,
// recounting and repopulating on miss.
func (c *Cache) NotificationUnread(ctx context.Context, userID uint, recount RecountFunc) int64 {
	return c.read(ctx, notificationKey(userID), NotificationTTL, recount)
}

func (c *Cache) bump(ctx context.Context, key string, ttl time.Duration) {
	val, err := c.store.IncrBy(ctx, key, 1)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("counter: increment failed")
		return
	}
	if err := c.store.Expire(ctx, key, ttl); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("counter: expire failed")
	}
	if val < 0 {
		// Drift from a previous failed decrement path; reset lazily on the
		// next read, which carries the recount func.
		c.log.WithField("key", key).Warn("counter: negative after increment")
	}
}

// read is cache-first; a miss, an error, or a negative value all resolve to
// the durable-store recount.
func (c *Cache) read(ctx context.Context, key string, ttl time.Duration, recount RecountFunc) int64 {
	val, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("counter: read failed, falling back to recount")
		return c.recountOnly(ctx, recount)
	}
	if found && val >= 0 {
		return val
	}
	return c.heal(ctx, key, ttl, recount)
}

// heal resets the key to the durable-store-derived true value. Used on cache
// miss and whenever a counter is observed negative.
func (c *Cache) heal(ctx context.Context, key string, ttl time.Duration, recount RecountFunc) int64 {
	val := c.recountOnly(ctx, recount)
	if val < 0 {
		return 0
	}
	if err := c.store.Set(ctx, key, val, ttl); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("counter: repopulate failed")
	}
	return val
}

func (c *Cache) recountOnly(ctx context.Context, recount RecountFunc) int64 {
	if recount == nil {
		return 0
	}
	val, err := recount(ctx)
	if err != nil {
		c.log.WithError(err).Error("counter: durable recount failed")
		return 0
	}
	return val
}
