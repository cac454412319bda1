package realtime

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// broadcastTopic is the single pub/sub topic every process subscribes to.
const broadcastTopic = "realtime:broadcast"

// RedisBus is the cluster Bus. It holds two distinct connections: one for
// publishing and normal commands, one exclusively for the blocking
// subscription, since a subscribing connection cannot issue other commands.
// Channel membership lives in Redis sets keyed by channel name so Members is
// cluster-wide.
type RedisBus struct {
	pub *redis.Client
	sub *redis.Client
	log *logrus.Logger

	pubsub *redis.PubSub
}

func NewRedisBus(pub, sub *redis.Client, log *logrus.Logger) *RedisBus {
	return &RedisBus{pub: pub, sub: sub, log: log}
}

func memberKey(channel string) string {
	return "chan:" + channel + ":members"
}

// memberValue encodes one session's membership. Sets hold userID:sessionID
// rather than bare user ids so one session's leave cannot evict a user whose
// other sessions are still joined, matching LocalBus semantics.
func memberValue(userID uint, sessionID string) string {
	return strconv.FormatUint(uint64(userID), 10) + ":" + sessionID
}

func (b *RedisBus) Publish(ctx context.Context, ev BusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.pub.Publish(ctx, broadcastTopic, data).Err()
}

// Start subscribes on the dedicated subscriber connection and forwards every
// broadcast frame to deliver. Malformed frames are logged and skipped.
func (b *RedisBus) Start(ctx context.Context, deliver func(BusEvent)) error {
	b.pubsub = b.sub.Subscribe(ctx, broadcastTopic)
	if _, err := b.pubsub.Receive(ctx); err != nil {
		return err
	}

	go func() {
		for msg := range b.pubsub.Channel() {
			var ev BusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.WithError(err).Warn("bus: dropping malformed broadcast frame")
				continue
			}
			deliver(ev)
		}
	}()
	return nil
}

func (b *RedisBus) AddMember(ctx context.Context, channel string, userID uint, sessionID string) error {
	return b.pub.SAdd(ctx, memberKey(channel), memberValue(userID, sessionID)).Err()
}

func (b *RedisBus) RemoveMember(ctx context.Context, channel string, userID uint, sessionID string) error {
	return b.pub.SRem(ctx, memberKey(channel), memberValue(userID, sessionID)).Err()
}

// Members returns the distinct user ids with at least one session joined.
func (b *RedisBus) Members(ctx context.Context, channel string) ([]uint, error) {
	raw, err := b.pub.SMembers(ctx, memberKey(channel)).Result()
	if err != nil {
		return nil, err
	}
	seen := make(map[uint]struct{}, len(raw))
	ids := make([]uint, 0, len(raw))
	for _, s := range raw {
		idPart, _, _ := strings.Cut(s, ":")
		id, err := strconv.ParseUint(idPart, 10, 64)
		if err != nil {
			b.log.WithField("member", s).Warn("bus: skipping malformed channel member")
			continue
		}
		if _, ok := seen[uint(id)]; ok {
			continue
		}
		seen[uint(id)] = struct{}{}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func (b *RedisBus) Close() error {
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}
