package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// BusEvent is one emit replicated to every process.
type BusEvent struct {
	Channel string          `json:"channel"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Bus replicates channel membership and emit events across processes.
// RedisBus is the cluster implementation; LocalBus delivers within a single
// process and backs tests and the degraded no-Redis mode. The choice is made
// by configuration at wiring time, never by conditional code paths.
type Bus interface {
	// Publish broadcasts the event to every subscribed process, including
	// the caller's.
	Publish(ctx context.Context, ev BusEvent) error
	// Start begins consuming published events, invoking deliver for each.
	Start(ctx context.Context, deliver func(BusEvent)) error
	// AddMember records that one session of userID joined the channel.
	// Membership is tracked per session: a user with several sockets stays
	// a member until the last one leaves.
	AddMember(ctx context.Context, channel string, userID uint, sessionID string) error
	// RemoveMember records that one session of userID left the channel.
	RemoveMember(ctx context.Context, channel string, userID uint, sessionID string) error
	// Members returns the user ids currently joined to the channel,
	// cluster-wide.
	Members(ctx context.Context, channel string) ([]uint, error)
	Close() error
}

// LocalBus is the in-process Bus. Publish dispatches synchronously to the
// local deliver func; membership lives in process memory as
// channel → user → sessions.
type LocalBus struct {
	mu      sync.RWMutex
	deliver func(BusEvent)
	members map[string]map[uint]map[string]struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{members: make(map[string]map[uint]map[string]struct{})}
}

func (b *LocalBus) Start(_ context.Context, deliver func(BusEvent)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliver = deliver
	return nil
}

func (b *LocalBus) Publish(_ context.Context, ev BusEvent) error {
	b.mu.RLock()
	deliver := b.deliver
	b.mu.RUnlock()
	if deliver != nil {
		deliver(ev)
	}
	return nil
}

func (b *LocalBus) AddMember(_ context.Context, channel string, userID uint, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.members[channel] == nil {
		b.members[channel] = make(map[uint]map[string]struct{})
	}
	if b.members[channel][userID] == nil {
		b.members[channel][userID] = make(map[string]struct{})
	}
	b.members[channel][userID][sessionID] = struct{}{}
	return nil
}

func (b *LocalBus) RemoveMember(_ context.Context, channel string, userID uint, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	users := b.members[channel]
	if users == nil {
		return nil
	}
	sessions := users[userID]
	if sessions == nil {
		return nil
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(b.members, channel)
	}
	return nil
}

func (b *LocalBus) Members(_ context.Context, channel string) ([]uint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	set := b.members[channel]
	ids := make([]uint, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (b *LocalBus) Close() error { return nil }
