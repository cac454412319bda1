package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry maps authenticated users to their open sockets on this process
// and channel names to locally joined sockets. Emits go through the bus, so
// delivery is cluster-wide; each process then fans out to its own members.
// The registry is passed by reference into handlers, never accessed as a
// process-wide singleton.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint]map[Client]struct{}
	channels map[string]map[Client]struct{}
	joined   map[Client]map[string]struct{}

	bus Bus
	log *logrus.Logger
}

func NewRegistry(bus Bus, log *logrus.Logger) *Registry {
	return &Registry{
		sessions: make(map[uint]map[Client]struct{}),
		channels: make(map[string]map[Client]struct{}),
		joined:   make(map[Client]map[string]struct{}),
		bus:      bus,
		log:      log,
	}
}

// Start begins consuming bus events and dispatching them to local sockets.
func (r *Registry) Start(ctx context.Context) error {
	return r.bus.Start(ctx, r.deliver)
}

// Register adds a freshly authenticated session.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[c.UserID()] == nil {
		r.sessions[c.UserID()] = make(map[Client]struct{})
	}
	r.sessions[c.UserID()][c] = struct{}{}
	r.joined[c] = make(map[string]struct{})
}

// Unregister removes the session and leaves every channel it had joined.
func (r *Registry) Unregister(ctx context.Context, c Client) {
	r.mu.Lock()
	channels := make([]string, 0, len(r.joined[c]))
	for name := range r.joined[c] {
		channels = append(channels, name)
		if set := r.channels[name]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(r.channels, name)
			}
		}
	}
	delete(r.joined, c)
	if set := r.sessions[c.UserID()]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(r.sessions, c.UserID())
		}
	}
	r.mu.Unlock()

	for _, name := range channels {
		if err := r.bus.RemoveMember(ctx, name, c.UserID(), c.SessionID()); err != nil {
			r.log.WithError(err).WithField("channel", name).Warn("registry: membership removal failed")
		}
	}
}

// Join adds the session to a named channel, locally and on the bus. A
// repeated join of the same channel is a no-op: Unregister removes each
// joined channel exactly once, so a second AddMember would leak cluster
// membership past disconnect.
func (r *Registry) Join(ctx context.Context, c Client, channel string) error {
	r.mu.Lock()
	if _, ok := r.joined[c][channel]; ok {
		r.mu.Unlock()
		return nil
	}
	if r.channels[channel] == nil {
		r.channels[channel] = make(map[Client]struct{})
	}
	r.channels[channel][c] = struct{}{}
	if r.joined[c] == nil {
		r.joined[c] = make(map[string]struct{})
	}
	r.joined[c][channel] = struct{}{}
	r.mu.Unlock()

	return r.bus.AddMember(ctx, channel, c.UserID(), c.SessionID())
}

// Leave removes the session from a named channel.
func (r *Registry) Leave(ctx context.Context, c Client, channel string) error {
	r.mu.Lock()
	if set := r.channels[channel]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(r.channels, channel)
		}
	}
	if set := r.joined[c]; set != nil {
		delete(set, channel)
	}
	r.mu.Unlock()

	return r.bus.RemoveMember(ctx, channel, c.UserID(), c.SessionID())
}

// Emit broadcasts a named event to every member of the channel, cluster-wide.
func (r *Registry) Emit(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.bus.Publish(ctx, BusEvent{Channel: channel, Name: event, Payload: data})
}

// Members returns the user ids currently joined to the channel, across all
// processes.
func (r *Registry) Members(ctx context.Context, channel string) ([]uint, error) {
	return r.bus.Members(ctx, channel)
}

// deliver fans one bus event out to the local members of its channel. A
// client whose send buffer is full is closed and unregistered rather than
// blocking the dispatch loop.
func (r *Registry) deliver(ev BusEvent) {
	env := Envelope{Event: ev.Name, Data: ev.Payload}

	r.mu.RLock()
	targets := make([]Client, 0, len(r.channels[ev.Channel]))
	for c := range r.channels[ev.Channel] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.Send() <- env:
		default:
			r.log.WithFields(logrus.Fields{
				"user_id": c.UserID(),
				"channel": ev.Channel,
			}).Warn("registry: dropping slow client")
			r.Unregister(context.Background(), c)
			c.Close()
		}
	}
}
