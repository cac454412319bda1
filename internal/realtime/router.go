package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// HandlerFunc processes one inbound socket event. Responses go through the
// Responder so handlers never branch on whether the client supplied an
// acknowledgment id.
type HandlerFunc func(ctx context.Context, c Client, data json.RawMessage, rsp *Responder)

// Router dispatches inbound envelopes to registered event handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	log      *logrus.Logger
}

func NewRouter(log *logrus.Logger) *Router {
	return &Router{handlers: make(map[string]HandlerFunc), log: log}
}

// Handle registers the handler for a named event.
func (r *Router) Handle(event string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = fn
}

// Dispatch routes one envelope. Unknown events are logged and dropped.
func (r *Router) Dispatch(ctx context.Context, c Client, env Envelope) {
	r.mu.RLock()
	fn, ok := r.handlers[env.Event]
	r.mu.RUnlock()
	if !ok {
		r.log.WithFields(logrus.Fields{
			"event":   env.Event,
			"user_id": c.UserID(),
		}).Warn("router: unknown event")
		return
	}
	fn(ctx, c, env.Data, &Responder{client: c, ackID: env.AckID, log: r.log})
}

// Responder is the single response strategy for socket handlers: reply via
// the acknowledgment id when the client supplied one, otherwise optionally
// emit a named fallback event on the same socket.
type Responder struct {
	client Client
	ackID  string
	log    *logrus.Logger
}

// HasAck reports whether the client asked for an acknowledgment.
func (r *Responder) HasAck() bool { return r.ackID != "" }

// Reply acknowledges with the payload when an ack id was supplied; it is a
// no-op otherwise.
func (r *Responder) Reply(payload any) {
	if r.ackID == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.WithError(err).Error("responder: marshal ack payload")
		return
	}
	r.send(Envelope{Event: AckEvent, AckID: r.ackID, Data: data})
}

// ReplyOr acknowledges with the payload when an ack id was supplied, and
// emits the named event with the same payload otherwise. Socket protocols
// with no response channel use this for failures such as auth:expired.
func (r *Responder) ReplyOr(event string, payload any) {
	if r.ackID != "" {
		r.Reply(payload)
		return
	}
	env, err := NewEnvelope(event, payload)
	if err != nil {
		r.log.WithError(err).Error("responder: marshal fallback payload")
		return
	}
	r.send(env)
}

func (r *Responder) send(env Envelope) {
	select {
	case r.client.Send() <- env:
	default:
		r.log.WithField("user_id", r.client.UserID()).Warn("responder: dropping reply to slow client")
	}
}
