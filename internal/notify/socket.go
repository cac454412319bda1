package notify

import (
	"context"
	"encoding/json"

	"sitterlink/realtime/internal/models"
	"sitterlink/realtime/internal/realtime"
)

const eventAuthExpired = "auth:expired"

// handleUserJoin re-verifies the session credential before joining, the same
// discipline every chat handler applies per inbound event.
func (e *Engine) handleUserJoin(ctx context.Context, c realtime.Client, _ json.RawMessage, rsp *realtime.Responder) {
	if _, err := e.verifier.Verify(c.Token()); err != nil {
		rsp.ReplyOr(eventAuthExpired, models.AuthExpiredEvent{Message: "authentication expired"})
		return
	}
	if err := e.registry.Join(ctx, c, realtime.PersonalChannel(c.UserID())); err != nil {
		e.log.WithError(err).WithField("user_id", c.UserID()).Warn("notify: personal join failed")
	}
}
