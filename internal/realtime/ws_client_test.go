package realtime_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitterlink/realtime/internal/realtime"
)

func TestClose_IsIdempotentAndKeepsSendWritable(t *testing.T) {
	c := realtime.NewWebSocketClient(nil, 1, "", nil, nil, quietLog())

	c.Close()
	c.Close()

	env, err := realtime.NewEnvelope("chat:room:message:new", map[string]int{"n": 1})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		select {
		case c.Send() <- env:
		default:
		}
	})
}

// A handler still in flight when the registry drops its client must be able
// to reply without crashing the process.
func TestReplyAfterDropDoesNotPanic(t *testing.T) {
	log := quietLog()
	reg := realtime.NewRegistry(realtime.NewLocalBus(), log)
	require.NoError(t, reg.Start(context.Background()))

	router := realtime.NewRouter(log)
	router.Handle("chat:message:new", func(_ context.Context, _ realtime.Client, _ json.RawMessage, rsp *realtime.Responder) {
		rsp.Reply(map[string]bool{"success": true})
	})

	c := realtime.NewWebSocketClient(nil, 1, "", reg, router, log)
	reg.Register(c)
	require.NoError(t, reg.Join(context.Background(), c, realtime.RoomChannel(5)))

	// A slow-client drop unregisters and closes the session.
	reg.Unregister(context.Background(), c)
	c.Close()

	assert.NotPanics(t, func() {
		router.Dispatch(context.Background(), c, realtime.Envelope{Event: "chat:message:new", AckID: "a1"})
	})
}
