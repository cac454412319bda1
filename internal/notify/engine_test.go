package notify_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sitterlink/realtime/internal/apperr"
	"sitterlink/realtime/internal/auth"
	"sitterlink/realtime/internal/counter"
	"sitterlink/realtime/internal/models"
	"sitterlink/realtime/internal/notify"
	"sitterlink/realtime/internal/realtime"
)

type fixture struct {
	store    *MockStorage
	counters *counter.MemStore
	registry *realtime.Registry
	engine   *notify.Engine
	verifier *stubVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := new(MockStorage)
	mem := counter.NewMemStore()
	registry := realtime.NewRegistry(realtime.NewLocalBus(), log)
	require.NoError(t, registry.Start(context.Background()))

	verifier := &stubVerifier{ident: auth.Identity{UserID: 2, Role: auth.RoleClient}}
	engine := notify.NewEngine(store, counter.New(mem, log), registry, verifier, log)
	return &fixture{store: store, counters: mem, registry: registry, engine: engine, verifier: verifier}
}

func reservationEvent() models.ReservationEvent {
	return models.ReservationEvent{
		ReservationID: 42,
		Sender:        models.ReservationActor{ID: 1},
		ReceiverIDs:   []uint{2, 3},
		EventType:     "reservation_update",
		Status:        "Accepted",
	}
}

func expectCreate(f *fixture, notificationID uint) *[]models.NotificationRead {
	var captured []models.NotificationRead
	f.store.On("InTransaction", mock.Anything, mock.Anything).Return(nil)
	f.store.On("CreateNotification", mock.Anything, mock.AnythingOfType("*models.Notification")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Notification).ID = notificationID
		}).Return(nil)
	f.store.On("CreateNotificationReads", mock.Anything, mock.AnythingOfType("[]models.NotificationRead")).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).([]models.NotificationRead)
		}).Return(nil)
	return &captured
}

func TestHandleReservationEvent_CreatesNotificationWithReadRows(t *testing.T) {
	f := newFixture(t)
	reads := expectCreate(f, 7)

	receiver := newFakeClient(2, "s-2")
	f.registry.Register(receiver)
	require.NoError(t, f.registry.Join(context.Background(), receiver, realtime.PersonalChannel(2)))

	n, err := f.engine.HandleReservationEvent(context.Background(), reservationEvent())
	require.NoError(t, err)

	assert.Equal(t, models.NotificationReservationUpdate, n.Type)
	assert.Contains(t, n.Message, "42")
	assert.Contains(t, n.Message, "Accepted")
	require.NotNil(t, n.SenderID)
	assert.Equal(t, uint(1), *n.SenderID)

	require.Len(t, *reads, 3)
	byUser := make(map[uint]models.NotificationRead)
	for _, r := range *reads {
		assert.Equal(t, uint(7), r.NotificationID)
		byUser[r.UserID] = r
	}
	assert.False(t, byUser[2].IsRead)
	assert.False(t, byUser[3].IsRead)
	assert.True(t, byUser[1].IsRead, "sender's row is pre-marked read")
	require.NotNil(t, byUser[1].ReadAt)

	// Counters: +1 for each receiver, sender untouched.
	val, _, err := f.counters.Get(context.Background(), "unread:noti:2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
	val, _, err = f.counters.Get(context.Background(), "unread:noti:3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
	_, found, err := f.counters.Get(context.Background(), "unread:noti:1")
	require.NoError(t, err)
	assert.False(t, found)

	env, ok := receiver.next()
	require.True(t, ok)
	assert.Equal(t, notify.EventUserNewNotification, env.Event)

	var payload models.UserNotification
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, uint(7), payload.ID)
	assert.False(t, payload.IsRead)
}

// Replaying the same queue event produces a second notification row. The
// consumer carries no dedup key, so at-least-once redelivery duplicates by
// design of the current pipeline; this pins the behavior down rather than
// letting it pass silently.
func TestHandleReservationEvent_RedeliveryDuplicates(t *testing.T) {
	f := newFixture(t)
	expectCreate(f, 7)

	_, err := f.engine.HandleReservationEvent(context.Background(), reservationEvent())
	require.NoError(t, err)
	_, err = f.engine.HandleReservationEvent(context.Background(), reservationEvent())
	require.NoError(t, err)

	f.store.AssertNumberOfCalls(t, "CreateNotification", 2)

	val, _, err := f.counters.Get(context.Background(), "unread:noti:2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)
}

func TestHandleReservationEvent_CounterWaitsForCommit(t *testing.T) {
	f := newFixture(t)
	f.store.On("InTransaction", mock.Anything, mock.Anything).
		Return(apperr.Persistence(assert.AnError))

	_, err := f.engine.HandleReservationEvent(context.Background(), reservationEvent())
	assert.ErrorIs(t, err, apperr.ErrPersistence)

	_, found, err := f.counters.Get(context.Background(), "unread:noti:2")
	require.NoError(t, err)
	assert.False(t, found, "a failed transaction must leave the counter untouched")
}

func TestMarkAsRead_DecrementsByPreviouslyUnreadOnly(t *testing.T) {
	f := newFixture(t)

	_, err := f.counters.IncrBy(context.Background(), "unread:noti:2", 5)
	require.NoError(t, err)

	f.store.On("GetNotificationReads", mock.Anything, uint(2), []uint{7, 8, 9}).
		Return([]models.NotificationRead{
			{NotificationID: 7, UserID: 2, IsRead: false},
			{NotificationID: 8, UserID: 2, IsRead: true},
			{NotificationID: 9, UserID: 2, IsRead: false},
		}, nil)
	f.store.On("MarkNotificationReads", mock.Anything, uint(2), []uint{7, 9}).Return(nil)

	marked, err := f.engine.MarkAsRead(context.Background(), 2, []uint{7, 8, 9})
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)

	val, _, err := f.counters.Get(context.Background(), "unread:noti:2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), val, "decrement by previously-unread count, never batch size")
}

func TestMarkAsRead_MissingReadRowIsForbidden(t *testing.T) {
	f := newFixture(t)

	f.store.On("GetNotificationReads", mock.Anything, uint(2), []uint{7, 8}).
		Return([]models.NotificationRead{
			{NotificationID: 7, UserID: 2, IsRead: false},
		}, nil)

	_, err := f.engine.MarkAsRead(context.Background(), 2, []uint{7, 8})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	f.store.AssertNotCalled(t, "MarkNotificationReads", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkAsRead_AlreadyReadBatchIsNoop(t *testing.T) {
	f := newFixture(t)

	f.store.On("GetNotificationReads", mock.Anything, uint(2), []uint{7}).
		Return([]models.NotificationRead{
			{NotificationID: 7, UserID: 2, IsRead: true},
		}, nil)

	marked, err := f.engine.MarkAsRead(context.Background(), 2, []uint{7})
	require.NoError(t, err)
	assert.Zero(t, marked)
	f.store.AssertNotCalled(t, "MarkNotificationReads", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkAsRead_NegativeCounterSelfHeals(t *testing.T) {
	f := newFixture(t)

	// Counter drifted to zero while one row is still unread: the decrement
	// would go negative and must reset to the durable-store truth.
	f.store.On("GetNotificationReads", mock.Anything, uint(2), []uint{7}).
		Return([]models.NotificationRead{
			{NotificationID: 7, UserID: 2, IsRead: false},
		}, nil)
	f.store.On("MarkNotificationReads", mock.Anything, uint(2), []uint{7}).Return(nil)
	f.store.On("CountUnreadNotifications", mock.Anything, uint(2)).Return(int64(4), nil)

	_, err := f.engine.MarkAsRead(context.Background(), 2, []uint{7})
	require.NoError(t, err)

	val, found, err := f.counters.Get(context.Background(), "unread:noti:2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(4), val, "negative counter heals to the recounted value")
}

func TestUnreadCount_CacheMissRecountsAndRepopulates(t *testing.T) {
	f := newFixture(t)

	f.store.On("CountUnreadNotifications", mock.Anything, uint(2)).Return(int64(6), nil).Once()

	assert.Equal(t, int64(6), f.engine.UnreadCount(context.Background(), 2))

	// Second read hits the repopulated cache; the store is not asked again.
	assert.Equal(t, int64(6), f.engine.UnreadCount(context.Background(), 2))
	f.store.AssertNumberOfCalls(t, "CountUnreadNotifications", 1)
}
