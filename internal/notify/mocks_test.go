package notify_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"sitterlink/realtime/internal/auth"
	"sitterlink/realtime/internal/models"
	"sitterlink/realtime/internal/realtime"
	"sitterlink/realtime/internal/storage"
)

// MockStorage is a testify mock of the storage.Storage interface.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) InTransaction(ctx context.Context, fn func(tx storage.Storage) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(m)
}

func (m *MockStorage) GetRoomByID(ctx context.Context, id uint) (*models.ChatRoom, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRoom), args.Error(1)
}

func (m *MockStorage) FindRoomByPair(ctx context.Context, userA, userB uint) (*models.ChatRoom, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRoom), args.Error(1)
}

func (m *MockStorage) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockStorage) ListRoomsForUser(ctx context.Context, userID uint, page, pageSize int) ([]models.ChatRoom, int64, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.ChatRoom), args.Get(1).(int64), args.Error(2)
}

func (m *MockStorage) CreateMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockStorage) ListMessages(ctx context.Context, roomID uint, page, pageSize int) ([]models.Message, int64, error) {
	args := m.Called(ctx, roomID, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Message), args.Get(1).(int64), args.Error(2)
}

func (m *MockStorage) UpsertChatMember(ctx context.Context, member *models.ChatMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockStorage) GetChatMember(ctx context.Context, userID, roomID uint) (*models.ChatMember, error) {
	args := m.Called(ctx, userID, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMember), args.Error(1)
}

func (m *MockStorage) CountUnreadMessages(ctx context.Context, userID, roomID uint) (int64, error) {
	args := m.Called(ctx, userID, roomID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) CreateNotification(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockStorage) CreateNotificationReads(ctx context.Context, reads []models.NotificationRead) error {
	args := m.Called(ctx, reads)
	return args.Error(0)
}

func (m *MockStorage) ListNotificationsForUser(ctx context.Context, userID uint, page, pageSize int) ([]models.UserNotification, int64, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.UserNotification), args.Get(1).(int64), args.Error(2)
}

func (m *MockStorage) GetNotificationReads(ctx context.Context, userID uint, notificationIDs []uint) ([]models.NotificationRead, error) {
	args := m.Called(ctx, userID, notificationIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.NotificationRead), args.Error(1)
}

func (m *MockStorage) MarkNotificationReads(ctx context.Context, userID uint, notificationIDs []uint) error {
	args := m.Called(ctx, userID, notificationIDs)
	return args.Error(0)
}

func (m *MockStorage) CountUnreadNotifications(ctx context.Context, userID uint) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// fakeClient is a buffered in-memory session for registry delivery checks.
type fakeClient struct {
	userID  uint
	session string
	token   string
	recv    chan realtime.Envelope
}

func newFakeClient(userID uint, session string) *fakeClient {
	return &fakeClient{
		userID:  userID,
		session: session,
		recv:    make(chan realtime.Envelope, 16),
	}
}

func (c *fakeClient) UserID() uint                   { return c.userID }
func (c *fakeClient) SessionID() string              { return c.session }
func (c *fakeClient) Token() string                  { return c.token }
func (c *fakeClient) Send() chan<- realtime.Envelope { return c.recv }
func (c *fakeClient) Run()                           {}
func (c *fakeClient) Close()                         {}

// next pops one delivered envelope without blocking.
func (c *fakeClient) next() (realtime.Envelope, bool) {
	select {
	case env := <-c.recv:
		return env, true
	default:
		return realtime.Envelope{}, false
	}
}

// stubVerifier approves or rejects every token.
type stubVerifier struct {
	ident auth.Identity
	err   error
}

func (v *stubVerifier) Verify(string) (auth.Identity, error) {
	return v.ident, v.err
}
