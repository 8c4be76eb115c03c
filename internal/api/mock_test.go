package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/nevexa-app/nevexa/internal/database"
	"github.com/nevexa-app/nevexa/internal/models"
)

// MockDB implements the DBInterface for testing
type MockDB struct {
	mock.Mock
}

func (m *MockDB) CreateUser(username, email, passwordHash string) (*models.User, error) {
	args := m.Called(username, email, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDB) GetUserByEmail(email string) (*models.User, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDB) GetUserByID(id uuid.UUID) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockDB) UpdateLastSeen(userID uuid.UUID) error {
	args := m.Called(userID)
	return args.Error(0)
}

func (m *MockDB) GetAllUsers(excludeUserID uuid.UUID) ([]*models.User, error) {
	args := m.Called(excludeUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockDB) SearchUsers(query string, excludeUserID uuid.UUID) ([]*models.User, error) {
	args := m.Called(query, excludeUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func (m *MockDB) CreateMessage(senderID, receiverID uuid.UUID, content string) (*models.Message, error) {
	args := m.Called(senderID, receiverID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockDB) GetMessagesByUser(userID uuid.UUID) ([]*models.Message, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

func (m *MockDB) GetConversation(userID1, userID2 uuid.UUID) ([]*models.Message, error) {
	args := m.Called(userID1, userID2)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

func (m *MockDB) CountUnreadFrom(counterpartID, ownerID uuid.UUID) (int, error) {
	args := m.Called(counterpartID, ownerID)
	return args.Int(0), args.Error(1)
}

func (m *MockDB) MarkConversationRead(ownerID, counterpartID uuid.UUID) (int64, error) {
	args := m.Called(ownerID, counterpartID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDB) DeleteMessagesBefore(cutoff time.Time) (int64, error) {
	args := m.Called(cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDB) Exec(query string, args ...interface{}) (database.ExecResult, error) {
	mockArgs := m.Called(append([]interface{}{query}, args...)...)
	if mockArgs.Get(0) == nil {
		return nil, mockArgs.Error(1)
	}
	return mockArgs.Get(0).(database.ExecResult), mockArgs.Error(1)
}

func (m *MockDB) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockNotifier records realtime fan-out calls
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendToUser(userID uuid.UUID, message []byte) {
	m.Called(userID, message)
}
