package database

import (
	"github.com/stretchr/testify/mock"
)

type MockStargramRepository struct {
	mock.Mock
}

func (m *MockStargramRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockStargramRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStargramRepository) GetAccountByUsername(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStargramRepository) ListAccounts() ([]User, error) {
	args := m.Called()
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockStargramRepository) AddStars(username string, amount int) (User, error) {
	args := m.Called(username, amount)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStargramRepository) PurchasePremium(username string, price int) (User, error) {
	args := m.Called(username, price)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStargramRepository) SetCustomColor(username, color string) (User, error) {
	args := m.Called(username, color)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStargramRepository) SetAvatarUrl(username, url string) (User, error) {
	args := m.Called(username, url)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStargramRepository) SetBanned(username string, banned bool) (User, error) {
	args := m.Called(username, banned)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStargramRepository) ToggleBanned(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStargramRepository) ToggleAdmin(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStargramRepository) TogglePremium(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockStargramRepository) AddConversationPartner(username, partner string) error {
	args := m.Called(username, partner)
	return args.Error(0)
}
func (m *MockStargramRepository) ListConversationPartners(username string) ([]string, error) {
	args := m.Called(username)
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockStargramRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	args := m.Called(params)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockStargramRepository) EnsureChannel(params CreateChannelParams) error {
	args := m.Called(params)
	return args.Error(0)
}
func (m *MockStargramRepository) GetChannel(channelId string) (Channel, error) {
	args := m.Called(channelId)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockStargramRepository) ListChannels() ([]Channel, error) {
	args := m.Called()
	return args.Get(0).([]Channel), args.Error(1)
}
func (m *MockStargramRepository) SetPinnedMessage(channelId string, messageId int) error {
	args := m.Called(channelId, messageId)
	return args.Error(0)
}
func (m *MockStargramRepository) ClearPinnedMessage(channelId string) error {
	args := m.Called(channelId)
	return args.Error(0)
}
func (m *MockStargramRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockStargramRepository) GetMessage(id int) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockStargramRepository) GetMessages(roomId string, limit int) ([]Message, error) {
	args := m.Called(roomId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockStargramRepository) UpdateMessageText(id int, username, text string) (Message, error) {
	args := m.Called(id, username, text)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockStargramRepository) DeleteMessage(id int) ([]string, error) {
	args := m.Called(id)
	if cleared, ok := args.Get(0).([]string); ok {
		return cleared, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockStargramRepository) DeleteAllMessages() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockStargramRepository) CountAccounts() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}
func (m *MockStargramRepository) CountMessages() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}
