package database

import "errors"

var (
	// ErrDuplicateUser indicates the username is already registered.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrDuplicateChannel indicates the channel id is already taken.
	ErrDuplicateChannel = errors.New("channel already exists")
	// ErrInsufficientFunds indicates the conditional balance decrement
	// matched no row because the balance was below the price.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotPremium indicates a premium-only update matched no row.
	ErrNotPremium = errors.New("user is not premium")
)

type StargramRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountByUsername(username string) (User, error)
	ListAccounts() ([]User, error)
	AddStars(username string, amount int) (User, error)
	PurchasePremium(username string, price int) (User, error)
	SetCustomColor(username, color string) (User, error)
	SetAvatarUrl(username, url string) (User, error)
	SetBanned(username string, banned bool) (User, error)
	ToggleBanned(username string) (User, error)
	ToggleAdmin(username string) (User, error)
	TogglePremium(username string) (User, error)

	AddConversationPartner(username, partner string) error
	ListConversationPartners(username string) ([]string, error)

	CreateChannel(params CreateChannelParams) (Channel, error)
	EnsureChannel(params CreateChannelParams) error
	GetChannel(channelId string) (Channel, error)
	ListChannels() ([]Channel, error)
	SetPinnedMessage(channelId string, messageId int) error
	ClearPinnedMessage(channelId string) error

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessage(id int) (Message, error)
	GetMessages(roomId string, limit int) ([]Message, error)
	UpdateMessageText(id int, username, text string) (Message, error)
	// DeleteMessage removes the message and clears any channel pin that
	// references it in one transaction, returning the channel ids whose
	// pins were cleared.
	DeleteMessage(id int) ([]string, error)
	// DeleteAllMessages removes every message and clears every pin.
	DeleteAllMessages() error

	CountAccounts() (int, error)
	CountMessages() (int, error)
}
