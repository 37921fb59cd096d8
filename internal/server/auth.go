package server

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/stargram/stargram/internal/config"
	"github.com/stargram/stargram/internal/database"
	"github.com/stargram/stargram/internal/types"
	"golang.org/x/crypto/bcrypt"
)

// CredentialStore hides the hashing scheme from the session logic.
type CredentialStore interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

type bcryptCredentials struct{}

func (bcryptCredentials) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	return string(hash), err
}

func (bcryptCredentials) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Usernames are restricted to characters that cannot collide with the
// dm_<a>_<b> room id encoding (see rooms.go).
func validUsername(username string) bool {
	if username == "" {
		return false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-':
		default:
			return false
		}
	}
	return true
}

func randomColor() string {
	return fmt.Sprintf("#%06x", rand.Intn(1<<24))
}

func toUser(u database.User) types.User {
	return types.User{
		Id:          u.Id,
		Username:    u.Username,
		Stars:       u.Stars,
		IsAdmin:     u.IsAdmin,
		IsPremium:   u.IsPremium,
		IsBanned:    u.IsBanned,
		Color:       u.Color,
		CustomColor: u.CustomColor,
		AvatarUrl:   u.AvatarUrl,
		CreatedAt:   u.CreatedAt,
	}
}

func (cs *ChatServer) handleAuth(c *Client, ev *ClientEvent) {
	if c.user != nil {
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}

	auth := ev.Auth

	if auth.Token != "" {
		cs.resumeSession(c, ev.Id, auth.Token)
		return
	}

	if auth.Username == "" || auth.Password == "" {
		c.queueMessage(ErrAuth(ev.Id, "missing credentials"))
		return
	}

	switch auth.Mode {
	case AuthRegister:
		cs.register(c, ev.Id, auth.Username, auth.Password)
	case AuthLogin:
		cs.login(c, ev.Id, auth.Username, auth.Password)
	default:
		c.queueMessage(ErrInvalidMessage(ev.Id))
	}
}

func (cs *ChatServer) register(c *Client, id int, username, password string) {
	if len(username) > cs.cfg.MaxUsernameLength {
		c.queueMessage(ErrAuth(id, "username too long"))
		return
	}
	if !validUsername(username) {
		c.queueMessage(ErrAuth(id, "invalid username"))
		return
	}

	hash, err := cs.creds.Hash(password)
	if err != nil {
		cs.log.Println("hash password:", err)
		c.queueMessage(ErrInternalError(id))
		return
	}

	// The configured bootstrap username is granted administrator and
	// premium on registration. This is a deployment policy controlled
	// by the -bootstrap-admin flag, not a hidden backdoor.
	bootstrap := cs.cfg.BootstrapAdmin != "" &&
		strings.EqualFold(username, cs.cfg.BootstrapAdmin)

	dbUser, err := cs.db.CreateAccount(database.CreateAccountParams{
		Username:     username,
		PasswordHash: hash,
		Color:        randomColor(),
		IsAdmin:      bootstrap,
		IsPremium:    bootstrap,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicateUser) {
			c.queueMessage(ErrAuth(id, "username is taken"))
			return
		}
		cs.log.Println("create account:", err)
		c.queueMessage(ErrInternalError(id))
		return
	}

	cs.loginClient(c, id, dbUser)
}

func (cs *ChatServer) login(c *Client, id int, username, password string) {
	dbUser, err := cs.db.GetAccountByUsername(username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrAuth(id, "user not found"))
			return
		}
		cs.log.Println("get account:", err)
		c.queueMessage(ErrInternalError(id))
		return
	}

	if !cs.creds.Verify(password, dbUser.PasswordHash) {
		c.queueMessage(ErrAuth(id, "incorrect password"))
		return
	}

	if dbUser.IsBanned {
		c.queueMessage(ErrAuth(id, "you are banned"))
		return
	}

	cs.loginClient(c, id, dbUser)
}

func (cs *ChatServer) resumeSession(c *Client, id int, token string) {
	username, err := cs.verifySessionToken(token)
	if err != nil {
		c.queueMessage(ErrAuth(id, "invalid session"))
		return
	}

	dbUser, err := cs.db.GetAccountByUsername(username)
	if err != nil {
		c.queueMessage(ErrAuth(id, "user not found"))
		return
	}

	if dbUser.IsBanned {
		c.queueMessage(ErrAuth(id, "you are banned"))
		return
	}

	cs.loginClient(c, id, dbUser)
}

// loginClient binds the identity to the connection and pushes the
// initial state: own user record plus a resume token, the channel
// directory, the conversation partner list, and the global channel.
func (cs *ChatServer) loginClient(c *Client, id int, dbUser database.User) {
	u := toUser(dbUser)
	c.user = &u

	token, err := cs.createSessionToken(u.Username, sessionTokenExpiry)
	if err != nil {
		cs.log.Println("create session token:", err)
		c.user = nil
		c.queueMessage(ErrInternalError(id))
		return
	}

	c.queueMessage(NoErrOK(id, map[string]any{
		"user":  u,
		"token": token,
	}))

	cs.bindUser(c, u.Username)

	cs.pushChannelDirectory(c)
	cs.pushPartnerList(c, u.Username)
	cs.handleJoin(c, 0, config.GlobalChannelId)
}

func (cs *ChatServer) pushChannelDirectory(c *Client) {
	ev, err := cs.channelDirectory()
	if err != nil {
		cs.log.Println("list channels:", err)
		return
	}
	c.queueMessage(ev)
}

func (cs *ChatServer) channelDirectory() (*ServerEvent, error) {
	dbChannels, err := cs.db.ListChannels()
	if err != nil {
		return nil, err
	}

	channels := make([]types.Channel, len(dbChannels))
	for i, ch := range dbChannels {
		channels[i] = types.Channel{
			ChannelId:   ch.ChannelId,
			Name:        ch.Name,
			Description: ch.Description,
			PinnedId:    ch.PinnedId,
			CreatedAt:   ch.CreatedAt,
		}
	}

	return &ServerEvent{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{Channels: &ChannelDirectory{Channels: channels}},
	}, nil
}

func (cs *ChatServer) pushPartnerList(c *Client, username string) {
	partners, err := cs.db.ListConversationPartners(username)
	if err != nil {
		cs.log.Println("list conversation partners:", err)
		return
	}

	c.queueMessage(&ServerEvent{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{Partners: &PartnerList{Partners: partners}},
	})
}
