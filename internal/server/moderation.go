package server

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/stargram/stargram/internal/database"
	"github.com/stargram/stargram/internal/types"
)

// pushUserUpdate refreshes the cached identity on every live
// connection of the user and notifies them of the new state.
func (cs *ChatServer) pushUserUpdate(dbUser database.User) {
	u := toUser(dbUser)
	for conn := range cs.usernames[u.Username] {
		conn.user = &u
	}

	cs.sendToUser(u.Username, &ServerEvent{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{User: &u},
	})
}

// handleTopUp credits the caller's balance. The amount is trusted at
// this layer: payment capture happens outside the process.
func (cs *ChatServer) handleTopUp(c *Client, ev *ClientEvent) {
	if ev.TopUp.Amount <= 0 {
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}

	dbUser, err := cs.db.AddStars(c.user.Username, ev.TopUp.Amount)
	if err != nil {
		cs.log.Println("add stars:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	c.queueMessage(NoErrOK(ev.Id, nil))
	cs.pushUserUpdate(dbUser)
}

// handleBuyPremium grants premium for a fixed price. The balance check
// and decrement are one conditional store update, so concurrent
// purchases cannot drive the balance negative.
func (cs *ChatServer) handleBuyPremium(c *Client, ev *ClientEvent) {
	dbUser, err := cs.db.PurchasePremium(c.user.Username, cs.cfg.PremiumPrice)
	if err != nil {
		if errors.Is(err, database.ErrInsufficientFunds) {
			c.queueMessage(ErrInsufficientFunds(ev.Id))
			return
		}
		cs.log.Println("purchase premium:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	c.queueMessage(NoErrOK(ev.Id, nil))
	cs.pushUserUpdate(dbUser)
}

func validColor(color string) bool {
	if len(color) != 7 || color[0] != '#' {
		return false
	}
	for _, r := range color[1:] {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// handleSetColor stores a custom display color. Premium-only; the
// store enforces the tier check atomically.
func (cs *ChatServer) handleSetColor(c *Client, ev *ClientEvent) {
	if !validColor(ev.SetColor.Color) {
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}

	dbUser, err := cs.db.SetCustomColor(c.user.Username, ev.SetColor.Color)
	if err != nil {
		if errors.Is(err, database.ErrNotPremium) {
			c.queueMessage(ErrUnauthorized(ev.Id))
			return
		}
		cs.log.Println("set custom color:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	c.queueMessage(NoErrOK(ev.Id, nil))
	cs.pushUserUpdate(dbUser)
}

func (cs *ChatServer) handleSetAvatar(c *Client, ev *ClientEvent) {
	dbUser, err := cs.db.SetAvatarUrl(c.user.Username, ev.SetAvatar.AvatarUrl)
	if err != nil {
		cs.log.Println("set avatar:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	c.queueMessage(NoErrOK(ev.Id, nil))
	cs.pushUserUpdate(dbUser)
}

// handleAdminAction toggles a role flag on the target account. A
// transition to banned forcibly disconnects every live connection of
// the target after a best-effort notice.
func (cs *ChatServer) handleAdminAction(c *Client, ev *ClientEvent) {
	if !c.user.IsAdmin {
		c.queueMessage(ErrUnauthorized(ev.Id))
		return
	}

	var (
		updated database.User
		err     error
	)

	switch ev.Admin.Action {
	case AdminBan:
		updated, err = cs.db.ToggleBanned(ev.Admin.Username)
	case AdminPromote:
		updated, err = cs.db.ToggleAdmin(ev.Admin.Username)
	case AdminGrantPremium:
		updated, err = cs.db.TogglePremium(ev.Admin.Username)
	default:
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrNotFound(ev.Id, "user not found"))
			return
		}
		cs.log.Println("admin action:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	c.queueMessage(NoErrOK(ev.Id, nil))
	cs.pushUserUpdate(updated)

	if updated.IsBanned {
		cs.disconnectBanned(updated.Username)
	}
}

// disconnectBanned pushes a ban notice to each live connection of the
// user and closes them. Delivery of the notice is best effort.
func (cs *ChatServer) disconnectBanned(username string) {
	for conn := range cs.usernames[username] {
		conn.queueMessage(&ServerEvent{
			BaseMessage:  BaseMessage{Timestamp: Now()},
			Notification: &Notification{Banned: &BannedNotice{Reason: "you are banned"}},
		})
		conn.stopClient()
	}
}

func (cs *ChatServer) handleAdminStats(c *Client, ev *ClientEvent) {
	if !c.user.IsAdmin {
		c.queueMessage(ErrUnauthorized(ev.Id))
		return
	}

	totalUsers, err := cs.db.CountAccounts()
	if err != nil {
		cs.log.Println("count accounts:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	totalMessages, err := cs.db.CountMessages()
	if err != nil {
		cs.log.Println("count messages:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	dbUsers, err := cs.db.ListAccounts()
	if err != nil {
		cs.log.Println("list accounts:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	users := make([]types.User, len(dbUsers))
	for i, u := range dbUsers {
		users[i] = toUser(u)
	}

	c.queueMessage(&ServerEvent{
		BaseMessage: BaseMessage{Id: ev.Id, Timestamp: Now()},
		Notification: &Notification{
			AdminData: &AdminData{
				Stats: types.AdminStats{
					TotalUsers:    totalUsers,
					TotalMessages: totalMessages,
					OnlineUsers:   cs.onlineCount(),
				},
				Users: users,
			},
		},
	})
}

// handleClearMessages irreversibly deletes every message in every room
// and tells all connections to clear their views.
func (cs *ChatServer) handleClearMessages(c *Client, ev *ClientEvent) {
	if !c.user.IsAdmin {
		c.queueMessage(ErrUnauthorized(ev.Id))
		return
	}

	if err := cs.db.DeleteAllMessages(); err != nil {
		cs.log.Println("delete all messages:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	c.queueMessage(NoErrOK(ev.Id, nil))

	cs.broadcastAll(&ServerEvent{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{Cleared: &ChatCleared{}},
	}, nil)
}

// command is a parsed administrative chat command. Commands arrive as
// chat text with a leading slash but are never stored as messages.
type command struct {
	name   string
	target string
}

func parseCommand(text string) (command, bool) {
	fields := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(fields) == 0 {
		return command{}, false
	}

	cmd := command{name: fields[0]}
	if len(fields) > 1 {
		cmd.target = fields[1]
	}
	return cmd, true
}

// handleCommand executes a slash command. Commands from non-admins are
// silently ignored.
func (cs *ChatServer) handleCommand(c *Client, id int, roomId, text string) {
	if !c.user.IsAdmin {
		return
	}

	cmd, ok := parseCommand(text)
	if !ok {
		return
	}

	switch cmd.name {
	case "ban":
		if cmd.target == "" {
			return
		}
		updated, err := cs.db.SetBanned(cmd.target, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.queueMessage(ErrNotFound(id, "user not found"))
				return
			}
			cs.log.Println("ban user:", err)
			c.queueMessage(ErrInternalError(id))
			return
		}
		cs.disconnectBanned(updated.Username)
		cs.systemNotice(roomId, fmt.Sprintf("%s has been banned", cmd.target))
	case "unban":
		if cmd.target == "" {
			return
		}
		if _, err := cs.db.SetBanned(cmd.target, false); err != nil && !errors.Is(err, sql.ErrNoRows) {
			cs.log.Println("unban user:", err)
			c.queueMessage(ErrInternalError(id))
		}
	default:
		// unknown commands are dropped
	}
}
