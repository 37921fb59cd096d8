package server

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stargram/stargram/internal/database"
	"github.com/stargram/stargram/internal/types"
)

const replySnippetLimit = 100

func truncateSnippet(s string) string {
	runes := []rune(s)
	if len(runes) <= replySnippetLimit {
		return s
	}
	return string(runes[:replySnippetLimit])
}

func (cs *ChatServer) imageLimit(u *types.User) int {
	if u.IsPremium {
		return cs.cfg.PremiumImageLimit
	}
	return cs.cfg.FreeImageLimit
}

// systemNotice broadcasts an ephemeral system message to a room. System
// notices are not persisted and do not appear in history.
func (cs *ChatServer) systemNotice(roomId, text string) {
	cs.broadcastRoom(roomId, &ServerEvent{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Message: &types.Message{
			RoomId:    roomId,
			Kind:      types.MessageSystem,
			Text:      text,
			Timestamp: Now(),
		},
	}, nil)
}

func (cs *ChatServer) handlePost(c *Client, ev *ClientEvent) {
	post := ev.Post

	if c.user.IsBanned {
		c.queueMessage(ErrUnauthorized(ev.Id))
		return
	}

	// A session posts to the one room it is subscribed to.
	roomId := post.RoomId
	if roomId == "" {
		roomId = c.room
	}
	if roomId == "" {
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}
	if roomId != c.room {
		c.queueMessage(ErrUnauthorized(ev.Id))
		return
	}

	text := strings.TrimSpace(post.Text)
	if text == "" && len(post.Image) == 0 {
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}

	if strings.HasPrefix(text, "/") {
		cs.handleCommand(c, ev.Id, roomId, text)
		return
	}

	kind := types.MessageText
	if len(post.Image) > 0 {
		// The limit applies to the decoded payload, not its transport
		// encoding.
		limit := cs.imageLimit(c.user)
		if len(post.Image) > limit {
			c.queueMessage(ErrPayloadTooLarge(ev.Id, limit))
			cs.systemNotice(roomId, fmt.Sprintf(
				"image from %s rejected: larger than the %d MB limit",
				c.user.Username, limit>>20))
			return
		}
		kind = types.MessageImage
	}

	params := database.CreateMessageParams{
		RoomId:          roomId,
		Username:        c.user.Username,
		Kind:            string(kind),
		Text:            text,
		Image:           post.Image,
		AuthorColor:     c.user.DisplayColor(),
		AuthorIsAdmin:   c.user.IsAdmin,
		AuthorIsPremium: c.user.IsPremium,
		AuthorAvatarUrl: c.user.AvatarUrl,
		CreatedAt:       ev.Timestamp,
	}
	if post.ReplyTo != nil {
		params.ReplyUsername = post.ReplyTo.Username
		params.ReplySnippet = truncateSnippet(post.ReplyTo.Snippet)
	}

	dbMsg, err := cs.db.CreateMessage(params)
	if err != nil {
		cs.log.Println("create message:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	cs.stats.Incr(messagesSentMetric)

	msg := toMessage(dbMsg)
	cs.broadcastRoom(roomId, &ServerEvent{
		BaseMessage: BaseMessage{Timestamp: msg.Timestamp},
		Message:     &msg,
	}, nil)
}

// handleEdit updates a message's text. Only the original author may
// edit; the store enforces authorship and the edited flag in a single
// conditional update. A missing message is a silent no-op.
func (cs *ChatServer) handleEdit(c *Client, ev *ClientEvent) {
	newText := strings.TrimSpace(ev.Edit.NewText)
	if newText == "" {
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}

	dbMsg, err := cs.db.GetMessage(ev.Edit.MessageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return
		}
		cs.log.Println("get message:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	if dbMsg.Username != c.user.Username {
		c.queueMessage(ErrUnauthorized(ev.Id))
		return
	}

	updated, err := cs.db.UpdateMessageText(ev.Edit.MessageId, c.user.Username, newText)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// deleted out from under us
			return
		}
		cs.log.Println("update message:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	c.queueMessage(NoErrOK(ev.Id, nil))

	cs.broadcastRoom(updated.RoomId, &ServerEvent{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Edited: &MessageEdited{
				MessageId: updated.Id,
				RoomId:    updated.RoomId,
				NewText:   updated.Text,
			},
		},
	}, nil)
}

// handleDelete removes a message. The author or any administrator may
// delete; if the message was a channel's pin the clearing is broadcast
// to that room.
func (cs *ChatServer) handleDelete(c *Client, ev *ClientEvent) {
	dbMsg, err := cs.db.GetMessage(ev.Delete.MessageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return
		}
		cs.log.Println("get message:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	if dbMsg.Username != c.user.Username && !c.user.IsAdmin {
		c.queueMessage(ErrUnauthorized(ev.Id))
		return
	}

	cleared, err := cs.db.DeleteMessage(dbMsg.Id)
	if err != nil {
		cs.log.Println("delete message:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	cs.stats.Incr(messagesDelMetric)

	for _, channelId := range cleared {
		cs.broadcastRoom(channelId, cs.pinnedUpdate(channelId, 0), nil)
	}

	c.queueMessage(NoErrOK(ev.Id, nil))

	cs.broadcastRoom(dbMsg.RoomId, &ServerEvent{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Deleted: &MessageDeleted{MessageId: dbMsg.Id, RoomId: dbMsg.RoomId},
		},
	}, nil)
}

// handlePin pins a message to its channel. Administrator-only; direct
// conversations cannot carry pins.
func (cs *ChatServer) handlePin(c *Client, ev *ClientEvent) {
	if !c.user.IsAdmin {
		c.queueMessage(ErrUnauthorized(ev.Id))
		return
	}

	dbMsg, err := cs.db.GetMessage(ev.Pin.MessageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return
		}
		cs.log.Println("get message:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	if isConversation(dbMsg.RoomId) {
		c.queueMessage(&ServerEvent{
			BaseMessage: BaseMessage{Id: ev.Id, Timestamp: Now()},
			Response: &Response{
				ResponseCode: http.StatusBadRequest,
				Error:        "cannot pin messages in a direct conversation",
			},
		})
		return
	}

	if err := cs.db.SetPinnedMessage(dbMsg.RoomId, dbMsg.Id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return
		}
		cs.log.Println("set pinned message:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	c.queueMessage(NoErrOK(ev.Id, nil))

	msg := toMessage(dbMsg)
	cs.broadcastRoom(dbMsg.RoomId, &ServerEvent{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Pinned: &PinnedUpdate{RoomId: dbMsg.RoomId, Message: &msg},
		},
	}, nil)
}

// handleUnpin clears a channel's pin. The room is an explicit argument
// rather than "whatever the caller is subscribed to"; an omitted room
// falls back to the caller's current room.
func (cs *ChatServer) handleUnpin(c *Client, ev *ClientEvent) {
	if !c.user.IsAdmin {
		c.queueMessage(ErrUnauthorized(ev.Id))
		return
	}

	roomId := ev.Unpin.RoomId
	if roomId == "" {
		roomId = c.room
	}
	if roomId == "" || isConversation(roomId) {
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}

	if err := cs.db.ClearPinnedMessage(roomId); err != nil {
		cs.log.Println("clear pinned message:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	c.queueMessage(NoErrOK(ev.Id, nil))

	cs.broadcastRoom(roomId, cs.pinnedUpdate(roomId, 0), nil)
}
