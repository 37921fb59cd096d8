package server

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/stargram/stargram/internal/database"
	"github.com/stargram/stargram/internal/types"
	"github.com/teris-io/shortid"
)

const conversationPrefix = "dm_"

// ConversationId derives the room id of a direct conversation. Both
// participants derive the same id regardless of who initiates.
func ConversationId(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return conversationPrefix + a + "_" + b
}

// parseConversationId decodes the two exact participant usernames from
// a dm_<a>_<b> room id. The username charset excludes underscores, so
// the split is unambiguous.
func parseConversationId(roomId string) (a, b string, ok bool) {
	rest, found := strings.CutPrefix(roomId, conversationPrefix)
	if !found {
		return "", "", false
	}

	parts := strings.Split(rest, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	return parts[0], parts[1], true
}

func isConversation(roomId string) bool {
	return strings.HasPrefix(roomId, conversationPrefix)
}

// canJoin checks direct-conversation membership by decoding the two
// participant names and comparing them for equality. Substring matches
// do not grant access.
func canJoin(username, roomId string) bool {
	if !isConversation(roomId) {
		return true
	}

	a, b, ok := parseConversationId(roomId)
	if !ok {
		return false
	}

	return username == a || username == b
}

func toMessage(m database.Message) types.Message {
	msg := types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		Username:  m.Username,
		Kind:      types.MessageKind(m.Kind),
		Text:      m.Text,
		Image:     m.Image,
		IsEdited:  m.IsEdited,
		Color:     m.AuthorColor,
		IsAdmin:   m.AuthorIsAdmin,
		IsPremium: m.AuthorIsPremium,
		AvatarUrl: m.AuthorAvatarUrl,
		Timestamp: m.CreatedAt,
	}

	if m.ReplyUsername != "" || m.ReplySnippet != "" {
		msg.ReplyTo = &types.Reply{
			Username: m.ReplyUsername,
			Snippet:  m.ReplySnippet,
		}
	}

	return msg
}

// handleJoin switches the session's single content room: authorize,
// leave the previous room, subscribe, then push history, the pinned
// message (or the explicit no-pin signal), and the active room id.
func (cs *ChatServer) handleJoin(c *Client, id int, roomId string) {
	if roomId == "" {
		c.queueMessage(ErrInvalidMessage(id))
		return
	}

	var pinnedId int
	if isConversation(roomId) {
		if !canJoin(c.user.Username, roomId) {
			c.queueMessage(ErrUnauthorized(id))
			return
		}
	} else {
		channel, err := cs.db.GetChannel(roomId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.queueMessage(ErrNotFound(id, "room not found"))
				return
			}
			cs.log.Println("get channel:", err)
			c.queueMessage(ErrInternalError(id))
			return
		}
		pinnedId = channel.PinnedId
	}

	cs.joinRoomSet(c, roomId)

	dbMsgs, err := cs.db.GetMessages(roomId, cs.cfg.HistoryLimit)
	if err != nil {
		cs.log.Println("get messages:", err)
		c.queueMessage(ErrInternalError(id))
		return
	}

	messages := make([]types.Message, len(dbMsgs))
	for i, m := range dbMsgs {
		messages[i] = toMessage(m)
	}

	c.queueMessage(&ServerEvent{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{History: &History{RoomId: roomId, Messages: messages}},
	})

	c.queueMessage(cs.pinnedUpdate(roomId, pinnedId))

	c.queueMessage(&ServerEvent{
		BaseMessage:  BaseMessage{Id: id, Timestamp: Now()},
		Notification: &Notification{ActiveRoom: &ActiveRoom{RoomId: roomId}},
	})
}

// pinnedUpdate builds the pin notification for a room; a nil message
// means "no pin". A dangling pin reference is reported as no pin.
func (cs *ChatServer) pinnedUpdate(roomId string, pinnedId int) *ServerEvent {
	update := &PinnedUpdate{RoomId: roomId}

	if pinnedId != 0 {
		if dbMsg, err := cs.db.GetMessage(pinnedId); err == nil {
			msg := toMessage(dbMsg)
			update.Message = &msg
		}
	}

	return &ServerEvent{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{Pinned: update},
	}
}

// handleCreateChannel creates a public channel. No admin requirement:
// any authenticated user may create one.
func (cs *ChatServer) handleCreateChannel(c *Client, ev *ClientEvent) {
	name := strings.TrimSpace(ev.CreateChannel.Name)
	if name == "" {
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}

	sid, err := shortid.Generate()
	if err != nil {
		cs.log.Println("generate channel id:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	channel, err := cs.db.CreateChannel(database.CreateChannelParams{
		ChannelId:   "chan-" + sid,
		Name:        name,
		Description: "created by " + c.user.Username,
	})
	if err != nil {
		cs.log.Println("create channel:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	c.queueMessage(NoErrOK(ev.Id, map[string]any{"channel_id": channel.ChannelId}))

	directory, err := cs.channelDirectory()
	if err != nil {
		cs.log.Println("list channels:", err)
		return
	}
	cs.broadcastAll(directory, nil)
}

// handleStartConversation opens a direct conversation: records the
// partner relationship symmetrically (idempotent), refreshes partner
// lists on both sides' live connections, and joins the initiator to
// the derived room.
func (cs *ChatServer) handleStartConversation(c *Client, ev *ClientEvent) {
	initiator := c.user.Username
	target := ev.StartConversation.Username

	if target == "" || target == initiator {
		c.queueMessage(ErrInvalidMessage(ev.Id))
		return
	}

	if _, err := cs.db.GetAccountByUsername(target); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrNotFound(ev.Id, "user not found"))
			return
		}
		cs.log.Println("get account:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	if err := cs.db.AddConversationPartner(initiator, target); err != nil {
		cs.log.Println("add conversation partner:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}
	if err := cs.db.AddConversationPartner(target, initiator); err != nil {
		cs.log.Println("add conversation partner:", err)
		c.queueMessage(ErrInternalError(ev.Id))
		return
	}

	cs.pushPartnerListToUser(initiator)
	cs.pushPartnerListToUser(target)

	cs.handleJoin(c, ev.Id, ConversationId(initiator, target))
}

func (cs *ChatServer) pushPartnerListToUser(username string) {
	if len(cs.usernames[username]) == 0 {
		return
	}

	partners, err := cs.db.ListConversationPartners(username)
	if err != nil {
		cs.log.Println("list conversation partners:", err)
		return
	}

	cs.sendToUser(username, &ServerEvent{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{Partners: &PartnerList{Partners: partners}},
	})
}

// handleTyping relays a typing indicator to the session's current room.
// Indicators are never persisted.
func (cs *ChatServer) handleTyping(c *Client, ev *ClientEvent) {
	if c.room == "" {
		return
	}

	cs.broadcastRoom(c.room, &ServerEvent{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Notification: &Notification{
			Typing: &TypingNotice{RoomId: c.room, Username: c.user.Username},
		},
	}, c)
}
