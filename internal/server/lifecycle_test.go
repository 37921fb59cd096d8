package server

import (
	"bytes"
	"database/sql"
	"net/http"
	"strings"
	"testing"

	"github.com/stargram/stargram/internal/database"
	"github.com/stargram/stargram/internal/stats"
	"github.com/stargram/stargram/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestTruncateSnippet(t *testing.T) {
	assert.Equal(t, "short", truncateSnippet("short"))

	long := strings.Repeat("x", replySnippetLimit+50)
	assert.Len(t, truncateSnippet(long), replySnippetLimit)

	// multi-byte runes are not split
	runes := strings.Repeat("é", replySnippetLimit+1)
	assert.Equal(t, strings.Repeat("é", replySnippetLimit), truncateSnippet(runes))
}

func TestImageLimit(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	cs := newTestChatServer(t, &database.MockStargramRepository{}, su)

	assert.Equal(t, cs.cfg.FreeImageLimit, cs.imageLimit(&types.User{Username: "alice"}))
	assert.Equal(t, cs.cfg.PremiumImageLimit, cs.imageLimit(&types.User{Username: "bob", IsPremium: true}))
}

func TestHandlePost(t *testing.T) {
	t.Run("banned author rejected", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		c := authedClient(t, cs, su, types.User{Username: "alice", IsBanned: true})
		cs.joinRoomSet(c, "global")

		cs.handlePost(c, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Post: &Post{Text: "hi"}})

		ev := recvEvent(t, c)
		assert.Equal(t, http.StatusForbidden, ev.Response.ResponseCode)
	})

	t.Run("posting to a room the session is not in", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		c := authedClient(t, cs, su, types.User{Username: "alice"})
		cs.joinRoomSet(c, "global")

		cs.handlePost(c, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Post: &Post{RoomId: "chan-other", Text: "hi"}})

		ev := recvEvent(t, c)
		assert.Equal(t, http.StatusForbidden, ev.Response.ResponseCode)
	})

	t.Run("empty message rejected", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		c := authedClient(t, cs, su, types.User{Username: "alice"})
		cs.joinRoomSet(c, "global")

		cs.handlePost(c, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Post: &Post{Text: "   "}})

		ev := recvEvent(t, c)
		assert.Equal(t, http.StatusBadRequest, ev.Response.ResponseCode)
	})

	t.Run("oversized image rejected with room notice", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		alice := authedClient(t, cs, su, types.User{Username: "alice"})
		bob := authedClient(t, cs, su, types.User{Username: "bob"})
		cs.joinRoomSet(alice, "global")
		cs.joinRoomSet(bob, "global")

		image := bytes.Repeat([]byte{0xff}, cs.cfg.FreeImageLimit+1)
		cs.handlePost(alice, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Post: &Post{Image: image}})

		rejection := recvEvent(t, alice)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rejection.Response.ResponseCode)

		notice := recvEvent(t, alice)
		assert.Equal(t, types.MessageSystem, notice.Message.Kind)
		assert.Contains(t, notice.Message.Text, "alice")

		bobNotice := recvEvent(t, bob)
		assert.Equal(t, types.MessageSystem, bobNotice.Message.Kind)
	})

	t.Run("premium tier admits larger images", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.Kind == "image" && p.Username == "alice"
		})).Return(database.Message{Id: 1, RoomId: "global", Username: "alice", Kind: "image"}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", messagesSentMetric).Once()
		cs := newTestChatServer(t, db, su)
		c := authedClient(t, cs, su, types.User{Username: "alice", IsPremium: true})
		cs.joinRoomSet(c, "global")

		image := bytes.Repeat([]byte{0xff}, cs.cfg.FreeImageLimit+1)
		cs.handlePost(c, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Post: &Post{Image: image}})

		ev := recvEvent(t, c)
		assert.NotNil(t, ev.Message, "expected the stored message to be broadcast")
		assert.Equal(t, types.MessageImage, ev.Message.Kind)
	})

	t.Run("stores author snapshot and broadcasts", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateMessage", mock.MatchedBy(func(p database.CreateMessageParams) bool {
			return p.RoomId == "global" &&
				p.Text == "hello" &&
				p.AuthorColor == "#123456" &&
				p.ReplySnippet == "earlier"
		})).Return(database.Message{
			Id: 9, RoomId: "global", Username: "alice", Kind: "text", Text: "hello",
			ReplyUsername: "bob", ReplySnippet: "earlier", AuthorColor: "#123456",
		}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", messagesSentMetric).Once()
		cs := newTestChatServer(t, db, su)
		alice := authedClient(t, cs, su, types.User{
			Username: "alice", IsPremium: true, Color: "#aabbcc", CustomColor: "#123456",
		})
		bob := authedClient(t, cs, su, types.User{Username: "bob"})
		cs.joinRoomSet(alice, "global")
		cs.joinRoomSet(bob, "global")

		cs.handlePost(alice, &ClientEvent{
			BaseMessage: BaseMessage{Id: 1},
			Post: &Post{
				Text:    "  hello  ",
				ReplyTo: &types.Reply{Username: "bob", Snippet: "earlier"},
			},
		})

		got := recvEvent(t, bob)
		assert.Equal(t, 9, got.Message.Id)
		assert.Equal(t, "hello", got.Message.Text)
		assert.Equal(t, "bob", got.Message.ReplyTo.Username)

		// the author hears their own message too
		own := recvEvent(t, alice)
		assert.Equal(t, 9, own.Message.Id)
	})
}

func TestHandleEdit(t *testing.T) {
	t.Run("missing message is a no-op", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessage", 5).Return(database.Message{}, sql.ErrNoRows).Once()

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		c := authedClient(t, cs, su, types.User{Username: "alice"})

		cs.handleEdit(c, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Edit: &Edit{MessageId: 5, NewText: "new"}})

		assertNoEvent(t, c)
	})

	t.Run("only the author may edit", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessage", 5).Return(database.Message{Id: 5, Username: "bob"}, nil).Once()

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		// admins get no special edit rights
		c := authedClient(t, cs, su, types.User{Username: "alice", IsAdmin: true})

		cs.handleEdit(c, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Edit: &Edit{MessageId: 5, NewText: "new"}})

		ev := recvEvent(t, c)
		assert.Equal(t, http.StatusForbidden, ev.Response.ResponseCode)
	})

	t.Run("successful edit broadcasts to the room", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessage", 5).Return(database.Message{Id: 5, RoomId: "global", Username: "alice", Text: "old"}, nil).Once()
		db.On("UpdateMessageText", 5, "alice", "new").Return(database.Message{
			Id: 5, RoomId: "global", Username: "alice", Text: "new", IsEdited: true,
		}, nil).Once()

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		alice := authedClient(t, cs, su, types.User{Username: "alice"})
		bob := authedClient(t, cs, su, types.User{Username: "bob"})
		cs.joinRoomSet(alice, "global")
		cs.joinRoomSet(bob, "global")

		cs.handleEdit(alice, &ClientEvent{BaseMessage: BaseMessage{Id: 3}, Edit: &Edit{MessageId: 5, NewText: "new"}})

		ack := recvEvent(t, alice)
		assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)

		edited := recvEvent(t, bob)
		assert.Equal(t, 5, edited.Notification.Edited.MessageId)
		assert.Equal(t, "new", edited.Notification.Edited.NewText)
	})
}

func TestHandleDelete(t *testing.T) {
	t.Run("missing message is a no-op", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessage", 5).Return(database.Message{}, sql.ErrNoRows).Once()

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		c := authedClient(t, cs, su, types.User{Username: "alice"})

		cs.handleDelete(c, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Delete: &Delete{MessageId: 5}})

		assertNoEvent(t, c)
	})

	t.Run("non-author non-admin rejected", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessage", 5).Return(database.Message{Id: 5, Username: "bob"}, nil).Once()

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		c := authedClient(t, cs, su, types.User{Username: "alice"})

		cs.handleDelete(c, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Delete: &Delete{MessageId: 5}})

		ev := recvEvent(t, c)
		assert.Equal(t, http.StatusForbidden, ev.Response.ResponseCode)
	})

	t.Run("admin delete clears the pin and notifies the room", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessage", 5).Return(database.Message{Id: 5, RoomId: "global", Username: "bob"}, nil).Once()
		db.On("DeleteMessage", 5).Return([]string{"global"}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", messagesDelMetric).Once()
		cs := newTestChatServer(t, db, su)
		admin := authedClient(t, cs, su, types.User{Username: "alice", IsAdmin: true})
		bob := authedClient(t, cs, su, types.User{Username: "bob"})
		cs.joinRoomSet(admin, "global")
		cs.joinRoomSet(bob, "global")

		cs.handleDelete(admin, &ClientEvent{BaseMessage: BaseMessage{Id: 2}, Delete: &Delete{MessageId: 5}})

		// pin cleared first, then the ack, then the deletion fanout
		pin := recvEvent(t, bob)
		assert.Nil(t, pin.Notification.Pinned.Message)

		adminPin := recvEvent(t, admin)
		assert.Nil(t, adminPin.Notification.Pinned.Message)

		ack := recvEvent(t, admin)
		assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)

		deleted := recvEvent(t, bob)
		assert.Equal(t, 5, deleted.Notification.Deleted.MessageId)
		assert.Equal(t, "global", deleted.Notification.Deleted.RoomId)
	})
}

func TestHandlePin(t *testing.T) {
	t.Run("admin only", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		c := authedClient(t, cs, su, types.User{Username: "alice"})

		cs.handlePin(c, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Pin: &Pin{MessageId: 5}})

		ev := recvEvent(t, c)
		assert.Equal(t, http.StatusForbidden, ev.Response.ResponseCode)
	})

	t.Run("conversations cannot carry pins", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessage", 5).Return(database.Message{Id: 5, RoomId: "dm_alice_bob"}, nil).Once()

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		c := authedClient(t, cs, su, types.User{Username: "alice", IsAdmin: true})

		cs.handlePin(c, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Pin: &Pin{MessageId: 5}})

		ev := recvEvent(t, c)
		assert.Equal(t, http.StatusBadRequest, ev.Response.ResponseCode)
	})

	t.Run("pin broadcasts the message to the room", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessage", 5).Return(database.Message{Id: 5, RoomId: "global", Username: "bob", Text: "keep"}, nil).Once()
		db.On("SetPinnedMessage", "global", 5).Return(nil).Once()

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		admin := authedClient(t, cs, su, types.User{Username: "alice", IsAdmin: true})
		bob := authedClient(t, cs, su, types.User{Username: "bob"})
		cs.joinRoomSet(admin, "global")
		cs.joinRoomSet(bob, "global")

		cs.handlePin(admin, &ClientEvent{BaseMessage: BaseMessage{Id: 4}, Pin: &Pin{MessageId: 5}})

		ack := recvEvent(t, admin)
		assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)

		pinned := recvEvent(t, bob)
		assert.Equal(t, 5, pinned.Notification.Pinned.Message.Id)
		assert.Equal(t, "keep", pinned.Notification.Pinned.Message.Text)
	})
}

func TestHandleUnpin(t *testing.T) {
	t.Run("conversation room rejected", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		c := authedClient(t, cs, su, types.User{Username: "alice", IsAdmin: true})

		cs.handleUnpin(c, &ClientEvent{BaseMessage: BaseMessage{Id: 1}, Unpin: &Unpin{RoomId: "dm_alice_bob"}})

		ev := recvEvent(t, c)
		assert.Equal(t, http.StatusBadRequest, ev.Response.ResponseCode)
	})

	t.Run("explicit room is unpinned", func(t *testing.T) {
		db := &database.MockStargramRepository{}
		defer db.AssertExpectations(t)
		db.On("ClearPinnedMessage", "chan-x").Return(nil).Once()

		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, db, su)
		admin := authedClient(t, cs, su, types.User{Username: "alice", IsAdmin: true})
		viewer := authedClient(t, cs, su, types.User{Username: "bob"})
		cs.joinRoomSet(viewer, "chan-x")

		cs.handleUnpin(admin, &ClientEvent{BaseMessage: BaseMessage{Id: 2}, Unpin: &Unpin{RoomId: "chan-x"}})

		ack := recvEvent(t, admin)
		assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)

		pin := recvEvent(t, viewer)
		assert.Equal(t, "chan-x", pin.Notification.Pinned.RoomId)
		assert.Nil(t, pin.Notification.Pinned.Message)
	})
}
