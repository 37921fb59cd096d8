package server

import (
	"context"
	"testing"
	"time"

	"github.com/stargram/stargram/internal/config"
	"github.com/stargram/stargram/internal/database"
	"github.com/stargram/stargram/internal/stats"
	"github.com/stargram/stargram/internal/testutil"
	"github.com/stargram/stargram/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func testConfig(t *testing.T) *config.Config {
	cfg, err := config.NewConfig("localhost:8000", "dsn", "c2VjcmV0", nil, "")
	if err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	return cfg
}

// newTestChatServer creates a new ChatServer instance for testing purposes
func newTestChatServer(t *testing.T, db database.StargramRepository, su *stats.MockStatsUpdater) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, su, testConfig(t))
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

func newTestClient(t *testing.T, cs *ChatServer) *Client {
	return NewClient(nil, cs, testutil.TestLogger(t))
}

// recvEvent pops the next queued event for the client or fails the test.
func recvEvent(t *testing.T, c *Client) *ServerEvent {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	default:
		t.Fatal("expected a queued event")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("expected no queued event, got %+v", ev)
	default:
	}
}

// authedClient wires a client in as an authenticated user, bypassing
// the credential exchange.
func authedClient(t *testing.T, cs *ChatServer, su *stats.MockStatsUpdater, u types.User) *Client {
	t.Helper()
	c := newTestClient(t, cs)
	c.user = &u
	cs.clients[c] = struct{}{}

	if len(cs.usernames[u.Username]) == 0 {
		su.On("Set", onlineUsersMetric, mock.Anything).Once()
	}
	cs.bindUser(c, u.Username)

	// drop the presence broadcasts triggered by binding
	for cl := range cs.clients {
		for {
			select {
			case <-cl.send:
				continue
			default:
			}
			break
		}
	}
	return c
}

func TestNewChatServer(t *testing.T) {
	db := &database.MockStargramRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, su, testConfig(t))
	assert.NoError(t, err, "expected no error creating ChatServer")
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, logger, cs.log, "expected logger to be set")
	assert.Equal(t, db, cs.db, "expected database repository to be set")
	assert.NotNil(t, cs.eventChan, "expected eventChan to be initialized")
	assert.NotNil(t, cs.RegisterChan, "expected RegisterChan to be initialized")
	assert.NotNil(t, cs.deRegisterChan, "expected deRegisterChan to be initialized")
	assert.NotNil(t, cs.stop, "expected stop channel to be initialized")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
	assert.NotNil(t, cs.usernames, "expected usernames map to be initialized")
	assert.NotNil(t, cs.rooms, "expected rooms map to be initialized")
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockStargramRepository{}, su)
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		cs := newTestChatServer(t, &database.MockStargramRepository{}, su)
		// Run is not started, so the done channel never closes.

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded error, got %v", err)
	})
}

func TestOnlineCount(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	cs := newTestChatServer(t, &database.MockStargramRepository{}, su)

	assert.Equal(t, 0, cs.onlineCount(), "expected no users online")

	alice1 := authedClient(t, cs, su, types.User{Username: "alice"})
	assert.Equal(t, 1, cs.onlineCount(), "expected one user online")

	// second connection of the same user does not change the count
	alice2 := authedClient(t, cs, su, types.User{Username: "alice"})
	assert.Equal(t, 1, cs.onlineCount(), "expected one user online with two connections")

	bob := authedClient(t, cs, su, types.User{Username: "bob"})
	assert.Equal(t, 2, cs.onlineCount(), "expected two users online")

	su.On("Decr", activeConnsMetric).Times(3)

	cs.removeClient(alice1)
	assert.Equal(t, 2, cs.onlineCount(), "expected count unchanged while a connection remains")

	su.On("Set", onlineUsersMetric, 1).Once()
	cs.removeClient(alice2)
	assert.Equal(t, 1, cs.onlineCount(), "expected count to drop when last connection leaves")

	su.On("Set", onlineUsersMetric, 0).Once()
	cs.removeClient(bob)
	assert.Equal(t, 0, cs.onlineCount(), "expected no users online")

	su.AssertExpectations(t)
}

func TestJoinAndLeaveRoom(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	cs := newTestChatServer(t, &database.MockStargramRepository{}, su)
	c := authedClient(t, cs, su, types.User{Username: "alice"})

	cs.joinRoomSet(c, "global")
	assert.Equal(t, "global", c.room)
	assert.Contains(t, cs.rooms["global"], c)

	// joining another room leaves the previous one
	cs.joinRoomSet(c, "chan-x")
	assert.Equal(t, "chan-x", c.room)
	assert.NotContains(t, cs.rooms, "global", "expected empty room to be dropped")
	assert.Contains(t, cs.rooms["chan-x"], c)

	cs.leaveRoom(c)
	assert.Empty(t, c.room)
	assert.NotContains(t, cs.rooms, "chan-x")
}

func TestBroadcastRoomSkipsSender(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	cs := newTestChatServer(t, &database.MockStargramRepository{}, su)

	alice := authedClient(t, cs, su, types.User{Username: "alice"})
	bob := authedClient(t, cs, su, types.User{Username: "bob"})
	cs.joinRoomSet(alice, "global")
	cs.joinRoomSet(bob, "global")

	ev := &ServerEvent{Notification: &Notification{Online: &OnlineCount{Count: 2}}}
	cs.broadcastRoom("global", ev, alice)

	assertNoEvent(t, alice)
	got := recvEvent(t, bob)
	assert.Equal(t, ev, got)
}

func TestBroadcastAllSkipsUnauthenticated(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	cs := newTestChatServer(t, &database.MockStargramRepository{}, su)

	alice := authedClient(t, cs, su, types.User{Username: "alice"})

	anon := newTestClient(t, cs)
	cs.clients[anon] = struct{}{}

	ev := &ServerEvent{Notification: &Notification{Cleared: &ChatCleared{}}}
	cs.broadcastAll(ev, nil)

	assert.Equal(t, ev, recvEvent(t, alice))
	assertNoEvent(t, anon)
}

func TestHandleEventDropsUnauthenticated(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	db := &database.MockStargramRepository{}
	defer db.AssertExpectations(t)

	cs := newTestChatServer(t, db, su)
	anon := newTestClient(t, cs)

	cs.handleEvent(&ClientEvent{
		Post:   &Post{Text: "hello"},
		client: anon,
	})

	assertNoEvent(t, anon)
}
