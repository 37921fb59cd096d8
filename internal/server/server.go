package server

import (
	"context"
	"log"

	"github.com/stargram/stargram/internal/config"
	"github.com/stargram/stargram/internal/database"
	"github.com/stargram/stargram/internal/stats"
)

const (
	activeConnsMetric  = "ActiveConnections"
	onlineUsersMetric  = "OnlineUsers"
	messagesSentMetric = "MessagesSent"
	messagesDelMetric  = "MessagesDeleted"
)

// ChatServer is the single event-processing loop of the process. It
// exclusively owns the connection set, the username index, and the room
// subscription map; every client event is handled serially by Run, so
// events from one connection are processed in arrival order and room
// fanout order equals acceptance order.
type ChatServer struct {
	log   *log.Logger
	db    database.StargramRepository
	stats stats.StatsProvider
	cfg   *config.Config
	creds CredentialStore

	clients map[*Client]struct{}
	// usernames indexes live connections by authenticated username. Its
	// length is the presence count: a user with two tabs counts once.
	usernames map[string]map[*Client]struct{}
	rooms     map[string]map[*Client]struct{}

	eventChan      chan *ClientEvent
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.StargramRepository, sp stats.StatsProvider, cfg *config.Config) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          sp,
		cfg:            cfg,
		creds:          bcryptCredentials{},
		clients:        make(map[*Client]struct{}),
		usernames:      make(map[string]map[*Client]struct{}),
		rooms:          make(map[string]map[*Client]struct{}),
		eventChan:      make(chan *ClientEvent, 256),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	for _, m := range []string{activeConnsMetric, onlineUsersMetric, messagesSentMetric, messagesDelMetric} {
		sp.RegisterMetric(m)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.RegisterChan:
			cs.addClient(client)
		case client := <-cs.deRegisterChan:
			cs.removeClient(client)
		case ev := <-cs.eventChan:
			cs.handleEvent(ev)
		case <-cs.stop:
			cs.log.Println("stopping clients")
			for c := range cs.clients {
				c.stopClient()
			}
			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterClient hands a freshly upgraded connection to the event loop.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.RegisterChan <- c
}

func (cs *ChatServer) handleEvent(ev *ClientEvent) {
	c := ev.client

	if ev.Auth != nil {
		cs.handleAuth(c, ev)
		return
	}

	if c.user == nil {
		// Events from unauthenticated connections are ignored.
		cs.log.Println("dropping event from unauthenticated connection")
		return
	}

	switch {
	case ev.Join != nil:
		cs.handleJoin(c, ev.Id, ev.Join.RoomId)
	case ev.Post != nil:
		cs.handlePost(c, ev)
	case ev.Edit != nil:
		cs.handleEdit(c, ev)
	case ev.Delete != nil:
		cs.handleDelete(c, ev)
	case ev.Pin != nil:
		cs.handlePin(c, ev)
	case ev.Unpin != nil:
		cs.handleUnpin(c, ev)
	case ev.CreateChannel != nil:
		cs.handleCreateChannel(c, ev)
	case ev.StartConversation != nil:
		cs.handleStartConversation(c, ev)
	case ev.TopUp != nil:
		cs.handleTopUp(c, ev)
	case ev.BuyPremium != nil:
		cs.handleBuyPremium(c, ev)
	case ev.SetColor != nil:
		cs.handleSetColor(c, ev)
	case ev.SetAvatar != nil:
		cs.handleSetAvatar(c, ev)
	case ev.Admin != nil:
		cs.handleAdminAction(c, ev)
	case ev.AdminStats != nil:
		cs.handleAdminStats(c, ev)
	case ev.ClearMessages != nil:
		cs.handleClearMessages(c, ev)
	case ev.Typing != nil:
		cs.handleTyping(c, ev)
	default:
		c.queueMessage(ErrInvalidMessage(ev.Id))
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.log.Println("adding connection")
	cs.clients[c] = struct{}{}
	cs.stats.Incr(activeConnsMetric)
}

func (cs *ChatServer) removeClient(c *Client) {
	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	cs.stats.Decr(activeConnsMetric)

	if c.room != "" {
		cs.leaveRoom(c)
	}

	if c.user == nil {
		return
	}

	username := c.user.Username
	cs.log.Printf("removing connection from %q", username)

	if conns, ok := cs.usernames[username]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(cs.usernames, username)
			// last connection of this user is gone
			cs.broadcastOnline()
		}
	}
}

// bindUser attaches an authenticated identity to a connection and
// rebroadcasts the presence count if this is the user's first live
// connection.
func (cs *ChatServer) bindUser(c *Client, username string) {
	if cs.usernames[username] == nil {
		cs.usernames[username] = make(map[*Client]struct{})
		defer cs.broadcastOnline()
	}
	cs.usernames[username][c] = struct{}{}
}

// onlineCount is the number of distinct authenticated usernames with at
// least one live connection, not the connection count.
func (cs *ChatServer) onlineCount() int {
	return len(cs.usernames)
}

func (cs *ChatServer) broadcastOnline() {
	count := cs.onlineCount()
	cs.stats.Set(onlineUsersMetric, count)
	cs.broadcastAll(&ServerEvent{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		Notification: &Notification{Online: &OnlineCount{Count: count}},
	}, nil)
}

func (cs *ChatServer) joinRoomSet(c *Client, roomId string) {
	if c.room != "" {
		cs.leaveRoom(c)
	}

	c.room = roomId
	if cs.rooms[roomId] == nil {
		cs.rooms[roomId] = make(map[*Client]struct{})
	}
	cs.rooms[roomId][c] = struct{}{}
}

func (cs *ChatServer) leaveRoom(c *Client) {
	if subs, ok := cs.rooms[c.room]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(cs.rooms, c.room)
		}
	}
	c.room = ""
}

func (cs *ChatServer) sendToUser(username string, ev *ServerEvent) {
	for c := range cs.usernames[username] {
		c.queueMessage(ev)
	}
}

func (cs *ChatServer) broadcastRoom(roomId string, ev *ServerEvent, skip *Client) {
	for c := range cs.rooms[roomId] {
		if c == skip {
			continue
		}
		c.queueMessage(ev)
	}
}

func (cs *ChatServer) broadcastAll(ev *ServerEvent, skip *Client) {
	for c := range cs.clients {
		if c == skip || c.user == nil {
			continue
		}
		c.queueMessage(ev)
	}
}
