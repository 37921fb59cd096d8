package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/stargram/stargram/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientEvent is the envelope for everything a client sends. Exactly
// one of the operation fields is set per event.
type ClientEvent struct {
	BaseMessage
	Auth              *Auth              `json:"auth,omitempty"`
	Join              *Join              `json:"join,omitempty"`
	Post              *Post              `json:"post,omitempty"`
	Edit              *Edit              `json:"edit,omitempty"`
	Delete            *Delete            `json:"delete,omitempty"`
	Pin               *Pin               `json:"pin,omitempty"`
	Unpin             *Unpin             `json:"unpin,omitempty"`
	CreateChannel     *CreateChannel     `json:"create_channel,omitempty"`
	StartConversation *StartConversation `json:"start_conversation,omitempty"`
	TopUp             *TopUp             `json:"top_up,omitempty"`
	BuyPremium        *BuyPremium        `json:"buy_premium,omitempty"`
	SetColor          *SetColor          `json:"set_color,omitempty"`
	SetAvatar         *SetAvatar         `json:"set_avatar,omitempty"`
	Admin             *AdminAction       `json:"admin,omitempty"`
	AdminStats        *AdminStatsRequest `json:"admin_stats,omitempty"`
	ClearMessages     *ClearMessages     `json:"clear_messages,omitempty"`
	Typing            *Typing            `json:"typing,omitempty"`

	client *Client
}

type AuthMode string

const (
	AuthLogin    AuthMode = "login"
	AuthRegister AuthMode = "register"
)

type Auth struct {
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	Mode     AuthMode `json:"mode,omitempty"`
	// Token resumes a previous session instead of presenting credentials.
	Token string `json:"token,omitempty"`
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Post struct {
	RoomId  string       `json:"room_id"`
	Text    string       `json:"text,omitempty"`
	Image   []byte       `json:"image,omitempty"`
	ReplyTo *types.Reply `json:"reply_to,omitempty"`
}

type Edit struct {
	MessageId int    `json:"message_id"`
	NewText   string `json:"new_text"`
}

type Delete struct {
	MessageId int `json:"message_id"`
}

type Pin struct {
	MessageId int `json:"message_id"`
}

type Unpin struct {
	RoomId string `json:"room_id"`
}

type CreateChannel struct {
	Name string `json:"name"`
}

type StartConversation struct {
	Username string `json:"username"`
}

type TopUp struct {
	Amount int `json:"amount"`
}

type BuyPremium struct{}

type SetColor struct {
	Color string `json:"color"`
}

type SetAvatar struct {
	AvatarUrl string `json:"avatar_url"`
}

type AdminActionKind string

const (
	AdminBan          AdminActionKind = "ban"
	AdminPromote      AdminActionKind = "promote"
	AdminGrantPremium AdminActionKind = "premium"
)

type AdminAction struct {
	Username string          `json:"username"`
	Action   AdminActionKind `json:"action"`
}

type AdminStatsRequest struct{}

type ClearMessages struct{}

type Typing struct {
	RoomId string `json:"room_id"`
}

// ServerEvent is the envelope for everything the server sends.
type ServerEvent struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type Notification struct {
	Online     *OnlineCount      `json:"online,omitempty"`
	Channels   *ChannelDirectory `json:"channels,omitempty"`
	Partners   *PartnerList      `json:"partners,omitempty"`
	History    *History          `json:"history,omitempty"`
	ActiveRoom *ActiveRoom       `json:"active_room,omitempty"`
	Pinned     *PinnedUpdate     `json:"pinned,omitempty"`
	Edited     *MessageEdited    `json:"edited,omitempty"`
	Deleted    *MessageDeleted   `json:"deleted,omitempty"`
	Cleared    *ChatCleared      `json:"cleared,omitempty"`
	Banned     *BannedNotice     `json:"banned,omitempty"`
	User       *types.User       `json:"user,omitempty"`
	AdminData  *AdminData        `json:"admin_data,omitempty"`
	Typing     *TypingNotice     `json:"typing,omitempty"`
}

type OnlineCount struct {
	Count int `json:"count"`
}

type ChannelDirectory struct {
	Channels []types.Channel `json:"channels"`
}

type PartnerList struct {
	Partners []string `json:"partners"`
}

type History struct {
	RoomId   string          `json:"room_id"`
	Messages []types.Message `json:"messages"`
}

type ActiveRoom struct {
	RoomId string `json:"room_id"`
}

// PinnedUpdate carries the room's pinned message; a nil Message is the
// explicit "no pin" signal.
type PinnedUpdate struct {
	RoomId  string         `json:"room_id"`
	Message *types.Message `json:"message"`
}

type MessageEdited struct {
	MessageId int    `json:"message_id"`
	RoomId    string `json:"room_id"`
	NewText   string `json:"new_text"`
}

type MessageDeleted struct {
	MessageId int    `json:"message_id"`
	RoomId    string `json:"room_id"`
}

type ChatCleared struct{}

type BannedNotice struct {
	Reason string `json:"reason"`
}

type AdminData struct {
	Stats types.AdminStats `json:"stats"`
	Users []types.User     `json:"users"`
}

type TypingNotice struct {
	RoomId   string `json:"room_id"`
	Username string `json:"username"`
}

func NoErrOK(id int, data map[string]any) *ServerEvent {
	return &ServerEvent{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

// ErrAuth carries a login/registration failure; the error string is
// shown verbatim to the caller.
func ErrAuth(id int, msg string) *ServerEvent {
	return &ServerEvent{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusUnauthorized,
			Error:        msg,
		},
	}
}

func ErrUnauthorized(id int) *ServerEvent {
	return &ServerEvent{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "unauthorized",
		},
	}
}

func ErrNotFound(id int, msg string) *ServerEvent {
	return &ServerEvent{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        msg,
		},
	}
}

func ErrPayloadTooLarge(id, limit int) *ServerEvent {
	return &ServerEvent{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusRequestEntityTooLarge,
			Error:        fmt.Sprintf("image exceeds the %d MB limit", limit>>20),
		},
	}
}

func ErrInsufficientFunds(id int) *ServerEvent {
	return &ServerEvent{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusPaymentRequired,
			Error:        "insufficient funds",
		},
	}
}

func ErrInternalError(id int) *ServerEvent {
	return &ServerEvent{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerEvent {
	return &ServerEvent{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerEvent {
	msg := &ServerEvent{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
