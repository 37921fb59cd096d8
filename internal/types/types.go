package types

import (
	"time"
)

type User struct {
	Id          int       `json:"id"`
	Username    string    `json:"username"`
	Password    string    `json:"-"`
	Stars       int       `json:"stars"`
	IsAdmin     bool      `json:"is_admin"`
	IsPremium   bool      `json:"is_premium"`
	IsBanned    bool      `json:"is_banned"`
	Color       string    `json:"color"`
	CustomColor string    `json:"custom_color,omitempty"`
	AvatarUrl   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// DisplayColor is the color clients render the username in. A custom
// color is only ever stored for premium users, so it wins when set.
func (u User) DisplayColor() string {
	if u.CustomColor != "" {
		return u.CustomColor
	}
	return u.Color
}

type Channel struct {
	ChannelId   string    `json:"channel_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PinnedId    int       `json:"pinned_id,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// MessageKind distinguishes the three message variants. Presentation
// layers must switch on it exhaustively rather than probing for fields.
type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageImage  MessageKind = "image"
	MessageSystem MessageKind = "system"
)

// Reply is a denormalized snippet of the message being replied to,
// captured at send time. It is not a live link: editing or deleting
// the original leaves the snippet untouched.
type Reply struct {
	Username string `json:"username"`
	Snippet  string `json:"snippet"`
}

type Message struct {
	Id       int         `json:"id"`
	RoomId   string      `json:"room_id"`
	Username string      `json:"username"`
	Kind     MessageKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	Image    []byte      `json:"image,omitempty"`
	ReplyTo  *Reply      `json:"reply_to,omitempty"`
	IsEdited bool        `json:"is_edited"`
	// Author state snapshotted at send time.
	Color     string    `json:"color,omitempty"`
	IsAdmin   bool      `json:"is_admin,omitempty"`
	IsPremium bool      `json:"is_premium,omitempty"`
	AvatarUrl string    `json:"avatar_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type AdminStats struct {
	TotalUsers    int `json:"total_users"`
	TotalMessages int `json:"total_messages"`
	OnlineUsers   int `json:"online_users"`
}
