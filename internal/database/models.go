package database

import "time"

type User struct {
	Id           int
	Username     string
	PasswordHash string
	Stars        int
	IsAdmin      bool
	IsPremium    bool
	IsBanned     bool
	Color        string
	CustomColor  string
	AvatarUrl    string
	CreatedAt    time.Time
}

type Channel struct {
	Id          int
	ChannelId   string
	Name        string
	Description string
	// PinnedId is the id of the pinned message, zero when nothing is pinned.
	PinnedId  int
	CreatedAt time.Time
}

type Message struct {
	Id              int
	RoomId          string
	Username        string
	Kind            string
	Text            string
	Image           []byte
	ReplyUsername   string
	ReplySnippet    string
	IsEdited        bool
	AuthorColor     string
	AuthorIsAdmin   bool
	AuthorIsPremium bool
	AuthorAvatarUrl string
	CreatedAt       time.Time
}

type CreateAccountParams struct {
	Username     string
	PasswordHash string
	Color        string
	IsAdmin      bool
	IsPremium    bool
}

type CreateChannelParams struct {
	ChannelId   string
	Name        string
	Description string
}

type CreateMessageParams struct {
	RoomId          string
	Username        string
	Kind            string
	Text            string
	Image           []byte
	ReplyUsername   string
	ReplySnippet    string
	AuthorColor     string
	AuthorIsAdmin   bool
	AuthorIsPremium bool
	AuthorAvatarUrl string
	CreatedAt       time.Time
}
