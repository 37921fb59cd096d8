package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	uniqueViolation = "23505"

	accountColumns = "id, username, password_hash, stars, is_admin, is_premium, is_banned, " +
		"color, custom_color, avatar_url, created_at"
	messageColumns = "id, room_id, username, kind, body, image, reply_username, reply_snippet, " +
		"is_edited, author_color, author_is_admin, author_is_premium, author_avatar_url, created_at"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func scanAccount(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.PasswordHash,
		&u.Stars,
		&u.IsAdmin,
		&u.IsPremium,
		&u.IsBanned,
		&u.Color,
		&u.CustomColor,
		&u.AvatarUrl,
		&u.CreatedAt,
	)
	return u, err
}

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.Username,
		&m.Kind,
		&m.Text,
		&m.Image,
		&m.ReplyUsername,
		&m.ReplySnippet,
		&m.IsEdited,
		&m.AuthorColor,
		&m.AuthorIsAdmin,
		&m.AuthorIsPremium,
		&m.AuthorAvatarUrl,
		&m.CreatedAt,
	)
	return m, err
}

func (db *PgStargramRepository) CreateAccount(params CreateAccountParams) (User, error) {
	row := db.conn.QueryRow(
		"INSERT INTO accounts (username, password_hash, color, is_admin, is_premium, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+accountColumns,
		params.Username,
		params.PasswordHash,
		params.Color,
		params.IsAdmin,
		params.IsPremium,
		time.Now().UTC(),
	)

	u, err := scanAccount(row)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicateUser
	}

	return u, err
}

func (db *PgStargramRepository) GetAccountByUsername(username string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE username = $1 LIMIT 1",
		username,
	)

	return scanAccount(row)
}

func (db *PgStargramRepository) ListAccounts() ([]User, error) {
	rows, err := db.conn.Query("SELECT " + accountColumns + " FROM accounts ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgStargramRepository) AddStars(username string, amount int) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET stars = stars + $2 WHERE username = $1 RETURNING "+accountColumns,
		username,
		amount,
	)

	return scanAccount(row)
}

// PurchasePremium decrements the balance and grants premium in one
// conditional statement, so two concurrent purchases cannot both
// succeed against a single price worth of stars.
func (db *PgStargramRepository) PurchasePremium(username string, price int) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET stars = stars - $2, is_premium = TRUE "+
			"WHERE username = $1 AND stars >= $2 RETURNING "+accountColumns,
		username,
		price,
	)

	u, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a poor user from a missing one.
		if _, lookupErr := db.GetAccountByUsername(username); lookupErr != nil {
			return User{}, lookupErr
		}
		return User{}, ErrInsufficientFunds
	}

	return u, err
}

// SetCustomColor only matches premium rows, making the premium check
// and the write a single atomic operation.
func (db *PgStargramRepository) SetCustomColor(username, color string) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET custom_color = $2 "+
			"WHERE username = $1 AND is_premium RETURNING "+accountColumns,
		username,
		color,
	)

	u, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, lookupErr := db.GetAccountByUsername(username); lookupErr != nil {
			return User{}, lookupErr
		}
		return User{}, ErrNotPremium
	}

	return u, err
}

func (db *PgStargramRepository) SetAvatarUrl(username, url string) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET avatar_url = $2 WHERE username = $1 RETURNING "+accountColumns,
		username,
		url,
	)

	return scanAccount(row)
}

func (db *PgStargramRepository) SetBanned(username string, banned bool) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET is_banned = $2 WHERE username = $1 RETURNING "+accountColumns,
		username,
		banned,
	)

	return scanAccount(row)
}

func (db *PgStargramRepository) ToggleBanned(username string) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET is_banned = NOT is_banned WHERE username = $1 RETURNING "+accountColumns,
		username,
	)

	return scanAccount(row)
}

func (db *PgStargramRepository) ToggleAdmin(username string) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET is_admin = NOT is_admin WHERE username = $1 RETURNING "+accountColumns,
		username,
	)

	return scanAccount(row)
}

func (db *PgStargramRepository) TogglePremium(username string) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET is_premium = NOT is_premium WHERE username = $1 RETURNING "+accountColumns,
		username,
	)

	return scanAccount(row)
}

// AddConversationPartner is idempotent: re-adding an existing partner
// is a no-op.
func (db *PgStargramRepository) AddConversationPartner(username, partner string) error {
	_, err := db.conn.Exec(
		"INSERT INTO conversation_partners (username, partner, created_at) "+
			"VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		username,
		partner,
		time.Now().UTC(),
	)

	return err
}

func (db *PgStargramRepository) ListConversationPartners(username string) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT partner FROM conversation_partners WHERE username = $1 ORDER BY created_at",
		username,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var partners []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}

	return partners, rows.Err()
}

func (db *PgStargramRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	row := db.conn.QueryRow(
		"INSERT INTO channels (channel_id, name, description, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, channel_id, name, description, "+
			"COALESCE(pinned_message_id, 0), created_at",
		params.ChannelId,
		params.Name,
		params.Description,
		time.Now().UTC(),
	)

	var c Channel
	err := row.Scan(&c.Id, &c.ChannelId, &c.Name, &c.Description, &c.PinnedId, &c.CreatedAt)
	if isUniqueViolation(err) {
		return Channel{}, ErrDuplicateChannel
	}

	return c, err
}

// EnsureChannel inserts the channel if it does not exist yet. Used at
// startup for the global channel.
func (db *PgStargramRepository) EnsureChannel(params CreateChannelParams) error {
	_, err := db.conn.Exec(
		"INSERT INTO channels (channel_id, name, description, created_at) "+
			"VALUES ($1, $2, $3, $4) ON CONFLICT (channel_id) DO NOTHING",
		params.ChannelId,
		params.Name,
		params.Description,
		time.Now().UTC(),
	)

	return err
}

func (db *PgStargramRepository) GetChannel(channelId string) (Channel, error) {
	row := db.conn.QueryRow(
		"SELECT id, channel_id, name, description, COALESCE(pinned_message_id, 0), created_at "+
			"FROM channels WHERE channel_id = $1 LIMIT 1",
		channelId,
	)

	var c Channel
	err := row.Scan(&c.Id, &c.ChannelId, &c.Name, &c.Description, &c.PinnedId, &c.CreatedAt)

	return c, err
}

func (db *PgStargramRepository) ListChannels() ([]Channel, error) {
	rows, err := db.conn.Query(
		"SELECT id, channel_id, name, description, COALESCE(pinned_message_id, 0), created_at " +
			"FROM channels ORDER BY created_at",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.Id, &c.ChannelId, &c.Name, &c.Description, &c.PinnedId, &c.CreatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}

	return channels, rows.Err()
}

func (db *PgStargramRepository) SetPinnedMessage(channelId string, messageId int) error {
	res, err := db.conn.Exec(
		"UPDATE channels SET pinned_message_id = $2 WHERE channel_id = $1",
		channelId,
		messageId,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgStargramRepository) ClearPinnedMessage(channelId string) error {
	_, err := db.conn.Exec(
		"UPDATE channels SET pinned_message_id = NULL WHERE channel_id = $1",
		channelId,
	)

	return err
}

func (db *PgStargramRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := db.conn.QueryRow(
		"INSERT INTO messages (room_id, username, kind, body, image, reply_username, reply_snippet, "+
			"author_color, author_is_admin, author_is_premium, author_avatar_url, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING "+messageColumns,
		params.RoomId,
		params.Username,
		params.Kind,
		params.Text,
		params.Image,
		params.ReplyUsername,
		params.ReplySnippet,
		params.AuthorColor,
		params.AuthorIsAdmin,
		params.AuthorIsPremium,
		params.AuthorAvatarUrl,
		createdAt,
	)

	return scanMessage(row)
}

func (db *PgStargramRepository) GetMessage(id int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		id,
	)

	return scanMessage(row)
}

// GetMessages returns the most recent messages of a room in ascending
// timestamp order. The page size is owned by the caller's config.
func (db *PgStargramRepository) GetMessages(roomId string, limit int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT * FROM (SELECT "+messageColumns+" FROM messages WHERE room_id = $1 "+
			"ORDER BY created_at DESC, id DESC LIMIT $2) AS recent ORDER BY created_at, id",
		roomId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// UpdateMessageText only matches rows authored by username, so the
// ownership check and the write are one atomic operation. The edited
// flag is set and never cleared.
func (db *PgStargramRepository) UpdateMessageText(id int, username, text string) (Message, error) {
	row := db.conn.QueryRow(
		"UPDATE messages SET body = $3, is_edited = TRUE "+
			"WHERE id = $1 AND username = $2 RETURNING "+messageColumns,
		id,
		username,
		text,
	)

	return scanMessage(row)
}

func (db *PgStargramRepository) DeleteMessage(id int) ([]string, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	rows, err := tx.Query(
		"UPDATE channels SET pinned_message_id = NULL WHERE pinned_message_id = $1 RETURNING channel_id",
		id,
	)
	if err != nil {
		return nil, err
	}

	var cleared []string
	for rows.Next() {
		var channelId string
		if err = rows.Scan(&channelId); err != nil {
			rows.Close()
			return nil, err
		}
		cleared = append(cleared, channelId)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if _, err = tx.Exec("DELETE FROM messages WHERE id = $1", id); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return cleared, nil
}

func (db *PgStargramRepository) DeleteAllMessages() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec("UPDATE channels SET pinned_message_id = NULL"); err != nil {
		return err
	}

	if _, err = tx.Exec("DELETE FROM messages"); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgStargramRepository) CountAccounts() (int, error) {
	return db.count("SELECT COUNT(*) FROM accounts")
}

func (db *PgStargramRepository) CountMessages() (int, error) {
	return db.count("SELECT COUNT(*) FROM messages")
}

func (db *PgStargramRepository) count(query string) (int, error) {
	var n int
	if err := db.conn.QueryRow(query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}

	return n, nil
}
