package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nevexa-app/nevexa/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrEmptyContent      = errors.New("message content cannot be empty")
)

type PostgresDB struct {
	*sql.DB
}

func NewPostgresDB(connStr string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresDB{db}, nil
}

func (db *PostgresDB) CreateUser(username, email, passwordHash string) (*models.User, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM users WHERE username = $1 OR email = $2",
		username, email).Scan(&count)
	if err != nil {
		return nil, err
	}

	if count > 0 {
		return nil, ErrUserAlreadyExists
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
		LastSeen:     time.Now().UTC(),
	}

	_, err = db.Exec(
		"INSERT INTO users (id, username, email, password_hash, created_at, last_seen) VALUES ($1, $2, $3, $4, $5, $6)",
		user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt, user.LastSeen,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) GetUserByEmail(email string) (*models.User, error) {
	user := &models.User{}

	err := db.QueryRow(`
		SELECT id, username, email, password_hash,
		       COALESCE(display_name, ''), COALESCE(avatar_url, ''),
		       created_at, last_seen
		FROM users WHERE email = $1`, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.DisplayName, &user.AvatarURL, &user.CreatedAt, &user.LastSeen)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(id uuid.UUID) (*models.User, error) {
	var user models.User
	err := db.QueryRow(`
		SELECT id, username, email, password_hash,
		       COALESCE(display_name, ''), COALESCE(avatar_url, ''),
		       created_at, last_seen
		FROM users WHERE id = $1`,
		id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.AvatarURL,
		&user.CreatedAt,
		&user.LastSeen,
	)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (db *PostgresDB) UpdateLastSeen(userID uuid.UUID) error {
	result, err := db.Exec("UPDATE users SET last_seen = $1 WHERE id = $2",
		time.Now().UTC(), userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (db *PostgresDB) GetAllUsers(excludeUserID uuid.UUID) ([]*models.User, error) {
	rows, err := db.Query(`
		SELECT id, username, email, password_hash,
		       COALESCE(display_name, ''), COALESCE(avatar_url, ''),
		       created_at, last_seen
		FROM users
		WHERE id != $1
		ORDER BY username`,
		excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// SearchUsers finds users whose username or display name contains the query,
// case-insensitively. Used by the client to start a conversation with a new
// contact.
func (db *PostgresDB) SearchUsers(query string, excludeUserID uuid.UUID) ([]*models.User, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := db.Query(`
		SELECT id, username, email, password_hash,
		       COALESCE(display_name, ''), COALESCE(avatar_url, ''),
		       created_at, last_seen
		FROM users
		WHERE id != $1 AND (username ILIKE $2 OR display_name ILIKE $2)
		ORDER BY username
		LIMIT 20`,
		excludeUserID, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]*models.User, error) {
	var users []*models.User
	for rows.Next() {
		var user models.User

		err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.Email,
			&user.PasswordHash,
			&user.DisplayName,
			&user.AvatarURL,
			&user.CreatedAt,
			&user.LastSeen,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}

		users = append(users, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user rows: %w", err)
	}

	return users, nil
}

// CreateMessage persists a new message. Messages start unread; the only
// later mutation is the bulk mark-read transition.
func (db *PostgresDB) CreateMessage(senderID, receiverID uuid.UUID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	_, err := db.GetUserByID(senderID)
	if err != nil {
		return nil, err
	}

	_, err = db.GetUserByID(receiverID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
		IsRead:     false,
	}

	_, err = db.Exec(
		"INSERT INTO messages (id, sender_id, receiver_id, content, created_at, is_read) VALUES ($1, $2, $3, $4, $5, $6)",
		message.ID, message.SenderID, message.ReceiverID, message.Content, message.CreatedAt, message.IsRead,
	)
	if err != nil {
		return nil, err
	}

	return message, nil
}

// GetMessagesByUser returns every message the user sent or received, newest
// first. The conversation aggregator relies on this ordering.
func (db *PostgresDB) GetMessagesByUser(userID uuid.UUID) ([]*models.Message, error) {
	rows, err := db.Query(
		"SELECT id, sender_id, receiver_id, content, created_at, is_read, read_at FROM messages WHERE sender_id = $1 OR receiver_id = $1 ORDER BY created_at DESC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// GetConversation returns all messages between the two users in either
// direction, oldest first.
func (db *PostgresDB) GetConversation(userID1, userID2 uuid.UUID) ([]*models.Message, error) {
	rows, err := db.Query(
		`SELECT id, sender_id, receiver_id, content, created_at, is_read, read_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC`,
		userID1, userID2,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		var readAt sql.NullTime

		err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.CreatedAt, &msg.IsRead, &readAt)
		if err != nil {
			return nil, err
		}

		if readAt.Valid {
			msg.ReadAt = &readAt.Time
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// CountUnreadFrom counts messages sent by counterpartID to ownerID that
// ownerID has not yet marked read.
func (db *PostgresDB) CountUnreadFrom(counterpartID, ownerID uuid.UUID) (int, error) {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE sender_id = $1 AND receiver_id = $2 AND is_read = false",
		counterpartID, ownerID,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkConversationRead marks every unread message from counterpartID to
// ownerID as read and returns the number of messages cleared. Calling it
// again once everything is read returns 0.
func (db *PostgresDB) MarkConversationRead(ownerID, counterpartID uuid.UUID) (int64, error) {
	result, err := db.Exec(
		"UPDATE messages SET is_read = true, read_at = $1 WHERE sender_id = $2 AND receiver_id = $3 AND is_read = false",
		time.Now().UTC(), counterpartID, ownerID,
	)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// DeleteMessagesBefore removes messages created before the cutoff. The
// retention sweeper drives this; the index on created_at keeps it cheap.
func (db *PostgresDB) DeleteMessagesBefore(cutoff time.Time) (int64, error) {
	result, err := db.Exec("DELETE FROM messages WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (db *PostgresDB) Close() error {
	return db.DB.Close()
}

func (db *PostgresDB) Exec(query string, args ...interface{}) (ExecResult, error) {
	return db.DB.Exec(query, args...)
}
