// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chatstore persists chat history: users, chats, messages, stream
// ids, and votes, backed by Postgres via pgx.
//
// Unlike the todo repository, chat persistence is not pluggable; the data
// model leans on relational features (foreign keys, conflict handling,
// windowed counts) that the key-value backends cannot express.
package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

// ErrNotFound is returned when a lookup targets a row that does not exist.
var ErrNotFound = errors.New("chatstore: not found")

// Store is the persistence contract consumed by the gateway handlers.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type Store interface {
	// CreateUser inserts a registered user. The email must be unique.
	CreateUser(ctx context.Context, email, passwordHash string) (datatypes.User, error)

	// GetUserByEmail returns ErrNotFound when no user has the email.
	GetUserByEmail(ctx context.Context, email string) (datatypes.User, error)

	// CreateGuestUser inserts an anonymous user with a synthetic email.
	CreateGuestUser(ctx context.Context) (datatypes.User, error)

	// GetChatByID returns ErrNotFound when the chat does not exist.
	GetChatByID(ctx context.Context, id string) (datatypes.Chat, error)

	// SaveChat creates the chat if absent. When the id already exists the
	// stored row wins and is returned unchanged, so concurrent first
	// messages to the same chat id cannot clobber each other.
	SaveChat(ctx context.Context, chat datatypes.Chat) (datatypes.Chat, error)

	// DeleteChatByID removes the chat and, via cascade, its messages,
	// streams, and votes.
	DeleteChatByID(ctx context.Context, id string) error

	// GetChatsByUserID returns the user's chats, newest first.
	GetChatsByUserID(ctx context.Context, userID string, limit int) ([]datatypes.Chat, error)

	// SaveMessages appends messages in one transaction.
	SaveMessages(ctx context.Context, messages []datatypes.Message) error

	// GetMessagesByChatID returns the chat's messages in creation order.
	GetMessagesByChatID(ctx context.Context, chatID string) ([]datatypes.Message, error)

	// GetMessageCountByUserSince counts the user's "user"-role messages
	// created after the cutoff. Feeds the daily entitlement check.
	GetMessageCountByUserSince(ctx context.Context, userID string, since time.Time) (int, error)

	// CreateStreamID records a new stream id for the chat.
	CreateStreamID(ctx context.Context, streamID, chatID string) error

	// GetLatestStreamID returns the chat's most recent stream id along
	// with its creation time, or ErrNotFound if the chat has none.
	GetLatestStreamID(ctx context.Context, chatID string) (string, time.Time, error)

	// DeleteStreamsOlderThan removes stream rows created before the cutoff
	// and returns how many were deleted.
	DeleteStreamsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// VoteMessage upserts an up/down vote on a message.
	VoteMessage(ctx context.Context, vote datatypes.Vote) error

	// GetVotesByChatID returns all votes recorded for the chat.
	GetVotesByChatID(ctx context.Context, chatID string) ([]datatypes.Vote, error)

	// Close releases the underlying pool.
	Close()
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresStore connects, pings, and applies the schema.
//
// # Inputs
//
//   - ctx: Bounds connect and migration time.
//   - dsn: Postgres connection string.
//   - log: Structured logger. Must not be nil.
//
// # Outputs
//
//   - *PostgresStore: Ready for queries. Caller owns Close.
//   - error: Connection or migration failure.
func NewPostgresStore(ctx context.Context, dsn string, log *slog.Logger) (*PostgresStore, error) {
	if log == nil {
		panic("chatstore.NewPostgresStore: logger is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("chatstore pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("chatstore ping: %w", err)
	}
	s := &PostgresStore{pool: pool, log: log}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the idempotent schema statements.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("chatstore migrate: %w", err)
		}
	}
	s.log.Info("chatstore schema applied", slog.Int("statements", len(schema)))
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// =============================================================================
// Users
// =============================================================================

func (s *PostgresStore) CreateUser(ctx context.Context, email, passwordHash string) (datatypes.User, error) {
	u := datatypes.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Type:         datatypes.UserTypeRegular,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, user_type)
         VALUES ($1, $2, $3, $4) RETURNING created_at`,
		u.ID, u.Email, u.PasswordHash, u.Type).Scan(&u.CreatedAt)
	if err != nil {
		return datatypes.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (datatypes.User, error) {
	var u datatypes.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, user_type, created_at
         FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Type, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return datatypes.User{}, ErrNotFound
	}
	if err != nil {
		return datatypes.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CreateGuestUser(ctx context.Context) (datatypes.User, error) {
	id := uuid.NewString()
	u := datatypes.User{
		ID:    id,
		Email: fmt.Sprintf("guest-%s@driftchat.local", id),
		Type:  datatypes.UserTypeGuest,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, user_type)
         VALUES ($1, $2, $3) RETURNING created_at`,
		u.ID, u.Email, u.Type).Scan(&u.CreatedAt)
	if err != nil {
		return datatypes.User{}, fmt.Errorf("create guest user: %w", err)
	}
	return u, nil
}

// =============================================================================
// Chats
// =============================================================================

func (s *PostgresStore) GetChatByID(ctx context.Context, id string) (datatypes.Chat, error) {
	var c datatypes.Chat
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, visibility, created_at
         FROM chats WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &c.Title, &c.Visibility, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return datatypes.Chat{}, ErrNotFound
	}
	if err != nil {
		return datatypes.Chat{}, fmt.Errorf("get chat: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) SaveChat(ctx context.Context, chat datatypes.Chat) (datatypes.Chat, error) {
	if chat.Visibility == "" {
		chat.Visibility = datatypes.VisibilityPrivate
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chats (id, user_id, title, visibility)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (id) DO NOTHING`,
		chat.ID, chat.UserID, chat.Title, chat.Visibility)
	if err != nil {
		return datatypes.Chat{}, fmt.Errorf("save chat: %w", err)
	}
	// Whether this insert won or lost a concurrent race for the same id,
	// the stored row is authoritative.
	return s.GetChatByID(ctx, chat.ID)
}

func (s *PostgresStore) DeleteChatByID(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChatsByUserID(ctx context.Context, userID string, limit int) ([]datatypes.Chat, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, visibility, created_at
         FROM chats WHERE user_id = $1
         ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := []datatypes.Chat{}
	for rows.Next() {
		var c datatypes.Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Visibility, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// =============================================================================
// Messages
// =============================================================================

func (s *PostgresStore) SaveMessages(ctx context.Context, messages []datatypes.Message) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save messages begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range messages {
		parts, err := json.Marshal(m.Parts)
		if err != nil {
			return fmt.Errorf("encode parts: %w", err)
		}
		attachments, err := json.Marshal(m.Attachments)
		if err != nil {
			return fmt.Errorf("encode attachments: %w", err)
		}
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO messages (id, chat_id, role, parts, attachments, created_at)
             VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.ChatID, m.Role, parts, attachments, createdAt)
		if err != nil {
			return fmt.Errorf("save message: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetMessagesByChatID(ctx context.Context, chatID string) ([]datatypes.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, role, parts, attachments, created_at
         FROM messages WHERE chat_id = $1
         ORDER BY created_at ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []datatypes.Message{}
	for rows.Next() {
		var (
			m           datatypes.Message
			parts       []byte
			attachments []byte
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &parts, &attachments, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(parts, &m.Parts); err != nil {
			return nil, fmt.Errorf("decode parts: %w", err)
		}
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) GetMessageCountByUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*)
         FROM messages m
         JOIN chats c ON c.id = m.chat_id
         WHERE c.user_id = $1 AND m.role = 'user' AND m.created_at > $2`,
		userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// =============================================================================
// Streams
// =============================================================================

func (s *PostgresStore) CreateStreamID(ctx context.Context, streamID, chatID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO streams (id, chat_id) VALUES ($1, $2)`, streamID, chatID)
	if err != nil {
		return fmt.Errorf("create stream id: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLatestStreamID(ctx context.Context, chatID string) (string, time.Time, error) {
	var (
		id        string
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at FROM streams
         WHERE chat_id = $1 ORDER BY created_at DESC LIMIT 1`, chatID).
		Scan(&id, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", time.Time{}, ErrNotFound
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("latest stream id: %w", err)
	}
	return id, createdAt, nil
}

func (s *PostgresStore) DeleteStreamsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM streams WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old streams: %w", err)
	}
	return tag.RowsAffected(), nil
}

// =============================================================================
// Votes
// =============================================================================

func (s *PostgresStore) VoteMessage(ctx context.Context, vote datatypes.Vote) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO votes (chat_id, message_id, is_upvoted)
         VALUES ($1, $2, $3)
         ON CONFLICT (chat_id, message_id) DO UPDATE SET is_upvoted = $3`,
		vote.ChatID, vote.MessageID, vote.IsUpvoted)
	if err != nil {
		return fmt.Errorf("vote message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVotesByChatID(ctx context.Context, chatID string) ([]datatypes.Vote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chat_id, message_id, is_upvoted FROM votes WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	votes := []datatypes.Vote{}
	for rows.Next() {
		var v datatypes.Vote
		if err := rows.Scan(&v.ChatID, &v.MessageID, &v.IsUpvoted); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
