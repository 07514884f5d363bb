// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chatstore

// schema is applied on startup and by the migrate command. Statements are
// idempotent so re-running against a populated database is safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id            UUID PRIMARY KEY,
        email         TEXT NOT NULL UNIQUE,
        password_hash TEXT NOT NULL DEFAULT '',
        user_type     TEXT NOT NULL DEFAULT 'regular',
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS chats (
        id         UUID PRIMARY KEY,
        user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        title      TEXT NOT NULL DEFAULT '',
        visibility TEXT NOT NULL DEFAULT 'private',
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_chats_user_created
        ON chats (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS messages (
        id          UUID PRIMARY KEY,
        chat_id     UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        role        TEXT NOT NULL,
        parts       JSONB NOT NULL DEFAULT '[]',
        attachments JSONB NOT NULL DEFAULT '[]',
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_created
        ON messages (chat_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS streams (
        id         UUID PRIMARY KEY,
        chat_id    UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_streams_chat_created
        ON streams (chat_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_streams_created
        ON streams (created_at)`,
	`CREATE TABLE IF NOT EXISTS votes (
        chat_id    UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        message_id UUID NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
        is_upvoted BOOLEAN NOT NULL,
        PRIMARY KEY (chat_id, message_id)
    )`,
}
