// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the request, response, and domain types shared
// by the gateway handlers and stores.
//
// Request types carry go-playground/validator tags and expose a Validate()
// method; handlers reject invalid bodies with 400 before touching any store.
package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message part.
	// Byte length, not rune count, to bound memory for large payloads.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxPartsPerMessage is the maximum number of parts in one message.
	MaxPartsPerMessage = 32

	// MaxTitleLength is the maximum stored chat title length.
	MaxTitleLength = 120
)

// Visibility of a chat. Private chats are readable only by their owner;
// public chats may be read (and their streams resumed) by any session.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// UserType distinguishes anonymous guest sessions from registered accounts.
// Entitlements are keyed by this value.
type UserType string

const (
	UserTypeGuest   UserType = "guest"
	UserTypeRegular UserType = "regular"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxMessageContentBytes on string fields.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Domain Types
// =============================================================================

// Chat is one conversation owned by exactly one user. Ownership is enforced
// on every read and write by comparing UserID against the session user.
type Chat struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// User is a chat account. PasswordHash is empty for guest users.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Type         UserType  `json:"type"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Vote is a per-message up/down vote, keyed by (chatId, messageId).
type Vote struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	IsUpvoted bool   `json:"isUpvoted"`
}

// =============================================================================
// Request Types
// =============================================================================

// IncomingMessage is the client's new user message inside a ChatPostRequest.
type IncomingMessage struct {
	ID        string        `json:"id" validate:"required,uuid4"`
	Content   string        `json:"content" validate:"maxbytes"`
	Parts     []MessagePart `json:"parts" validate:"max=32,dive"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ChatPostRequest is the body of POST /api/chat.
//
// ID is the chat id chosen by the client; the chat row is created lazily on
// the first message. SelectedChatModel must be a logical model id known to
// the provider registry.
type ChatPostRequest struct {
	ID                     string          `json:"id" validate:"required,uuid4"`
	Message                IncomingMessage `json:"message" validate:"required"`
	SelectedChatModel      string          `json:"selectedChatModel" validate:"required,oneof=chat-model chat-model-reasoning"`
	SelectedVisibilityType Visibility      `json:"selectedVisibilityType" validate:"omitempty,oneof=private public"`
}

// Validate checks the request against its validation tags.
//
// # Outputs
//
//   - error: Non-nil when any field violates its constraints.
func (r *ChatPostRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid chat request: %w", err)
	}
	if r.Message.Content == "" && len(r.Message.Parts) == 0 {
		return fmt.Errorf("invalid chat request: message has no content")
	}
	return nil
}

// RegisterRequest is the body of POST /api/auth/register and /login.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// Validate checks credential shape before any store access.
func (r *RegisterRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}
	return nil
}

// VoteRequest is the body of PATCH /api/vote.
type VoteRequest struct {
	ChatID    string `json:"chatId" validate:"required,uuid4"`
	MessageID string `json:"messageId" validate:"required,uuid4"`
	Type      string `json:"type" validate:"required,oneof=up down"`
}

// Validate checks the vote request fields.
func (r *VoteRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid vote request: %w", err)
	}
	return nil
}
