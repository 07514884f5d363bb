// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/driftchat/driftchat/services/gateway/chatstore"
	"github.com/driftchat/driftchat/services/gateway/datatypes"
	"github.com/driftchat/driftchat/services/gateway/middleware"
	"github.com/driftchat/driftchat/services/gateway/observability"
	"github.com/driftchat/driftchat/services/gateway/stream"
)

// resumeWindow is how long after a stream completes a reconnecting client
// still gets the finished assistant message replayed. Past the window the
// client is assumed to have received it.
const resumeWindow = 30 * time.Second

// HandleChatResume processes GET /api/chat/:id/stream.
//
// # Description
//
// Reattaches a client to the chat's most recent generation stream.
//
// Outcomes:
//   - Stream still live: replay buffered frames, then follow to the end.
//   - Stream finished within resumeWindow: replay the last assistant
//     message as a single message event.
//   - Nothing to resume (no stream id, finished long ago, or resumable
//     streaming disabled): 204 with an empty body.
//
// Private chats resume only for their owner; public chats for any session.
func (h *ChatHandler) HandleChatResume(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChatResume")
	defer span.End()

	// Step 1: Validate the chat id
	chatID := c.Param("id")
	if _, err := uuid.Parse(chatID); err != nil {
		h.metrics.RecordError(observability.EndpointChatResume, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	// Step 2: Session
	session, ok := middleware.GetSession(c)
	if !ok {
		h.metrics.RecordError(observability.EndpointChatResume, observability.ErrorCodeUnauthorized)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// Step 3: Chat lookup and visibility check
	chat, err := h.store.GetChatByID(ctx, chatID)
	if errors.Is(err, chatstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	if err != nil {
		h.failJSON(c, span, observability.EndpointChatResume, observability.ErrorCodeStoreError, "chat lookup failed", err)
		return
	}
	if chat.Visibility != datatypes.VisibilityPublic && chat.UserID != session.UserID {
		h.metrics.RecordError(observability.EndpointChatResume, observability.ErrorCodeForbidden)
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	// Step 4: Resumable streaming must be configured
	if !h.streams.Enabled() {
		h.metrics.RecordResume(observability.ResumeOutcomeEmpty)
		c.Status(http.StatusNoContent)
		return
	}

	// Step 5: Latest stream id
	streamID, _, err := h.store.GetLatestStreamID(ctx, chatID)
	if errors.Is(err, chatstore.ErrNotFound) {
		h.metrics.RecordResume(observability.ResumeOutcomeEmpty)
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.failJSON(c, span, observability.EndpointChatResume, observability.ErrorCodeStoreError, "stream lookup failed", err)
		return
	}

	// Step 6: Probe the buffer before committing to SSE, so finished and
	// expired streams can still answer with a plain status code.
	exists, done, err := h.streams.State(ctx, streamID)
	if err != nil {
		h.failJSON(c, span, observability.EndpointChatResume, observability.ErrorCodeStoreError, "stream probe failed", err)
		return
	}
	if !exists {
		// Buffer expired or was never written.
		h.metrics.RecordResume(observability.ResumeOutcomeUnknown)
		c.Status(http.StatusNoContent)
		return
	}
	if done {
		h.replayLastAssistantMessage(c, chatID, streamID)
		return
	}

	// Step 7: Live stream; replay the buffer and follow
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		h.failJSON(c, span, observability.EndpointChatResume, observability.ErrorCodeInternal, "streaming unsupported", err)
		return
	}

	h.metrics.StreamStarted(observability.EndpointChatResume)
	defer h.metrics.StreamEnded(observability.EndpointChatResume)

	err = h.streams.Resume(ctx, streamID, writer.WriteFrame)
	switch {
	case err == nil, errors.Is(err, stream.ErrStreamDone):
		h.metrics.RecordResume(observability.ResumeOutcomeFollowed)
		h.metrics.RecordRequest(observability.EndpointChatResume, true)
	case errors.Is(err, stream.ErrStreamUnknown):
		// Buffer vanished between probe and read; nothing was written.
		h.metrics.RecordResume(observability.ResumeOutcomeUnknown)
		h.metrics.RecordRequest(observability.EndpointChatResume, false)
	default:
		if errors.Is(err, ctx.Err()) {
			h.metrics.RecordClientDisconnect(observability.EndpointChatResume)
		} else {
			h.log.Error("stream resume failed",
				slog.String("stream_id", streamID),
				slog.String("error", err.Error()))
		}
		h.metrics.RecordRequest(observability.EndpointChatResume, false)
	}
}

// replayLastAssistantMessage serves a finished stream: within the resume
// window the last assistant message is replayed as one message event, past
// it the client gets 204.
func (h *ChatHandler) replayLastAssistantMessage(c *gin.Context, chatID, streamID string) {
	messages, err := h.store.GetMessagesByChatID(c.Request.Context(), chatID)
	if err != nil {
		h.log.Error("history load failed during resume",
			slog.String("chat_id", chatID),
			slog.String("error", err.Error()))
		h.metrics.RecordResume(observability.ResumeOutcomeEmpty)
		c.Status(http.StatusNoContent)
		return
	}

	var last *datatypes.Message
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == datatypes.RoleAssistant {
			last = &messages[i]
			break
		}
	}
	if last == nil || time.Since(last.CreatedAt) > resumeWindow {
		h.metrics.RecordResume(observability.ResumeOutcomeEmpty)
		c.Status(http.StatusNoContent)
		return
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		c.Status(http.StatusNoContent)
		return
	}

	payload, err := json.Marshal(last)
	if err != nil {
		h.log.Error("message encode failed during resume", slog.String("error", err.Error()))
		return
	}
	_ = writer.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventMessage,
		Message: string(payload),
	})
	_ = writer.WriteDone(chatID, streamID)
	h.metrics.RecordResume(observability.ResumeOutcomeReplayedMessage)
	h.metrics.RecordRequest(observability.EndpointChatResume, true)
}

// HandleChatDelete processes DELETE /api/chat/:id.
//
// Only the owner may delete a chat; messages, stream ids, and votes go
// with it via cascade.
func (h *ChatHandler) HandleChatDelete(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChatDelete")
	defer span.End()

	chatID := c.Param("id")
	if _, err := uuid.Parse(chatID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	chat, err := h.store.GetChatByID(ctx, chatID)
	if errors.Is(err, chatstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	if err != nil {
		h.failJSON(c, span, observability.EndpointChatDelete, observability.ErrorCodeStoreError, "chat lookup failed", err)
		return
	}
	if chat.UserID != session.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.store.DeleteChatByID(ctx, chatID); err != nil {
		h.failJSON(c, span, observability.EndpointChatDelete, observability.ErrorCodeStoreError, "chat delete failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": chatID})
}

// HandleHistory processes GET /api/history, returning the session user's
// chats, newest first.
func (h *ChatHandler) HandleHistory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleHistory")
	defer span.End()

	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := 100
	chats, err := h.store.GetChatsByUserID(ctx, session.UserID, limit)
	if err != nil {
		h.failJSON(c, span, observability.EndpointHistory, observability.ErrorCodeStoreError, "history load failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// HandleChatMessages processes GET /api/chat/:id/messages.
func (h *ChatHandler) HandleChatMessages(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChatMessages")
	defer span.End()

	chatID := c.Param("id")
	if _, err := uuid.Parse(chatID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	chat, err := h.store.GetChatByID(ctx, chatID)
	if errors.Is(err, chatstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	if err != nil {
		h.failJSON(c, span, observability.EndpointChatMessages, observability.ErrorCodeStoreError, "chat lookup failed", err)
		return
	}
	if chat.Visibility != datatypes.VisibilityPublic && chat.UserID != session.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	messages, err := h.store.GetMessagesByChatID(ctx, chatID)
	if err != nil {
		h.failJSON(c, span, observability.EndpointChatMessages, observability.ErrorCodeStoreError, "message load failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": messages})
}

// HandleVote processes PATCH /api/vote, upserting an up/down vote on a
// message in a chat the user owns.
func (h *ChatHandler) HandleVote(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleVote")
	defer span.End()

	var req datatypes.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	chat, err := h.store.GetChatByID(ctx, req.ChatID)
	if errors.Is(err, chatstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	if err != nil {
		h.failJSON(c, span, observability.EndpointVote, observability.ErrorCodeStoreError, "chat lookup failed", err)
		return
	}
	if chat.UserID != session.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	vote := datatypes.Vote{
		ChatID:    req.ChatID,
		MessageID: req.MessageID,
		IsUpvoted: req.Type == "up",
	}
	if err := h.store.VoteMessage(ctx, vote); err != nil {
		h.failJSON(c, span, observability.EndpointVote, observability.ErrorCodeStoreError, "vote save failed", err)
		return
	}
	c.JSON(http.StatusOK, vote)
}

// HandleVotes processes GET /api/vote?chatId=..., listing a chat's votes.
func (h *ChatHandler) HandleVotes(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleVotes")
	defer span.End()

	chatID := c.Query("chatId")
	if _, err := uuid.Parse(chatID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	chat, err := h.store.GetChatByID(ctx, chatID)
	if errors.Is(err, chatstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	if err != nil {
		h.failJSON(c, span, observability.EndpointVote, observability.ErrorCodeStoreError, "chat lookup failed", err)
		return
	}
	if chat.Visibility != datatypes.VisibilityPublic && chat.UserID != session.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	votes, err := h.store.GetVotesByChatID(ctx, chatID)
	if err != nil {
		h.failJSON(c, span, observability.EndpointVote, observability.ErrorCodeStoreError, "vote load failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": votes})
}
