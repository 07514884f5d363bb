// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the gateway's HTTP endpoints: chat streaming
// and resume, history, votes, todos, and auth.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/driftchat/driftchat/services/gateway/chatstore"
	"github.com/driftchat/driftchat/services/gateway/datatypes"
	"github.com/driftchat/driftchat/services/gateway/entitlements"
	"github.com/driftchat/driftchat/services/gateway/middleware"
	"github.com/driftchat/driftchat/services/gateway/observability"
	"github.com/driftchat/driftchat/services/gateway/stream"
	"github.com/driftchat/driftchat/services/gateway/tools"
	"github.com/driftchat/driftchat/services/llm"
)

const (
	// maxToolSteps bounds the generate → tool → generate loop per turn.
	maxToolSteps = 5

	// titleTimeout bounds title generation so a slow title model cannot
	// stall the first message of a chat.
	titleTimeout = 10 * time.Second

	// systemPrompt frames every chat turn.
	systemPrompt = "You are a friendly assistant. Keep your responses concise and helpful."
)

// ChatHandler serves the chat endpoints.
//
// # Description
//
// Coordinates the full lifecycle of one chat turn: validation, session,
// quota, chat resolution, persistence, streaming generation with tool
// calls, and the final assistant write. When a stream controller is
// configured, generation runs detached and the HTTP client follows the
// durable stream, so a dropped connection never loses the turn.
type ChatHandler struct {
	store    chatstore.Store
	streams  *stream.Controller
	provider *llm.Provider
	tools    *tools.Registry
	metrics  *observability.ChatMetrics
	tracer   trace.Tracer
	log      *slog.Logger
}

// NewChatHandler wires the chat handler. All dependencies except streams
// are required; a nil streams controller disables resumable streaming.
func NewChatHandler(
	store chatstore.Store,
	streams *stream.Controller,
	provider *llm.Provider,
	toolRegistry *tools.Registry,
	metrics *observability.ChatMetrics,
	tracer trace.Tracer,
	log *slog.Logger,
) *ChatHandler {
	if store == nil {
		panic("handlers.NewChatHandler: store is required")
	}
	if provider == nil {
		panic("handlers.NewChatHandler: provider is required")
	}
	if toolRegistry == nil {
		panic("handlers.NewChatHandler: tool registry is required")
	}
	if metrics == nil {
		panic("handlers.NewChatHandler: metrics are required")
	}
	if tracer == nil {
		panic("handlers.NewChatHandler: tracer is required")
	}
	if log == nil {
		panic("handlers.NewChatHandler: logger is required")
	}
	return &ChatHandler{
		store:    store,
		streams:  streams,
		provider: provider,
		tools:    toolRegistry,
		metrics:  metrics,
		tracer:   tracer,
		log:      log,
	}
}

// HandleChatPost processes POST /api/chat with SSE streaming.
//
// # Description
//
// Flow:
//  1. Bind and validate the request body (400 on failure)
//  2. Load the session placed by RequireSession
//  3. Enforce the daily message quota (429)
//  4. Resolve or lazily create the chat; enforce ownership (403)
//  5. Persist the user message
//  6. Record a new stream id for resumability
//  7. Stream the generation, running tools as the model requests
//  8. Persist the assistant message
//
// Steps 1-4 complete before anything is written, so a rejected request
// leaves no trace.
func (h *ChatHandler) HandleChatPost(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChatPost")
	defer span.End()
	start := time.Now()

	// Step 1: Validate request
	var req datatypes.ChatPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.RecordError(observability.EndpointChatStream, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		h.metrics.RecordError(observability.EndpointChatStream, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(
		attribute.String("chat.id", req.ID),
		attribute.String("chat.model", req.SelectedChatModel),
	)

	// Step 2: Session
	session, ok := middleware.GetSession(c)
	if !ok {
		h.metrics.RecordError(observability.EndpointChatStream, observability.ErrorCodeUnauthorized)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	// Step 3: Entitlement checks: model access, then the sliding window
	if !entitlements.ModelAllowed(session.UserType, req.SelectedChatModel) {
		h.metrics.RecordError(observability.EndpointChatStream, observability.ErrorCodeForbidden)
		c.JSON(http.StatusForbidden, gin.H{"error": "model not available for this account"})
		return
	}
	count, err := h.store.GetMessageCountByUserSince(ctx, session.UserID, time.Now().Add(-entitlements.Window))
	if err != nil {
		h.failJSON(c, span, observability.EndpointChatStream, observability.ErrorCodeStoreError, "quota check failed", err)
		return
	}
	if !entitlements.Allowed(session.UserType, count) {
		h.metrics.RecordError(observability.EndpointChatStream, observability.ErrorCodeRateLimited)
		h.metrics.RecordRateLimited(string(session.UserType))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily message limit reached"})
		return
	}

	// Step 4: Resolve or create the chat, enforcing ownership
	chat, err := h.resolveChat(ctx, req, session)
	if err != nil {
		if errors.Is(err, errChatForbidden) {
			h.metrics.RecordError(observability.EndpointChatStream, observability.ErrorCodeForbidden)
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		h.failJSON(c, span, observability.EndpointChatStream, observability.ErrorCodeStoreError, "chat lookup failed", err)
		return
	}

	// Step 5: Persist the user message before generation starts, so the
	// turn is durable even if the model call fails.
	userMessage := datatypes.Message{
		ID:        req.Message.ID,
		ChatID:    chat.ID,
		Role:      datatypes.RoleUser,
		Parts:     incomingParts(req.Message),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.SaveMessages(ctx, []datatypes.Message{userMessage}); err != nil {
		h.failJSON(c, span, observability.EndpointChatStream, observability.ErrorCodeStoreError, "message save failed", err)
		return
	}

	// Step 6: Record the stream id
	streamID := uuid.NewString()
	if err := h.store.CreateStreamID(ctx, streamID, chat.ID); err != nil {
		h.failJSON(c, span, observability.EndpointChatStream, observability.ErrorCodeStoreError, "stream id save failed", err)
		return
	}
	span.SetAttributes(attribute.String("chat.stream_id", streamID))

	// Step 7: Stream
	history, err := h.store.GetMessagesByChatID(ctx, chat.ID)
	if err != nil {
		h.failJSON(c, span, observability.EndpointChatStream, observability.ErrorCodeStoreError, "history load failed", err)
		return
	}

	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		h.failJSON(c, span, observability.EndpointChatStream, observability.ErrorCodeInternal, "streaming unsupported", err)
		return
	}

	h.metrics.StreamStarted(observability.EndpointChatStream)
	defer h.metrics.StreamEnded(observability.EndpointChatStream)

	turn := &generationTurn{
		chat:     chat,
		streamID: streamID,
		modelID:  req.SelectedChatModel,
		history:  history,
		start:    start,
	}

	if h.streams.Enabled() {
		err = h.streamResumable(ctx, turn, writer)
	} else {
		err = h.streamDirect(ctx, turn, writer)
	}

	success := err == nil
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.metrics.RecordClientDisconnect(observability.EndpointChatStream)
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			h.metrics.RecordError(observability.EndpointChatStream, observability.ErrorCodeLLMError)
			h.log.Error("chat stream failed",
				slog.String("chat_id", chat.ID),
				slog.String("stream_id", streamID),
				slog.String("error", err.Error()))
		}
	}
	h.metrics.RecordRequest(observability.EndpointChatStream, success)
	h.metrics.RecordStreamDuration(observability.EndpointChatStream, time.Since(start).Seconds(), success)
}

// =============================================================================
// Chat Resolution
// =============================================================================

// errChatForbidden marks an ownership violation on an existing chat.
var errChatForbidden = errors.New("chat belongs to another user")

// resolveChat loads the chat or creates it on first message. New chats get
// a generated title; creation is race-safe because the store keeps the
// first insert for an id.
func (h *ChatHandler) resolveChat(ctx context.Context, req datatypes.ChatPostRequest, session middleware.Session) (datatypes.Chat, error) {
	chat, err := h.store.GetChatByID(ctx, req.ID)
	if err == nil {
		if chat.UserID != session.UserID {
			return datatypes.Chat{}, errChatForbidden
		}
		return chat, nil
	}
	if !errors.Is(err, chatstore.ErrNotFound) {
		return datatypes.Chat{}, err
	}

	titleCtx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()
	title := h.provider.GenerateTitle(titleCtx, incomingText(req.Message))

	chat, err = h.store.SaveChat(ctx, datatypes.Chat{
		ID:         req.ID,
		UserID:     session.UserID,
		Title:      title,
		Visibility: req.SelectedVisibilityType,
	})
	if err != nil {
		return datatypes.Chat{}, err
	}
	// A concurrent first message may have won the insert with another
	// owner; re-check.
	if chat.UserID != session.UserID {
		return datatypes.Chat{}, errChatForbidden
	}
	return chat, nil
}

// =============================================================================
// Streaming Modes
// =============================================================================

// generationTurn carries everything one generation needs.
type generationTurn struct {
	chat     datatypes.Chat
	streamID string
	modelID  string
	history  []datatypes.Message
	start    time.Time
}

// streamDirect runs generation synchronously against the live connection.
// Used when no stream controller is configured; a client disconnect
// cancels generation, but a completed assistant message is still saved.
func (h *ChatHandler) streamDirect(ctx context.Context, turn *generationTurn, writer SSEWriter) error {
	emit := func(event datatypes.StreamEvent) error {
		return writer.WriteEvent(event)
	}
	assistant, genErr := h.runGeneration(ctx, turn, emit)
	if assistant != nil {
		// Persist on a detached context: the client may be gone but the
		// completed message must survive.
		if err := h.store.SaveMessages(context.WithoutCancel(ctx), []datatypes.Message{*assistant}); err != nil {
			h.log.Error("assistant message save failed",
				slog.String("chat_id", turn.chat.ID),
				slog.String("error", err.Error()))
		}
	}
	return genErr
}

// streamResumable detaches generation from the HTTP connection.
//
// # Description
//
// Generation writes every frame to the durable stream buffer; the live
// client is simply the first follower of that buffer via Resume. If the
// client drops mid-generation, the detached goroutine keeps producing and
// persisting, and a later GET resume picks up where the client left off.
func (h *ChatHandler) streamResumable(ctx context.Context, turn *generationTurn, writer SSEWriter) error {
	genCtx := context.WithoutCancel(ctx)
	publisher := h.streams.Open(turn.streamID)

	// Seed the buffer before the follower subscribes, so Resume never
	// races an empty buffer into ErrStreamUnknown.
	statusFrame, err := RenderFrame(datatypes.StreamEvent{
		Type:    datatypes.StreamEventStatus,
		Message: "thinking",
	})
	if err != nil {
		return err
	}
	if err := publisher.Append(genCtx, statusFrame); err != nil {
		return err
	}

	go func() {
		emit := func(event datatypes.StreamEvent) error {
			frame, err := RenderFrame(event)
			if err != nil {
				return err
			}
			return publisher.Append(genCtx, frame)
		}
		assistant, genErr := h.runGeneration(genCtx, turn, emit)
		if genErr != nil {
			h.log.Error("detached generation failed",
				slog.String("chat_id", turn.chat.ID),
				slog.String("stream_id", turn.streamID),
				slog.String("error", genErr.Error()))
			if frame, err := RenderFrame(datatypes.StreamEvent{
				Type:  datatypes.StreamEventError,
				Error: "generation failed",
			}); err == nil {
				_ = publisher.Append(genCtx, frame)
			}
		}
		if assistant != nil {
			if err := h.store.SaveMessages(genCtx, []datatypes.Message{*assistant}); err != nil {
				h.log.Error("assistant message save failed",
					slog.String("chat_id", turn.chat.ID),
					slog.String("error", err.Error()))
			}
		}
		if err := publisher.Close(genCtx); err != nil {
			h.log.Error("stream close failed",
				slog.String("stream_id", turn.streamID),
				slog.String("error", err.Error()))
		}
	}()

	err = h.streams.Resume(ctx, turn.streamID, writer.WriteFrame)
	if errors.Is(err, stream.ErrStreamDone) {
		// Generation beat the subscription to completion; everything was
		// already replayed from the buffer.
		return nil
	}
	return err
}

// =============================================================================
// Generation
// =============================================================================

// runGeneration executes the model turn, including tool-call rounds, and
// assembles the assistant message.
//
// # Outputs
//
//   - *datatypes.Message: The assistant message to persist. Non-nil even
//     on partial failure when any content was produced.
//   - error: Non-nil when the model call or an emit failed.
func (h *ChatHandler) runGeneration(ctx context.Context, turn *generationTurn, emit func(datatypes.StreamEvent) error) (*datatypes.Message, error) {
	client, err := h.provider.Client(turn.modelID)
	if err != nil {
		return nil, err
	}
	params := h.provider.ParamsFor(turn.modelID)
	params.Tools = h.tools.Definitions()

	messages := historyToLLM(turn.history)

	var parts []datatypes.MessagePart
	var textBuf, reasoningBuf strings.Builder
	firstToken := false

	for step := 0; step < maxToolSteps; step++ {
		var calls []llm.ToolCall

		err := client.ChatStream(ctx, messages, params, func(event llm.StreamEvent) error {
			switch event.Type {
			case llm.StreamEventToken:
				if !firstToken {
					firstToken = true
					h.metrics.RecordTimeToFirstToken(observability.EndpointChatStream, time.Since(turn.start).Seconds())
				}
				textBuf.WriteString(event.Content)
				return emit(datatypes.StreamEvent{
					Type:    datatypes.StreamEventToken,
					Content: event.Content,
				})
			case llm.StreamEventThinking:
				reasoningBuf.WriteString(event.Content)
				return emit(datatypes.StreamEvent{
					Type:    datatypes.StreamEventReasoning,
					Content: event.Content,
				})
			case llm.StreamEventToolCall:
				calls = append(calls, *event.ToolCall)
				return emit(datatypes.StreamEvent{
					Type:       datatypes.StreamEventToolCall,
					ToolCallID: event.ToolCall.ID,
					ToolName:   event.ToolCall.Name,
					Args:       event.ToolCall.Args,
				})
			}
			return nil
		})
		if err != nil {
			return h.partialAssistant(turn, parts, &reasoningBuf, &textBuf), err
		}

		if len(calls) == 0 {
			break
		}

		// Feed tool results back and let the model continue.
		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   textBuf.String(),
			ToolCalls: calls,
		})
		for _, call := range calls {
			parts = append(parts, datatypes.MessagePart{
				Type:       "tool-call",
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Args:       call.Args,
			})
			result, err := h.tools.Execute(ctx, call.Name, call.Args)
			if err != nil {
				return h.partialAssistant(turn, parts, &reasoningBuf, &textBuf), err
			}
			parts = append(parts, datatypes.MessagePart{
				Type:       "tool-result",
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Result:     result,
			})
			if err := emit(datatypes.StreamEvent{
				Type:       datatypes.StreamEventToolResult,
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Result:     result,
			}); err != nil {
				return h.partialAssistant(turn, parts, &reasoningBuf, &textBuf), err
			}
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	assistant := h.partialAssistant(turn, parts, &reasoningBuf, &textBuf)
	if assistant == nil {
		return nil, fmt.Errorf("model produced no content")
	}

	h.metrics.RecordTokens(estimateTokens(messages), estimateTokenCount(textBuf.Len()), turn.modelID)

	if err := emit(datatypes.StreamEvent{
		Type:     datatypes.StreamEventDone,
		ChatID:   turn.chat.ID,
		StreamID: turn.streamID,
	}); err != nil {
		return assistant, err
	}
	return assistant, nil
}

// partialAssistant assembles whatever content exists into a persistable
// assistant message, or nil when nothing was produced.
func (h *ChatHandler) partialAssistant(turn *generationTurn, toolParts []datatypes.MessagePart, reasoning, text *strings.Builder) *datatypes.Message {
	var parts []datatypes.MessagePart
	if reasoning.Len() > 0 {
		parts = append(parts, datatypes.MessagePart{Type: "reasoning", Text: reasoning.String()})
	}
	parts = append(parts, toolParts...)
	if text.Len() > 0 {
		parts = append(parts, datatypes.MessagePart{Type: "text", Text: text.String()})
	}
	if len(parts) == 0 {
		return nil
	}
	return &datatypes.Message{
		ID:        uuid.NewString(),
		ChatID:    turn.chat.ID,
		Role:      datatypes.RoleAssistant,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	}
}

// =============================================================================
// Helpers
// =============================================================================

// failJSON reports a pre-stream failure. Only called before any SSE bytes
// are written.
func (h *ChatHandler) failJSON(c *gin.Context, span trace.Span, endpoint observability.Endpoint, code observability.ErrorCode, msg string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	h.metrics.RecordError(endpoint, code)
	h.log.Error(msg, slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// incomingParts normalizes the client message into stored parts.
func incomingParts(msg datatypes.IncomingMessage) []datatypes.MessagePart {
	if len(msg.Parts) > 0 {
		return msg.Parts
	}
	return []datatypes.MessagePart{{Type: "text", Text: msg.Content}}
}

// incomingText flattens the client message to plain text.
func incomingText(msg datatypes.IncomingMessage) string {
	if msg.Content != "" {
		return msg.Content
	}
	var out strings.Builder
	for _, p := range msg.Parts {
		if p.Type == "text" {
			out.WriteString(p.Text)
		}
	}
	return out.String()
}

// historyToLLM maps stored history into provider messages, prepending the
// system prompt. Tool parts are omitted; providers only need the text.
func historyToLLM(history []datatypes.Message) []llm.Message {
	out := []llm.Message{{Role: "system", Content: systemPrompt}}
	for _, m := range history {
		if m.Role != datatypes.RoleUser && m.Role != datatypes.RoleAssistant {
			continue
		}
		text := m.PlainText()
		if text == "" {
			continue
		}
		out = append(out, llm.Message{Role: string(m.Role), Content: text})
	}
	return out
}

// estimateTokens approximates input size; providers bill real counts, this
// only feeds a trend metric.
func estimateTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return estimateTokenCount(total)
}

// estimateTokenCount uses the rough 4-bytes-per-token heuristic.
func estimateTokenCount(chars int) int {
	return chars / 4
}
