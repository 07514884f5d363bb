// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// StreamEvent is one server-sent event on a chat generation stream.
//
// Events are rendered as `event: {Type}\ndata: {json}\n\n` frames. The same
// rendered frame is written to the live HTTP response and appended to the
// durable stream buffer, so a resumed client replays byte-identical frames.
type StreamEvent struct {
	// Type is the SSE event name: status, token, reasoning, tool-call,
	// tool-result, message, error, done.
	Type string `json:"type"`

	// ID is a per-event UUID for client-side deduplication.
	ID string `json:"id,omitempty"`

	// CreatedAt is the emission time in Unix milliseconds.
	CreatedAt int64 `json:"createdAt,omitempty"`

	// Content carries token and reasoning deltas.
	Content string `json:"content,omitempty"`

	// Message carries status text, or a full replayed message payload for
	// type "message".
	Message string `json:"message,omitempty"`

	// Error carries a sanitized failure description for type "error".
	Error string `json:"error,omitempty"`

	// Tool fields for tool-call / tool-result events.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Args       string `json:"args,omitempty"`
	Result     string `json:"result,omitempty"`

	// ChatID and StreamID identify the turn on the final done event.
	ChatID   string `json:"chatId,omitempty"`
	StreamID string `json:"streamId,omitempty"`
}

// Stream event types.
const (
	StreamEventStatus     = "status"
	StreamEventToken      = "token"
	StreamEventReasoning  = "reasoning"
	StreamEventToolCall   = "tool-call"
	StreamEventToolResult = "tool-result"
	StreamEventMessage    = "message"
	StreamEventError      = "error"
	StreamEventDone       = "done"
)
