// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm abstracts the model providers behind one streaming client
// interface. OpenAI, Anthropic, and Gemini backends are provided; the
// provider registry maps the logical model ids the API exposes onto
// concrete backend clients.
package llm

import "context"

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// EnableThinking asks the backend for reasoning output where the
	// model supports it. Backends without the capability ignore it.
	EnableThinking bool `json:"enable_thinking,omitempty"`

	// Tools the model may call during this turn.
	Tools []Tool `json:"tools,omitempty"`
}

// Message is one chat turn in the provider-neutral wire shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCallID links a "tool" role message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls set on assistant messages that requested tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Tool describes a function the model may invoke.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// InputSchema is the JSON Schema of the tool's arguments.
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is a completed tool invocation request from the model.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Args is the raw JSON argument payload.
	Args string `json:"args"`
}

// StreamEventType labels one callback event during streaming.
type StreamEventType string

const (
	StreamEventToken    StreamEventType = "token"
	StreamEventThinking StreamEventType = "thinking"
	StreamEventToolCall StreamEventType = "tool_call"
	StreamEventDone     StreamEventType = "done"
	StreamEventError    StreamEventType = "error"
)

// StreamEvent is one incremental result during generation. Token and
// thinking events carry deltas in Content; tool_call events carry a fully
// accumulated call.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Content  string          `json:"content,omitempty"`
	ToolCall *ToolCall       `json:"tool_call,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// StreamCallback receives events as the model produces them. Returning an
// error aborts the stream and propagates out of ChatStream.
type StreamCallback func(event StreamEvent) error

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// ChatStream runs one chat turn, invoking callback per event. It
	// returns after the model finishes, a callback errors, or ctx ends.
	ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) error
}
