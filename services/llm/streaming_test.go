// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestToolCallAccumulator_ReassemblesFragments(t *testing.T) {
	acc := newToolCallAccumulator()

	// First fragment carries id and name, later ones only argument bytes.
	acc.add(openai.ToolCall{
		Index:    intPtr(0),
		ID:       "call_abc",
		Function: openai.FunctionCall{Name: "get_weather", Arguments: `{"city":`},
	})
	acc.add(openai.ToolCall{
		Index:    intPtr(0),
		Function: openai.FunctionCall{Arguments: `"Oslo"}`},
	})

	calls := acc.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_abc", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, `{"city":"Oslo"}`, calls[0].Args)
}

func TestToolCallAccumulator_ParallelCallsKeepOrder(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.add(openai.ToolCall{Index: intPtr(0), ID: "call_1", Function: openai.FunctionCall{Name: "first"}})
	acc.add(openai.ToolCall{Index: intPtr(1), ID: "call_2", Function: openai.FunctionCall{Name: "second"}})
	acc.add(openai.ToolCall{Index: intPtr(0), Function: openai.FunctionCall{Arguments: `{}`}})

	calls := acc.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "first", calls[0].Name)
	assert.Equal(t, "second", calls[1].Name)
	// Empty args normalize to an empty JSON object.
	assert.Equal(t, "{}", calls[1].Args)
}

func TestAnthropicReadStream_TokensAndThinking(t *testing.T) {
	body := strings.Join([]string{
		`data: {"type":"message_start"}`,
		``,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"Considering..."}}`,
		``,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
		``,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`,
		``,
		`data: {"type":"message_stop"}`,
		``,
	}, "\n")

	var tokens, thinking strings.Builder
	var done bool
	client := &AnthropicClient{}
	err := client.readStream(strings.NewReader(body), func(event StreamEvent) error {
		switch event.Type {
		case StreamEventToken:
			tokens.WriteString(event.Content)
		case StreamEventThinking:
			thinking.WriteString(event.Content)
		case StreamEventDone:
			done = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", tokens.String())
	assert.Equal(t, "Considering...", thinking.String())
	assert.True(t, done)
}

func TestAnthropicReadStream_ToolUse(t *testing.T) {
	body := strings.Join([]string{
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"Oslo\"}"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"message_stop"}`,
	}, "\n")

	var calls []ToolCall
	client := &AnthropicClient{}
	err := client.readStream(strings.NewReader(body), func(event StreamEvent) error {
		if event.Type == StreamEventToolCall {
			calls = append(calls, *event.ToolCall)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "toolu_1", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, `{"city":"Oslo"}`, calls[0].Args)
}

func TestAnthropicReadStream_ErrorEvent(t *testing.T) {
	body := `data: {"type":"error","error":{"type":"overloaded_error","message":"try again"}}`

	client := &AnthropicClient{}
	err := client.readStream(strings.NewReader(body), func(StreamEvent) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error")
}

func TestAnthropicReadStream_EOFWithoutStopIsDone(t *testing.T) {
	body := `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}`

	var done bool
	client := &AnthropicClient{}
	err := client.readStream(strings.NewReader(body), func(event StreamEvent) error {
		if event.Type == StreamEventDone {
			done = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, done)
}
