// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

func TestRenderFrame_Shape(t *testing.T) {
	frame, err := RenderFrame(datatypes.StreamEvent{
		Type:    datatypes.StreamEventToken,
		Content: "hello",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(frame, "event: token\ndata: "))
	assert.True(t, strings.HasSuffix(frame, "\n\n"))

	data := strings.TrimSuffix(strings.TrimPrefix(frame, "event: token\ndata: "), "\n\n")
	var event datatypes.StreamEvent
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, "hello", event.Content)
	assert.NotEmpty(t, event.ID, "id should be assigned at render time")
	assert.NotZero(t, event.CreatedAt)
}

func TestRenderFrame_PreservesExistingID(t *testing.T) {
	frame, err := RenderFrame(datatypes.StreamEvent{
		Type:      datatypes.StreamEventDone,
		ID:        "fixed-id",
		CreatedAt: 42,
	})
	require.NoError(t, err)
	assert.Contains(t, frame, `"id":"fixed-id"`)
	assert.Contains(t, frame, `"createdAt":42`)
}

func TestRenderFrame_Deterministic(t *testing.T) {
	event := datatypes.StreamEvent{
		Type:      datatypes.StreamEventToken,
		ID:        "fixed-id",
		CreatedAt: 42,
		Content:   "same",
	}
	a, err := RenderFrame(event)
	require.NoError(t, err)
	b, err := RenderFrame(event)
	require.NoError(t, err)
	assert.Equal(t, a, b, "rendered frames must be byte-identical for replay")
}

func TestSSEWriter_WriteFrameVerbatim(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	frame := "event: token\ndata: {\"type\":\"token\"}\n\n"
	require.NoError(t, w.WriteFrame(frame))
	assert.Equal(t, frame, rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSSEWriter_WriteDone(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteDone("chat-1", "stream-1"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, `"chatId":"chat-1"`)
	assert.Contains(t, body, `"streamId":"stream-1"`)
}

func TestSSEWriter_KeepAliveIsComment(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteKeepAlive())
	assert.Equal(t, ": ping\n\n", rec.Body.String())
}

func TestSetSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}
