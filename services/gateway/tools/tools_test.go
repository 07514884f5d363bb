// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRegistry_Definitions(t *testing.T) {
	r := NewRegistry(testLogger())
	defs := r.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "get_weather", defs[0].Name)
	assert.Equal(t, "object", defs[0].InputSchema["type"])
}

func TestRegistry_UnknownToolIsHardError(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Execute(context.Background(), "launch_rockets", "{}")
	require.Error(t, err)
}

func TestRegistry_FailuresReturnedAsPayload(t *testing.T) {
	r := NewRegistry(testLogger())

	// Malformed args fail inside the tool; the model gets an error payload
	// instead of the request dying.
	result, err := r.Execute(context.Background(), "get_weather", "not json")
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(result), &payload))
	assert.Contains(t, payload["error"], "bad arguments")
}

func TestWeatherTool_Run(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "59.9100", req.URL.Query().Get("latitude"))
		assert.Equal(t, "10.7500", req.URL.Query().Get("longitude"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"current":{"temperature_2m":3.4}}`))
	}))
	defer server.Close()

	tool := &weatherTool{httpClient: server.Client(), baseURL: server.URL}
	result, err := tool.run(context.Background(), `{"latitude":59.91,"longitude":10.75}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"current":{"temperature_2m":3.4}}`, result)
}

func TestWeatherTool_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	tool := &weatherTool{httpClient: server.Client(), baseURL: server.URL}
	_, err := tool.run(context.Background(), `{"latitude":1,"longitude":2}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
