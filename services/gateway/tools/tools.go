// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools holds the functions the chat model may call mid-turn.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/driftchat/driftchat/services/llm"
)

// Registry maps tool names to their schema and executable body.
type Registry struct {
	tools map[string]registeredTool
	log   *slog.Logger
}

type registeredTool struct {
	def llm.Tool
	run func(ctx context.Context, argsJSON string) (string, error)
}

// NewRegistry builds the default tool set.
func NewRegistry(log *slog.Logger) *Registry {
	return NewRegistryWithWeather(log, &http.Client{Timeout: 10 * time.Second}, openMeteoBaseURL)
}

// NewRegistryWithWeather builds the tool set against a custom weather
// endpoint. Used by tests to avoid real upstream calls.
func NewRegistryWithWeather(log *slog.Logger, client *http.Client, baseURL string) *Registry {
	if log == nil {
		panic("tools.NewRegistry: logger is required")
	}
	r := &Registry{tools: make(map[string]registeredTool), log: log}
	w := &weatherTool{httpClient: client, baseURL: baseURL}
	r.register(w.definition(), w.run)
	return r
}

func (r *Registry) register(def llm.Tool, run func(context.Context, string) (string, error)) {
	r.tools[def.Name] = registeredTool{def: def, run: run}
}

// Definitions returns the tool schemas to advertise to the model.
func (r *Registry) Definitions() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.def)
	}
	return out
}

// Execute runs a named tool. Failures are returned as a JSON error payload
// rather than an error so the model can see what went wrong and recover;
// only an unknown tool name is a hard error.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	result, err := t.run(ctx, argsJSON)
	if err != nil {
		r.log.Warn("tool execution failed",
			slog.String("tool", name),
			slog.String("error", err.Error()))
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(payload), nil
	}
	return result, nil
}

// =============================================================================
// get_weather
// =============================================================================

const openMeteoBaseURL = "https://api.open-meteo.com/v1/forecast"

type weatherTool struct {
	httpClient *http.Client
	baseURL    string
}

type weatherArgs struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (w *weatherTool) definition() llm.Tool {
	return llm.Tool{
		Name:        "get_weather",
		Description: "Get the current weather at a location",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"latitude":  map[string]any{"type": "number"},
				"longitude": map[string]any{"type": "number"},
			},
			"required": []string{"latitude", "longitude"},
		},
	}
}

func (w *weatherTool) run(ctx context.Context, argsJSON string) (string, error) {
	var args weatherArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", fmt.Errorf("get_weather: bad arguments: %w", err)
	}

	url := fmt.Sprintf(
		"%s?latitude=%.4f&longitude=%.4f&current=temperature_2m,weather_code,wind_speed_10m&hourly=temperature_2m&timezone=auto",
		w.baseURL, args.Latitude, args.Longitude)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("get_weather: build request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get_weather: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("get_weather: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get_weather: upstream status %d", resp.StatusCode)
	}
	if !json.Valid(body) {
		return "", fmt.Errorf("get_weather: upstream returned invalid JSON")
	}
	return string(body), nil
}
