// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// Logical model ids. Clients select one of these; the provider maps them to
// whatever backend model is configured, so backend swaps never leak into
// the API surface.
const (
	ModelChat          = "chat-model"
	ModelChatReasoning = "chat-model-reasoning"
	ModelTitle         = "title-model"
)

// titleMaxRunes bounds generated chat titles.
const titleMaxRunes = 80

// Provider resolves logical model ids to backend clients.
type Provider struct {
	clients map[string]LLMClient
	log     *slog.Logger
}

// NewProvider returns an empty registry.
func NewProvider(log *slog.Logger) *Provider {
	if log == nil {
		panic("llm.NewProvider: logger is required")
	}
	return &Provider{clients: make(map[string]LLMClient), log: log}
}

// NewProviderFromEnv builds the registry for the backend named by
// LLM_PROVIDER (openai, anthropic, or gemini; default openai) and binds
// all logical ids to it.
func NewProviderFromEnv(ctx context.Context, log *slog.Logger) (*Provider, error) {
	backend := strings.ToLower(os.Getenv("LLM_PROVIDER"))
	if backend == "" {
		backend = "openai"
	}

	var (
		client LLMClient
		err    error
	)
	switch backend {
	case "openai":
		client, err = NewOpenAIClient()
	case "anthropic":
		client, err = NewAnthropicClient()
	case "gemini":
		client, err = NewGeminiClient(ctx)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", backend)
	}
	if err != nil {
		return nil, err
	}
	log.Info("LLM backend initialized", slog.String("backend", backend))

	p := NewProvider(log)
	p.Register(ModelChat, client)
	p.Register(ModelChatReasoning, client)
	p.Register(ModelTitle, client)
	return p, nil
}

// Register binds a logical model id to a client, replacing any prior
// binding.
func (p *Provider) Register(modelID string, client LLMClient) {
	p.clients[modelID] = client
}

// Client resolves a logical model id.
func (p *Provider) Client(modelID string) (LLMClient, error) {
	client, ok := p.clients[modelID]
	if !ok {
		return nil, fmt.Errorf("unknown model id %q", modelID)
	}
	return client, nil
}

// ParamsFor returns the default generation parameters for a logical model.
// The reasoning model enables thinking output.
func (p *Provider) ParamsFor(modelID string) GenerationParams {
	params := GenerationParams{}
	if modelID == ModelChatReasoning {
		params.EnableThinking = true
	}
	return params
}

// GenerateTitle produces a short chat title from the first user message.
// Falls back to truncating the message when the title model is unbound or
// fails, so chat creation never blocks on it.
func (p *Provider) GenerateTitle(ctx context.Context, firstMessage string) string {
	client, err := p.Client(ModelTitle)
	if err != nil {
		return TruncateTitle(firstMessage)
	}

	prompt := fmt.Sprintf(
		"Generate a short title (at most %d characters, no quotes, no punctuation at the end) summarizing this chat message:\n\n%s",
		titleMaxRunes, firstMessage)
	title, err := client.Generate(ctx, prompt, GenerationParams{})
	if err != nil {
		p.log.Warn("title generation failed, falling back to truncation",
			slog.String("error", err.Error()))
		return TruncateTitle(firstMessage)
	}
	title = strings.TrimSpace(strings.Trim(strings.TrimSpace(title), `"`))
	if title == "" {
		return TruncateTitle(firstMessage)
	}
	return TruncateTitle(title)
}

// TruncateTitle clips a string to the title budget on a rune boundary,
// appending an ellipsis when it was cut.
func TruncateTitle(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= titleMaxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:titleMaxRunes-1])) + "…"
}
