// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

var _ LLMClient = (*GeminiClient)(nil)

// GeminiClient runs generation against the Google Gemini API.
//
// # Limitations
//
//   - Tool definitions in GenerationParams are not forwarded; tool calling
//     is served by the OpenAI and Anthropic backends.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	model := os.Getenv("GEMINI_MODEL")

	if apiKey == "" {
		secretPath := "/run/secrets/gemini_api_key"
		if content, err := os.ReadFile(secretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read Gemini API Key from container secrets")
		}
	}
	if apiKey == "" {
		slog.Warn("Gemini API Key is missing.")
		return nil, fmt.Errorf("GEMINI_API_KEY is missing")
	}
	if model == "" {
		model = "gemini-1.5-flash"
		slog.Info("GEMINI_MODEL not set, defaulting to", "model", model)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Close releases the underlying gRPC connection.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// Generate implements the LLMClient interface
func (g *GeminiClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	model := g.configuredModel(params, "")
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		slog.Error("Gemini API call failed", "error", err)
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	text := flattenGeminiResponse(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}

// ChatStream implements the LLMClient interface
func (g *GeminiClient) ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) error {
	if len(messages) == 0 {
		return fmt.Errorf("gemini chat: no messages")
	}

	var systemPrompt string
	var history []*genai.Content
	for _, m := range messages[:len(messages)-1] {
		role := strings.ToLower(m.Role)
		if role == "system" {
			systemPrompt = m.Content
			continue
		}
		if role == "assistant" {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	model := g.configuredModel(params, systemPrompt)
	session := model.StartChat()
	session.History = history

	iter := session.SendMessageStream(ctx, genai.Text(messages[len(messages)-1].Content))
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("gemini stream read failed: %w", err)
		}
		if text := flattenGeminiResponse(resp); text != "" {
			if err := callback(StreamEvent{Type: StreamEventToken, Content: text}); err != nil {
				return err
			}
		}
	}
	return callback(StreamEvent{Type: StreamEventDone})
}

func (g *GeminiClient) configuredModel(params GenerationParams, systemPrompt string) *genai.GenerativeModel {
	model := g.client.GenerativeModel(g.model)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}
	if params.Temperature != nil {
		model.SetTemperature(*params.Temperature)
	}
	if params.TopP != nil {
		model.SetTopP(*params.TopP)
	}
	if params.TopK != nil {
		model.SetTopK(int32(*params.TopK))
	}
	if params.MaxTokens != nil {
		model.SetMaxOutputTokens(int32(*params.MaxTokens))
	}
	if len(params.Stop) > 0 {
		model.StopSequences = params.Stop
	}
	return model
}

func flattenGeminiResponse(resp *genai.GenerateContentResponse) string {
	var out strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out.WriteString(string(text))
			}
		}
	}
	return out.String()
}
