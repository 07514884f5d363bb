// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Role of a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleData      Role = "data"
)

// MessagePart is one typed fragment of a message body. Text parts carry
// displayable content; tool parts record a tool invocation and its result so
// a turn can be replayed faithfully.
type MessagePart struct {
	Type string `json:"type" validate:"required,oneof=text reasoning tool-call tool-result"`
	Text string `json:"text,omitempty" validate:"maxbytes"`

	// Tool fields, set only for tool-call / tool-result parts.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	Args       string `json:"args,omitempty"`
	Result     string `json:"result,omitempty"`
}

// Message is one append-only entry in a chat's history. A message belongs to
// exactly one chat and is never mutated after creation.
type Message struct {
	ID          string        `json:"id"`
	ChatID      string        `json:"chatId"`
	Role        Role          `json:"role"`
	Parts       []MessagePart `json:"parts"`
	Attachments []Attachment  `json:"attachments"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Attachment is an opaque reference to uploaded content on a message.
type Attachment struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}

// PlainText flattens the message's text parts into a single string, the form
// the model providers consume.
func (m Message) PlainText() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}
