// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package entitlements defines the per-user-type message quotas enforced
// before each chat turn.
package entitlements

import (
	"time"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

// Window is the sliding period a quota covers.
const Window = 24 * time.Hour

// Entitlements is the quota attached to one user type.
type Entitlements struct {
	// MaxMessagesPerDay caps "user"-role messages in a sliding Window.
	MaxMessagesPerDay int

	// AvailableChatModels lists the logical model ids the user may select.
	AvailableChatModels []string
}

// byUserType holds the static quota table. Unknown user types resolve to
// the guest quota, the most restrictive one.
var byUserType = map[datatypes.UserType]Entitlements{
	datatypes.UserTypeGuest: {
		MaxMessagesPerDay:   20,
		AvailableChatModels: []string{"chat-model", "chat-model-reasoning"},
	},
	datatypes.UserTypeRegular: {
		MaxMessagesPerDay:   100,
		AvailableChatModels: []string{"chat-model", "chat-model-reasoning"},
	},
}

// ForUserType returns the quota for a user type.
func ForUserType(t datatypes.UserType) Entitlements {
	if e, ok := byUserType[t]; ok {
		return e
	}
	return byUserType[datatypes.UserTypeGuest]
}

// Allowed reports whether a user who has already sent count messages in
// the current window may send another.
func Allowed(t datatypes.UserType, count int) bool {
	return count < ForUserType(t).MaxMessagesPerDay
}

// ModelAllowed reports whether the user type may use the logical model id.
func ModelAllowed(t datatypes.UserType, modelID string) bool {
	for _, m := range ForUserType(t).AvailableChatModels {
		if m == modelID {
			return true
		}
	}
	return false
}
