// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Item is the todo-list demo record stored by the repository backends.
// ID is assigned by the backend on create and never supplied by the caller.
type Item struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title" validate:"required,max=512"`
	Done  bool   `json:"done"`
}

// Validate checks an incoming item body.
func (i *Item) Validate() error {
	return chatValidate.Struct(i)
}
