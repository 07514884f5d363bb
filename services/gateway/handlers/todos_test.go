// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
	"github.com/driftchat/driftchat/services/gateway/repository"
)

func newTodosRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	factory := repository.NewFactory(repository.Config{}, discardLog())
	handler := NewTodosHandler(factory, discardLog())

	router := gin.New()
	router.GET("/api/todos", handler.HandleList)
	router.GET("/api/todos/:id", handler.HandleGet)
	router.POST("/api/todos", handler.HandleCreate)
	router.PUT("/api/todos/:id", handler.HandleUpdate)
	router.DELETE("/api/todos/:id", handler.HandleDelete)
	return router
}

func createTodo(t *testing.T, router *gin.Engine, title string) datatypes.Item {
	t.Helper()
	body, err := json.Marshal(datatypes.Item{Title: title})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/todos", bytes.NewBuffer(body))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var item datatypes.Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	require.NotEmpty(t, item.ID)
	return item
}

func TestTodos_CreateAndList(t *testing.T) {
	router := newTodosRouter(t)
	created := createTodo(t, router, "write release notes")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items      []datatypes.Item      `json:"items"`
		Message    string                `json:"message"`
		Connection repository.Connection `json:"connection"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, created.ID, resp.Items[0].ID)
	assert.Equal(t, repository.KindMemory, resp.Connection.Kind)
	assert.NotEmpty(t, resp.Message, "memory backend should warn about volatility")
}

func TestTodos_CreateRejectsMissingTitle(t *testing.T) {
	router := newTodosRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/todos", bytes.NewBufferString(`{"done":true}`))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTodos_GetMissing(t *testing.T) {
	router := newTodosRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/todos/nope", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTodos_UpdateRoundTrip(t *testing.T) {
	router := newTodosRouter(t)
	created := createTodo(t, router, "first draft")

	body, err := json.Marshal(datatypes.Item{Title: "final draft", Done: true})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/todos/"+created.ID, bytes.NewBuffer(body))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var updated datatypes.Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "final draft", updated.Title)
	assert.True(t, updated.Done)
}

func TestTodos_UpdateMissing(t *testing.T) {
	router := newTodosRouter(t)

	body, err := json.Marshal(datatypes.Item{Title: "ghost"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/todos/nope", bytes.NewBuffer(body))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTodos_DeleteIdempotent(t *testing.T) {
	router := newTodosRouter(t)
	created := createTodo(t, router, "to be removed")

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/todos/"+created.ID, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}
