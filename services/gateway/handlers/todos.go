// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
	"github.com/driftchat/driftchat/services/gateway/repository"
)

// TodosHandler serves the todo demo API over whichever repository backend
// the factory selected at startup.
//
// # Description
//
// Repositories are acquired per request and disposed on every exit path;
// the factory, not the handler, owns backend selection. The list response
// carries the active connection description so a client can show which
// backend it is talking to.
type TodosHandler struct {
	factory repository.Factory
	log     *slog.Logger
}

// NewTodosHandler wires the todos handler. Both dependencies are required.
func NewTodosHandler(factory repository.Factory, log *slog.Logger) *TodosHandler {
	if factory == nil {
		panic("handlers.NewTodosHandler: factory is required")
	}
	if log == nil {
		panic("handlers.NewTodosHandler: logger is required")
	}
	return &TodosHandler{factory: factory, log: log}
}

// todoListResponse is the GET /api/todos envelope.
type todoListResponse struct {
	Items      []datatypes.Item      `json:"items"`
	Message    string                `json:"message,omitempty"`
	Connection repository.Connection `json:"connection"`
}

// repo acquires a connected repository, answering 503 itself on failure.
func (h *TodosHandler) repo(c *gin.Context) (repository.Repository, bool) {
	repo, err := h.factory.Create(c.Request.Context())
	if err != nil {
		h.log.Error("repository connect failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage backend unavailable"})
		return nil, false
	}
	return repo, true
}

func (h *TodosHandler) dispose(c *gin.Context, repo repository.Repository) {
	if err := repo.Dispose(c.Request.Context()); err != nil {
		h.log.Warn("repository dispose failed", slog.String("error", err.Error()))
	}
}

// HandleList processes GET /api/todos.
func (h *TodosHandler) HandleList(c *gin.Context) {
	repo, ok := h.repo(c)
	if !ok {
		return
	}
	defer h.dispose(c, repo)

	items, err := repo.List(c.Request.Context())
	if err != nil {
		h.log.Error("todo list failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if items == nil {
		items = []datatypes.Item{}
	}

	resp := todoListResponse{Items: items, Connection: h.factory.Connection()}
	if !repo.IsReal() {
		resp.Message = "using in-memory storage; items are lost on restart"
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGet processes GET /api/todos/:id.
func (h *TodosHandler) HandleGet(c *gin.Context) {
	repo, ok := h.repo(c)
	if !ok {
		return
	}
	defer h.dispose(c, repo)

	item, err := repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.Error("todo get failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

// HandleCreate processes POST /api/todos.
func (h *TodosHandler) HandleCreate(c *gin.Context) {
	var item datatypes.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := item.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	repo, ok := h.repo(c)
	if !ok {
		return
	}
	defer h.dispose(c, repo)

	created, err := repo.Create(c.Request.Context(), item)
	if err != nil {
		h.log.Error("todo create failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// HandleUpdate processes PUT /api/todos/:id. The id in the path wins over
// any id in the body.
func (h *TodosHandler) HandleUpdate(c *gin.Context) {
	var item datatypes.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	item.ID = c.Param("id")
	if err := item.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	repo, ok := h.repo(c)
	if !ok {
		return
	}
	defer h.dispose(c, repo)

	updated, err := repo.Update(c.Request.Context(), item)
	if err != nil {
		h.log.Error("todo update failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

// HandleDelete processes DELETE /api/todos/:id. Deleting a missing item
// succeeds; the operation is idempotent end to end.
func (h *TodosHandler) HandleDelete(c *gin.Context) {
	repo, ok := h.repo(c)
	if !ok {
		return
	}
	defer h.dispose(c, repo)

	if err := repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.log.Error("todo delete failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
