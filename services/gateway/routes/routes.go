// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftchat/driftchat/services/gateway/handlers"
	"github.com/driftchat/driftchat/services/gateway/middleware"
)

// Deps carries the wired handlers and middleware the route table needs.
type Deps struct {
	Chat    *handlers.ChatHandler
	Todos   *handlers.TodosHandler
	Auth    *handlers.AuthHandler
	Tokens  *middleware.TokenManager
	Limiter *middleware.RateLimiter

	// EnableMetrics exposes /metrics when true.
	EnableMetrics bool
}

// SetupRoutes registers the full route table.
//
// Auth endpoints sit outside the session gate so clients can bootstrap a
// session; everything else under /api requires a valid session cookie and
// passes through the per-client rate limiter.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	if deps.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	auth := router.Group("/api/auth")
	if deps.Limiter != nil {
		auth.Use(deps.Limiter.Middleware())
	}
	{
		auth.POST("/register", deps.Auth.HandleRegister)
		auth.POST("/login", deps.Auth.HandleLogin)
		auth.POST("/guest", deps.Auth.HandleGuest)
		auth.POST("/logout", deps.Auth.HandleLogout)
		auth.GET("/session", middleware.RequireSession(deps.Tokens), deps.Auth.HandleSession)
	}

	api := router.Group("/api")
	api.Use(middleware.RequireSession(deps.Tokens))
	if deps.Limiter != nil {
		api.Use(deps.Limiter.Middleware())
	}
	{
		api.POST("/chat", deps.Chat.HandleChatPost)
		api.GET("/chat/:id/stream", deps.Chat.HandleChatResume)
		api.GET("/chat/:id/messages", deps.Chat.HandleChatMessages)
		api.DELETE("/chat/:id", deps.Chat.HandleChatDelete)
		api.GET("/history", deps.Chat.HandleHistory)
		api.PATCH("/vote", deps.Chat.HandleVote)
		api.GET("/vote", deps.Chat.HandleVotes)

		// Storage backend demo endpoints
		todos := api.Group("/todos")
		{
			todos.GET("", deps.Todos.HandleList)
			todos.GET("/:id", deps.Todos.HandleGet)
			todos.POST("", deps.Todos.HandleCreate)
			todos.PUT("/:id", deps.Todos.HandleUpdate)
			todos.DELETE("/:id", deps.Todos.HandleDelete)
		}
	}
}
