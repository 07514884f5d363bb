// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftchat/driftchat/services/gateway/chatstore"
	"github.com/driftchat/driftchat/services/gateway/datatypes"
	"github.com/driftchat/driftchat/services/gateway/middleware"
)

// dummyHash is a valid bcrypt hash compared against when login targets an
// unknown email, so the response time does not reveal whether the account
// exists.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// AuthHandler serves registration, login, guest sessions, and logout.
//
// Sessions are HS256 JWTs delivered in an HTTP-only cookie; see
// middleware.TokenManager for the token shape.
type AuthHandler struct {
	store chatstore.Store
	tm    *middleware.TokenManager
	log   *slog.Logger
}

// NewAuthHandler wires the auth handler. All dependencies are required.
func NewAuthHandler(store chatstore.Store, tm *middleware.TokenManager, log *slog.Logger) *AuthHandler {
	if store == nil {
		panic("handlers.NewAuthHandler: store is required")
	}
	if tm == nil {
		panic("handlers.NewAuthHandler: token manager is required")
	}
	if log == nil {
		panic("handlers.NewAuthHandler: logger is required")
	}
	return &AuthHandler{store: store, tm: tm, log: log}
}

// issueSession mints a session token for the user and sets the cookie.
func (h *AuthHandler) issueSession(c *gin.Context, user datatypes.User) bool {
	token, err := h.tm.Issue(user)
	if err != nil {
		h.log.Error("session issue failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session issue failed"})
		return false
	}
	middleware.SetSessionCookie(c, token)
	return true
}

// HandleRegister processes POST /api/auth/register.
//
// A duplicate email answers 409 without leaking which constraint fired.
func (h *AuthHandler) HandleRegister(c *gin.Context) {
	var req datatypes.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.store.GetUserByEmail(c.Request.Context(), req.Email); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "account already exists"})
		return
	} else if !errors.Is(err, chatstore.ErrNotFound) {
		h.log.Error("user lookup failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.log.Error("password hash failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	user, err := h.store.CreateUser(c.Request.Context(), req.Email, string(hash))
	if err != nil {
		h.log.Error("user create failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	if !h.issueSession(c, user) {
		return
	}
	c.JSON(http.StatusCreated, user)
}

// HandleLogin processes POST /api/auth/login.
//
// Unknown email and wrong password are indistinguishable to the client:
// both answer 401, and the unknown-email path still runs a bcrypt compare.
func (h *AuthHandler) HandleLogin(c *gin.Context) {
	var req datatypes.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.store.GetUserByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, chatstore.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if err != nil {
		h.log.Error("user lookup failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	if !h.issueSession(c, user) {
		return
	}
	c.JSON(http.StatusOK, user)
}

// HandleGuest processes POST /api/auth/guest, creating an anonymous account
// with guest entitlements and a regular session cookie.
func (h *AuthHandler) HandleGuest(c *gin.Context) {
	user, err := h.store.CreateGuestUser(c.Request.Context())
	if err != nil {
		h.log.Error("guest create failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "guest session failed"})
		return
	}

	if !h.issueSession(c, user) {
		return
	}
	c.JSON(http.StatusCreated, user)
}

// HandleLogout processes POST /api/auth/logout. Stateless tokens cannot be
// revoked server-side; clearing the cookie ends the browser session.
func (h *AuthHandler) HandleLogout(c *gin.Context) {
	middleware.ClearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"loggedOut": true})
}

// HandleSession processes GET /api/auth/session, returning the current
// session claims for an authenticated request.
func (h *AuthHandler) HandleSession(c *gin.Context) {
	session, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, session)
}
