// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

func testTokenManager(t *testing.T) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager([]byte("test-secret-not-for-production"))
	require.NoError(t, err)
	return tm
}

func testUser() datatypes.User {
	return datatypes.User{
		ID:    "8b7b48b5-2a9b-4f6e-9a10-0f6f8a3f9d21",
		Email: "user@example.com",
		Type:  datatypes.UserTypeRegular,
	}
}

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := testTokenManager(t)

	token, err := tm.Issue(testUser())
	require.NoError(t, err)

	session, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "8b7b48b5-2a9b-4f6e-9a10-0f6f8a3f9d21", session.UserID)
	assert.Equal(t, "user@example.com", session.Email)
	assert.Equal(t, datatypes.UserTypeRegular, session.UserType)
}

func TestTokenManager_RejectsTamperedToken(t *testing.T) {
	tm := testTokenManager(t)
	token, err := tm.Issue(testUser())
	require.NoError(t, err)

	_, err = tm.Parse(token + "x")
	assert.Error(t, err)
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	tm := testTokenManager(t)
	token, err := tm.Issue(testUser())
	require.NoError(t, err)

	other, err := NewTokenManager([]byte("a-different-secret"))
	require.NoError(t, err)
	_, err = other.Parse(token)
	assert.Error(t, err)
}

func TestNewTokenManager_EmptySecret(t *testing.T) {
	_, err := NewTokenManager(nil)
	assert.Error(t, err)
}

func newSessionRouter(tm *TokenManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", RequireSession(tm), func(c *gin.Context) {
		session, _ := GetSession(c)
		c.JSON(http.StatusOK, session)
	})
	return router
}

func TestRequireSession_MissingCookie(t *testing.T) {
	router := newSessionRouter(testTokenManager(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSession_BadToken(t *testing.T) {
	router := newSessionRouter(testTokenManager(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSession_ValidToken(t *testing.T) {
	tm := testTokenManager(t)
	router := newSessionRouter(tm)

	token, err := tm.Issue(testUser())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user@example.com")
}

func TestRequireSession_BearerHeader(t *testing.T) {
	tm := testTokenManager(t)
	router := newSessionRouter(tm)

	token, err := tm.Issue(testUser())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := []int{}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Close()

	rl.allow("stale-client")
	rl.allow("fresh-client")
	rl.mu.Lock()
	rl.clients["stale-client"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.evictIdle(time.Now().Add(-10 * time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "stale-client")
	assert.Contains(t, rl.clients, "fresh-client")
}

func TestRateLimiter_CloseStopsEviction(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Close()
	rl.Close() // idempotent

	select {
	case <-rl.stop:
	default:
		t.Fatal("stop channel still open after Close")
	}
}
