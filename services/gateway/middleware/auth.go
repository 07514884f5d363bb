// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the gateway service.
//
// # Authentication Flow
//
// Sessions are carried in a signed JWT inside an HTTP-only cookie. The
// auth middleware parses the cookie, verifies the signature and expiry,
// and stores the resulting Session in the Gin context for downstream
// handlers.
//
//	Request
//	   │
//	   ▼
//	RequireSession
//	   │
//	   ├─► Read "driftchat_session" cookie
//	   │
//	   ├─► tokens.Parse(cookie)
//	   │
//	   └─► Store Session in context
//	           │
//	           ▼
//	       Handler (retrieves via GetSession)
//
// Guest sessions use the same mechanism; the auth handlers mint a guest
// user and issue the cookie, so every chat request carries a user id.
package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

// =============================================================================
// Constants
// =============================================================================

// SessionCookieName is the cookie carrying the session JWT.
const SessionCookieName = "driftchat_session"

// SessionTTL is how long an issued session stays valid.
const SessionTTL = 30 * 24 * time.Hour

// sessionKey is the context key for storing the Session.
// Using a dedicated key prevents collisions with other context values.
const sessionKey = "driftchat_session_info"

// =============================================================================
// Session
// =============================================================================

// Session is the authenticated identity attached to a request.
type Session struct {
	UserID   string             `json:"userId"`
	Email    string             `json:"email"`
	UserType datatypes.UserType `json:"userType"`
}

// =============================================================================
// Token Manager
// =============================================================================

// sessionClaims is the JWT payload for a session token.
type sessionClaims struct {
	Email    string `json:"email"`
	UserType string `json:"userType"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies session tokens with HS256.
type TokenManager struct {
	secret []byte
}

// NewTokenManager creates a token manager.
//
// # Inputs
//
//   - secret: HMAC signing key. Must not be empty.
func NewTokenManager(secret []byte) (*TokenManager, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("middleware: session secret is empty")
	}
	return &TokenManager{secret: secret}, nil
}

// Issue creates a signed session token for the user.
func (t *TokenManager) Issue(user datatypes.User) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Email:    user.Email,
		UserType: string(user.Type),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies a session token and returns its Session.
//
// # Outputs
//
//   - Session: The verified identity.
//   - error: Non-nil for bad signatures, wrong algorithms, or expiry.
func (t *TokenManager) Parse(tokenString string) (Session, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("parse session token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return Session{}, fmt.Errorf("invalid session token")
	}
	return Session{
		UserID:   claims.Subject,
		Email:    claims.Email,
		UserType: datatypes.UserType(claims.UserType),
	}, nil
}

// =============================================================================
// Cookie Helpers
// =============================================================================

// SetSessionCookie attaches the session token as an HTTP-only cookie.
func SetSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, int(SessionTTL.Seconds()), "/", "", false, true)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", false, true)
}

// =============================================================================
// Context Helpers
// =============================================================================

// SetSession stores the session in the Gin context.
func SetSession(c *gin.Context, session Session) {
	c.Set(sessionKey, session)
}

// GetSession retrieves the session from the Gin context.
//
// # Outputs
//
//   - Session: The stored session, zero-valued when absent.
//   - bool: Whether a session was present.
func GetSession(c *gin.Context) (Session, bool) {
	if v, exists := c.Get(sessionKey); exists {
		if session, ok := v.(Session); ok {
			return session, true
		}
	}
	return Session{}, false
}

// =============================================================================
// Auth Middleware
// =============================================================================

// RequireSession creates a Gin middleware that rejects requests without a
// valid session token.
//
// # Description
//
// Reads the session cookie (browser clients) or an Authorization Bearer
// header (API clients), verifies it with the token manager, and stores the
// Session in the context. Requests with a missing, expired, or tampered
// token are aborted with 401 before any handler runs.
//
// # Inputs
//
//   - tokens: Token manager for verification. Must not be nil.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func RequireSession(tokens *TokenManager) gin.HandlerFunc {
	if tokens == nil {
		panic("middleware.RequireSession: token manager is required")
	}
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookieName)
		if err != nil || token == "" {
			token = bearerToken(c)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		session, err := tokens.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		SetSession(c, session)
		c.Next()
	}
}

// bearerToken extracts a token from an Authorization: Bearer header, or ""
// when the header is absent or malformed.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}
