// Package middleware carries the huma middlewares shared by the API
// handlers.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UsernameKey contextKey = "username"
	IsAdminKey  contextKey = "is_admin"
)

func GetUserID(ctx context.Context) int64 {
	v, _ := ctx.Value(UserIDKey).(int64)
	return v
}

func GetUsername(ctx context.Context) string {
	v, _ := ctx.Value(UsernameKey).(string)
	return v
}

func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(IsAdminKey).(bool)
	return v
}

// SessionID derives the job-engine session id for the authenticated user.
func SessionID(ctx context.Context) string {
	return SessionIDFor(GetUserID(ctx))
}

// SessionIDFor derives the job-engine session id for a user id.
func SessionIDFor(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// GenerateJWT issues a signed token carrying the account identity.
func GenerateJWT(userID int64, username string, isAdmin bool, secret string, expiry time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":      strconv.FormatInt(userID, 10),
		"username": username,
		"is_admin": isAdmin,
		"jti":      uuid.NewString(),
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(expiry).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseJWT validates a token string and returns the identity claims.
func ParseJWT(tokenStr, secret string) (userID int64, username string, isAdmin bool, err error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, "", false, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", false, fmt.Errorf("invalid claims")
	}
	sub, _ := claims["sub"].(string)
	userID, err = strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, "", false, fmt.Errorf("invalid subject")
	}
	username, _ = claims["username"].(string)
	isAdmin, _ = claims["is_admin"].(bool)
	return userID, username, isAdmin, nil
}

// Auth validates the Bearer token and stashes the identity in the request
// context.
func Auth(jwtSecret string) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		auth := ctx.Header("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeUnauthorized(ctx, "missing bearer token")
			return
		}

		userID, username, isAdmin, err := ParseJWT(strings.TrimPrefix(auth, "Bearer "), jwtSecret)
		if err != nil {
			writeUnauthorized(ctx, "invalid token")
			return
		}

		echoCtx := humaecho.Unwrap(ctx)
		r := echoCtx.Request()
		newCtx := context.WithValue(r.Context(), UserIDKey, userID)
		newCtx = context.WithValue(newCtx, UsernameKey, username)
		newCtx = context.WithValue(newCtx, IsAdminKey, isAdmin)
		echoCtx.SetRequest(r.WithContext(newCtx))
		next(ctx)
	}
}

// AdminOnly rejects requests from non-admin accounts. It must run after
// Auth.
func AdminOnly() func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		echoCtx := humaecho.Unwrap(ctx)
		if !IsAdmin(echoCtx.Request().Context()) {
			writeForbidden(ctx, "administrator access required")
			return
		}
		next(ctx)
	}
}

func writeUnauthorized(ctx huma.Context, msg string) {
	writeError(ctx, http.StatusUnauthorized, msg)
}

func writeForbidden(ctx huma.Context, msg string) {
	writeError(ctx, http.StatusForbidden, msg)
}

func writeError(ctx huma.Context, status int, msg string) {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.SetStatus(status)
	fmt.Fprintf(ctx.BodyWriter(), `{"success":false,"error":%q}`, msg)
}
