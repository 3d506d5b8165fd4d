package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/susu3304/warikan/internal/logger"
	"github.com/susu3304/warikan/internal/warikan"
)

const sessionTTL = 24 * time.Hour

type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(ctxKey{}).(*Claims)
	return c
}

func (c *Claims) identity() warikan.Identity {
	return warikan.Identity{UserID: c.UserID, Name: c.Name}
}

func (a *API) issueToken(userID, name string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return tokenString, nil
}

// authenticate turns a LINE ID token into a session token.
func (a *API) authenticate(ctx context.Context, idToken string) (string, *LineProfile, error) {
	profile, err := a.verifyLineIDToken(ctx, idToken)
	if err != nil {
		return "", nil, err
	}
	tokenString, err := a.issueToken(warikan.LinePrefix+profile.Sub, profile.Name)
	if err != nil {
		return "", nil, err
	}
	return tokenString, profile, nil
}

func (a *API) writeSession(w http.ResponseWriter, tokenString string, profile *LineProfile) {
	writeJSON(w, http.StatusOK, map[string]string{
		"token":   tokenString,
		"user_id": warikan.LinePrefix + profile.Sub,
		"name":    profile.Name,
		"picture": profile.Picture,
	})
}

// handleLineAuth exchanges a LIFF ID token for a session token.
func (a *API) handleLineAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDToken == "" {
		writeError(w, http.StatusBadRequest, "idToken is required")
		return
	}
	if a.config.LineChannelID == "" {
		writeError(w, http.StatusInternalServerError, "LINE_CHANNEL_ID is not set")
		return
	}

	tokenString, profile, err := a.authenticate(r.Context(), req.IDToken)
	if err != nil {
		logger.Log.WithError(err).Warn("LINE verify failed")
		writeError(w, http.StatusUnauthorized, "LINE verify failed")
		return
	}
	a.writeSession(w, tokenString, profile)
}

const (
	stateCookie    = "warikan_oauth_state"
	stateCookieTTL = 10 * time.Minute
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := generateRandomString(32)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.config.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": a.oauthConfig.AuthCodeURL(state),
		"state":    state,
	})
}

// validState checks the callback's state against the cookie set by handleLogin.
func validState(r *http.Request) bool {
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(r.URL.Query().Get("state"))) == 1
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !validState(r) {
		writeError(w, http.StatusBadRequest, "invalid state")
		return
	}
	// One use per login attempt.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/api/auth", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code")
		return
	}

	token, err := a.oauthConfig.Exchange(r.Context(), code)
	if err != nil {
		logger.Log.WithError(err).Warn("LINE token exchange failed")
		writeError(w, http.StatusBadGateway, "token exchange failed")
		return
	}
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		writeError(w, http.StatusBadGateway, "no id_token in LINE response")
		return
	}

	tokenString, profile, err := a.authenticate(r.Context(), idToken)
	if err != nil {
		logger.Log.WithError(err).Warn("LINE verify failed")
		writeError(w, http.StatusBadGateway, "LINE verify failed")
		return
	}
	a.writeSession(w, tokenString, profile)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "logged out",
	})
}

// Middleware
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			writeError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return a.jwtSecret, nil
		})
		if err != nil || !token.Valid || claims.UserID == "" {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
