package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func bearerToken(r *http.Request) string {
	bearerHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(bearerHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	// browsers cannot set headers on a websocket handshake
	return r.URL.Query().Get("token")
}

// jwtAuthenticator accepts HS256 access tokens whose "id" claim is the user id.
func jwtAuthenticator(secret []byte) AuthFunc {
	return func(r *http.Request) (uuid.UUID, error) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			return uuid.Nil, errNoToken
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			return uuid.Nil, errInvalidJWT
		}

		userIDString, ok := claims["id"].(string)
		if !ok {
			return uuid.Nil, errInvalidJWT
		}
		userID, err := uuid.Parse(userIDString)
		if err != nil {
			return uuid.Nil, errInvalidUserID
		}

		return userID, nil
	}
}

type authedHandlerFunc func(userID uuid.UUID, w http.ResponseWriter, r *http.Request)

func (h *Handler) authMiddleware(next authedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.authenticate(r)
		if err != nil {
			h.Respond(w, Resp{"error": err.Error()}, http.StatusUnauthorized)
			return
		}

		next(userID, w, r)
	}
}

// serviceMiddleware admits only callers holding the service token. User
// access tokens are not accepted here.
func (h *Handler) serviceMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Service-Token")
		if token == "" {
			h.Respond(w, Resp{"error": errNoServiceToken.Error()}, http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), h.serviceToken) != 1 {
			h.Respond(w, Resp{"error": errInvalidServiceToken.Error()}, http.StatusForbidden)
			return
		}

		next(w, r)
	}
}
