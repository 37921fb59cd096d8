package server

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	usernameClaim = "username"
	expClaim      = "exp"

	sessionTokenExpiry = 24 * time.Hour
)

// createSessionToken issues a signed resume token so a client can
// reauthenticate after a reconnect without re-sending credentials.
func (cs *ChatServer) createSessionToken(username string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		usernameClaim: username,
		expClaim:      time.Now().Add(exp).Unix(),
	})

	return token.SignedString(cs.cfg.SigningKey)
}

func (cs *ChatServer) verifySessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return cs.cfg.SigningKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	username, ok := claims[usernameClaim].(string)
	if !ok || username == "" {
		return "", fmt.Errorf("invalid username claim")
	}

	return username, nil
}
