package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims bettet den stabilen GitHub-Login der verifizierten Identität in
// das Session-Credential ein.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// issueToken stellt ein signiertes, zeitlich begrenztes Credential aus.
// Die Team-Mitgliedschaft wurde zu diesem Zeitpunkt bereits geprüft; das
// Credential selbst enthält nur noch die Identität.
func issueToken(username string, secret []byte, validity time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			Issuer:    "qpaper-archive",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// verifyToken prüft Signatur und Ablauf lokal, ohne den Identity-Provider
// erneut zu kontaktieren, und liefert den eingebetteten Login.
func verifyToken(token string, secret []byte) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !parsed.Valid || claims.Username == "" {
		return "", ErrInvalidToken
	}
	return claims.Username, nil
}
