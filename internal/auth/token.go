package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims carried by the collaborator's stream token.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenInfo is what the engine knows about its configured token without
// being able to verify it. The collaborator signs the token with a key
// this side never holds, so inspection is unverified by nature.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Inspect decodes a token without verifying its signature. Use only for
// diagnostics such as expiry warnings; never for trust decisions.
func Inspect(tokenString string) (*TokenInfo, error) {
	if tokenString == "" {
		return nil, errors.New("auth: empty token")
	}
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	info := &TokenInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	return info, nil
}

// ExpiresWithin reports whether the token expires inside the window. A
// token without an expiry never does.
func (t *TokenInfo) ExpiresWithin(window time.Duration, now time.Time) bool {
	if t == nil || t.ExpiresAt.IsZero() {
		return false
	}
	return t.ExpiresAt.Before(now.Add(window))
}

// ParseJWT validates a locally issued view-API token and returns its
// claims. HS256 only.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("auth: empty token")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return nil, errors.New("auth: token expired")
	}
	return claims, nil
}
