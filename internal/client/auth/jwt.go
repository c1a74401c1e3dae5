// Package auth keeps track of who is signed in. It does not implement a
// sign-in flow: it accepts an HS256 token issued by the hosted backend and
// uses its subject as the owner id of every record.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/spendsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned for a well-formed token past its expiry.
var ErrTokenExpired = errors.New("token expired")

// IssueToken signs a token for ownerID. The backend issues real tokens;
// this exists for local tooling and tests.
func IssueToken(ownerID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   ownerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(secret)
}

// ParseToken validates the signature and expiry and returns the subject.
func ParseToken(tokenString string, secret []byte) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: %w", common.ErrUnauthorized, ErrTokenExpired)
		}
		return "", fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", common.ErrUnauthorized)
	}
	return claims.Subject, nil
}
