package telephony

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 15 * time.Minute

// applicationClaims are the claims Vonage expects on an application token.
type applicationClaims struct {
	ApplicationID string `json:"application_id"`
	jwt.RegisteredClaims
}

// TokenSigner issues RS256 application tokens for the Vonage REST API.
type TokenSigner struct {
	applicationID string
	key           *rsa.PrivateKey
	ttl           time.Duration
}

func NewTokenSigner(applicationID string, privateKeyPEM []byte, ttl time.Duration) (*TokenSigner, error) {
	if applicationID == "" {
		return nil, errors.New("telephony: vonage application id is required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("telephony: vonage private key: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenSigner{applicationID: applicationID, key: key, ttl: ttl}, nil
}

func (s *TokenSigner) Sign(now time.Time) (string, error) {
	claims := applicationClaims{
		ApplicationID: s.applicationID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
}
