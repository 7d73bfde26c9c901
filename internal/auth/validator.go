// Package auth validates the bearer credential presented at websocket
// connection time. Token issuance lives in the platform's auth service;
// only validation happens here.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidCredential = errors.New("invalid or expired credential")

// Validator resolves a bearer credential to a user ID.
type Validator interface {
	Validate(credential string) (string, error)
}

// JWTValidator checks HMAC-signed tokens issued by the auth service.
type JWTValidator struct {
	secret []byte
	issuer string
}

func NewJWTValidator(secret, issuer string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret), issuer: issuer}
}

func (v *JWTValidator) Validate(credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", ErrInvalidCredential
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse(credential, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidCredential
	}
	return sub, nil
}

// Issue signs a token for the user. Used by tests and local tooling; the
// production issuer is the auth service.
func (v *JWTValidator) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// StaticValidator maps fixed tokens to user IDs. Development only.
type StaticValidator struct {
	tokens map[string]string
}

// NewStaticValidator parses "token:user,token2:user2".
func NewStaticValidator(pairs string) *StaticValidator {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(pairs, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || user == "" {
			continue
		}
		tokens[token] = user
	}
	return &StaticValidator{tokens: tokens}
}

func (v *StaticValidator) Validate(credential string) (string, error) {
	user, ok := v.tokens[strings.TrimSpace(credential)]
	if !ok {
		return "", ErrInvalidCredential
	}
	return user, nil
}

// NewValidator picks JWT when a secret is configured, otherwise the static
// token table.
func NewValidator(jwtSecret, jwtIssuer, staticTokens string) (Validator, error) {
	if strings.TrimSpace(jwtSecret) != "" {
		return NewJWTValidator(jwtSecret, jwtIssuer), nil
	}
	if strings.TrimSpace(staticTokens) != "" {
		return NewStaticValidator(staticTokens), nil
	}
	return nil, errors.New("no credential validator configured: set AMORA_JWT_SECRET or AMORA_DEV_TOKENS")
}
