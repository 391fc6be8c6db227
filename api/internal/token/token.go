package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"municipal-complaint-service/api/internal/models"
)

// KV mirrors live tokens so logout can revoke a JWT before it expires. The
// redis cache client satisfies it.
type KV interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked")
)

type Claims struct {
	OfficerID    string `json:"officer_id"`
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	jwt.RegisteredClaims
}

// Service issues and checks short-lived officer sessions for the web
// console. Tokens are HMAC-signed and mirrored in redis.
type Service struct {
	secret []byte
	ttl    time.Duration
	kv     KV
	now    func() time.Time
}

func New(secret string, ttl time.Duration, kv KV) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, kv: kv, now: time.Now}
}

func tokenKey(jti string) string {
	return "officer:token:" + jti
}

// Issue mints a session token for an officer who completed the chat-based
// identity check.
func (s *Service) Issue(ctx context.Context, officer models.Officer) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		OfficerID:    officer.OfficerID.String(),
		DepartmentID: officer.DepartmentID.String(),
		Name:         officer.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   officer.OfficerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	if s.kv != nil {
		if err := s.kv.SetJSON(ctx, tokenKey(claims.ID), officer.OfficerID.String(), s.ttl); err != nil {
			return "", fmt.Errorf("token: mirror session: %w", err)
		}
	}
	return signed, nil
}

// Verify checks signature, expiry, and that the session has not been
// revoked.
func (s *Service) Verify(ctx context.Context, raw string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if s.kv != nil {
		var officerID string
		found, err := s.kv.GetJSON(ctx, tokenKey(claims.ID), &officerID)
		if err != nil {
			return Claims{}, err
		}
		if !found {
			return Claims{}, ErrRevoked
		}
	}
	return claims, nil
}

// Revoke drops the redis mirror, invalidating the token immediately.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	claims, err := s.Verify(ctx, raw)
	if err != nil {
		return err
	}
	if s.kv == nil {
		return nil
	}
	return s.kv.Delete(ctx, tokenKey(claims.ID))
}
