// Package token issues and verifies stateless bearer tokens of the form
// base64url(header).base64url(claims).signature.
package token

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
)

// RoleClient tokens get the shorter client TTL.
const RoleClient = "client"

var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
)

// Signer produces the third token segment.
type Signer interface {
	Sign(ctx context.Context, message string) (string, error)
}

// Claims carries iat/exp in epoch milliseconds.
type Claims struct {
	Subject   string `json:"sub"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.UnixMilli(c.ExpiresAt)), nil
}

func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.UnixMilli(c.IssuedAt)), nil
}

func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c *Claims) GetIssuer() (string, error)              { return "", nil }
func (c *Claims) GetSubject() (string, error)             { return c.Subject, nil }
func (c *Claims) GetAudience() (jwt.ClaimStrings, error)  { return nil, nil }

type Service struct {
	signer    Signer
	staffTTL  time.Duration
	clientTTL time.Duration
	parser    *jwt.Parser
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg *config.Config, signer Signer, opts ...Option) *Service {
	s := &Service{
		signer:    signer,
		staffTTL:  cfg.Auth.StaffTokenTTL,
		clientTTL: cfg.Auth.ClientTokenTTL,
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue signs a token for the given identity.
func (s *Service) Issue(ctx context.Context, accountID, email, name, role string) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		Subject:   accountID,
		Email:     email,
		Name:      name,
		Role:      role,
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: now.Add(s.ttlFor(role)).UnixMilli(),
	}

	signingString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SigningString()
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode token: %w", err)
	}

	signature, err := s.signer.Sign(ctx, signingString)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return signingString + "." + signature, claims, nil
}

// Verify checks structure, signature and expiry, in that order. It reads no
// store besides the signing secret.
func (s *Service) Verify(ctx context.Context, raw string) (*Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrMalformedToken
	}

	expected, err := s.signer.Sign(ctx, parts[0]+"."+parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) != 1 {
		return nil, ErrInvalidSignature
	}

	claims := &Claims{}
	if _, _, err := s.parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if claims.ExpiresAt < s.now().UnixMilli() {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

func (s *Service) ttlFor(role string) time.Duration {
	if role == RoleClient {
		return s.clientTTL
	}
	return s.staffTTL
}
