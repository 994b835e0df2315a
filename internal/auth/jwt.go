package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer   = "harmony"
	audience = "harmony-client"
)

// TokenPayload represents the validated payload data.
type TokenPayload struct {
	Sub    string
	Client string
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type tokenClaims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// Signer mints and verifies access tokens for the command API.
type Signer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer. expiry is the lifetime of minted tokens.
func NewSigner(secret string, expiry time.Duration) *Signer {
	return &Signer{secret: []byte(secret), expiry: expiry, now: time.Now}
}

// GenerateToken mints an access token for a named client (a chat bridge, a script).
func (s *Signer) GenerateToken(payload TokenPayload) (string, error) {
	now := s.now()
	claims := tokenClaims{
		Client: payload.Client,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.Sub,
			Issuer:    issuer,
			Audience:  []string{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken parses and validates the JWT.
func (s *Signer) VerifyToken(token string) (TokenPayload, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)

	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPayload{}, ErrTokenExpired
		}
		return TokenPayload{}, ErrTokenInvalid
	}
	if parsed == nil || !parsed.Valid {
		return TokenPayload{}, ErrTokenInvalid
	}

	payload := TokenPayload{Sub: claims.Subject, Client: claims.Client}
	if payload.Sub == "" || payload.Client == "" {
		return TokenPayload{}, ErrTokenInvalid
	}
	return payload, nil
}
