package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const (
	audienceAPI   = "clarity-api"
	audienceState = "clarity-google-connect"
)

type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens. Access tokens identify an owner to
// the API; state tokens carry the owner through the OAuth redirect.
type Issuer struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	stateTTL time.Duration
	now      func() time.Time
}

func NewIssuer(secret, issuer string, tokenTTL, stateTTL time.Duration) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 bytes")
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &Issuer{
		secret:   []byte(secret),
		issuer:   issuer,
		tokenTTL: tokenTTL,
		stateTTL: stateTTL,
		now:      time.Now,
	}, nil
}

func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	c := *i
	c.now = now
	return &c
}

// IssueToken mints an API bearer token for ownerID.
func (i *Issuer) IssueToken(ownerID, email string) (string, error) {
	return i.sign(ownerID, email, audienceAPI, i.tokenTTL)
}

// ParseToken verifies an API bearer token.
func (i *Issuer) ParseToken(s string) (*Claims, error) {
	return i.parse(s, audienceAPI)
}

// IssueState mints the OAuth state value for ownerID.
func (i *Issuer) IssueState(ownerID string) (string, error) {
	return i.sign(ownerID, "", audienceState, i.stateTTL)
}

// ParseState returns the owner id carried by a state value.
func (i *Issuer) ParseState(s string) (string, error) {
	c, err := i.parse(s, audienceState)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

func (i *Issuer) sign(subject, email, audience string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("token subject is empty")
	}
	now := i.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) parse(s, audience string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	tok, err := parser.ParseWithClaims(s, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyAudience(audience, true) || !claims.VerifyIssuer(i.issuer, i.issuer != "") {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
