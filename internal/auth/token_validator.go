package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	bearerPrefix     = "bearer "
	accessTokenParam = "access_token"
)

var (
	ErrMissingSigningKey    = errors.New("token validator: signing key required")
	ErrMissingIssuer        = errors.New("token validator: issuer required")
	ErrMissingToken         = errors.New("token validator: token required")
	ErrInvalidToken         = errors.New("token validator: invalid token")
	ErrExpiredToken         = errors.New("token validator: token expired")
	ErrMissingSubject       = errors.New("token validator: subject required")
	ErrConnectionNotGranted = errors.New("token validator: connection not granted")
)

// TokenValidatorConfig describes how to validate access tokens.
type TokenValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	Clock         func() time.Time
}

// TokenValidator validates HS256 access tokens.
type TokenValidator struct {
	signingSecret []byte
	issuer        string
	clock         func() time.Time
}

// NewTokenValidator constructs a validator with the provided configuration.
func NewTokenValidator(cfg TokenValidatorConfig) (*TokenValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		clock:         clock,
	}, nil
}

// ValidateToken validates the supplied JWT string and returns the parsed claims.
func (v *TokenValidator) ValidateToken(tokenString string) (ConnectionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return ConnectionClaims{}, ErrMissingToken
	}

	claims := &ConnectionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
			}
			return v.signingSecret, nil
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ConnectionClaims{}, ErrExpiredToken
		}
		return ConnectionClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return ConnectionClaims{}, ErrInvalidToken
	}
	if claims.Issuer != v.issuer {
		return ConnectionClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return ConnectionClaims{}, ErrMissingSubject
	}
	return *claims, nil
}

// ValidateRequest extracts the bearer token from the Authorization header and
// validates it. Event streams cannot set headers, so an access_token query
// parameter is accepted when the header is absent.
func (v *TokenValidator) ValidateRequest(r *http.Request) (ConnectionClaims, error) {
	if r == nil {
		return ConnectionClaims{}, ErrMissingToken
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" && r.URL != nil {
		if token := strings.TrimSpace(r.URL.Query().Get(accessTokenParam)); token != "" {
			return v.ValidateToken(token)
		}
	}
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ConnectionClaims{}, ErrMissingToken
	}
	return v.ValidateToken(header[len(bearerPrefix):])
}

// Authorize validates the request and checks that it may act on connection.
func (v *TokenValidator) Authorize(r *http.Request, connection string) (ConnectionClaims, error) {
	claims, err := v.ValidateRequest(r)
	if err != nil {
		return ConnectionClaims{}, err
	}
	if !claims.Allows(connection) {
		return ConnectionClaims{}, fmt.Errorf("%w: %s", ErrConnectionNotGranted, connection)
	}
	return claims, nil
}
