package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSigningSecret = "secret"
	testIssuer        = "replica-sync"
	testSubject       = "device-1"
)

var testClockNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func testClock() time.Time {
	return testClockNow
}

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		TokenTTL:      time.Hour,
		Clock:         testClock,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return issuer
}

func newTestValidator(t *testing.T) *TokenValidator {
	t.Helper()
	validator, err := NewTokenValidator(TokenValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		Clock:         testClock,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func TestIssuedTokenRoundTrips(t *testing.T) {
	issuer := newTestIssuer(t)
	validator := newTestValidator(t)

	signed, expiresIn, err := issuer.IssueConnectionToken(context.Background(), testSubject, []string{"s1", "s2"})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn != int64(time.Hour.Seconds()) {
		t.Fatalf("unexpected expiry seconds %d", expiresIn)
	}

	claims, err := validator.ValidateToken(signed)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.Subject != testSubject {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if !claims.Allows("s2") || claims.Allows("s3") {
		t.Fatalf("unexpected connection grants %#v", claims.Connections)
	}
}

func TestIssuerValidatesInput(t *testing.T) {
	if _, err := NewTokenIssuer(TokenIssuerConfig{Issuer: testIssuer}); err == nil {
		t.Fatalf("expected error when signing secret missing")
	}
	issuer := newTestIssuer(t)
	if _, _, err := issuer.IssueConnectionToken(context.Background(), "", []string{"s1"}); err == nil {
		t.Fatalf("expected error when subject missing")
	}
	if _, _, err := issuer.IssueConnectionToken(context.Background(), testSubject, nil); err == nil {
		t.Fatalf("expected error when no connection granted")
	}
}

func TestValidatorRejectsExpiredToken(t *testing.T) {
	validator := newTestValidator(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ConnectionClaims{
		Connections: []string{AllConnections},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testIssuer,
			Subject:   testSubject,
			ExpiresAt: jwt.NewNumericDate(testClockNow.Add(-time.Minute)),
		},
	})
	signed, err := token.SignedString([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := validator.ValidateToken(signed); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestValidatorRejectsForeignIssuerAndSecret(t *testing.T) {
	validator := newTestValidator(t)

	foreign, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte(testSigningSecret), Issuer: "someone-else", Clock: testClock})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	signed, _, err := foreign.IssueConnectionToken(context.Background(), testSubject, []string{"s1"})
	if err != nil {
		t.Fatalf("unexpected issuance error: %v", err)
	}
	if _, err := validator.ValidateToken(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for foreign issuer, got %v", err)
	}

	wrongSecret, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("other"), Issuer: testIssuer, Clock: testClock})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	signed, _, err = wrongSecret.IssueConnectionToken(context.Background(), testSubject, []string{"s1"})
	if err != nil {
		t.Fatalf("unexpected issuance error: %v", err)
	}
	if _, err := validator.ValidateToken(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}
}

func TestValidatorRequiresConfiguration(t *testing.T) {
	if _, err := NewTokenValidator(TokenValidatorConfig{Issuer: testIssuer}); !errors.Is(err, ErrMissingSigningKey) {
		t.Fatalf("expected missing signing key error, got %v", err)
	}
	if _, err := NewTokenValidator(TokenValidatorConfig{SigningSecret: []byte("x")}); !errors.Is(err, ErrMissingIssuer) {
		t.Fatalf("expected missing issuer error, got %v", err)
	}
}

func TestAuthorizeChecksBearerAndConnection(t *testing.T) {
	issuer := newTestIssuer(t)
	validator := newTestValidator(t)
	signed, _, err := issuer.IssueConnectionToken(context.Background(), testSubject, []string{"s1"})
	if err != nil {
		t.Fatalf("unexpected issuance error: %v", err)
	}

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := validator.Authorize(request, "s1"); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}

	request.Header.Set("Authorization", "Bearer "+signed)
	if _, err := validator.Authorize(request, "s1"); err != nil {
		t.Fatalf("expected authorization to succeed: %v", err)
	}
	if _, err := validator.Authorize(request, "s2"); !errors.Is(err, ErrConnectionNotGranted) {
		t.Fatalf("expected connection not granted error, got %v", err)
	}

	wildcard, _, err := issuer.IssueConnectionToken(context.Background(), testSubject, []string{AllConnections})
	if err != nil {
		t.Fatalf("unexpected issuance error: %v", err)
	}
	queryRequest := httptest.NewRequest(http.MethodGet, "/?access_token="+signed, nil)
	if _, err := validator.Authorize(queryRequest, "s1"); err != nil {
		t.Fatalf("expected query token authorization to succeed: %v", err)
	}

	request.Header.Set("Authorization", "bearer "+wildcard)
	if _, err := validator.Authorize(request, "anything"); err != nil {
		t.Fatalf("expected wildcard grant to succeed: %v", err)
	}
}
