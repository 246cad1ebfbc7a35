package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonhson0816/nelly-api/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newTestManager(t)

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "user-1", "fan")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "fan" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "user-1", "fan")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, err := m.IssuePair(time.Now(), "u", "fan")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, time.Now()); !errors.Is(err, ErrTokenType) {
		t.Fatalf("expected ErrTokenType, got %v", err)
	}
}

func TestAuthenticateRequest_QueryToken(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	pair, err := m.IssuePair(now, "user-9", "celebrity")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest("GET", "/ws?token="+pair.AccessToken, nil)
	claims, err := AuthenticateRequest(m, req, now)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.UserID != "user-9" {
		t.Fatalf("expected user-9, got %q", claims.UserID)
	}

	if _, err := AuthenticateRequest(m, httptest.NewRequest("GET", "/ws", nil), now); err != ErrMissingToken {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestRefresh_RotatesWithCurrentRole(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "user-1", "fan")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := now.Add(time.Hour)
	next, claims, err := m.Refresh(pair.RefreshToken, later, func(uid string) (string, error) {
		if uid != "user-1" {
			t.Fatalf("unexpected lookup for %q", uid)
		}
		return "celebrity", nil
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if claims.Role != "celebrity" {
		t.Fatalf("expected refreshed role, got %q", claims.Role)
	}
	access, err := m.Verify(next.AccessToken, TokenTypeAccess, later)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if access.Role != "celebrity" || access.UserID != "user-1" {
		t.Fatalf("unexpected claims: %+v", access)
	}
}

func TestRefresh_RejectsAccessTokenAndLookupFailure(t *testing.T) {
	m := newTestManager(t)
	now := time.Unix(1700000000, 0).UTC()
	pair, _ := m.IssuePair(now, "user-1", "fan")

	role := func(string) (string, error) { return "fan", nil }
	if _, _, err := m.Refresh(pair.AccessToken, now, role); !errors.Is(err, ErrTokenType) {
		t.Fatalf("expected ErrTokenType, got %v", err)
	}

	gone := errors.New("gone")
	if _, _, err := m.Refresh(pair.RefreshToken, now, func(string) (string, error) { return "", gone }); !errors.Is(err, gone) {
		t.Fatalf("expected lookup error, got %v", err)
	}
}
