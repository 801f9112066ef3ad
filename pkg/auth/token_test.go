package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService("test-secret", "fieldline", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return svc
}

func TestNewTokenService(t *testing.T) {
	t.Run("requires a secret", func(t *testing.T) {
		if _, err := NewTokenService("", "fieldline", time.Hour); err == nil {
			t.Error("Expected error for empty secret")
		}
	})

	t.Run("defaults issuer and ttl", func(t *testing.T) {
		svc, err := NewTokenService("secret", "", 0)
		if err != nil {
			t.Fatalf("NewTokenService() error = %v", err)
		}
		if svc.issuer != "fieldline" {
			t.Errorf("Expected default issuer fieldline, got %s", svc.issuer)
		}
		if svc.ttl != time.Hour {
			t.Errorf("Expected default ttl 1h, got %v", svc.ttl)
		}
	})
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Issue("4f9c1a6e-0f3d-4b7a-9c2e-8d5b6a7f0e11", "pm@example.com", "Site PM")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	identity, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if identity.UserID != "4f9c1a6e-0f3d-4b7a-9c2e-8d5b6a7f0e11" {
		t.Errorf("UserID = %s, want subject", identity.UserID)
	}
	if identity.Email != "pm@example.com" {
		t.Errorf("Email = %s", identity.Email)
	}
	if identity.TokenID == "" {
		t.Error("Expected a token ID (jti)")
	}
	if identity.IssuedAt.IsZero() {
		t.Error("Expected issued-at to be set")
	}
}

func TestTokenService_Issue_RequiresUserID(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Issue("  ", "", ""); err == nil {
		t.Error("Expected error for blank userID")
	}
}

func TestTokenService_Verify_Missing(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Verify("")
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("Verify(\"\") error = %v, want ErrMissingToken", err)
	}
}

func TestTokenService_Verify_Malformed(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Verify("not-a-jwt")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify(malformed) error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenService_Verify_WrongSecret(t *testing.T) {
	svc := newTestService(t)
	other, _ := NewTokenService("different-secret", "fieldline", time.Hour)

	token, err := other.Issue("user-1", "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := svc.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify(wrong secret) error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenService_Verify_WrongIssuer(t *testing.T) {
	svc := newTestService(t)
	other, _ := NewTokenService("test-secret", "someone-else", time.Hour)

	token, err := other.Issue("user-1", "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := svc.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify(wrong issuer) error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenService_Verify_Expired(t *testing.T) {
	svc := newTestService(t)

	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "fieldline",
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
			ID:        "expired-token",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := svc.Verify(signed); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify(expired) error = %v, want ErrTokenExpired", err)
	}
}

func TestTokenService_Verify_WrongAlgorithm(t *testing.T) {
	svc := newTestService(t)

	// alg=none must never be accepted
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "fieldline",
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := svc.Verify(signed); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify(alg=none) error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenService_Verify_LegacyTenantClaim(t *testing.T) {
	svc := newTestService(t)

	now := time.Now().UTC()
	claims := Claims{
		TenantID: "legacy-tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "fieldline",
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			ID:        "legacy",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	identity, err := svc.Verify(signed)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.LegacyTenantID != "legacy-tenant-1" {
		t.Errorf("LegacyTenantID = %s, want legacy-tenant-1", identity.LegacyTenantID)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid bearer", "Bearer abc.def.ghi", "abc.def.ghi", nil},
		{"case insensitive scheme", "bearer abc", "abc", nil},
		{"missing header", "", "", ErrMissingToken},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "", ErrTokenInvalid},
		{"scheme without token", "Bearer ", "", ErrMissingToken},
		{"bare token without scheme", "abc.def.ghi", "", ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			got, err := ExtractBearer(r)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ExtractBearer() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractBearer() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractBearer() = %q, want %q", got, tt.want)
			}
		})
	}
}
