package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/call-transcriber/internal/config"
)

const testJWTSecret = "test-secret-key-for-jwt-signing-minimum-32-bytes"

func setupTestJWTService(_ *testing.T, expirationHours int) *JWTService {
	cfg := &config.JWTConfig{
		Secret: testJWTSecret,
		TTL:    time.Duration(expirationHours) * time.Hour,
		Issuer: config.DefaultJWTIssuer,
	}
	return NewJWTService(cfg)
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	service := setupTestJWTService(t, 24)
	userID := uuid.New()

	token, expiresAt, err := service.GenerateToken(userID, "operator")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Len(t, strings.Split(token, "."), 3)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, 5*time.Second)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.GetUserID())
	assert.Equal(t, "operator", claims.GetUsername())
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, config.DefaultJWTIssuer, claims.Issuer)
}

func TestJWTService_ValidateToken_Rejects(t *testing.T) {
	service := setupTestJWTService(t, 1)
	valid, _, err := service.GenerateToken(uuid.New(), "operator")
	require.NoError(t, err)

	otherSecret := NewJWTService(&config.JWTConfig{
		Secret: "another-secret-key-that-is-long-enough",
		TTL:    time.Hour,
		Issuer: config.DefaultJWTIssuer,
	})
	forged, _, err := otherSecret.GenerateToken(uuid.New(), "intruder")
	require.NoError(t, err)

	otherIssuer := NewJWTService(&config.JWTConfig{
		Secret: testJWTSecret,
		TTL:    time.Hour,
		Issuer: "someone-else",
	})
	wrongIssuer, _, err := otherIssuer.GenerateToken(uuid.New(), "operator")
	require.NoError(t, err)

	nilUser, _, err := service.GenerateToken(uuid.Nil, "ghost")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		UserID:           uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{Issuer: config.DefaultJWTIssuer},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"malformed", "not.a.token"},
		{"garbage", "garbage"},
		{"truncated", valid[:len(valid)-5]},
		{"wrong secret", forged},
		{"wrong issuer", wrongIssuer},
		{"nil user", nilUser},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateToken(tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTService_TokenExpiration(t *testing.T) {
	service := setupTestJWTService(t, 2)
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return issued }

	token, expiresAt, err := service.GenerateToken(uuid.New(), "operator")
	require.NoError(t, err)
	assert.Equal(t, issued.Add(2*time.Hour), expiresAt)

	tests := []struct {
		name    string
		at      time.Time
		wantErr string
	}{
		{"just issued", issued, ""},
		{"an hour later", issued.Add(time.Hour), ""},
		{"after expiry", issued.Add(2*time.Hour + time.Minute), "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service.now = func() time.Time { return tt.at }
			_, err := service.ValidateToken(token)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJWTService_AsTokenValidator(t *testing.T) {
	service := setupTestJWTService(t, 1)
	userID := uuid.New()
	token, _, err := service.GenerateToken(userID, "operator")
	require.NoError(t, err)

	principal, err := service.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, principal.GetUserID())
	assert.Equal(t, "operator", principal.GetUsername())

	principal, err = service.AsTokenValidator().ValidateToken("bad")
	assert.Error(t, err)
	assert.Nil(t, principal)
}
