package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// DefaultJWTIssuer is the iss claim of tokens issued by the service
const DefaultJWTIssuer = "call-transcriber"

const (
	defaultTokenTTL   = 24 * time.Hour
	defaultBcryptCost = 12
	minSecretLength   = 16

	// MinPasswordLength is the shortest accepted password
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes
	maxBcryptInput = 72
)

// Password policy errors
var (
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooLong  = errors.New("password exceeds 72 bytes")
)

// JWTConfig controls operator session tokens
type JWTConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// PasswordConfig controls how operator passwords are stored
type PasswordConfig struct {
	BcryptCost int
	Pepper     string // appended to every password before hashing
}

// Auth is everything the HTTP service needs to authenticate operators
type Auth struct {
	JWT       JWTConfig
	Passwords PasswordConfig
}

// LoadAuth reads the auth settings from the environment:
//
//	JWT_SECRET       required, at least 16 characters
//	JWT_TTL          token lifetime as a duration, default 24h
//	JWT_ISSUER       iss claim, default call-transcriber
//	BCRYPT_COST      10-14, default 12
//	PASSWORD_PEPPER  optional
func LoadAuth() (*Auth, error) {
	a := &Auth{
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			TTL:    defaultTokenTTL,
			Issuer: os.Getenv("JWT_ISSUER"),
		},
		Passwords: PasswordConfig{
			BcryptCost: defaultBcryptCost,
			Pepper:     os.Getenv("PASSWORD_PEPPER"),
		},
	}
	if a.JWT.Issuer == "" {
		a.JWT.Issuer = DefaultJWTIssuer
	}

	if raw := os.Getenv("JWT_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_TTL: %v", err)
		}
		a.JWT.TTL = ttl
	}
	if raw := os.Getenv("BCRYPT_COST"); raw != "" {
		cost, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid BCRYPT_COST: %v", err)
		}
		a.Passwords.BcryptCost = cost
	}

	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Auth) validate() error {
	switch {
	case a.JWT.Secret == "":
		return fmt.Errorf("JWT_SECRET is required but not set")
	case len(a.JWT.Secret) < minSecretLength:
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength)
	case a.JWT.TTL < time.Minute:
		return fmt.Errorf("JWT_TTL must be at least 1m, got %s", a.JWT.TTL)
	case a.Passwords.BcryptCost < 10 || a.Passwords.BcryptCost > 14:
		return fmt.Errorf("BCRYPT_COST out of range: %d (must be 10-14)", a.Passwords.BcryptCost)
	}
	return nil
}

// CheckPolicy rejects passwords that cannot be stored safely
func (c *PasswordConfig) CheckPolicy(pw string) error {
	if len(pw) < MinPasswordLength {
		return fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, MinPasswordLength)
	}
	if len(pw)+len(c.Pepper) > maxBcryptInput {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword enforces the policy and returns the bcrypt hash
func (c *PasswordConfig) HashPassword(pw string) (string, error) {
	if err := c.CheckPolicy(pw); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pw+c.Pepper), c.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether pw matches the stored hash
func (c *PasswordConfig) VerifyPassword(pw, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(pw+c.Pepper)) == nil
}
