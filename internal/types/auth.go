package types

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CreateUserRequest represents the request to register a new operator account.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest represents the login request. Login accepts a username or an email.
type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// User represents a user account for API responses (avoids import cycle with db package).
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoginResponse represents the login/register response with user data and authentication token.
type LoginResponse struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UpdatePasswordRequest represents a password update request.
type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// UpdateTagsRequest overrides the tags produced by analysis.
type UpdateTagsRequest struct {
	Tags []string `json:"tags" validate:"required,dive,calltag"`
}

// MaxTagLength is the longest tag, in characters
const MaxTagLength = 64

// validate is shared; validator caches struct metadata per type
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("calltag", func(fl validator.FieldLevel) bool {
		tag := strings.TrimSpace(fl.Field().String())
		if tag == "" || utf8.RuneCountInString(tag) > MaxTagLength {
			return false
		}
		return strings.IndexFunc(tag, unicode.IsControl) < 0
	})
	return v
}

// Validate checks the registration fields
func (r *CreateUserRequest) Validate() error { return validate.Struct(r) }

// Validate checks the login fields
func (r *LoginRequest) Validate() error { return validate.Struct(r) }

// Validate checks the password change fields
func (r *UpdatePasswordRequest) Validate() error { return validate.Struct(r) }

// Validate requires a tags list whose entries are non-blank, printable and short
func (r *UpdateTagsRequest) Validate() error { return validate.Struct(r) }
