// Package server provides the HTTP REST API for call uploads, call records and operator accounts.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/call-transcriber/internal/config"
	"github.com/jonathan/call-transcriber/internal/db"
	"github.com/jonathan/call-transcriber/internal/pipeline"
)

// ErrUsernameTaken indicates the username or email is already registered
type ErrUsernameTaken struct {
	Username string
}

func (e *ErrUsernameTaken) Error() string {
	return fmt.Sprintf("username or email already registered: %s", e.Username)
}

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid username or password"
}

// ErrUserNotFound indicates user was not found
type ErrUserNotFound struct {
	UserID uuid.UUID
}

func (e *ErrUserNotFound) Error() string {
	return fmt.Sprintf("user not found: %s", e.UserID)
}

// ErrPasswordMismatch indicates current password is incorrect
type ErrPasswordMismatch struct{}

func (e *ErrPasswordMismatch) Error() string {
	return "current password is incorrect"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// statusRule maps a class of errors to a response status
type statusRule struct {
	status  int
	matches func(error) bool
}

func isType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func isAny(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// Checked in order, first match wins
var statusRules = []statusRule{
	{http.StatusConflict, isType[*ErrUsernameTaken]},
	{http.StatusUnauthorized, isType[*ErrInvalidCredentials]},
	{http.StatusUnauthorized, isType[*ErrPasswordMismatch]},
	{http.StatusNotFound, isType[*ErrUserNotFound]},
	{http.StatusNotFound, isAny(db.ErrCallNotFound)},
	{http.StatusRequestEntityTooLarge, isAny(pipeline.ErrFileTooLarge)},
	{http.StatusBadRequest, isType[*ErrValidation]},
	{http.StatusBadRequest, isType[*pipeline.ValidationError]},
	{http.StatusBadRequest, isAny(config.ErrPasswordTooShort, config.ErrPasswordTooLong)},
}

// HTTPStatus returns the response status for an error, 500 when unclassified
func HTTPStatus(err error) int {
	for _, rule := range statusRules {
		if rule.matches(err) {
			return rule.status
		}
	}
	return http.StatusInternalServerError
}
