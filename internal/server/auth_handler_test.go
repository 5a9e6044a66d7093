package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/call-transcriber/internal/types"
)

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func register(t *testing.T, env *testEnv, username, password string) types.LoginResponse {
	t.Helper()
	w := env.do(t, jsonRequest(http.MethodPost, "/api/auth/register",
		`{"username":"`+username+`","email":"`+username+`@Example.com","password":"`+password+`"}`), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp types.LoginResponse
	decodeBody(t, w, &resp)
	return resp
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	reg := register(t, env, "alice", "correct-horse")
	require.NotNil(t, reg.User)
	assert.Equal(t, "alice", reg.User.Username)
	assert.Equal(t, "alice@example.com", reg.User.Email)
	assert.NotEmpty(t, reg.Token)
	assert.False(t, reg.ExpiresAt.IsZero())

	// The registration token works on protected routes
	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), reg.Token)
	require.Equal(t, http.StatusOK, w.Code)
	var me types.User
	decodeBody(t, w, &me)
	assert.Equal(t, reg.User.ID, me.ID)
	assert.NotContains(t, w.Body.String(), "password")

	// Login by username and by email
	for _, login := range []string{"alice", "alice@example.com"} {
		w = env.do(t, jsonRequest(http.MethodPost, "/api/auth/login",
			`{"login":"`+login+`","password":"correct-horse"}`), "")
		require.Equal(t, http.StatusOK, w.Code, login)
	}

	// Change the password, then only the new one logs in
	w = env.do(t, jsonRequest(http.MethodPut, "/api/auth/password",
		`{"current_password":"correct-horse","new_password":"battery-staple"}`), reg.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, jsonRequest(http.MethodPost, "/api/auth/login", `{"login":"alice","password":"correct-horse"}`), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = env.do(t, jsonRequest(http.MethodPost, "/api/auth/login", `{"login":"alice","password":"battery-staple"}`), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegister_Errors(t *testing.T) {
	env := newTestEnv(t)
	register(t, env, "taken", "long-enough-pw")

	tests := []struct {
		name string
		body string
		code int
	}{
		{"duplicate username", `{"username":"taken","password":"long-enough-pw"}`, http.StatusConflict},
		{"short password", `{"username":"bob","password":"short"}`, http.StatusBadRequest},
		{"password over bcrypt limit", `{"username":"bob","password":"` + strings.Repeat("p", 73) + `"}`, http.StatusBadRequest},
		{"bad email", `{"username":"bob","email":"nope","password":"long-enough-pw"}`, http.StatusBadRequest},
		{"short username", `{"username":"b","password":"long-enough-pw"}`, http.StatusBadRequest},
		{"malformed json", `{"username":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, jsonRequest(http.MethodPost, "/api/auth/register", tt.body), "")
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestLogin_InvalidCredentialsLookTheSame(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env, "carol", "long-enough-pw")

	// Deactivate the account directly in storage
	env.users.mu.Lock()
	for _, u := range env.users.users {
		if u.ID == reg.User.ID {
			u.Active = false
		}
	}
	env.users.mu.Unlock()

	tests := []struct {
		name string
		body string
	}{
		{"unknown user", `{"login":"nobody","password":"long-enough-pw"}`},
		{"disabled account", `{"login":"carol","password":"long-enough-pw"}`},
	}

	var bodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, jsonRequest(http.MethodPost, "/api/auth/login", tt.body), "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			bodies = append(bodies, w.Body.String())
		})
	}
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
}

func TestUpdatePassword_WrongCurrent(t *testing.T) {
	env := newTestEnv(t)
	reg := register(t, env, "dave", "long-enough-pw")

	w := env.do(t, jsonRequest(http.MethodPut, "/api/auth/password",
		`{"current_password":"not-my-password","new_password":"another-long-pw"}`), reg.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, jsonRequest(http.MethodPut, "/api/auth/password",
		`{"current_password":"long-enough-pw","new_password":"short"}`), reg.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMe_UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	// A valid token for an account that no longer exists
	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), env.token(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
