package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/hashing"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/models"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/ratelimit"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/service"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/token"
)

type mockCredentials struct{ mock.Mock }

func (m *mockCredentials) Login(_ context.Context, email, password string) (*service.LoginResult, error) {
	args := m.Called(email, password)
	res, _ := args.Get(0).(*service.LoginResult)
	return res, args.Error(1)
}

func (m *mockCredentials) ChangePassword(_ context.Context, accountID, current, next string) error {
	return m.Called(accountID, current, next).Error(0)
}

type mockChallenge struct{ mock.Mock }

func (m *mockChallenge) RequestCode(_ context.Context, documentID string) (*service.CodeDispatch, error) {
	args := m.Called(documentID)
	res, _ := args.Get(0).(*service.CodeDispatch)
	return res, args.Error(1)
}

func (m *mockChallenge) ValidateCode(_ context.Context, documentID, code string) (*service.LoginResult, error) {
	args := m.Called(documentID, code)
	res, _ := args.Get(0).(*service.LoginResult)
	return res, args.Error(1)
}

type fixedLimiter struct {
	result ratelimit.Result
	err    error
	calls  []string
}

func (l *fixedLimiter) Check(_ context.Context, category, identifier string) (ratelimit.Result, error) {
	l.calls = append(l.calls, category+":"+identifier)
	return l.result, l.err
}

type fixedHealth map[string]error

func (h fixedHealth) HealthCheck(context.Context) map[string]error { return h }

type testEnv struct {
	router      http.Handler
	credentials *mockCredentials
	challenge   *mockChallenge
	tokens      *token.Service
	limiter     *fixedLimiter
}

func newTestEnv(t *testing.T, health HealthChecker, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second, AllowedOrigins: []string{"https://*"}},
		Auth:   config.AuthConfig{StaffTokenTTL: 8 * time.Hour, ClientTokenTTL: 2 * time.Hour},
	}
	for _, m := range mutate {
		m(cfg)
	}
	cell := hashing.NewSecretCell(nil, strings.Repeat("s", 40), zap.NewNop())
	env := &testEnv{
		credentials: &mockCredentials{},
		challenge:   &mockChallenge{},
		tokens:      token.NewService(cfg, hashing.NewProvider(cfg, cell)),
		limiter:     &fixedLimiter{result: ratelimit.Result{Allowed: true}},
	}
	if health == nil {
		health = fixedHealth{}
	}
	h := NewAuthHandler(env.credentials, env.challenge, env.tokens, zap.NewNop())
	env.router = NewRouter(cfg, h, env.limiter, health, zap.NewNop())
	return env
}

func (e *testEnv) issue(t *testing.T, role string) string {
	t.Helper()
	raw, _, err := e.tokens.Issue(context.Background(), "acc-1", "ana@escritorio.com.br", "Ana", role)
	require.NoError(t, err)
	return raw
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, bearer string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func loginResult() *service.LoginResult {
	return &service.LoginResult{
		Token:     "h.c.s",
		ExpiresAt: time.Date(2024, 5, 10, 17, 0, 0, 0, time.UTC),
		Identity:  models.Identity{ID: "acc-1", Email: "ana@escritorio.com.br", Name: "Ana", Role: models.RoleLawyer},
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.credentials.On("Login", "ana@escritorio.com.br", "s3nha").Return(loginResult(), nil).Once()

	rec, resp := env.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "ana@escritorio.com.br", Password: "s3nha"}, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "h.c.s", data["token"])
	assert.Equal(t, "lawyer", data["user"].(map[string]interface{})["role"])
	assert.Equal(t, []string{"api:203.0.113.7"}, env.limiter.calls)
	env.credentials.AssertExpectations(t)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		errMsg string
	}{
		{"invalid input", service.ErrInvalidInput, http.StatusBadRequest, "invalid input"},
		{"invalid credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{"disabled", service.ErrAccountDisabled, http.StatusForbidden, "account is disabled"},
		{"dependency", errors.Join(service.ErrDependencyUnavailable, errors.New("scylla timeout")), http.StatusServiceUnavailable, "dependency unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.credentials.On("Login", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec, resp := env.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "a@b.c", Password: "x"}, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.errMsg, resp.Error)
		})
	}
}

func TestLoginRateLimitedSetsRetryAfter(t *testing.T) {
	env := newTestEnv(t, nil)
	env.credentials.On("Login", mock.Anything, mock.Anything).
		Return(nil, &service.RateLimitError{RetryAfter: time.Now().Add(90 * time.Second)})

	rec, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "a@b.c", Password: "x"}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, resp := env.do(t, http.MethodPost, "/api/v1/auth/login", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	env.credentials.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestAPIRateLimitMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)
	env.limiter.result = ratelimit.Result{Allowed: false, RetryAfter: time.Now().Add(30 * time.Second)}

	rec, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "a@b.c", Password: "x"}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	env.credentials.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
}

func TestAPIRateLimitKey(t *testing.T) {
	send := func(env *testEnv) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
		req.RemoteAddr = "203.0.113.7:51234"
		req.Header.Set("X-Forwarded-For", "198.51.100.23")
		env.router.ServeHTTP(httptest.NewRecorder(), req)
	}

	t.Run("forwarded header ignored by default", func(t *testing.T) {
		env := newTestEnv(t, nil)
		send(env)
		assert.Equal(t, []string{"api:203.0.113.7"}, env.limiter.calls)
	})

	t.Run("forwarded header used behind trusted proxy", func(t *testing.T) {
		env := newTestEnv(t, nil, func(cfg *config.Config) { cfg.Server.TrustProxyHeaders = true })
		send(env)
		assert.Equal(t, []string{"api:198.51.100.23"}, env.limiter.calls)
	})
}

func TestAPIRateLimitFailsOpen(t *testing.T) {
	env := newTestEnv(t, nil)
	env.limiter.result = ratelimit.Result{Allowed: true}
	env.limiter.err = ratelimit.ErrStoreUnavailable
	env.credentials.On("Login", mock.Anything, mock.Anything).Return(loginResult(), nil)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "a@b.c", Password: "x"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/auth/session", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/auth/session", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	raw := env.issue(t, models.RoleAdmin)
	tampered := raw[:len(raw)-2] + "xx"
	rec, _ = env.do(t, http.MethodGet, "/api/v1/auth/session", nil, tampered)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/auth/session", nil, raw)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "acc-1", data["id"])
	assert.Equal(t, "admin", data["role"])
}

func TestChangePasswordEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	body := ChangePasswordRequest{CurrentPassword: "old-pass", NewPassword: "new-password"}

	rec, _ := env.do(t, http.MethodPost, "/api/v1/auth/password", body, env.issue(t, token.RoleClient))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.credentials.On("ChangePassword", "acc-1", "old-pass", "new-password").Return(nil).Once()
	rec, resp := env.do(t, http.MethodPost, "/api/v1/auth/password", body, env.issue(t, models.RoleLawyer))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	env.credentials.AssertExpectations(t)
}

func TestClientCodeEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.challenge.On("RequestCode", "123.456.789-01").
		Return(&service.CodeDispatch{Destination: "j***@cliente.com"}, nil).Once()
	env.challenge.On("RequestCode", "00000000000").Return(nil, service.ErrNotFound).Once()
	env.challenge.On("ValidateCode", "12345678901", "111111").Return(nil, &service.CodeMismatchError{Remaining: 4}).Once()
	env.challenge.On("ValidateCode", "12345678901", "222222").Return(nil, service.ErrCodeExpired).Once()
	env.challenge.On("ValidateCode", "12345678901", "333333").Return(nil, service.ErrAccountLocked).Once()
	env.challenge.On("ValidateCode", "12345678901", "444444").Return(loginResult(), nil).Once()

	rec, resp := env.do(t, http.MethodPost, "/api/v1/client/code", RequestCodeRequest{Document: "123.456.789-01"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "j***@cliente.com", resp.Data.(map[string]interface{})["destination"])

	rec, _ = env.do(t, http.MethodPost, "/api/v1/client/code", RequestCodeRequest{Document: "00000000000"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	statuses := map[string]int{
		"111111": http.StatusUnauthorized,
		"222222": http.StatusGone,
		"333333": http.StatusLocked,
		"444444": http.StatusOK,
	}
	for code, want := range statuses {
		rec, _ := env.do(t, http.MethodPost, "/api/v1/client/verify", ValidateCodeRequest{Document: "12345678901", Code: code}, "")
		assert.Equal(t, want, rec.Code, "code %s", code)
	}
	env.challenge.AssertExpectations(t)
}

func TestDispatch(t *testing.T) {
	env := newTestEnv(t, nil)
	staffToken := env.issue(t, models.RoleAssistant)

	env.credentials.On("Login", "ana@escritorio.com.br", "s3nha").Return(loginResult(), nil).Once()
	env.challenge.On("RequestCode", "12345678901").Return(&service.CodeDispatch{Destination: "j***@cliente.com"}, nil).Once()
	env.credentials.On("ChangePassword", "acc-1", "old-pass", "new-password").Return(nil).Once()

	tests := []struct {
		name   string
		body   interface{}
		bearer string
		status int
	}{
		{"login", map[string]interface{}{"action": "login", "payload": map[string]string{"email": "ana@escritorio.com.br", "password": "s3nha"}}, "", http.StatusOK},
		{"verify session in envelope", map[string]interface{}{"action": "verifySession", "token": staffToken}, "", http.StatusOK},
		{"verify session missing token", map[string]interface{}{"action": "verifySession"}, "", http.StatusUnauthorized},
		{"request code", map[string]interface{}{"action": "requestClientCode", "payload": map[string]string{"document": "12345678901"}}, "", http.StatusOK},
		{"change password with bearer", map[string]interface{}{"action": "changePassword", "payload": map[string]string{"current_password": "old-pass", "new_password": "new-password"}}, staffToken, http.StatusOK},
		{"missing payload", map[string]interface{}{"action": "validateClientCode"}, "", http.StatusBadRequest},
		{"unknown action", map[string]interface{}{"action": "deleteEverything"}, "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := env.do(t, http.MethodPost, "/api/v1/dispatch", tt.body, tt.bearer)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	env.credentials.AssertExpectations(t)
	env.challenge.AssertExpectations(t)
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, _ := env.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := env.do(t, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	failing := newTestEnv(t, fixedHealth{"redis": errors.New("connection refused")})
	rec, resp = failing.do(t, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connection refused", resp.Data.(map[string]interface{})["redis"])
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	rec, _ := env.do(t, http.MethodGet, "/api/v1/nowhere", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
