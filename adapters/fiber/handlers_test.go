package fiber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/lborres/opgate"
	"github.com/lborres/opgate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// mockAuthHandler is a test fake implementing opgate.AuthHandler
type mockAuthHandler struct {
	loginInput    opgate.LoginInput
	loginResult   *opgate.LoginResult
	loginErr      error
	registerInput opgate.RegisterInput
	registerRes   *opgate.RegisterResult
	registerErr   error
	requestCalled bool
	requestInput  opgate.ResetRequestInput
	requestErr    error
	resetCalled   bool
	resetInput    opgate.ResetPasswordInput
	resetResult   *opgate.ResetPasswordResult
	resetErr      error
}

func (m *mockAuthHandler) Login(_ context.Context, input opgate.LoginInput) (*opgate.LoginResult, error) {
	m.loginInput = input
	return m.loginResult, m.loginErr
}

func (m *mockAuthHandler) Register(_ context.Context, input opgate.RegisterInput) (*opgate.RegisterResult, error) {
	m.registerInput = input
	return m.registerRes, m.registerErr
}

func (m *mockAuthHandler) RequestPasswordReset(_ context.Context, input opgate.ResetRequestInput) (*opgate.ResetRequestResult, error) {
	m.requestCalled = true
	m.requestInput = input
	if m.requestErr != nil {
		return nil, m.requestErr
	}
	return &opgate.ResetRequestResult{Message: "generic"}, nil
}

func (m *mockAuthHandler) ResetPassword(_ context.Context, input opgate.ResetPasswordInput) (*opgate.ResetPasswordResult, error) {
	m.resetCalled = true
	m.resetInput = input
	return m.resetResult, m.resetErr
}

func newTestApp(t *testing.T, handler opgate.AuthHandler, opts ...Option) *fiber.App {
	t.Helper()
	app := fiber.New()
	if err := New(app, opts...).RegisterRoutes(handler, "/api/auth"); err != nil {
		t.Fatalf("RegisterRoutes() error = %v", err)
	}
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode body %q: %v", raw, err)
		}
	}
	return resp, decoded
}

func TestRegisterRoutes_NilHandler(t *testing.T) {
	if err := New(fiber.New()).RegisterRoutes(nil, "/api/auth"); err == nil {
		t.Fatal("RegisterRoutes(nil) should fail")
	}
}

func TestLogin(t *testing.T) {
	// Arrange
	mock := &mockAuthHandler{loginResult: &opgate.LoginResult{Session: &opgate.Session{AccessToken: "at", TokenType: "bearer"}}}
	app := newTestApp(t, mock)

	// Act
	resp, body := do(t, app, http.MethodPost, "/api/auth/login", `{"email":"ana@example.com","password":"secret1"}`)

	// Assert
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	session, _ := body["session"].(map[string]any)
	if session["access_token"] != "at" {
		t.Errorf("session = %v", body["session"])
	}
	if mock.loginInput.Email != "ana@example.com" || mock.loginInput.Password != "secret1" {
		t.Errorf("login input = %+v", mock.loginInput)
	}
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "invalid input", err: opgate.ErrCredentialsRequired, wantStatus: http.StatusBadRequest, wantError: opgate.ErrCredentialsRequired.Message},
		{name: "unauthorized", err: opgate.ErrInvalidPassword, wantStatus: http.StatusUnauthorized, wantError: opgate.ErrInvalidPassword.Message},
		{name: "forbidden", err: opgate.ErrRegistrationNotAllowed, wantStatus: http.StatusForbidden, wantError: opgate.ErrRegistrationNotAllowed.Message},
		{name: "internal hides cause", err: opgate.ErrMalformedPasswordHash.Wrap(errors.New("bad hex at 3")), wantStatus: http.StatusInternalServerError, wantError: opgate.ErrMalformedPasswordHash.Message},
		{name: "untyped error", err: errors.New("pool closed"), wantStatus: http.StatusInternalServerError, wantError: "internal error"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			app := newTestApp(t, &mockAuthHandler{loginErr: test.err})

			// Act
			resp, body := do(t, app, http.MethodPost, "/api/auth/login", `{"email":"a@x.com","password":"p"}`)

			// Assert
			if resp.StatusCode != test.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, test.wantStatus)
			}
			if body["error"] != test.wantError {
				t.Errorf("error = %v, want %q", body["error"], test.wantError)
			}
		})
	}
}

func TestInvalidBody(t *testing.T) {
	app := newTestApp(t, &mockAuthHandler{})

	resp, body := do(t, app, http.MethodPost, "/api/auth/register", `{"email":`)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body["error"] != opgate.ErrInvalidRequestBody.Message {
		t.Errorf("error = %v", body["error"])
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name      string
		result    *opgate.RegisterResult
		wantKey   string
		wantLogin bool
	}{
		{name: "signed in", result: &opgate.RegisterResult{Session: &opgate.Session{AccessToken: "at"}}, wantKey: "session"},
		{name: "login required", result: &opgate.RegisterResult{LoginRequired: true}, wantKey: "message", wantLogin: true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			app := newTestApp(t, &mockAuthHandler{registerRes: test.result})

			resp, body := do(t, app, http.MethodPost, "/api/auth/register", `{"email":"a@x.com","password":"secret1"}`)

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			if body["success"] != true {
				t.Errorf("success = %v", body["success"])
			}
			if _, ok := body[test.wantKey]; !ok {
				t.Errorf("body %v should contain %q", body, test.wantKey)
			}
			if got := body["loginRequired"] == true; got != test.wantLogin {
				t.Errorf("loginRequired = %v, want %v", got, test.wantLogin)
			}
		})
	}
}

func TestResetPasswordDispatch(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantRequest bool
		wantReset   bool
	}{
		{name: "email only requests a link", body: `{"email":"a@x.com"}`, wantStatus: http.StatusOK, wantRequest: true},
		{name: "token and password consume", body: `{"email":"a@x.com","token":"t","newPassword":"secret2"}`, wantStatus: http.StatusOK, wantReset: true},
		{name: "token without password", body: `{"email":"a@x.com","token":"t"}`, wantStatus: http.StatusBadRequest},
		{name: "password without token", body: `{"email":"a@x.com","newPassword":"secret2"}`, wantStatus: http.StatusBadRequest},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			mock := &mockAuthHandler{resetResult: &opgate.ResetPasswordResult{Message: "done", IdentitySynced: true}}
			app := newTestApp(t, mock)

			// Act
			resp, body := do(t, app, http.MethodPost, "/api/auth/reset-password", test.body)

			// Assert
			if resp.StatusCode != test.wantStatus {
				t.Errorf("status = %d, want %d (body %v)", resp.StatusCode, test.wantStatus, body)
			}
			if mock.requestCalled != test.wantRequest {
				t.Errorf("RequestPasswordReset called = %v, want %v", mock.requestCalled, test.wantRequest)
			}
			if mock.resetCalled != test.wantReset {
				t.Errorf("ResetPassword called = %v, want %v", mock.resetCalled, test.wantReset)
			}
			if test.wantStatus == http.StatusBadRequest && body["error"] != opgate.ErrInvalidParameters.Message {
				t.Errorf("error = %v, want %q", body["error"], opgate.ErrInvalidParameters.Message)
			}
			if test.wantReset && body["identitySynced"] != true {
				t.Errorf("identitySynced = %v", body["identitySynced"])
			}
		})
	}
}

func TestCORS(t *testing.T) {
	app := newTestApp(t, &mockAuthHandler{loginErr: opgate.ErrInvalidPassword})

	t.Run("preflight", func(t *testing.T) {
		resp, body := do(t, app, http.MethodOptions, "/api/auth/login", "")

		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
		if body != nil {
			t.Errorf("preflight body = %v, want empty", body)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("allow origin = %q", got)
		}
		if got := resp.Header.Get("Access-Control-Allow-Methods"); got != corsAllowMethods {
			t.Errorf("allow methods = %q", got)
		}
	})

	t.Run("error responses carry headers", func(t *testing.T) {
		resp, _ := do(t, app, http.MethodPost, "/api/auth/login", `{"email":"a@x.com","password":"p"}`)

		if got := resp.Header.Get("Access-Control-Allow-Headers"); got != corsAllowHeaders {
			t.Errorf("allow headers = %q", got)
		}
		if resp.Header.Get(headerRequestID) == "" {
			t.Error("request id header should be set")
		}
	})
}

// Requirement: OPTIONS on any path under the base path returns 200 with a
// zero-length body.
func TestPreflightBodyIsEmpty(t *testing.T) {
	app := newTestApp(t, &mockAuthHandler{})

	for _, path := range []string{"/api/auth/login", "/api/auth/register", "/api/auth/reset-password", "/api/auth/unknown"} {
		t.Run(path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodOptions, path, nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
			if len(raw) != 0 {
				t.Errorf("body = %q, want empty", raw)
			}
		})
	}
}

func TestMetricsRecorded(t *testing.T) {
	// Arrange
	m := metrics.New()
	app := newTestApp(t, &mockAuthHandler{loginErr: opgate.ErrInvalidPassword}, WithMetrics(m))

	// Act
	do(t, app, http.MethodPost, "/api/auth/login", `{"email":"a@x.com","password":"p"}`)

	// Assert
	count, err := testutil.GatherAndCount(m.Registry(), "opgate_auth_operations_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Errorf("auth_operations_total series = %d, want 1", count)
	}
}

func TestMapErrorToStatus(t *testing.T) {
	if got := mapErrorToStatus(nil); got != http.StatusOK {
		t.Errorf("mapErrorToStatus(nil) = %d", got)
	}
	if got := mapErrorToStatus(opgate.ErrResetTokenExpired); got != http.StatusBadRequest {
		t.Errorf("mapErrorToStatus(expired) = %d", got)
	}
	if got := mapErrorToStatus(opgate.ErrEmailNotAuthorized); got != http.StatusUnauthorized {
		t.Errorf("mapErrorToStatus(not authorized) = %d", got)
	}
}
