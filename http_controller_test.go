package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-auth-verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, f *serviceFixture) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.NewErrorHandler(auth.NopLogger()),
	})
	app.Use(auth.RequestIDMiddleware(auth.NopLogger()))

	auth.RegisterAuthRoutes(app.Group("/auth"),
		auth.WithAuthService(f.svc),
		auth.WithControllerLogger(auth.NopLogger()),
	)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}

	return resp, out
}

func errorTextCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["text_code"].(string)
	return code
}

func TestAuthControllerScenario(t *testing.T) {
	f := newServiceFixture(t)
	app := newTestApp(t, f)

	registration := map[string]string{
		"email":                 "a@x.com",
		"display_name":          "Ann",
		"password":              "secret1",
		"password_confirmation": "secret1",
	}
	credentials := map[string]string{"email": "a@x.com", "password": "secret1"}

	resp, body := doJSON(t, app, http.MethodPost, "/auth/register", registration, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "a@x.com", body["email"])
	assert.NotContains(t, body, "password_digest")
	assert.NotContains(t, body, "verification_token")
	assert.NotEmpty(t, resp.Header.Get(auth.HeaderRequestID))

	resp, body = doJSON(t, app, http.MethodPost, "/auth/register", registration, "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, auth.TextCodeDuplicateEmail, errorTextCode(body))

	resp, body = doJSON(t, app, http.MethodPost, "/auth/login", credentials, "")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, auth.TextCodeEmailNotVerified, errorTextCode(body))

	resp, body = doJSON(t, app, http.MethodPost, "/auth/verification", map[string]string{"email": "a@x.com"}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	link, _ := body["url"].(string)
	require.NotEmpty(t, link)

	u, err := url.Parse(link)
	require.NoError(t, err)

	resp, body = doJSON(t, app, http.MethodGet, u.RequestURI(), nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	resp, body = doJSON(t, app, http.MethodGet, u.RequestURI(), nil, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, auth.TextCodeTokenNotFound, errorTextCode(body))

	resp, body = doJSON(t, app, http.MethodPost, "/auth/login", credentials, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.Greater(t, body["expires_in"], float64(0))

	resp, body = doJSON(t, app, http.MethodGet, "/auth/me", nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "a@x.com", body["email"])

	resp, body = doJSON(t, app, http.MethodPost, "/auth/refresh", nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])

	resp, body = doJSON(t, app, http.MethodPost, "/auth/logout", nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	resp, body = doJSON(t, app, http.MethodGet, "/auth/me", nil, token)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, auth.TextCodeUnauthenticated, errorTextCode(body))
}

func TestAuthControllerErrors(t *testing.T) {
	f := newServiceFixture(t)
	app := newTestApp(t, f)

	t.Run("validation lists fields", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/auth/register", map[string]string{"email": "nope"}, "")
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, auth.TextCodeValidationFailed, errorTextCode(body))

		errBody := body["error"].(map[string]any)
		metadata := errBody["metadata"].(map[string]any)
		fields := metadata["fields"].(map[string]any)
		assert.Contains(t, fields, "email")
		assert.Contains(t, fields, "password")
	})

	t.Run("unknown credentials", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/auth/login", map[string]string{"email": "ghost@x.com", "password": "secret1"}, "")
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, auth.TextCodeInvalidCredentials, errorTextCode(body))
	})

	t.Run("refresh without token", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/auth/refresh", nil, "")
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, auth.TextCodeInvalidToken, errorTextCode(body))
	})

	t.Run("tampered link", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/auth/verify?token=abc&expires=9999999999&signature=00", nil, "")
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, auth.TextCodeLinkTampered, errorTextCode(body))
	})

	t.Run("unknown email for verification", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/auth/verification", map[string]string{"email": "ghost@x.com"}, "")
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, auth.TextCodeAccountNotFound, errorTextCode(body))
	})

	t.Run("verify by posted token", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/auth/verify", map[string]string{"token": "missing"}, "")
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, auth.TextCodeTokenNotFound, errorTextCode(body))
	})
}

func TestAuthControllerExpiredLink(t *testing.T) {
	f := newServiceFixture(t)
	app := newTestApp(t, f)

	resp, _ := doJSON(t, app, http.MethodPost, "/auth/register", map[string]string{
		"email":                 "a@x.com",
		"display_name":          "Ann",
		"password":              "secret1",
		"password_confirmation": "secret1",
	}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	_, body := doJSON(t, app, http.MethodPost, "/auth/verification", map[string]string{"email": "a@x.com"}, "")
	link := body["url"].(string)

	f.advance(45 * time.Minute)

	resp, body = doJSON(t, app, http.MethodPost, "/auth/verify", map[string]string{"link": link}, "")
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)
	assert.Equal(t, auth.TextCodeLinkExpired, errorTextCode(body))
}

func TestNewAuthControllerRequiresService(t *testing.T) {
	assert.Panics(t, func() {
		auth.NewAuthController()
	})
}
