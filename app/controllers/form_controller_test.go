package controllers

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcdynamics/workflowai/app/repository"
	"github.com/tcdynamics/workflowai/internal/pkg/database"
	"github.com/tcdynamics/workflowai/internal/pkg/hcaptcha"
	"github.com/tcdynamics/workflowai/internal/pkg/mail"
)

type capturingSender struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
}

func (s *capturingSender) Send(_ context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

type stubCaptcha struct {
	err   error
	token string
}

func (s *stubCaptcha) Verify(_ context.Context, token, _ string) error {
	s.token = token
	return s.err
}

func newFormApp(t *testing.T, captcha hcaptcha.Verifier, sender mail.Sender) (*fiber.App, repository.SubmissionRepository) {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	repo := repository.NewSubmissionRepository(db)

	ctrl := NewFormController(repo, captcha, sender, "no-reply@workflowai.test", "team@workflowai.test")
	ctrl.background = func(fn func()) { fn() }

	app := fiber.New()
	app.Post("/api/contact", ctrl.HandleContact)
	app.Post("/api/demo-request", ctrl.HandleDemoRequest)
	return app, repo
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode, decodeBody(t, resp)
}

func TestHandleContactStoresAndMails(t *testing.T) {
	sender := &capturingSender{}
	app, repo := newFormApp(t, nil, sender)

	status, body := postJSON(t, app, "/api/contact", `{"name":" Ada ","email":"ADA@example.com","message":"Please tell me more about pricing."}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, true, body["success"])
	id, _ := body["id"].(string)
	assert.Len(t, id, 36)

	msgs, err := repo.ListContactMessages(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Ada", msgs[0].Name)
	assert.Equal(t, "ada@example.com", msgs[0].Email)
	assert.Equal(t, "203.0.113.9", msgs[0].IPAddress)

	require.Len(t, sender.msgs, 2)
	assert.Equal(t, "team@workflowai.test", sender.msgs[0].To)
	assert.Contains(t, sender.msgs[0].HTML, "Please tell me more about pricing.")
	assert.Equal(t, "ada@example.com", sender.msgs[1].To)
	assert.Contains(t, sender.msgs[1].HTML, id)
}

func TestHandleContactValidationErrors(t *testing.T) {
	app, repo := newFormApp(t, nil, nil)

	status, body := postJSON(t, app, "/api/contact", `{"name":"A","email":"nope","message":"short"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "validation_failed", body["error"])
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "message")

	status, body = postJSON(t, app, "/api/contact", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_request", body["error"])

	msgs, err := repo.ListContactMessages(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHandleContactMailFailureDoesNotFailRequest(t *testing.T) {
	sender := &capturingSender{err: errors.New("smtp down")}
	app, _ := newFormApp(t, nil, sender)

	status, _ := postJSON(t, app, "/api/contact", `{"name":"Ada","email":"ada@example.com","message":"Hello, is anyone there?"}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Len(t, sender.msgs, 2)
}

func TestHandleDemoRequestCaptcha(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"accepted", nil, fiber.StatusCreated, ""},
		{"rejected", hcaptcha.ErrFailed, fiber.StatusBadRequest, "captcha_failed"},
		{"missing token", hcaptcha.ErrEmptyToken, fiber.StatusBadRequest, "captcha_failed"},
		{"upstream down", errors.New("dial tcp: timeout"), fiber.StatusBadGateway, "captcha_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captcha := &stubCaptcha{err: tt.err}
			app, repo := newFormApp(t, captcha, nil)

			status, body := postJSON(t, app, "/api/demo-request",
				`{"name":"Grace","email":"grace@example.com","company":"Navy","company_size":"51-200","preferred_date":"2026-11-02","captcha_token":"tok_1"}`)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, "tok_1", captcha.token)

			reqs, err := repo.ListDemoRequests(context.Background(), 0, 10)
			require.NoError(t, err)
			if tt.code == "" {
				assert.Equal(t, true, body["success"])
				require.Len(t, reqs, 1)
				assert.Equal(t, "51-200", reqs[0].CompanySize)
			} else {
				assert.Equal(t, tt.code, body["error"])
				assert.Empty(t, reqs)
			}
		})
	}
}

func TestHandleDemoRequestValidation(t *testing.T) {
	app, _ := newFormApp(t, nil, nil)
	status, body := postJSON(t, app, "/api/demo-request", `{"name":"Grace","email":"grace@example.com","company_size":"huge"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "required", fields["company"])
	assert.Equal(t, "oneof", fields["company_size"])
}

func TestGetClientIP(t *testing.T) {
	newApp := func(cfg fiber.Config) *fiber.App {
		app := fiber.New(cfg)
		app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetClientIP(c)) })
		return app
	}
	trusted := fiber.Config{
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0"},
		EnableIPValidation:      true,
	}
	untrusted := trusted
	untrusted.TrustedProxies = []string{"10.0.0.1"}

	tests := []struct {
		name    string
		cfg     fiber.Config
		headers map[string]string
		want    string
	}{
		{"no proxy header ignores forwarding", fiber.Config{}, map[string]string{"X-Forwarded-For": "203.0.113.9", "CF-Connecting-IP": "198.51.100.7"}, "0.0.0.0"},
		{"untrusted peer ignores forwarding", untrusted, map[string]string{"X-Forwarded-For": "203.0.113.9"}, "0.0.0.0"},
		{"trusted peer uses first forwarded", trusted, map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "203.0.113.9"},
		{"trusted peer skips invalid entries", trusted, map[string]string{"X-Forwarded-For": "bogus, 203.0.113.9"}, "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := newApp(tt.cfg).Test(req)
			require.NoError(t, err)
			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(raw))
		})
	}
}
