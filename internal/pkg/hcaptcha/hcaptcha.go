package hcaptcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultVerifyURL = "https://hcaptcha.com/siteverify"

var (
	ErrEmptyToken = errors.New("hCaptcha token is empty")
	ErrFailed     = errors.New("hCaptcha validation failed")
)

type Response struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

// Verifier checks captcha tokens submitted with public forms.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// Client verifies tokens against the hCaptcha siteverify API.
type Client struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
}

func NewClient(secret string) *Client {
	return &Client{
		secret:     strings.TrimSpace(secret),
		verifyURL:  DefaultVerifyURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a secret is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.secret != ""
}

func (c *Client) Verify(ctx context.Context, token, remoteIP string) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}

	formData := url.Values{
		"secret":   {c.secret},
		"response": {token},
	}
	if remoteIP != "" {
		formData.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return fmt.Errorf("create hCaptcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to hCaptcha API: %w", err)
	}
	defer resp.Body.Close()

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode hCaptcha API response: %w", err)
	}

	if !response.Success {
		if len(response.ErrorCodes) > 0 {
			return fmt.Errorf("%w: %s", ErrFailed, strings.Join(response.ErrorCodes, ", "))
		}
		return ErrFailed
	}
	return nil
}

// Disabled accepts every token. Used when HCAPTCHA_SECRET is unset.
type Disabled struct{}

func (Disabled) Verify(context.Context, string, string) error { return nil }

var (
	_ Verifier = (*Client)(nil)
	_ Verifier = Disabled{}
)
