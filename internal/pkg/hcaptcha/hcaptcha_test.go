package hcaptcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("0x-secret")
	c.verifyURL = srv.URL
	return c
}

func TestVerifySuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "0x-secret", r.PostForm.Get("secret"))
		assert.Equal(t, "tok", r.PostForm.Get("response"))
		assert.Equal(t, "203.0.113.9", r.PostForm.Get("remoteip"))
		_ = json.NewEncoder(w).Encode(Response{Success: true})
	})
	assert.True(t, c.Enabled())
	assert.NoError(t, c.Verify(context.Background(), "tok", "203.0.113.9"))
}

func TestVerifyFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{Success: false, ErrorCodes: []string{"invalid-input-response"}})
	})
	err := c.Verify(context.Background(), "tok", "")
	assert.ErrorIs(t, err, ErrFailed)
	assert.Contains(t, err.Error(), "invalid-input-response")
}

func TestVerifyEmptyTokenAndBadResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	})
	assert.ErrorIs(t, c.Verify(context.Background(), " ", ""), ErrEmptyToken)
	assert.Error(t, c.Verify(context.Background(), "tok", ""))
}

func TestDisabled(t *testing.T) {
	assert.NoError(t, Disabled{}.Verify(context.Background(), "", ""))
	assert.False(t, NewClient("").Enabled())
}
