package polar

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Polar signs deliveries following the Standard Webhooks scheme.
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"

	signatureVersion = "v1"
	defaultTolerance = 5 * time.Minute
)

// ErrInvalidSignature is the root of every signature verification failure.
var ErrInvalidSignature = errors.New("polar: invalid webhook signature")

// VerificationError describes why a delivery could not be authenticated.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "polar: webhook verification failed: " + e.Reason
}

func (e *VerificationError) Unwrap() error {
	return ErrInvalidSignature
}

// Verifier authenticates raw webhook deliveries against the shared secret.
type Verifier struct {
	secret    []byte
	Tolerance time.Duration
	Now       func() time.Time
}

// NewVerifier creates a verifier for the given webhook secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret:    []byte(strings.TrimSpace(secret)),
		Tolerance: defaultTolerance,
		Now:       time.Now,
	}
}

// Configured reports whether a secret is set.
func (v *Verifier) Configured() bool {
	return v != nil && len(v.secret) > 0
}

// Verify checks the signature of payload and returns the decoded event.
// payload must be the exact request body as received.
func (v *Verifier) Verify(payload []byte, headers http.Header) (*Event, error) {
	if err := v.VerifySignature(payload, headers); err != nil {
		return nil, err
	}
	return ParseEvent(payload, headers.Get(HeaderWebhookID))
}

// VerifySignature authenticates a delivery without decoding it.
func (v *Verifier) VerifySignature(payload []byte, headers http.Header) error {
	if len(v.secret) == 0 {
		return &VerificationError{Reason: "secret not configured"}
	}

	msgID := strings.TrimSpace(headers.Get(HeaderWebhookID))
	rawTimestamp := strings.TrimSpace(headers.Get(HeaderWebhookTimestamp))
	signatures := strings.TrimSpace(headers.Get(HeaderWebhookSignature))
	if msgID == "" || rawTimestamp == "" || signatures == "" {
		return &VerificationError{Reason: "missing required headers"}
	}

	seconds, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return &VerificationError{Reason: "invalid timestamp header"}
	}
	timestamp := time.Unix(seconds, 0)
	if skew := v.now().Sub(timestamp); skew > v.tolerance() || skew < -v.tolerance() {
		return &VerificationError{Reason: "timestamp outside tolerance"}
	}

	expected := computeMAC(v.secret, msgID, seconds, payload)
	for _, candidate := range strings.Fields(signatures) {
		version, encoded, ok := strings.Cut(candidate, ",")
		if !ok || version != signatureVersion {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return &VerificationError{Reason: "no matching signature"}
}

// Sign returns the webhook-signature header value for a payload. It is used by
// tests and local tooling that replay deliveries.
func Sign(secret, msgID string, timestamp time.Time, payload []byte) string {
	mac := computeMAC([]byte(strings.TrimSpace(secret)), msgID, timestamp.Unix(), payload)
	return signatureVersion + "," + base64.StdEncoding.EncodeToString(mac)
}

func computeMAC(secret []byte, msgID string, seconds int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(strconv.FormatInt(seconds, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Verifier) tolerance() time.Duration {
	if v.Tolerance > 0 {
		return v.Tolerance
	}
	return defaultTolerance
}
