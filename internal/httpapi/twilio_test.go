package httpapi

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voicelead/calltrack/internal/config"
)

func signRequest(authToken, requestURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := requestURL
	for _, k := range keys {
		payload += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidSignature(t *testing.T) {
	params := map[string]string{
		"CallSid": "CA123",
		"From":    "+5511987654321",
		"To":      "+5511911112222",
	}
	u := "https://calls.example.com/webhook/call?campaign=google-ads"
	sig := signRequest("secret-token", u, params)

	assert.True(t, ValidSignature("secret-token", u, params, sig))
	assert.False(t, ValidSignature("wrong-token", u, params, sig))
	assert.False(t, ValidSignature("secret-token", u, params, "bogus"))

	params["From"] = "+5511900000000"
	assert.False(t, ValidSignature("secret-token", u, params, sig))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestTwilioAuth_DebugSkipsValidation(t *testing.T) {
	mw := TwilioAuth(config.TwilioConfig{Debug: true, AuthToken: "secret"})

	req := httptest.NewRequest(http.MethodPost, "/webhook/call", nil)
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTwilioAuth_MissingTokenSkipsValidation(t *testing.T) {
	mw := TwilioAuth(config.TwilioConfig{})

	req := httptest.NewRequest(http.MethodPost, "/webhook/call", nil)
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTwilioAuth_RejectsInvalidSignature(t *testing.T) {
	mw := TwilioAuth(config.TwilioConfig{AuthToken: "secret"})

	req := httptest.NewRequest(http.MethodPost, "/webhook/call", strings.NewReader("CallSid=CA123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", "bogus")
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTwilioAuth_AcceptsValidSignature(t *testing.T) {
	mw := TwilioAuth(config.TwilioConfig{AuthToken: "secret"})

	form := url.Values{"CallSid": {"CA123"}, "From": {"+5511987654321"}}
	req := httptest.NewRequest(http.MethodPost, "https://calls.example.com/webhook/call", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Host = "calls.example.com"

	params := map[string]string{"CallSid": "CA123", "From": "+5511987654321"}
	req.Header.Set("X-Twilio-Signature",
		signRequest("secret", "https://calls.example.com/webhook/call", params))

	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTwilioAuth_ForwardedProtoRebuildsSignedURL(t *testing.T) {
	mw := TwilioAuth(config.TwilioConfig{AuthToken: "secret"})

	form := url.Values{"CallSid": {"CA123"}}
	// The proxy terminates TLS: the provider signed the https URL but the
	// container sees plain http.
	req := httptest.NewRequest(http.MethodPost, "http://calls.example.com/webhook/call", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Host = "calls.example.com"

	params := map[string]string{"CallSid": "CA123"}
	req.Header.Set("X-Twilio-Signature",
		signRequest("secret", "https://calls.example.com/webhook/call", params))

	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	mw := APIKeyAuth([]string{"key-1", "key-2"})

	req := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	req.Header.Set("X-API-Key", "key-2")
	rec = httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_EmptyKeySetDisablesAuth(t *testing.T) {
	mw := APIKeyAuth(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
