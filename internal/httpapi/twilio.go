package httpapi

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/voicelead/calltrack/internal/config"
)

// ValidSignature checks the provider's request signature: HMAC-SHA1 over
// the full request URL followed by the POST parameters sorted by key,
// base64-encoded.
func ValidSignature(authToken, url string, params map[string]string, signature string) bool {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(url)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// requestURL rebuilds the URL the provider signed. Reverse proxies
// terminate TLS and hand the container plain HTTP, so the forwarded
// protocol header wins over the connection's scheme.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// TwilioAuth validates webhook signatures. Debug mode and a missing auth
// token both skip validation with a warning; an invalid signature is
// rejected with 403.
func TwilioAuth(cfg config.TwilioConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Debug {
				next.ServeHTTP(w, r)
				return
			}
			if cfg.AuthToken == "" {
				zap.L().Warn("webhook auth token not configured, skipping signature check")
				next.ServeHTTP(w, r)
				return
			}

			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			params := make(map[string]string, len(r.PostForm))
			for k := range r.PostForm {
				params[k] = r.PostForm.Get(k)
			}

			signature := r.Header.Get("X-Twilio-Signature")
			if !ValidSignature(cfg.AuthToken, requestURL(r), params, signature) {
				zap.L().Warn("invalid webhook signature",
					zap.String("path", r.URL.Path),
					zap.String("remote", r.RemoteAddr),
				)
				http.Error(w, "invalid signature", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
