package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jayjaytrn/freshflow/models"
	"go.uber.org/zap"
)

const (
	SignatureHeader = "X-Hub-Signature"
	signaturePrefix = "sha1="
	minPassword     = 6
	maxBody         = 1 << 20
)

// ValidateCredentials checks a register/login body and rewrites it with the
// email trimmed and lowercased.
func ValidateCredentials(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "application/json") {
			sugar.Infow("wrong content type", "content_type", contentType)
			http.Error(w, "wrong content type", http.StatusBadRequest)
			return
		}

		var credentials models.Credentials

		if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&credentials); err != nil {
			sugar.Infow("error decoding credentials", "error", err)
			http.Error(w, "error decoding credentials", http.StatusBadRequest)
			return
		}

		credentials.Email = strings.ToLower(strings.TrimSpace(credentials.Email))
		if credentials.Email == "" || credentials.Password == "" {
			http.Error(w, "email and password are required", http.StatusBadRequest)
			return
		}
		if !strings.Contains(credentials.Email, "@") {
			http.Error(w, "invalid email", http.StatusBadRequest)
			return
		}
		if len(credentials.Password) < minPassword {
			http.Error(w, "password is too short", http.StatusBadRequest)
			return
		}

		bodyBytes, err := json.Marshal(credentials)
		if err != nil {
			sugar.Errorw("error serializing credentials", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		r.ContentLength = int64(len(bodyBytes))

		h.ServeHTTP(w, r)
	})
}

// Sign returns the header value the gateway sends for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// ValidateGatewaySignature checks the HMAC-SHA1 of the raw body. An empty
// secret disables the check.
func ValidateGatewaySignature(secret string) Middleware {
	return func(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				h.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
			if err != nil {
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}

			got := r.Header.Get(SignatureHeader)
			if !hmac.Equal([]byte(got), []byte(Sign(secret, body))) {
				sugar.Warnw("webhook signature mismatch", "remote", r.RemoteAddr)
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			h.ServeHTTP(w, r)
		})
	}
}
