package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// jwtClaims holds the registered claims the ledger checks.
type jwtClaims struct {
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub,omitempty"`
	Audience  any    `json:"aud,omitempty"` // string or []string
	ExpiresAt int64  `json:"exp,omitempty"`
	NotBefore int64  `json:"nbf,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

func parseBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	if !strings.HasPrefix(h, "Bearer ") && !strings.HasPrefix(h, "bearer ") {
		return "", false
	}
	return strings.TrimSpace(h[len("Bearer "):]), true
}

func verifyHS256(token, secret string) (jwtClaims, error) {
	var empty jwtClaims
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return empty, errors.New("invalid token format")
	}
	headerB, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return empty, errors.New("bad header b64")
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return empty, errors.New("bad payload b64")
	}
	sigB, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return empty, errors.New("bad signature b64")
	}

	var hdr struct{ Alg, Typ string }
	if err := json.Unmarshal(headerB, &hdr); err != nil {
		return empty, errors.New("bad header json")
	}
	if !strings.EqualFold(hdr.Alg, "HS256") {
		return empty, errors.New("unsupported alg")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal(sigB, mac.Sum(nil)) {
		return empty, errors.New("invalid signature")
	}

	var claims jwtClaims
	if err := json.Unmarshal(payloadB, &claims); err != nil {
		return empty, errors.New("bad claims json")
	}
	return claims, nil
}

func audContains(aud any, expected string) bool {
	switch v := aud.(type) {
	case string:
		return strings.EqualFold(v, expected)
	case []any:
		for _, it := range v {
			if s, ok := it.(string); ok && strings.EqualFold(s, expected) {
				return true
			}
		}
	}
	return false
}

func (c jwtClaims) check(now time.Time, iss, aud string) error {
	unix := now.Unix()
	switch {
	case c.NotBefore != 0 && unix < c.NotBefore:
		return errors.New("token not yet valid")
	case c.ExpiresAt != 0 && unix >= c.ExpiresAt:
		return errors.New("token expired")
	case iss != "" && !strings.EqualFold(c.Issuer, iss):
		return errors.New("issuer mismatch")
	case aud != "" && !audContains(c.Audience, aud):
		return errors.New("audience mismatch")
	case strings.TrimSpace(c.Subject) == "":
		return errors.New("missing subject")
	}
	return nil
}

// authJWT enforces Authorization: Bearer <HS256 JWT> when secret is set and
// stores the subject as the acting user. It returns nil for an empty secret.
func authJWT(secret, iss, aud string) func(http.Handler) http.Handler {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	iss = strings.TrimSpace(iss)
	aud = strings.TrimSpace(aud)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/readyz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			if strings.HasPrefix(r.URL.Path, "/v1/dictionary/") {
				next.ServeHTTP(w, r)
				return
			}
			tok, ok := parseBearerToken(r)
			if !ok {
				writeErr(w, http.StatusUnauthorized, "missing bearer token", "unauthorized")
				return
			}
			claims, err := verifyHS256(tok, secret)
			if err == nil {
				err = claims.check(time.Now(), iss, aud)
			}
			if err != nil {
				writeErr(w, http.StatusUnauthorized, err.Error(), "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), ctxSubject, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userFrom returns the acting user: the token subject when authentication is
// on, otherwise the X-User-ID header.
func userFrom(r *http.Request) string {
	if sub, ok := r.Context().Value(ctxSubject).(string); ok && sub != "" {
		return sub
	}
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}
