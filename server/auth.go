package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Authenticator verifies governance requests before they reach handlers.
// Bearer comparison is constant-time.
type Authenticator struct {
	token string
}

// NewAuthenticator constructs a bearer-token authenticator. An empty token
// disables the governance surface entirely.
func NewAuthenticator(token string) *Authenticator {
	return &Authenticator{token: strings.TrimSpace(token)}
}

// Enabled reports whether governance requests can be authenticated at all.
func (a *Authenticator) Enabled() bool {
	return a.token != ""
}

// Middleware rejects requests without a matching bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			http.Error(w, "governance surface disabled", http.StatusForbidden)
			return
		}
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		if subtle.ConstantTimeCompare([]byte(presented), []byte(a.token)) != 1 {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
