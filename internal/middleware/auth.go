package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/dukerupert/eventboard/internal/auth"
	"golang.org/x/crypto/bcrypt"
)

const adminRealm = `Basic realm="eventboard admin", charset="UTF-8"`

// AdminCredentials is the single operator account. An empty password hash
// disables admin access entirely.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// Verify checks a username and plaintext password against the bcrypt hash.
func (c AdminCredentials) Verify(username, password string) bool {
	if c.Username == "" || c.PasswordHash == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
	return userOK && passOK
}

// Identify populates AuthContext when the request carries valid admin basic
// auth credentials. Other requests pass through as anonymous visitors.
func Identify(creds AdminCredentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if ok && creds.Verify(user, pass) {
				ctx := auth.WithAuth(r.Context(), auth.AuthContext{Username: user, Role: auth.RoleAdmin})
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects requests that Identify did not mark as admin and asks
// the browser for credentials.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			w.Header().Set("WWW-Authenticate", adminRealm)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
