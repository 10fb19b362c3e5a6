package security

import (
	"net/http"
	"strings"
)

const DefaultCookieName = "token"

// CredentialFromRequest returns the raw credential of r: the value of the
// cookie named cookieName ("token=<value>"), or an Authorization bearer token.
func CredentialFromRequest(r *http.Request, cookieName string) string {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" {
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
	}
	return ""
}
