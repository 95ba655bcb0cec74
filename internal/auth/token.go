// Package auth handles the workspace access token presented to the backend
// during transport connection.
package auth

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRefreshWindow is how far ahead of expiry a token counts as
// expiring.
const DefaultRefreshWindow = 5 * time.Minute

// ExpiresAt returns the expiry timestamp encoded in a JWT, if present.
//
// The signature is deliberately not verified. The expiry is only used for
// client UX such as proactive refresh prompts; the backend remains the
// authority and rejects bad tokens on connect.
func ExpiresAt(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ExpiringSoon reports whether a token is already expired or will expire
// within the given window.
func ExpiringSoon(token string, window time.Duration) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return true, fmt.Errorf("token is empty")
	}
	exp, ok := ExpiresAt(token)
	if !ok {
		// No parseable exp claim: treat as non-refreshable but not expired.
		// The backend is authoritative and will reject if needed.
		return false, nil
	}
	return time.Until(exp) <= window, nil
}

// LoadToken reads an access token from disk, trimming surrounding
// whitespace.
func LoadToken(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("access token file %s is empty", path)
	}
	return token, nil
}
