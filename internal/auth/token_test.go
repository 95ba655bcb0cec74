package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{"exp": exp.Unix(), "sub": "ws-1"})

	got, ok := ExpiresAt(token)
	require.True(t, ok)
	require.Equal(t, exp.Unix(), got.Unix())
}

func TestExpiresAtWithoutClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "ws-1"})
	_, ok := ExpiresAt(token)
	require.False(t, ok)
}

func TestExpiresAtMalformed(t *testing.T) {
	_, ok := ExpiresAt("not-a-jwt")
	require.False(t, ok)
}

func TestExpiringSoon(t *testing.T) {
	fresh := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	soon, err := ExpiringSoon(fresh, DefaultRefreshWindow)
	require.NoError(t, err)
	require.False(t, soon)

	stale := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix()})
	soon, err = ExpiringSoon(stale, DefaultRefreshWindow)
	require.NoError(t, err)
	require.True(t, soon)

	expired := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})
	soon, err = ExpiringSoon(expired, DefaultRefreshWindow)
	require.NoError(t, err)
	require.True(t, soon)
}

func TestExpiringSoonEmptyToken(t *testing.T) {
	soon, err := ExpiringSoon("   ", DefaultRefreshWindow)
	require.Error(t, err)
	require.True(t, soon)
}

func TestExpiringSoonUnparseableExpIsNotExpired(t *testing.T) {
	soon, err := ExpiringSoon("opaque-api-key", DefaultRefreshWindow)
	require.NoError(t, err)
	require.False(t, soon)
}

func TestLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.key")
	require.NoError(t, os.WriteFile(path, []byte("  tok-123\n"), 0600))

	token, err := LoadToken(path)
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)
}

func TestLoadTokenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.key")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0600))

	_, err := LoadToken(path)
	require.ErrorContains(t, err, "empty")
}

func TestLoadTokenMissingFile(t *testing.T) {
	_, err := LoadToken(filepath.Join(t.TempDir(), "missing.key"))
	require.Error(t, err)
}
