package cissync

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWTAuth_RoundTrip(t *testing.T) {
	auth := NewJWTAuth("test-secret")

	token, err := auth.GenerateToken("operator1", time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "operator1", claims.Subject)
}

func TestJWTAuth_RejectsWrongSecret(t *testing.T) {
	token, err := NewJWTAuth("secret-a").GenerateToken("operator1", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTAuth("secret-b").ValidateToken(token)
	require.Error(t, err)
}

func TestJWTAuth_RejectsExpiredToken(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	token, err := auth.GenerateToken("operator1", -time.Minute)
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	require.Error(t, err)
}

func TestJWTAuth_GetUserID(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	token, err := auth.GenerateToken("operator1", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/sync/runs", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	userID, err := auth.GetUserID(r)
	require.NoError(t, err)
	require.Equal(t, "operator1", userID)

	r = httptest.NewRequest(http.MethodGet, "/sync/runs", nil)
	_, err = auth.GetUserID(r)
	require.Error(t, err)

	r = httptest.NewRequest(http.MethodGet, "/sync/runs", nil)
	r.Header.Set("Authorization", token) // missing Bearer prefix
	_, err = auth.GetUserID(r)
	require.Error(t, err)
}
