package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClient_EmptyEndpoint(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "endpoint")
}

func TestExchange_HappyPath(t *testing.T) {
	var gotAuth string
	var gotBody exchangeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(exchangeResponse{
			Credentials: &credentialsPayload{
				AccessKeyID:     "AKIAEXAMPLE",
				SecretAccessKey: "secret",
				SessionToken:    "session",
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	triple, err := c.Exchange(context.Background(), "id-token-123")
	require.NoError(t, err)
	require.Equal(t, "AKIAEXAMPLE", triple.AccessKeyID)
	require.Equal(t, "secret", triple.SecretAccessKey)
	require.Equal(t, "session", triple.SessionToken)
	require.True(t, triple.Expiration.IsZero(), "broker must not stamp expiration")

	require.Equal(t, "id-token-123", gotAuth)
	require.Equal(t, "id-token-123", gotBody.IDToken)
}

func TestExchange_SoftFailStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(exchangeResponse{Status: "Exception: token audience mismatch"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Exchange(context.Background(), "id-token")
	var softFail *SoftFailError
	require.ErrorAs(t, err, &softFail)
	require.Contains(t, softFail.Status, "Exception:")
}

func TestExchange_NonExceptionStatusWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(exchangeResponse{Status: "pending"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Exchange(context.Background(), "id-token")
	require.Error(t, err)
	var softFail *SoftFailError
	require.False(t, errors.As(err, &softFail))
}

func TestExchange_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Exchange(context.Background(), "id-token")
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusForbidden, statusErr.HTTPStatusCode())
}

func TestExchange_EmptyToken(t *testing.T) {
	c, err := NewClient("http://localhost:0")
	require.NoError(t, err)
	_, err = c.Exchange(context.Background(), "   ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "identity token")
}

func TestExchange_EmptyCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(exchangeResponse{Credentials: &credentialsPayload{}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Exchange(context.Background(), "id-token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}
