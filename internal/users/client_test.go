package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitcoach/internal/domain"
)

func TestValidateUser(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/api/users/u1/validateUser":
			_, _ = w.Write([]byte("true"))
		case "/api/users/u2/validateUser":
			_, _ = w.Write([]byte("false"))
		case "/api/users/broken/validateUser":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", time.Second)
	ctx := context.Background()

	valid, err := client.ValidateUser(ctx, "u1")
	require.NoError(t, err)
	require.True(t, valid)

	valid, err = client.ValidateUser(ctx, "u2")
	require.NoError(t, err)
	require.False(t, valid)

	_, err = client.ValidateUser(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = client.ValidateUser(ctx, "broken")
	require.ErrorIs(t, err, domain.ErrUserServiceUnavailable)
}

func TestValidateUserUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	_, err := NewClient(server.URL, 200*time.Millisecond).ValidateUser(context.Background(), "u1")
	require.ErrorIs(t, err, domain.ErrUserServiceUnavailable)
}
