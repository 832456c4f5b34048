package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/stretchr/testify/require"

	"github.com/ipfs-force-community/sophon-connect/api"
)

func TestAuthHandler(t *testing.T) {
	var got []auth.Permission
	h := &AuthHandler{
		Verify: func(_ context.Context, token string) ([]auth.Permission, error) {
			if token != "good" {
				return nil, errors.New("bad token")
			}
			return []auth.Permission{api.PermRead}, nil
		},
		Next: func(w http.ResponseWriter, r *http.Request) {
			got = nil
			for _, p := range api.AllPermissions {
				if auth.HasPerm(r.Context(), nil, p) {
					got = append(got, p)
				}
			}
		},
	}

	serve := func(remote, header string) int {
		req := httptest.NewRequest(http.MethodPost, "/rpc/v0", nil)
		req.RemoteAddr = remote
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, serve("127.0.0.1:5000", ""))
	require.Equal(t, api.AllPermissions, got)

	require.Equal(t, http.StatusUnauthorized, serve("10.0.0.2:5000", ""))

	require.Equal(t, http.StatusOK, serve("10.0.0.2:5000", "Bearer good"))
	require.Equal(t, []auth.Permission{api.PermRead}, got)

	require.Equal(t, http.StatusUnauthorized, serve("10.0.0.2:5000", "Bearer bad"))
	require.Equal(t, http.StatusUnauthorized, serve("10.0.0.2:5000", "good"))
}
