package utils

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-jsonrpc/auth"

	"github.com/stretchr/testify/require"
)

func TestLocalJwtCreateAndVerify(t *testing.T) {
	ctx := context.Background()
	repo := t.TempDir()
	jwt, err := NewLocalJwtClient(repo)
	require.NoError(t, err)
	perm, err := jwt.Verify(ctx, string(jwt.Token))
	require.NoError(t, err)
	require.Equal(t, []auth.Permission{"admin", "sign", "write", "read"}, perm)

	require.NoError(t, jwt.SaveToken())
	token, err := ReadToken(repo)
	require.NoError(t, err)
	require.Equal(t, string(jwt.Token), token)
}

func TestLocalJwtScopedToken(t *testing.T) {
	ctx := context.Background()
	jwt, err := NewLocalJwtClient(t.TempDir())
	require.NoError(t, err)

	token, err := jwt.NewToken("viewer", "write")
	require.NoError(t, err)
	perm, err := jwt.Verify(ctx, string(token))
	require.NoError(t, err)
	require.Equal(t, []auth.Permission{"write", "read"}, perm)

	_, err = jwt.NewToken("nobody", "root")
	require.Error(t, err)

	other, err := NewLocalJwtClient(t.TempDir())
	require.NoError(t, err)
	_, err = other.Verify(ctx, string(token))
	require.Error(t, err)
}
