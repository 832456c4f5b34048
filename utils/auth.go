package utils

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/filecoin-project/go-jsonrpc/auth"
	jwt3 "github.com/gbrlsnchs/jwt/v3"
)

const TokenFile = "token"

// JWTPayload is signed into every token the daemon issues.
type JWTPayload struct {
	Perm auth.Permission `json:"perm"`
	Name string          `json:"name"`
}

// permission levels in ascending order; each level implies the ones before it
var permLevels = []auth.Permission{"read", "write", "sign", "admin"}

// ExpandPerm turns a single permission level into the set it grants.
func ExpandPerm(perm auth.Permission) []auth.Permission {
	for i, p := range permLevels {
		if p == perm {
			out := make([]auth.Permission, 0, i+1)
			for j := i; j >= 0; j-- {
				out = append(out, permLevels[j])
			}
			return out
		}
	}
	return nil
}

// LocalJwtClient signs and verifies tokens with a secret kept only in memory. The admin
// token is written to the repo so local cli invocations can pick it up.
type LocalJwtClient struct {
	repo   string
	Seckey []byte
	Token  []byte
}

func NewLocalJwtClient(repo string) (*LocalJwtClient, error) {
	var err error
	var seckey []byte
	if seckey, err = io.ReadAll(io.LimitReader(rand.Reader, 32)); err != nil {
		return nil, err
	}
	l := &LocalJwtClient{repo: repo, Seckey: seckey}
	if l.Token, err = l.NewToken("ConnectLocalToken", "admin"); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LocalJwtClient) NewToken(name string, perm auth.Permission) ([]byte, error) {
	if ExpandPerm(perm) == nil {
		return nil, fmt.Errorf("unknown permission %q", perm)
	}
	return jwt3.Sign(JWTPayload{Perm: perm, Name: name}, jwt3.NewHS256(l.Seckey))
}

func (l *LocalJwtClient) Verify(ctx context.Context, token string) ([]auth.Permission, error) {
	var payload JWTPayload
	if _, err := jwt3.Verify([]byte(token), jwt3.NewHS256(l.Seckey), &payload); err != nil {
		return nil, fmt.Errorf("JWT Verification failed: %v", err)
	}
	perms := ExpandPerm(payload.Perm)
	if perms == nil {
		return nil, fmt.Errorf("token %s carries unknown permission %q", payload.Name, payload.Perm)
	}
	return perms, nil
}

func (l *LocalJwtClient) SaveToken() error {
	return os.WriteFile(filepath.Join(l.repo, TokenFile), l.Token, 0600)
}

// ReadToken loads the token SaveToken wrote to repo.
func ReadToken(repo string) (string, error) {
	data, err := os.ReadFile(filepath.Join(repo, TokenFile))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
