package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipfs-force-community/sophon-connect/types"
)

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()

	cfgPath := filepath.Join(t.TempDir(), ConfigFile)
	assert.NoError(t, WriteConfig(cfgPath, cfg))

	res, err := ReadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Providers, res.Providers)
	assert.Equal(t, cfg.Request, res.Request)
	assert.Equal(t, cfg.API, res.API)
	assert.Equal(t, cfg.Metrics, res.Metrics)
	assert.Equal(t, cfg.Project.Metadata(), res.Project.Metadata())
	assert.Equal(t, cfg.NamespaceMap(), res.NamespaceMap())
}

func TestReadPartialConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), ConfigFile)
	data := `
[Project]
ProjectID = "abc"
UniversalRedirect = "https://dapp.example/cb"

[Request]
RequestTimeout = "30s"

[[Wallets.Custom]]
ID = "mine"
Name = "My Wallet"
Order = 2
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(data), 0644))

	cfg, err := ReadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Project.ProjectID)
	assert.Equal(t, "https://dapp.example/cb", cfg.Project.Metadata().Redirect.Universal)
	assert.Equal(t, 30*time.Second, cfg.Request.RequestTimeout)

	wallets := cfg.CustomWallets()
	require.Len(t, wallets, 1)
	assert.Equal(t, types.Wallet{ID: "mine", Name: "My Wallet", Order: 2}, wallets[0])
}
