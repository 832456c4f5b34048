package cmds

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/urfave/cli/v2"

	"github.com/ipfs-force-community/sophon-connect/api"
	"github.com/ipfs-force-community/sophon-connect/config"
	"github.com/ipfs-force-community/sophon-connect/utils"
)

// RepoPath expands the --repo flag.
func RepoPath(cctx *cli.Context) (string, error) {
	repo := cctx.String("repo")
	if strings.HasPrefix(repo, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		repo = filepath.Join(home, strings.TrimPrefix(repo, "~"))
	}
	return repo, nil
}

func NewConnectClient(cctx *cli.Context) (api.IConnectAPI, jsonrpc.ClientCloser, error) {
	repo, err := RepoPath(cctx)
	if err != nil {
		return nil, nil, err
	}

	listen := cctx.String("listen")
	if listen == "" {
		cfg, err := config.ReadConfig(filepath.Join(repo, config.ConfigFile))
		if err != nil {
			return nil, nil, fmt.Errorf("read config, is the daemon initialized: %w", err)
		}
		listen = cfg.API.ListenAddress
	}
	addr, err := DialArgs(listen)
	if err != nil {
		return nil, nil, err
	}

	// loopback callers may go without a token
	token, err := utils.ReadToken(repo)
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, err
	}

	return api.NewConnectClient(cctx.Context, addr, token)
}

func DialArgs(addr string) (string, error) {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err == nil {
		_, addr, err := manet.DialArgs(ma)
		if err != nil {
			return "", err
		}

		return "ws://" + addr + "/rpc/v0", nil
	}

	_, err = url.Parse(addr)
	if err != nil {
		return "", err
	}
	return addr + "/rpc/v0", nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
