package integrate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/stretchr/testify/require"

	"github.com/ipfs-force-community/sophon-connect/api"
	"github.com/ipfs-force-community/sophon-connect/client"
	"github.com/ipfs-force-community/sophon-connect/config"
	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/testhelper"
	"github.com/ipfs-force-community/sophon-connect/types"
	"github.com/ipfs-force-community/sophon-connect/utils"
	"github.com/ipfs-force-community/sophon-connect/version"
)

var log = logging.Logger("mock main")

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Project.UniversalRedirect = "https://dapp.example/cb"
	cfg.Providers.RedirectWalletURL = "https://wallet.example/wsegue"
	cfg.Providers.DeepLinkACallback = "dapp-a://callback"
	cfg.Providers.DeepLinkBCallback = "dapp://mmsdk"
	cfg.Wallets.InstalledSchemes = []string{"cbwallet", "phantom", "metamask"}
	cfg.Request = &types.RequestConfig{
		RequestQueueSize: 16,
		RequestTimeout:   2 * time.Second,
		ConnectTimeout:   2 * time.Second,
		ClearInterval:    20 * time.Millisecond,
		PendingTTL:       time.Hour,
	}
	return cfg
}

// wallets plays the phone: every app wallet the daemon opens answers through it.
type wallets struct {
	pairing  *testhelper.PairingWallet
	redirect *testhelper.AppWallet
	deeplink *testhelper.AppWallet

	lk       sync.Mutex
	launched []*url.URL
}

func (w *wallets) Open(ctx context.Context, u *url.URL) (*url.URL, error) {
	switch u.Scheme {
	case "https":
		return w.redirect.Open(ctx, u)
	case "phantom", "metamask":
		return w.deeplink.Open(ctx, u)
	}
	w.lk.Lock()
	w.launched = append(w.launched, u)
	w.lk.Unlock()
	return nil, nil
}

type daemon struct {
	url     string
	wsURL   string
	token   string
	jwt     *utils.LocalJwtClient
	wallets *wallets
}

func MockMain(ctx context.Context, t *testing.T, cfg *config.Config) *daemon {
	hub := testhelper.NewRelayHub()
	pairingWallet, err := testhelper.NewPairingWallet(hub)
	require.NoError(t, err)
	go pairingWallet.Run(ctx)
	redirectWallet, err := testhelper.NewRedirectWallet()
	require.NoError(t, err)
	deeplinkWallet, err := testhelper.NewDeepLinkWallet()
	require.NoError(t, err)
	w := &wallets{pairing: pairingWallet, redirect: redirectWallet, deeplink: deeplinkWallet}

	connectClient, err := client.New(ctx, cfg,
		client.WithRelay(hub.NewRelay()),
		client.WithDatastore(storage.NewMemory()),
		client.WithOpener(w),
	)
	require.NoError(t, err)

	connectAPIImpl := api.NewConnectAPIImpl(connectClient)
	log.Infof("sophon-connect current version %s", version.UserVersion)

	var connectAPI api.ConnectAPIStruct
	api.PermissionProxy(connectAPIImpl, &connectAPI)

	rpcServer := jsonrpc.NewServer()
	rpcServer.Register(api.Namespace, &connectAPI)

	localJwt, err := utils.NewLocalJwtClient(t.TempDir())
	require.NoError(t, err)

	router := mux.NewRouter()
	router.Handle("/rpc/v0", &auth.Handler{Verify: localJwt.Verify, Next: rpcServer.ServeHTTP})
	router.Handle("/callback", api.NewCallbackHandler(connectAPIImpl, logging.Logger("callback").With("route", "/callback")))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &daemon{
		url:     srv.URL,
		wsURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/rpc/v0",
		token:   string(localJwt.Token),
		jwt:     localJwt,
		wallets: w,
	}
}

func (d *daemon) dial(ctx context.Context, t *testing.T, token string) api.IConnectAPI {
	c, closer, err := api.NewConnectClient(ctx, d.wsURL, token)
	require.NoError(t, err)
	t.Cleanup(closer)
	return c
}

// relaunch posts every queued wallet reply to the callback route.
func (d *daemon) relaunch(t *testing.T, wallet *testhelper.AppWallet) {
	for _, reply := range wallet.Replies() {
		resp, err := http.Get(d.url + "/callback?url=" + url.QueryEscape(reply.String()))
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode, reply.String())
	}
}
