package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/etherlabsio/healthcheck/v2"
	"github.com/filecoin-project/go-jsonrpc"
	"github.com/gorilla/mux"
	"github.com/ipfs-force-community/metrics"
	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/urfave/cli/v2"
	"go.opencensus.io/plugin/ochttp"

	"github.com/ipfs-force-community/sophon-connect/api"
	"github.com/ipfs-force-community/sophon-connect/client"
	"github.com/ipfs-force-community/sophon-connect/cmds"
	"github.com/ipfs-force-community/sophon-connect/config"
	connectMetrics "github.com/ipfs-force-community/sophon-connect/metrics"
	"github.com/ipfs-force-community/sophon-connect/platform"
	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/utils"
	"github.com/ipfs-force-community/sophon-connect/version"
)

var log = logging.Logger("main")

func main() {
	_ = logging.SetLogLevel("*", "INFO")

	app := &cli.App{
		Name:  "sophon-connect",
		Usage: "sophon-connect keeps a dapp's wallet connection across pairing, redirect and deep-link wallets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "repo",
				Usage:   "repo directory holding config, token and datastore",
				EnvVars: []string{"SOPHON_CONNECT_REPO"},
				Value:   "~/.sophon-connect",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "host address and port the api listens on; overrides the config file",
			},
		},
		Commands: []*cli.Command{
			runCmd, cmds.ConnectCmd, cmds.DisconnectCmd, cmds.StatusCmd, cmds.RequestCmds,
			cmds.SessionCmds, cmds.DeeplinkCmd, cmds.WalletCmds, cmds.ChainCmds, cmds.EventsCmd,
		},
	}
	app.Version = version.UserVersion
	if err := app.Run(os.Args); err != nil {
		log.Warn(err)
		os.Exit(1)
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "start sophon-connect daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "jaeger-proxy", EnvVars: []string{"SOPHON_CONNECT_JAEGER_PROXY"}},
		&cli.Float64Flag{Name: "trace-sampler", EnvVars: []string{"SOPHON_CONNECT_TRACE_SAMPLER"}, Value: 1.0},
		&cli.StringFlag{Name: "trace-node-name", Value: "sophon-connect"},
		&cli.StringFlag{Name: "relay-url", Usage: "pairing relay websocket url"},
		&cli.StringFlag{Name: "project-id", Usage: "relay project id"},
	},
	Action: func(cctx *cli.Context) error {
		repo, err := cmds.RepoPath(cctx)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(repo)
		if err != nil {
			return err
		}

		if cctx.IsSet("listen") {
			cfg.API.ListenAddress = cctx.String("listen")
		}
		if cctx.IsSet("relay-url") {
			cfg.Providers.RelayURL = cctx.String("relay-url")
		}
		if cctx.IsSet("project-id") {
			cfg.Project.ProjectID = cctx.String("project-id")
		}
		if proxy := strings.TrimSpace(cctx.String("jaeger-proxy")); len(proxy) != 0 {
			cfg.Trace.JaegerTracingEnabled = true
			cfg.Trace.JaegerEndpoint = proxy
			cfg.Trace.ProbabilitySampler = cctx.Float64("trace-sampler")
			cfg.Trace.ServerName = strings.TrimSpace(cctx.String("trace-node-name"))
		}

		return RunMain(cctx.Context, repo, cfg)
	},
}

// loadConfig reads the repo config, writing the defaults on first run.
func loadConfig(repo string) (*config.Config, error) {
	if err := os.MkdirAll(repo, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(repo, config.ConfigFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		log.Infof("init config at %s", path)
		return cfg, config.WriteConfig(path, cfg)
	}
	return config.ReadConfig(path)
}

func RunMain(ctx context.Context, repo string, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Infof("sophon-connect current version %s, listen %s", version.UserVersion, cfg.API.ListenAddress)

	ds, err := storage.OpenLevelDB(repo)
	if err != nil {
		return err
	}
	defer ds.Close() //nolint:errcheck

	connectClient, err := client.New(ctx, cfg,
		client.WithDatastore(ds),
		client.WithOpener(&platform.LogOpener{}),
	)
	if err != nil {
		return err
	}

	if err := connectMetrics.SetupMetrics(ctx, cfg.Metrics, connectClient); err != nil {
		return err
	}

	connectAPIImpl := api.NewConnectAPIImpl(connectClient)

	log.Info("Setting up control endpoint at " + cfg.API.ListenAddress)

	var connectAPI api.ConnectAPIStruct
	api.PermissionProxy(connectAPIImpl, &connectAPI)

	rpcServer := jsonrpc.NewServer()
	rpcServer.Register(api.Namespace, &connectAPI)

	localJwt, err := utils.NewLocalJwtClient(repo)
	if err != nil {
		return fmt.Errorf("make token failed:%s", err.Error())
	}
	err = localJwt.SaveToken()
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.Handle("/rpc/v0", &AuthHandler{Verify: localJwt.Verify, Next: rpcServer.ServeHTTP})
	router.Handle("/callback", api.NewCallbackHandler(connectAPIImpl, logging.Logger("callback").With("route", "/callback")))
	router.Handle("/healthcheck", healthcheck.Handler(
		healthcheck.WithTimeout(5*time.Second),
		healthcheck.WithChecker("datastore", healthcheck.CheckerFunc(func(ctx context.Context) error {
			_, err := storage.NewAccountStore(ds).Load(ctx)
			return err
		})),
	))
	router.PathPrefix("/").Handler(http.DefaultServeMux)

	handler := (http.Handler)(router)

	if tp, err := metrics.SetupJaegerTracing(cfg.Trace.ServerName, cfg.Trace); err != nil {
		log.Fatalf("setup jaeger tracing for %s at %s failed:%s", cfg.Trace.ServerName, cfg.Trace.JaegerEndpoint, err)
	} else if tp != nil {
		log.Infof("jaeger tracing to %s, node name %s", cfg.Trace.JaegerEndpoint, cfg.Trace.ServerName)
		defer func() {
			if err := metrics.ShutdownJaeger(context.Background(), tp); err != nil {
				log.Warnf("shutdown jaeger: %v", err)
			}
		}()
		handler = &ochttp.Handler{Handler: handler}
	}

	srv := &http.Server{Handler: handler}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Warnw("received shutdown", "signal", sig)
		case <-ctx.Done():
			log.Warn("received shutdown")
		}

		log.Info("Shutting down...")
		connectMetrics.ApiState.Set(ctx, 0)
		if err := srv.Shutdown(context.TODO()); err != nil {
			log.Errorf("shutting down RPC server failed: %s", err)
		}
	}()

	addr, err := multiaddr.NewMultiaddr(cfg.API.ListenAddress)
	if err != nil {
		return err
	}

	nl, err := manet.Listen(addr)
	if err != nil {
		return err
	}

	log.Infof("start to rpc listen %s", nl.Addr())
	connectMetrics.ApiState.Set(ctx, 1)
	if err = srv.Serve(manet.NetListener(nl)); err != nil && err != http.ErrServerClosed {
		return err
	}

	log.Info("Graceful shutdown successful")
	return nil
}
