package cmds

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ipfs-force-community/sophon-connect/provider/pairing"
	"github.com/ipfs-force-community/sophon-connect/types"
)

var ConnectCmd = &cli.Command{
	Name:      "connect",
	Usage:     "start a wallet connection and wait for the wallet to answer",
	ArgsUsage: "[wallet-id]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "provider",
			Usage: "pairing, redirect, deeplink-a or deeplink-b",
			Value: types.ProviderPairingSession.String(),
		},
		&cli.BoolFlag{
			Name:  "qr",
			Usage: "render the pairing uri as a terminal qr code",
		},
		&cli.BoolFlag{
			Name:  "no-wait",
			Usage: "return once the handshake is started",
		},
	},
	Action: func(cctx *cli.Context) error {
		kind, err := types.ParseProviderKind(cctx.String("provider"))
		if err != nil {
			return err
		}
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		info, err := api.Connect(cctx.Context, kind, cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(info.URI)
		if kind == types.ProviderPairingSession && cctx.Bool("qr") {
			uri, err := pairing.ParseURI(info.URI)
			if err != nil {
				return err
			}
			qr, err := uri.QRText()
			if err != nil {
				return err
			}
			fmt.Println(qr)
		}
		if cctx.Bool("no-wait") {
			return nil
		}

		account, err := api.AwaitConnect(cctx.Context)
		if err != nil {
			return err
		}
		fmt.Printf("connected %s over %s\n", account.CAIP10(), kind)
		return nil
	},
}

var DisconnectCmd = &cli.Command{
	Name:  "disconnect",
	Usage: "drop the active connection",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return api.Disconnect(cctx.Context)
	},
}

var StatusCmd = &cli.Command{
	Name:  "status",
	Usage: "print the connection state",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		st, err := api.State(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(st)
	},
}

var DeeplinkCmd = &cli.Command{
	Name:      "deeplink",
	Usage:     "feed an inbound wallet url to the daemon",
	ArgsUsage: "<url>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("expect one url")
		}
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		handled, err := api.HandleDeeplink(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}
		if !handled {
			return fmt.Errorf("url not recognised")
		}
		fmt.Println("handled")
		return nil
	},
}

var EventsCmd = &cli.Command{
	Name:  "events",
	Usage: "tail the connection event stream",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		events, err := api.Events(cctx.Context)
		if err != nil {
			return err
		}
		for evt := range events {
			if err := printJSON(evt); err != nil {
				return err
			}
		}
		return nil
	},
}

var SessionCmds = &cli.Command{
	Name:        "session",
	Usage:       "pairing session cmds",
	Subcommands: []*cli.Command{listSessionsCmd, listPairingsCmd, pingCmd, cleanupCmd},
}

var listSessionsCmd = &cli.Command{
	Name: "list",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		sessions, err := api.Sessions(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(sessions)
	},
}

var listPairingsCmd = &cli.Command{
	Name: "pairings",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		pairings, err := api.Pairings(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(pairings)
	},
}

var pingCmd = &cli.Command{
	Name:  "ping",
	Usage: "round-trip the active pairing session",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return api.Ping(cctx.Context)
	},
}

var cleanupCmd = &cli.Command{
	Name:  "cleanup",
	Usage: "delete every session and pairing",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return api.Cleanup(cctx.Context)
	},
}
