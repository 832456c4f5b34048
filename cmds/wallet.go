package cmds

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var WalletCmds = &cli.Command{
	Name:        "wallet",
	Usage:       "wallet catalog cmds",
	Subcommands: []*cli.Command{listWalletCmd, recentWalletCmd, moreWalletCmd, launchWalletCmd},
}

var listWalletCmd = &cli.Command{
	Name:  "list",
	Usage: "list wallets in display order",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		wallets, err := api.Wallets(cctx.Context)
		if err != nil {
			return err
		}
		for _, w := range wallets {
			fmt.Printf("%s\t%s\t%s\n", w.ID, w.Name, w.Homepage)
		}
		return nil
	},
}

var recentWalletCmd = &cli.Command{
	Name: "recent",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		wallets, err := api.RecentWallets(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(wallets)
	},
}

var moreWalletCmd = &cli.Command{
	Name:  "more",
	Usage: "fetch the next catalog page",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		more, err := api.LoadMoreWallets(cctx.Context)
		if err != nil {
			return err
		}
		fmt.Println("has more:", more)
		return nil
	},
}

var launchWalletCmd = &cli.Command{
	Name:  "launch",
	Usage: "open the connected wallet app",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return api.LaunchCurrentWallet(cctx.Context)
	},
}
