package cmds

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ipfs-force-community/sophon-connect/types"
)

var ChainCmds = &cli.Command{
	Name:        "chain",
	Usage:       "chain selection cmds",
	Subcommands: []*cli.Command{listChainCmd, currentChainCmd, selectChainCmd, addChainCmd},
}

var listChainCmd = &cli.Command{
	Name: "list",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		presets, err := api.ChainPresets(cctx.Context)
		if err != nil {
			return err
		}
		for _, p := range presets {
			fmt.Printf("%s\t%s\t%s\n", p.ChainID.String(), p.Name, p.Token)
		}
		return nil
	},
}

var currentChainCmd = &cli.Command{
	Name: "current",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		preset, err := api.SelectedChain(cctx.Context)
		if err != nil {
			return err
		}
		if preset == nil {
			fmt.Println("none")
			return nil
		}
		return printJSON(preset)
	},
}

var selectChainCmd = &cli.Command{
	Name:      "select",
	ArgsUsage: "<namespace:reference>",
	Action: func(cctx *cli.Context) error {
		chain, err := types.ParseChainID(cctx.Args().First())
		if err != nil {
			return err
		}
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return api.SelectChain(cctx.Context, chain)
	},
}

var addChainCmd = &cli.Command{
	Name:      "add",
	ArgsUsage: "<namespace:reference>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Required: true},
		&cli.StringFlag{Name: "token"},
		&cli.StringFlag{Name: "rpc-url"},
		&cli.StringFlag{Name: "explorer-url"},
		&cli.StringFlag{Name: "image-id"},
	},
	Action: func(cctx *cli.Context) error {
		chain, err := types.ParseChainID(cctx.Args().First())
		if err != nil {
			return err
		}
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return api.AddChainPreset(cctx.Context, types.ChainPreset{
			ChainID:     chain,
			Name:        cctx.String("name"),
			Token:       cctx.String("token"),
			RPCURL:      cctx.String("rpc-url"),
			ExplorerURL: cctx.String("explorer-url"),
			ImageID:     cctx.String("image-id"),
		})
	},
}
