package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ipfs-force-community/sophon-connect/types"
)

var RequestCmds = &cli.Command{
	Name:        "request",
	Usage:       "send a request to the connected wallet",
	Subcommands: []*cli.Command{personalSignCmd, typedDataCmd, rawRequestCmd},
}

var personalSignCmd = &cli.Command{
	Name:      "personal-sign",
	ArgsUsage: "<message>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("expect one message")
		}
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		sig, err := api.PersonalSign(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(sig)
		return nil
	},
}

var typedDataCmd = &cli.Command{
	Name:      "typed-data",
	ArgsUsage: "<typed-data-json>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("expect typed data json")
		}
		if !json.Valid([]byte(cctx.Args().First())) {
			return fmt.Errorf("typed data is not valid json")
		}
		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		sig, err := api.SignTypedData(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(sig)
		return nil
	},
}

var rawRequestCmd = &cli.Command{
	Name:      "raw",
	Usage:     "pass a method and json params through unchanged",
	ArgsUsage: "<method> [params-json]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() < 1 {
			return fmt.Errorf("expect method")
		}
		req := &types.Request{Method: cctx.Args().First()}
		if params := cctx.Args().Get(1); params != "" {
			if !json.Valid([]byte(params)) {
				return fmt.Errorf("params is not valid json")
			}
			req.Params = json.RawMessage(params)
		}

		api, closer, err := NewConnectClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		resp, err := api.Request(cctx.Context, req)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}
