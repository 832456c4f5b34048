package api

import (
	"context"
	"net/http"

	"github.com/filecoin-project/go-jsonrpc"
)

// Namespace is the json-rpc namespace the daemon registers its API under.
const Namespace = "Connect"

// NewConnectClient dials the daemon. Events needs a websocket address.
func NewConnectClient(ctx context.Context, addr string, token string) (IConnectAPI, jsonrpc.ClientCloser, error) {
	header := http.Header{}
	if len(token) > 0 {
		header.Add("Authorization", "Bearer "+token)
	}

	res := &ConnectAPIStruct{}
	closer, err := jsonrpc.NewMergeClient(ctx, addr, Namespace, []interface{}{&res.Internal}, header)
	if err != nil {
		return nil, nil, err
	}
	return res, closer, nil
}
