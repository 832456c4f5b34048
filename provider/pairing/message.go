package pairing

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/atomic"

	"github.com/ipfs-force-community/sophon-connect/types"
)

const (
	MethodSessionPropose = "wc_sessionPropose"
	MethodSessionSettle  = "wc_sessionSettle"
	MethodSessionRequest = "wc_sessionRequest"
	MethodSessionUpdate  = "wc_sessionUpdate"
	MethodSessionEvent   = "wc_sessionEvent"
	MethodSessionDelete  = "wc_sessionDelete"
	MethodSessionPing    = "wc_sessionPing"
	MethodPairingDelete  = "wc_pairingDelete"
	MethodPairingPing    = "wc_pairingPing"
)

const jsonrpcVersion = "2.0"

var idCounter = atomic.NewInt64(time.Now().UnixMilli() * 1000)

func nextID() int64 {
	return idCounter.Inc()
}

type rpcRequest struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID      int64           `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *types.RPCError `json:"error,omitempty"`
}

func newRequest(method string, params interface{}) (*rpcRequest, error) {
	req := &rpcRequest{ID: nextID(), JSONRPC: jsonrpcVersion, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	return req, nil
}

func newResult(id int64, result interface{}) (*rpcResponse, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &rpcResponse{ID: id, JSONRPC: jsonrpcVersion, Result: raw}, nil
}

func newError(id int64, code int, message string) *rpcResponse {
	return &rpcResponse{ID: id, JSONRPC: jsonrpcVersion, Error: &types.RPCError{Code: code, Message: message}}
}

func correlationID(id int64) string {
	return strconv.FormatInt(id, 10)
}

type relayProtocolOption struct {
	Protocol string `json:"protocol"`
}

type proposeParams struct {
	Proposer           types.AppMetadata          `json:"proposer"`
	RequiredNamespaces map[string]types.Namespace `json:"requiredNamespaces"`
	Relays             []relayProtocolOption      `json:"relays"`
}

// proposeResult names the session topic the wallet will settle on.
type proposeResult struct {
	SessionTopic string `json:"sessionTopic"`
	SymKey       string `json:"symKey"`
}

type settleParams struct {
	Peer       types.AppMetadata          `json:"controller"`
	Namespaces map[string]types.Namespace `json:"namespaces"`
	Expiry     int64                      `json:"expiry"`
}

type sessionRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type sessionRequestParams struct {
	Request sessionRequest `json:"request"`
	ChainID string         `json:"chainId"`
}

type sessionEvent struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

type sessionEventParams struct {
	Event   sessionEvent `json:"event"`
	ChainID string       `json:"chainId"`
}

type updateParams struct {
	Namespaces map[string]types.Namespace `json:"namespaces"`
}

type deleteParams struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type payloadKind int

const (
	payloadInvalid payloadKind = iota
	payloadRequest
	payloadResponse
)

// classify tells wallet requests from replies to our own requests.
func classify(payload []byte) payloadKind {
	if !gjson.ValidBytes(payload) {
		return payloadInvalid
	}
	if gjson.GetBytes(payload, "method").Exists() {
		return payloadRequest
	}
	if !gjson.GetBytes(payload, "id").Exists() {
		return payloadInvalid
	}
	if gjson.GetBytes(payload, "result").Exists() || gjson.GetBytes(payload, "error").Exists() {
		return payloadResponse
	}
	return payloadInvalid
}
