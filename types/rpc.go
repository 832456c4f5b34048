package types

import (
	"encoding/json"
)

const (
	MethodPersonalSign       = "personal_sign"
	MethodSignTypedDataV4    = "eth_signTypedData_v4"
	MethodSendTransaction    = "eth_sendTransaction"
	MethodSwitchChain        = "wallet_switchEthereumChain"
	MethodAddChain           = "wallet_addEthereumChain"
	MethodRequestAccounts    = "eth_requestAccounts"
	MethodSolanaSignMessage  = "solana_signMessage"
	MethodSolanaSignTransact = "solana_signTransaction"
)

// Request is a generic outbound call. Address and Message are kept apart from Params
// so each transport can order them the way its wallets expect.
type Request struct {
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Address string          `json:"address,omitempty"`
	Message string          `json:"message,omitempty"`
}

func NewPersonalSign(address, message string) *Request {
	return &Request{Method: MethodPersonalSign, Address: address, Message: message}
}

func NewSignTypedDataV4(address, typedData string) *Request {
	return &Request{Method: MethodSignTypedDataV4, Address: address, Message: typedData}
}

// NewRequest builds a passthrough request. params must be JSON serialisable.
func NewRequest(method string, params interface{}) (*Request, error) {
	req := &Request{Method: method}
	if params == nil {
		return req, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req.Params = raw
	return req, nil
}

// IsSigning reports whether the call carries the address/message pair.
func (r *Request) IsSigning() bool {
	return r.Method == MethodPersonalSign || r.Method == MethodSignTypedDataV4
}

// Response is the unified reply emitted on the merged stream regardless of transport.
type Response struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic,omitempty"`
	ChainID string          `json:"chainId,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// StringResult decodes a string result, the common case for signatures and tx hashes.
func (r *Response) StringResult() (string, error) {
	if r.Error != nil {
		return "", r.Error
	}
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return "", err
	}
	return s, nil
}
