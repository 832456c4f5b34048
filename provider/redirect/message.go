package redirect

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/ipfs-force-community/sophon-connect/ethutil"
	"github.com/ipfs-force-community/sophon-connect/provider"
	"github.com/ipfs-force-community/sophon-connect/types"
)

// PayloadQueryKey carries the base64url encoded Message in both directions.
const PayloadQueryKey = "p"

const (
	protocolVersion = "1.0"
	chainEth        = "eth"
)

// Message is the envelope exchanged with the wallet app. Outbound messages carry a
// handshake or a request; inbound ones carry a response to UUID of an earlier message.
type Message struct {
	UUID      string  `json:"uuid"`
	SessionID string  `json:"sessionId"`
	Sender    string  `json:"sender"`
	Version   string  `json:"version"`
	Timestamp int64   `json:"timestamp"`
	Content   Content `json:"content"`
}

type Content struct {
	Handshake *HandshakeContent `json:"handshake,omitempty"`
	Request   *RequestContent   `json:"request,omitempty"`
	Response  *ResponseContent  `json:"response,omitempty"`
}

type HandshakeContent struct {
	AppID          string   `json:"appId"`
	Callback       string   `json:"callback"`
	InitialActions []Action `json:"initialActions"`
}

type RequestContent struct {
	Actions []Action    `json:"actions"`
	Account *EthAccount `json:"account,omitempty"`
}

// ResponseContent answers RequestID. Failure is set when the whole message was refused,
// Values holds one result per action otherwise.
type ResponseContent struct {
	RequestID string          `json:"requestId"`
	Values    []ActionResult  `json:"values,omitempty"`
	Failure   *types.RPCError `json:"failure,omitempty"`
}

type Action struct {
	Method     string `json:"method"`
	ParamsJSON string `json:"paramsJson"`
	Optional   bool   `json:"optional,omitempty"`
}

type ActionResult struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *types.RPCError `json:"error,omitempty"`
}

// EthAccount is the account shape the wallet returns from eth_requestAccounts.
type EthAccount struct {
	Chain     string `json:"chain"`
	NetworkID int64  `json:"networkId"`
	Address   string `json:"address"`
}

// Account maps the wallet account onto a CAIP account. Only the eth chain family is known.
func (a *EthAccount) Account() (*types.Account, error) {
	if a.Chain != chainEth {
		return nil, errors.Wrapf(types.ErrMalformedResponse, "unknown chain %q", a.Chain)
	}
	if !ethutil.IsAddress(a.Address) {
		return nil, errors.Wrapf(types.ErrMalformedResponse, "invalid address %q", a.Address)
	}
	chain := types.NewChainID(types.NamespaceEIP155, strconv.FormatInt(a.NetworkID, 10))
	return types.NewAccount(a.Address, chain), nil
}

func ethAccount(account *types.Account) (*EthAccount, error) {
	if account.Chain.Namespace != types.NamespaceEIP155 {
		return nil, errors.Wrapf(types.ErrNotImplemented, "namespace %s", account.Chain.Namespace)
	}
	networkID, err := strconv.ParseInt(account.Chain.Reference, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(types.ErrMalformedResponse, "chain reference %q", account.Chain.Reference)
	}
	return &EthAccount{Chain: chainEth, NetworkID: networkID, Address: account.Address}, nil
}

func newMessage(id, sessionID, sender string, content Content) *Message {
	return &Message{
		UUID:      id,
		SessionID: sessionID,
		Sender:    sender,
		Version:   protocolVersion,
		Timestamp: time.Now().Unix(),
		Content:   content,
	}
}

// EncodeURL appends msg to base as the p query parameter.
func EncodeURL(base string, msg *Message) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set(PayloadQueryKey, base64.RawURLEncoding.EncodeToString(data))
	u.RawQuery = q.Encode()
	return u, nil
}

// DecodeURL extracts the Message carried by u.
func DecodeURL(u *url.URL) (*Message, error) {
	raw := u.Query().Get(PayloadQueryKey)
	if raw == "" {
		return nil, errors.Wrap(types.ErrMalformedResponse, "missing payload")
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, errors.Wrap(types.ErrMalformedResponse, err.Error())
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(types.ErrMalformedResponse, err.Error())
	}
	return &msg, nil
}

// toResponse flattens the first action result. A response without values or failure is
// treated as an empty response error.
func (c *ResponseContent) toResponse() *types.Response {
	resp := &types.Response{ID: c.RequestID}
	switch {
	case c.Failure != nil:
		resp.Error = c.Failure
	case len(c.Values) == 0:
		resp.Error = &types.RPCError{Code: types.CodeEmptyResponse, Message: "Empty response"}
	case c.Values[0].Error != nil:
		resp.Error = c.Values[0].Error
	default:
		resp.Result = c.Values[0].Result
	}
	return resp
}

// toAction encodes req as a wallet action. Only methods the wallet app understands are
// mapped; the rest are rejected.
func toAction(req *types.Request, address, message string) (Action, error) {
	var params interface{}
	switch req.Method {
	case types.MethodPersonalSign:
		params = map[string]string{"address": address, "message": message}
	case types.MethodSignTypedDataV4:
		params = map[string]string{"address": address, "typedDataJson": message}
	case types.MethodSendTransaction, types.MethodSwitchChain, types.MethodAddChain:
		var list []json.RawMessage
		if err := json.Unmarshal(req.Params, &list); err != nil || len(list) == 0 {
			return Action{}, errors.Errorf("%s expects a params array", req.Method)
		}
		params = list[0]
	default:
		return Action{}, provider.Unsupported(types.ProviderRedirectHandshake, req.Method)
	}
	data, err := json.Marshal(params)
	if err != nil {
		return Action{}, err
	}
	return Action{Method: req.Method, ParamsJSON: string(data)}, nil
}
