package testhelper

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"net/url"
	"path"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/atomic"

	"github.com/ipfs-force-community/sophon-connect/ethutil"
	"github.com/ipfs-force-community/sophon-connect/platform"
	"github.com/ipfs-force-community/sophon-connect/provider"
	"github.com/ipfs-force-community/sophon-connect/provider/deeplink"
	"github.com/ipfs-force-community/sophon-connect/provider/redirect"
	"github.com/ipfs-force-community/sophon-connect/types"
)

var ErrOpenFailed = errors.New("cannot open url")

// AppWallet is a wallet app reached by opening URLs. Every opened URL is answered: with
// Silent set the answer is handed back in-process, otherwise it is queued as the URL the
// OS would relaunch the host app with.
type AppWallet struct {
	key     *ecdsa.PrivateKey
	Address string
	// Chain is reported on connect: decimal network id for the redirect wallet, hex for
	// deep-link wallets.
	Chain string

	Silent       atomic.Bool
	Reject       atomic.Bool
	Ignore       atomic.Bool
	Broken       atomic.Bool
	Empty        atomic.Bool
	ForgeSession atomic.Bool

	answer func(u *url.URL) (*url.URL, error)

	lk      sync.Mutex
	opened  []*url.URL
	replies []*url.URL
}

var _ platform.Opener = (*AppWallet)(nil)

func newAppWallet() (*AppWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &AppWallet{key: key, Address: crypto.PubkeyToAddress(key.PublicKey).Hex()}, nil
}

// NewRedirectWallet answers redirect handshake messages on network 1.
func NewRedirectWallet() (*AppWallet, error) {
	w, err := newAppWallet()
	if err != nil {
		return nil, err
	}
	w.Chain = "1"
	w.answer = w.answerRedirect
	return w, nil
}

// NewDeepLinkWallet answers deep-link actions on chain 0x89.
func NewDeepLinkWallet() (*AppWallet, error) {
	w, err := newAppWallet()
	if err != nil {
		return nil, err
	}
	w.Chain = "0x89"
	w.answer = w.answerDeepLink
	return w, nil
}

func (w *AppWallet) Open(_ context.Context, u *url.URL) (*url.URL, error) {
	w.lk.Lock()
	w.opened = append(w.opened, u)
	w.lk.Unlock()

	if w.Broken.Load() {
		return nil, ErrOpenFailed
	}
	if w.Ignore.Load() {
		return nil, nil
	}
	reply, err := w.answer(u)
	if err != nil || reply == nil {
		return nil, err
	}
	if w.Silent.Load() {
		return reply, nil
	}
	w.lk.Lock()
	w.replies = append(w.replies, reply)
	w.lk.Unlock()
	return nil, nil
}

// Opened lists every URL handed to the wallet.
func (w *AppWallet) Opened() []*url.URL {
	w.lk.Lock()
	defer w.lk.Unlock()
	return append([]*url.URL{}, w.opened...)
}

// Replies drains the queued relaunch URLs.
func (w *AppWallet) Replies() []*url.URL {
	w.lk.Lock()
	defer w.lk.Unlock()
	out := w.replies
	w.replies = nil
	return out
}

func (w *AppWallet) sign(message string) string {
	sig, err := ethutil.SignPersonal(w.key, message)
	if err != nil {
		return ""
	}
	return sig
}

func (w *AppWallet) answerRedirect(u *url.URL) (*url.URL, error) {
	msg, err := redirect.DecodeURL(u)
	if err != nil {
		return nil, err
	}
	content := &redirect.ResponseContent{RequestID: msg.UUID}
	switch {
	case w.Reject.Load():
		content.Failure = &types.RPCError{Code: types.CodeUserRejected, Message: "User rejected"}
	case w.Empty.Load():
	case msg.Content.Handshake != nil:
		var networkID int64
		_ = json.Unmarshal([]byte(w.Chain), &networkID)
		result, _ := json.Marshal(&redirect.EthAccount{Chain: "eth", NetworkID: networkID, Address: w.Address})
		content.Values = []redirect.ActionResult{{Result: result}}
	case msg.Content.Request != nil && len(msg.Content.Request.Actions) > 0:
		action := msg.Content.Request.Actions[0]
		answer := "0x" + action.Method
		if action.Method == types.MethodPersonalSign {
			var params struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal([]byte(action.ParamsJSON), &params)
			answer = w.sign(params.Message)
		}
		result, _ := json.Marshal(answer)
		content.Values = []redirect.ActionResult{{Result: result}}
	}

	sessionID := msg.SessionID
	if w.ForgeSession.Load() {
		sessionID = "forged"
	}
	reply := &redirect.Message{
		UUID:      provider.NewCorrelationID(),
		SessionID: sessionID,
		Sender:    "wallet",
		Version:   msg.Version,
		Content:   redirect.Content{Response: content},
	}
	return redirect.EncodeURL(msg.Sender, reply)
}

func (w *AppWallet) answerDeepLink(u *url.URL) (*url.URL, error) {
	q := u.Query()
	action := path.Base(u.Path)
	if action == "disconnect" {
		return nil, nil
	}
	reply, err := url.Parse(q.Get(deeplink.ParamRedirect))
	if err != nil {
		return nil, err
	}

	out := url.Values{}
	out.Set(deeplink.ParamID, q.Get(deeplink.ParamID))
	switch {
	case w.Reject.Load():
		out.Set(deeplink.ParamErrorCode, "4001")
		out.Set(deeplink.ParamErrorMessage, "User rejected the request.")
	case w.Empty.Load():
	case action == "connect":
		out.Set(deeplink.ParamAddress, w.Address)
		out.Set(deeplink.ParamAccount, w.Address)
		out.Set(deeplink.ParamChainID, w.Chain)
	case action == "signMessage" || action == types.MethodPersonalSign:
		out.Set(deeplink.ParamSignature, w.sign(q.Get(deeplink.ParamMessage)))
	default:
		out.Set(deeplink.ParamSignature, "0x"+action)
	}
	reply.RawQuery = out.Encode()
	return reply, nil
}
