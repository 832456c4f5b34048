package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipfs-force-community/sophon-connect/types"
)

func TestPairingParams(t *testing.T) {
	raw, err := PairingParams(types.NewPersonalSign("0xA", "hello"))
	require.NoError(t, err)
	require.JSONEq(t, `["hello","0xA"]`, string(raw))

	raw, err = PairingParams(types.NewSignTypedDataV4("0xA", "hello"))
	require.NoError(t, err)
	require.JSONEq(t, `["0xA","hello"]`, string(raw))

	params := []interface{}{map[string]string{"from": "0xA", "to": "0xB"}}
	req, err := types.NewRequest(types.MethodSendTransaction, params)
	require.NoError(t, err)
	raw, err = PairingParams(req)
	require.NoError(t, err)
	require.Equal(t, req.Params, raw)

	req, err = types.NewRequest("eth_chainId", nil)
	require.NoError(t, err)
	raw, err = PairingParams(req)
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestPairingParamsFromParamsArray(t *testing.T) {
	req, err := types.NewRequest(types.MethodPersonalSign, []string{"hello", "0xA"})
	require.NoError(t, err)
	raw, err := PairingParams(req)
	require.NoError(t, err)
	require.JSONEq(t, `["hello","0xA"]`, string(raw))

	req, err = types.NewRequest(types.MethodSignTypedDataV4, []string{"0xA", `{"a":1}`})
	require.NoError(t, err)
	raw, err = PairingParams(req)
	require.NoError(t, err)
	require.JSONEq(t, `["0xA","{\"a\":1}"]`, string(raw))

	req, err = types.NewRequest(types.MethodPersonalSign, []string{"hello"})
	require.NoError(t, err)
	_, err = PairingParams(req)
	require.Error(t, err)
}

func TestSigningArgs(t *testing.T) {
	addr, msg, err := SigningArgs(types.NewPersonalSign("0xA", "hello"))
	require.NoError(t, err)
	require.Equal(t, "0xA", addr)
	require.Equal(t, "hello", msg)

	req, err := types.NewRequest(types.MethodPersonalSign, []string{"hello", "0xA"})
	require.NoError(t, err)
	addr, msg, err = SigningArgs(req)
	require.NoError(t, err)
	require.Equal(t, "0xA", addr)
	require.Equal(t, "hello", msg)

	req, err = types.NewRequest(types.MethodSignTypedDataV4, []string{"0xA", "{}"})
	require.NoError(t, err)
	addr, msg, err = SigningArgs(req)
	require.NoError(t, err)
	require.Equal(t, "0xA", addr)
	require.Equal(t, "{}", msg)

	req = &types.Request{Method: types.MethodPersonalSign, Params: json.RawMessage(`[1]`)}
	_, _, err = SigningArgs(req)
	require.Error(t, err)
}

func TestUnsupported(t *testing.T) {
	err := Unsupported(types.ProviderDeepLinkA, "eth_sendTransaction")
	require.ErrorIs(t, err, types.ErrNotImplemented)
	require.Contains(t, err.Error(), "deeplink-a")
}
