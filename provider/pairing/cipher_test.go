package pairing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ipfs-force-community/sophon-connect/types"
)

func TestSealOpen(t *testing.T) {
	key, err := NewSymKey()
	require.NoError(t, err)

	for _, plain := range []string{"", "a", `{"id":1,"jsonrpc":"2.0","method":"wc_sessionPing","params":{}}`, "0123456789abcdef"} {
		sealed, err := Seal(key, []byte(plain))
		require.NoError(t, err)
		opened, err := Open(key, sealed)
		require.NoError(t, err)
		require.Equal(t, plain, string(opened))
	}

	other, err := NewSymKey()
	require.NoError(t, err)
	sealed, err := Seal(key, []byte("secret"))
	require.NoError(t, err)
	_, err = Open(other, sealed)
	require.ErrorIs(t, err, types.ErrMalformedResponse)

	_, err = Seal("short", []byte("x"))
	require.Error(t, err)
}

func TestURI(t *testing.T) {
	key, err := NewSymKey()
	require.NoError(t, err)
	uri := URI{Topic: "abc", SymKey: key, RelayProtocol: relayProtocol}

	parsed, err := ParseURI(uri.String())
	require.NoError(t, err)
	require.Equal(t, uri, parsed)

	png, err := uri.QRCode(128)
	require.NoError(t, err)
	require.NotEmpty(t, png)

	for _, bad := range []string{"http://x", "wc:abc@1?symKey=" + key, "wc:abc@2?symKey=00", "wc:@2?symKey=" + key} {
		_, err := ParseURI(bad)
		require.Error(t, err, bad)
	}
}

func TestClassify(t *testing.T) {
	require.Equal(t, payloadRequest, classify([]byte(`{"id":1,"method":"wc_sessionPing"}`)))
	require.Equal(t, payloadResponse, classify([]byte(`{"id":1,"result":true}`)))
	require.Equal(t, payloadResponse, classify([]byte(`{"id":1,"error":{"code":1}}`)))
	require.Equal(t, payloadInvalid, classify([]byte(`{"id":1}`)))
	require.Equal(t, payloadInvalid, classify([]byte(`nope`)))
}
