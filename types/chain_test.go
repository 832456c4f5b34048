package types

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseChainID(t *testing.T) {
	id, err := ParseChainID("eip155:137")
	require.NoError(t, err)
	require.Equal(t, NewChainID("eip155", "137"), id)
	require.Equal(t, "eip155:137", id.String())

	for _, bad := range []string{"", "eip155", ":1", "eip155:"} {
		_, err := ParseChainID(bad)
		require.Error(t, err, bad)
	}
}

func TestChainRegistry(t *testing.T) {
	t.Run("lookup miss is nil", func(t *testing.T) {
		r := NewChainRegistry(ChainPreset{ChainID: NewChainID(NamespaceEIP155, "1"), Name: "Ethereum"})
		require.Nil(t, r.Lookup(NewChainID(NamespaceEIP155, "137")))

		hit := r.Lookup(NewChainID(NamespaceEIP155, "1"))
		require.NotNil(t, hit)
		require.Equal(t, "Ethereum", hit.Name)
	})

	t.Run("concurrent append", func(t *testing.T) {
		r := NewChainRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r.Add(ChainPreset{ChainID: NewChainID(NamespaceEIP155, fmt.Sprint(i))})
				_ = r.Lookup(NewChainID(NamespaceEIP155, "0"))
			}(i)
		}
		wg.Wait()
		require.Len(t, r.All(), 50)
	})

	t.Run("defaults", func(t *testing.T) {
		r := NewDefaultChainRegistry()
		require.NotNil(t, r.Lookup(SolanaMainnet))
		require.NotEmpty(t, r.Namespace(NamespaceEIP155))
	})
}

func TestAccount(t *testing.T) {
	acc, err := ParseCAIP10("eip155:1:0xab16a96D359eC26a11e2C2b3d8f8B8942d5Bfcdb")
	require.NoError(t, err)
	require.Equal(t, "0xab16a96D359eC26a11e2C2b3d8f8B8942d5Bfcdb", acc.Address)
	require.Equal(t, NewChainID("eip155", "1"), acc.Chain)
	require.Equal(t, "eip155:1:0xab16a96D359eC26a11e2C2b3d8f8B8942d5Bfcdb", acc.CAIP10())

	switched := acc.WithChain(NewChainID("eip155", "10"))
	require.False(t, switched.Equal(acc))
	require.Equal(t, "1", acc.Chain.Reference)

	_, err = ParseCAIP10("eip155:1")
	require.Error(t, err)
}

func TestErrorFromCode(t *testing.T) {
	err := ErrorFromCode(CodeUserRejected, "")
	require.ErrorIs(t, err, ErrUserRejected)
	require.ErrorIs(t, ErrorFromCode(CodeMethodNotFound, "nope"), ErrNotImplemented)
	require.ErrorIs(t, ErrorFromCode(CodeDisconnected, "gone"), ErrNoActiveSession)

	rpcErr := ToRPCError(ErrTimeout)
	require.Equal(t, CodeRequestExpired, rpcErr.Code)
	require.ErrorIs(t, rpcErr, ErrTimeout)
}

func TestSessionFirstAccount(t *testing.T) {
	s := &Session{Namespaces: map[string]Namespace{
		NamespaceSolana: {Accounts: []string{"solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp:abc"}},
		NamespaceEIP155: {Accounts: []string{"eip155:1:0x01", "eip155:10:0x01"}},
	}}
	first := s.FirstAccount()
	require.NotNil(t, first)
	require.Equal(t, "eip155:1:0x01", first.CAIP10())
	require.Len(t, s.Accounts(), 3)
}
