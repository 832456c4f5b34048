package provider

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ipfs-force-community/sophon-connect/storage"
	"github.com/ipfs-force-community/sophon-connect/types"
)

func testRequestConfig() *types.RequestConfig {
	return &types.RequestConfig{
		RequestQueueSize: 8,
		RequestTimeout:   time.Second,
		ConnectTimeout:   time.Second,
		ClearInterval:    10 * time.Millisecond,
		PendingTTL:       time.Hour,
	}
}

func TestPendingResolve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	table := NewPendingTable(ctx, types.ProviderPairingSession, testRequestConfig(), nil)

	id := NewCorrelationID()
	ch, err := table.Register(ctx, id, types.MethodPersonalSign, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	go table.Resolve(ctx, &types.Response{ID: id, Result: json.RawMessage(`"0xsig"`)})
	resp, err := table.Await(ctx, id, ch)
	require.NoError(t, err)
	sig, err := resp.StringResult()
	require.NoError(t, err)
	require.Equal(t, "0xsig", sig)
	require.Equal(t, 0, table.Len())

	// second reply for the same id is unknown
	delivered, rec := table.Resolve(ctx, &types.Response{ID: id})
	require.False(t, delivered)
	require.Nil(t, rec)
}

func TestPendingTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	durable := storage.NewPendingStore(storage.NewMemory())
	table := NewPendingTable(ctx, types.ProviderDeepLinkB, testRequestConfig(), durable)

	id := NewCorrelationID()
	ch, err := table.Register(ctx, id, types.MethodPersonalSign, 20*time.Millisecond, nil)
	require.NoError(t, err)

	_, err = table.Await(ctx, id, ch)
	require.ErrorIs(t, err, types.ErrTimeout)

	// the timed out id cannot produce a second outcome
	delivered, rec := table.Resolve(ctx, &types.Response{ID: id, Result: json.RawMessage(`"late"`)})
	require.False(t, delivered)
	require.Nil(t, rec)
}

func TestPendingSurvivesRestart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ds := storage.NewMemory()

	first := NewPendingTable(ctx, types.ProviderDeepLinkA, testRequestConfig(), storage.NewPendingStore(ds))
	id := NewCorrelationID()
	_, err := first.Register(ctx, id, "connect", time.Minute, map[string]string{"wallet": "a"})
	require.NoError(t, err)

	// a fresh table over the same datastore stands in for the relaunched process
	second := NewPendingTable(ctx, types.ProviderDeepLinkA, testRequestConfig(), storage.NewPendingStore(ds))
	require.True(t, second.Has(ctx, id))

	delivered, rec := second.Resolve(ctx, &types.Response{ID: id})
	require.False(t, delivered)
	require.NotNil(t, rec)
	require.Equal(t, "connect", rec.Method)
	require.JSONEq(t, `{"wallet":"a"}`, string(rec.Payload))
	require.False(t, second.Has(ctx, id))
}

func TestPendingFailAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	table := NewPendingTable(ctx, types.ProviderPairingSession, testRequestConfig(), nil)

	var chans []<-chan *types.Response
	var ids []string
	for i := 0; i < 3; i++ {
		id := NewCorrelationID()
		ch, err := table.Register(ctx, id, "eth_sendTransaction", time.Minute, nil)
		require.NoError(t, err)
		chans = append(chans, ch)
		ids = append(ids, id)
	}

	require.Equal(t, 3, table.FailAll(ctx, types.ErrNoActiveSession))
	for i, ch := range chans {
		_, err := table.Await(ctx, ids[i], ch)
		require.ErrorIs(t, err, types.ErrNoActiveSession)
	}
}

func TestPendingAwaitCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	durable := storage.NewPendingStore(storage.NewMemory())
	table := NewPendingTable(ctx, types.ProviderDeepLinkB, testRequestConfig(), durable)

	id := NewCorrelationID()
	ch, err := table.Register(ctx, id, types.MethodPersonalSign, time.Minute, nil)
	require.NoError(t, err)

	callCtx, callCancel := context.WithCancel(ctx)
	callCancel()
	_, err = table.Await(callCtx, id, ch)
	require.ErrorIs(t, err, context.Canceled)

	// late reply is handed back as an orphan
	delivered, rec := table.Resolve(ctx, &types.Response{ID: id})
	require.False(t, delivered)
	require.NotNil(t, rec)
}
