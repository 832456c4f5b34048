package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ipfs-force-community/sophon-connect/types"
)

func TestHandshakeResolvesOnce(t *testing.T) {
	h := NewHandshake("wc:abc@2")
	acc := types.NewAccount("0x01", types.NewChainID("eip155", "1"))

	var wg sync.WaitGroup
	wins := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				wins <- h.Succeed(acc, nil)
			} else {
				wins <- h.Fail(errors.New("late"))
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	n := 0
	for w := range wins {
		if w {
			n++
		}
	}
	require.Equal(t, 1, n)

	select {
	case <-h.Done():
	default:
		t.Fatal("handshake not done")
	}
}

func TestHandshakeWait(t *testing.T) {
	ctx := context.Background()

	h := NewHandshake("")
	go h.Fail(types.ErrUserRejected)
	_, err := h.Wait(ctx)
	require.ErrorIs(t, err, types.ErrUserRejected)

	h = NewHandshake("")
	h.Succeed(nil, nil)
	_, err = h.Wait(ctx)
	require.ErrorIs(t, err, types.ErrMalformedResponse)

	h = NewHandshake("")
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = h.Wait(timeoutCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, h.Succeed(types.NewAccount("0x01", types.NewChainID("eip155", "1")), nil))
}
