package platform

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemeProbe(t *testing.T) {
	p := NewSchemeProbe([]string{"metamask://", "phantom"}, []string{"metamask", "cbwallet"})
	require.True(t, p.CanOpen("metamask"))
	require.True(t, p.CanOpen("MetaMask://"))
	require.False(t, p.CanOpen("phantom"))
	// installed but not declared queryable
	require.False(t, p.CanOpen("cbwallet"))
}

func TestLogOpener(t *testing.T) {
	o := &LogOpener{}
	u, _ := url.Parse("metamask://connect?id=1")
	reply, err := o.Open(context.Background(), u)
	require.NoError(t, err)
	require.Nil(t, reply)
	require.Equal(t, u, o.Last())
}
