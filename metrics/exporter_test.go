package metrics

import (
	"context"
	"testing"

	"github.com/ipfs-force-community/metrics"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	samples int
}

func (s *countingSource) SessionCount() int {
	s.samples++
	return 1
}

func (s *countingSource) PairingCount() int { return 1 }

func (s *countingSource) PendingCount() map[string]int { return map[string]int{"pairing": 2} }

func (s *countingSource) ConnectedProvider() int { return 1 }

func TestSetupMetricsDisabled(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{}

	require.NoError(t, SetupMetrics(ctx, nil, src))
	require.NoError(t, SetupMetrics(ctx, metrics.DefaultMetricsConfig(), src))
	require.Zero(t, src.samples)
}

func TestSetupMetricsUnknownExporter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &countingSource{}

	cfg := metrics.DefaultMetricsConfig()
	cfg.Enabled = true
	cfg.Exporter.Type = "statsd"
	err := SetupMetrics(ctx, cfg, src)
	require.ErrorIs(t, err, ErrUnknownExporter)
	require.Contains(t, err.Error(), "statsd")
	require.Zero(t, src.samples)

	cfg.Exporter = nil
	require.ErrorIs(t, SetupMetrics(ctx, cfg, src), ErrUnknownExporter)
}
