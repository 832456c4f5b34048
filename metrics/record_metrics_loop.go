package metrics

import (
	"context"
	"time"

	"go.opencensus.io/tag"
)

// Source exposes the gauges sampled by the record loop.
type Source interface {
	SessionCount() int
	PairingCount() int
	// PendingCount is keyed by provider name.
	PendingCount() map[string]int
	ConnectedProvider() int
}

func recordMetricsLoop(ctx context.Context, src Source) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			Record(ctx, src)
		case <-ctx.Done():
			log.Infof("context done, stop record metrics")
			return
		}
	}
}

// Record samples src once.
func Record(ctx context.Context, src Source) {
	SessionNum.Set(ctx, int64(src.SessionCount()))
	PairingNum.Set(ctx, int64(src.PairingCount()))
	ConnectedTo.Set(ctx, int64(src.ConnectedProvider()))
	for provider, n := range src.PendingCount() {
		pctx, _ := tag.New(ctx, tag.Upsert(ProviderKey, provider))
		PendingNum.Set(pctx, int64(n))
	}
}
