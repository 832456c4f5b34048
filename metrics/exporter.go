package metrics

import (
	"context"
	"net/http"

	"github.com/ipfs-force-community/metrics"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
	"go.opencensus.io/stats/view"
)

var log = logging.Logger("metrics")

var ErrUnknownExporter = errors.New("unknown metrics exporter")

// SetupMetrics starts the configured exporter and the gauge sampler for src. A nil or
// disabled config is a no-op.
func SetupMetrics(ctx context.Context, cfg *metrics.MetricsConfig, src Source) error {
	if cfg == nil || !cfg.Enabled {
		log.Debug("connection metrics disabled")
		return nil
	}
	if cfg.Exporter == nil {
		return errors.Wrap(ErrUnknownExporter, "no exporter configured")
	}
	if err := view.Register(views...); err != nil {
		return errors.Wrap(err, "register connection views")
	}
	if err := startExporter(ctx, cfg.Exporter); err != nil {
		return err
	}

	Record(ctx, src)
	go recordMetricsLoop(ctx, src)
	return nil
}

func startExporter(ctx context.Context, cfg *metrics.MetricsExporterConfig) error {
	switch cfg.Type {
	case metrics.ETPrometheus:
		log.Infow("serving prometheus metrics", "endpoint", cfg.Prometheus.EndPoint, "path", cfg.Prometheus.Path)
		// blocks until ctx is done
		go func() {
			err := metrics.RegisterPrometheusExporter(ctx, cfg.Prometheus)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("prometheus exporter stopped", "err", err)
			}
		}()
		return nil
	case metrics.ETGraphite:
		log.Infow("pushing metrics to graphite", "host", cfg.Graphite.Host, "port", cfg.Graphite.Port)
		return errors.Wrap(metrics.RegisterGraphiteExporter(ctx, cfg.Graphite), "graphite exporter")
	default:
		return errors.Wrapf(ErrUnknownExporter, "%q", cfg.Type)
	}
}
