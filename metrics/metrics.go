package metrics

import (
	"time"

	rpcMetrics "github.com/filecoin-project/go-jsonrpc/metrics"
	"github.com/ipfs-force-community/metrics"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Global Tags
var (
	ProviderKey, _ = tag.NewKey("provider")
	MethodKey, _   = tag.NewKey("method")
	ResultKey, _   = tag.NewKey("result")
	ClassKey, _    = tag.NewKey("class")
)

// Distribution
var defaultMillisecondsDistribution = view.Distribution(0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 3000, 4000, 5000, 7500, 10000, 20000, 50000, 100000)

const (
	ResultOK   = "ok"
	ResultFail = "fail"
)

var (
	// connection
	Connect     = stats.Int64("connect", "Connect attempts", stats.UnitDimensionless)
	Disconnect  = stats.Int64("disconnect", "Disconnects", stats.UnitDimensionless)
	InboundURL  = stats.Int64("inbound_url", "Inbound URLs by the transport that took them", stats.UnitDimensionless)
	SessionNum  = metrics.NewInt64("pairing/session_num", "Settled pairing sessions", stats.UnitDimensionless)
	PairingNum  = metrics.NewInt64("pairing/pairing_num", "Known pairings", stats.UnitDimensionless)
	PendingNum  = metrics.NewInt64("pending/num", "Requests waiting for a wallet reply", stats.UnitDimensionless, ProviderKey)
	ConnectedTo = metrics.NewInt64("state/connected", "Connected provider, 0 when disconnected", stats.UnitDimensionless)

	// method call
	ConnectDuration = stats.Float64("connect_duration", "Handshake spent time", stats.UnitMilliseconds)
	RequestDuration = stats.Float64("request_duration", "Wallet request spent time", stats.UnitMilliseconds)

	ApiState = metrics.NewInt64("api/state", "api service state. 0: down, 1: up", "")
)

var (
	connectView = &view.View{
		Measure:     Connect,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ProviderKey, ResultKey},
	}
	disconnectView = &view.View{
		Measure:     Disconnect,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ProviderKey},
	}
	inboundURLView = &view.View{
		Measure:     InboundURL,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ClassKey},
	}

	// method call
	connectDurationView = &view.View{
		Measure:     ConnectDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{ProviderKey, ResultKey},
	}
	requestDurationView = &view.View{
		Measure:     RequestDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{ProviderKey, MethodKey, ResultKey},
	}
)

var views = append([]*view.View{
	connectView,
	disconnectView,
	inboundURLView,
	connectDurationView,
	requestDurationView,
}, rpcMetrics.DefaultViews...)

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

// Result maps an error onto the result tag value.
func Result(err error) string {
	if err != nil {
		return ResultFail
	}
	return ResultOK
}

func init() {
	// register metrics
	_ = view.Register(views...)
}
