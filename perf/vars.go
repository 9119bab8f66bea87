package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency     = metric.NewHistogram("1m1s")
	RecomputeLatency    = metric.NewHistogram("1m1s")
	ChangedPerRecompute = metric.NewHistogram("10s1s")
	LSAsSentPerSecond   = metric.NewCounter("10s1s")
	TopologyChanges     = metric.NewCounter("10s1s")
	AdjacencyDrops      = metric.NewCounter("1m1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("fibbing:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("fibbing:RecomputeLatency (µs)", RecomputeLatency)
	expvar.Publish("fibbing:ChangedPerRecompute", ChangedPerRecompute)
	expvar.Publish("fibbing:LSAsSent/s", LSAsSentPerSecond)
	expvar.Publish("fibbing:TopologyChanges/s", TopologyChanges)
	expvar.Publish("fibbing:AdjacencyDrops", AdjacencyDrops)
}
