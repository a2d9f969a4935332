// Package metrics provides Prometheus metrics for phobos locate calls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the Prometheus registry for all phobos metrics.
var Registry = prometheus.NewRegistry()

// Locate call outcomes, used as the "result" label.
const (
	ResultSuccess            = "success"
	ResultInvalidLayout      = "invalid_layout"
	ResultSelfHostUnknown    = "self_host_unknown"
	ResultSplitDark          = "split_dark"
	ResultSplitUnreachable   = "split_unreachable"
	ResultNoViableHost       = "no_viable_host"
	ResultNoHostSelected     = "no_host_selected"
	ResultInsufficientLeases = "insufficient_leases"
)

// Reasons an extent is dropped from a locate call, used as the "reason" label.
const (
	PruneQueryFailed  = "query_failed"
	PruneInaccessible = "inaccessible"
)

// LocateMetrics holds all Prometheus metrics for the locate core.
type LocateMetrics struct {
	Calls         *prometheus.CounterVec // labels: result
	CallDuration  prometheus.Histogram
	PrunedExtents *prometheus.CounterVec // labels: reason

	// Lease accounting
	NewLeases        prometheus.Counter
	RefreshedLeases  prometheus.Counter
	LockRaces        prometheus.Counter
	Rollbacks        prometheus.Counter
	RollbackFailures prometheus.Counter

	// Host info (constant labels exposed as a gauge)
	HostInfo *prometheus.GaugeVec // labels: host, version
}

func init() {
	// Register standard Go metrics
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// InitMetrics registers the locate metrics on Registry.
func InitMetrics(hostName, version string) *LocateMetrics {
	return NewLocateMetrics(Registry, hostName, version)
}

// NewLocateMetrics registers the locate metrics on reg with the host name
// as a constant label.
func NewLocateMetrics(reg prometheus.Registerer, hostName, version string) *LocateMetrics {
	constLabels := prometheus.Labels{
		"host": hostName,
	}
	factory := promauto.With(reg)

	m := &LocateMetrics{
		Calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "phobos_locate_calls_total",
			Help:        "Locate calls by outcome",
			ConstLabels: constLabels,
		}, []string{"result"}),
		CallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "phobos_locate_duration_seconds",
			Help:        "Wall time of locate calls",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		PrunedExtents: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "phobos_locate_pruned_extents_total",
			Help:        "Extents dropped from locate calls",
			ConstLabels: constLabels,
		}, []string{"reason"}),

		NewLeases: factory.NewCounter(prometheus.CounterOpts{
			Name:        "phobos_locate_new_leases_total",
			Help:        "Medium locks newly acquired by successful locate calls",
			ConstLabels: constLabels,
		}),
		RefreshedLeases: factory.NewCounter(prometheus.CounterOpts{
			Name:        "phobos_locate_refreshed_leases_total",
			Help:        "Medium locks already held and refreshed by locate calls",
			ConstLabels: constLabels,
		}),
		LockRaces: factory.NewCounter(prometheus.CounterOpts{
			Name:        "phobos_locate_lock_races_total",
			Help:        "Lock attempts lost to another host",
			ConstLabels: constLabels,
		}),
		Rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name:        "phobos_locate_rollbacks_total",
			Help:        "Locate calls that released their new locks after a lease shortfall",
			ConstLabels: constLabels,
		}),
		RollbackFailures: factory.NewCounter(prometheus.CounterOpts{
			Name:        "phobos_locate_rollback_unlock_failures_total",
			Help:        "Locks that could not be released during rollback",
			ConstLabels: constLabels,
		}),

		HostInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "phobos_host_info",
			Help: "Host information",
		}, []string{"host", "version"}),
	}

	m.HostInfo.WithLabelValues(hostName, version).Set(1)

	return m
}

// WriteTextfile dumps Registry in the node exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
