// Package metrics exposes counter and gauge helpers for the networking core,
// backed by Prometheus. Metrics are grouped by subsystem ("net", "cluster",
// "plugin") and created lazily on first use so call sites stay one-liners.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const _namespace = "embernet"

var (
	_mu         sync.Mutex
	_registerer prometheus.Registerer = prometheus.DefaultRegisterer
	_counters                         = make(map[string]prometheus.Counter)
	_counterVec                       = make(map[string]*prometheus.CounterVec)
	_gauges                           = make(map[string]prometheus.Gauge)
	_histograms                       = make(map[string]prometheus.Histogram)
)

// SetRegisterer replaces the Prometheus registerer used for newly created
// metrics. Must be called before the first metric is emitted; intended for
// tests and embedders with their own registry.
func SetRegisterer(r prometheus.Registerer) {
	_mu.Lock()
	defer _mu.Unlock()
	_registerer = r
}

// IncrCounterWithGroup increments the counter <group>/<name> by v.
func IncrCounterWithGroup(group, name string, v Value) {
	_mu.Lock()
	key := group + "/" + name
	c, ok := _counters[key]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: _namespace,
			Subsystem: group,
			Name:      name,
		})
		if err := _registerer.Register(c); err != nil {
			if are, isDup := err.(prometheus.AlreadyRegisteredError); isDup {
				c = are.ExistingCollector.(prometheus.Counter)
			}
		}
		_counters[key] = c
	}
	_mu.Unlock()

	c.Add(float64(v))
}

// IncrCounterWithDimGroup increments the counter <group>/<name> by v with the
// given dimensions as labels. The label set is fixed by the first call for a
// given counter; later calls must use the same dimension keys.
func IncrCounterWithDimGroup(group, name string, v Value, dims Dimension) {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_mu.Lock()
	key := group + "/" + name
	cv, ok := _counterVec[key]
	if !ok {
		cv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: _namespace,
			Subsystem: group,
			Name:      name,
		}, keys)
		if err := _registerer.Register(cv); err != nil {
			if are, isDup := err.(prometheus.AlreadyRegisteredError); isDup {
				cv = are.ExistingCollector.(*prometheus.CounterVec)
			}
		}
		_counterVec[key] = cv
	}
	_mu.Unlock()

	cv.With(prometheus.Labels(dims)).Add(float64(v))
}

// ReportWithGroup routes v to <group>/<name> according to the aggregation
// policy: PolicySum accumulates a counter, PolicySet and PolicyNone write a
// gauge, and the distribution policies (PolicyAvg, PolicyMax, PolicyMin,
// PolicyMid, PolicyStopwatch, PolicyHistogram) observe a histogram, from
// which those aggregates are derived at query time.
func ReportWithGroup(group, name string, policy Policy, v Value) {
	switch policy {
	case PolicySum:
		IncrCounterWithGroup(group, name, v)
	case PolicySet, PolicyNone:
		UpdateGaugeWithGroup(group, name, v)
	default:
		observeHistogramWithGroup(group, name, v)
	}
}

func observeHistogramWithGroup(group, name string, v Value) {
	_mu.Lock()
	key := group + "/" + name
	h, ok := _histograms[key]
	if !ok {
		h = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: _namespace,
			Subsystem: group,
			Name:      name,
		})
		if err := _registerer.Register(h); err != nil {
			if are, isDup := err.(prometheus.AlreadyRegisteredError); isDup {
				h = are.ExistingCollector.(prometheus.Histogram)
			}
		}
		_histograms[key] = h
	}
	_mu.Unlock()

	h.Observe(float64(v))
}

// UpdateGaugeWithGroup sets the gauge <group>/<name> to v.
func UpdateGaugeWithGroup(group, name string, v Value) {
	_mu.Lock()
	key := group + "/" + name
	g, ok := _gauges[key]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: _namespace,
			Subsystem: group,
			Name:      name,
		})
		if err := _registerer.Register(g); err != nil {
			if are, isDup := err.(prometheus.AlreadyRegisteredError); isDup {
				g = are.ExistingCollector.(prometheus.Gauge)
			}
		}
		_gauges[key] = g
	}
	_mu.Unlock()

	g.Set(float64(v))
}
