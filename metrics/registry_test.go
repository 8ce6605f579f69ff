package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherValue(t *testing.T, reg *prometheus.Registry, fqName string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != fqName {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				total += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				total += m.GetGauge().GetValue()
			}
		}
		return total
	}
	t.Fatalf("metric %s not found", fqName)
	return 0
}

func gatherHistogramCount(t *testing.T, reg *prometheus.Registry, fqName string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != fqName {
			continue
		}
		var total uint64
		for _, m := range mf.GetMetric() {
			total += m.GetHistogram().GetSampleCount()
		}
		return total
	}
	t.Fatalf("metric %s not found", fqName)
	return 0
}

// Tests lazy creation and accumulation of plain counters.
func TestIncrCounterWithGroup(t *testing.T) {
	reg := prometheus.NewRegistry()
	SetRegisterer(reg)

	IncrCounterWithGroup("testgrp", "ops_total", 2)
	IncrCounterWithGroup("testgrp", "ops_total", 3)

	assert.Equal(t, float64(5), gatherValue(t, reg, "embernet_testgrp_ops_total"))
}

// Tests dimensioned counters aggregate per label set.
func TestIncrCounterWithDimGroup(t *testing.T) {
	reg := prometheus.NewRegistry()
	SetRegisterer(reg)

	IncrCounterWithDimGroup("testgrp", "dim_ops_total", 1, Dimension{"event": "a"})
	IncrCounterWithDimGroup("testgrp", "dim_ops_total", 1, Dimension{"event": "b"})
	IncrCounterWithDimGroup("testgrp", "dim_ops_total", 1, Dimension{"event": "a"})

	assert.Equal(t, float64(3), gatherValue(t, reg, "embernet_testgrp_dim_ops_total"))
}

// Tests policy-based routing across the counter, gauge and histogram
// backends.
func TestReportWithGroup(t *testing.T) {
	reg := prometheus.NewRegistry()
	SetRegisterer(reg)

	ReportWithGroup("testgrp", "policy_sum_total", PolicySum, 2)
	ReportWithGroup("testgrp", "policy_sum_total", PolicySum, 3)
	assert.Equal(t, float64(5), gatherValue(t, reg, "embernet_testgrp_policy_sum_total"))

	ReportWithGroup("testgrp", "policy_set", PolicySet, 9)
	ReportWithGroup("testgrp", "policy_set", PolicySet, 4)
	assert.Equal(t, float64(4), gatherValue(t, reg, "embernet_testgrp_policy_set"))

	ReportWithGroup("testgrp", "policy_watch_seconds", PolicyStopwatch, 0.5)
	ReportWithGroup("testgrp", "policy_watch_seconds", PolicyStopwatch, 1.5)
	assert.Equal(t, uint64(2), gatherHistogramCount(t, reg, "embernet_testgrp_policy_watch_seconds"))
}

// Tests gauges take the last written value.
func TestUpdateGaugeWithGroup(t *testing.T) {
	reg := prometheus.NewRegistry()
	SetRegisterer(reg)

	UpdateGaugeWithGroup("testgrp", "depth", 7)
	UpdateGaugeWithGroup("testgrp", "depth", 3)

	assert.Equal(t, float64(3), gatherValue(t, reg, "embernet_testgrp_depth"))
}
