/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertSamplesCountInHistogram asserts how many observations the histogram has got.
// Use HistogramVec.WithLabelValues(...).(prometheus.Histogram) to check a single label set.
func AssertSamplesCountInHistogram(t assert.TestingT, hist prometheus.Histogram, wantSamplesCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var m dto.Metric
	if !assert.NoError(t, hist.Write(&m)) {
		return false
	}
	if !assert.NotNil(t, m.GetHistogram(), "metric is not a histogram") {
		return false
	}
	return assert.Equal(t, wantSamplesCount, int(m.GetHistogram().GetSampleCount()))
}

// RequireSamplesCountInHistogram is AssertSamplesCountInHistogram that stops the test on failure.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !AssertSamplesCountInHistogram(t, hist, wantSamplesCount) {
		t.FailNow()
	}
}

// RequireMetricValue checks the value of a collector holding a single counter or gauge
// (e.g. CounterVec.WithLabelValues(...) or a plain Gauge).
func RequireMetricValue(t require.TestingT, collector prometheus.Collector, want int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, want, int(promtestutil.ToFloat64(collector)))
}
