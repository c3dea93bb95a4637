package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	m := NewMetrics()
	registry := prometheus.NewRegistry()

	require.NoError(t, m.Register(registry))

	// Registering twice is an error.
	require.Error(t, m.Register(registry))
}

func TestCounters(t *testing.T) {
	m := NewMetrics()

	m.EventsEmitted.WithLabelValues("analysis").Inc()
	m.EventsEmitted.WithLabelValues("analysis").Inc()
	m.ParseWarnings.Inc()

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues("analysis")), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ParseWarnings), 0.001)
}
