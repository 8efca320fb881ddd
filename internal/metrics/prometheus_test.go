package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRound(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveRound("converged", "maximum volume", 1, 0, 12)
	m.ObserveRound("converged", "maximum volume", 3, 2, 8)
	m.ObserveRound("committed partial", "minimum residual", 2, 1, 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.rounds.WithLabelValues("converged", "maximum volume")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.rounds.WithLabelValues("committed partial", "minimum residual")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.forcedOrders))
	assert.Equal(t, float64(20), testutil.ToFloat64(m.volume))

	expected := `
# HELP callmarket_volume_total Shares exchanged
# TYPE callmarket_volume_total counter
callmarket_volume_total 20
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "callmarket_volume_total"))
}

func TestNew_Unregistered(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.ObserveRound("converged", "no orders", 1, 0, 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.volume))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}
