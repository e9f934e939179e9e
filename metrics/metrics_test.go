package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectors_ReusesRegistered(t *testing.T) {
	first, err := NewCollectors("metrics_test")
	require.NoError(t, err)

	second, err := NewCollectors("metrics_test")
	require.NoError(t, err)

	first.ObserveTransaction("mint", nil, time.Millisecond)
	second.ObserveTransaction("mint", errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, counterValue(t, first.Transactions.WithLabelValues("mint", "ok")))
	assert.Equal(t, 1.0, counterValue(t, first.Transactions.WithLabelValues("mint", "failed")))

	second.TreeCreated()
	assert.Equal(t, 1.0, counterValue(t, first.TreesCreated))
}

func TestNilCollectors(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.ObserveTransaction("initialize", nil, time.Second)
		c.TreeCreated()
		c.LeafMinted("plain")
	})
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}
