package observability

import (
	"database/sql"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	require.True(t, ok)
	var m dto.Metric
	require.NoError(t, metric.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestObserveStoreOperation(t *testing.T) {
	before := histogramCount(t, StoreOperationDuration.WithLabelValues("memory", "append"))

	ObserveStoreOperation("memory", "append", time.Now().Add(-5*time.Millisecond))

	after := histogramCount(t, StoreOperationDuration.WithLabelValues("memory", "append"))
	assert.Equal(t, before+1, after)
}

func TestObserveQuery(t *testing.T) {
	before := histogramCount(t, DBQueryDuration.WithLabelValues("select", "messages"))

	ObserveQuery("select", "messages", time.Now())

	assert.Equal(t, before+1, histogramCount(t, DBQueryDuration.WithLabelValues("select", "messages")))
}

func TestRecordDBStats(t *testing.T) {
	RecordDBStats(sql.DBStats{OpenConnections: 7, InUse: 3, Idle: 4})

	assert.Equal(t, 7.0, gaugeValue(t, DBConnectionsOpen))
	assert.Equal(t, 3.0, gaugeValue(t, DBConnectionsInUse))
	assert.Equal(t, 4.0, gaugeValue(t, DBConnectionsIdle))
}

func TestEventCounters(t *testing.T) {
	sent := WebSocketEventsSent.WithLabelValues("new_message")
	dropped := WebSocketEventsDropped.WithLabelValues("new_message")

	sentBefore := counterValue(t, sent)
	droppedBefore := counterValue(t, dropped)

	sent.Inc()
	sent.Inc()
	dropped.Inc()

	assert.Equal(t, sentBefore+2, counterValue(t, sent))
	assert.Equal(t, droppedBefore+1, counterValue(t, dropped))
}

func TestConnectionGauges(t *testing.T) {
	start := gaugeValue(t, WebSocketConnectionsActive)

	WebSocketConnectionsActive.Inc()
	ChannelSubscriptionsActive.Add(2)
	assert.Equal(t, start+1, gaugeValue(t, WebSocketConnectionsActive))

	WebSocketConnectionsActive.Dec()
	ChannelSubscriptionsActive.Sub(2)
	assert.Equal(t, start, gaugeValue(t, WebSocketConnectionsActive))
}
