package chanbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/momentics/chanbus/fake"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumInt64(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_CountersAndGauges(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	fr := fake.NewReactor()
	b, err := NewBus(WithReactor(fr), WithMeterProvider(mp))
	require.NoError(t, err)
	defer b.Close()

	rec := &recorder[int]{}
	ch, err := New[int](b, rec.callback, WithName("metered"))
	require.NoError(t, err)
	idle, err := New[int](b, nil, WithName("idle"))
	require.NoError(t, err)
	require.NoError(t, idle.Push(1))
	require.NoError(t, idle.Push(2))

	got := collect(t, reader)
	gauge, ok := got["chanbus.channels.registered"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(2), gauge.DataPoints[0].Value)

	depth, ok := got["chanbus.queue.depth"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	depths := map[string]int64{}
	for _, dp := range depth.DataPoints {
		name, _ := dp.Attributes.Value(attribute.Key("channel"))
		depths[name.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"metered": 0, "idle": 2}, depths)

	fr.Notifier(ch.Handle()).FailNext(fake.ErrTransient, 1)
	require.NoError(t, ch.Send(1))
	require.NoError(t, ch.Send(2))
	require.NoError(t, ch.Close())
	require.NoError(t, idle.Release())

	require.NoError(t, b.Run())

	got = collect(t, reader)
	assert.Equal(t, int64(3), sumInt64(t, got["chanbus.messages.delivered"]))
	assert.Equal(t, int64(1), sumInt64(t, got["chanbus.channels.retired"]))
	assert.Equal(t, int64(1), sumInt64(t, got["chanbus.notify.failures"]))
}
