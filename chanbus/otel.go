package chanbus

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/momentics/chanbus/chanbus"

func meter(mp metric.MeterProvider) metric.Meter {
	if mp == nil {
		return otel.Meter(instrumentationName)
	}
	return mp.Meter(instrumentationName)
}

type busMetrics struct {
	registered     metric.Int64ObservableGauge
	queueDepth     metric.Int64ObservableGauge
	delivered      metric.Int64Counter
	spurious       metric.Int64Counter
	panics         metric.Int64Counter
	notifyFailures metric.Int64Counter
	retired        metric.Int64Counter
	reg            metric.Registration
}

// newBusMetrics creates the bus instruments. Uses the global OTel meter when
// mp is nil (no-op if not configured).
func newBusMetrics(mp metric.MeterProvider, b *Bus) (*busMetrics, error) {
	m := meter(mp)
	bm := &busMetrics{}

	var err error
	bm.registered, err = m.Int64ObservableGauge(
		"chanbus.channels.registered",
		metric.WithDescription("Current number of channels registered with the bus"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating registered gauge: %w", err)
	}

	bm.queueDepth, err = m.Int64ObservableGauge(
		"chanbus.queue.depth",
		metric.WithDescription("Current number of queued values per channel"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue depth gauge: %w", err)
	}

	bm.reg, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			eps := b.snapshot()
			o.ObserveInt64(bm.registered, int64(len(eps)))
			for _, ep := range eps {
				o.ObserveInt64(bm.queueDepth, int64(ep.Len()),
					metric.WithAttributes(attribute.String("channel", ep.Name())))
			}
			return nil
		},
		bm.registered, bm.queueDepth,
	)
	if err != nil {
		return nil, fmt.Errorf("registering gauge callback: %w", err)
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&bm.delivered, "chanbus.messages.delivered", "Total callback invocations"},
		{&bm.spurious, "chanbus.wakeups.spurious", "Total increments with nothing to deliver"},
		{&bm.panics, "chanbus.callback.panics", "Total recovered callback panics"},
		{&bm.notifyFailures, "chanbus.notify.failures", "Total failed notifier raises"},
		{&bm.retired, "chanbus.channels.retired", "Total channels released after their close sentinel"},
	}
	for _, c := range counters {
		*c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}
	return bm, nil
}

func channelAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("channel", name))
}

func (bm *busMetrics) unregister() error {
	if bm.reg == nil {
		return nil
	}
	return bm.reg.Unregister()
}
