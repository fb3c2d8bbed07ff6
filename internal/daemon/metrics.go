package daemon

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/nc9/taskmux/daemon"

// daemonMetrics holds OTel instruments for the daemon.
// All methods are nil-safe so callers don't need to guard against disabled telemetry.
type daemonMetrics struct {
	// cycleTotal counts health cycles, labeled by outcome.
	cycleTotal metric.Int64Counter

	// broadcastTotal counts health_check events pushed to clients.
	broadcastTotal metric.Int64Counter

	// mu protects gauge values written by the health loop.
	mu        sync.RWMutex
	clients   int64
	running   int64
	unhealthy int64
}

// newDaemonMetrics registers the daemon instruments against the global
// MeterProvider. Must be called after telemetry.Init so the provider is set.
func newDaemonMetrics() (*daemonMetrics, error) {
	m := otel.GetMeterProvider().Meter(meterName)
	dm := &daemonMetrics{}

	var err error
	dm.cycleTotal, err = m.Int64Counter("taskmux.daemon.health_cycle.total",
		metric.WithDescription("Total number of daemon health cycles"),
	)
	if err != nil {
		return nil, err
	}

	dm.broadcastTotal, err = m.Int64Counter("taskmux.daemon.broadcast.total",
		metric.WithDescription("Total number of health events delivered to clients"),
	)
	if err != nil {
		return nil, err
	}

	clientsGauge, err := m.Int64ObservableGauge("taskmux.daemon.clients",
		metric.WithDescription("Connected WebSocket clients"),
	)
	if err != nil {
		return nil, err
	}
	runningGauge, err := m.Int64ObservableGauge("taskmux.daemon.tasks.running",
		metric.WithDescription("Tasks with a live pane at the last health cycle"),
	)
	if err != nil {
		return nil, err
	}
	unhealthyGauge, err := m.Int64ObservableGauge("taskmux.daemon.tasks.unhealthy",
		metric.WithDescription("Running tasks that failed their last health check"),
	)
	if err != nil {
		return nil, err
	}

	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		dm.mu.RLock()
		defer dm.mu.RUnlock()
		o.ObserveInt64(clientsGauge, dm.clients)
		o.ObserveInt64(runningGauge, dm.running)
		o.ObserveInt64(unhealthyGauge, dm.unhealthy)
		return nil
	}, clientsGauge, runningGauge, unhealthyGauge)
	if err != nil {
		return nil, err
	}

	return dm, nil
}

// recordCycle counts one health cycle.
func (dm *daemonMetrics) recordCycle(ctx context.Context, status string) {
	if dm == nil {
		return
	}
	dm.cycleTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (dm *daemonMetrics) recordBroadcast(ctx context.Context, delivered int) {
	if dm == nil || delivered == 0 {
		return
	}
	dm.broadcastTotal.Add(ctx, int64(delivered))
}

// updateGauges stores the latest observations for the observable gauges.
func (dm *daemonMetrics) updateGauges(clients, running, unhealthy int) {
	if dm == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.clients = int64(clients)
	dm.running = int64(running)
	dm.unhealthy = int64(unhealthy)
}
