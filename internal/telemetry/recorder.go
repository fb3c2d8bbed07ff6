package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterRecorderName = "github.com/nc9/taskmux"
	loggerName        = "taskmux"
)

type recorderInstruments struct {
	transitionTotal  metric.Int64Counter
	hookTotal        metric.Int64Counter
	healthCheckTotal metric.Int64Counter
	autoRestartTotal metric.Int64Counter
	reloadTotal      metric.Int64Counter
	gatewayTotal     metric.Int64Counter

	hookDurationHist metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     recorderInstruments
)

// initInstruments registers instruments against the global MeterProvider.
// Instruments created before Init are delegated once the real provider is set.
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterRecorderName)

		inst.transitionTotal, _ = m.Int64Counter("taskmux.task.transitions.total",
			metric.WithDescription("Total task lifecycle operations by kind and outcome"),
		)
		inst.hookTotal, _ = m.Int64Counter("taskmux.hook.runs.total",
			metric.WithDescription("Total lifecycle hook executions"),
		)
		inst.healthCheckTotal, _ = m.Int64Counter("taskmux.health.checks.total",
			metric.WithDescription("Total task health evaluations"),
		)
		inst.autoRestartTotal, _ = m.Int64Counter("taskmux.health.auto_restarts.total",
			metric.WithDescription("Total restarts triggered by a healthy to unhealthy transition"),
		)
		inst.reloadTotal, _ = m.Int64Counter("taskmux.config.reloads.total",
			metric.WithDescription("Total configuration reload attempts"),
		)
		inst.gatewayTotal, _ = m.Int64Counter("taskmux.gateway.requests.total",
			metric.WithDescription("Total API requests handled by the gateway"),
		)

		inst.hookDurationHist, _ = m.Float64Histogram("taskmux.hook.duration_ms",
			metric.WithDescription("Lifecycle hook wall-clock duration in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
}

func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func boolStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	logger := global.GetLoggerProvider().Logger(loggerName)
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.SetSeverity(sev)
	r.AddAttributes(attrs...)
	logger.Emit(ctx, r)
}

func severity(ok bool) otellog.Severity {
	if ok {
		return otellog.SeverityInfo
	}
	return otellog.SeverityError
}

// RecordTransition records one lifecycle operation (start, stop, restart, kill).
func RecordTransition(ctx context.Context, op, task string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.transitionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("task", task),
		attribute.String("status", status),
	))
	kvs := []otellog.KeyValue{
		otellog.String("op", op),
		otellog.String("task", task),
		otellog.String("status", status),
	}
	if err != nil {
		kvs = append(kvs, otellog.String("error", err.Error()))
	}
	emit(ctx, "task."+op, severity(err == nil), kvs...)
}

// RecordHook records a hook execution. task is empty for global hooks.
func RecordHook(ctx context.Context, point, task string, durationMs float64, ok bool) {
	initInstruments()
	attrs := metric.WithAttributes(
		attribute.String("point", point),
		attribute.String("scope", hookScope(task)),
		attribute.String("status", boolStatus(ok)),
	)
	inst.hookTotal.Add(ctx, 1, attrs)
	inst.hookDurationHist.Record(ctx, durationMs, attrs)
	emit(ctx, "hook."+point, severity(ok),
		otellog.String("task", task),
		otellog.Float64("duration_ms", durationMs),
		otellog.String("status", boolStatus(ok)),
	)
}

func hookScope(task string) string {
	if task == "" {
		return "global"
	}
	return "task"
}

// RecordHealthCheck records the outcome of one health evaluation.
func RecordHealthCheck(ctx context.Context, task, strategy string, healthy bool) {
	initInstruments()
	inst.healthCheckTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("strategy", strategy),
		attribute.Bool("healthy", healthy),
	))
}

// RecordAutoRestart records a restart fired by the auto-restart loop.
func RecordAutoRestart(ctx context.Context, task string, err error) {
	initInstruments()
	inst.autoRestartTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("status", statusStr(err)),
	))
	emit(ctx, "health.auto_restart", severity(err == nil),
		otellog.String("task", task),
		otellog.String("status", statusStr(err)),
	)
}

// RecordReload records a configuration reload attempt.
func RecordReload(ctx context.Context, err error) {
	initInstruments()
	inst.reloadTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", statusStr(err)),
	))
}

// RecordGatewayRequest records one API command handled by the gateway.
func RecordGatewayRequest(ctx context.Context, command string, ok bool) {
	initInstruments()
	inst.gatewayTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", boolStatus(ok)),
	))
}
