// Package otel records tool, subprocess and health signals into OpenTelemetry.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/ailang-mcp/executor"
	"github.com/petal-labs/ailang-mcp/health"
	"github.com/petal-labs/ailang-mcp/tool"
)

// Observer implements the tool, executor and health observer interfaces.
type Observer struct {
	tracer trace.Tracer

	calls       metric.Int64Counter
	execs       metric.Int64Counter
	health      metric.Int64Counter
	callLatency metric.Float64Histogram
	execLatency metric.Float64Histogram
}

// NewObserver creates an observer bound to the provided meter and tracer.
// A nil tracer disables spans.
func NewObserver(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	calls, err := meter.Int64Counter(
		"ailang_mcp.tool.calls",
		metric.WithDescription("Number of dispatched tool calls"),
	)
	if err != nil {
		return nil, err
	}
	execs, err := meter.Int64Counter(
		"ailang_mcp.exec.runs",
		metric.WithDescription("Number of ailang subprocess runs"),
	)
	if err != nil {
		return nil, err
	}
	healthChecks, err := meter.Int64Counter(
		"ailang_mcp.health.checks",
		metric.WithDescription("Number of ailang availability probes"),
	)
	if err != nil {
		return nil, err
	}
	callLatency, err := meter.Float64Histogram(
		"ailang_mcp.tool.latency",
		metric.WithDescription("Tool call latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	execLatency, err := meter.Float64Histogram(
		"ailang_mcp.exec.latency",
		metric.WithDescription("Subprocess wall time in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:      tracer,
		calls:       calls,
		execs:       execs,
		health:      healthChecks,
		callLatency: callLatency,
		execLatency: execLatency,
	}, nil
}

// ObserveDispatch records one tool call.
func (o *Observer) ObserveDispatch(observation tool.DispatchObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_name", observation.ToolName),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.calls.Add(ctx, 1, options)
	o.callLatency.Record(ctx, seconds(observation.DurationMS), options)

	o.span("tool.call", observation.DurationMS, observation.ErrorCode,
		append(attrs, attribute.String("call_id", observation.CallID))...)
}

// ObserveExec records one subprocess run.
func (o *Observer) ObserveExec(observation executor.Observation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("command", observation.Command),
		attribute.String("status", string(observation.Status)),
		attribute.Bool("truncated", observation.Truncated),
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.execs.Add(ctx, 1, options)
	o.execLatency.Record(ctx, seconds(observation.DurationMS), options)

	failure := ""
	if observation.Status != executor.StatusSuccess {
		failure = string(observation.Status)
	}
	o.span("ailang.exec", observation.DurationMS, failure,
		append(attrs, attribute.Int("exit_code", observation.ExitCode))...)
}

// ObserveHealth records one availability probe.
func (o *Observer) ObserveHealth(observation health.Observation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("program", observation.Program),
		attribute.String("state", string(observation.State)),
		attribute.String("previous_state", string(observation.PreviousState)),
		attribute.Int("failure_count", observation.ConsecutiveFailures),
	}
	o.health.Add(context.Background(), 1, metric.WithAttributes(attrs...))

	failure := ""
	if observation.State != health.StateHealthy {
		failure = string(observation.State)
	}
	o.span("ailang.health.check", observation.DurationMS, failure, attrs...)
}

// span emits an already finished span covering the last durationMS.
func (o *Observer) span(name string, durationMS int64, failure string, attrs ...attribute.KeyValue) {
	if o.tracer == nil {
		return
	}
	end := time.Now()
	start := end.Add(-time.Duration(durationMS) * time.Millisecond)
	_, span := o.tracer.Start(context.Background(), name,
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...),
	)
	if failure != "" {
		span.SetStatus(codes.Error, failure)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

func seconds(ms int64) float64 {
	return float64(time.Duration(ms)*time.Millisecond) / float64(time.Second)
}

var (
	_ tool.Observer     = (*Observer)(nil)
	_ executor.Observer = (*Observer)(nil)
	_ health.Observer   = (*Observer)(nil)
)
