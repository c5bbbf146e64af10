// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability exposes platform-level run metrics.
//
// Metrics are OpenTelemetry instruments exported through a Prometheus
// registry the server scrapes at /metrics. The per-invocation numbers
// come from the metrics.Collector summary the driver produces; this
// package only aggregates them across runs. When disabled, recording is
// a no-op and the handler serves an empty registry.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/weftworks/weft/pkg/metrics"
)

// Config controls the observability surface.
type Config struct {
	// Enabled turns metric recording and the /metrics endpoint on.
	Enabled bool `yaml:"enabled" koanf:"enabled"`
}

// Observer records run outcomes and serves the scrape endpoint.
type Observer struct {
	enabled  bool
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
	tokens      metric.Int64Counter
	llmCalls    metric.Int64Counter
	toolCalls   metric.Int64Counter
}

// New builds an Observer. A disabled config yields a no-op observer
// whose handler serves an empty registry.
func New(cfg Config) (*Observer, error) {
	registry := prometheus.NewRegistry()
	o := &Observer{enabled: cfg.Enabled, registry: registry}
	if !cfg.Enabled {
		return o, nil
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	o.provider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := o.provider.Meter("weft")

	if o.runs, err = meter.Int64Counter("weft_runs_total",
		metric.WithDescription("Completed workflow invocations")); err != nil {
		return nil, err
	}
	if o.runDuration, err = meter.Float64Histogram("weft_run_duration_seconds",
		metric.WithDescription("Workflow invocation duration")); err != nil {
		return nil, err
	}
	if o.tokens, err = meter.Int64Counter("weft_tokens_total",
		metric.WithDescription("Model tokens consumed by workflow invocations")); err != nil {
		return nil, err
	}
	if o.llmCalls, err = meter.Int64Counter("weft_llm_calls_total",
		metric.WithDescription("Model calls made by workflow invocations")); err != nil {
		return nil, err
	}
	if o.toolCalls, err = meter.Int64Counter("weft_tool_calls_total",
		metric.WithDescription("Tool calls made by workflow invocations")); err != nil {
		return nil, err
	}
	return o, nil
}

// Enabled reports whether recording is active.
func (o *Observer) Enabled() bool {
	return o.enabled
}

// RecordRun aggregates one invocation's usage summary.
func (o *Observer) RecordRun(ctx context.Context, workflowName string, usage metrics.UsageSummary, runErr error) {
	if !o.enabled {
		return
	}

	status := "ok"
	if runErr != nil {
		status = "error"
	}
	byWorkflow := metric.WithAttributes(attribute.String("workflow", workflowName))

	o.runs.Add(ctx, 1, byWorkflow,
		metric.WithAttributes(attribute.String("status", status)))
	o.runDuration.Record(ctx, time.Duration(usage.DurationMS*int64(time.Millisecond)).Seconds(), byWorkflow)
	o.llmCalls.Add(ctx, int64(usage.LLMCalls), byWorkflow)
	o.toolCalls.Add(ctx, int64(usage.ToolCalls), byWorkflow)
	o.tokens.Add(ctx, int64(usage.InputTokens), byWorkflow,
		metric.WithAttributes(attribute.String("direction", "input")))
	o.tokens.Add(ctx, int64(usage.OutputTokens), byWorkflow,
		metric.WithAttributes(attribute.String("direction", "output")))
}

// Handler serves the Prometheus scrape endpoint.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (o *Observer) Shutdown(ctx context.Context) error {
	if o.provider == nil {
		return nil
	}
	return o.provider.Shutdown(ctx)
}
