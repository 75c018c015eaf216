package fixer

import (
	"context"

	"github.com/fyrsmithlabs/stylefix/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/stylefix/internal/fixer"

// Outcome labels on the run counters.
const (
	resultSuccessful   = "successful"
	resultUnsuccessful = "unsuccessful"
	resultFailed       = "failed"
)

type instruments struct {
	tracer        trace.Tracer
	analyses      metric.Int64Counter
	applies       metric.Int64Counter
	setupFailures metric.Int64Counter
}

// newInstruments builds the tracer and counters. A nil tel uses the global
// providers.
func newInstruments(tel *telemetry.Telemetry, logger *zap.Logger) *instruments {
	meter := tel.Meter(instrumentationName)
	inst := &instruments{tracer: tel.Tracer(instrumentationName)}

	var err error
	inst.analyses, err = meter.Int64Counter(
		"stylefix.fixer.analyses_total",
		metric.WithDescription("Total number of analysis runs by result"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		logger.Warn("failed to create analyses counter", zap.Error(err))
	}

	inst.applies, err = meter.Int64Counter(
		"stylefix.fixer.applies_total",
		metric.WithDescription("Total number of diff applications by result"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		logger.Warn("failed to create applies counter", zap.Error(err))
	}

	inst.setupFailures, err = meter.Int64Counter(
		"stylefix.fixer.setup_failures_total",
		metric.WithDescription("Total number of working copy setups that failed after retry"),
		metric.WithUnit("{setup}"),
	)
	if err != nil {
		logger.Warn("failed to create setup failures counter", zap.Error(err))
	}
	return inst
}

func count(ctx context.Context, c metric.Int64Counter, result string) {
	if c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
