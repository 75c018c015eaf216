package fixer

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/stylefix/internal/attempt"
	"github.com/fyrsmithlabs/stylefix/internal/logging"
	"github.com/fyrsmithlabs/stylefix/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// runner holds what the analysis and apply paths share: materializing a
// working copy under the attempt policy.
type runner struct {
	repositories *repository.Factory
	policy       attempt.Policy
	inst         *instruments
	logger       *zap.Logger
}

// begin validates p and returns a context carrying the run's correlation
// fields, plus a logger with those fields attached.
func (r *runner) begin(ctx context.Context, p Project) (context.Context, *zap.Logger, error) {
	if err := p.Validate(); err != nil {
		return ctx, r.logger, err
	}
	ctx = logging.WithRun(ctx, p.run(uuid.NewString()))
	return ctx, r.logger.With(logging.ContextFields(ctx)...), nil
}

// setUp brings wc to the project's commit, deleting and retrying once on
// failure. When the retry fails too, the working copy is deleted before the
// error is returned.
func (r *runner) setUp(ctx context.Context, wc *repository.WorkingCopy, p Project, logger *zap.Logger) error {
	ctx, span := r.inst.tracer.Start(ctx, "fixer.setup", trace.WithAttributes(
		attribute.Int64("project.id", p.ID),
		attribute.String("run.ref", p.Ref().CacheKey()),
	))
	defer span.End()

	policy := r.policy
	policy.Logger = logger
	res, err := policy.Do(ctx, wc, func(ctx context.Context) error {
		return wc.Setup(ctx, p.Ref(), p.Commit)
	})
	span.SetAttributes(
		attribute.Int("attempts", res.Attempts),
		attribute.Bool("recovered", res.Recovered),
	)
	if err == nil {
		return nil
	}

	count(ctx, r.inst.setupFailures, resultFailed)
	if delErr := wc.Delete(ctx); delErr != nil {
		logger.Error("failed to delete working copy after setup failure", zap.Error(delErr))
		err = errors.Join(err, delErr)
	}
	err = fmt.Errorf("set up working copy: %w", err)
	fail(span, err)
	return err
}
