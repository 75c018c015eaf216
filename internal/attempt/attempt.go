// Package attempt runs an operation against a disposable resource, deleting
// the resource and trying exactly once more when the first attempt fails.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// MaxAttempts is the total number of times an operation is run.
const MaxAttempts = 2

// Resource is something that can be thrown away and rebuilt by the operation.
type Resource interface {
	Delete(ctx context.Context) error
}

// Policy is the named retry policy for repository setup.
type Policy struct {
	// Backoff is waited between the failed attempt and the deletion.
	Backoff time.Duration
	Logger  *zap.Logger
}

// Result describes how an operation completed.
type Result struct {
	Attempts  int
	Recovered bool
}

// Do runs op. On failure it waits Backoff, deletes res and runs op once more.
//
// A second failure is returned wrapped so errors.Is still matches it. If the
// deletion fails, op is not run again and both errors are returned joined.
func (p Policy) Do(ctx context.Context, res Resource, op func(context.Context) error) (Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	firstErr := op(ctx)
	if firstErr == nil {
		return Result{Attempts: 1}, nil
	}

	logger.Warn("attempt failed, discarding resource and retrying",
		zap.Int("attempt", 1),
		zap.Int("max_attempts", MaxAttempts),
		zap.Duration("backoff", p.Backoff),
		zap.Error(firstErr),
	)

	if err := p.wait(ctx); err != nil {
		recoveriesTotal.WithLabelValues(resultCanceled).Inc()
		return Result{Attempts: 1}, errors.Join(firstErr, fmt.Errorf("retry canceled: %w", err))
	}

	if err := res.Delete(ctx); err != nil {
		recoveriesTotal.WithLabelValues(resultCleanupFailed).Inc()
		logger.Error("failed to discard resource before retry", zap.Error(err))
		return Result{Attempts: 1}, errors.Join(firstErr, fmt.Errorf("discard before retry: %w", err))
	}

	if err := op(ctx); err != nil {
		recoveriesTotal.WithLabelValues(resultFailed).Inc()
		logger.Warn("attempt failed after recovery",
			zap.Int("attempt", MaxAttempts),
			zap.Error(err),
		)
		return Result{Attempts: MaxAttempts}, fmt.Errorf("failed after %d attempts: %w", MaxAttempts, err)
	}

	recoveriesTotal.WithLabelValues(resultRecovered).Inc()
	logger.Info("operation recovered after discarding resource", zap.Int("attempts", MaxAttempts))
	return Result{Attempts: MaxAttempts, Recovered: true}, nil
}

func (p Policy) wait(ctx context.Context) error {
	if p.Backoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
