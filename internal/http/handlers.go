package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/stylefix/internal/fixer"
	"github.com/fyrsmithlabs/stylefix/internal/report"
	"github.com/fyrsmithlabs/stylefix/internal/styleconfig"
	"github.com/fyrsmithlabs/stylefix/internal/vcs"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Analyzer produces style reports for a project revision.
type Analyzer interface {
	Analyze(ctx context.Context, p fixer.Project, opts fixer.AnalyzeOptions) (*report.Report, error)
}

// Applier commits and publishes a diff.
type Applier interface {
	Apply(ctx context.Context, p fixer.Project, diff string, opts fixer.ApplyOptions) (string, error)
}

// Tester runs a configuration against a code sample.
type Tester interface {
	Test(ctx context.Context, sample string, opts fixer.TestOptions) (*fixer.Results, error)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	if s.services.Analyzer == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "analysis is not enabled")
	}
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid analyze request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	unlock := s.locks.lock(req.Project.ID)
	defer unlock()

	rep, err := s.services.Analyzer.Analyze(c.Request().Context(), req.Project, fixer.AnalyzeOptions{
		Key:           req.Key,
		Config:        optionalConfig(req.Config),
		Header:        req.Header,
		DefaultBranch: req.DefaultBranch,
		NoCache:       req.NoCache,
	})
	if err != nil {
		return s.failure("analyze", err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (s *Server) handleApply(c echo.Context) error {
	if s.services.Applier == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "apply is not enabled")
	}
	var req ApplyRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid apply request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	opts := fixer.ApplyOptions{Target: req.Target, Message: req.Message, Key: req.Key}
	if req.Author != "" {
		author, err := vcs.ParseSignature(req.Author)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		opts.Author = &author
	}

	unlock := s.locks.lock(req.Project.ID)
	defer unlock()

	commit, err := s.services.Applier.Apply(c.Request().Context(), req.Project, req.Diff, opts)
	if err != nil {
		return s.failure("apply", err)
	}
	return c.JSON(http.StatusOK, ApplyResponse{Commit: commit})
}

func (s *Server) handleTestConfig(c echo.Context) error {
	if s.services.Tester == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "configuration testing is not enabled")
	}
	var req TestConfigRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid test-config request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Sample == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sample field is required")
	}

	results, err := s.services.Tester.Test(c.Request().Context(), req.Sample, fixer.TestOptions{
		Config: optionalConfig(req.Config),
		Header: req.Header,
	})
	if err != nil {
		return s.failure("test-config", err)
	}
	return c.JSON(http.StatusOK, results)
}

// failure maps an operation error to a response. Caller mistakes are echoed
// back; everything else is logged and reported without detail, since it may
// carry local paths.
func (s *Server) failure(op string, err error) error {
	switch {
	case errors.Is(err, fixer.ErrInvalidProject),
		errors.Is(err, fixer.ErrEmptyDiff),
		errors.Is(err, fixer.ErrNoTarget),
		errors.Is(err, styleconfig.ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, vcs.ErrPatchConflict):
		return echo.NewHTTPError(http.StatusConflict, "diff does not apply to the commit")
	case errors.Is(err, vcs.ErrUnknownRevision):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "commit not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request canceled")
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, op+" failed")
}
