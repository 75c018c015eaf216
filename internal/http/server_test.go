package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/stylefix/internal/fixer"
	"github.com/fyrsmithlabs/stylefix/internal/report"
	"github.com/fyrsmithlabs/stylefix/internal/styleconfig"
	"github.com/fyrsmithlabs/stylefix/internal/vcs"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleDiff = `diff --git a/src/Foo.php b/src/Foo.php
--- a/src/Foo.php
+++ b/src/Foo.php
@@ -1,2 +1,2 @@
 <?php
-$a = 1;   
+$a = 1;
`

var project = fixer.Project{Name: "acme/widgets", ID: 42, Commit: "0123456789abcdef", Branch: "main"}

type fakeAnalyzer struct {
	gotProject fixer.Project
	gotOpts    fixer.AnalyzeOptions
	err        error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, p fixer.Project, opts fixer.AnalyzeOptions) (*report.Report, error) {
	f.gotProject, f.gotOpts = p, opts
	if f.err != nil {
		return nil, f.err
	}
	return report.New(sampleDiff, nil)
}

type fakeApplier struct {
	gotDiff string
	gotOpts fixer.ApplyOptions
	err     error
}

func (f *fakeApplier) Apply(_ context.Context, _ fixer.Project, diff string, opts fixer.ApplyOptions) (string, error) {
	f.gotDiff, f.gotOpts = diff, opts
	if f.err != nil {
		return "", f.err
	}
	return "abc123", nil
}

type fakeTester struct {
	gotOpts fixer.TestOptions
}

func (f *fakeTester) Test(_ context.Context, sample string, opts fixer.TestOptions) (*fixer.Results, error) {
	f.gotOpts = opts
	return &fixer.Results{Sample: sample + "\n", Errors: []report.ErrorRecord{}}, nil
}

type fakes struct {
	analyzer *fakeAnalyzer
	applier  *fakeApplier
	tester   *fakeTester
}

func setupTestServer(t *testing.T) (*Server, *fakes) {
	t.Helper()
	f := &fakes{analyzer: &fakeAnalyzer{}, applier: &fakeApplier{}, tester: &fakeTester{}}
	server, err := NewServer(Services{Analyzer: f.analyzer, Applier: f.applier, Tester: f.tester}, zap.NewNop(), nil)
	require.NoError(t, err)
	return server, f
}

func post(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, _ := setupTestServer(t)
		assert.Equal(t, "localhost:9090", server.Addr())
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(Services{Tester: &fakeTester{}}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error without services", func(t *testing.T) {
		_, err := NewServer(Services{}, zap.NewNop(), nil)
		assert.Error(t, err)
	})
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleMetrics(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandleAnalyze(t *testing.T) {
	t.Run("returns the report", func(t *testing.T) {
		server, f := setupTestServer(t)

		rec := post(t, server, "/api/v1/analyze", AnalyzeRequest{
			Project:       project,
			Config:        "preset: psr2\n",
			Header:        "Copyright Acme",
			DefaultBranch: "develop",
			NoCache:       true,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Successful bool     `json:"successful"`
			Files      []string `json:"files"`
			Diff       string   `json:"diff"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.Successful)
		assert.Equal(t, []string{"src/Foo.php"}, resp.Files)
		assert.Equal(t, sampleDiff, resp.Diff)

		assert.Equal(t, project, f.analyzer.gotProject)
		assert.Equal(t, []byte("preset: psr2\n"), f.analyzer.gotOpts.Config)
		assert.Equal(t, "Copyright Acme", f.analyzer.gotOpts.Header)
		assert.Equal(t, "develop", f.analyzer.gotOpts.DefaultBranch)
		assert.True(t, f.analyzer.gotOpts.NoCache)
	})

	t.Run("absent config stays nil", func(t *testing.T) {
		server, f := setupTestServer(t)
		rec := post(t, server, "/api/v1/analyze", AnalyzeRequest{Project: project})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, f.analyzer.gotOpts.Config)
	})

	t.Run("invalid json", func(t *testing.T) {
		server, _ := setupTestServer(t)
		rec := post(t, server, "/api/v1/analyze", "invalid json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"invalid project", fmt.Errorf("%w: %w", fixer.ErrInvalidProject, fixer.ErrMissingRef), http.StatusBadRequest, "invalid project"},
		{"invalid style config", fmt.Errorf("%w: bad preset", styleconfig.ErrInvalid), http.StatusBadRequest, "bad preset"},
		{"unknown revision", fmt.Errorf("set up working copy: %w", vcs.ErrUnknownRevision), http.StatusUnprocessableEntity, "commit not found"},
		{"canceled", context.Canceled, http.StatusServiceUnavailable, "request canceled"},
		{"internal detail is hidden", errors.New("open /var/lib/stylefix/repos/42: permission denied"), http.StatusInternalServerError, "analyze failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, f := setupTestServer(t)
			f.analyzer.err = tt.err

			rec := post(t, server, "/api/v1/analyze", AnalyzeRequest{Project: project})
			assert.Equal(t, tt.code, rec.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp["message"], tt.message)
			assert.NotContains(t, rec.Body.String(), "/var/lib")
		})
	}
}

func TestHandleApply(t *testing.T) {
	t.Run("returns the commit", func(t *testing.T) {
		server, f := setupTestServer(t)

		rec := post(t, server, "/api/v1/apply", ApplyRequest{
			Project: project,
			Diff:    sampleDiff,
			Target:  "style-fixes",
			Author:  "Jane Doe <jane@example.com>",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp ApplyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "abc123", resp.Commit)

		assert.Equal(t, sampleDiff, f.applier.gotDiff)
		assert.Equal(t, "style-fixes", f.applier.gotOpts.Target)
		require.NotNil(t, f.applier.gotOpts.Author)
		assert.Equal(t, "jane@example.com", f.applier.gotOpts.Author.Email)
	})

	t.Run("invalid author", func(t *testing.T) {
		server, f := setupTestServer(t)
		rec := post(t, server, "/api/v1/apply", ApplyRequest{Project: project, Diff: sampleDiff, Author: "nobody"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, f.applier.gotDiff)
	})

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"empty diff", fixer.ErrEmptyDiff, http.StatusBadRequest},
		{"no target", fixer.ErrNoTarget, http.StatusBadRequest},
		{"conflict", fmt.Errorf("apply: %w", vcs.ErrPatchConflict), http.StatusConflict},
		{"push failure", errors.New("push: connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, f := setupTestServer(t)
			f.applier.err = tt.err
			rec := post(t, server, "/api/v1/apply", ApplyRequest{Project: project, Diff: sampleDiff})
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestHandleTestConfig(t *testing.T) {
	t.Run("returns the fixed sample", func(t *testing.T) {
		server, f := setupTestServer(t)

		rec := post(t, server, "/api/v1/test-config", TestConfigRequest{Sample: "<?php", Config: "preset: none\n"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp fixer.Results
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "<?php\n", resp.Sample)
		assert.Empty(t, resp.Errors)
		assert.Equal(t, []byte("preset: none\n"), f.tester.gotOpts.Config)
	})

	t.Run("sample is required", func(t *testing.T) {
		server, _ := setupTestServer(t)
		rec := post(t, server, "/api/v1/test-config", TestConfigRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDisabledService(t *testing.T) {
	server, err := NewServer(Services{Tester: &fakeTester{}}, zap.NewNop(), nil)
	require.NoError(t, err)

	rec := post(t, server, "/api/v1/analyze", AnalyzeRequest{Project: project})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	rec = post(t, server, "/api/v1/apply", ApplyRequest{Project: project, Diff: sampleDiff})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_StartShutdown(t *testing.T) {
	server, err := NewServer(Services{Tester: &fakeTester{}}, zap.NewNop(), &Config{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- server.Start() }()

	require.Eventually(t, func() bool { return server.echo.ListenerAddr() != nil }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
	assert.NoError(t, <-done)
}

func TestProjectLocks(t *testing.T) {
	locks := newProjectLocks()

	var (
		mu      sync.Mutex
		active  = map[int64]int{}
		overlap bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			unlock := locks.lock(id)
			defer unlock()

			mu.Lock()
			active[id]++
			if active[id] > 1 {
				overlap = true
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active[id]--
			mu.Unlock()
		}(int64(i % 2))
	}
	wg.Wait()

	assert.False(t, overlap)
	assert.Zero(t, locks.len())
}
