// Package hosting talks to the code hosting API.
package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fyrsmithlabs/stylefix/internal/config"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRepository is returned for names not of the form owner/repo.
	ErrInvalidRepository = errors.New("invalid repository name")
	// ErrRepositoryNotFound is returned when the API does not know the repository.
	ErrRepositoryNotFound = errors.New("repository not found")
)

// Options configure a Client.
type Options struct {
	// Token authenticates requests. Anonymous when unset.
	Token config.Secret
	// BaseURL overrides the public API endpoint.
	BaseURL string
	// RequestsPerSecond and Burst size the client-side token bucket.
	RequestsPerSecond float64
	Burst             int
	Retry             RetryConfig
	// HTTPClient is the transport for anonymous clients. Optional.
	HTTPClient *http.Client
}

// Client is a rate-limited GitHub API client.
type Client struct {
	gh      *github.Client
	limiter *rate.Limiter
	retry   RetryConfig
	logger  *zap.Logger
}

// NewClient creates a Client.
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be positive, got %v", opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	httpClient := opts.HTTPClient
	if opts.Token.IsSet() {
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token.Value()})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	gh := github.NewClient(httpClient)

	if opts.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		gh.BaseURL = base
	}

	retryCfg := opts.Retry
	retryCfg.ApplyDefaults()

	return &Client{
		gh:      gh,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		retry:   retryCfg,
		logger:  logger,
	}, nil
}

// DefaultBranch returns the default branch of the repository named
// "owner/repo".
func (c *Client) DefaultBranch(ctx context.Context, fullName string) (string, error) {
	owner, repo, err := splitName(fullName)
	if err != nil {
		return "", err
	}

	var branch string
	_, err = retry(ctx, c.retry, c.logger, func() (*github.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return resp, err
		}
		branch = r.GetDefaultBranch()
		return resp, nil
	})
	if err != nil {
		var errResp *github.ErrorResponse
		if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s", ErrRepositoryNotFound, fullName)
		}
		return "", fmt.Errorf("get repository %s: %w", fullName, err)
	}
	if branch == "" {
		return "", fmt.Errorf("repository %s has no default branch", fullName)
	}
	return branch, nil
}

func splitName(fullName string) (string, string, error) {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRepository, fullName)
	}
	return owner, repo, nil
}
