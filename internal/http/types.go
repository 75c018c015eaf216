package http

import (
	"github.com/fyrsmithlabs/stylefix/internal/fixer"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// AnalyzeRequest is the request body for POST /api/v1/analyze.
type AnalyzeRequest struct {
	Project fixer.Project `json:"project"`
	// Key is a PEM private key for SSH transport.
	Key string `json:"key,omitempty"`
	// Config is a YAML style configuration replacing the project's own.
	Config        string `json:"config,omitempty"`
	Header        string `json:"header,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty"`
	NoCache       bool   `json:"no_cache,omitempty"`
}

// ApplyRequest is the request body for POST /api/v1/apply.
type ApplyRequest struct {
	Project fixer.Project `json:"project"`
	Diff    string        `json:"diff"`
	Target  string        `json:"target,omitempty"`
	Message string        `json:"message,omitempty"`
	// Author is "Name <email>".
	Author string `json:"author,omitempty"`
	Key    string `json:"key,omitempty"`
}

// ApplyResponse is the response body for POST /api/v1/apply.
type ApplyResponse struct {
	Commit string `json:"commit"`
}

// TestConfigRequest is the request body for POST /api/v1/test-config.
type TestConfigRequest struct {
	Sample string `json:"sample"`
	Config string `json:"config,omitempty"`
	Header string `json:"header,omitempty"`
}

// optionalConfig keeps an absent override distinct from an empty one.
func optionalConfig(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}
