// Package report holds the outcome of an analysis run.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/fyrsmithlabs/stylefix/internal/engine"
	"github.com/fyrsmithlabs/stylefix/internal/sanitize"
)

// Kind categorizes an ErrorRecord.
type Kind int

const (
	KindSyntaxError Kind = iota + 1
	KindFailedToFix
	KindBrokenFile
	KindInternalError
)

var kindNames = map[Kind]string{
	KindSyntaxError:   "Syntax Error",
	KindFailedToFix:   "Failed To Fix",
	KindBrokenFile:    "Broken File",
	KindInternalError: "Internal Error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText renders the display name.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown error kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText parses a display name.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if strings.EqualFold(name, string(text)) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", text)
}

// ErrorRecord is one problem found during a run. Message never contains the
// location of the working copy.
type ErrorRecord struct {
	Kind    Kind   `json:"type"`
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// Records converts engine errors into sanitized records, in the order
// syntax errors, failures to fix, broken files, internal errors.
func Records(errs *engine.Errors, workdir string) []ErrorRecord {
	if errs == nil {
		return nil
	}
	records := make([]ErrorRecord, 0, errs.Len())
	for _, e := range errs.Invalid {
		records = append(records, ErrorRecord{Kind: KindSyntaxError, File: e.Path, Message: sanitize.Message(e.Message, workdir)})
	}
	for _, e := range errs.Exceptions {
		records = append(records, ErrorRecord{Kind: KindFailedToFix, File: e.Path, Message: failedToFix(e.Path)})
	}
	for _, e := range errs.Lint {
		records = append(records, ErrorRecord{Kind: KindBrokenFile, File: e.Path, Message: sanitize.Message(e.Message, workdir)})
	}
	for _, e := range errs.Internal {
		records = append(records, ErrorRecord{Kind: KindInternalError, File: e.Path, Message: sanitize.Message(e.Message, workdir)})
	}
	return records
}

func failedToFix(file string) string {
	return "Something went wrong when we tried to fix " + file + "."
}

// Report is the immutable result of one analysis.
type Report struct {
	diff   string
	errors []ErrorRecord
	files  []string
}

// Build assembles a report from the working copy diff and the engine's
// errors. Messages are sanitized against workdir.
func Build(diff string, errs *engine.Errors, workdir string) (*Report, error) {
	return New(diff, Records(errs, workdir))
}

// New creates a report from a diff and already sanitized records.
func New(diff string, records []ErrorRecord) (*Report, error) {
	files, err := changedFiles(diff)
	if err != nil {
		return nil, err
	}
	return &Report{
		diff:   diff,
		errors: append([]ErrorRecord(nil), records...),
		files:  files,
	}, nil
}

func changedFiles(diff string) ([]string, error) {
	if strings.TrimSpace(diff) == "" {
		return nil, nil
	}
	parsed, _, err := gitdiff.Parse(strings.NewReader(diff))
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}
	files := make([]string, 0, len(parsed))
	for _, f := range parsed {
		name := f.NewName
		if f.IsDelete {
			name = f.OldName
		}
		files = append(files, name)
	}
	return files, nil
}

// Diff is the unified diff of the fixes.
func (r *Report) Diff() string { return r.diff }

// Errors returns a copy of the error records.
func (r *Report) Errors() []ErrorRecord {
	return append([]ErrorRecord(nil), r.errors...)
}

// Files returns the paths the diff touches.
func (r *Report) Files() []string {
	return append([]string(nil), r.files...)
}

// Successful reports whether the diff touches no file.
func (r *Report) Successful() bool {
	return len(r.files) == 0
}

type reportJSON struct {
	Successful bool          `json:"successful"`
	Files      []string      `json:"files"`
	Errors     []ErrorRecord `json:"errors"`
	Diff       string        `json:"diff"`
}

// MarshalJSON implements json.Marshaler.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		Successful: r.Successful(),
		Files:      r.Files(),
		Errors:     r.Errors(),
		Diff:       r.diff,
	}
	if out.Files == nil {
		out.Files = []string{}
	}
	if out.Errors == nil {
		out.Errors = []ErrorRecord{}
	}
	return json.Marshal(out)
}
