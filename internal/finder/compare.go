package finder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
)

type operator string

const (
	opEQ operator = "=="
	opNE operator = "!="
	opLT operator = "<"
	opLE operator = "<="
	opGT operator = ">"
	opGE operator = ">="
)

var (
	depthExpr = regexp.MustCompile(`^\s*(==|!=|[<>]=?)?\s*([0-9]+)\s*$`)
	dateExpr  = regexp.MustCompile(`(?i)^\s*(==|!=|[<>]=?|after|since|before|until)?\s*(.+?)\s*$`)
)

// depthRule is one constraint such as "< 3" on the directory depth of a file
// below its search root.
type depthRule struct {
	op    operator
	value int
}

func parseDepth(expr string) (depthRule, error) {
	m := depthExpr.FindStringSubmatch(expr)
	if m == nil {
		return depthRule{}, fmt.Errorf("invalid depth expression %q", expr)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return depthRule{}, fmt.Errorf("invalid depth expression %q: %w", expr, err)
	}
	op := operator(m[1])
	if op == "" {
		op = opEQ
	}
	return depthRule{op: op, value: n}, nil
}

func (r depthRule) accepts(depth int) bool {
	return compare(r.op, int64(depth), int64(r.value))
}

// dateRule compares a file's modification time against a fixed instant.
type dateRule struct {
	op     operator
	target time.Time
}

func parseDate(expr string, now time.Time) (dateRule, error) {
	m := dateExpr.FindStringSubmatch(expr)
	if m == nil {
		return dateRule{}, fmt.Errorf("invalid date expression %q", expr)
	}

	var op operator
	switch strings.ToLower(m[1]) {
	case "", "==":
		op = opEQ
	case "since", "after", ">":
		op = opGT
	case "until", "before", "<":
		op = opLT
	default:
		op = operator(m[1])
	}

	target, err := parseInstant(m[2], now)
	if err != nil {
		return dateRule{}, fmt.Errorf("invalid date expression %q: %w", expr, err)
	}
	return dateRule{op: op, target: target}, nil
}

func parseInstant(s string, now time.Time) (time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch strings.ToLower(s) {
	case "now":
		return now, nil
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	if dt, err := strfmt.ParseDateTime(s); err == nil {
		return time.Time(dt), nil
	}
	var d strfmt.Date
	if err := d.UnmarshalText([]byte(s)); err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 date-time or YYYY-MM-DD date: %w", err)
	}
	return time.Time(d), nil
}

func (r dateRule) accepts(modTime time.Time) bool {
	return compare(r.op, modTime.Unix(), r.target.Unix())
}

func compare(op operator, got, want int64) bool {
	switch op {
	case opNE:
		return got != want
	case opLT:
		return got < want
	case opLE:
		return got <= want
	case opGT:
		return got > want
	case opGE:
		return got >= want
	default:
		return got == want
	}
}
