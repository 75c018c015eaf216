package logging

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/stylefix/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redactedValue = "[REDACTED]"

// Secret creates a field that records only the length of s.
func Secret(key string, s config.Secret) zap.Field {
	return zap.String(key, fmt.Sprintf("[REDACTED:%d]", len(s.Value())))
}

// redactingEncoder blanks configured keys and any string value matching a pattern.
type redactingEncoder struct {
	zapcore.Encoder
	keys     map[string]bool
	patterns []*regexp.Regexp
}

func newRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (zapcore.Encoder, error) {
	if !cfg.Enabled {
		return base, nil
	}
	enc := &redactingEncoder{Encoder: base, keys: make(map[string]bool, len(cfg.Fields))}
	for _, f := range cfg.Fields {
		enc.keys[strings.ToLower(f)] = true
	}
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		enc.patterns = append(enc.patterns, re)
	}
	return enc, nil
}

func (e *redactingEncoder) sensitive(key string) bool {
	return e.keys[strings.ToLower(key)]
}

func (e *redactingEncoder) AddString(key, val string) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return
	}
	for _, re := range e.patterns {
		if re.MatchString(val) {
			val = re.ReplaceAllString(val, redactedValue)
		}
	}
	e.Encoder.AddString(key, val)
}

func (e *redactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		val = []byte(redactedValue)
	}
	e.Encoder.AddByteString(key, val)
}

func (e *redactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *redactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *redactingEncoder) Clone() zapcore.Encoder {
	return &redactingEncoder{
		Encoder:  e.Encoder.Clone(),
		keys:     e.keys,
		patterns: e.patterns,
	}
}
