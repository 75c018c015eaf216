package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStyleConfig(t *testing.T) {
	rules := []string{"trailing_spaces", "ordered_use", "", "ordered_use"}
	cfg := NewStyleConfig(Settings{Rules: rules, CachePath: "/tmp/x.cache", Linting: true, Header: "h"})

	assert.Equal(t, []string{"ordered_use", "trailing_spaces"}, cfg.Rules())
	assert.True(t, cfg.Enabled("ordered_use"))
	assert.False(t, cfg.Enabled("eof_ending"))
	assert.True(t, cfg.CacheEnabled())
	assert.Equal(t, "/tmp/x.cache", cfg.CachePath())
	assert.True(t, cfg.Linting())
	assert.Equal(t, "h", cfg.Header())
	assert.Nil(t, cfg.Files())

	rules[1] = "mutated"
	got := cfg.Rules()
	got[0] = "mutated"
	assert.Equal(t, []string{"ordered_use", "trailing_spaces"}, cfg.Rules(), "config does not share slices")
}

func TestStyleConfig_ZeroValue(t *testing.T) {
	var cfg StyleConfig
	assert.False(t, cfg.CacheEnabled())
	assert.False(t, cfg.Enabled("anything"))
	assert.Empty(t, cfg.Rules())
}

func TestErrors_Len(t *testing.T) {
	var nilErrs *Errors
	assert.Equal(t, 0, nilErrs.Len())

	errs := &Errors{
		Invalid:    []Error{{Path: "a.php"}},
		Exceptions: []Error{{Path: "b.php"}},
		Lint:       []Error{{Path: "c.php"}, {Path: "d.php"}},
		Internal:   []Error{{Message: "cache"}},
	}
	assert.Equal(t, 5, errs.Len())
}
