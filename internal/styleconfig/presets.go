package styleconfig

import "sort"

// Preset names.
const (
	PresetNone        = "none"
	PresetPSR1        = "psr1"
	PresetPSR2        = "psr2"
	PresetRecommended = "recommended"
)

// DefaultPreset applies when a document names none.
const DefaultPreset = PresetRecommended

var psr1 = []string{
	"encoding",
	"short_tag",
}

var psr2 = append(append([]string(nil), psr1...),
	"braces",
	"elseif",
	"eof_ending",
	"function_call_space",
	"function_declaration",
	"indentation",
	"line_after_namespace",
	"linefeed",
	"lowercase_constants",
	"lowercase_keywords",
	"method_argument_space",
	"multiple_use",
	"parenthesis",
	"php_closing_tag",
	"single_line_after_imports",
	"trailing_spaces",
	"visibility",
)

var recommended = append(append([]string(nil), psr2...),
	"blankline_after_open_tag",
	"concat_without_spaces",
	"extra_empty_lines",
	"ordered_use",
	"phpdoc_indent",
	"remove_leading_slash_use",
	"return",
	"short_array_syntax",
	"unused_use",
	"whitespacy_lines",
)

var presets = map[string][]string{
	PresetNone:        nil,
	PresetPSR1:        psr1,
	PresetPSR2:        psr2,
	PresetRecommended: recommended,
}

// Presets returns the known preset names, sorted.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PresetRules returns a copy of the rules of a preset.
func PresetRules(name string) ([]string, bool) {
	rules, ok := presets[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), rules...), true
}
