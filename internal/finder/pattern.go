package finder

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// regexDelimiters are the characters that may wrap a regular expression
// pattern, as in "/^Foo/i" or "#src/(a|b)#".
const regexDelimiters = "/#~!@%"

// matchTimeout bounds a single regular expression evaluation.
const matchTimeout = time.Second

// matcher tests a string against a regular expression or a literal.
type matcher struct {
	source  string
	re      *regexp2.Regexp
	literal string
}

func (m matcher) match(s string) bool {
	if m.re == nil {
		return strings.Contains(s, m.literal)
	}
	ok, err := m.re.MatchString(s)
	return err == nil && ok
}

func (m matcher) String() string { return m.source }

// isRegex reports whether pattern is a delimited regular expression and
// returns its body and modifiers.
func isRegex(pattern string) (body, modifiers string, ok bool) {
	if len(pattern) < 3 || !strings.ContainsRune(regexDelimiters, rune(pattern[0])) {
		return "", "", false
	}
	end := strings.LastIndexByte(pattern, pattern[0])
	if end <= 0 {
		return "", "", false
	}
	modifiers = pattern[end+1:]
	if strings.Trim(modifiers, "imsxu") != "" {
		return "", "", false
	}
	return pattern[1:end], modifiers, true
}

func compileRegex(source, body, modifiers string) (matcher, error) {
	opts := regexp2.None
	for _, m := range modifiers {
		switch m {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'x':
			opts |= regexp2.IgnorePatternWhitespace
		}
	}
	re, err := regexp2.Compile(body, opts)
	if err != nil {
		return matcher{}, fmt.Errorf("invalid pattern %q: %w", source, err)
	}
	re.MatchTimeout = matchTimeout
	return matcher{source: source, re: re}, nil
}

// namePattern compiles a file name pattern: a regular expression or a glob.
func namePattern(pattern string) (matcher, error) {
	if body, mods, ok := isRegex(pattern); ok {
		return compileRegex(pattern, body, mods)
	}
	return compileRegex(pattern, globToRegex(pattern), "")
}

// textPattern compiles a path or content pattern: a regular expression or a
// literal substring.
func textPattern(pattern string) (matcher, error) {
	if body, mods, ok := isRegex(pattern); ok {
		return compileRegex(pattern, body, mods)
	}
	return matcher{source: pattern, literal: pattern}, nil
}

// globToRegex translates a shell glob into an anchored expression. Wildcards
// never cross a slash and {a,b} selects alternatives.
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	braces := 0
	escaping := false
	for _, r := range glob {
		if escaping {
			b.WriteString(regexp2.Escape(string(r)))
			escaping = false
			continue
		}
		switch r {
		case '\\':
			escaping = true
		case '*':
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[', ']':
			b.WriteRune(r)
		case '{':
			braces++
			b.WriteString("(?:")
		case '}':
			if braces > 0 {
				braces--
				b.WriteString(")")
			} else {
				b.WriteString(`\}`)
			}
		case ',':
			if braces > 0 {
				b.WriteString("|")
			} else {
				b.WriteString(",")
			}
		default:
			b.WriteString(regexp2.Escape(string(r)))
		}
	}
	for ; braces > 0; braces-- {
		b.WriteString(")")
	}
	b.WriteString("$")
	return b.String()
}

func compileAll(patterns []string, compile func(string) (matcher, error)) ([]matcher, error) {
	out := make([]matcher, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		m, err := compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// allMatch is true for an empty list.
func allMatch(ms []matcher, s string) bool {
	for _, m := range ms {
		if !m.match(s) {
			return false
		}
	}
	return true
}

func anyMatch(ms []matcher, s string) bool {
	for _, m := range ms {
		if m.match(s) {
			return true
		}
	}
	return false
}
