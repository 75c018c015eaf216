package native

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/stylefix/internal/engine"
)

// Rule names.
const (
	RuleHeaderComment  = engine.HeaderRule
	RuleOrderedUse     = "ordered_use"
	RuleTrailingSpaces = "trailing_spaces"
	RuleEOFEnding      = "eof_ending"
)

// rule rewrites a whole file. Rules run in catalog order.
type rule struct {
	name string
	fix  func(src string, cfg engine.StyleConfig) (string, error)
}

var catalog = []rule{
	{name: RuleHeaderComment, fix: fixHeaderComment},
	{name: RuleOrderedUse, fix: fixOrderedUse},
	{name: RuleTrailingSpaces, fix: fixTrailingSpaces},
	{name: RuleEOFEnding, fix: fixEOFEnding},
}

func ruleNames() []string {
	names := make([]string, 0, len(catalog))
	for _, r := range catalog {
		names = append(names, r.name)
	}
	sort.Strings(names)
	return names
}

var useStatement = regexp.MustCompile(`^use\s+([^;'"]+?)\s*;\s*$`)

// fixOrderedUse sorts each run of consecutive top-level import lines,
// case-insensitively.
func fixOrderedUse(src string, _ engine.StyleConfig) (string, error) {
	tokens, err := lex(src)
	if err != nil {
		return "", err
	}
	kinds := lineKinds(tokens)
	lines := strings.SplitAfter(src, "\n")

	isUse := func(i int) bool {
		return i < len(kinds) && kinds[i] == tokCode && useStatement.MatchString(strings.TrimRight(lines[i], "\r\n"))
	}

	for i := 0; i < len(lines); {
		if !isUse(i) {
			i++
			continue
		}
		j := i
		for j < len(lines) && isUse(j) {
			j++
		}
		block := lines[i:j]
		// The last line of the file may lack a newline; keep it last in place.
		terminated := strings.HasSuffix(block[len(block)-1], "\n")
		if !terminated {
			block[len(block)-1] += "\n"
		}
		sort.SliceStable(block, func(a, b int) bool {
			return useKey(block[a]) < useKey(block[b])
		})
		if !terminated {
			block[len(block)-1] = strings.TrimSuffix(block[len(block)-1], "\n")
		}
		i = j
	}
	return strings.Join(lines, ""), nil
}

func useKey(line string) string {
	m := useStatement.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(m[1], `\`))
}

var trailingBlanks = regexp.MustCompile(`[ \t]+(\r?\n)`)

// fixTrailingSpaces removes blanks before line ends in code and comments.
// String contents and inline HTML are left alone.
func fixTrailingSpaces(src string, _ engine.StyleConfig) (string, error) {
	tokens, err := lex(src)
	if err != nil {
		return "", err
	}
	for i := range tokens {
		t := &tokens[i]
		if t.kind != tokCode && t.kind != tokComment {
			continue
		}
		t.text = trailingBlanks.ReplaceAllString(t.text, "$1")
		if i == len(tokens)-1 {
			t.text = strings.TrimRight(t.text, " \t")
		}
	}
	return render(tokens), nil
}

// fixEOFEnding ends a non-empty file with exactly one newline.
func fixEOFEnding(src string, _ engine.StyleConfig) (string, error) {
	trimmed := strings.TrimRight(src, " \t\r\n")
	if trimmed == "" {
		return src, nil
	}
	return trimmed + "\n", nil
}

// fixHeaderComment replaces the block comment directly after the opening
// tag with the configured header. Files that do not start with an opening
// tag are left alone.
func fixHeaderComment(src string, cfg engine.StyleConfig) (string, error) {
	header := cfg.Header()
	if header == "" {
		return src, nil
	}
	tokens, err := lex(src)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 || tokens[0].kind != tokOpenTag || !strings.EqualFold(tokens[0].text, "<?php") {
		return src, nil
	}

	rest := strings.TrimLeft(render(tokens[1:]), " \t\r\n")
	if strings.HasPrefix(rest, "/*") && !strings.HasPrefix(rest, "/**") {
		end := strings.Index(rest, "*/")
		if end < 0 {
			return "", fmt.Errorf("unterminated header comment")
		}
		rest = strings.TrimLeft(rest[end+2:], " \t\r\n")
	}

	out := tokens[0].text + "\n\n" + headerComment(header) + "\n"
	if rest != "" {
		out += "\n" + rest
	}
	return out, nil
}

func headerComment(text string) string {
	text = strings.ReplaceAll(text, "*/", "*")
	var b strings.Builder
	b.WriteString("/*\n")
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			b.WriteString(" *\n")
			continue
		}
		b.WriteString(" * " + line + "\n")
	}
	b.WriteString(" */")
	return b.String()
}
