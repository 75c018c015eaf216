package native

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokInline tokenKind = iota
	tokOpenTag
	tokCloseTag
	tokCode
	tokString
	tokComment
)

type token struct {
	kind tokenKind
	text string
	line int
}

// syntaxError is a lexing failure at a 1-based line.
type syntaxError struct {
	msg  string
	line int
}

func (e *syntaxError) Error() string {
	return fmt.Sprintf("syntax error, %s on line %d", e.msg, e.line)
}

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

type bracket struct {
	ch   byte
	line int
}

// lexer splits PHP source into inline text, tags, code, strings and
// comments, and checks that brackets balance. It is deliberately shallow:
// it knows enough to keep rules away from string and comment contents.
type lexer struct {
	src    string
	pos    int
	line   int
	tokens []token
	stack  []bracket
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) emit(kind tokenKind, start, startLine int) {
	if l.pos > start {
		l.tokens = append(l.tokens, token{kind: kind, text: l.src[start:l.pos], line: startLine})
	}
}

func (l *lexer) advance(n int) {
	l.line += strings.Count(l.src[l.pos:l.pos+n], "\n")
	l.pos += n
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		l.inline()
		if l.pos >= len(l.src) {
			break
		}
		if err := l.code(); err != nil {
			return err
		}
	}
	if len(l.stack) > 0 {
		return &syntaxError{msg: "unexpected end of file", line: l.line}
	}
	return nil
}

// inline consumes text up to and including the next open tag.
func (l *lexer) inline() {
	start, startLine := l.pos, l.line
	i := strings.Index(l.src[l.pos:], "<?")
	if i < 0 {
		l.advance(len(l.src) - l.pos)
		l.emit(tokInline, start, startLine)
		return
	}
	l.advance(i)
	l.emit(tokInline, start, startLine)

	start, startLine = l.pos, l.line
	rest := l.src[l.pos:]
	switch {
	case len(rest) >= 5 && strings.EqualFold(rest[:5], "<?php"):
		l.advance(5)
	case strings.HasPrefix(rest, "<?="):
		l.advance(3)
	default:
		l.advance(2)
	}
	l.emit(tokOpenTag, start, startLine)
}

// code consumes PHP code until a close tag or the end of input.
func (l *lexer) code() error {
	start, startLine := l.pos, l.line
	flush := func() {
		l.emit(tokCode, start, startLine)
	}

	for l.pos < len(l.src) {
		rest := l.src[l.pos:]
		c := rest[0]
		switch {
		case strings.HasPrefix(rest, "?>"):
			flush()
			s, sl := l.pos, l.line
			l.advance(2)
			l.emit(tokCloseTag, s, sl)
			return nil

		case c == '\'' || c == '"' || c == '`':
			flush()
			if err := l.quoted(c); err != nil {
				return err
			}
			start, startLine = l.pos, l.line

		case strings.HasPrefix(rest, "<<<"):
			flush()
			if err := l.heredoc(); err != nil {
				return err
			}
			start, startLine = l.pos, l.line

		case strings.HasPrefix(rest, "/*"):
			flush()
			s, sl := l.pos, l.line
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				return &syntaxError{msg: "unterminated comment", line: sl}
			}
			l.advance(end + 4)
			l.emit(tokComment, s, sl)
			start, startLine = l.pos, l.line

		case strings.HasPrefix(rest, "//") || (c == '#' && !strings.HasPrefix(rest, "#[")):
			flush()
			s, sl := l.pos, l.line
			l.lineComment()
			l.emit(tokComment, s, sl)
			start, startLine = l.pos, l.line

		case c == '(' || c == '[' || c == '{':
			l.stack = append(l.stack, bracket{ch: c, line: l.line})
			l.advance(1)

		case c == ')' || c == ']' || c == '}':
			n := len(l.stack)
			if n == 0 || l.stack[n-1].ch != closers[c] {
				return &syntaxError{msg: fmt.Sprintf("unexpected '%c'", c), line: l.line}
			}
			l.stack = l.stack[:n-1]
			l.advance(1)

		default:
			l.advance(1)
		}
	}
	flush()
	return nil
}

// lineComment consumes a comment through its newline, stopping short of a
// close tag.
func (l *lexer) lineComment() {
	rest := l.src[l.pos:]
	end := len(rest)
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		end = i + 1
	}
	if i := strings.Index(rest[:end], "?>"); i >= 0 {
		end = i
	}
	l.advance(end)
}

func (l *lexer) quoted(quote byte) error {
	s, sl := l.pos, l.line
	i := 1
	for i < len(l.src)-l.pos {
		switch l.src[l.pos+i] {
		case '\\':
			i += 2
			continue
		case quote:
			l.advance(i + 1)
			l.emit(tokString, s, sl)
			return nil
		}
		i++
	}
	return &syntaxError{msg: "unterminated string", line: sl}
}

func (l *lexer) heredoc() error {
	s, sl := l.pos, l.line
	rest := l.src[l.pos+3:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return &syntaxError{msg: "unexpected '<<<'", line: sl}
	}
	label := strings.Trim(strings.TrimSpace(rest[:nl]), `'"`)
	if label == "" || !isIdentifier(label) {
		return &syntaxError{msg: "unexpected '<<<'", line: sl}
	}

	body := rest[nl+1:]
	offset := 3 + nl + 1
	for {
		lineEnd := strings.IndexByte(body, '\n')
		current := body
		if lineEnd >= 0 {
			current = body[:lineEnd]
		}
		trimmed := strings.TrimLeft(current, " \t")
		if strings.HasPrefix(trimmed, label) && !startsIdentifier(trimmed[len(label):]) {
			closeAt := offset + (len(current) - len(trimmed)) + len(label)
			l.advance(closeAt)
			l.emit(tokString, s, sl)
			return nil
		}
		if lineEnd < 0 {
			return &syntaxError{msg: "unexpected end of file in heredoc", line: sl}
		}
		body = body[lineEnd+1:]
		offset += lineEnd + 1
	}
}

func isIdentifier(s string) bool {
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r >= 0x80 {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return s != ""
}

func startsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}

func render(tokens []token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.text)
	}
	return b.String()
}

// lineKinds returns, for every line of the source, the kind of token its
// first byte belongs to. Index 0 is line 1.
func lineKinds(tokens []token) []tokenKind {
	var kinds []tokenKind
	atLineStart := true
	for _, t := range tokens {
		for i := 0; i < len(t.text); i++ {
			if atLineStart {
				kinds = append(kinds, t.kind)
				atLineStart = false
			}
			if t.text[i] == '\n' {
				atLineStart = true
			}
		}
	}
	return kinds
}
