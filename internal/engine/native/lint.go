package native

import (
	"errors"
	"fmt"
)

// lint checks that src parses. The message names the file by its absolute
// path, the way the PHP binary reports it.
func lint(path, src string) error {
	_, err := lex(src)
	if err == nil {
		return nil
	}
	var se *syntaxError
	if errors.As(err, &se) {
		return fmt.Errorf("PHP Parse error: syntax error, %s in %s on line %d", se.msg, path, se.line)
	}
	return fmt.Errorf("PHP Parse error: %v in %s", err, path)
}
