package rewrite

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// A Transform rewrites one line of text. It gets the line with its
// terminator already stripped and must not add one. Transforms run
// concurrently across files, so they have to be pure functions of
// their input.
type Transform func(string) string

// Reverse returns s with its characters in reverse order.
func Reverse(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := len(runes) - 1; i >= 0; i-- {
		b.WriteRune(runes[i])
	}
	return b.String()
}

// ReverseQuoted reverses the text between each successive pair of
// double quotes, leaving the quotes themselves and everything outside
// them alone. A quote with no closing partner leaves the rest of the
// line untouched.
func ReverseQuoted(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	rest := s
	for {
		open := strings.IndexByte(rest, '"')
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.IndexByte(rest[open+1:], '"')
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:open+1])
		b.WriteString(Reverse(rest[open+1 : open+1+end]))
		b.WriteByte('"')
		rest = rest[open+2+end:]
	}
}

// Replace returns a Transform that substitutes every match of expr
// with replacement.
func Replace(expr, replacement string) (Transform, error) {
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, err)
	}
	return func(line string) string {
		out, err := re.Replace(line, replacement, -1, -1)
		if err != nil {
			return line
		}
		return out
	}, nil
}
