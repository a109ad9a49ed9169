// Package template expands ${name} placeholders in kernel source blueprints.
package template

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolvedPlaceholder is returned when a blueprint references a key the
// mapping does not provide.
var ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")

// UnresolvedPlaceholderError names the missing key.
type UnresolvedPlaceholderError struct {
	Key string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("unresolved placeholder: ${%s} has no value", e.Key)
}

func (e *UnresolvedPlaceholderError) Unwrap() error {
	return ErrUnresolvedPlaceholder
}

// Blueprint is source text containing ${name} placeholders.
type Blueprint string

// Params maps placeholder names to replacement text.
type Params map[string]string

// Substitute replaces every placeholder in bp with its value from p.
// Values are inserted verbatim and never rescanned. A placeholder without a
// value fails the whole call.
func Substitute(bp Blueprint, p Params) (string, error) {
	var missing string
	out := expand(string(bp), func(name string) (string, bool) {
		v, ok := p[name]
		if !ok && missing == "" {
			missing = name
		}
		return v, ok
	})
	if missing != "" {
		return "", &UnresolvedPlaceholderError{Key: missing}
	}
	return out, nil
}

// Bind replaces the placeholders p knows about and leaves the rest in place,
// producing a new blueprint. Used to compose blueprints from parts.
func Bind(bp Blueprint, p Params) Blueprint {
	return Blueprint(expand(string(bp), func(name string) (string, bool) {
		v, ok := p[name]
		return v, ok
	}))
}

// Placeholders returns the distinct placeholder names in bp in order of
// first appearance.
func Placeholders(bp Blueprint) []string {
	seen := make(map[string]bool)
	var names []string
	scan(string(bp), func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	})
	return names
}

// Residual reports placeholder tokens still present in generated text.
func Residual(text string) []string {
	return Placeholders(Blueprint(text))
}

// Concat joins blueprints end to end.
func Concat(parts ...Blueprint) Blueprint {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(string(p))
	}
	return Blueprint(sb.String())
}

// expand walks s once. lookup returns the replacement for a name; when it
// reports false the original token is kept.
func expand(s string, lookup func(name string) (string, bool)) string {
	var b strings.Builder
	b.Grow(len(s))
	n := len(s)
	for i := 0; i < n; i++ {
		c := s[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		name, end, ok := token(s, i)
		if !ok {
			b.WriteByte(c)
			continue
		}
		if v, found := lookup(name); found {
			b.WriteString(v)
		} else {
			b.WriteString(s[i:end])
		}
		i = end - 1
	}
	return b.String()
}

func scan(s string, visit func(name string)) {
	for i := 0; i < len(s); i++ {
		if s[i] != '$' {
			continue
		}
		if name, end, ok := token(s, i); ok {
			visit(name)
			i = end - 1
		}
	}
}

// token parses "${name}" starting at s[i] == '$'. end is the index just past
// the closing brace.
func token(s string, i int) (name string, end int, ok bool) {
	if i+2 >= len(s) || s[i+1] != '{' {
		return "", 0, false
	}
	j := i + 2
	for j < len(s) && isNameByte(s[j], j == i+2) {
		j++
	}
	if j == i+2 || j >= len(s) || s[j] != '}' {
		return "", 0, false
	}
	return s[i+2 : j], j + 1, true
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
