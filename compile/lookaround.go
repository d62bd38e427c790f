package compile

import (
	"errors"
	"fmt"
)

// assertKind classifies a pattern segment produced by splitLookaround
type assertKind uint8

const (
	plainPart assertKind = iota
	lookahead
	negLookahead
	lookbehind
	negLookbehind
)

// part is one top-level segment of a pattern: either a plain regex
// fragment or the body of a lookaround group.
type part struct {
	kind assertKind
	expr string
}

// ErrUnbalanced indicates an unterminated group or character class
var ErrUnbalanced = errors.New("unbalanced pattern")

// splitLookaround carves top-level lookaround groups out of a pattern.
// The stdlib parser rejects lookaround syntax, so `(?<=abc)def` is
// split into a lookbehind part "abc" and a plain part "def"; each part
// (including assertion bodies, recursively) is then small enough for
// regexp/syntax to parse. Lookarounds nested inside ordinary groups are
// not split here and surface as parse errors from regexp/syntax.
func splitLookaround(pattern string) ([]part, error) {
	var parts []part
	segStart := 0
	depth := 0
	inClass := false

	flush := func(end int) {
		if end > segStart {
			parts = append(parts, part{kind: plainPart, expr: pattern[segStart:end]})
		}
	}

	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch {
		case c == '\\':
			i += 2
			continue
		case inClass:
			if c == ']' {
				inClass = false
			}
			i++
			continue
		case c == '[':
			inClass = true
			i++
			continue
		case c == '(':
			if depth == 0 {
				if kind, headLen := lookaroundHead(pattern[i:]); kind != plainPart {
					end, err := matchParen(pattern, i)
					if err != nil {
						return nil, err
					}
					flush(i)
					parts = append(parts, part{kind: kind, expr: pattern[i+headLen : end]})
					i = end + 1
					segStart = i
					continue
				}
			}
			depth++
			i++
			continue
		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unexpected )", ErrUnbalanced)
			}
			i++
			continue
		default:
			i++
		}
	}
	if depth != 0 || inClass {
		return nil, ErrUnbalanced
	}
	flush(len(pattern))
	return parts, nil
}

// splitAlternation splits a pattern on top-level |. A | inside a
// group, a lookaround body or a character class stays put; an escaped
// \| is a literal. An empty alternative is legal and matches empty.
func splitAlternation(pattern string) ([]string, error) {
	var alts []string
	segStart := 0
	depth := 0
	inClass := false

	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch {
		case c == '\\':
			i += 2
		case inClass:
			if c == ']' {
				inClass = false
			}
			i++
		case c == '[':
			inClass = true
			i++
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unexpected )", ErrUnbalanced)
			}
			i++
		case c == '|' && depth == 0:
			alts = append(alts, pattern[segStart:i])
			i++
			segStart = i
		default:
			i++
		}
	}
	if depth != 0 || inClass {
		return nil, ErrUnbalanced
	}
	alts = append(alts, pattern[segStart:])
	return alts, nil
}

// lookaroundHead recognizes a lookaround opener at the start of s and
// returns its kind and opener length, or plainPart when s opens an
// ordinary group.
func lookaroundHead(s string) (assertKind, int) {
	switch {
	case len(s) >= 4 && s[:4] == "(?<=":
		return lookbehind, 4
	case len(s) >= 4 && s[:4] == "(?<!":
		return negLookbehind, 4
	case len(s) >= 3 && s[:3] == "(?=":
		return lookahead, 3
	case len(s) >= 3 && s[:3] == "(?!":
		return negLookahead, 3
	default:
		return plainPart, 0
	}
}

// matchParen returns the index of the ')' closing the '(' at open
func matchParen(pattern string, open int) (int, error) {
	depth := 0
	inClass := false
	for i := open; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: missing )", ErrUnbalanced)
}
