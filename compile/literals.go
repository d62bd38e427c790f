package compile

import (
	"regexp/syntax"
)

// PrefixLiterals returns byte strings such that every match of the
// pattern begins with one of them, for use as a prefilter. ok is false
// when no such mandatory set can be established (the pattern may start
// with a class, an optional element, or a case-folded literal).
//
// Leading lookarounds are zero-width and do not move the match start,
// so within each top-level alternative the first plain fragment
// decides; every alternative must contribute, or no set exists.
func PrefixLiterals(pattern string) ([][]byte, bool) {
	alts, err := splitAlternation(pattern)
	if err != nil {
		return nil, false
	}
	var all [][]byte
	for _, alt := range alts {
		lits, ok := sequencePrefixes(alt)
		if !ok {
			return nil, false
		}
		all = append(all, lits...)
	}
	return all, len(all) > 0
}

// sequencePrefixes extracts the mandatory prefixes of one alternative
func sequencePrefixes(pattern string) ([][]byte, bool) {
	parts, err := splitLookaround(pattern)
	if err != nil {
		return nil, false
	}
	for _, pt := range parts {
		if pt.kind != plainPart {
			continue
		}
		re, err := syntax.Parse(pt.expr, syntax.Perl)
		if err != nil {
			return nil, false
		}
		lits, ok := prefixesOf(re)
		if !ok || len(lits) == 0 {
			return nil, false
		}
		for _, l := range lits {
			if len(l) == 0 {
				return nil, false
			}
		}
		return lits, true
	}
	return nil, false
}

// prefixesOf walks a syntax tree collecting mandatory literal prefixes
func prefixesOf(re *syntax.Regexp) ([][]byte, bool) {
	switch re.Op {
	case syntax.OpLiteral:
		if re.Flags&syntax.FoldCase != 0 {
			return nil, false
		}
		return [][]byte{[]byte(string(re.Rune))}, true

	case syntax.OpCapture:
		return prefixesOf(re.Sub[0])

	case syntax.OpConcat:
		for _, sub := range re.Sub {
			switch sub.Op {
			case syntax.OpBeginText, syntax.OpBeginLine, syntax.OpEndText, syntax.OpEndLine,
				syntax.OpWordBoundary, syntax.OpNoWordBoundary, syntax.OpEmptyMatch:
				// Zero-width; the prefix comes from what follows.
				continue
			}
			return prefixesOf(sub)
		}
		return nil, false

	case syntax.OpAlternate:
		var all [][]byte
		for _, sub := range re.Sub {
			lits, ok := prefixesOf(sub)
			if !ok {
				return nil, false
			}
			all = append(all, lits...)
		}
		return all, true

	case syntax.OpPlus:
		// At least one repetition is mandatory.
		return prefixesOf(re.Sub[0])

	default:
		return nil, false
	}
}
