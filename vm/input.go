package vm

import (
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Input wraps the subject text and is the only layer that touches raw
// byte representations. Everything above it operates purely in terms of
// positions and comparison results.
//
// Positions are byte offsets into the text. UnitAt reports the unit
// "at" a position for forward reads and "immediately before" it for
// reverse reads, and reports ok=false when the read would leave
// [0, len]. Callers must treat ok=false as unconditional failure: the
// boundary of input during a consuming step is never a silent
// zero-width success.
type Input struct {
	text []byte
	mode UnitMode

	// clusters holds ascending grapheme-cluster boundary offsets,
	// including 0 and len(text). Built on first use.
	clusters []int
}

// NewInput wraps text for matching with the given unit granularity
func NewInput(text []byte, mode UnitMode) *Input {
	return &Input{text: text, mode: mode}
}

// Len returns the length of the input in bytes
func (in *Input) Len() int {
	return len(in.text)
}

// Text returns the underlying bytes. The slice must not be modified.
func (in *Input) Text() []byte {
	return in.text
}

// UnitAt returns the unit at pos (forward) or immediately before pos
// (reverse), together with its width in bytes. ok is false when the
// read would require a position outside the input.
//
// In grapheme mode the unit is a whole cluster: r is its first rune and
// width spans the cluster. SingleRune distinguishes clusters that are
// exactly one code point.
func (in *Input) UnitAt(pos int, dir Direction) (r rune, width int, ok bool) {
	if in.mode == GraphemeUnits {
		return in.clusterAt(pos, dir)
	}
	switch dir {
	case Forward:
		if pos < 0 || pos >= len(in.text) {
			return 0, 0, false
		}
		r, width = utf8.DecodeRune(in.text[pos:])
		return r, width, true
	case Reverse:
		if pos <= 0 || pos > len(in.text) {
			return 0, 0, false
		}
		r, width = utf8.DecodeLastRune(in.text[:pos])
		return r, width, true
	}
	return 0, 0, false
}

// clusterAt resolves the grapheme cluster adjacent to pos
func (in *Input) clusterAt(pos int, dir Direction) (r rune, width int, ok bool) {
	bounds := in.boundaries()
	i := sort.SearchInts(bounds, pos)
	if i >= len(bounds) || bounds[i] != pos {
		// pos does not sit on a cluster boundary; nothing adjacent to
		// consume. Positions only land here through a malformed start
		// position, and the contract is failure, not a guess.
		return 0, 0, false
	}
	switch dir {
	case Forward:
		if i == len(bounds)-1 {
			return 0, 0, false
		}
		r, _ = utf8.DecodeRune(in.text[pos:])
		return r, bounds[i+1] - pos, true
	case Reverse:
		if i == 0 {
			return 0, 0, false
		}
		start := bounds[i-1]
		r, _ = utf8.DecodeRune(in.text[start:])
		return r, pos - start, true
	}
	return 0, 0, false
}

// SingleRune reports whether a unit returned by UnitAt consists of
// exactly one code point. Always true in rune mode; in grapheme mode a
// multi-rune cluster (e.g. e + combining accent) is not equal to any
// single literal rune.
func (in *Input) SingleRune(r rune, width int) bool {
	if in.mode == RuneUnits {
		return true
	}
	return width == utf8.RuneLen(r)
}

// IsBoundary reports whether pos lies on a grapheme-cluster boundary.
// The check is independent of direction. The ends of the input are
// always boundaries.
func (in *Input) IsBoundary(pos int) bool {
	if pos <= 0 || pos >= len(in.text) {
		return pos == 0 || pos == len(in.text)
	}
	bounds := in.boundaries()
	i := sort.SearchInts(bounds, pos)
	return i < len(bounds) && bounds[i] == pos
}

// boundaries returns the memoized grapheme-cluster boundary offsets
func (in *Input) boundaries() []int {
	if in.clusters != nil {
		return in.clusters
	}
	bounds := make([]int, 0, len(in.text)+1)
	g := uniseg.NewGraphemes(string(in.text))
	for g.Next() {
		from, _ := g.Positions()
		bounds = append(bounds, from)
	}
	bounds = append(bounds, len(in.text))
	in.clusters = bounds
	return bounds
}

// foldEqual reports whether a and b are equal under simple case folding
func foldEqual(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}

// matchRanges reports whether r falls in any of the ranges, optionally
// trying its simple case folds. nil ranges match any unit.
func matchRanges(r rune, ranges []RuneRange, fold bool) bool {
	if ranges == nil {
		return true
	}
	if inRanges(r, ranges) {
		return true
	}
	if fold {
		for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
			if inRanges(f, ranges) {
				return true
			}
		}
	}
	return false
}

func inRanges(r rune, ranges []RuneRange) bool {
	for _, rr := range ranges {
		if r >= rr.Lo && r <= rr.Hi {
			return true
		}
	}
	return false
}

// isWordByte reports whether b is an ASCII word byte, matching the
// stdlib definition of \b
func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// checkLook checks whether a zero-width anchor holds at pos. Anchors
// inspect neighbouring bytes symmetrically, so the check does not
// depend on the active direction.
func checkLook(look Look, text []byte, pos int) bool {
	switch look {
	case LookStartText:
		return pos == 0
	case LookEndText:
		return pos == len(text)
	case LookStartLine:
		return pos == 0 || text[pos-1] == '\n'
	case LookEndLine:
		return pos == len(text) || text[pos] == '\n'
	case LookWordBoundary:
		wordBefore := pos > 0 && isWordByte(text[pos-1])
		wordAfter := pos < len(text) && isWordByte(text[pos])
		return wordBefore != wordAfter
	case LookNoWordBoundary:
		wordBefore := pos > 0 && isWordByte(text[pos-1])
		wordAfter := pos < len(text) && isWordByte(text[pos])
		return wordBefore == wordAfter
	}
	return false
}
