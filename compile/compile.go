// Package compile lowers regex patterns into vm bytecode.
//
// Plain syntax is parsed with stdlib regexp/syntax, the same front end
// the rest of the coregx family uses. Lookaround groups, which the
// stdlib parser rejects, are carved out beforehand: a lookbehind body
// is emitted in reverse direction, a lookahead body forward, and both
// are framed with save/clearThrough so a succeeding assertion is
// zero-width and leaves no backtracking state behind.
//
// Direction is threaded as an explicit parameter through every emit
// function. There is no mutable "reverse" flag to forget to reset.
package compile

import (
	"fmt"
	"regexp/syntax"
	"unicode/utf8"

	"github.com/coregx/lookback/vm"
)

// Config configures pattern compilation
type Config struct {
	// Direction is the direction of the program's root scope.
	// The zero value means Forward.
	Direction vm.Direction

	// GraphemeUnits makes the compiled program treat grapheme clusters
	// as its minimal text units
	GraphemeUnits bool
}

// CompileError wraps compilation errors with the offending pattern
type CompileError struct {
	Pattern string
	Err     error
}

// Error implements the error interface
func (e *CompileError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("compilation failed for pattern %q: %v", e.Pattern, e.Err)
	}
	return fmt.Sprintf("compilation failed: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *CompileError) Unwrap() error {
	return e.Err
}

// Compile lowers a pattern into a Program. Capture group 0 spans the
// whole match; explicit groups are numbered left to right across the
// entire pattern, lookaround bodies included.
func Compile(pattern string, cfg Config) (*vm.Program, error) {
	dir := cfg.Direction
	if dir == 0 {
		dir = vm.Forward
	}
	c := &compiler{
		b:       vm.NewBuilder(),
		nextCap: 1,
	}
	if dir == vm.Forward {
		c.b.BeginCap(0)
	} else {
		c.b.EndCap(0)
	}
	if err := c.emitPattern(pattern, dir); err != nil {
		return nil, &CompileError{Pattern: pattern, Err: err}
	}
	if dir == vm.Forward {
		c.b.EndCap(0)
	} else {
		c.b.BeginCap(0)
	}
	c.b.Accept()

	opts := []vm.BuildOption{
		vm.WithDirection(dir),
		vm.WithCaptureCount(c.nextCap),
	}
	if cfg.GraphemeUnits {
		opts = append(opts, vm.WithGraphemeUnits())
	}
	prog, err := c.b.Build(opts...)
	if err != nil {
		return nil, &CompileError{Pattern: pattern, Err: err}
	}
	return prog, nil
}

type compiler struct {
	b *vm.Builder

	// nextCap is the next capture id to hand out. Each pattern fragment
	// is parsed separately, so stdlib numbering restarts at 1 per
	// fragment and is renumbered into this global sequence.
	nextCap int
}

// emitPattern compiles one pattern scope. Alternation binds loosest,
// so the scope first splits on top-level |: q(?!u)|z means (q(?!u))|z,
// never q(?!u)(?:|z). Each alternative is then a sequence of plain
// fragments and lookarounds. Alternatives are emitted in source order
// so capture numbering stays left to right, with leftmost-first
// preference in both directions.
func (c *compiler) emitPattern(pattern string, dir vm.Direction) error {
	alts, err := splitAlternation(pattern)
	if err != nil {
		return err
	}
	if len(alts) == 1 {
		return c.emitSequence(alts[0], dir)
	}
	b := c.b
	lEnd := b.NewLabel()
	for i, alt := range alts {
		if i == len(alts)-1 {
			if err := c.emitSequence(alt, dir); err != nil {
				return err
			}
			break
		}
		lBody := b.NewLabel()
		lNext := b.NewLabel()
		b.Branch(lBody)
		b.Jump(lNext)
		b.Bind(lBody)
		if err := c.emitSequence(alt, dir); err != nil {
			return err
		}
		b.Jump(lEnd)
		b.Bind(lNext)
	}
	b.Bind(lEnd)
	return nil
}

// emitSequence emits one alternative: a concatenation of plain
// fragments and lookarounds, in the order the given direction visits
// them. A reverse scope attempts the rightmost segment first.
func (c *compiler) emitSequence(pattern string, dir vm.Direction) error {
	parts, err := splitLookaround(pattern)
	if err != nil {
		return err
	}
	if dir == vm.Reverse {
		for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
			parts[i], parts[j] = parts[j], parts[i]
		}
	}
	for _, pt := range parts {
		switch pt.kind {
		case plainPart:
			re, err := c.parseFragment(pt.expr)
			if err != nil {
				return err
			}
			if err := c.emit(re, dir); err != nil {
				return err
			}
		case lookbehind:
			if err := c.emitAssertion(pt.expr, vm.Reverse, false); err != nil {
				return err
			}
		case negLookbehind:
			if err := c.emitAssertion(pt.expr, vm.Reverse, true); err != nil {
				return err
			}
		case lookahead:
			if err := c.emitAssertion(pt.expr, vm.Forward, false); err != nil {
				return err
			}
		case negLookahead:
			if err := c.emitAssertion(pt.expr, vm.Forward, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseFragment parses one lookaround-free fragment and renumbers its
// capture groups into the pattern-wide sequence
func (c *compiler) parseFragment(expr string) (*syntax.Regexp, error) {
	re, err := syntax.Parse(expr, syntax.Perl)
	if err != nil {
		return nil, err
	}
	// Read the group count before renumbering; MaxCap reflects the
	// shifted ids afterwards.
	caps := re.MaxCap()
	renumberCaps(re, c.nextCap-1)
	c.nextCap += caps
	return re, nil
}

func renumberCaps(re *syntax.Regexp, shift int) {
	if re.Op == syntax.OpCapture {
		re.Cap += shift
	}
	for _, sub := range re.Sub {
		renumberCaps(sub, shift)
	}
}

// emitAssertion frames a lookaround body. The body direction is
// absolute: a lookbehind always runs in reverse from the current
// position regardless of the enclosing scope's direction.
//
// Positive:        Negative:
//
//	save Lfail        save Lcont
//	<body>            <body>
//	clearThrough      clearThrough
//	jump Lcont        fail
//	Lfail: fail       Lcont:
//	Lcont:
//
// A failing positive body backtracks into the marker, lands on the
// fail trampoline and propagates outward. A succeeding body discards
// everything it pushed and restores the pre-assertion position, so the
// assertion is zero-width in both directions.
func (c *compiler) emitAssertion(expr string, bodyDir vm.Direction, negative bool) error {
	b := c.b
	if negative {
		lCont := b.NewLabel()
		b.Save(lCont)
		if err := c.emitPattern(expr, bodyDir); err != nil {
			return err
		}
		b.ClearThrough(lCont)
		b.Fail()
		b.Bind(lCont)
		return nil
	}
	lFail := b.NewLabel()
	lCont := b.NewLabel()
	b.Save(lFail)
	if err := c.emitPattern(expr, bodyDir); err != nil {
		return err
	}
	b.ClearThrough(lFail)
	b.Jump(lCont)
	b.Bind(lFail)
	b.Fail()
	b.Bind(lCont)
	return nil
}

// emit lowers one syntax node in the given direction
//
//nolint:gocyclo,cyclop // complexity is inherent to AST dispatch
func (c *compiler) emit(re *syntax.Regexp, dir vm.Direction) error {
	b := c.b
	switch re.Op {
	case syntax.OpEmptyMatch:
		return nil

	case syntax.OpNoMatch:
		b.Fail()
		return nil

	case syntax.OpLiteral:
		fold := re.Flags&syntax.FoldCase != 0
		if len(re.Rune) == 1 {
			b.Unit(dir, re.Rune[0], fold, false)
		} else {
			b.UnitRun(dir, re.Rune, fold, false)
		}
		return nil

	case syntax.OpCharClass:
		b.Class(dir, pairsToRanges(re.Rune), false)
		return nil

	case syntax.OpAnyChar:
		b.Any(dir)
		return nil

	case syntax.OpAnyCharNotNL:
		b.Class(dir, anyNotNL(), false)
		return nil

	case syntax.OpBeginText:
		b.Assert(vm.LookStartText)
		return nil
	case syntax.OpEndText:
		b.Assert(vm.LookEndText)
		return nil
	case syntax.OpBeginLine:
		b.Assert(vm.LookStartLine)
		return nil
	case syntax.OpEndLine:
		b.Assert(vm.LookEndLine)
		return nil
	case syntax.OpWordBoundary:
		b.Assert(vm.LookWordBoundary)
		return nil
	case syntax.OpNoWordBoundary:
		b.Assert(vm.LookNoWordBoundary)
		return nil

	case syntax.OpCapture:
		// A reverse scope reaches the group's end boundary first, so
		// the boundary instructions swap while Begin keeps recording
		// the start and End the end.
		if dir == vm.Forward {
			b.BeginCap(re.Cap)
			if err := c.emit(re.Sub[0], dir); err != nil {
				return err
			}
			b.EndCap(re.Cap)
		} else {
			b.EndCap(re.Cap)
			if err := c.emit(re.Sub[0], dir); err != nil {
				return err
			}
			b.BeginCap(re.Cap)
		}
		return nil

	case syntax.OpConcat:
		return c.emitSeq(re.Sub, dir)

	case syntax.OpAlternate:
		lEnd := b.NewLabel()
		if err := c.emitAlt(re.Sub, dir, lEnd); err != nil {
			return err
		}
		b.Bind(lEnd)
		return nil

	case syntax.OpStar:
		return c.emitStar(re.Sub[0], dir, greedy(re))
	case syntax.OpPlus:
		// X+ is X followed by X*; a reverse scope attempts the star
		// side first, which emitSeq arranges.
		star := &syntax.Regexp{Op: syntax.OpStar, Flags: re.Flags, Sub: re.Sub}
		return c.emitSeq([]*syntax.Regexp{re.Sub[0], star}, dir)
	case syntax.OpQuest:
		return c.emitQuest(re.Sub[0], dir, greedy(re))
	case syntax.OpRepeat:
		return c.emitRepeat(re, dir)

	default:
		return fmt.Errorf("unsupported pattern construct %v", re.Op)
	}
}

// emitSeq emits a concatenation. A reverse scope attempts sub-patterns
// rightmost-first, each sub-pattern itself emitted in reverse.
func (c *compiler) emitSeq(subs []*syntax.Regexp, dir vm.Direction) error {
	if dir == vm.Forward {
		for _, sub := range subs {
			if err := c.emit(sub, dir); err != nil {
				return err
			}
		}
		return nil
	}
	for i := len(subs) - 1; i >= 0; i-- {
		if err := c.emit(subs[i], dir); err != nil {
			return err
		}
	}
	return nil
}

// emitAlt emits alternation with leftmost-first preference. The branch
// jumps into the preferred alternative and leaves a save point at the
// fallthrough, which holds the remaining alternatives.
func (c *compiler) emitAlt(subs []*syntax.Regexp, dir vm.Direction, lEnd vm.Label) error {
	b := c.b
	if len(subs) == 1 {
		return c.emit(subs[0], dir)
	}
	lFirst := b.NewLabel()
	b.Branch(lFirst)
	if err := c.emitAlt(subs[1:], dir, lEnd); err != nil {
		return err
	}
	b.Jump(lEnd)
	b.Bind(lFirst)
	return c.emit(subs[0], dir)
}

// emitStar emits unbounded repetition of a composite body. Primitive
// bodies take the OpRepeat fast path instead.
func (c *compiler) emitStar(sub *syntax.Regexp, dir vm.Direction, greedy bool) error {
	if c.emitPrimRepeat(sub, dir, greedy, 0, -1) {
		return nil
	}
	b := c.b
	lLoop := b.NewLabel()
	lOut := b.NewLabel()
	if greedy {
		lBody := b.NewLabel()
		b.Bind(lLoop)
		b.Branch(lBody)
		b.Jump(lOut)
		b.Bind(lBody)
		if err := c.emit(sub, dir); err != nil {
			return err
		}
		b.Jump(lLoop)
	} else {
		b.Bind(lLoop)
		b.Branch(lOut)
		if err := c.emit(sub, dir); err != nil {
			return err
		}
		b.Jump(lLoop)
	}
	b.Bind(lOut)
	return nil
}

// emitQuest emits optional matching of a composite body
func (c *compiler) emitQuest(sub *syntax.Regexp, dir vm.Direction, greedy bool) error {
	if c.emitPrimRepeat(sub, dir, greedy, 0, 1) {
		return nil
	}
	b := c.b
	lOut := b.NewLabel()
	if greedy {
		lBody := b.NewLabel()
		b.Branch(lBody)
		b.Jump(lOut)
		b.Bind(lBody)
		if err := c.emit(sub, dir); err != nil {
			return err
		}
	} else {
		b.Branch(lOut)
		if err := c.emit(sub, dir); err != nil {
			return err
		}
	}
	b.Bind(lOut)
	return nil
}

// emitRepeat emits bounded repetition {min,max}. Primitive bodies
// become a single OpRepeat; composite bodies expand into mandatory
// copies followed by nested optionals so the scope can stop early.
func (c *compiler) emitRepeat(re *syntax.Regexp, dir vm.Direction) error {
	sub := re.Sub[0]
	min, max := re.Min, re.Max
	g := greedy(re)
	if c.emitPrimRepeat(sub, dir, g, min, max) {
		return nil
	}

	var seq []*syntax.Regexp
	for i := 0; i < min; i++ {
		seq = append(seq, sub)
	}
	switch {
	case max < 0:
		seq = append(seq, &syntax.Regexp{Op: syntax.OpStar, Flags: re.Flags, Sub: []*syntax.Regexp{sub}})
	case max > min:
		var tail *syntax.Regexp
		for i := 0; i < max-min; i++ {
			inner := sub
			if tail != nil {
				inner = &syntax.Regexp{Op: syntax.OpConcat, Sub: []*syntax.Regexp{sub, tail}}
			}
			tail = &syntax.Regexp{Op: syntax.OpQuest, Flags: re.Flags, Sub: []*syntax.Regexp{inner}}
		}
		seq = append(seq, tail)
	}
	return c.emitSeq(seq, dir)
}

// emitPrimRepeat emits a one-instruction repetition when sub is a
// one-unit predicate. Returns false when sub is composite.
func (c *compiler) emitPrimRepeat(sub *syntax.Regexp, dir vm.Direction, greedy bool, min, max int) bool {
	ranges, fold, ok := primitivePred(sub)
	if !ok {
		return false
	}
	if ranges == nil && min == max {
		// Fixed-width any-unit runs need no choice point at all:
		// realign the position and move on.
		if min > 0 {
			c.b.Advance(dir, min)
		}
		return true
	}
	c.b.Repeat(dir, ranges, fold, greedy, min, max)
	return true
}

// primitivePred recognizes syntax nodes that consume exactly one unit.
// nil ranges with ok=true means "any unit".
func primitivePred(re *syntax.Regexp) (ranges []vm.RuneRange, fold bool, ok bool) {
	switch re.Op {
	case syntax.OpLiteral:
		if len(re.Rune) != 1 {
			return nil, false, false
		}
		r := re.Rune[0]
		return []vm.RuneRange{{Lo: r, Hi: r}}, re.Flags&syntax.FoldCase != 0, true
	case syntax.OpCharClass:
		return pairsToRanges(re.Rune), false, true
	case syntax.OpAnyChar:
		return nil, false, true
	case syntax.OpAnyCharNotNL:
		return anyNotNL(), false, true
	default:
		return nil, false, false
	}
}

func greedy(re *syntax.Regexp) bool {
	return re.Flags&syntax.NonGreedy == 0
}

// pairsToRanges converts regexp/syntax's flattened [lo, hi, lo, hi...]
// rune pairs into RuneRanges
func pairsToRanges(pairs []rune) []vm.RuneRange {
	ranges := make([]vm.RuneRange, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		ranges = append(ranges, vm.RuneRange{Lo: pairs[i], Hi: pairs[i+1]})
	}
	return ranges
}

func anyNotNL() []vm.RuneRange {
	return []vm.RuneRange{
		{Lo: 0, Hi: '\n' - 1},
		{Lo: '\n' + 1, Hi: utf8.MaxRune},
	}
}
