package vm

import (
	"fmt"
	"strings"
)

// Direction selects which way input-consuming instructions move.
// It is stamped into each consuming instruction at build time and is
// never a mutable interpreter flag: an instruction compiled for one
// direction can never execute in the other.
type Direction int8

const (
	// Forward reads the unit at the current position and advances past it.
	Forward Direction = 1

	// Reverse reads the unit immediately behind the current position and
	// moves the position backward past it. Used to evaluate lookbehind
	// bodies with the same interpreter that runs forward matches.
	Reverse Direction = -1
)

// String returns a human-readable representation of the Direction
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return fmt.Sprintf("Direction(%d)", int8(d))
	}
}

// Opcode identifies the operation an instruction performs.
// The set is closed: the Processor dispatches with an exhaustive switch,
// so adding an opcode forces every interpreter site to handle it.
type Opcode uint8

const (
	// OpUnit compares one literal unit at the current position (per the
	// instruction's Direction) and steps past it on success.
	OpUnit Opcode = iota

	// OpUnitRun compares a literal run of N units as a single instruction.
	// A quoted run reverse-matches as one instruction spanning N units,
	// never as N single-unit instructions, so save-point bookkeeping stays
	// proportional to pattern structure rather than literal length.
	OpUnitRun

	// OpClass matches one unit against a set of rune ranges. The ranges
	// apply to the unit's base rune, so in grapheme mode a composed
	// cluster is consumed whole when its base character qualifies.
	OpClass

	// OpAny matches any single unit, including newline.
	OpAny

	// OpAdvance moves the position by Count units in the instruction's
	// direction without comparing. Fails if that would leave the input.
	OpAdvance

	// OpBranch pushes a save point for the fallthrough continuation, then
	// jumps to Target. This is the alternation choice point.
	OpBranch

	// OpJump transfers control to Target unconditionally.
	OpJump

	// OpRepeat is the bounded/unbounded repetition driver over a one-unit
	// predicate (Ranges; nil means any unit). Greedy attempts the maximum
	// count first, lazy the minimum, backing off or extending one
	// repetition at a time through the save-point stack.
	OpRepeat

	// OpBeginCap records the current position as the start of capture
	// group Cap.
	OpBeginCap

	// OpEndCap records the current position as the end of capture
	// group Cap.
	OpEndCap

	// OpAssert checks a zero-width anchor (Look) at the current position.
	OpAssert

	// OpSave pushes a marker save point whose resume pc is Target.
	// Assertion entries use it: if the assertion body fails, control
	// lands on Target with the pre-assertion position restored.
	OpSave

	// OpClear discards the most recent save point without restoring it.
	OpClear

	// OpClearThrough discards save points up to and including the marker
	// pushed by the OpSave whose resume pc is Target, and restores the
	// position recorded in that marker. A succeeding zero-width assertion
	// leaves no residual backtracking state behind it.
	OpClearThrough

	// OpFail forces a backtrack (pop the most recent save point).
	OpFail

	// OpAccept terminates the attempt successfully with the current
	// capture table.
	OpAccept
)

// String returns a human-readable representation of the Opcode
func (op Opcode) String() string {
	switch op {
	case OpUnit:
		return "Unit"
	case OpUnitRun:
		return "UnitRun"
	case OpClass:
		return "Class"
	case OpAny:
		return "Any"
	case OpAdvance:
		return "Advance"
	case OpBranch:
		return "Branch"
	case OpJump:
		return "Jump"
	case OpRepeat:
		return "Repeat"
	case OpBeginCap:
		return "BeginCap"
	case OpEndCap:
		return "EndCap"
	case OpAssert:
		return "Assert"
	case OpSave:
		return "Save"
	case OpClear:
		return "Clear"
	case OpClearThrough:
		return "ClearThrough"
	case OpFail:
		return "Fail"
	case OpAccept:
		return "Accept"
	default:
		return fmt.Sprintf("Unknown(%d)", op)
	}
}

// Look identifies a zero-width anchor assertion.
type Look uint8

const (
	// LookStartText matches only at the start of input (\A)
	LookStartText Look = iota

	// LookEndText matches only at the end of input (\z)
	LookEndText

	// LookStartLine matches at the start of input or after a newline (^)
	LookStartLine

	// LookEndLine matches at the end of input or before a newline ($)
	LookEndLine

	// LookWordBoundary matches at a word/non-word transition (\b)
	LookWordBoundary

	// LookNoWordBoundary matches where there is no word boundary (\B)
	LookNoWordBoundary
)

// String returns a human-readable representation of the Look
func (l Look) String() string {
	switch l {
	case LookStartText:
		return `\A`
	case LookEndText:
		return `\z`
	case LookStartLine:
		return "^"
	case LookEndLine:
		return "$"
	case LookWordBoundary:
		return `\b`
	case LookNoWordBoundary:
		return `\B`
	default:
		return fmt.Sprintf("Look(%d)", l)
	}
}

// RuneRange is an inclusive rune interval [Lo, Hi] used by OpClass and
// as the OpRepeat predicate.
type RuneRange struct {
	Lo, Hi rune
}

// UnitMode fixes the granularity of a "unit": Unicode code points or
// grapheme clusters. It is chosen at build time and must be consistent
// across forward and reverse operations, so it lives on the Program.
type UnitMode uint8

const (
	// RuneUnits treats each Unicode code point as one unit
	RuneUnits UnitMode = iota

	// GraphemeUnits treats each grapheme cluster as one unit
	GraphemeUnits
)

// String returns a human-readable representation of the UnitMode
func (m UnitMode) String() string {
	switch m {
	case RuneUnits:
		return "runes"
	case GraphemeUnits:
		return "graphemes"
	default:
		return fmt.Sprintf("UnitMode(%d)", m)
	}
}

// Inst is a single instruction. Which fields are meaningful depends on Op.
type Inst struct {
	Op  Opcode
	Dir Direction // consuming ops only; stamped at build time

	// Target is an absolute instruction index for OpBranch, OpJump,
	// OpSave and OpClearThrough. During building it holds a Label until
	// Build resolves it.
	Target int

	Rune   rune        // OpUnit
	Runes  []rune      // OpUnitRun, in source (forward) order
	Ranges []RuneRange // OpClass; OpRepeat predicate (nil = any unit)

	// Fold requests case-insensitive comparison (simple case folding)
	Fold bool

	// Boundary requires a grapheme-cluster boundary at the landing
	// position after the instruction consumes its units
	Boundary bool

	Greedy   bool // OpRepeat
	Min, Max int  // OpRepeat count window; Max < 0 means unbounded
	Count    int  // OpAdvance
	Cap      int  // OpBeginCap, OpEndCap
	Look     Look // OpAssert
}

// Program is an immutable, position-addressable encoding of a compiled
// pattern. It is built once, validated at construction time, and may be
// shared read-only across any number of concurrent match attempts.
type Program struct {
	insts    []Inst
	dir      Direction
	mode     UnitMode
	capCount int
}

// Len returns the number of instructions in the program
func (p *Program) Len() int {
	return len(p.insts)
}

// Inst returns the instruction at the given index.
// Returns nil if the index is out of range.
func (p *Program) Inst(i int) *Inst {
	if i < 0 || i >= len(p.insts) {
		return nil
	}
	return &p.insts[i]
}

// Dir returns the direction of the program's root scope
func (p *Program) Dir() Direction {
	return p.dir
}

// Mode returns the unit granularity the program was built for
func (p *Program) Mode() UnitMode {
	return p.mode
}

// CaptureCount returns the number of capture groups the program may
// write. Valid capture ids are [0, CaptureCount).
func (p *Program) CaptureCount() int {
	return p.capCount
}

// Disassemble returns a human-readable listing of the program,
// one instruction per line. Intended for debugging and tests.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	for i := range p.insts {
		in := &p.insts[i]
		fmt.Fprintf(&sb, "%4d  %s", i, in.Op)
		switch in.Op {
		case OpUnit:
			fmt.Fprintf(&sb, " %q %s", in.Rune, in.Dir)
			if in.Fold {
				sb.WriteString(" fold")
			}
			if in.Boundary {
				sb.WriteString(" boundary")
			}
		case OpUnitRun:
			fmt.Fprintf(&sb, " %q %s", string(in.Runes), in.Dir)
			if in.Fold {
				sb.WriteString(" fold")
			}
			if in.Boundary {
				sb.WriteString(" boundary")
			}
		case OpClass:
			fmt.Fprintf(&sb, " %s %s", formatRanges(in.Ranges), in.Dir)
		case OpAny:
			fmt.Fprintf(&sb, " %s", in.Dir)
		case OpAdvance:
			fmt.Fprintf(&sb, " %d %s", in.Count, in.Dir)
		case OpBranch, OpJump, OpSave, OpClearThrough:
			fmt.Fprintf(&sb, " -> %d", in.Target)
		case OpRepeat:
			pred := "any"
			if in.Ranges != nil {
				pred = formatRanges(in.Ranges)
			}
			policy := "lazy"
			if in.Greedy {
				policy = "greedy"
			}
			if in.Max < 0 {
				fmt.Fprintf(&sb, " %s {%d,} %s %s", pred, in.Min, policy, in.Dir)
			} else {
				fmt.Fprintf(&sb, " %s {%d,%d} %s %s", pred, in.Min, in.Max, policy, in.Dir)
			}
		case OpBeginCap, OpEndCap:
			fmt.Fprintf(&sb, " %d", in.Cap)
		case OpAssert:
			fmt.Fprintf(&sb, " %s", in.Look)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func formatRanges(ranges []RuneRange) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, r := range ranges {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if r.Lo == r.Hi {
			fmt.Fprintf(&sb, "%q", r.Lo)
		} else {
			fmt.Fprintf(&sb, "%q-%q", r.Lo, r.Hi)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// String returns a short summary of the program
func (p *Program) String() string {
	return fmt.Sprintf("Program{insts: %d, dir: %s, mode: %s, captures: %d}",
		len(p.insts), p.dir, p.mode, p.capCount)
}
