package vm

import (
	"fmt"
)

// Label is a symbolic branch target. Labels are allocated before the
// instructions they mark exist and are resolved to absolute indices by
// Build, which rejects any label left unbound.
type Label int

// Builder assembles Programs incrementally. Branch targets are symbolic
// until Build resolves and validates them, so malformed programs
// (dangling targets, bad capture ids, inverted repeat windows) are
// construction-time defects and can never surface mid-interpretation.
type Builder struct {
	insts  []Inst
	labels []int // label -> bound pc, or -1 while unbound
	maxCap int   // highest capture id referenced, -1 if none
}

// NewBuilder creates a new program builder
func NewBuilder() *Builder {
	return &Builder{
		insts:  make([]Inst, 0, 16),
		maxCap: -1,
	}
}

// NewLabel allocates a fresh, unbound label
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Bind binds the label to the next instruction emitted
func (b *Builder) Bind(l Label) {
	b.labels[l] = len(b.insts)
}

// PC returns the index of the next instruction to be emitted
func (b *Builder) PC() int {
	return len(b.insts)
}

func (b *Builder) emit(in Inst) {
	b.insts = append(b.insts, in)
}

// Unit emits an instruction matching one literal unit in the given direction
func (b *Builder) Unit(dir Direction, r rune, fold, boundary bool) {
	b.emit(Inst{Op: OpUnit, Dir: dir, Rune: r, Fold: fold, Boundary: boundary})
}

// UnitRun emits an instruction matching a literal run of units as a
// single instruction. runes are given in source (forward) order; a
// reverse run compares them right to left.
func (b *Builder) UnitRun(dir Direction, runes []rune, fold, boundary bool) {
	rs := make([]rune, len(runes))
	copy(rs, runes)
	b.emit(Inst{Op: OpUnitRun, Dir: dir, Runes: rs, Fold: fold, Boundary: boundary})
}

// Class emits an instruction matching one unit against rune ranges
func (b *Builder) Class(dir Direction, ranges []RuneRange, fold bool) {
	rs := make([]RuneRange, len(ranges))
	copy(rs, ranges)
	b.emit(Inst{Op: OpClass, Dir: dir, Ranges: rs, Fold: fold})
}

// Any emits an instruction matching any single unit
func (b *Builder) Any(dir Direction) {
	b.emit(Inst{Op: OpAny, Dir: dir})
}

// Advance emits an instruction moving the position by count units
// without comparing. It fails at run time if the move would leave the
// input.
func (b *Builder) Advance(dir Direction, count int) {
	b.emit(Inst{Op: OpAdvance, Dir: dir, Count: count})
}

// Branch emits a choice point: push a save point for the fallthrough
// continuation, then jump to target.
func (b *Builder) Branch(target Label) {
	b.emit(Inst{Op: OpBranch, Target: int(target)})
}

// Jump emits an unconditional jump to target
func (b *Builder) Jump(target Label) {
	b.emit(Inst{Op: OpJump, Target: int(target)})
}

// Repeat emits a repetition driver over a one-unit predicate.
// ranges nil means any unit; max < 0 means unbounded.
func (b *Builder) Repeat(dir Direction, ranges []RuneRange, fold, greedy bool, min, max int) {
	var rs []RuneRange
	if ranges != nil {
		rs = make([]RuneRange, len(ranges))
		copy(rs, ranges)
	}
	b.emit(Inst{Op: OpRepeat, Dir: dir, Ranges: rs, Fold: fold, Greedy: greedy, Min: min, Max: max})
}

// BeginCap emits an instruction recording the current position as the
// start of capture group id
func (b *Builder) BeginCap(id int) {
	if id > b.maxCap {
		b.maxCap = id
	}
	b.emit(Inst{Op: OpBeginCap, Cap: id})
}

// EndCap emits an instruction recording the current position as the
// end of capture group id
func (b *Builder) EndCap(id int) {
	if id > b.maxCap {
		b.maxCap = id
	}
	b.emit(Inst{Op: OpEndCap, Cap: id})
}

// Assert emits a zero-width anchor check
func (b *Builder) Assert(look Look) {
	b.emit(Inst{Op: OpAssert, Look: look})
}

// Save emits a marker save point whose resume pc is target
func (b *Builder) Save(target Label) {
	b.emit(Inst{Op: OpSave, Target: int(target)})
}

// Clear emits an instruction discarding the most recent save point
func (b *Builder) Clear() {
	b.emit(Inst{Op: OpClear})
}

// ClearThrough emits an instruction discarding save points up to and
// including the marker pushed by the Save whose resume pc is target,
// restoring the position recorded in that marker.
func (b *Builder) ClearThrough(target Label) {
	b.emit(Inst{Op: OpClearThrough, Target: int(target)})
}

// Fail emits an unconditional failure
func (b *Builder) Fail() {
	b.emit(Inst{Op: OpFail})
}

// Accept emits successful termination
func (b *Builder) Accept() {
	b.emit(Inst{Op: OpAccept})
}

// BuildOption is a functional option for configuring the built Program
type BuildOption func(*Program)

// WithDirection sets the direction of the program's root scope.
// The default is Forward.
func WithDirection(dir Direction) BuildOption {
	return func(p *Program) {
		p.dir = dir
	}
}

// WithGraphemeUnits makes the program treat grapheme clusters, rather
// than code points, as its minimal text units
func WithGraphemeUnits() BuildOption {
	return func(p *Program) {
		p.mode = GraphemeUnits
	}
}

// WithCaptureCount sets the number of capture groups. The default is
// one more than the highest capture id referenced, or zero if none.
func WithCaptureCount(n int) BuildOption {
	return func(p *Program) {
		p.capCount = n
	}
}

// Build resolves labels, validates the program and freezes it.
// The builder must not be reused after a successful Build.
func (b *Builder) Build(opts ...BuildOption) (*Program, error) {
	p := &Program{
		insts:    b.insts,
		dir:      Forward,
		mode:     RuneUnits,
		capCount: b.maxCap + 1,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := b.resolve(); err != nil {
		return nil, err
	}
	if err := b.validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// resolve rewrites label references into absolute instruction indices
func (b *Builder) resolve() error {
	for pc := range b.insts {
		in := &b.insts[pc]
		switch in.Op {
		case OpBranch, OpJump, OpSave, OpClearThrough:
			l := in.Target
			if l < 0 || l >= len(b.labels) {
				return &BuildError{Message: fmt.Sprintf("unknown label %d", l), PC: pc}
			}
			if b.labels[l] < 0 {
				return &BuildError{Message: fmt.Sprintf("unbound label %d", l), PC: pc}
			}
			in.Target = b.labels[l]
		}
	}
	return nil
}

// validate checks the invariants the Processor relies on so that no
// malformed program is ever discovered mid-interpretation
func (b *Builder) validate(p *Program) error {
	n := len(b.insts)
	if n == 0 {
		return &BuildError{Message: "empty program", PC: -1}
	}
	for pc := range b.insts {
		in := &b.insts[pc]
		switch in.Op {
		case OpBranch, OpJump, OpSave, OpClearThrough:
			if in.Target < 0 || in.Target >= n {
				return &BuildError{Message: fmt.Sprintf("target %d out of range", in.Target), PC: pc}
			}
		case OpBeginCap, OpEndCap:
			if in.Cap < 0 || in.Cap >= p.capCount {
				return &BuildError{Message: fmt.Sprintf("capture id %d out of range [0,%d)", in.Cap, p.capCount), PC: pc}
			}
		case OpRepeat:
			if in.Min < 0 {
				return &BuildError{Message: fmt.Sprintf("repeat min %d negative", in.Min), PC: pc}
			}
			if in.Max >= 0 && in.Max < in.Min {
				return &BuildError{Message: fmt.Sprintf("repeat window {%d,%d} inverted", in.Min, in.Max), PC: pc}
			}
		case OpAdvance:
			if in.Count < 0 {
				return &BuildError{Message: fmt.Sprintf("advance count %d negative", in.Count), PC: pc}
			}
		case OpUnitRun:
			if len(in.Runes) == 0 {
				return &BuildError{Message: "empty unit run", PC: pc}
			}
		case OpClass:
			if len(in.Ranges) == 0 {
				return &BuildError{Message: "empty class", PC: pc}
			}
		}
		// Consuming instructions must carry a direction.
		switch in.Op {
		case OpUnit, OpUnitRun, OpClass, OpAny, OpAdvance, OpRepeat:
			if in.Dir != Forward && in.Dir != Reverse {
				return &BuildError{Message: "consuming instruction without direction", PC: pc}
			}
		}
	}
	// The last instruction must not fall off the end of the program.
	switch b.insts[n-1].Op {
	case OpAccept, OpJump, OpFail:
	default:
		return &BuildError{Message: "program does not end in Accept, Jump or Fail", PC: n - 1}
	}
	return nil
}
