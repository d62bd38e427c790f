package vm

// savePoint snapshots the machine at a choice point. Restoring one
// makes the state identical to the moment it was pushed: pc and
// position come back, and the capture log is truncated to capHeight.
type savePoint struct {
	pc        int
	pos       int
	capHeight int

	// count is a pending repetition count for OpRepeat resume points,
	// or -1 for ordinary restores. Greedy repeats back off one
	// repetition per restore; lazy repeats extend by one.
	count int

	// marker is set for frames pushed by OpSave so OpClearThrough can
	// find its matching frame without guessing from pc values
	marker bool
}

// Result is the outcome of one match attempt. A non-match is a normal
// outcome, not an error: Matched is false and the error from Run is
// nil. Resource exhaustion surfaces as ErrStepLimit instead.
type Result struct {
	// Matched reports whether the attempt accepted
	Matched bool

	// Pos is the position at accept time: the match end for a forward
	// program, the match start for a reverse one
	Pos int

	// Captures is the resolved capture table; nil unless Matched
	Captures CaptureTable

	// Steps is the number of interpreter steps consumed
	Steps int
}

// Processor executes Programs. It owns the save-point stack and the
// speculative capture log for one attempt at a time and may be reused
// across attempts; it must not be shared between goroutines. The
// Program itself is immutable and freely shared.
type Processor struct {
	// StepLimit bounds interpreter steps per attempt; zero means no
	// limit. Exhaustion is reported as ErrStepLimit, distinct from a
	// semantic non-match.
	StepLimit int

	stack []savePoint
	caps  []capEntry
}

// NewProcessor creates a Processor with no step limit
func NewProcessor() *Processor {
	return &Processor{}
}

// Run executes prog against text starting at start in the given
// direction. dir must match the direction the program was built for.
//
// Run returns (Result{Matched: false}, nil) when the pattern simply
// does not match at start, and a non-nil error only for resource
// exhaustion or a defect that escaped build validation.
func (p *Processor) Run(prog *Program, text []byte, start int, dir Direction) (Result, error) {
	if prog == nil {
		return Result{}, &BuildError{Message: "nil program", PC: -1}
	}
	if dir != prog.Dir() {
		return Result{}, ErrDirection
	}
	if start < 0 || start > len(text) {
		return Result{}, ErrStartPosition
	}
	input := NewInput(text, prog.Mode())
	return p.run(prog, input, start)
}

//nolint:gocyclo,cyclop // complexity is inherent to instruction dispatch
func (p *Processor) run(prog *Program, input *Input, start int) (Result, error) {
	p.stack = p.stack[:0]
	p.caps = p.caps[:0]

	pc := 0
	pos := start
	pending := -1
	steps := 0

	// backtrack restores the most recent save point. It returns false
	// when the stack is empty, which fails the whole attempt.
	backtrack := func() bool {
		n := len(p.stack)
		if n == 0 {
			return false
		}
		sp := p.stack[n-1]
		p.stack = p.stack[:n-1]
		pc = sp.pc
		pos = sp.pos
		p.caps = p.caps[:sp.capHeight]
		pending = sp.count
		return true
	}

	for {
		steps++
		if p.StepLimit > 0 && steps > p.StepLimit {
			return Result{Steps: steps}, ErrStepLimit
		}
		in := prog.Inst(pc)
		if in == nil {
			return Result{Steps: steps}, &BuildError{Message: "pc out of range", PC: pc}
		}

		switch in.Op {
		case OpUnit:
			r, w, ok := input.UnitAt(pos, in.Dir)
			if ok && input.SingleRune(r, w) && runeEq(r, in.Rune, in.Fold) {
				npos := step(pos, w, in.Dir)
				if !in.Boundary || input.IsBoundary(npos) {
					pos = npos
					pc++
					continue
				}
			}
			if !backtrack() {
				return Result{Steps: steps}, nil
			}

		case OpUnitRun:
			cur := pos
			ok := true
			if in.Dir == Forward {
				for _, want := range in.Runes {
					steps++
					r, w, uok := input.UnitAt(cur, Forward)
					if !uok || !input.SingleRune(r, w) || !runeEq(r, want, in.Fold) {
						ok = false
						break
					}
					cur += w
				}
			} else {
				for i := len(in.Runes) - 1; i >= 0; i-- {
					steps++
					r, w, uok := input.UnitAt(cur, Reverse)
					if !uok || !input.SingleRune(r, w) || !runeEq(r, in.Runes[i], in.Fold) {
						ok = false
						break
					}
					cur -= w
				}
			}
			if p.StepLimit > 0 && steps > p.StepLimit {
				return Result{Steps: steps}, ErrStepLimit
			}
			if ok && in.Boundary && !input.IsBoundary(cur) {
				ok = false
			}
			if ok {
				pos = cur
				pc++
				continue
			}
			if !backtrack() {
				return Result{Steps: steps}, nil
			}

		case OpClass:
			// Class predicates test the unit's base rune: in grapheme
			// mode combining marks ride along with the base character,
			// so `.` and [a-z] consume a composed cluster whole.
			r, w, ok := input.UnitAt(pos, in.Dir)
			if ok && matchRanges(r, in.Ranges, in.Fold) {
				pos = step(pos, w, in.Dir)
				pc++
				continue
			}
			if !backtrack() {
				return Result{Steps: steps}, nil
			}

		case OpAny:
			_, w, ok := input.UnitAt(pos, in.Dir)
			if ok {
				pos = step(pos, w, in.Dir)
				pc++
				continue
			}
			if !backtrack() {
				return Result{Steps: steps}, nil
			}

		case OpAdvance:
			cur := pos
			ok := true
			for i := 0; i < in.Count; i++ {
				steps++
				_, w, uok := input.UnitAt(cur, in.Dir)
				if !uok {
					ok = false
					break
				}
				cur = step(cur, w, in.Dir)
			}
			if p.StepLimit > 0 && steps > p.StepLimit {
				return Result{Steps: steps}, ErrStepLimit
			}
			if ok {
				pos = cur
				pc++
				continue
			}
			if !backtrack() {
				return Result{Steps: steps}, nil
			}

		case OpBranch:
			p.stack = append(p.stack, savePoint{
				pc:        pc + 1,
				pos:       pos,
				capHeight: len(p.caps),
				count:     -1,
			})
			pc = in.Target

		case OpJump:
			pc = in.Target

		case OpRepeat:
			entryPos := pos
			matched := true
			var n int
			if pending >= 0 {
				// Resumed from a save point: run exactly `pending`
				// repetitions from the restored entry position.
				want := pending
				pending = -1
				cur := pos
				for n = 0; n < want; n++ {
					steps++
					r, w, uok := input.UnitAt(cur, in.Dir)
					if !uok || !repeatMatches(r, in) {
						matched = false
						break
					}
					cur = step(cur, w, in.Dir)
				}
				pos = cur
			} else if in.Greedy {
				// Attempt the maximum count first.
				cur := pos
				for n = 0; in.Max < 0 || n < in.Max; {
					steps++
					r, w, uok := input.UnitAt(cur, in.Dir)
					if !uok || !repeatMatches(r, in) {
						break
					}
					cur = step(cur, w, in.Dir)
					n++
				}
				pos = cur
				matched = n >= in.Min
			} else {
				// Lazy: attempt the minimum count first.
				cur := pos
				for n = 0; n < in.Min; n++ {
					steps++
					r, w, uok := input.UnitAt(cur, in.Dir)
					if !uok || !repeatMatches(r, in) {
						matched = false
						break
					}
					cur = step(cur, w, in.Dir)
				}
				pos = cur
			}
			if p.StepLimit > 0 && steps > p.StepLimit {
				return Result{Steps: steps}, ErrStepLimit
			}
			if !matched {
				if !backtrack() {
					return Result{Steps: steps}, nil
				}
				continue
			}
			// Leave one save point behind so a downstream failure backs
			// off (greedy) or extends (lazy) by exactly one repetition.
			if in.Greedy {
				if n-1 >= in.Min {
					p.stack = append(p.stack, savePoint{
						pc:        pc,
						pos:       entryPos,
						capHeight: len(p.caps),
						count:     n - 1,
					})
				}
			} else if in.Max < 0 || n+1 <= in.Max {
				p.stack = append(p.stack, savePoint{
					pc:        pc,
					pos:       entryPos,
					capHeight: len(p.caps),
					count:     n + 1,
				})
			}
			pc++

		case OpBeginCap:
			p.caps = append(p.caps, capEntry{id: in.Cap, end: false, pos: pos})
			pc++

		case OpEndCap:
			p.caps = append(p.caps, capEntry{id: in.Cap, end: true, pos: pos})
			pc++

		case OpAssert:
			if checkLook(in.Look, input.Text(), pos) {
				pc++
				continue
			}
			if !backtrack() {
				return Result{Steps: steps}, nil
			}

		case OpSave:
			p.stack = append(p.stack, savePoint{
				pc:        in.Target,
				pos:       pos,
				capHeight: len(p.caps),
				count:     -1,
				marker:    true,
			})
			pc++

		case OpClear:
			n := len(p.stack)
			if n == 0 {
				return Result{Steps: steps}, ErrStackUnderflow
			}
			p.stack = p.stack[:n-1]
			pc++

		case OpClearThrough:
			// Discard everything the scope pushed, then restore the
			// pre-scope position from the marker itself. Captures made
			// inside the scope are deliberately kept; an outer
			// backtrack past this point still rolls them back.
			found := false
			for len(p.stack) > 0 {
				sp := p.stack[len(p.stack)-1]
				p.stack = p.stack[:len(p.stack)-1]
				if sp.marker && sp.pc == in.Target {
					pos = sp.pos
					found = true
					break
				}
			}
			if !found {
				return Result{Steps: steps}, ErrStackUnderflow
			}
			pc++

		case OpFail:
			if !backtrack() {
				return Result{Steps: steps}, nil
			}

		case OpAccept:
			return Result{
				Matched:  true,
				Pos:      pos,
				Captures: resolveCaptures(p.caps, prog.CaptureCount()),
				Steps:    steps,
			}, nil
		}
	}
}

// step moves pos by width bytes in the given direction
func step(pos, width int, dir Direction) int {
	if dir == Forward {
		return pos + width
	}
	return pos - width
}

// runeEq compares a decoded unit against a literal
func runeEq(r, want rune, fold bool) bool {
	if fold {
		return foldEqual(r, want)
	}
	return r == want
}

// repeatMatches applies an OpRepeat predicate to one unit. Like
// OpClass, the predicate tests the unit's base rune.
func repeatMatches(r rune, in *Inst) bool {
	if in.Ranges == nil {
		return true // any unit
	}
	return matchRanges(r, in.Ranges, in.Fold)
}
