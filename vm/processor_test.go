package vm

import (
	"errors"
	"testing"
)

// buildProgram is a test helper that panics on build errors
func buildProgram(t *testing.T, fn func(b *Builder), opts ...BuildOption) *Program {
	t.Helper()
	b := NewBuilder()
	fn(b)
	prog, err := b.Build(opts...)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return prog
}

func mustRun(t *testing.T, prog *Program, text string, start int, dir Direction) Result {
	t.Helper()
	res, err := NewProcessor().Run(prog, []byte(text), start, dir)
	if err != nil {
		t.Fatalf("Run(%q, %d, %s) failed: %v", text, start, dir, err)
	}
	return res
}

func TestForwardLiteralRun(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		b.UnitRun(Forward, []rune("abc"), false, false)
		b.Accept()
	})

	tests := []struct {
		input   string
		start   int
		matched bool
		pos     int
	}{
		{"abcdef", 0, true, 3},
		{"xabc", 1, true, 4},
		{"abx", 0, false, 0},
		{"ab", 0, false, 0},
		{"", 0, false, 0},
	}
	for _, tt := range tests {
		res := mustRun(t, prog, tt.input, tt.start, Forward)
		if res.Matched != tt.matched {
			t.Errorf("%q at %d: matched = %v, want %v", tt.input, tt.start, res.Matched, tt.matched)
		}
		if tt.matched && res.Pos != tt.pos {
			t.Errorf("%q at %d: pos = %d, want %d", tt.input, tt.start, res.Pos, tt.pos)
		}
	}
}

func TestReverseLiteralRun(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		b.UnitRun(Reverse, []rune("abc"), false, false)
		b.Accept()
	}, WithDirection(Reverse))

	tests := []struct {
		input   string
		start   int
		matched bool
		pos     int
	}{
		{"xxabc", 5, true, 2},
		{"abc", 3, true, 0},
		{"abc", 2, false, 0},
		{"abx", 3, false, 0},
	}
	for _, tt := range tests {
		res := mustRun(t, prog, tt.input, tt.start, Reverse)
		if res.Matched != tt.matched {
			t.Errorf("%q at %d: matched = %v, want %v", tt.input, tt.start, res.Matched, tt.matched)
		}
		if tt.matched && res.Pos != tt.pos {
			t.Errorf("%q at %d: pos = %d, want %d", tt.input, tt.start, res.Pos, tt.pos)
		}
	}
}

// Stepping backward from position 0 must fail cleanly, never compute an
// out-of-range position or succeed zero-width.
func TestReverseAtLowerBound(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		b.Unit(Reverse, 'a', false, false)
		b.Accept()
	}, WithDirection(Reverse))

	res := mustRun(t, prog, "aaa", 0, Reverse)
	if res.Matched {
		t.Fatal("reverse step from position 0 must not match")
	}
}

func TestDirectionMismatch(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		b.Unit(Forward, 'a', false, false)
		b.Accept()
	})

	_, err := NewProcessor().Run(prog, []byte("a"), 0, Reverse)
	if !errors.Is(err, ErrDirection) {
		t.Fatalf("err = %v, want ErrDirection", err)
	}
}

func TestStartPositionOutOfRange(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		b.Unit(Forward, 'a', false, false)
		b.Accept()
	})

	for _, start := range []int{-1, 4} {
		_, err := NewProcessor().Run(prog, []byte("abc"), start, Forward)
		if !errors.Is(err, ErrStartPosition) {
			t.Errorf("start %d: err = %v, want ErrStartPosition", start, err)
		}
	}
}

// Branch must try its target first and fall back to the save point.
func TestBranchPreference(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		lA := b.NewLabel()
		lEnd := b.NewLabel()
		b.Branch(lA)
		b.Unit(Forward, 'b', false, false)
		b.Jump(lEnd)
		b.Bind(lA)
		b.Unit(Forward, 'a', false, false)
		b.Bind(lEnd)
		b.Accept()
	})

	for _, tt := range []struct {
		input   string
		matched bool
	}{
		{"a", true},
		{"b", true},
		{"c", false},
	} {
		res := mustRun(t, prog, tt.input, 0, Forward)
		if res.Matched != tt.matched {
			t.Errorf("%q: matched = %v, want %v", tt.input, res.Matched, tt.matched)
		}
	}
}

// Greedy repetition must attempt the maximum count and back off one
// repetition at a time when the downstream instruction fails.
func TestRepeatGreedyBackoff(t *testing.T) {
	// a* followed by a mandatory 'a'
	prog := buildProgram(t, func(b *Builder) {
		b.Repeat(Forward, []RuneRange{{Lo: 'a', Hi: 'a'}}, false, true, 0, -1)
		b.Unit(Forward, 'a', false, false)
		b.Accept()
	})

	res := mustRun(t, prog, "aaa", 0, Forward)
	if !res.Matched || res.Pos != 3 {
		t.Fatalf("matched = %v pos = %d, want match at 3", res.Matched, res.Pos)
	}

	res = mustRun(t, prog, "bbb", 0, Forward)
	if res.Matched {
		t.Fatal("should not match without any 'a'")
	}
}

func TestRepeatLazyExtension(t *testing.T) {
	// a*? followed by 'b': the lazy loop starts at zero and extends.
	prog := buildProgram(t, func(b *Builder) {
		b.Repeat(Forward, []RuneRange{{Lo: 'a', Hi: 'a'}}, false, false, 0, -1)
		b.Unit(Forward, 'b', false, false)
		b.Accept()
	})

	res := mustRun(t, prog, "aaab", 0, Forward)
	if !res.Matched || res.Pos != 4 {
		t.Fatalf("matched = %v pos = %d, want match at 4", res.Matched, res.Pos)
	}
	res = mustRun(t, prog, "aaac", 0, Forward)
	if res.Matched {
		t.Fatal("should not match without 'b'")
	}
}

func TestRepeatWindow(t *testing.T) {
	// a{2,4} anchored with end-of-text assertion beyond it
	prog := buildProgram(t, func(b *Builder) {
		b.Repeat(Forward, []RuneRange{{Lo: 'a', Hi: 'a'}}, false, true, 2, 4)
		b.Accept()
	})

	tests := []struct {
		input   string
		matched bool
		pos     int
	}{
		{"a", false, 0},
		{"aa", true, 2},
		{"aaaa", true, 4},
		{"aaaaaa", true, 4}, // capped at max
	}
	for _, tt := range tests {
		res := mustRun(t, prog, tt.input, 0, Forward)
		if res.Matched != tt.matched {
			t.Errorf("%q: matched = %v, want %v", tt.input, res.Matched, tt.matched)
			continue
		}
		if tt.matched && res.Pos != tt.pos {
			t.Errorf("%q: pos = %d, want %d", tt.input, res.Pos, tt.pos)
		}
	}
}

func TestRepeatReverse(t *testing.T) {
	// \d+ running backward from the end of the input
	prog := buildProgram(t, func(b *Builder) {
		b.Repeat(Reverse, []RuneRange{{Lo: '0', Hi: '9'}}, false, true, 1, -1)
		b.Accept()
	}, WithDirection(Reverse))

	res := mustRun(t, prog, "abc123", 6, Reverse)
	if !res.Matched || res.Pos != 3 {
		t.Fatalf("matched = %v pos = %d, want match ending at 3", res.Matched, res.Pos)
	}
}

// A successful zero-width assertion must restore the position and leave
// no residual backtracking state.
func TestSaveClearThroughZeroWidth(t *testing.T) {
	// (?=a)a hand-assembled
	prog := buildProgram(t, func(b *Builder) {
		lFail := b.NewLabel()
		lCont := b.NewLabel()
		b.Save(lFail)
		b.Unit(Forward, 'a', false, false)
		b.ClearThrough(lFail)
		b.Jump(lCont)
		b.Bind(lFail)
		b.Fail()
		b.Bind(lCont)
		b.Unit(Forward, 'a', false, false)
		b.Accept()
	})

	res := mustRun(t, prog, "a", 0, Forward)
	if !res.Matched || res.Pos != 1 {
		t.Fatalf("matched = %v pos = %d, want zero-width assertion then match at 1", res.Matched, res.Pos)
	}
	res = mustRun(t, prog, "b", 0, Forward)
	if res.Matched {
		t.Fatal("assertion body failure must fail the attempt")
	}
}

func TestNegativeAssertion(t *testing.T) {
	// (?!a). hand-assembled
	prog := buildProgram(t, func(b *Builder) {
		lCont := b.NewLabel()
		b.Save(lCont)
		b.Unit(Forward, 'a', false, false)
		b.ClearThrough(lCont)
		b.Fail()
		b.Bind(lCont)
		b.Any(Forward)
		b.Accept()
	})

	if res := mustRun(t, prog, "b", 0, Forward); !res.Matched {
		t.Error("should match when body fails")
	}
	if res := mustRun(t, prog, "a", 0, Forward); res.Matched {
		t.Error("should fail when body matches")
	}
}

func TestClearDiscardsSavePoint(t *testing.T) {
	// Without Clear, the Save marker would catch the failure and accept.
	prog := buildProgram(t, func(b *Builder) {
		lAlt := b.NewLabel()
		b.Save(lAlt)
		b.Clear()
		b.Fail()
		b.Bind(lAlt)
		b.Accept()
	})
	if res := mustRun(t, prog, "", 0, Forward); res.Matched {
		t.Fatal("Clear must discard the save point")
	}

	prog = buildProgram(t, func(b *Builder) {
		lAlt := b.NewLabel()
		b.Save(lAlt)
		b.Fail()
		b.Bind(lAlt)
		b.Accept()
	})
	if res := mustRun(t, prog, "", 0, Forward); !res.Matched {
		t.Fatal("without Clear the save point must catch the failure")
	}
}

// Restoring a save point must roll back capture writes made since the
// push.
func TestCaptureRollback(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		lCaps := b.NewLabel()
		lOK := b.NewLabel()
		b.Branch(lCaps)
		b.Jump(lOK)
		b.Bind(lCaps)
		b.BeginCap(1)
		b.EndCap(1)
		b.Fail()
		b.Bind(lOK)
		b.Accept()
	})

	res := mustRun(t, prog, "", 0, Forward)
	if !res.Matched {
		t.Fatal("expected match via fallthrough")
	}
	if res.Captures.Get(1).Present() {
		t.Fatalf("capture 1 = %+v, want rolled back", res.Captures.Get(1))
	}
}

func TestReverseCaptureAttribution(t *testing.T) {
	// Reverse counterpart of (x)(y): execution reaches the group's end
	// boundary first, but spans still come out with start <= end and
	// source-order group numbering.
	prog := buildProgram(t, func(b *Builder) {
		b.EndCap(2)
		b.Unit(Reverse, 'y', false, false)
		b.BeginCap(2)
		b.EndCap(1)
		b.Unit(Reverse, 'x', false, false)
		b.BeginCap(1)
		b.Accept()
	}, WithDirection(Reverse))

	res := mustRun(t, prog, "xy", 2, Reverse)
	if !res.Matched || res.Pos != 0 {
		t.Fatalf("matched = %v pos = %d, want match starting at 0", res.Matched, res.Pos)
	}
	if g := res.Captures.Get(1); g != (Span{Start: 0, End: 1}) {
		t.Errorf("group 1 = %+v, want [0,1)", g)
	}
	if g := res.Captures.Get(2); g != (Span{Start: 1, End: 2}) {
		t.Errorf("group 2 = %+v, want [1,2)", g)
	}
}

func TestAdvance(t *testing.T) {
	fwd := buildProgram(t, func(b *Builder) {
		b.Advance(Forward, 2)
		b.Accept()
	})
	if res := mustRun(t, fwd, "ab", 0, Forward); !res.Matched || res.Pos != 2 {
		t.Errorf("forward advance: matched = %v pos = %d", res.Matched, res.Pos)
	}
	if res := mustRun(t, fwd, "a", 0, Forward); res.Matched {
		t.Error("advance past end of input must fail")
	}

	rev := buildProgram(t, func(b *Builder) {
		b.Advance(Reverse, 2)
		b.Accept()
	}, WithDirection(Reverse))
	if res := mustRun(t, rev, "ab", 2, Reverse); !res.Matched || res.Pos != 0 {
		t.Errorf("reverse advance: matched = %v pos = %d", res.Matched, res.Pos)
	}
	if res := mustRun(t, rev, "ab", 1, Reverse); res.Matched {
		t.Error("advance past start of input must fail")
	}
}

// Multi-byte input: advancing moves by whole code points.
func TestAdvanceUTF8(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		b.Advance(Forward, 2)
		b.Accept()
	})
	res := mustRun(t, prog, "éx", 0, Forward)
	if !res.Matched || res.Pos != 3 {
		t.Fatalf("matched = %v pos = %d, want 3 (2-byte rune + 1)", res.Matched, res.Pos)
	}
}

// With the boundary flag, a literal may not land inside a grapheme
// cluster even in rune mode.
func TestBoundaryCheck(t *testing.T) {
	withCheck := buildProgram(t, func(b *Builder) {
		b.Unit(Forward, 'e', false, true)
		b.Accept()
	})
	without := buildProgram(t, func(b *Builder) {
		b.Unit(Forward, 'e', false, false)
		b.Accept()
	})

	// "e" followed by a combining acute accent is one cluster.
	input := "e\u0301x"
	if res := mustRun(t, withCheck, input, 0, Forward); res.Matched {
		t.Error("boundary check must reject a landing inside a cluster")
	}
	if res := mustRun(t, without, input, 0, Forward); !res.Matched {
		t.Error("without boundary check the literal matches the code point")
	}
}

// In grapheme mode class predicates apply to the cluster's base rune,
// so a composed cluster is consumed whole; a literal still requires the
// entire unit to be that one rune.
func TestClassMatchesCluster(t *testing.T) {
	input := "e\u0301x" // e + combining acute (one cluster), then x

	class := buildProgram(t, func(b *Builder) {
		b.Class(Forward, []RuneRange{{Lo: 'a', Hi: 'z'}}, false)
		b.Accept()
	}, WithGraphemeUnits())
	res := mustRun(t, class, input, 0, Forward)
	if !res.Matched || res.Pos != 3 {
		t.Fatalf("class: matched = %v pos = %d, want whole cluster [0,3)", res.Matched, res.Pos)
	}

	lit := buildProgram(t, func(b *Builder) {
		b.Unit(Forward, 'e', false, false)
		b.Accept()
	}, WithGraphemeUnits())
	if res := mustRun(t, lit, input, 0, Forward); res.Matched {
		t.Fatal("literal 'e' must not match a multi-rune cluster")
	}
}

func TestRepeatOverClusters(t *testing.T) {
	// [a-z]+ in grapheme mode: the composed cluster and the plain x both
	// count as one repetition each.
	prog := buildProgram(t, func(b *Builder) {
		b.Repeat(Forward, []RuneRange{{Lo: 'a', Hi: 'z'}}, false, true, 1, -1)
		b.Accept()
	}, WithGraphemeUnits())

	res := mustRun(t, prog, "e\u0301x", 0, Forward)
	if !res.Matched || res.Pos != 4 {
		t.Fatalf("matched = %v pos = %d, want both units consumed", res.Matched, res.Pos)
	}
}

func TestCaseFold(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		b.UnitRun(Forward, []rune("abc"), true, false)
		b.Accept()
	})
	for _, input := range []string{"abc", "ABC", "aBc"} {
		if res := mustRun(t, prog, input, 0, Forward); !res.Matched {
			t.Errorf("%q: want fold match", input)
		}
	}
	if res := mustRun(t, prog, "abd", 0, Forward); res.Matched {
		t.Error("abd must not match")
	}
}

func TestStepLimit(t *testing.T) {
	// Branch back to itself: pushes a save point per iteration, forever.
	prog := buildProgram(t, func(b *Builder) {
		lLoop := b.NewLabel()
		b.Bind(lLoop)
		b.Branch(lLoop)
		b.Accept()
	})

	p := NewProcessor()
	p.StepLimit = 1000
	_, err := p.Run(prog, []byte("x"), 0, Forward)
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("err = %v, want ErrStepLimit", err)
	}
}

// A semantic non-match is not an error; only budget exhaustion is.
func TestNoMatchIsNotAnError(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		b.Unit(Forward, 'a', false, false)
		b.Accept()
	})
	res, err := NewProcessor().Run(prog, []byte("b"), 0, Forward)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if res.Matched {
		t.Fatal("unexpected match")
	}
}

// Re-running the same attempt must produce identical results: no state
// leaks between attempts on a reused Processor.
func TestDeterminism(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		b.Repeat(Forward, []RuneRange{{Lo: 'a', Hi: 'z'}}, false, true, 1, -1)
		b.Unit(Forward, '!', false, false)
		b.Accept()
	})

	p := NewProcessor()
	first, err := p.Run(prog, []byte("hello!"), 0, Forward)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		again, err := p.Run(prog, []byte("hello!"), 0, Forward)
		if err != nil {
			t.Fatal(err)
		}
		if again.Matched != first.Matched || again.Pos != first.Pos || again.Steps != first.Steps {
			t.Fatalf("run %d: %+v, want %+v", i, again, first)
		}
	}
}

func TestAssertAnchors(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		b.Assert(LookStartText)
		b.UnitRun(Forward, []rune("ab"), false, false)
		b.Assert(LookEndText)
		b.Accept()
	})
	if res := mustRun(t, prog, "ab", 0, Forward); !res.Matched {
		t.Error("^ab$ should match ab")
	}
	if res := mustRun(t, prog, "xab", 1, Forward); res.Matched {
		t.Error("^ must fail at position 1")
	}
}

func TestWordBoundaryAssert(t *testing.T) {
	prog := buildProgram(t, func(b *Builder) {
		b.Assert(LookWordBoundary)
		b.UnitRun(Forward, []rune("cat"), false, false)
		b.Assert(LookWordBoundary)
		b.Accept()
	})
	if res := mustRun(t, prog, "a cat sat", 2, Forward); !res.Matched {
		t.Error(`\bcat\b should match at 2 in "a cat sat"`)
	}
	if res := mustRun(t, prog, "scatter", 1, Forward); res.Matched {
		t.Error(`\bcat\b should not match inside "scatter"`)
	}
}
