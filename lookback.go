// Package lookback provides a backtracking regex engine with full
// lookbehind support.
//
// Patterns compile to bytecode for a bidirectional matching VM: every
// input-consuming instruction exists in a forward and a reverse form,
// so lookbehind bodies are evaluated by the same interpreter running
// backwards over the same program representation instead of by a
// second assertion engine.
//
// Basic usage:
//
//	re, err := lookback.Compile(`(?<=USD )\d+`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	loc, err := re.FindIndex([]byte("price: USD 250"))
//	// loc == []int{11, 14}
//
// A compiled Regexp is immutable and safe for concurrent use; per-search
// state lives in pooled vm.Processor instances.
//
// This is a backtracking engine: worst-case time is exponential. Set
// Config.StepLimit to bound pathological patterns; exhausting the
// budget is reported as vm.ErrStepLimit, distinct from a non-match.
package lookback

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
	"github.com/rivo/uniseg"

	"github.com/coregx/lookback/compile"
	"github.com/coregx/lookback/vm"
)

// Config controls compilation and matching behavior
type Config struct {
	// StepLimit bounds interpreter steps per match attempt; zero means
	// no limit
	StepLimit int

	// GraphemeUnits makes the pattern operate on grapheme clusters
	// instead of code points
	GraphemeUnits bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{}
}

// Regexp is a compiled pattern. It is safe for concurrent use by
// multiple goroutines.
type Regexp struct {
	expr      string
	prog      *vm.Program
	config    Config
	prefilter *ahocorasick.Automaton
	procs     sync.Pool
}

// Compile compiles a pattern with the default configuration
func Compile(expr string) (*Regexp, error) {
	return CompileWithConfig(expr, DefaultConfig())
}

// MustCompile is like Compile but panics on error, for use in
// package-level variable initialization
func MustCompile(expr string) *Regexp {
	re, err := Compile(expr)
	if err != nil {
		panic(fmt.Sprintf("lookback: Compile(%q): %v", expr, err))
	}
	return re
}

// CompileWithConfig compiles a pattern with explicit configuration
func CompileWithConfig(expr string, cfg Config) (*Regexp, error) {
	prog, err := compile.Compile(expr, compile.Config{GraphemeUnits: cfg.GraphemeUnits})
	if err != nil {
		return nil, err
	}
	re := &Regexp{
		expr:   expr,
		prog:   prog,
		config: cfg,
	}
	re.procs.New = func() any { return vm.NewProcessor() }

	// When every match must begin with one of a known set of literals,
	// an Aho-Corasick scan finds candidate start positions and the
	// driver skips everything in between.
	if lits, ok := compile.PrefixLiterals(expr); ok {
		builder := ahocorasick.NewBuilder()
		for _, lit := range lits {
			builder.AddPattern(lit)
		}
		if auto, err := builder.Build(); err == nil {
			re.prefilter = auto
		}
	}
	return re, nil
}

// String returns the source pattern
func (re *Regexp) String() string {
	return re.expr
}

// NumSubexp returns the number of explicit capture groups
func (re *Regexp) NumSubexp() int {
	return re.prog.CaptureCount() - 1
}

// Program returns the compiled program. It is read-only.
func (re *Regexp) Program() *vm.Program {
	return re.prog
}

// Match reports whether the pattern matches anywhere in b.
// The error is non-nil only when the step budget was exhausted.
func (re *Regexp) Match(b []byte) (bool, error) {
	res, err := re.find(b, 0)
	if err != nil {
		return false, err
	}
	return res.Matched, nil
}

// MatchString is like Match for a string subject
func (re *Regexp) MatchString(s string) (bool, error) {
	return re.Match([]byte(s))
}

// FindIndex returns the [start, end) of the leftmost match, or nil
func (re *Regexp) FindIndex(b []byte) ([]int, error) {
	res, err := re.find(b, 0)
	if err != nil || !res.Matched {
		return nil, err
	}
	span := res.Captures.Get(0)
	return []int{span.Start, span.End}, nil
}

// FindSubmatchIndex returns the flattened spans of the match and all
// capture groups, stdlib-style: index 2k is the start of group k,
// 2k+1 its end, -1 for groups that did not participate. Returns nil
// when there is no match.
func (re *Regexp) FindSubmatchIndex(b []byte) ([]int, error) {
	res, err := re.find(b, 0)
	if err != nil || !res.Matched {
		return nil, err
	}
	n := re.prog.CaptureCount()
	out := make([]int, 0, 2*n)
	for id := 0; id < n; id++ {
		span := res.Captures.Get(id)
		out = append(out, span.Start, span.End)
	}
	return out, nil
}

// FindAllIndex returns the [start, end) of up to n successive
// non-overlapping matches; n < 0 means all matches
func (re *Regexp) FindAllIndex(b []byte, n int) ([][]int, error) {
	if n == 0 {
		return nil, nil
	}
	var out [][]int
	start := 0
	for start <= len(b) {
		res, err := re.find(b, start)
		if err != nil {
			return nil, err
		}
		if !res.Matched {
			break
		}
		span := res.Captures.Get(0)
		out = append(out, []int{span.Start, span.End})
		if n > 0 && len(out) == n {
			break
		}
		if span.End > start {
			start = span.End
		} else {
			// Empty match: step one unit so the scan makes progress.
			start = re.nextUnit(b, span.End)
		}
	}
	return out, nil
}

// find runs anchored attempts at successive start positions until one
// accepts or the input is exhausted. The core performs no implicit
// scanning; this driver owns start-position advancement.
func (re *Regexp) find(b []byte, from int) (vm.Result, error) {
	proc := re.procs.Get().(*vm.Processor)
	proc.StepLimit = re.config.StepLimit
	defer re.procs.Put(proc)

	for start := from; start <= len(b); {
		if re.prefilter != nil {
			m := re.prefilter.Find(b, start)
			if m == nil {
				return vm.Result{}, nil
			}
			start = m.Start
		}
		res, err := proc.Run(re.prog, b, start, vm.Forward)
		if err != nil {
			return vm.Result{}, err
		}
		if res.Matched {
			return res, nil
		}
		start = re.nextUnit(b, start)
	}
	return vm.Result{}, nil
}

// nextUnit returns the smallest valid start position after pos. In
// grapheme mode attempts only ever start on cluster boundaries, so the
// step covers the whole cluster at pos.
func (re *Regexp) nextUnit(b []byte, pos int) int {
	if pos >= len(b) {
		return pos + 1
	}
	if re.prog.Mode() == vm.GraphemeUnits {
		cluster, _, _, _ := uniseg.FirstGraphemeCluster(b[pos:], -1)
		return pos + len(cluster)
	}
	_, w := utf8.DecodeRune(b[pos:])
	return pos + w
}
