package vm

// Span is a half-open [Start, End) byte range. An absent capture is
// {-1, -1}.
type Span struct {
	Start, End int
}

// Present reports whether the span was recorded
func (s Span) Present() bool {
	return s.Start >= 0
}

// CaptureTable maps capture-group ids to their recorded spans.
// It is produced only when an attempt accepts; until then capture
// writes live in the processor's undo log and roll back with save
// points.
type CaptureTable []Span

// Get returns the span for group id, or an absent span if id is out of
// range
func (t CaptureTable) Get(id int) Span {
	if id < 0 || id >= len(t) {
		return Span{Start: -1, End: -1}
	}
	return t[id]
}

// capEntry is one speculative capture write. The log is append-only;
// restoring a save point truncates it to the height recorded at push
// time, which is the entire rollback story: captures need no separate
// undo log.
type capEntry struct {
	id  int
	end bool // true for EndCap writes, false for BeginCap
	pos int
}

// resolveCaptures folds the log into a table. Later writes to the same
// boundary win. A group missing either boundary is absent.
//
// A group matched while running in reverse records its end boundary
// before its start boundary, but EndCap always writes the end and
// BeginCap always writes the start, so no positional swap is needed;
// spans are still normalized defensively so Start <= End always holds.
func resolveCaptures(log []capEntry, n int) CaptureTable {
	t := make(CaptureTable, n)
	for i := range t {
		t[i] = Span{Start: -1, End: -1}
	}
	if len(log) == 0 {
		return t
	}
	starts := make([]int, n)
	ends := make([]int, n)
	hasStart := make([]bool, n)
	hasEnd := make([]bool, n)
	for _, e := range log {
		if e.id < 0 || e.id >= n {
			continue
		}
		if e.end {
			ends[e.id] = e.pos
			hasEnd[e.id] = true
		} else {
			starts[e.id] = e.pos
			hasStart[e.id] = true
		}
	}
	for id := 0; id < n; id++ {
		if !hasStart[id] || !hasEnd[id] {
			continue
		}
		start, end := starts[id], ends[id]
		if start > end {
			start, end = end, start
		}
		t[id] = Span{Start: start, End: end}
	}
	return t
}
