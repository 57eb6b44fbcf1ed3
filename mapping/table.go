package mapping

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/slices"

	"github.com/parcel-bundler/fast-source-map/errs"
)

// DefaultClosestCacheSize bounds the per-Table LRU of FindClosest results.
const DefaultClosestCacheSize = 256

type closestKey struct {
	line, col int
}

type closestResult struct {
	seg Segment
	ok  bool
}

// Table is the ordered-by-generated-position segment store: a sequence of
// per-line buckets, each kept in non-decreasing GeneratedColumn order.
// Duplicate (line, column) pairs are permitted; the most recently appended
// one wins ties in FindClosest.
type Table struct {
	lines    [][]Segment
	nonEmpty []int // sorted ascending line indices with len(lines[i]) > 0
	cache    *lru.Cache[closestKey, closestResult]
}

// New returns an empty Table whose FindClosest results are cached up to
// cacheSize entries. A non-positive cacheSize disables the cache.
func New(cacheSize int) *Table {
	t := &Table{}
	if cacheSize > 0 {
		c, err := lru.New[closestKey, closestResult](cacheSize)
		if err == nil {
			t.cache = c
		}
	}
	return t
}

// Len returns one past the highest generated line index that holds a
// segment, i.e. the number of lines an encoder must walk to cover the
// table (trailing empty lines included).
func (t *Table) Len() int {
	return len(t.lines)
}

// Line returns the segments on generated line i in append order. The
// caller must not mutate the result.
func (t *Table) Line(i int) []Segment {
	if i < 0 || i >= len(t.lines) {
		return nil
	}
	return t.lines[i]
}

// All returns every segment in the table in (line, column) document order.
func (t *Table) All() []Segment {
	var out []Segment
	for _, segs := range t.lines {
		out = append(out, segs...)
	}
	return out
}

func (t *Table) invalidate() {
	if t.cache != nil {
		t.cache.Purge()
	}
}

func upperBoundColumn(segs []Segment, col int) int {
	lo, hi := 0, len(segs)
	for lo < hi {
		mid := (lo + hi) / 2
		if segs[mid].GeneratedColumn <= col {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func upperBoundInt(xs []int, v int) int {
	lo, hi := 0, len(xs)
	for lo < hi {
		mid := (lo + hi) / 2
		if xs[mid] <= v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (t *Table) ensureLine(i int) {
	for len(t.lines) <= i {
		t.lines = append(t.lines, nil)
	}
}

func (t *Table) markNonEmpty(i int) {
	pos, found := slices.BinarySearch(t.nonEmpty, i)
	if !found {
		t.nonEmpty = slices.Insert(t.nonEmpty, pos, i)
	}
}

// appendOne places seg at the end of its generated line, or — if
// seg.GeneratedColumn regresses relative to the line's last segment —
// inserts it in stable order ahead of any larger column and after any
// equal column already present, so FindClosest's last-inserted
// tie-break still favors it.
func (t *Table) appendOne(seg Segment) {
	line := seg.GeneratedLine
	t.ensureLine(line)
	segs := t.lines[line]
	wasEmpty := len(segs) == 0
	if len(segs) == 0 || segs[len(segs)-1].GeneratedColumn <= seg.GeneratedColumn {
		t.lines[line] = append(segs, seg)
	} else {
		i := upperBoundColumn(segs, seg.GeneratedColumn)
		segs = append(segs, Segment{})
		copy(segs[i+1:], segs[i:])
		segs[i] = seg
		t.lines[line] = segs
	}
	if wasEmpty {
		t.markNonEmpty(line)
	}
	t.invalidate()
}

// Append adds seg as-is (already in internal 0-based document coordinates).
func (t *Table) Append(seg Segment) {
	t.appendOne(seg)
}

// AppendOffset appends donorLines — one []Segment per donor-local generated
// line, already biased on the source/name side by the caller — shifting
// every segment's generated line by lineOffset and adding columnOffset only
// to segments whose donor-local generated line is 0. Source/original
// coordinates are never shifted.
func (t *Table) AppendOffset(donorLines [][]Segment, lineOffset, columnOffset int) {
	for donorLine, segs := range donorLines {
		if len(segs) == 0 {
			continue
		}
		colOff := 0
		if donorLine == 0 {
			colOff = columnOffset
		}
		for _, s := range segs {
			s.GeneratedLine = donorLine + lineOffset
			s.GeneratedColumn += colOff
			t.appendOne(s)
		}
	}
}

// FindClosest returns the segment at the greatest (line, column) pair that
// is lexicographically less than or equal to (gLine, gCol), or false if the
// table has no such segment. If the located line equals gLine but none of
// its segments satisfy column <= gCol, the search falls back to the
// previous non-empty line's last segment, keeping the result monotonic in
// the query position.
func (t *Table) FindClosest(gLine, gCol int) (Segment, bool) {
	key := closestKey{gLine, gCol}
	if t.cache != nil {
		if v, ok := t.cache.Get(key); ok {
			return v.seg, v.ok
		}
	}
	seg, ok := t.findClosest(gLine, gCol)
	if t.cache != nil {
		t.cache.Add(key, closestResult{seg, ok})
	}
	return seg, ok
}

func (t *Table) findClosest(gLine, gCol int) (Segment, bool) {
	i := upperBoundInt(t.nonEmpty, gLine)
	for i > 0 {
		line := t.nonEmpty[i-1]
		segs := t.lines[line]
		if line < gLine {
			return segs[len(segs)-1], true
		}
		j := upperBoundColumn(segs, gCol)
		if j > 0 {
			return segs[j-1], true
		}
		i--
	}
	return Segment{}, false
}

// OffsetLines shifts every segment on or after fromLine by lineOffset.
// When lineOffset < 0, the segments already on lines
// [fromLine+lineOffset, fromLine), which the shifted block moves over, are
// dropped. This is a post-hoc shift distinct
// from the ingest-time offsets of Append/AppendOffset, for when lines are
// inserted into or removed from an already-built generated artifact.
func (t *Table) OffsetLines(fromLine, lineOffset int) error {
	if lineOffset == 0 || fromLine >= len(t.lines) {
		return nil
	}
	startLine := fromLine + lineOffset
	if startLine < 0 {
		return errs.E(errs.Malformed, "offsetLines: result would be negative (fromLine=%d offset=%d)", fromLine, lineOffset)
	}
	newLines := make(map[int][]Segment)
	for i, segs := range t.lines {
		if len(segs) == 0 {
			continue
		}
		switch {
		case i >= fromLine:
			shifted := make([]Segment, len(segs))
			for k, s := range segs {
				s.GeneratedLine = i + lineOffset
				shifted[k] = s
			}
			newLines[i+lineOffset] = append(newLines[i+lineOffset], shifted...)
		case lineOffset < 0 && i >= startLine:
			// falls in the window the shifted block is about to occupy
		default:
			newLines[i] = segs
		}
	}
	t.rebuild(newLines)
	return nil
}

// OffsetColumns shifts every segment on generatedLine at or after
// generatedColumn by columnOffset, re-sorting the line to preserve the
// non-decreasing column invariant.
func (t *Table) OffsetColumns(generatedLine, generatedColumn, columnOffset int) error {
	if generatedLine < 0 || generatedLine >= len(t.lines) || columnOffset == 0 {
		return nil
	}
	segs := t.lines[generatedLine]
	if len(segs) == 0 {
		return nil
	}
	out := make([]Segment, len(segs))
	copy(out, segs)
	for i := range out {
		if out[i].GeneratedColumn >= generatedColumn {
			out[i].GeneratedColumn += columnOffset
			if out[i].GeneratedColumn < 0 {
				return errs.E(errs.Malformed, "offsetColumns: result would be negative on line %d", generatedLine)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b Segment) bool { return a.GeneratedColumn < b.GeneratedColumn })
	t.lines[generatedLine] = out
	t.invalidate()
	return nil
}

func (t *Table) rebuild(byLine map[int][]Segment) {
	maxLine := -1
	for i := range byLine {
		if i > maxLine {
			maxLine = i
		}
	}
	lines := make([][]Segment, maxLine+1)
	var nonEmpty []int
	for i, segs := range byLine {
		lines[i] = segs
		nonEmpty = append(nonEmpty, i)
	}
	slices.Sort(nonEmpty)
	t.lines = lines
	t.nonEmpty = nonEmpty
	t.invalidate()
}

// Reset empties the table.
func (t *Table) Reset() {
	t.lines = nil
	t.nonEmpty = nil
	t.invalidate()
}

// Close releases the table's cache. It always succeeds; it exists so
// callers tearing down several owned resources can treat a Table like any
// other closer.
func (t *Table) Close() error {
	t.Reset()
	return nil
}
