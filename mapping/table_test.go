package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func absent(line, col int) Segment {
	return Segment{GeneratedLine: line, GeneratedColumn: col, Source: -1, OriginalLine: -1, OriginalColumn: -1, Name: -1}
}

func withOriginal(line, col, source, origLine, origCol int) Segment {
	return Segment{GeneratedLine: line, GeneratedColumn: col, Source: source, OriginalLine: origLine, OriginalColumn: origCol, Name: -1}
}

func TestAppendOrdersWithinLine(t *testing.T) {
	tb := New(0)
	tb.Append(absent(0, 5))
	tb.Append(absent(0, 1))
	tb.Append(absent(0, 3))
	cols := []int{}
	for _, s := range tb.Line(0) {
		cols = append(cols, s.GeneratedColumn)
	}
	assert.Equal(t, []int{1, 3, 5}, cols)
}

// S5-style line offset: a donor segment on internal line 1 appended with
// lineOffset=5 lands on internal line 6.
func TestAppendOffsetLineShift(t *testing.T) {
	tb := New(0)
	tb.Append(absent(1, 0))
	tb.AppendOffset([][]Segment{{}, {absent(1, 0)}}, 5, 0)
	require.Equal(t, 7, tb.Len())
	require.Len(t, tb.Line(6), 1)
	assert.Equal(t, 6, tb.Line(6)[0].GeneratedLine)
}

func TestAppendOffsetColumnOnlyFirstDonorLine(t *testing.T) {
	tb := New(0)
	donor := [][]Segment{
		{absent(0, 0), absent(0, 2)},
		{absent(1, 0)},
	}
	tb.AppendOffset(donor, 0, 10)
	assert.Equal(t, []int{10, 12}, colsOf(tb.Line(0)))
	assert.Equal(t, []int{0}, colsOf(tb.Line(1)))
}

func colsOf(segs []Segment) []int {
	var out []int
	for _, s := range segs {
		out = append(out, s.GeneratedColumn)
	}
	return out
}

// S6: segments only at generated line 1 (0-based: internal line 0);
// querying beyond it returns the last segment of that line.
func TestFindClosestOnGap(t *testing.T) {
	tb := New(0)
	tb.Append(absent(0, 0))
	tb.Append(absent(0, 5))
	seg, ok := tb.FindClosest(2, 10)
	require.True(t, ok)
	assert.Equal(t, 5, seg.GeneratedColumn)
	assert.Equal(t, 0, seg.GeneratedLine)
}

func TestFindClosestExactLineFallsBackWhenAllColumnsAhead(t *testing.T) {
	tb := New(0)
	tb.Append(absent(0, 10))
	tb.Append(absent(1, 20))
	seg, ok := tb.FindClosest(1, 0)
	require.True(t, ok)
	assert.Equal(t, 0, seg.GeneratedLine)
	assert.Equal(t, 10, seg.GeneratedColumn)
}

func TestFindClosestAbsentWhenTableEmpty(t *testing.T) {
	tb := New(0)
	_, ok := tb.FindClosest(0, 0)
	assert.False(t, ok)
}

func TestFindClosestTieBreakLastInserted(t *testing.T) {
	tb := New(0)
	tb.Append(withOriginal(0, 3, 0, 1, 1))
	tb.Append(withOriginal(0, 3, 0, 9, 9))
	seg, ok := tb.FindClosest(0, 3)
	require.True(t, ok)
	assert.Equal(t, 9, seg.OriginalLine)
}

func TestFindClosestMonotonic(t *testing.T) {
	tb := New(0)
	tb.Append(absent(0, 0))
	tb.Append(absent(2, 4))
	tb.Append(absent(5, 1))
	a, _ := tb.FindClosest(1, 0)
	b, _ := tb.FindClosest(3, 0)
	lessEq := a.GeneratedLine < b.GeneratedLine ||
		(a.GeneratedLine == b.GeneratedLine && a.GeneratedColumn <= b.GeneratedColumn)
	assert.True(t, lessEq)
}

func TestOffsetLinesPositive(t *testing.T) {
	tb := New(0)
	tb.Append(absent(0, 0))
	tb.Append(absent(1, 0))
	require.NoError(t, tb.OffsetLines(0, 3))
	assert.Nil(t, tb.Line(0))
	require.Len(t, tb.Line(3), 1)
	require.Len(t, tb.Line(4), 1)
}

func TestOffsetLinesNegativeDropsVacatedWindow(t *testing.T) {
	tb := New(0)
	tb.Append(absent(0, 0))
	tb.Append(absent(3, 0))
	tb.Append(absent(5, 0))
	require.NoError(t, tb.OffsetLines(5, -3))
	// line 3 falls in [start=2, from=5) and must be dropped
	assert.Nil(t, tb.Line(3))
	require.Len(t, tb.Line(0), 1)
	require.Len(t, tb.Line(2), 1)
}

func TestOffsetColumnsResorts(t *testing.T) {
	tb := New(0)
	tb.Append(absent(0, 2))
	tb.Append(absent(0, 5))
	tb.Append(absent(0, 10))
	require.NoError(t, tb.OffsetColumns(0, 5, -5))
	assert.Equal(t, []int{0, 2, 5}, colsOf(tb.Line(0)))
}

func TestCacheInvalidatedOnMutation(t *testing.T) {
	tb := New(16)
	tb.Append(absent(0, 0))
	seg, ok := tb.FindClosest(0, 0)
	require.True(t, ok)
	assert.Equal(t, 0, seg.GeneratedColumn)
	tb.Append(absent(0, 1))
	seg, ok = tb.FindClosest(0, 1)
	require.True(t, ok)
	assert.Equal(t, 1, seg.GeneratedColumn)
}

func TestAllPreservesDocumentOrder(t *testing.T) {
	tb := New(0)
	tb.Append(absent(0, 2))
	tb.Append(absent(0, 0))
	tb.Append(absent(2, 0))
	all := tb.All()
	require.Len(t, all, 3)
	assert.Equal(t, 0, all[0].GeneratedLine)
	assert.Equal(t, 2, all[2].GeneratedLine)
}
