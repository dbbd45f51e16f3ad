package forecasts

import (
	"strconv"

	"agriweather/internal/types"
)

// Sentinel is rendered for a cell whose source has no entry at that position.
const Sentinel = "--"

// NullText is rendered for an entry the source reported as null.
const NullText = "n/a"

// Cell is one position of an interleaved series. Absent cells have no
// counterpart in their source; present cells may still hold a nil Value.
type Cell struct {
	Value  *float64 `json:"value"`
	Absent bool     `json:"absent,omitempty"`
}

// Render formats the cell with one decimal.
func (c Cell) Render() string {
	switch {
	case c.Absent:
		return Sentinel
	case c.Value == nil:
		return NullText
	default:
		return strconv.FormatFloat(*c.Value, 'f', 1, 64)
	}
}

// Alignment shifts the national-model series before pairing. Shift leading
// entries of B are dropped; a negative Shift pads B with absent cells.
type Alignment struct {
	Shift int
}

// Interleaved is the merged form of an API series A and a national-model
// series B: A[0], B[0], A[1], B[1], ...
type Interleaved struct {
	Cells []Cell `json:"cells"`
	// DirectComparisons is the number of non-null national-model values
	// after alignment. Those days can be shown side by side with the API.
	DirectComparisons int `json:"direct_comparisons"`
}

// Pairs returns the number of (A, B) pairs.
func (s Interleaved) Pairs() int { return len(s.Cells) / 2 }

// API returns the i-th API cell.
func (s Interleaved) API(i int) Cell { return s.Cells[2*i] }

// National returns the i-th national-model cell.
func (s Interleaved) National(i int) Cell { return s.Cells[2*i+1] }

// Strings renders every cell.
func (s Interleaved) Strings() []string {
	out := make([]string, len(s.Cells))
	for i, c := range s.Cells {
		out[i] = c.Render()
	}
	return out
}

// MergeSeries interleaves a and the aligned b. The result always has
// 2*max(len(a), len(b')) cells; a position past the end of its series is
// filled with an absent cell.
func MergeSeries(a, b types.Series, align Alignment) Interleaved {
	aligned := alignSeries(b, align.Shift)

	n := max(len(a), len(aligned))
	cells := make([]Cell, 2*n)
	for i := 0; i < n; i++ {
		cells[2*i] = cellAt(a, i)
		cells[2*i+1] = alignedCell(aligned, i)
	}

	direct := 0
	for _, c := range aligned {
		if !c.Absent && c.Value != nil {
			direct++
		}
	}
	return Interleaved{Cells: cells, DirectComparisons: direct}
}

func alignSeries(b types.Series, shift int) []Cell {
	if shift >= len(b) {
		return nil
	}
	var out []Cell
	for i := shift; i < 0; i++ {
		out = append(out, Cell{Absent: true})
	}
	for _, v := range b[max(shift, 0):] {
		out = append(out, Cell{Value: v})
	}
	return out
}

func cellAt(s types.Series, i int) Cell {
	if i >= len(s) {
		return Cell{Absent: true}
	}
	return Cell{Value: s[i]}
}

func alignedCell(cells []Cell, i int) Cell {
	if i >= len(cells) {
		return Cell{Absent: true}
	}
	return cells[i]
}
